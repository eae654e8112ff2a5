package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/smoradi/quotameter/internal/config"
	"github.com/smoradi/quotameter/internal/http/middleware"
	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/metrics"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/pricing"
	"github.com/smoradi/quotameter/internal/reporting"
	"github.com/smoradi/quotameter/internal/repository"
	"github.com/smoradi/quotameter/internal/store/mysql"
	"go.uber.org/zap"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, zlog *zap.Logger) (*Server, error) {
	// repos (MySQL)
	tenantsRepo := repository.NewTenantsRepository(mysqlDB)
	quotasRepo := repository.NewQuotaRepository(mysqlDB)
	reservationsRepo := repository.NewReservationRepository(mysqlDB)
	usageRepo := repository.NewUsageRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository()

	// repos (ClickHouse)
	chUsageRepo := repository.NewCHUsageRepository(clickhouseDB)

	// services
	prices, err := pricing.FromConfig(cfg.Pricing)
	if err != nil {
		return nil, err
	}
	store := mysql.New(mysqlDB, quotasRepo, reservationsRepo, usageRepo, outboxRepo)
	ledgerSvc := ledger.New(store, prices, ledger.Defaults{
		TokenLimit: cfg.Quota.DefaultTokenLimit,
		CostLimit:  model.MicroUSD(cfg.Quota.DefaultCostLimitMicros),
	}, zlog)
	reporter := reporting.New(usageRepo, ledgerSvc)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(tenantsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:tenant:",
		Window:         time.Second,
		RetryAfterHint: true,
	})
	operatorMW := middleware.OperatorTokenMiddleware(cfg.Admin.Token)

	// caller contract
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/quota/reserve", reserveHandler(ledgerSvc, prices, model.MicroUSD(cfg.Pricing.FallbackEstimateMicros)))
	v1.POST("/quota/settle", settleHandler(ledgerSvc))
	v1.POST("/quota/release", releaseHandler(ledgerSvc))

	// dashboard contract
	v1.GET("/usage/summary", usageSummaryHandler(reporter))
	v1.GET("/usage/records", usageRecordsHandler(chUsageRepo))

	// administration contract
	admin := e.Group("/v1/admin", operatorMW)
	admin.GET("/tenants/:id/limits", getLimitsHandler(ledgerSvc))
	admin.PUT("/tenants/:id/limits", setLimitsHandler(ledgerSvc))
	admin.GET("/usage/global", globalUsageHandler(chUsageRepo))

	return &Server{e: e}, nil
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
