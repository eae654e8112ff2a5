package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smoradi/quotameter/internal/config"
	"github.com/smoradi/quotameter/internal/db"
	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/logger"
	"github.com/smoradi/quotameter/internal/metrics"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/pricing"
	"github.com/smoradi/quotameter/internal/repository"
	"github.com/smoradi/quotameter/internal/store/mysql"
	"github.com/smoradi/quotameter/internal/worker"
	"github.com/spf13/cobra"
)

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Release stale open reservations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		defer logger.Sync()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connection (MySQL)
		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		// 3) ledger service on the MySQL store
		prices, err := pricing.FromConfig(cfg.Pricing)
		if err != nil {
			return fmt.Errorf("pricing: %w", err)
		}
		store := mysql.New(
			dbx,
			repository.NewQuotaRepository(dbx),
			repository.NewReservationRepository(dbx),
			repository.NewUsageRepository(dbx),
			repository.NewOutboxRepository(),
		)
		svc := ledger.New(store, prices, ledger.Defaults{
			TokenLimit: cfg.Quota.DefaultTokenLimit,
			CostLimit:  model.MicroUSD(cfg.Quota.DefaultCostLimitMicros),
		}, logger.Log)

		j := worker.NewJanitor(svc, cfg.Janitor.Interval, cfg.Janitor.MaxAge, cfg.Janitor.Batch, logger.Log)

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> janitor started interval=%s maxAge=%s batch=%d", j.Interval, j.MaxAge, j.Batch)
		return j.Run(ctx)
	},
}
