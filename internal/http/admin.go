package http

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/repository"
)

func tenantIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func getLimitsHandler(svc *ledger.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := tenantIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		}

		q, err := svc.GetLimit(c.Request().Context(), tenantID)
		if err != nil {
			c.Logger().Errorf("get limits failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, quotaJSON(q))
	}
}

type setLimitsReq struct {
	MonthlyTokenLimit   int64   `json:"monthly_token_limit"`
	MonthlyCostLimitUSD float64 `json:"monthly_cost_limit_usd"`
}

func setLimitsHandler(svc *ledger.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := tenantIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		}

		var req setLimitsReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.MonthlyTokenLimit < 0 || req.MonthlyCostLimitUSD < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limits must be non-negative"})
		}

		costLimit := model.MicroUSD(int64(req.MonthlyCostLimitUSD * 1e6))
		if err := svc.SetLimit(c.Request().Context(), tenantID, req.MonthlyTokenLimit, costLimit); err != nil {
			c.Logger().Errorf("set limits failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		q, err := svc.GetLimit(c.Request().Context(), tenantID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, quotaJSON(q))
	}
}

func quotaJSON(q *model.QuotaConfig) map[string]any {
	return map[string]any{
		"tenant_id":              q.TenantID,
		"monthly_token_limit":    q.MonthlyTokenLimit,
		"monthly_cost_limit_usd": q.MonthlyCostLimit.USD(),
		"tokens_used":            q.TokensUsed,
		"cost_used_usd":          q.CostUsed.USD(),
		"usage_percentage":       q.PctUsed(),
		"period_end":             q.PeriodEnd.Format("2006-01-02"),
	}
}

// globalUsageHandler is the operator-wide aggregate over all tenants, served
// from the ClickHouse mirror to keep heavy scans off the OLTP store.
func globalUsageHandler(chRepo repository.CHUsageRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		now := time.Now().UTC()
		totals, err := chRepo.GlobalTotals(c.Request().Context(), now.Add(-windowDays(c)), now)
		if err != nil {
			c.Logger().Errorf("global totals failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, totalsJSON(totals))
	}
}
