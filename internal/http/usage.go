package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/smoradi/quotameter/internal/http/middleware"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/reporting"
	"github.com/smoradi/quotameter/internal/repository"
)

func windowDays(c echo.Context) time.Duration {
	days := 30
	if v := c.QueryParam("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}
	return time.Duration(days) * 24 * time.Hour
}

func totalsJSON(t model.UsageTotals) map[string]any {
	return map[string]any{
		"input_tokens":  t.InputTokens,
		"output_tokens": t.OutputTokens,
		"total_tokens":  t.TotalTokens(),
		"cost_usd":      t.Cost.USD(),
		"records":       t.Records,
	}
}

func groupJSON(g map[string]model.UsageTotals) map[string]any {
	out := make(map[string]any, len(g))
	for k, v := range g {
		out[k] = totalsJSON(v)
	}
	return out
}

func recordJSON(r model.UsageRecord) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"actor_id":       r.ActorID,
		"feature":        r.Feature,
		"model":          r.Model,
		"input_tokens":   r.InputTokens,
		"output_tokens":  r.OutputTokens,
		"total_tokens":   r.TotalTokens(),
		"cost_usd":       r.Cost.USD(),
		"reservation_id": r.ReservationID,
		"created_at":     r.CreatedAt,
	}
}

// usageSummaryHandler is the tenant dashboard: totals, limits, percentage,
// by-feature and by-model breakdowns, recent records.
func usageSummaryHandler(reporter *reporting.Reporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		sum, err := reporter.Summary(c.Request().Context(), tenantID, windowDays(c), time.Now().UTC())
		if err != nil {
			c.Logger().Errorf("usage summary failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		recent := make([]map[string]any, 0, len(sum.Recent))
		for _, r := range sum.Recent {
			recent = append(recent, recordJSON(r))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"tenant_id":        sum.TenantID,
			"window_start":     sum.WindowStart,
			"window_end":       sum.WindowEnd,
			"totals":           totalsJSON(sum.Totals),
			"token_limit":      sum.TokenLimit,
			"cost_limit_usd":   sum.CostLimit.USD(),
			"tokens_used":      sum.TokensUsed,
			"cost_used_usd":    sum.CostUsed.USD(),
			"usage_percentage": sum.PctUsed,
			"period_end":       sum.PeriodEnd.Format("2006-01-02"),
			"by_feature":       groupJSON(sum.ByFeature),
			"by_model":         groupJSON(sum.ByModel),
			"recent":           recent,
		})
	}
}

// usageRecordsHandler lists settled records from the ClickHouse mirror.
func usageRecordsHandler(chRepo repository.CHUsageRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		feature := strings.TrimSpace(c.QueryParam("feature"))
		mdl := strings.TrimSpace(c.QueryParam("model"))

		recs, err := chRepo.ListByTenant(c.Request().Context(), tenantID, feature, mdl, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		results := make([]map[string]any, 0, len(recs))
		for _, r := range recs {
			results = append(results, recordJSON(r))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(results),
			"results": results,
		})
	}
}
