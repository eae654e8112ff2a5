package http

import (
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/smoradi/quotameter/internal/http/middleware"
	"github.com/smoradi/quotameter/internal/ledger"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/pricing"
)

type reserveReq struct {
	Feature         string `json:"feature"`
	Model           string `json:"model"`
	MaxInputTokens  int64  `json:"max_input_tokens"`
	MaxOutputTokens int64  `json:"max_output_tokens"`
	ActorID         *int64 `json:"actor_id"`
}

// reserveHandler charges a worst-case estimate against the tenant's quota and
// hands back the reservation handle the caller must settle or release.
func reserveHandler(svc *ledger.Service, prices *pricing.Table, fallbackEstimate model.Money) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reserveReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Feature = strings.TrimSpace(req.Feature)
		if req.Feature == "" || len(req.Feature) > 50 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid feature"})
		}

		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		// Worst-case estimate from the caller's bounds; a static conservative
		// bound when none were given. The check is never skipped.
		est := fallbackEstimate
		var estTokens int64
		if req.Model != "" && (req.MaxInputTokens > 0 || req.MaxOutputTokens > 0) {
			est = prices.CostOf(req.Model, req.MaxInputTokens, req.MaxOutputTokens)
			estTokens = req.MaxInputTokens + req.MaxOutputTokens
			if est <= 0 {
				est = fallbackEstimate
			}
		}

		res, err := svc.Reserve(c.Request().Context(), tenantID, req.ActorID, req.Feature, est, estTokens)
		if err != nil {
			if errors.Is(err, ledger.ErrQuotaExceeded) {
				return c.JSON(http.StatusPaymentRequired, map[string]any{
					"error":       "quota_exceeded",
					"description": "monthly AI budget is exhausted until the next period",
					"feature":     req.Feature,
				})
			}

			log.Errorf("reserve failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"reservation_id":     res.ID,
			"estimated_cost_usd": res.EstimatedCost.USD(),
			"estimated_tokens":   res.EstimatedTokens,
			"feature":            req.Feature,
		})
	}
}

type settleReq struct {
	ReservationID string `json:"reservation_id"`
	Model         string `json:"model"`
	InputTokens   int64  `json:"input_tokens"`
	OutputTokens  int64  `json:"output_tokens"`
}

func settleHandler(svc *ledger.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req settleReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.ReservationID = strings.TrimSpace(req.ReservationID)
		if req.ReservationID == "" || req.Model == "" || req.InputTokens < 0 || req.OutputTokens < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}

		rec, err := svc.Settle(c.Request().Context(), req.ReservationID, req.Model, req.InputTokens, req.OutputTokens)
		if err != nil {
			if errors.Is(err, ledger.ErrUnknownReservation) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown reservation"})
			}

			log.Errorf("settle failed: %v", err)

			// settlement is idempotent per handle; the caller must retry
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "settlement failed, retry with the same reservation_id"})
		}
		if rec == nil {
			return c.JSON(http.StatusOK, map[string]any{"settled": true, "idempotent": true})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"settled":        true,
			"idempotent":     false,
			"usage_id":       rec.ID,
			"cost_usd":       rec.Cost.USD(),
			"total_tokens":   rec.TotalTokens(),
			"reservation_id": rec.ReservationID,
		})
	}
}

type releaseReq struct {
	ReservationID string `json:"reservation_id"`
}

func releaseHandler(svc *ledger.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req releaseReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.ReservationID = strings.TrimSpace(req.ReservationID)
		if req.ReservationID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}

		if err := svc.Release(c.Request().Context(), req.ReservationID); err != nil {
			if errors.Is(err, ledger.ErrUnknownReservation) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown reservation"})
			}

			log.Errorf("release failed: %v", err)

			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "release failed, retry with the same reservation_id"})
		}

		return c.JSON(http.StatusOK, map[string]any{"released": true})
	}
}
