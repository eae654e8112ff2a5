package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/smoradi/quotameter/internal/http/middleware"
	"github.com/stretchr/testify/require"
)

func adminCall(t *testing.T, h echo.HandlerFunc, method, tenantID, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(tenantID)
	require.NoError(t, h(c))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestGetLimitsDefaultsForUnknownTenant(t *testing.T) {
	svc, _ := testLedger(t)

	rec, out := adminCall(t, getLimitsHandler(svc), http.MethodGet, "42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 100_000, out["monthly_token_limit"])
	require.InDelta(t, 0.20, out["monthly_cost_limit_usd"], 1e-9)
	require.EqualValues(t, 0, out["tokens_used"])
	require.Equal(t, "2025-04-01", out["period_end"])
}

func TestSetLimits(t *testing.T) {
	svc, _ := testLedger(t)

	rec, out := adminCall(t, setLimitsHandler(svc), http.MethodPut, "1",
		`{"monthly_token_limit":500000,"monthly_cost_limit_usd":1.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 500_000, out["monthly_token_limit"])
	require.InDelta(t, 1.5, out["monthly_cost_limit_usd"], 1e-9)

	rec, _ = adminCall(t, setLimitsHandler(svc), http.MethodPut, "1",
		`{"monthly_token_limit":-1,"monthly_cost_limit_usd":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = adminCall(t, setLimitsHandler(svc), http.MethodPut, "abc", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperatorTokenMiddleware(t *testing.T) {
	next := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	call := func(configured, sent string) int {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if sent != "" {
			req.Header.Set("X-Operator-Token", sent)
		}
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, middleware.OperatorTokenMiddleware(configured)(next)(c))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, call("s3cret", "s3cret"))
	require.Equal(t, http.StatusUnauthorized, call("s3cret", "wrong"))
	require.Equal(t, http.StatusUnauthorized, call("s3cret", ""))
	// empty configured token disables the surface even with a guess
	require.Equal(t, http.StatusForbidden, call("", "anything"))
}
