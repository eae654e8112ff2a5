package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeTenants struct {
	byKey map[string]*model.Tenant
}

func (f *fakeTenants) GetByAPIKey(_ context.Context, apiKey string) (*model.Tenant, error) {
	return f.byKey[apiKey], nil
}

func (f *fakeTenants) GetByID(_ context.Context, id int64) (*model.Tenant, error) {
	for _, t := range f.byKey {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func TestAPIKeyMiddleware(t *testing.T) {
	rps := 25
	repo := &fakeTenants{byKey: map[string]*model.Tenant{
		"good-key":      {ID: 7, Status: "active", RateLimitRPS: &rps},
		"suspended-key": {ID: 8, Status: "suspended"},
	}}

	var gotTenant int64
	next := func(c echo.Context) error {
		gotTenant, _ = TenantIDFromCtx(c)
		return c.String(http.StatusOK, "ok")
	}

	call := func(key string) int {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, APIKeyMiddleware(repo)(next)(c))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, call("good-key"))
	require.Equal(t, int64(7), gotTenant)

	require.Equal(t, http.StatusUnauthorized, call(""))
	require.Equal(t, http.StatusUnauthorized, call("unknown-key"))
	require.Equal(t, http.StatusUnauthorized, call("suspended-key"))
}
