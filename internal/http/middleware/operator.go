package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// OperatorTokenMiddleware gates admin routes behind a static operator token
// carried in X-Operator-Token. An empty configured token disables the admin
// surface entirely.
func OperatorTokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "admin api disabled"})
			}
			got := strings.TrimSpace(c.Request().Header.Get("X-Operator-Token"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid operator token"})
			}
			return next(c)
		}
	}
}
