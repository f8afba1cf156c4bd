package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/taskboard/uaa/internal/core/ports"
)

// Auth verifies the bearer token and injects the principal into the context.
// Every verification failure produces the same 401.
func Auth(verifier ports.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			principal, err := verifier.Verify(c.Request().Context(), parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed").SetInternal(err)
			}

			c.Set("principal", principal)
			c.Set("user_id", principal.UserID)
			c.Set("role", principal.Role)

			return next(c)
		}
	}
}
