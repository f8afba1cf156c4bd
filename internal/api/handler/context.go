package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskboard/uaa/internal/core/domain"
)

// ctxPrincipal returns the principal injected by the Auth middleware. A
// missing principal means the route was mounted without Auth.
func ctxPrincipal(c echo.Context) (*domain.Principal, error) {
	p, _ := c.Get("principal").(*domain.Principal)
	if p == nil || p.UserID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return p, nil
}

// bindAndValidate decodes the body into req and runs the struct validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
