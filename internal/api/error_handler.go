package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status codes.
//   - Collapses every authentication failure into one generic 401.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, middleware rejections).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			log.Debug().Err(he.Internal).Str("path", c.Path()).Int("status", he.Code).Msg("request rejected")
		}
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// A failed compensation must reach an operator; it is never a client error.
	var cerr *domain.CompensationError
	if errors.As(err, &cerr) {
		log.Error().
			Err(err).
			Str("user_id", cerr.UserID).
			Str("path", c.Path()).
			Msg("request left token index and session store inconsistent")
		return http.StatusInternalServerError, "internal server error"
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case domain.IsAuthFailure(err):
		if errors.Is(err, domain.ErrPersistence) || errors.Is(err, domain.ErrTokenStore) {
			log.Warn().Err(err).Str("path", c.Path()).Msg("authentication failed closed on store outage")
		}
		return http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "access forbidden"
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, domain.ErrTokenStore):
		log.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("backing store unavailable")
		return http.StatusServiceUnavailable, "service unavailable"
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
