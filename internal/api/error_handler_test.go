package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"invalid token", domain.ErrInvalidToken, http.StatusUnauthorized, "authentication failed"},
		{"wrong kind", domain.ErrUnexpectedTokenType, http.StatusUnauthorized, "authentication failed"},
		{"revoked", domain.ErrSessionNotFound, http.StatusUnauthorized, "authentication failed"},
		{"bad credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "authentication failed"},
		{"user gone during refresh", fmt.Errorf("refresh: %w", domain.ErrUserNotFound), http.StatusUnauthorized, "authentication failed"},
		{
			"store outage during verify",
			fmt.Errorf("%w: %w", domain.ErrSessionNotFound, errors.Join(domain.ErrTokenStore, domain.ErrPersistence)),
			http.StatusUnauthorized, "authentication failed",
		},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "access forbidden"},
		{"duplicate user", domain.ErrUserExists, http.StatusConflict, "user already exists"},
		{"durable store down", fmt.Errorf("issue authentication: %w", domain.ErrPersistence), http.StatusServiceUnavailable, "service unavailable"},
		{"index down", domain.ErrTokenStore, http.StatusServiceUnavailable, "service unavailable"},
		{
			"deletion rolled back",
			&domain.DeletionError{UserID: "u-1", Cause: fmt.Errorf("%w: deadlock", domain.ErrPersistence)},
			http.StatusServiceUnavailable, "service unavailable",
		},
		{
			"compensation failed",
			&domain.CompensationError{UserID: "u-1", Cause: domain.ErrPersistence, RestoreErr: domain.ErrTokenStore},
			http.StatusInternalServerError, "internal server error",
		},
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, "invalid payload"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			NewHTTPErrorHandler(zerolog.Nop())(tc.err, c)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Error != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, body.Error)
			}
		})
	}
}

func TestHTTPErrorHandler_SkipsCommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = c.NoContent(http.StatusAccepted)

	NewHTTPErrorHandler(zerolog.Nop())(domain.ErrPersistence, c)

	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Fatalf("committed response must be left alone, got %d %q", rec.Code, rec.Body.String())
	}
}
