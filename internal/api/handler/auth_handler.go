package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	now         func() time.Time
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService, now: time.Now}
}

// registerRequest has no role: self-registered accounts are always USER.
type registerRequest struct {
	Username string `json:"username" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role"     validate:"required,oneof=USER ADMIN"`
}

type tokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,jwt"`
}

type userResponse struct {
	User *domain.User `json:"user"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

type meResponse struct {
	*domain.Principal
	Authorities []string `json:"authorities"`
}

func (h *AuthHandler) tokenResponse(pair domain.TokenPair) tokenResponse {
	now := h.now()
	return tokenResponse{
		AccessToken:      pair.Access.Raw,
		RefreshToken:     pair.Refresh.Raw,
		TokenType:        "Bearer",
		ExpiresIn:        int64(pair.Access.Remaining(now).Seconds()),
		RefreshExpiresIn: int64(pair.Refresh.Remaining(now).Seconds()),
	}
}

// Register creates a new user account.
//
// POST /auth/register → 201 {"user": {...}}
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), req.Username, req.Password, domain.RoleUser)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, userResponse{User: user})
}

// CreateUser creates an account with an explicit role.
//
// POST /admin/users (ADMIN) → 201 {"user": {...}}
func (h *AuthHandler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), req.Username, req.Password, domain.Role(req.Role))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, userResponse{User: user})
}

// Token exchanges credentials for a new token pair.
//
// POST /auth/token → 200 tokenResponse
func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pair, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, h.tokenResponse(pair))
}

// Refresh exchanges a refresh token for a new pair; the old pair is revoked.
//
// POST /auth/refresh → 200 tokenResponse
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pair, err := h.authService.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, h.tokenResponse(pair))
}

// Revoke ends the session of the presented access token.
//
// POST /auth/revoke (Bearer) → 204
func (h *AuthHandler) Revoke(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	if err := h.authService.Revoke(c.Request().Context(), p.RawToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated principal.
//
// GET /auth/me (Bearer) → 200 meResponse
func (h *AuthHandler) Me(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResponse{Principal: p, Authorities: p.Authorities()})
}
