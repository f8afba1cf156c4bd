package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

// dummyHash is compared against when the username is unknown so that a
// missing user costs as much as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("uaa-timing-equaliser"), bcrypt.DefaultCost)
	return h
})

// AuthService implements registration and the token lifecycle on top of the
// issuer, verifier and revoker.
type AuthService struct {
	users    ports.UserRepository
	issuer   *TokenIssuer
	verifier *TokenVerifier
	revoker  *TokenRevoker
	log      zerolog.Logger
}

func NewAuthService(users ports.UserRepository, issuer *TokenIssuer, verifier *TokenVerifier, revoker *TokenRevoker, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		issuer:   issuer,
		verifier: verifier,
		revoker:  revoker,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// Register creates a user with role, USER when empty. Callers exposed to
// anonymous requests must pass domain.RoleUser.
func (s *AuthService) Register(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	user, err := s.users.Create(ctx, domain.NewUser{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return user, nil
}

// Login checks the password and opens a new session. An unknown username and
// a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (domain.TokenPair, error) {
	if username == "" || password == "" {
		return domain.TokenPair{}, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return domain.TokenPair{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("login: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.TokenPair{}, domain.ErrInvalidCredentials
	}

	auth, err := s.issuer.issueFor(ctx, user, "login")
	if err != nil {
		return domain.TokenPair{}, err
	}
	return auth.Tokens, nil
}

// Refresh exchanges a live refresh token for a new pair. The session owning
// the presented token is revoked first, so each refresh token works once.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (domain.TokenPair, error) {
	principal, err := s.verifier.Verify(ctx, rawRefresh, domain.TokenKindRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.revoker.RevokeRefreshToken(ctx, rawRefresh); err != nil {
		return domain.TokenPair{}, fmt.Errorf("refresh: %w", err)
	}

	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("refresh: %w", err)
	}

	auth, err := s.issuer.issueFor(ctx, user, "refresh")
	if err != nil {
		return domain.TokenPair{}, err
	}
	return auth.Tokens, nil
}

// Revoke ends the session owning rawAccess.
func (s *AuthService) Revoke(ctx context.Context, rawAccess string) error {
	return s.revoker.RevokeAccessToken(ctx, rawAccess)
}
