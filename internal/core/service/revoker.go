package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/api/metrics"
	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

// TokenRevoker ends sessions: index first, durable row second. Revoking
// something already gone is not an error.
type TokenRevoker struct {
	sessions ports.SessionStore
	index    ports.TokenIndex
	log      zerolog.Logger
}

func NewTokenRevoker(sessions ports.SessionStore, index ports.TokenIndex, log zerolog.Logger) *TokenRevoker {
	return &TokenRevoker{
		sessions: sessions,
		index:    index,
		log:      log.With().Str("component", "token_revoker").Logger(),
	}
}

// Revoke removes auth from the index and the session store.
func (r *TokenRevoker) Revoke(ctx context.Context, auth domain.StoredAuthentication) error {
	return r.revoke(ctx, auth, "logout")
}

// RevokeAccessToken revokes the session owning the given access token.
func (r *TokenRevoker) RevokeAccessToken(ctx context.Context, raw string) error {
	return r.revokeBy(ctx, r.sessions.FindByAccessToken, raw, "logout")
}

// RevokeRefreshToken revokes the session owning the given refresh token.
func (r *TokenRevoker) RevokeRefreshToken(ctx context.Context, raw string) error {
	return r.revokeBy(ctx, r.sessions.FindByRefreshToken, raw, "refresh")
}

func (r *TokenRevoker) revokeBy(
	ctx context.Context,
	find func(context.Context, string) (domain.StoredAuthentication, error),
	raw, reason string,
) error {
	auth, err := find(ctx, raw)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	return r.revoke(ctx, auth, reason)
}

func (r *TokenRevoker) revoke(ctx context.Context, auth domain.StoredAuthentication, reason string) error {
	if err := r.index.Delete(ctx, auth.Tokens); err != nil {
		return fmt.Errorf("revoke session %s: %w", auth.ID, err)
	}
	if err := r.sessions.DeleteByID(ctx, auth.ID); err != nil {
		return fmt.Errorf("revoke session %s: %w", auth.ID, err)
	}

	metrics.RevocationsTotal.WithLabelValues(reason).Inc()
	r.log.Debug().Str("user_id", auth.UserID).Str("session_id", auth.ID).Str("reason", reason).Msg("session revoked")
	return nil
}
