package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/api/metrics"
	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

// TokenVerifier runs a raw token through decode, kind check and session
// check. The index answers the session check; the durable store is asked only
// when the index is unreachable.
type TokenVerifier struct {
	codec    ports.TokenCodec
	index    ports.TokenIndex
	sessions ports.SessionStore
	log      zerolog.Logger
}

func NewTokenVerifier(codec ports.TokenCodec, index ports.TokenIndex, sessions ports.SessionStore, log zerolog.Logger) *TokenVerifier {
	return &TokenVerifier{
		codec:    codec,
		index:    index,
		sessions: sessions,
		log:      log.With().Str("component", "token_verifier").Logger(),
	}
}

// Verify authenticates raw as a token of the expected kind. Failures are one
// of domain.ErrInvalidToken, domain.ErrUnexpectedTokenType or
// domain.ErrSessionNotFound; decode details never leave this method.
func (v *TokenVerifier) Verify(ctx context.Context, raw string, expected domain.TokenKind) (*domain.Principal, error) {
	start := time.Now()
	principal, result, err := v.verify(ctx, raw, expected)
	metrics.VerificationDuration.WithLabelValues(string(expected)).Observe(time.Since(start).Seconds())
	metrics.VerificationsTotal.WithLabelValues(string(expected), result).Inc()
	return principal, err
}

func (v *TokenVerifier) verify(ctx context.Context, raw string, expected domain.TokenKind) (*domain.Principal, string, error) {
	dec, err := v.codec.Decode(raw)
	if err != nil {
		v.log.Debug().Err(err).Str("expected", string(expected)).Msg("token rejected at decode")
		return nil, "invalid_token", domain.ErrInvalidToken
	}

	if dec.Kind != expected {
		v.log.Debug().
			Str("user_id", dec.UserID).
			Str("expected", string(expected)).
			Str("got", string(dec.Kind)).
			Msg("token rejected, wrong kind")
		return nil, "unexpected_type", domain.ErrUnexpectedTokenType
	}

	active, err := v.sessionActive(ctx, dec, raw)
	if err != nil {
		v.log.Error().Err(err).Str("user_id", dec.UserID).Msg("session check unavailable, failing closed")
		return nil, "store_unavailable", fmt.Errorf("%w: %w", domain.ErrSessionNotFound, err)
	}
	if !active {
		v.log.Debug().Str("user_id", dec.UserID).Str("jti", dec.ID).Msg("token has no active session")
		return nil, "session_not_found", domain.ErrSessionNotFound
	}

	return &domain.Principal{
		UserID:   dec.UserID,
		Username: dec.Subject,
		Role:     dec.Role,
		Kind:     dec.Kind,
		RawToken: raw,
	}, "ok", nil
}

func (v *TokenVerifier) sessionActive(ctx context.Context, dec domain.DecodedToken, raw string) (bool, error) {
	ok, idxErr := v.index.Exists(ctx, dec.UserID, raw)
	if idxErr == nil {
		return ok, nil
	}

	metrics.IndexFallbacksTotal.Inc()
	v.log.Warn().Err(idxErr).Msg("token index unavailable, checking session store")

	find := v.sessions.FindByAccessToken
	if dec.Kind == domain.TokenKindRefresh {
		find = v.sessions.FindByRefreshToken
	}
	auth, err := find(ctx, raw)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return false, nil
	case err != nil:
		return false, errors.Join(idxErr, err)
	}
	return auth.UserID == dec.UserID, nil
}

// For returns a verifier bound to one token kind.
func (v *TokenVerifier) For(kind domain.TokenKind) ports.Verifier {
	return kindVerifier{verifier: v, kind: kind}
}

type kindVerifier struct {
	verifier *TokenVerifier
	kind     domain.TokenKind
}

func (k kindVerifier) Verify(ctx context.Context, raw string) (*domain.Principal, error) {
	return k.verifier.Verify(ctx, raw, k.kind)
}
