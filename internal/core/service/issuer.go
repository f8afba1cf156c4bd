package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/api/metrics"
	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = time.Hour
)

// TokenTTLs holds the lifetimes of issued tokens.
type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
}

func (t TokenTTLs) withDefaults() TokenTTLs {
	if t.Access <= 0 {
		t.Access = DefaultAccessTTL
	}
	if t.Refresh <= 0 {
		t.Refresh = DefaultRefreshTTL
	}
	return t
}

// TokenIssuer creates new sessions. The durable row is the source of truth;
// the index mirror is best effort and handed to the repair queue on failure.
type TokenIssuer struct {
	users    ports.UserRepository
	sessions ports.SessionStore
	tx       ports.Transactor
	index    ports.TokenIndex
	codec    ports.TokenCodec
	mirror   ports.MirrorQueue
	ttl      TokenTTLs
	log      zerolog.Logger
}

// NewTokenIssuer returns a TokenIssuer. mirror may be nil, in which case a
// failed index mirror is only logged.
func NewTokenIssuer(
	users ports.UserRepository,
	sessions ports.SessionStore,
	tx ports.Transactor,
	index ports.TokenIndex,
	codec ports.TokenCodec,
	mirror ports.MirrorQueue,
	ttl TokenTTLs,
	log zerolog.Logger,
) *TokenIssuer {
	return &TokenIssuer{
		users:    users,
		sessions: sessions,
		tx:       tx,
		index:    index,
		codec:    codec,
		mirror:   mirror,
		ttl:      ttl.withDefaults(),
		log:      log.With().Str("component", "token_issuer").Logger(),
	}
}

// IssueAuthentication starts a new session for username.
func (s *TokenIssuer) IssueAuthentication(ctx context.Context, username string) (domain.StoredAuthentication, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return domain.StoredAuthentication{}, fmt.Errorf("issue authentication: %w", err)
	}
	return s.issueFor(ctx, user, "login")
}

func (s *TokenIssuer) issueFor(ctx context.Context, user *domain.User, reason string) (domain.StoredAuthentication, error) {
	sub := domain.Subject{UserID: user.ID, Username: user.Username, Role: user.Role}

	access, err := s.codec.Issue(sub, domain.TokenKindAccess, s.ttl.Access)
	if err != nil {
		return domain.StoredAuthentication{}, fmt.Errorf("issue authentication: %w", err)
	}
	refresh, err := s.codec.Issue(sub, domain.TokenKindRefresh, s.ttl.Refresh)
	if err != nil {
		return domain.StoredAuthentication{}, fmt.Errorf("issue authentication: %w", err)
	}

	pending := domain.PendingAuthentication{
		UserID: user.ID,
		Tokens: domain.TokenPair{Access: access, Refresh: refresh},
	}

	var stored domain.StoredAuthentication
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var saveErr error
		stored, saveErr = s.sessions.Save(ctx, pending)
		return saveErr
	})
	if err != nil {
		return domain.StoredAuthentication{}, fmt.Errorf("issue authentication: %w", err)
	}

	// An index miss is final for the verifier, so this pair is rejected
	// until the repair queue has mirrored it.
	if err := s.index.Save(ctx, stored.Tokens); err != nil {
		metrics.MirrorFailuresTotal.WithLabelValues("issue").Inc()
		s.log.Warn().Err(err).
			Str("user_id", user.ID).
			Str("session_id", stored.ID).
			Msg("token index mirror failed, queued for repair")
		if s.mirror != nil {
			s.mirror.Enqueue(stored.Tokens)
		}
	}

	metrics.TokensIssuedTotal.WithLabelValues(reason).Inc()
	s.log.Debug().Str("user_id", user.ID).Str("session_id", stored.ID).Str("reason", reason).Msg("session issued")
	return stored, nil
}
