package ports

import (
	"context"

	"github.com/taskboard/uaa/internal/core/domain"
)

// SessionStore is the durable system of record for issued token pairs.
// Lookups that match nothing return domain.ErrSessionNotFound; every other
// failure wraps domain.ErrPersistence.
type SessionStore interface {
	FindByAccessToken(ctx context.Context, raw string) (domain.StoredAuthentication, error)
	FindByRefreshToken(ctx context.Context, raw string) (domain.StoredAuthentication, error)
	FindAllByUserID(ctx context.Context, userID string) ([]domain.StoredAuthentication, error)

	// Save inserts a pending authentication or updates a stored one.
	Save(ctx context.Context, auth domain.Authentication) (domain.StoredAuthentication, error)

	// Deletes are no-ops when nothing matches. DeleteAllByUserID returns the
	// rows it removed.
	DeleteByID(ctx context.Context, id string) error
	DeleteAllByUserID(ctx context.Context, userID string) ([]domain.StoredAuthentication, error)
}

// Transactor runs fn inside a single durable-store transaction. Repositories
// called with the ctx passed to fn take part in that transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
