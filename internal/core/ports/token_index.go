package ports

import (
	"context"

	"github.com/taskboard/uaa/internal/core/domain"
)

// TokenIndex is the fast-access mirror of active sessions. Entries expire on
// their own when the token does. Failures wrap domain.ErrTokenStore.
type TokenIndex interface {
	Exists(ctx context.Context, userID, raw string) (bool, error)
	Save(ctx context.Context, pair domain.TokenPair) error
	Delete(ctx context.Context, pair domain.TokenPair) error
}

// MirrorQueue accepts pairs whose index mirror failed at issuance time.
type MirrorQueue interface {
	Enqueue(pair domain.TokenPair)
}

// IncidentRecorder keeps a durable note of failures that need an operator.
type IncidentRecorder interface {
	Record(ctx context.Context, incident domain.Incident) error
}

// IncidentLister lists incidents nobody has resolved yet, newest first.
type IncidentLister interface {
	ListOpen(ctx context.Context, limit int64) ([]domain.Incident, error)
}
