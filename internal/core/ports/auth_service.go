package ports

import (
	"context"

	"github.com/taskboard/uaa/internal/core/domain"
)

// Verifier verifies tokens of one fixed kind.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*domain.Principal, error)
}

// AuthService is what the HTTP layer calls for the token lifecycle.
type AuthService interface {
	Register(ctx context.Context, username, password string, role domain.Role) (*domain.User, error)
	Login(ctx context.Context, username, password string) (domain.TokenPair, error)
	Refresh(ctx context.Context, rawRefresh string) (domain.TokenPair, error)
	Revoke(ctx context.Context, rawAccess string) error
}

// UserService deletes users together with every session they hold.
type UserService interface {
	DeleteUser(ctx context.Context, userID string) (bool, error)
}
