package ports

import (
	"context"

	"github.com/taskboard/uaa/internal/core/domain"
)

// UserRepository is the user directory the token core reads from. LockByID
// and DeleteByID must join the transaction carried by ctx when there is one.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user domain.NewUser) (*domain.User, error)
	DeleteByID(ctx context.Context, id string) error

	// LockByID holds the user row until the surrounding transaction ends.
	// Sessions cannot be inserted for a locked user. Returns
	// domain.ErrUserNotFound when there is no such user.
	LockByID(ctx context.Context, id string) error
}
