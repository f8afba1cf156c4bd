package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskboard/uaa/internal/core/domain"
)

const uniqueViolation = "23505"

const userColumns = `id, username, password_hash, role, created_at, updated_at`

// UserRepository implements ports.UserRepository over the users table.
type UserRepository struct {
	db  DB
	now func() time.Time
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

func (r *UserRepository) Create(ctx context.Context, user domain.NewUser) (*domain.User, error) {
	now := r.now().UTC()
	created := &domain.User{
		ID:           uuid.NewString(),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := conn(ctx, r.db).Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		created.ID, created.Username, created.PasswordHash, string(created.Role), created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("%w: insert user: %w", domain.ErrPersistence, err)
	}
	return created, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, "id", id)
}

func (r *UserRepository) findOne(ctx context.Context, column, value string) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: find user by %s: %w", domain.ErrPersistence, column, err)
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// DeleteByID removes the user row; domain.ErrUserNotFound when none matched.
func (r *UserRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrUserNotFound
	}

	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete user %s: %w", domain.ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// LockByID takes a row lock on the user. Inserting a session checks the
// users foreign key, so concurrent logins for this user wait for the
// surrounding transaction and fail once the row is deleted.
func (r *UserRepository) LockByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrUserNotFound
	}

	var locked string
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("%w: lock user %s: %w", domain.ErrPersistence, id, err)
	}
	return nil
}
