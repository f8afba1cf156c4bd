package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskboard/uaa/internal/core/domain"
)

const sessionColumns = `id, user_id,
	access_token, access_issued_at, access_expires_at,
	refresh_token, refresh_issued_at, refresh_expires_at,
	created_at`

// SessionStore implements ports.SessionStore over the jwt_authentications table.
type SessionStore struct {
	db  DB
	now func() time.Time
}

func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

func (s *SessionStore) FindByAccessToken(ctx context.Context, raw string) (domain.StoredAuthentication, error) {
	return s.findOne(ctx, "access_token", raw)
}

func (s *SessionStore) FindByRefreshToken(ctx context.Context, raw string) (domain.StoredAuthentication, error) {
	return s.findOne(ctx, "refresh_token", raw)
}

func (s *SessionStore) findOne(ctx context.Context, column, raw string) (domain.StoredAuthentication, error) {
	query := `SELECT ` + sessionColumns + ` FROM jwt_authentications WHERE ` + column + ` = $1`

	auth, err := scanAuthentication(conn(ctx, s.db).QueryRow(ctx, query, raw))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StoredAuthentication{}, domain.ErrSessionNotFound
		}
		return domain.StoredAuthentication{}, fmt.Errorf("%w: find session by %s: %w", domain.ErrPersistence, column, err)
	}
	return auth, nil
}

// FindAllByUserID returns every session of the user, oldest first.
func (s *SessionStore) FindAllByUserID(ctx context.Context, userID string) ([]domain.StoredAuthentication, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	query := `SELECT ` + sessionColumns + ` FROM jwt_authentications WHERE user_id = $1 ORDER BY created_at`

	rows, err := conn(ctx, s.db).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", domain.ErrPersistence, err)
	}
	out, err := collectAuthentications(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", domain.ErrPersistence, err)
	}
	return out, nil
}

// Save inserts a pending authentication under a new id, or overwrites the
// row of a stored one.
func (s *SessionStore) Save(ctx context.Context, auth domain.Authentication) (domain.StoredAuthentication, error) {
	var stored domain.StoredAuthentication
	switch a := auth.(type) {
	case domain.PendingAuthentication:
		stored = domain.StoredAuthentication{
			ID:        uuid.NewString(),
			UserID:    a.UserID,
			Tokens:    a.Tokens,
			CreatedAt: s.now().UTC(),
		}
	case domain.StoredAuthentication:
		stored = a
	default:
		return domain.StoredAuthentication{}, fmt.Errorf("save session: unsupported authentication %T", auth)
	}

	const query = `
		INSERT INTO jwt_authentications (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			access_token       = EXCLUDED.access_token,
			access_issued_at   = EXCLUDED.access_issued_at,
			access_expires_at  = EXCLUDED.access_expires_at,
			refresh_token      = EXCLUDED.refresh_token,
			refresh_issued_at  = EXCLUDED.refresh_issued_at,
			refresh_expires_at = EXCLUDED.refresh_expires_at`

	p := stored.Tokens
	_, err := conn(ctx, s.db).Exec(ctx, query,
		stored.ID, stored.UserID,
		p.Access.Raw, p.Access.IssuedAt, p.Access.ExpiresAt,
		p.Refresh.Raw, p.Refresh.IssuedAt, p.Refresh.ExpiresAt,
		stored.CreatedAt,
	)
	if err != nil {
		return domain.StoredAuthentication{}, fmt.Errorf("%w: save session: %w", domain.ErrPersistence, err)
	}
	return stored, nil
}

func (s *SessionStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := conn(ctx, s.db).Exec(ctx, `DELETE FROM jwt_authentications WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: delete session %s: %w", domain.ErrPersistence, id, err)
	}
	return nil
}

// DeleteAllByUserID removes every session of the user and returns them.
func (s *SessionStore) DeleteAllByUserID(ctx context.Context, userID string) ([]domain.StoredAuthentication, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	query := `DELETE FROM jwt_authentications WHERE user_id = $1 RETURNING ` + sessionColumns

	rows, err := conn(ctx, s.db).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: delete sessions of user %s: %w", domain.ErrPersistence, userID, err)
	}
	out, err := collectAuthentications(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: delete sessions of user %s: %w", domain.ErrPersistence, userID, err)
	}
	return out, nil
}

func collectAuthentications(rows pgx.Rows) ([]domain.StoredAuthentication, error) {
	defer rows.Close()

	var out []domain.StoredAuthentication
	for rows.Next() {
		auth, err := scanAuthentication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, auth)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAuthentication(row pgx.Row) (domain.StoredAuthentication, error) {
	var (
		a       domain.StoredAuthentication
		access  = domain.Token{Kind: domain.TokenKindAccess}
		refresh = domain.Token{Kind: domain.TokenKindRefresh}
	)
	if err := row.Scan(
		&a.ID, &a.UserID,
		&access.Raw, &access.IssuedAt, &access.ExpiresAt,
		&refresh.Raw, &refresh.IssuedAt, &refresh.ExpiresAt,
		&a.CreatedAt,
	); err != nil {
		return domain.StoredAuthentication{}, err
	}
	access.UserID = a.UserID
	refresh.UserID = a.UserID
	a.Tokens = domain.TokenPair{Access: access, Refresh: refresh}
	return a, nil
}
