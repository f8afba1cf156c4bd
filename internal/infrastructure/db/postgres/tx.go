package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskboard/uaa/internal/core/domain"
)

// querier is the subset shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func extractTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// conn returns the transaction carried by ctx, or db when there is none.
func conn(ctx context.Context, db DB) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

// TxManager implements ports.Transactor on top of a pgx pool.
type TxManager struct {
	db DB
}

func NewTxManager(db DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTx commits when fn returns nil and rolls back otherwise. A call made
// while ctx already carries a transaction joins it.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if extractTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrPersistence, err)
	}

	// Rollback must still reach the server if the caller's ctx is cancelled.
	rollbackCtx := context.WithoutCancel(ctx)
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(rollbackCtx)
			panic(p)
		}
	}()

	if err := fn(injectTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(rollbackCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("%w: rollback: %w", domain.ErrPersistence, rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrPersistence, err)
	}
	return nil
}
