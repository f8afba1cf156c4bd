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

const defaultCompensationTimeout = 10 * time.Second

// UserDeletion deletes a user together with every session it holds.
//
// Order matters: sessions are deactivated in the index before the durable
// rows go, so a half-finished deletion leaves tokens looking invalid rather
// than valid. If the durable step fails, the deactivated pairs are put back
// into the index before the error is returned.
//
// The durable step locks the user row first. Sessions committed after the
// initial listing come back from the delete and are deactivated before the
// transaction commits; later logins fail on the users foreign key.
type UserDeletion struct {
	users     ports.UserRepository
	sessions  ports.SessionStore
	index     ports.TokenIndex
	tx        ports.Transactor
	incidents ports.IncidentRecorder
	timeout   time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewUserDeletion returns the orchestrator. incidents may be nil.
// compensationTimeout bounds the index restore; <= 0 selects the default.
func NewUserDeletion(
	users ports.UserRepository,
	sessions ports.SessionStore,
	index ports.TokenIndex,
	tx ports.Transactor,
	incidents ports.IncidentRecorder,
	compensationTimeout time.Duration,
	log zerolog.Logger,
) *UserDeletion {
	if compensationTimeout <= 0 {
		compensationTimeout = defaultCompensationTimeout
	}
	return &UserDeletion{
		users:     users,
		sessions:  sessions,
		index:     index,
		tx:        tx,
		incidents: incidents,
		timeout:   compensationTimeout,
		now:       time.Now,
		log:       log.With().Str("component", "user_deletion").Logger(),
	}
}

// DeleteUser reports whether the user existed and is now gone.
//
// Errors:
//   - *domain.DeletionError: durable deletion failed, index restored.
//   - *domain.CompensationError: durable deletion failed and the index could
//     not be restored; needs an operator.
//   - anything wrapping domain.ErrTokenStore or domain.ErrPersistence raised
//     before the durable step; nothing was deleted.
func (d *UserDeletion) DeleteUser(ctx context.Context, userID string) (bool, error) {
	log := d.log.With().Str("user_id", userID).Logger()

	auths, err := d.sessions.FindAllByUserID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("delete user %s: load sessions: %w", userID, err)
	}

	// 1. Deactivate in the index.
	deactivated := make([]domain.TokenPair, 0, len(auths))
	for _, pair := range domain.Pairs(auths) {
		if err := d.index.Delete(ctx, pair); err != nil {
			if restoreErr := d.restore(ctx, deactivated); restoreErr != nil {
				return false, d.compensationFailed(ctx, log, userID, auths, err, restoreErr)
			}
			metrics.UserDeletionsTotal.WithLabelValues("index_unavailable").Inc()
			return false, fmt.Errorf("delete user %s: deactivate sessions: %w", userID, err)
		}
		deactivated = append(deactivated, pair)
	}

	// 2. Remove sessions and user in one transaction.
	known := make(map[string]struct{}, len(auths))
	for _, a := range auths {
		known[a.ID] = struct{}{}
	}
	var removed int
	err = d.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := d.users.LockByID(ctx, userID); err != nil {
			return err
		}
		deleted, err := d.sessions.DeleteAllByUserID(ctx, userID)
		if err != nil {
			return err
		}
		removed = len(deleted)
		for _, a := range deleted {
			if _, ok := known[a.ID]; ok {
				continue
			}
			if err := d.index.Delete(ctx, a.Tokens); err != nil {
				return fmt.Errorf("deactivate late session %s: %w", a.ID, err)
			}
			deactivated = append(deactivated, a.Tokens)
			auths = append(auths, a)
			known[a.ID] = struct{}{}
			log.Debug().Str("session_id", a.ID).Msg("session opened during deletion, deactivated")
		}
		return d.users.DeleteByID(ctx, userID)
	})
	if err == nil {
		metrics.UserDeletionsTotal.WithLabelValues("deleted").Inc()
		metrics.RevocationsTotal.WithLabelValues("user_deleted").Add(float64(removed))
		log.Info().Int("sessions", removed).Msg("user deleted")
		return true, nil
	}

	// 3. Compensate: the rows are still there, so the index must say so too.
	if restoreErr := d.restore(ctx, deactivated); restoreErr != nil {
		return false, d.compensationFailed(ctx, log, userID, auths, err, restoreErr)
	}

	if errors.Is(err, domain.ErrUserNotFound) {
		metrics.UserDeletionsTotal.WithLabelValues("not_found").Inc()
		log.Debug().Msg("user not found, nothing deleted")
		return false, nil
	}

	metrics.UserDeletionsTotal.WithLabelValues("rolled_back").Inc()
	log.Warn().Err(err).Int("restored", len(deactivated)).Msg("user deletion rolled back, index restored")
	return false, &domain.DeletionError{UserID: userID, Restored: len(deactivated), Cause: err}
}

// restore re-indexes pairs. It runs detached from the caller's cancellation
// so an aborted request cannot leave the index emptied. A pair whose session
// was revoked in the meantime is taken out again.
func (d *UserDeletion) restore(ctx context.Context, pairs []domain.TokenPair) error {
	if len(pairs) == 0 {
		return nil
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var errs []error
	for _, pair := range pairs {
		if err := d.index.Save(rctx, pair); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := d.sessions.FindByAccessToken(rctx, pair.Access.Raw); errors.Is(err, domain.ErrSessionNotFound) {
			if err := d.index.Delete(rctx, pair); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (d *UserDeletion) compensationFailed(
	ctx context.Context,
	log zerolog.Logger,
	userID string,
	auths []domain.StoredAuthentication,
	cause, restoreErr error,
) error {
	cerr := &domain.CompensationError{
		UserID:     userID,
		SessionIDs: domain.SessionIDs(auths),
		Cause:      cause,
		RestoreErr: restoreErr,
	}

	metrics.UserDeletionsTotal.WithLabelValues("compensation_failed").Inc()
	metrics.CompensationFailuresTotal.Inc()
	log.Error().
		Err(cerr).
		Strs("session_ids", cerr.SessionIDs).
		Bool("operator_action_required", true).
		Msg("user deletion compensation failed, token index and session store disagree")

	if d.incidents != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		err := d.incidents.Record(rctx, domain.Incident{
			Kind:       domain.IncidentCompensationFailed,
			UserID:     userID,
			SessionIDs: cerr.SessionIDs,
			Cause:      cause.Error(),
			RestoreErr: restoreErr.Error(),
			OccurredAt: d.now().UTC(),
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to record compensation incident")
		}
	}

	return cerr
}
