package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/api/metrics"
	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

const (
	defaultWorkers    = 4
	channelBuffer     = 256
	defaultMaxRetries = 5
)

// Dispatcher re-mirrors token pairs into the index when the first mirror at
// issuance failed. Pairs are sharded by user id so repairs for one user run
// in order on a single worker.
type Dispatcher struct {
	workers    []chan domain.TokenPair
	index      ports.TokenIndex
	sessions   ports.SessionStore
	newBackOff func() backoff.BackOff
	maxRetries uint64
	log        zerolog.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithBackOff replaces the retry schedule used for each pair.
func WithBackOff(newBackOff func() backoff.BackOff, maxRetries uint64) Option {
	return func(d *Dispatcher) {
		d.newBackOff = newBackOff
		d.maxRetries = maxRetries
	}
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, index ports.TokenIndex, sessions ports.SessionStore, log zerolog.Logger, opts ...Option) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan domain.TokenPair, numWorkers),
		index:    index,
		sessions: sessions,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		maxRetries: defaultMaxRetries,
		log:        log.With().Str("component", "mirror_dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.TokenPair, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands pair to the worker responsible for its user. It never blocks:
// when that worker's buffer is full the pair is dropped and logged.
func (d *Dispatcher) Enqueue(pair domain.TokenPair) {
	idx := d.shardIndex(pair.Access.UserID)
	select {
	case d.workers[idx] <- pair:
		metrics.MirrorQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
	default:
		metrics.MirrorRepairsTotal.WithLabelValues("queue_full").Inc()
		d.log.Warn().
			Str("user_id", pair.Access.UserID).
			Int("worker_id", idx).
			Msg("mirror repair queue full, pair dropped")
	}
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.TokenPair) {
	depth := metrics.MirrorQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case pair, ok := <-ch:
			if !ok {
				return
			}
			depth.Dec()
			d.repair(ctx, id, pair)
		}
	}
}

var errSessionGone = errors.New("session no longer stored")

func (d *Dispatcher) repair(ctx context.Context, workerID int, pair domain.TokenPair) {
	b := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.maxRetries), ctx)

	err := backoff.Retry(func() error {
		if err := d.confirm(ctx, pair); err != nil {
			return err
		}
		if err := d.index.Save(ctx, pair); err != nil {
			return err
		}
		// The session may have been revoked while the pair was being saved.
		return d.confirm(ctx, pair)
	}, b)

	switch {
	case err == nil:
		metrics.MirrorRepairsTotal.WithLabelValues("repaired").Inc()
		d.log.Info().Str("user_id", pair.Access.UserID).Int("worker_id", workerID).Msg("token pair mirrored into index")
	case errors.Is(err, errSessionGone):
		metrics.MirrorRepairsTotal.WithLabelValues("dropped").Inc()
		d.log.Debug().Str("user_id", pair.Access.UserID).Msg("session revoked before repair, skipped")
	default:
		metrics.MirrorRepairsTotal.WithLabelValues("failed").Inc()
		metrics.MirrorFailuresTotal.WithLabelValues("repair").Inc()
		d.log.Error().Err(err).
			Str("user_id", pair.Access.UserID).
			Int("worker_id", workerID).
			Msg("token pair mirror repair failed")
	}
}

// confirm checks that the session owning pair is still stored. When it is
// gone the pair is removed from the index and a permanent error is returned,
// so a revoked pair never comes back.
func (d *Dispatcher) confirm(ctx context.Context, pair domain.TokenPair) error {
	_, err := d.sessions.FindByAccessToken(ctx, pair.Access.Raw)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	if err := d.index.Delete(ctx, pair); err != nil {
		return err
	}
	return backoff.Permanent(errSessionGone)
}
