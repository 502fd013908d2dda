package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
	"github.com/ericfisherdev/credrelay/internal/metrics"
)

const (
	defaultDrainInterval = 2 * time.Second
	defaultDrainBatch    = 100
	defaultPushTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
)

// ReplicationService drains the replication outbox into the verifier. Rows are
// written in the same transaction as the credential, so a crash between
// issuance and delivery only delays replication.
type ReplicationService struct {
	outbox      driven.OutboxStore
	pusher      driven.CredentialPusher
	interval    time.Duration
	batchSize   int
	pushTimeout time.Duration
	maxRetries  uint64
	newBackOff  func() backoff.BackOff
	metrics     *metrics.Metrics
	logger      *slog.Logger
	nudgeCh     chan struct{}
	now         func() time.Time

	// drainMu is read-held by every drain and write-held by Exclusive.
	drainMu sync.RWMutex
}

// ReplicationOption configures a ReplicationService.
type ReplicationOption func(*ReplicationService)

// WithInterval sets how often the outbox is drained without a nudge.
func WithInterval(d time.Duration) ReplicationOption {
	return func(s *ReplicationService) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize caps how many outbox rows are pushed per batch.
func WithBatchSize(n int) ReplicationOption {
	return func(s *ReplicationService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithPushTimeout bounds each push attempt.
func WithPushTimeout(d time.Duration) ReplicationOption {
	return func(s *ReplicationService) {
		if d > 0 {
			s.pushTimeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed push is retried within one drain.
func WithMaxRetries(n uint64) ReplicationOption {
	return func(s *ReplicationService) {
		s.maxRetries = n
	}
}

// WithBackOff overrides the retry schedule. Tests use backoff.ZeroBackOff.
func WithBackOff(newBackOff func() backoff.BackOff) ReplicationOption {
	return func(s *ReplicationService) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) ReplicationOption {
	return func(s *ReplicationService) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReplicationOption {
	return func(s *ReplicationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewReplicationService creates a ReplicationService.
func NewReplicationService(
	outbox driven.OutboxStore,
	pusher driven.CredentialPusher,
	opts ...ReplicationOption,
) *ReplicationService {
	s := &ReplicationService{
		outbox:      outbox,
		pusher:      pusher,
		interval:    defaultDrainInterval,
		batchSize:   defaultDrainBatch,
		pushTimeout: defaultPushTimeout,
		maxRetries:  defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger:  slog.Default(),
		nudgeCh: make(chan struct{}, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Replicate wakes the drainer. The credential itself is already queued in the
// outbox by the store, so a dropped nudge only waits for the next tick.
func (s *ReplicationService) Replicate(_ model.Credential) {
	select {
	case s.nudgeCh <- struct{}{}:
	default:
	}
}

// Start drains once immediately, then on every tick or nudge. Start blocks
// until the context is canceled.
func (s *ReplicationService) Start(ctx context.Context) {
	s.drainAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("replication service stopped")
			return
		case <-ticker.C:
			s.drainAll(ctx)
		case <-s.nudgeCh:
			s.drainAll(ctx)
		}
	}
}

// drainAll keeps draining full batches until the outbox is empty or a batch fails.
func (s *ReplicationService) drainAll(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := s.DrainOnce(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("outbox drain failed", "error", err)
			}
			return
		}
		if n < s.batchSize {
			return
		}
	}
}

// DrainOnce pushes one batch of pending outbox rows as a merge and records the
// outcome. It returns the number of credentials delivered.
func (s *ReplicationService) DrainOnce(ctx context.Context) (int, error) {
	s.drainMu.RLock()
	defer s.drainMu.RUnlock()

	entries, err := s.outbox.FetchPending(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending outbox: %w", err)
	}
	if len(entries) == 0 {
		s.refreshPending(ctx)
		return 0, nil
	}

	ids := make([]string, len(entries))
	creds := make([]model.Credential, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		creds[i] = e.Credential
	}

	operation := func() error {
		pushCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
		defer cancel()
		return s.pusher.Push(pushCtx, creds, model.SyncMerge)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("replication push failed, retrying",
			"batch", len(creds),
			"retry_in", wait,
			"error", err,
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx)
	pushErr := backoff.RetryNotify(operation, b, notify)
	s.metrics.ObservePush(string(model.SyncMerge), len(creds), pushErr)

	if pushErr != nil {
		if err := s.outbox.MarkFailed(ctx, ids, pushErr.Error()); err != nil {
			s.logger.Error("mark outbox failed", "error", err)
		}
		s.refreshPending(ctx)
		return 0, fmt.Errorf("push outbox batch: %w", pushErr)
	}

	if err := s.outbox.MarkDelivered(ctx, ids, s.now().UTC()); err != nil {
		return 0, fmt.Errorf("mark outbox delivered: %w", err)
	}
	s.refreshPending(ctx)

	s.logger.Debug("outbox batch delivered", "batch", len(creds))
	return len(creds), nil
}

// Exclusive runs fn once no drain is in flight and holds off new drains until
// fn returns. A batch fetched before a store clear is therefore never pushed
// after it.
func (s *ReplicationService) Exclusive(fn func() error) error {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()
	return fn()
}

func (s *ReplicationService) refreshPending(ctx context.Context) {
	n, err := s.outbox.CountPending(ctx)
	if err != nil {
		s.logger.Warn("count pending outbox", "error", err)
		return
	}
	s.metrics.SetPending(n)
}
