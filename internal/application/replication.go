package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
	"github.com/ericfisherdev/credrelay/internal/metrics"
)

// DirectReplicator pushes each issued credential to the verifier from its own
// goroutine. Failures are logged and dropped; the outbox mode or an explicit
// resync is the recovery path.
type DirectReplicator struct {
	pusher  driven.CredentialPusher
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDirectReplicator creates a DirectReplicator that bounds each push by timeout.
func NewDirectReplicator(
	pusher driven.CredentialPusher,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *DirectReplicator {
	return &DirectReplicator{
		pusher:  pusher,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Replicate starts a background merge push of cred and returns immediately.
func (r *DirectReplicator) Replicate(cred model.Credential) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Detached from the request context so the push outlives the response.
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		err := r.pusher.Push(ctx, []model.Credential{cred}, model.SyncMerge)
		r.metrics.ObservePush(string(model.SyncMerge), 1, err)
		if err != nil {
			r.logger.Error("replication push failed",
				"credential_id", cred.ID,
				"error", err,
			)
			return
		}
		r.logger.Debug("credential replicated", "credential_id", cred.ID)
	}()
}

// Wait blocks until every in-flight push has finished.
func (r *DirectReplicator) Wait() {
	r.wg.Wait()
}
