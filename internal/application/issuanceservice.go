// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
	"github.com/ericfisherdev/credrelay/internal/metrics"
)

// Sentinel errors returned by IssuanceService.
var (
	// ErrMissingData indicates the issuance request carried no data payload.
	ErrMissingData = errors.New("credential data is required")

	// ErrDuplicateCredential indicates identical data was already issued.
	ErrDuplicateCredential = errors.New("credential with identical data has already been issued")

	// ErrCredentialNotFound indicates no credential has the requested id.
	ErrCredentialNotFound = errors.New("credential not found")
)

// Replicator propagates a freshly issued credential to the verifier. It must
// return immediately; delivery happens in the background.
type Replicator interface {
	Replicate(cred model.Credential)
}

// queuedReplicator is a Replicator that pushes from a persisted queue and can
// hold off its drains while the store is cleared.
type queuedReplicator interface {
	Exclusive(fn func() error) error
}

// IssueResult is a successfully issued credential and the worker that issued it.
type IssueResult struct {
	Credential model.Credential
	WorkerID   string
}

// IssuanceService is the source of truth for issuance. The duplicate check,
// worker id assignment and persistence run as one critical section so that
// concurrent requests with identical data cannot both succeed.
type IssuanceService struct {
	mu         sync.Mutex
	store      driven.CredentialStore
	replicator Replicator
	pusher     driven.CredentialPusher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewIssuanceService creates a new IssuanceService. pusher is used only for
// explicit full resyncs and may be nil when no verifier is configured.
func NewIssuanceService(
	store driven.CredentialStore,
	replicator Replicator,
	pusher driven.CredentialPusher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *IssuanceService {
	return &IssuanceService{
		store:      store,
		replicator: replicator,
		pusher:     pusher,
		metrics:    m,
		logger:     logger,
	}
}

// Issue validates data, rejects duplicates, assigns a worker id, persists the
// credential and schedules replication. It returns once the credential is
// durable; replication is never awaited.
func (s *IssuanceService) Issue(ctx context.Context, data model.Data) (IssueResult, error) {
	if data == nil {
		return IssueResult{}, ErrMissingData
	}

	s.mu.Lock()
	result, err := s.issueLocked(ctx, data)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrDuplicateCredential) {
			s.metrics.IncDuplicate()
		}
		return IssueResult{}, err
	}

	s.metrics.IncIssued()
	s.logger.Info("credential issued",
		"credential_id", result.Credential.ID,
		"worker_id", result.WorkerID,
	)

	if s.replicator != nil {
		s.replicator.Replicate(result.Credential)
	}

	return result, nil
}

func (s *IssuanceService) issueLocked(ctx context.Context, data model.Data) (IssueResult, error) {
	existing, err := s.store.FindByData(ctx, data)
	if err != nil {
		return IssueResult{}, fmt.Errorf("check duplicate: %w", err)
	}
	if existing != nil {
		return IssueResult{}, ErrDuplicateCredential
	}

	workerID, err := s.store.NextWorkerID(ctx)
	if err != nil {
		return IssueResult{}, err
	}

	cred, err := s.store.Issue(ctx, data, workerID)
	if err != nil {
		// Only reachable when another process writes the same database.
		if errors.Is(err, driven.ErrDuplicateData) {
			return IssueResult{}, ErrDuplicateCredential
		}
		return IssueResult{}, err
	}

	return IssueResult{Credential: cred, WorkerID: workerID}, nil
}

// Get returns the credential with the given id or ErrCredentialNotFound.
func (s *IssuanceService) Get(ctx context.Context, id string) (model.Credential, error) {
	cred, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Credential{}, err
	}
	if cred == nil {
		return model.Credential{}, ErrCredentialNotFound
	}
	return *cred, nil
}

// Exists reports whether a credential with the given id has been issued.
func (s *IssuanceService) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, id)
}

// List returns every issued credential.
func (s *IssuanceService) List(ctx context.Context) ([]model.Credential, error) {
	return s.store.ListAll(ctx)
}

// Clear deletes every credential and resets the worker sequence. The verifier
// is not told; a following Resync makes it converge.
func (s *IssuanceService) Clear(ctx context.Context) error {
	clearStore := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.store.ClearAll(ctx)
	}

	var err error
	if q, ok := s.replicator.(queuedReplicator); ok {
		err = q.Exclusive(clearStore)
	} else {
		err = clearStore()
	}
	if err != nil {
		return err
	}
	s.logger.Warn("credential store cleared")
	return nil
}

// Resync errors.
var (
	// ErrNoVerifier is returned when no verifier is configured.
	ErrNoVerifier = errors.New("no verifier configured")

	// ErrVerifierRejected wraps a failed push to the verifier.
	ErrVerifierRejected = errors.New("verifier rejected resync")
)

// Resync pushes the full credential set to the verifier as a replace batch,
// then merges anything issued while the replace was in flight so the replica
// cannot lose a credential to the race. It returns the number of credentials
// sent.
func (s *IssuanceService) Resync(ctx context.Context) (int, error) {
	if s.pusher == nil {
		return 0, ErrNoVerifier
	}

	s.mu.Lock()
	snapshot, err := s.store.ListAll(ctx)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	err = s.pusher.Push(ctx, snapshot, model.SyncReplace)
	s.metrics.ObservePush(string(model.SyncReplace), len(snapshot), err)
	if err != nil {
		return 0, fmt.Errorf("full resync: %w: %w", ErrVerifierRejected, err)
	}

	current, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	sent := make(map[string]bool, len(snapshot))
	for _, cred := range snapshot {
		sent[cred.ID] = true
	}
	var missed []model.Credential
	for _, cred := range current {
		if !sent[cred.ID] {
			missed = append(missed, cred)
		}
	}
	if len(missed) > 0 {
		err = s.pusher.Push(ctx, missed, model.SyncMerge)
		s.metrics.ObservePush(string(model.SyncMerge), len(missed), err)
		if err != nil {
			return 0, fmt.Errorf("resync catch-up: %w: %w", ErrVerifierRejected, err)
		}
	}

	total := len(snapshot) + len(missed)
	s.logger.Info("full resync complete", "credentials", total)
	return total, nil
}
