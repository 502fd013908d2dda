package application_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock implementations ---

type mockStore struct {
	mu       sync.Mutex
	seq      int64
	creds    []model.Credential
	issueErr error
	listErr  error
	// onList runs after each ListAll snapshot is taken.
	onList func(call int)
	lists  int
	// onClear runs inside ClearAll.
	onClear func()
}

func (m *mockStore) NextWorkerID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return model.WorkerLabel(m.seq), nil
}

func (m *mockStore) Issue(_ context.Context, data model.Data, workerID string) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issueErr != nil {
		return model.Credential{}, m.issueErr
	}
	cred := model.Credential{
		ID:       fmt.Sprintf("cred-%d", len(m.creds)+1),
		Data:     data,
		IssuedAt: time.Date(2026, 3, 4, 15, 4, 5, 0, time.UTC),
		IssuedBy: workerID,
		Status:   model.StatusIssued,
	}
	m.creds = append(m.creds, cred)
	return cred, nil
}

func (m *mockStore) Get(_ context.Context, id string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.creds {
		if m.creds[i].ID == id {
			c := m.creds[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockStore) Exists(ctx context.Context, id string) (bool, error) {
	c, err := m.Get(ctx, id)
	return c != nil, err
}

func (m *mockStore) FindByData(_ context.Context, data model.Data) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.creds {
		if sameData(m.creds[i].Data, data) {
			c := m.creds[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ListAll(_ context.Context) ([]model.Credential, error) {
	m.mu.Lock()
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, m.listErr
	}
	out := make([]model.Credential, len(m.creds))
	copy(out, m.creds)
	m.lists++
	call := m.lists
	hook := m.onList
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return out, nil
}

func (m *mockStore) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	m.seq = 0
	if m.onClear != nil {
		m.onClear()
	}
	return nil
}

var _ driven.CredentialStore = (*mockStore)(nil)

type pushCall struct {
	Creds []model.Credential
	Mode  model.SyncMode
}

type mockPusher struct {
	mu    sync.Mutex
	calls []pushCall
	// failures is the number of leading calls that fail.
	failures int
	err      error
	onPush   func(call int)
}

func (m *mockPusher) Push(_ context.Context, creds []model.Credential, mode model.SyncMode) error {
	m.mu.Lock()
	m.calls = append(m.calls, pushCall{Creds: creds, Mode: mode})
	n := len(m.calls)
	hook := m.onPush
	fail := m.err != nil || n <= m.failures
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail {
		if m.err != nil {
			return m.err
		}
		return errors.New("verifier unavailable")
	}
	return nil
}

func (m *mockPusher) Calls() []pushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pushCall, len(m.calls))
	copy(out, m.calls)
	return out
}

type mockReplicator struct {
	mu         sync.Mutex
	replicated []model.Credential
}

func (m *mockReplicator) Replicate(cred model.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replicated = append(m.replicated, cred)
}

type mockOutbox struct {
	mu        sync.Mutex
	pending   []model.OutboxEntry
	delivered []string
	failed    []string
	reasons   []string
	fetchErr  error
}

func (m *mockOutbox) FetchPending(_ context.Context, limit int) ([]model.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if limit > len(m.pending) {
		limit = len(m.pending)
	}
	out := make([]model.OutboxEntry, limit)
	copy(out, m.pending[:limit])
	return out, nil
}

func (m *mockOutbox) MarkDelivered(_ context.Context, ids []string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	m.delivered = append(m.delivered, ids...)
	remaining := m.pending[:0]
	for _, e := range m.pending {
		if !done[e.ID] {
			remaining = append(remaining, e)
		}
	}
	m.pending = remaining
	return nil
}

func (m *mockOutbox) MarkFailed(_ context.Context, ids []string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, ids...)
	m.reasons = append(m.reasons, reason)
	for i := range m.pending {
		m.pending[i].Attempts++
		m.pending[i].LastError = reason
	}
	return nil
}

func (m *mockOutbox) CountPending(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

func (m *mockOutbox) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

func (m *mockOutbox) Delivered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.delivered...)
}

func outboxEntries(n int) []model.OutboxEntry {
	entries := make([]model.OutboxEntry, n)
	for i := range entries {
		entries[i] = model.OutboxEntry{
			ID: fmt.Sprintf("ob-%d", i+1),
			Credential: model.Credential{
				ID:       fmt.Sprintf("cred-%d", i+1),
				Data:     model.Data{"n": float64(i + 1)},
				IssuedBy: model.WorkerLabel(int64(i + 1)),
				Status:   model.StatusIssued,
			},
		}
	}
	return entries
}

// sameData compares payloads by canonical form, as the sqlite store does.
func sameData(a, b model.Data) bool {
	ca, errA := model.CanonicalJSON(a)
	cb, errB := model.CanonicalJSON(b)
	return errA == nil && errB == nil && ca == cb
}
