package httphandler_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/credrelay/internal/adapter/driving/http"
	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock implementations ---

type mockStore struct {
	mu    sync.Mutex
	seq   int64
	creds []model.Credential
	err   error
}

func (m *mockStore) NextWorkerID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.seq++
	return model.WorkerLabel(m.seq), nil
}

func (m *mockStore) Issue(_ context.Context, data model.Data, workerID string) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	if m.err != nil {
		return nil, m.err
	}
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
	if m.err != nil {
		return nil, m.err
	}
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
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.Credential{}, m.creds...), nil
}

func (m *mockStore) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.creds = nil
	m.seq = 0
	return nil
}

type mockPusher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockPusher) Push(_ context.Context, _ []model.Credential, _ model.SyncMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

type noopReplicator struct{}

func (noopReplicator) Replicate(model.Credential) {}

// do sends a request with an optional JSON body through h and returns the recorder.
func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postVerify(t *testing.T, srv *httptest.Server, body string) httphandler.VerifyResponse {
	t.Helper()

	resp, err := srv.Client().Post(srv.URL+"/verify", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return decodeBody[httphandler.VerifyResponse](t, raw)
}

// proxyTo forwards r to target and copies the response back.
func proxyTo(t *testing.T, target string, w http.ResponseWriter, r *http.Request) {
	t.Helper()

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target+r.URL.Path, r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	req.Header = r.Header.Clone()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// sameData compares payloads by canonical form, as the sqlite store does.
func sameData(a, b model.Data) bool {
	ca, errA := model.CanonicalJSON(a)
	cb, errB := model.CanonicalJSON(b)
	return errA == nil && errB == nil && ca == cb
}
