package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
)

func TestCredentialRepo_NextWorkerIDSequential(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		id, err := repo.NextWorkerID(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("worker-%d", i), id)
	}
}

func TestCredentialRepo_NextWorkerIDConcurrentNoRepeats(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := repo.NextWorkerID(ctx)
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	want := make([]string, n)
	for i := range n {
		want[i] = fmt.Sprintf("worker-%d", i+1)
	}
	sort.Strings(ids)
	sort.Strings(want)
	assert.Equal(t, want, ids)
}

func TestCredentialRepo_IssueAndGet(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)
	ctx := context.Background()

	cred, err := repo.Issue(ctx, model.Data{"userId": "u1", "role": "admin", "level": 3}, "worker-1")
	require.NoError(t, err)

	assert.NotEmpty(t, cred.ID)
	assert.Equal(t, "worker-1", cred.IssuedBy)
	assert.Equal(t, model.StatusIssued, cred.Status)
	assert.False(t, cred.IssuedAt.IsZero())

	got, err := repo.Get(ctx, cred.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cred, *got)
	assert.Equal(t, float64(3), got.Data["level"])
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)

	got, err := repo.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialRepo_Exists(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)
	ctx := context.Background()

	cred, err := repo.Issue(ctx, model.Data{"k": "v"}, "worker-1")
	require.NoError(t, err)

	ok, err := repo.Exists(ctx, cred.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialRepo_IssueDuplicateRejectedByConstraint(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)
	ctx := context.Background()

	_, err := repo.Issue(ctx, model.Data{"userId": "u1", "role": "admin"}, "worker-1")
	require.NoError(t, err)

	// Same content, different key order.
	_, err = repo.Issue(ctx, model.Data{"role": "admin", "userId": "u1"}, "worker-2")
	require.ErrorIs(t, err, driven.ErrDuplicateData)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCredentialRepo_FindByData(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)
	ctx := context.Background()

	cred, err := repo.Issue(ctx, model.Data{"userId": "u1", "scopes": []string{"a", "b"}}, "worker-1")
	require.NoError(t, err)

	found, err := repo.FindByData(ctx, model.Data{"scopes": []any{"a", "b"}, "userId": "u1"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, cred.ID, found.ID)

	missing, err := repo.FindByData(ctx, model.Data{"userId": "u2"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCredentialRepo_ListAllInIssuanceOrder(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, false)
	ctx := context.Background()

	empty, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	var ids []string
	for i := range 3 {
		cred, err := repo.Issue(ctx, model.Data{"n": i}, fmt.Sprintf("worker-%d", i+1))
		require.NoError(t, err)
		ids = append(ids, cred.ID)
	}

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, cred := range all {
		assert.Equal(t, ids[i], cred.ID)
	}
}

func TestCredentialRepo_ClearAllResetsSequence(t *testing.T) {
	db := setupTestDB(t, SchemaIssuer)
	repo := NewCredentialRepo(db, true)
	ctx := context.Background()

	workerID, err := repo.NextWorkerID(ctx)
	require.NoError(t, err)
	_, err = repo.Issue(ctx, model.Data{"k": "v"}, workerID)
	require.NoError(t, err)

	require.NoError(t, repo.ClearAll(ctx))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	pending, err := NewOutboxRepo(db).CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	workerID, err = repo.NextWorkerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", workerID)

	// Content that was cleared can be issued again.
	_, err = repo.Issue(ctx, model.Data{"k": "v"}, workerID)
	assert.NoError(t, err)
}

func TestCredentialRepo_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "issuer.db")

	db, err := NewDB(ctx, path)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db.Writer, SchemaIssuer))

	repo := NewCredentialRepo(db, false)
	workerID, err := repo.NextWorkerID(ctx)
	require.NoError(t, err)
	issued, err := repo.Issue(ctx, model.Data{"userId": "u1", "active": true}, workerID)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := NewDB(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	// Re-running migrations on an initialized database is a no-op.
	require.NoError(t, RunMigrations(reopened.Writer, SchemaIssuer))

	repo = NewCredentialRepo(reopened, false)
	got, err := repo.Get(ctx, issued.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, issued, *got)

	next, err := repo.NextWorkerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "worker-2", next, "sequence continues after restart")
}
