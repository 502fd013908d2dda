package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo persists the verifier's replica in the cache_snapshot table.
type SnapshotRepo struct {
	db  *DB
	now func() time.Time
}

// NewSnapshotRepo creates a new SnapshotRepo backed by the given DB.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Load returns every credential in the snapshot.
func (r *SnapshotRepo) Load(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT id, data, issued_at, issued_by, status FROM cache_snapshot ORDER BY issued_at, rowid`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}

	return creds, nil
}

// Replace rewrites the snapshot so it holds exactly creds.
func (r *SnapshotRepo) Replace(ctx context.Context, creds []model.Credential) error {
	return r.write(ctx, creds, true)
}

// Upsert inserts or overwrites creds by id, leaving other rows untouched.
func (r *SnapshotRepo) Upsert(ctx context.Context, creds []model.Credential) error {
	return r.write(ctx, creds, false)
}

func (r *SnapshotRepo) write(ctx context.Context, creds []model.Credential, truncate bool) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if truncate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_snapshot`); err != nil {
			return fmt.Errorf("truncate snapshot: %w", err)
		}
	}

	if err := upsertSnapshotRows(ctx, tx, creds, formatTime(r.now())); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func upsertSnapshotRows(ctx context.Context, tx *sql.Tx, creds []model.Credential, syncedAt string) error {
	const query = `INSERT INTO cache_snapshot (id, data, issued_at, issued_by, status, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			issued_at = excluded.issued_at,
			issued_by = excluded.issued_by,
			status = excluded.status,
			synced_at = excluded.synced_at`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	for _, cred := range creds {
		canonical, err := model.CanonicalJSON(cred.Data)
		if err != nil {
			return fmt.Errorf("snapshot credential %s: %w", cred.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			cred.ID, canonical, formatTime(cred.IssuedAt), cred.IssuedBy, string(cred.Status), syncedAt)
		if err != nil {
			return fmt.Errorf("snapshot credential %s: %w", cred.ID, err)
		}
	}
	return nil
}
