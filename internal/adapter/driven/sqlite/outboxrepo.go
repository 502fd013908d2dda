package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OutboxStore = (*OutboxRepo)(nil)

// OutboxRepo is the SQLite implementation of the OutboxStore port. Rows are
// written by CredentialRepo.Issue; OutboxRepo only reads and settles them.
type OutboxRepo struct {
	db *DB
}

// NewOutboxRepo creates a new OutboxRepo backed by the given DB.
func NewOutboxRepo(db *DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// FetchPending returns up to limit undelivered entries with their credentials,
// oldest first.
func (r *OutboxRepo) FetchPending(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	const query = `SELECT o.id, o.created_at, o.attempts, o.last_error,
			c.id, c.data, c.issued_at, c.issued_by, c.status
		FROM replication_outbox o
		JOIN credentials c ON c.id = o.credential_id
		WHERE o.delivered_at IS NULL
		ORDER BY o.created_at, o.rowid
		LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []model.OutboxEntry
	for rows.Next() {
		var (
			entry     model.OutboxEntry
			createdAt string
		)
		cred, err := scanCredential(scannerFunc(func(dest ...any) error {
			return rows.Scan(append([]any{&entry.ID, &createdAt, &entry.Attempts, &entry.LastError}, dest...)...)
		}))
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entry.Credential = cred

		entry.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for outbox entry %s: %w", entry.ID, err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}

	return entries, nil
}

// MarkDelivered stamps delivered_at on the given entries.
func (r *OutboxRepo) MarkDelivered(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE replication_outbox SET delivered_at = ?, attempts = attempts + 1, last_error = ''
		WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{formatTime(at)}, anyArgs(ids)...)

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark %d outbox entries delivered: %w", len(ids), err)
	}
	return nil
}

// MarkFailed increments the attempt count and records reason on the given entries.
func (r *OutboxRepo) MarkFailed(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE replication_outbox SET attempts = attempts + 1, last_error = ?
		WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{reason}, anyArgs(ids)...)

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark %d outbox entries failed: %w", len(ids), err)
	}
	return nil
}

// CountPending returns the number of undelivered entries.
func (r *OutboxRepo) CountPending(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM replication_outbox WHERE delivered_at IS NULL`

	var n int64
	if err := r.db.Reader.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	return n, nil
}

// scannerFunc adapts a closure to rowScanner so joined rows can prepend their
// own columns before the credential columns.
type scannerFunc func(dest ...any) error

func (f scannerFunc) Scan(dest ...any) error { return f(dest...) }
