package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Data is stored in canonical form next to its fingerprint; a partial unique
// index on the fingerprint of issued rows enforces content uniqueness.
type CredentialRepo struct {
	db           *DB
	recordOutbox bool
	now          func() time.Time
}

// NewCredentialRepo creates a CredentialRepo. When recordOutbox is true every
// issuance also appends a replication_outbox row in the same transaction.
func NewCredentialRepo(db *DB, recordOutbox bool) *CredentialRepo {
	return &CredentialRepo{
		db:           db,
		recordOutbox: recordOutbox,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NextWorkerID atomically advances the worker sequence and returns "worker-<n>".
func (r *CredentialRepo) NextWorkerID(ctx context.Context) (string, error) {
	const query = `UPDATE worker_sequence SET value = value + 1 WHERE id = 1 RETURNING value`

	var seq int64
	if err := r.db.Writer.QueryRowContext(ctx, query).Scan(&seq); err != nil {
		return "", fmt.Errorf("advance worker sequence: %w", err)
	}
	return model.WorkerLabel(seq), nil
}

// Issue stores a new issued credential and returns it once the transaction has
// committed.
func (r *CredentialRepo) Issue(ctx context.Context, data model.Data, workerID string) (model.Credential, error) {
	canonical, fingerprint, normalized, err := canonicalize(data)
	if err != nil {
		return model.Credential{}, fmt.Errorf("issue credential: %w", err)
	}

	cred := model.Credential{
		ID:       uuid.NewString(),
		Data:     normalized,
		IssuedAt: r.now(),
		IssuedBy: workerID,
		Status:   model.StatusIssued,
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.Credential{}, fmt.Errorf("begin issue transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertCredential = `INSERT INTO credentials (id, data, fingerprint, issued_at, issued_by, status)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertCredential,
		cred.ID, canonical, fingerprint, formatTime(cred.IssuedAt), cred.IssuedBy, string(cred.Status))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") && strings.Contains(err.Error(), "fingerprint") {
			return model.Credential{}, fmt.Errorf("issue credential: %w", driven.ErrDuplicateData)
		}
		return model.Credential{}, fmt.Errorf("insert credential %s: %w", cred.ID, err)
	}

	if r.recordOutbox {
		const insertOutbox = `INSERT INTO replication_outbox (id, credential_id, created_at) VALUES (?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insertOutbox, uuid.NewString(), cred.ID, formatTime(cred.IssuedAt)); err != nil {
			return model.Credential{}, fmt.Errorf("append outbox entry for %s: %w", cred.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Credential{}, fmt.Errorf("commit credential %s: %w", cred.ID, err)
	}

	return cred, nil
}

// Get retrieves a credential by id. Returns nil, nil if it does not exist.
func (r *CredentialRepo) Get(ctx context.Context, id string) (*model.Credential, error) {
	const query = `SELECT id, data, issued_at, issued_by, status FROM credentials WHERE id = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", id, err)
	}
	return &cred, nil
}

// Exists reports whether a credential with the given id has been stored.
func (r *CredentialRepo) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM credentials WHERE id = ?)`

	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check credential %s: %w", id, err)
	}
	return exists, nil
}

// FindByData returns the issued credential whose data is canonically equal to
// data, or nil, nil if there is none. The fingerprint narrows the lookup and
// the canonical form confirms equality.
func (r *CredentialRepo) FindByData(ctx context.Context, data model.Data) (*model.Credential, error) {
	canonical, fingerprint, _, err := canonicalize(data)
	if err != nil {
		return nil, fmt.Errorf("find credential by data: %w", err)
	}

	const query = `SELECT id, data, issued_at, issued_by, status FROM credentials
		WHERE fingerprint = ? AND data = ? AND status = 'issued'`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, fingerprint, canonical))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find credential by data: %w", err)
	}
	return &cred, nil
}

// ListAll returns every stored credential in issuance order.
func (r *CredentialRepo) ListAll(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT id, data, issued_at, issued_by, status FROM credentials ORDER BY issued_at, rowid`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// ClearAll removes every credential and outbox entry and resets the worker
// sequence to zero in one transaction.
func (r *CredentialRepo) ClearAll(ctx context.Context) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`DELETE FROM replication_outbox`,
		`DELETE FROM credentials`,
		`UPDATE worker_sequence SET value = 0 WHERE id = 1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}
