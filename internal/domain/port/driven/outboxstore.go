package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// OutboxStore defines the driven port for pending replication entries.
// Entries are appended by CredentialStore.Issue; this port only drains them.
type OutboxStore interface {
	// FetchPending returns up to limit undelivered entries, oldest first.
	FetchPending(ctx context.Context, limit int) ([]model.OutboxEntry, error)

	// MarkDelivered records that the verifier acknowledged the entries.
	MarkDelivered(ctx context.Context, ids []string, at time.Time) error

	// MarkFailed bumps the attempt counter and stores the last failure reason.
	MarkFailed(ctx context.Context, ids []string, reason string) error

	// CountPending returns the number of undelivered entries.
	CountPending(ctx context.Context) (int64, error)
}
