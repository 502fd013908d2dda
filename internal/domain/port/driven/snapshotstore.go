package driven

import (
	"context"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// SnapshotStore persists the verifier's replica so it survives a restart.
// Replace rewrites the whole snapshot; Upsert writes the given credentials by id.
type SnapshotStore interface {
	Load(ctx context.Context) ([]model.Credential, error)
	Replace(ctx context.Context, creds []model.Credential) error
	Upsert(ctx context.Context, creds []model.Credential) error
}
