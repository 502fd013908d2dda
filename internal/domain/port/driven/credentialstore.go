package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// ErrDuplicateData indicates an issued credential with canonically identical
// data already exists.
var ErrDuplicateData = errors.New("credential with identical data already issued")

// CredentialStore defines the driven port for the authoritative credential set.
//
// NextWorkerID advances the worker sequence and must be called once per
// issuance, before Issue. Issue persists durably before returning and returns
// ErrDuplicateData if the store's uniqueness constraint rejects the content.
// Get returns (nil, nil) when no credential has the given id. ClearAll removes
// every credential and resets the worker sequence to zero.
type CredentialStore interface {
	NextWorkerID(ctx context.Context) (string, error)
	Issue(ctx context.Context, data model.Data, workerID string) (model.Credential, error)
	Get(ctx context.Context, id string) (*model.Credential, error)
	Exists(ctx context.Context, id string) (bool, error)
	FindByData(ctx context.Context, data model.Data) (*model.Credential, error)
	ListAll(ctx context.Context) ([]model.Credential, error)
	ClearAll(ctx context.Context) error
}
