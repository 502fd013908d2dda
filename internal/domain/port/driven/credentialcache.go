package driven

import (
	"context"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// CredentialCache defines the driven port for the verifier's replica.
// Sync replaces the whole replica; Merge upserts by id.
type CredentialCache interface {
	Sync(ctx context.Context, creds []model.Credential) error
	Merge(ctx context.Context, creds []model.Credential) error
	VerifyByID(id string) model.Verdict
	VerifyByData(data model.Data) model.Verdict
	List() []model.Credential
	Len() int
}
