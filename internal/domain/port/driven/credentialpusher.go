package driven

import (
	"context"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// CredentialPusher delivers a batch of credentials to the verifier's sync
// endpoint. A nil error means the verifier acknowledged the batch with a 2xx.
type CredentialPusher interface {
	Push(ctx context.Context, creds []model.Credential, mode model.SyncMode) error
}
