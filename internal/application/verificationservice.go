package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
	"github.com/ericfisherdev/credrelay/internal/metrics"
)

// Sentinel errors returned by VerificationService.
var (
	// ErrMissingVerifyInput indicates a verify request with neither id nor data.
	ErrMissingVerifyInput = errors.New("either credential id or data is required")

	// ErrInvalidSyncBatch indicates a sync batch containing a credential
	// without an id or with an unknown status.
	ErrInvalidSyncBatch = errors.New("sync batch contains an invalid credential")
)

// NotValidMessage is returned for every negative verdict.
const NotValidMessage = "Credential not found or not valid."

// issuedAtLayout renders timestamps the way the presentation layer shows them.
const issuedAtLayout = "1/2/2006, 3:04:05 PM"

// VerifyRequest asks whether a credential is valid. ID takes precedence over Data.
type VerifyRequest struct {
	ID   *string
	Data model.Data
}

// VerifyResult is the outcome of a verification. Credential is set only when
// Valid is true.
type VerifyResult struct {
	Valid      bool
	Message    string
	Credential *model.Credential
}

// VerificationService answers verification requests against the replica cache
// and applies sync batches pushed by the issuer.
type VerificationService struct {
	cache   driven.CredentialCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(cache driven.CredentialCache, m *metrics.Metrics, logger *slog.Logger) *VerificationService {
	return &VerificationService{cache: cache, metrics: m, logger: logger}
}

// Verify looks the credential up by id when one is given, otherwise by exact
// data. A miss is a negative verdict, not an error.
func (s *VerificationService) Verify(_ context.Context, req VerifyRequest) (VerifyResult, error) {
	var (
		verdict model.Verdict
		method  string
	)
	switch {
	case req.ID != nil && *req.ID != "":
		method = "id"
		verdict = s.cache.VerifyByID(*req.ID)
	case req.Data != nil:
		method = "data"
		verdict = s.cache.VerifyByData(req.Data)
	default:
		return VerifyResult{}, ErrMissingVerifyInput
	}

	s.metrics.ObserveVerification(method, verdict.Valid)

	if !verdict.Valid || verdict.Credential == nil {
		return VerifyResult{Valid: false, Message: NotValidMessage}, nil
	}

	cred := verdict.Credential
	return VerifyResult{
		Valid:      true,
		Message:    ValidMessage(cred.IssuedBy, cred.IssuedAt),
		Credential: cred,
	}, nil
}

// ValidMessage builds the positive verdict message.
func ValidMessage(issuedBy string, issuedAt time.Time) string {
	return fmt.Sprintf("Credential is valid. Issued by %s on %s",
		issuedBy, issuedAt.UTC().Format(issuedAtLayout))
}

// Sync applies a batch pushed by the issuer. Replace discards the previous
// replica; merge upserts by id.
func (s *VerificationService) Sync(ctx context.Context, creds []model.Credential, mode model.SyncMode) error {
	for _, c := range creds {
		if c.ID == "" || !c.Status.Valid() {
			return ErrInvalidSyncBatch
		}
	}

	var err error
	switch mode {
	case model.SyncMerge:
		err = s.cache.Merge(ctx, creds)
	default:
		mode = model.SyncReplace
		err = s.cache.Sync(ctx, creds)
	}

	size := s.cache.Len()
	s.metrics.ObserveSync(string(mode), size)
	if err != nil {
		return fmt.Errorf("%s sync: %w", mode, err)
	}

	s.logger.Info("credentials synced", "mode", mode, "batch", len(creds), "cache_size", size)
	return nil
}

// List returns every credential in the replica.
func (s *VerificationService) List() []model.Credential {
	return s.cache.List()
}
