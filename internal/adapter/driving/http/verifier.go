package httphandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/credrelay/internal/application"
	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// VerifierHandler serves the verification API and the replication endpoint.
type VerifierHandler struct {
	svc    *application.VerificationService
	logger *slog.Logger
}

// NewVerifierHandler creates a VerifierHandler.
func NewVerifierHandler(svc *application.VerificationService, logger *slog.Logger) *VerifierHandler {
	return &VerifierHandler{svc: svc, logger: logger}
}

// Verify checks a credential by id or by data. A negative verdict is still 200.
func (h *VerifierHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.svc.Verify(r.Context(), application.VerifyRequest{ID: req.ID, Data: req.Data})
	if err != nil {
		if errors.Is(err, application.ErrMissingVerifyInput) {
			writeError(w, http.StatusBadRequest, msgMissingVerify)
			return
		}
		h.logger.Error("failed to verify credential", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, toVerifyResponse(res))
}

// Sync applies a credential batch pushed by the issuer.
func (h *VerifierHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	raw := bytes.TrimSpace(req.Credentials)
	if len(raw) == 0 || raw[0] != '[' {
		writeError(w, http.StatusBadRequest, msgNotArray)
		return
	}

	mode, err := model.ParseSyncMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgUnknownMode)
		return
	}

	var creds []model.Credential
	if err := json.Unmarshal(raw, &creds); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := h.svc.Sync(r.Context(), creds, mode); err != nil {
		if errors.Is(err, application.ErrInvalidSyncBatch) {
			writeError(w, http.StatusBadRequest, msgInvalidSyncCrd)
			return
		}
		h.logger.Error("failed to sync credentials", "mode", mode, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Credentials synced successfully.",
	})
}

// ListCredentials returns every credential in the replica.
func (h *VerifierHandler) ListCredentials(w http.ResponseWriter, _ *http.Request) {
	creds := h.svc.List()

	writeJSON(w, http.StatusOK, ListCredentialsResponse{
		Success:     true,
		Credentials: toCredentialResponses(creds),
		Count:       len(creds),
	})
}
