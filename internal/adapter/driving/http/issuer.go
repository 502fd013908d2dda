package httphandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/credrelay/internal/application"
	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// IssuerHandler serves the issuance API.
type IssuerHandler struct {
	svc    *application.IssuanceService
	logger *slog.Logger
}

// NewIssuerHandler creates an IssuerHandler.
func NewIssuerHandler(svc *application.IssuanceService, logger *slog.Logger) *IssuerHandler {
	return &IssuerHandler{svc: svc, logger: logger}
}

// Issue persists a new credential and responds without waiting for replication.
func (h *IssuerHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	data, ok := parseData(req.Data)
	if !ok {
		writeError(w, http.StatusBadRequest, msgMissingData)
		return
	}

	res, err := h.svc.Issue(r.Context(), data)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrMissingData):
			writeError(w, http.StatusBadRequest, msgMissingData)
		case errors.Is(err, application.ErrDuplicateCredential):
			writeError(w, http.StatusConflict, msgDuplicate)
		default:
			h.logger.Error("failed to issue credential", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	writeJSON(w, http.StatusCreated, IssueResponse{
		Success:    true,
		Message:    fmt.Sprintf("Credential issued by %s", res.WorkerID),
		Credential: toCredentialResponse(res.Credential),
		WorkerID:   res.WorkerID,
	})
}

// parseData accepts only a JSON object. Absent, null and non-object payloads
// are all treated as missing data.
func parseData(raw json.RawMessage) (model.Data, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var data model.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false
	}
	return data, true
}

// GetCredential returns a single credential by id.
func (h *IssuerHandler) GetCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	cred, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, application.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, msgNotFound)
			return
		}
		h.logger.Error("failed to get credential", "credential_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, GetCredentialResponse{
		Success:    true,
		Credential: toCredentialResponse(cred),
	})
}

// CredentialExists answers HEAD /credential/{id} with 200 or 404 and no body.
func (h *IssuerHandler) CredentialExists(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ok, err := h.svc.Exists(r.Context(), id)
	switch {
	case err != nil:
		h.logger.Error("failed to check credential", "credential_id", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListCredentials returns every issued credential.
func (h *IssuerHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, ListCredentialsResponse{
		Success:     true,
		Credentials: toCredentialResponses(creds),
		Count:       len(creds),
	})
}

// ClearCredentials deletes every credential and resets the worker sequence.
func (h *IssuerHandler) ClearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear credentials", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "All credentials cleared.",
	})
}

// Resync pushes the full credential set to the verifier.
func (h *IssuerHandler) Resync(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Resync(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, application.ErrNoVerifier):
			writeError(w, http.StatusServiceUnavailable, msgNoVerifier)
		case errors.Is(err, application.ErrVerifierRejected):
			h.logger.Error("resync push failed", "error", err)
			writeError(w, http.StatusBadGateway, msgResyncFailed)
		default:
			h.logger.Error("resync failed", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	writeJSON(w, http.StatusOK, ResyncResponse{
		Success: true,
		Message: fmt.Sprintf("Resynced %d credentials.", n),
		Count:   n,
	})
}
