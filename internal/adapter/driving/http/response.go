package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ericfisherdev/credrelay/internal/application"
	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Caller-facing messages.
const (
	msgInternal       = "Internal server error."
	msgInvalidBody    = "Invalid request body."
	msgBodyTooLarge   = "Request body too large."
	msgMissingData    = "Credential data is required."
	msgDuplicate      = "Credential with identical data has already been issued."
	msgNotFound       = "Credential not found."
	msgMissingVerify  = "Either credential id or data is required."
	msgNotArray       = "Credentials must be an array."
	msgNoVerifier     = "No verifier configured."
	msgResyncFailed   = "Verifier did not accept the resync."
	msgInvalidSyncCrd = "Every credential must have an id and a known status."
	msgUnknownMode    = "Sync mode must be \"replace\" or \"merge\"."
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"Internal server error."}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

// errBodyTooLarge is returned by decodeJSON when the body exceeds maxBodyBytes.
var errBodyTooLarge = errors.New("request body too large")

// decodeJSON decodes a size-limited JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// writeDecodeError maps a decodeJSON failure to a 400 or 413.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return
	}
	writeError(w, http.StatusBadRequest, msgInvalidBody)
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MessageResponse is a success body carrying only a message.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IssueRequest is the JSON body for POST /issue. Data stays raw so an absent
// or null payload can be told apart from an empty object.
type IssueRequest struct {
	Data json.RawMessage `json:"data"`
}

// IssueResponse is the 201 body for POST /issue.
type IssueResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Credential CredentialResponse `json:"credential"`
	WorkerID   string             `json:"workerId"`
}

// CredentialResponse is the JSON representation of a full credential.
type CredentialResponse struct {
	ID       string     `json:"id"`
	Data     model.Data `json:"data"`
	IssuedAt string     `json:"issuedAt"`
	IssuedBy string     `json:"issuedBy"`
	Status   string     `json:"status"`
}

// CredentialSummary is a credential without its data, as returned by /verify.
type CredentialSummary struct {
	ID       string `json:"id"`
	IssuedAt string `json:"issuedAt"`
	IssuedBy string `json:"issuedBy"`
	Status   string `json:"status"`
}

// GetCredentialResponse is the body for GET /credential/{id}.
type GetCredentialResponse struct {
	Success    bool               `json:"success"`
	Credential CredentialResponse `json:"credential"`
}

// ListCredentialsResponse is the body for GET /credentials.
type ListCredentialsResponse struct {
	Success     bool                 `json:"success"`
	Credentials []CredentialResponse `json:"credentials"`
	Count       int                  `json:"count"`
}

// ResyncResponse is the body for POST /admin/resync.
type ResyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// VerifyRequest is the JSON body for POST /verify.
type VerifyRequest struct {
	ID   *string    `json:"id,omitempty"`
	Data model.Data `json:"data,omitempty"`
}

// VerifyResponse is the body for POST /verify.
type VerifyResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	IsValid    bool               `json:"isValid"`
	Credential *CredentialSummary `json:"credential,omitempty"`
}

// SyncRequest is the JSON body for POST /sync. Credentials stays raw so a
// non-array value is rejected explicitly.
type SyncRequest struct {
	Credentials json.RawMessage `json:"credentials"`
	Mode        string          `json:"mode,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// toCredentialResponse converts a domain Credential to its JSON representation.
func toCredentialResponse(c model.Credential) CredentialResponse {
	data := c.Data
	if data == nil {
		data = model.Data{}
	}
	return CredentialResponse{
		ID:       c.ID,
		Data:     data,
		IssuedAt: formatTime(c.IssuedAt),
		IssuedBy: c.IssuedBy,
		Status:   string(c.Status),
	}
}

func toCredentialResponses(creds []model.Credential) []CredentialResponse {
	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}
	return resp
}

// toVerifyResponse converts a verification result, dropping credential data.
func toVerifyResponse(res application.VerifyResult) VerifyResponse {
	resp := VerifyResponse{
		Success: true,
		Message: res.Message,
		IsValid: res.Valid,
	}
	if res.Valid && res.Credential != nil {
		resp.Credential = &CredentialSummary{
			ID:       res.Credential.ID,
			IssuedAt: formatTime(res.Credential.IssuedAt),
			IssuedBy: res.Credential.IssuedBy,
			Status:   string(res.Credential.Status),
		}
	}
	return resp
}
