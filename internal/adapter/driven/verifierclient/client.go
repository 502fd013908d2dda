// Package verifierclient pushes replicated credentials to the verifier's sync endpoint.
package verifierclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialPusher = (*Client)(nil)

// maxErrorBody caps how much of a failed response is kept for the error message.
const maxErrorBody = 512

// SyncRequest is the body of POST /sync. Credentials is a pointer so that a
// body without the field decodes differently from an empty batch.
type SyncRequest struct {
	Credentials *[]model.Credential `json:"credentials"`
	Mode        string              `json:"mode,omitempty"`
}

// StatusError is returned when the verifier answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("verifier sync returned %d: %s", e.StatusCode, e.Body)
}

// Client implements driven.CredentialPusher over HTTP.
type Client struct {
	http    *http.Client
	syncURL string
}

// New creates a Client for the verifier at baseURL. timeout bounds each push,
// including connection setup; an expired push is an ordinary error.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	return NewWithHTTPClient(&http.Client{Timeout: timeout}, baseURL)
}

// NewWithHTTPClient creates a Client with a caller-supplied http.Client.
// Intended for tests that inject an httptest server's client.
func NewWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing verifier URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("verifier URL %q must be http or https", baseURL)
	}

	return &Client{
		http:    httpClient,
		syncURL: u.JoinPath("sync").String(),
	}, nil
}

// Push sends creds as one batch. A nil error means the verifier replied 2xx.
func (c *Client) Push(ctx context.Context, creds []model.Credential, mode model.SyncMode) error {
	if creds == nil {
		creds = []model.Credential{}
	}

	body, err := json.Marshal(SyncRequest{Credentials: &creds, Mode: string(mode)})
	if err != nil {
		return fmt.Errorf("encode sync batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.syncURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push %d credentials: %w", len(creds), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
