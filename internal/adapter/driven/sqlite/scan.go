package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCredential reads the id, data, issued_at, issued_by, status columns in
// that order.
func scanCredential(s rowScanner) (model.Credential, error) {
	var (
		cred     model.Credential
		data     string
		issuedAt string
		status   string
	)
	if err := s.Scan(&cred.ID, &data, &issuedAt, &cred.IssuedBy, &status); err != nil {
		return model.Credential{}, err
	}

	if err := json.Unmarshal([]byte(data), &cred.Data); err != nil {
		return model.Credential{}, fmt.Errorf("decode data for credential %s: %w", cred.ID, err)
	}

	t, err := parseTime(issuedAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse issued_at for credential %s: %w", cred.ID, err)
	}
	cred.IssuedAt = t
	cred.Status = model.Status(status)

	return cred, nil
}

// formatTime stores timestamps as RFC 3339 with nanoseconds so they round-trip exactly.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite, trying the formats this package
// writes first and SQLite's CURRENT_TIMESTAMP layout last.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// placeholders returns "?, ?, ?" for n bind parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// anyArgs converts ids to a bind argument slice.
func anyArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// canonicalize returns the canonical form of data, its fingerprint, and the
// data decoded back from the canonical form so that what callers get back from
// a write is exactly what a later read returns.
func canonicalize(data model.Data) (canonical, fingerprint string, normalized model.Data, err error) {
	canonical, err = model.CanonicalJSON(data)
	if err != nil {
		return "", "", nil, err
	}
	if err := json.Unmarshal([]byte(canonical), &normalized); err != nil {
		return "", "", nil, fmt.Errorf("decode canonical data: %w", err)
	}
	return canonical, model.Fingerprint(canonical), normalized, nil
}
