package model

import (
	"fmt"
	"time"
)

// Status is the issuance state of a credential.
type Status string

const (
	StatusIssued  Status = "issued"
	StatusPending Status = "pending" // Reserved for multi-step issuance.
	StatusFailed  Status = "failed"  // Reserved for multi-step issuance.
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIssued, StatusPending, StatusFailed:
		return true
	default:
		return false
	}
}

// Data is the caller-supplied credential payload. Values are whatever JSON
// decoding produces: strings, float64 numbers, booleans, []any and nested maps.
type Data map[string]any

// Credential is an issued record. It is the only persisted entity and is
// shared verbatim between the issuer and the verifier, so the JSON tags are
// the replication wire format.
type Credential struct {
	ID       string    `json:"id"`
	Data     Data      `json:"data"`
	IssuedAt time.Time `json:"issuedAt"`
	IssuedBy string    `json:"issuedBy"`
	Status   Status    `json:"status"`
}

// Matchable reports whether the credential can satisfy a verification request.
func (c Credential) Matchable() bool {
	return c.Status == StatusIssued
}

// WorkerLabel formats a worker sequence number as "worker-<n>".
func WorkerLabel(seq int64) string {
	return fmt.Sprintf("worker-%d", seq)
}

// Verdict is the outcome of a verification lookup. Credential is set only
// when Valid is true.
type Verdict struct {
	Valid      bool
	Credential *Credential
}

// SyncMode selects how a verifier applies a replicated batch.
type SyncMode string

const (
	// SyncReplace discards the verifier's prior set in favor of the batch.
	SyncReplace SyncMode = "replace"
	// SyncMerge upserts the batch by credential id and never removes.
	SyncMerge SyncMode = "merge"
)

// ParseSyncMode maps the wire value to a SyncMode. An empty value is a full
// replace, which is what a bare sync call has always meant.
func ParseSyncMode(s string) (SyncMode, error) {
	switch SyncMode(s) {
	case "", SyncReplace:
		return SyncReplace, nil
	case SyncMerge:
		return SyncMerge, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}
