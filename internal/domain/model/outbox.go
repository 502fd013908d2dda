package model

import "time"

// OutboxEntry is a credential waiting to be replicated to the verifier. It is
// written in the same transaction as the credential it carries.
type OutboxEntry struct {
	ID         string
	Credential Credential
	CreatedAt  time.Time
	Attempts   int
	LastError  string
}
