package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON reduces d to its canonical serialized form. Object keys are
// sorted at every depth (encoding/json does this for maps) and numbers are
// normalized through float64, so 1 and 1.0 compare equal. Two payloads are
// the same credential content iff their canonical forms are byte-equal.
func CanonicalJSON(d Data) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}

	// Round-trip through the generic representation so that typed Go values
	// (ints, []string, structs) collapse to the same shape JSON decoding yields.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("normalize data: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("marshal canonical data: %w", err)
	}
	return string(out), nil
}

// Fingerprint returns the hex SHA-256 of a canonical form. It is an index key
// only; equality is always confirmed against the canonical form itself.
func Fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
