// Package memcache holds the verifier's in-memory replica of issued credentials.
package memcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/credrelay/internal/domain/model"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialCache = (*Cache)(nil)

// Cache is the verifier's replica of the issuer's credential set. It supports
// point lookup by id and content lookup through a fingerprint index. The
// replica is only ever written by sync batches; it never originates credentials.
type Cache struct {
	// writeMu orders sync batches so memory and snapshot change in the same order.
	writeMu       sync.Mutex
	mu            sync.RWMutex
	byID          map[string]model.Credential
	byFingerprint map[string][]string // fingerprint -> credential ids
	canonical     map[string]string   // credential id -> canonical data
	snapshots     driven.SnapshotStore
	logger        *slog.Logger
}

// New creates an empty Cache. snapshots may be nil, in which case the replica
// is purely in-memory.
func New(snapshots driven.SnapshotStore, logger *slog.Logger) *Cache {
	return &Cache{
		byID:          make(map[string]model.Credential),
		byFingerprint: make(map[string][]string),
		canonical:     make(map[string]string),
		snapshots:     snapshots,
		logger:        logger,
	}
}

// Load restores the last persisted snapshot. It is best-effort: a missing or
// unreadable snapshot leaves the cache empty and is only logged.
func (c *Cache) Load(ctx context.Context) {
	if c.snapshots == nil {
		return
	}

	creds, err := c.snapshots.Load(ctx)
	if err != nil {
		c.logger.Warn("verification cache snapshot unavailable, starting empty", "error", err)
		return
	}

	c.mu.Lock()
	c.replaceLocked(creds)
	c.mu.Unlock()

	c.logger.Info("verification cache loaded", "credentials", len(creds))
}

// Sync replaces the entire cache with creds. A batch smaller than the current
// set shrinks the replica; callers that only want to add must use Merge.
// The in-memory replace always takes effect; a snapshot write failure is
// returned afterwards. The snapshot write outlives a cancelled request.
func (c *Cache) Sync(ctx context.Context, creds []model.Credential) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.replaceLocked(creds)
	c.mu.Unlock()

	if c.snapshots == nil {
		return nil
	}
	if err := c.snapshots.Replace(context.WithoutCancel(ctx), creds); err != nil {
		return fmt.Errorf("persist replaced snapshot: %w", err)
	}
	return nil
}

// Merge upserts creds by id and never removes existing entries.
func (c *Cache) Merge(ctx context.Context, creds []model.Credential) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	for _, cred := range creds {
		c.putLocked(cred)
	}
	c.mu.Unlock()

	if c.snapshots == nil {
		return nil
	}
	if err := c.snapshots.Upsert(context.WithoutCancel(ctx), creds); err != nil {
		return fmt.Errorf("persist merged snapshot: %w", err)
	}
	return nil
}

// VerifyByID is valid iff a credential with id is cached and issued.
func (c *Cache) VerifyByID(id string) model.Verdict {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cred, ok := c.byID[id]
	if !ok || !cred.Matchable() {
		return model.Verdict{}
	}
	return validVerdict(cred)
}

// VerifyByData is valid iff some issued credential has canonically equal data.
// Duplicates are not re-checked; if several match, any one of them is returned.
func (c *Cache) VerifyByData(data model.Data) model.Verdict {
	canonical, err := model.CanonicalJSON(data)
	if err != nil {
		return model.Verdict{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range c.byFingerprint[model.Fingerprint(canonical)] {
		cred := c.byID[id]
		if cred.Matchable() && c.canonical[id] == canonical {
			return validVerdict(cred)
		}
	}
	return model.Verdict{}
}

// List returns a copy of every cached credential.
func (c *Cache) List() []model.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()

	creds := make([]model.Credential, 0, len(c.byID))
	for _, cred := range c.byID {
		creds = append(creds, cred)
	}
	return creds
}

// Len returns the number of cached credentials.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func (c *Cache) replaceLocked(creds []model.Credential) {
	c.byID = make(map[string]model.Credential, len(creds))
	c.byFingerprint = make(map[string][]string, len(creds))
	c.canonical = make(map[string]string, len(creds))
	for _, cred := range creds {
		c.putLocked(cred)
	}
}

func (c *Cache) putLocked(cred model.Credential) {
	c.removeLocked(cred.ID)

	canonical, err := model.CanonicalJSON(cred.Data)
	if err != nil {
		// Still reachable by id, never by content.
		c.logger.Warn("cached credential has unserializable data", "credential_id", cred.ID, "error", err)
		c.byID[cred.ID] = cred
		return
	}

	fp := model.Fingerprint(canonical)
	c.byID[cred.ID] = cred
	c.canonical[cred.ID] = canonical
	c.byFingerprint[fp] = append(c.byFingerprint[fp], cred.ID)
}

func (c *Cache) removeLocked(id string) {
	canonical, ok := c.canonical[id]
	if !ok {
		delete(c.byID, id)
		return
	}

	fp := model.Fingerprint(canonical)
	ids := c.byFingerprint[fp]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(c.byFingerprint, fp)
	} else {
		c.byFingerprint[fp] = ids
	}
	delete(c.canonical, id)
	delete(c.byID, id)
}

func validVerdict(cred model.Credential) model.Verdict {
	return model.Verdict{Valid: true, Credential: &cred}
}
