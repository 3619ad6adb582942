// Package cache holds the on-device view of remote entities: a map of synced
// server records replaced wholesale by each full sync, plus materialized
// local mutations fed in by the sync coordinator. The server stays
// authoritative; anything persisted here is disposable.
package cache

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Kunal9797/artissales-sub000/pkg/record"
	"github.com/Kunal9797/artissales-sub000/pkg/store"
)

// OrderFunc orders synced entities in List output. Local records always sort
// ahead of synced ones regardless of this function.
type OrderFunc func(a, b record.Entity) bool

// ByName orders entities lexicographically by display name, ID as tiebreak.
func ByName(a, b record.Entity) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// Cache is the entity cache for one signed-in identity.
type Cache struct {
	mu       sync.RWMutex
	store    store.Store
	identity string
	order    OrderFunc
	now      func() time.Time

	synced map[string]record.Entity
	locals map[string]record.PendingMutation
	meta   record.CacheMetadata
}

// Option customizes a Cache.
type Option func(*Cache)

// WithOrder sets the ordering of synced entities in List.
func WithOrder(order OrderFunc) Option {
	return func(c *Cache) { c.order = order }
}

// WithClock injects the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache scoped to identity. Call Load to hydrate it
// from the durable store.
func New(s store.Store, identity string, options ...Option) *Cache {
	c := &Cache{
		store:    s,
		identity: identity,
		order:    ByName,
		now:      time.Now,
		synced:   make(map[string]record.Entity),
		locals:   make(map[string]record.PendingMutation),
		meta:     record.CacheMetadata{OwnerIdentity: identity, SchemaVersion: record.SchemaVersion},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Load hydrates the cache from the durable store. A snapshot persisted under
// a different identity or schema version is wiped before loading; corrupt
// payloads degrade to an empty cache. Load never fails: the server remains
// authoritative, so anything unreadable here is a cache-miss.
func (c *Cache) Load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	metaRaw, err := c.store.Get(record.MetaKey(c.identity))
	if err == nil {
		meta, derr := record.DecodeMetadata(metaRaw)
		switch {
		case derr != nil:
			log.WithFields(log.Fields{"err": derr, "identity": c.identity}).
				Warn("cache metadata corrupt; starting empty")
			c.wipeLocked()
			return
		case meta.OwnerIdentity != c.identity:
			log.WithFields(log.Fields{"stored": meta.OwnerIdentity, "active": c.identity}).
				Info("cache owned by another identity; wiping")
			c.wipeStoredLocked(meta.OwnerIdentity)
			return
		case meta.SchemaVersion != record.SchemaVersion:
			log.WithFields(log.Fields{"stored": meta.SchemaVersion, "want": record.SchemaVersion}).
				Info("cache schema version mismatch; starting empty")
			c.wipeLocked()
			return
		default:
			c.meta = meta
		}
	} else if err != store.ErrKeyNotFound {
		log.WithFields(log.Fields{"err": err, "identity": c.identity}).
			Warn("cache metadata unreadable; starting empty")
		return
	}

	snapRaw, err := c.store.Get(record.SnapshotKey(c.identity))
	if err != nil {
		if err != store.ErrKeyNotFound {
			log.WithFields(log.Fields{"err": err, "identity": c.identity}).
				Warn("cache snapshot unreadable; starting empty")
		}
		return
	}
	entities, err := record.DecodeSnapshot(snapRaw)
	if err != nil {
		log.WithFields(log.Fields{"err": err, "identity": c.identity}).
			Warn("cache snapshot corrupt; starting empty")
		return
	}
	for _, e := range entities {
		c.synced[e.ID] = e
	}
}

// ReplaceAll atomically swaps the synced map with the given server list,
// persists the new snapshot, and stamps LastSyncedAt. This is the only way
// synced records enter the cache; there is no per-record merge.
func (c *Cache) ReplaceAll(entities []record.Entity) {
	fresh := make(map[string]record.Entity, len(entities))
	for _, e := range entities {
		fresh[e.ID] = e
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.synced = fresh
	ts := c.now()
	c.meta.LastSyncedAt = &ts

	if data, err := record.EncodeSnapshot(entities); err == nil {
		if err := c.store.Set(record.SnapshotKey(c.identity), data); err != nil {
			log.WithFields(log.Fields{"err": err, "identity": c.identity}).
				Warn("failed to persist cache snapshot")
		}
	}
	c.persistMetaLocked()
}

// SetLocal materializes a queue mutation into the cache view. Called by the
// sync coordinator on enqueue and on status transitions.
func (c *Cache) SetLocal(m record.PendingMutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locals[m.LocalID] = m
}

// DropLocal removes a materialized local record, after the mutation either
// succeeded or was explicitly abandoned.
func (c *Cache) DropLocal(localID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locals, localID)
}

// Get resolves an entity by server or local identifier.
func (c *Cache) Get(id string) (record.CacheRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.synced[id]; ok {
		return record.SyncedRecord(e), true
	}
	if m, ok := c.locals[id]; ok {
		return record.LocalRecord(m), true
	}
	return record.CacheRecord{}, false
}

// List returns the merged view: local records first, newest local write
// first, then synced records in the configured order.
func (c *Cache) List() []record.CacheRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]record.CacheRecord, 0, len(c.locals)+len(c.synced))

	locals := make([]record.PendingMutation, 0, len(c.locals))
	for _, m := range c.locals {
		locals = append(locals, m)
	}
	sort.Slice(locals, func(i, j int) bool {
		if !locals[i].CreatedAt.Equal(locals[j].CreatedAt) {
			return locals[i].CreatedAt.After(locals[j].CreatedAt)
		}
		return locals[i].LocalID > locals[j].LocalID
	})
	for _, m := range locals {
		out = append(out, record.LocalRecord(m))
	}

	synced := make([]record.Entity, 0, len(c.synced))
	for _, e := range c.synced {
		synced = append(synced, e)
	}
	sort.Slice(synced, func(i, j int) bool { return c.order(synced[i], synced[j]) })
	for _, e := range synced {
		out = append(out, record.SyncedRecord(e))
	}

	return out
}

// LastSyncedAt returns the time of the last successful full sync, or nil if
// none has completed for this identity.
func (c *Cache) LastSyncedAt() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta.LastSyncedAt == nil {
		return nil
	}
	ts := *c.meta.LastSyncedAt
	return &ts
}

// Meta returns a copy of the cache metadata.
func (c *Cache) Meta() record.CacheMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

// Wipe clears all in-memory and persisted state for the current identity.
// Used on logout.
func (c *Cache) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipeLocked()
}

func (c *Cache) wipeLocked() {
	c.wipeStoredLocked(c.identity)
}

// wipeStoredLocked deletes the persisted keys of the given identity and
// resets in-memory state to empty for the active one. Deleting the stale
// identity's pending queue here keeps cross-identity data from ever being
// loadable again.
func (c *Cache) wipeStoredLocked(storedIdentity string) {
	c.synced = make(map[string]record.Entity)
	c.locals = make(map[string]record.PendingMutation)
	c.meta = record.CacheMetadata{OwnerIdentity: c.identity, SchemaVersion: record.SchemaVersion}

	for _, key := range [][]byte{
		record.SnapshotKey(storedIdentity),
		record.MetaKey(storedIdentity),
		record.PendingKey(storedIdentity),
	} {
		if err := c.store.Delete(key); err != nil {
			log.WithFields(log.Fields{"err": err, "key": string(key)}).
				Warn("failed to delete cache key during wipe")
		}
	}
}

func (c *Cache) persistMetaLocked() {
	data, err := record.EncodeMetadata(c.meta)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("failed to encode cache metadata")
		return
	}
	if err := c.store.Set(record.MetaKey(c.identity), data); err != nil {
		log.WithFields(log.Fields{"err": err, "identity": c.identity}).
			Warn("failed to persist cache metadata")
	}
}
