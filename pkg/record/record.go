package record

import (
	"time"
)

// Entity is a domain record whose authoritative copy lives on the server.
// Beyond ID and the display Name, fields are opaque to the cache engine.
type Entity struct {
	ID     string         `msgpack:"id" json:"id"`
	Name   string         `msgpack:"name" json:"name"`
	Fields map[string]any `msgpack:"fields,omitempty" json:"fields,omitempty"`
}

// SyncState classifies how a cached record relates to the server.
type SyncState int

const (
	// StateSynced: the server copy, fetched by a full sync.
	StateSynced SyncState = iota
	// StatePending: created locally, awaiting server confirmation.
	StatePending
	// StateFailed: created locally, exhausted automatic retries.
	StateFailed
)

func (s SyncState) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MutationStatus is the queue-side state of a pending local creation.
type MutationStatus int

const (
	MutationPending MutationStatus = iota
	MutationSyncing
	MutationFailed
)

func (s MutationStatus) String() string {
	switch s {
	case MutationPending:
		return "pending"
	case MutationSyncing:
		return "syncing"
	case MutationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingMutation is a locally-created entity the server has not confirmed.
// LocalID addresses both the queue entry and its materialized cache record
// until the create succeeds and a full sync supersedes it.
type PendingMutation struct {
	LocalID    string         `msgpack:"local_id"`
	Payload    Entity         `msgpack:"payload"`
	Status     MutationStatus `msgpack:"status"`
	RetryCount int            `msgpack:"retry_count"`
	CreatedAt  time.Time      `msgpack:"created_at"`
	LastError  string         `msgpack:"last_error,omitempty"`
}

// CacheRecord is the tagged union the UI consumes: either a synced server
// entity or a materialized local mutation. Exactly one of the two arms is set.
type CacheRecord struct {
	state  SyncState
	entity Entity
	local  *PendingMutation
}

// SyncedRecord wraps a server-fetched entity.
func SyncedRecord(e Entity) CacheRecord {
	return CacheRecord{state: StateSynced, entity: e}
}

// LocalRecord materializes a queue mutation into a cache record. The record's
// state follows the mutation: Failed mutations surface as StateFailed,
// everything else (Pending, Syncing) renders optimistically as StatePending.
func LocalRecord(m PendingMutation) CacheRecord {
	state := StatePending
	if m.Status == MutationFailed {
		state = StateFailed
	}
	e := m.Payload
	e.ID = m.LocalID
	return CacheRecord{state: state, entity: e, local: &m}
}

// ID returns the server identifier for synced records, the local identifier
// otherwise.
func (r CacheRecord) ID() string {
	return r.entity.ID
}

func (r CacheRecord) State() SyncState {
	return r.state
}

// Entity returns the displayable entity. For local records the ID is the
// local identifier.
func (r CacheRecord) Entity() Entity {
	return r.entity
}

// CreatedLocally reports whether this record originated on-device.
func (r CacheRecord) CreatedLocally() bool {
	return r.local != nil
}

// LocalCreatedAt returns the device-side creation time of a local record, or
// the zero time for synced records.
func (r CacheRecord) LocalCreatedAt() time.Time {
	if r.local == nil {
		return time.Time{}
	}
	return r.local.CreatedAt
}

// SyncError returns the last sync error of a failed local record, or "".
func (r CacheRecord) SyncError() string {
	if r.local == nil {
		return ""
	}
	return r.local.LastError
}

// RetryCount returns the attempt count of a local record, 0 for synced ones.
func (r CacheRecord) RetryCount() int {
	if r.local == nil {
		return 0
	}
	return r.local.RetryCount
}

// CacheMetadata scopes a persisted cache to one signed-in identity.
type CacheMetadata struct {
	OwnerIdentity string     `msgpack:"owner_identity"`
	LastSyncedAt  *time.Time `msgpack:"last_synced_at,omitempty"`
	SchemaVersion int        `msgpack:"schema_version"`
}

// SchemaVersion is bumped when the persisted layout changes; a mismatched
// version on load degrades to an empty cache.
const SchemaVersion = 1
