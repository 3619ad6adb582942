// Package mobile wraps the sync engine with a gomobile-compatible API.
// gomobile cannot bind maps, slices of structs, or multi-return interfaces,
// so records cross the bridge as JSON strings and change delivery goes
// through a single-method listener interface.
package mobile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kunal9797/artissales-sub000/pkg/record"
	"github.com/Kunal9797/artissales-sub000/pkg/store"
	"github.com/Kunal9797/artissales-sub000/pkg/syncer"
)

// Listener receives the merged record list as JSON whenever it changes.
type Listener interface {
	OnRecordsChanged(recordsJSON string)
}

// Record is the JSON shape handed to the UI layer.
type Record struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	State          string `json:"state"`
	CreatedLocally bool   `json:"createdLocally"`
	SyncError      string `json:"syncError,omitempty"`
	RetryCount     int    `json:"retryCount,omitempty"`
}

// Engine is the mobile-facing handle for one signed-in identity.
type Engine struct {
	store store.Store
	coord *syncer.Coordinator
	reach *syncer.Signal
	unsub syncer.UnsubscribeFunc
}

// NewEngine opens the on-device database at dbPath and builds the engine for
// identity, syncing through remote.
func NewEngine(dbPath, identity string, remote syncer.RemoteClient) (*Engine, error) {
	s, err := store.NewBadgerStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	reach := syncer.NewSignal(true)
	coord := syncer.New(s, identity, remote, syncer.WithReachability(reach))
	coord.Load()
	coord.Start()
	return &Engine{store: s, coord: coord, reach: reach}, nil
}

// newEngineWithStore is the seam used by tests.
func newEngineWithStore(s store.Store, identity string, remote syncer.RemoteClient) *Engine {
	reach := syncer.NewSignal(true)
	coord := syncer.New(s, identity, remote, syncer.WithReachability(reach))
	coord.Load()
	coord.Start()
	return &Engine{store: s, coord: coord, reach: reach}
}

// Close stops background sync and releases the store.
func (e *Engine) Close() error {
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
	e.coord.Stop()
	return e.store.Close()
}

// SetReachable is called by the platform's connectivity monitor.
func (e *Engine) SetReachable(connected bool) {
	e.reach.Set(connected)
}

// Enqueue records a local creation from a JSON payload ({"name": ..., ...})
// and returns the local identifier, usable immediately for navigation.
func (e *Engine) Enqueue(payloadJSON string) (string, error) {
	var payload record.Entity
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", fmt.Errorf("bad payload: %w", err)
	}
	payload.ID = "" // the engine mints the identifier
	return e.coord.Enqueue(payload), nil
}

// List returns the merged record list as JSON.
func (e *Engine) List() (string, error) {
	return marshalRecords(e.coord.List())
}

// SyncNow forces a full sync. Offline is not an error from the UI's point of
// view; the cache simply stays as it was.
func (e *Engine) SyncNow() error {
	err := e.coord.SyncWithServer(context.Background())
	if err == syncer.ErrOffline {
		return nil
	}
	return err
}

// IsStale reports whether a screen-focus event should trigger a resync.
func (e *Engine) IsStale() bool {
	return e.coord.IsStale()
}

// Retry re-arms a failed record.
func (e *Engine) Retry(localID string) error {
	return e.coord.Retry(localID)
}

// Remove discards a failed record.
func (e *Engine) Remove(localID string) error {
	return e.coord.Remove(localID)
}

// FailedCount reports how many local records are parked as failed.
func (e *Engine) FailedCount() int {
	return e.coord.FailedCount()
}

// SetListener registers the single UI listener, replacing any previous one.
// Pass nil to detach.
func (e *Engine) SetListener(l Listener) {
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
	if l == nil {
		return
	}
	e.unsub = e.coord.Subscribe(func(records []record.CacheRecord) {
		data, err := marshalRecords(records)
		if err != nil {
			return
		}
		l.OnRecordsChanged(data)
	})
}

// Logout wipes all local state for the identity.
func (e *Engine) Logout() {
	e.coord.Logout()
}

func marshalRecords(records []record.CacheRecord) (string, error) {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, Record{
			ID:             r.ID(),
			Name:           r.Entity().Name,
			State:          r.State().String(),
			CreatedLocally: r.CreatedLocally(),
			SyncError:      r.SyncError(),
			RetryCount:     r.RetryCount(),
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
