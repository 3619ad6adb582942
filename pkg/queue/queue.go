// Package queue holds locally-created mutations awaiting server confirmation.
// Every transition is persisted before it is visible to callers, so an app
// kill loses no intent to create; failed mutations are kept until the user
// retries or removes them, never silently dropped.
package queue

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Kunal9797/artissales-sub000/pkg/localid"
	"github.com/Kunal9797/artissales-sub000/pkg/record"
	"github.com/Kunal9797/artissales-sub000/pkg/store"
)

// DefaultRetryCeiling is how many automatic attempts a mutation gets before
// it parks as Failed and waits for a manual retry.
const DefaultRetryCeiling = 3

var (
	// ErrUnknownMutation: no mutation with that local id.
	ErrUnknownMutation = errors.New("unknown mutation")
	// ErrIllegalTransition: the requested status change is not in the state
	// machine. Callers treat it as a no-op.
	ErrIllegalTransition = errors.New("illegal mutation transition")
)

// Queue is the pending-mutation queue for one signed-in identity.
type Queue struct {
	mu       sync.RWMutex
	store    store.Store
	identity string
	gen      *localid.Generator
	ceiling  int
	now      func() time.Time

	muts  map[string]*record.PendingMutation
	order []string // local ids in creation order
}

// Option customizes a Queue.
type Option func(*Queue)

// WithRetryCeiling overrides the automatic-retry ceiling.
func WithRetryCeiling(ceiling int) Option {
	return func(q *Queue) { q.ceiling = ceiling }
}

// WithClock injects the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates an empty queue scoped to identity. Call Load to hydrate it.
func New(s store.Store, identity string, gen *localid.Generator, options ...Option) *Queue {
	q := &Queue{
		store:    s,
		identity: identity,
		gen:      gen,
		ceiling:  DefaultRetryCeiling,
		now:      time.Now,
		muts:     make(map[string]*record.PendingMutation),
	}
	for _, option := range options {
		option(q)
	}
	return q
}

// Load hydrates the queue from the durable store. Mutations found in Syncing
// were in flight when the process died; they re-arm as Pending. Corrupt data
// degrades to an empty queue.
func (q *Queue) Load() {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, err := q.store.Get(record.PendingKey(q.identity))
	if err != nil {
		if err != store.ErrKeyNotFound {
			log.WithFields(log.Fields{"err": err, "identity": q.identity}).
				Warn("pending queue unreadable; starting empty")
		}
		return
	}
	muts, err := record.DecodeMutations(raw)
	if err != nil {
		log.WithFields(log.Fields{"err": err, "identity": q.identity}).
			Warn("pending queue corrupt; starting empty")
		return
	}
	for i := range muts {
		m := muts[i]
		if m.Status == record.MutationSyncing {
			m.Status = record.MutationPending
		}
		q.muts[m.LocalID] = &m
		q.order = append(q.order, m.LocalID)
	}
}

// Enqueue mints a local id for payload and persists the mutation. It never
// touches the network and returns before any flush begins; a persistence
// failure is logged and the mutation survives in memory for this session.
func (q *Queue) Enqueue(payload record.Entity) record.PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := &record.PendingMutation{
		LocalID:   q.gen.Next(),
		Payload:   payload,
		Status:    record.MutationPending,
		CreatedAt: q.now(),
	}
	q.muts[m.LocalID] = m
	q.order = append(q.order, m.LocalID)
	q.persistLocked()
	return *m
}

// MarkSyncing moves a Pending mutation into Syncing ahead of a flush attempt.
func (q *Queue) MarkSyncing(localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.muts[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status != record.MutationPending {
		return ErrIllegalTransition
	}
	m.Status = record.MutationSyncing
	q.persistLocked()
	return nil
}

// MarkSucceeded retires a Syncing mutation after the server confirmed the
// create. The entry is deleted; the next full sync surfaces the server copy.
func (q *Queue) MarkSucceeded(localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.muts[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status != record.MutationSyncing {
		return ErrIllegalTransition
	}
	q.removeLocked(localID)
	q.persistLocked()
	return nil
}

// MarkFailed records a failed flush attempt on a Syncing mutation. A
// non-permanent failure increments the retry count and re-arms the mutation
// as Pending until the ceiling is hit; permanent failures (rejected payloads)
// park it as Failed immediately.
func (q *Queue) MarkFailed(localID string, cause string, permanent bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.muts[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status != record.MutationSyncing {
		return ErrIllegalTransition
	}

	m.RetryCount++
	m.LastError = cause
	if permanent || m.RetryCount >= q.ceiling {
		m.Status = record.MutationFailed
	} else {
		m.Status = record.MutationPending
	}
	q.persistLocked()
	return nil
}

// Defer reverts an in-flight mutation to Pending without consuming an
// attempt. Used when the flush aborts for reasons unrelated to the item
// itself, e.g. the session expired before the create was tried.
func (q *Queue) Defer(localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.muts[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status != record.MutationSyncing {
		return ErrIllegalTransition
	}
	m.Status = record.MutationPending
	q.persistLocked()
	return nil
}

// Retry re-arms a Failed mutation: retry count and error reset, status back
// to Pending.
func (q *Queue) Retry(localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.muts[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status != record.MutationFailed {
		return ErrIllegalTransition
	}
	m.Status = record.MutationPending
	m.RetryCount = 0
	m.LastError = ""
	q.persistLocked()
	return nil
}

// Remove discards a Failed mutation for good. Only Failed entries can be
// removed; pending work is not abandonable out from under the coordinator.
func (q *Queue) Remove(localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.muts[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status != record.MutationFailed {
		return ErrIllegalTransition
	}
	q.removeLocked(localID)
	q.persistLocked()
	return nil
}

// Get returns a copy of the mutation with the given local id.
func (q *Queue) Get(localID string) (record.PendingMutation, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	m, ok := q.muts[localID]
	if !ok {
		return record.PendingMutation{}, false
	}
	return *m, true
}

// Pending returns Pending mutations in creation order. Syncing and Failed
// entries are excluded; they are not flushable.
func (q *Queue) Pending() []record.PendingMutation {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []record.PendingMutation
	for _, id := range q.order {
		if m := q.muts[id]; m.Status == record.MutationPending {
			out = append(out, *m)
		}
	}
	return out
}

// All returns every queued mutation in creation order.
func (q *Queue) All() []record.PendingMutation {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]record.PendingMutation, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.muts[id])
	}
	return out
}

// FailedCount reports how many mutations are parked as Failed.
func (q *Queue) FailedCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, m := range q.muts {
		if m.Status == record.MutationFailed {
			n++
		}
	}
	return n
}

// Len reports the total number of queued mutations.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.muts)
}

// Wipe clears all in-memory and persisted queue state. Used on logout.
func (q *Queue) Wipe() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.muts = make(map[string]*record.PendingMutation)
	q.order = nil
	if err := q.store.Delete(record.PendingKey(q.identity)); err != nil {
		log.WithFields(log.Fields{"err": err, "identity": q.identity}).
			Warn("failed to delete pending queue during wipe")
	}
}

func (q *Queue) removeLocked(localID string) {
	delete(q.muts, localID)
	for i, id := range q.order {
		if id == localID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

func (q *Queue) persistLocked() {
	muts := make([]record.PendingMutation, 0, len(q.order))
	for _, id := range q.order {
		muts = append(muts, *q.muts[id])
	}
	data, err := record.EncodeMutations(muts)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("failed to encode pending queue")
		return
	}
	if err := q.store.Set(record.PendingKey(q.identity), data); err != nil {
		log.WithFields(log.Fields{"err": errors.Wrap(err, "persist pending queue"), "identity": q.identity}).
			Warn("pending queue not persisted; mutations live in memory only")
	}
}
