// Package syncer reconciles the on-device cache with the remote source of
// truth. One Coordinator is owned by each signed-in identity's session:
// created at sign-in, stopped and wiped at sign-out. All reads and writes to
// the cache and mutation queue flow through its methods so state is durable
// before any listener hears about it.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Kunal9797/artissales-sub000/pkg/cache"
	"github.com/Kunal9797/artissales-sub000/pkg/localid"
	"github.com/Kunal9797/artissales-sub000/pkg/queue"
	"github.com/Kunal9797/artissales-sub000/pkg/record"
	"github.com/Kunal9797/artissales-sub000/pkg/store"
)

const (
	// DefaultStalenessThreshold: a full sync older than this makes the cache
	// eligible for background refresh.
	DefaultStalenessThreshold = 30 * time.Minute

	// DefaultRequestTimeout bounds each remote fetch/create call. A timeout
	// counts as a network failure.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultSyncInterval is the periodic staleness check cadence.
	DefaultSyncInterval = 5 * time.Minute
)

// Stats is a snapshot of coordinator runtime counters.
type Stats struct {
	SyncsRun       uint64
	SyncsShared    uint64 // callers that piggybacked on an in-flight sync
	SyncsOffline   uint64
	FetchFailures  uint64
	FlushSuccesses uint64
	FlushFailures  uint64
	Notifications  uint64
	PendingCount   int
	FailedCount    int
}

// Coordinator orchestrates the entity cache, the mutation queue, and the
// remote client for one identity.
type Coordinator struct {
	identity string
	cache    *cache.Cache
	queue    *queue.Queue
	hub      *Hub
	remote   RemoteClient
	reach    Reachability
	now      func() time.Time

	staleness time.Duration
	timeout   time.Duration
	interval  time.Duration
	cacheOpts []cache.Option
	queueOpts []queue.Option

	sf singleflight.Group

	syncsRun       atomic.Uint64
	syncsShared    atomic.Uint64
	syncsOffline   atomic.Uint64
	fetchFailures  atomic.Uint64
	flushSuccesses atomic.Uint64
	flushFailures  atomic.Uint64
	notifications  atomic.Uint64

	// notifyMu serializes compute-and-deliver so listeners always see cache
	// snapshots in the order they were taken. Subscribe primes under the same
	// lock, so no later snapshot can outrun the priming one.
	notifyMu sync.Mutex

	runMu       sync.Mutex
	stopped     bool
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithReachability injects the connectivity signal.
func WithReachability(r Reachability) Option {
	return func(c *Coordinator) { c.reach = r }
}

// WithStalenessThreshold overrides the staleness threshold.
func WithStalenessThreshold(d time.Duration) Option {
	return func(c *Coordinator) { c.staleness = d }
}

// WithRequestTimeout overrides the per-call remote timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithSyncInterval overrides the periodic staleness-check cadence.
func WithSyncInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithClock injects the wall clock used for staleness evaluation and
// last-synced stamping, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithOrder sets the List ordering of synced entities.
func WithOrder(order cache.OrderFunc) Option {
	return func(c *Coordinator) {
		c.cacheOpts = append(c.cacheOpts, cache.WithOrder(order))
	}
}

// WithRetryCeiling overrides the mutation queue's automatic-retry ceiling.
func WithRetryCeiling(ceiling int) Option {
	return func(c *Coordinator) {
		c.queueOpts = append(c.queueOpts, queue.WithRetryCeiling(ceiling))
	}
}

// New builds the engine for one signed-in identity over the given durable
// store and remote client. Call Load, then Start.
func New(s store.Store, identity string, remote RemoteClient, options ...Option) *Coordinator {
	c := &Coordinator{
		identity:  identity,
		remote:    remote,
		reach:     AlwaysOnline{},
		now:       time.Now,
		staleness: DefaultStalenessThreshold,
		timeout:   DefaultRequestTimeout,
		interval:  DefaultSyncInterval,
		hub:       NewHub(),
	}
	for _, option := range options {
		option(c)
	}

	c.cacheOpts = append(c.cacheOpts, cache.WithClock(c.now))
	c.queueOpts = append(c.queueOpts, queue.WithClock(c.now))
	c.cache = cache.New(s, identity, c.cacheOpts...)
	c.queue = queue.New(s, identity, localid.NewGenerator(), c.queueOpts...)
	return c
}

// Load hydrates the cache and queue from the durable store and materializes
// surviving mutations into the cache view. It never fails; unreadable state
// degrades to empty.
func (c *Coordinator) Load() {
	c.cache.Load()
	c.queue.Load()
	for _, m := range c.queue.All() {
		c.cache.SetLocal(m)
	}
}

// Subscribe registers a listener for merged cache changes. The listener is
// immediately primed with the current view, and no concurrent update can be
// delivered ahead of the prime. Listeners run with delivery serialized and
// must not call back into the Coordinator.
func (c *Coordinator) Subscribe(fn Listener) UnsubscribeFunc {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	unsub := c.hub.Subscribe(fn)
	c.hub.deliver(fn, c.cache.List())
	return unsub
}

// List returns the merged cache view: local records first, newest first,
// then synced records.
func (c *Coordinator) List() []record.CacheRecord {
	return c.cache.List()
}

// Get resolves a record by server or local identifier.
func (c *Coordinator) Get(id string) (record.CacheRecord, bool) {
	return c.cache.Get(id)
}

// FailedCount reports how many local mutations are parked as Failed.
func (c *Coordinator) FailedCount() int {
	return c.queue.FailedCount()
}

// LastSyncedAt returns the time of the last successful full sync, nil if
// none.
func (c *Coordinator) LastSyncedAt() *time.Time {
	return c.cache.LastSyncedAt()
}

// IsStale reports whether the cache is due a background refresh: no full
// sync yet, or the last one is older than the staleness threshold.
func (c *Coordinator) IsStale() bool {
	last := c.cache.LastSyncedAt()
	if last == nil {
		return true
	}
	return c.now().Sub(*last) > c.staleness
}

// Enqueue records a local creation. It returns the minted local identifier
// before any I/O beyond the queue's own persistence begins; a flush attempt
// is kicked off in the background.
func (c *Coordinator) Enqueue(payload record.Entity) string {
	m := c.queue.Enqueue(payload)
	c.cache.SetLocal(m)
	c.notify()

	c.spawn(func() {
		if err := c.FlushPending(context.Background()); err != nil && err != ErrOffline {
			log.WithFields(log.Fields{"err": err, "identity": c.identity}).
				Warn("background flush after enqueue failed")
		}
	})
	return m.LocalID
}

// spawn runs fn on a tracked goroutine. After Stop it is a no-op, so a late
// Enqueue cannot race the WaitGroup during teardown.
func (c *Coordinator) spawn(fn func()) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stopped {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Retry re-arms a Failed mutation and requests an immediate flush.
func (c *Coordinator) Retry(localID string) error {
	if err := c.queue.Retry(localID); err != nil {
		return err
	}
	if m, ok := c.queue.Get(localID); ok {
		c.cache.SetLocal(m)
	}
	c.notify()

	c.spawn(func() {
		if err := c.FlushPending(context.Background()); err != nil && err != ErrOffline {
			log.WithFields(log.Fields{"err": err, "identity": c.identity}).
				Warn("flush after manual retry failed")
		}
	})
	return nil
}

// Remove discards a Failed mutation for good.
func (c *Coordinator) Remove(localID string) error {
	if err := c.queue.Remove(localID); err != nil {
		return err
	}
	c.cache.DropLocal(localID)
	c.notify()
	return nil
}

// SyncWithServer runs a full sync: flush pending mutations, fetch the
// authoritative list, replace the cache wholesale, notify subscribers.
// Concurrent callers share a single in-flight sync. Offline, it
// short-circuits with ErrOffline and touches nothing. A fetch failure leaves
// the existing cache servable.
func (c *Coordinator) SyncWithServer(ctx context.Context) error {
	_, err, shared := c.sf.Do("sync", func() (any, error) {
		return nil, c.syncOnce(ctx)
	})
	if shared {
		c.syncsShared.Add(1)
	}
	return err
}

func (c *Coordinator) syncOnce(ctx context.Context) error {
	if !c.reach.Connected() {
		c.syncsOffline.Add(1)
		log.WithField("identity", c.identity).Debug("sync skipped: offline")
		return ErrOffline
	}
	c.syncsRun.Add(1)

	if err := c.flushOnce(ctx); err != nil {
		// Auth expiry aborts the fetch too; anything else was handled
		// per-item and must not block the fetch.
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return err
		}
		log.WithFields(log.Fields{"err": err, "identity": c.identity}).
			Warn("mutation flush failed; continuing with fetch")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entities, err := c.remote.FetchAll(fetchCtx)
	if err != nil {
		c.fetchFailures.Add(1)
		err = classify(err)
		log.WithFields(log.Fields{"err": err, "identity": c.identity}).
			Warn("full sync fetch failed; serving stale cache")
		return err
	}

	c.cache.ReplaceAll(entities)
	c.notify()
	return nil
}

// FlushPending attempts the remote create for every Pending mutation, in
// creation order. Failures are isolated per item; an auth failure aborts the
// remainder (every item would fail the same way) and is returned so the
// embedder can re-authenticate. Concurrent callers share one in-flight pass;
// a caller whose mutation arrived too late for the shared pass re-issues
// until every never-attempted mutation has been tried.
func (c *Coordinator) FlushPending(ctx context.Context) error {
	for {
		_, err, shared := c.sf.Do("flush", func() (any, error) {
			return nil, c.flushOnce(ctx)
		})
		if err != nil || !shared {
			return err
		}
		if !c.hasUntriedPending() {
			return nil
		}
	}
}

// hasUntriedPending reports whether a Pending mutation exists that no flush
// pass has attempted yet. Attempted-and-failed mutations carry a nonzero
// retry count; re-flushing those is left to the explicit triggers.
func (c *Coordinator) hasUntriedPending() bool {
	for _, m := range c.queue.Pending() {
		if m.RetryCount == 0 {
			return true
		}
	}
	return false
}

func (c *Coordinator) flushOnce(ctx context.Context) error {
	if !c.reach.Connected() {
		// Known-offline attempts would only burn the retry ceiling.
		return ErrOffline
	}

	// Drain in rounds: mutations enqueued while a round is in flight are
	// picked up by the next one. Each mutation is attempted at most once per
	// pass so a retryable failure cannot spin here.
	attempted := make(map[string]bool)
	for {
		var batch []record.PendingMutation
		for _, m := range c.queue.Pending() {
			if !attempted[m.LocalID] {
				batch = append(batch, m)
			}
		}
		if len(batch) == 0 {
			return nil
		}

		for _, m := range batch {
			attempted[m.LocalID] = true
			if err := c.queue.MarkSyncing(m.LocalID); err != nil {
				// Raced with a concurrent transition; not flushable anymore.
				continue
			}

			createCtx, cancel := context.WithTimeout(ctx, c.timeout)
			serverID, err := c.remote.Create(createCtx, m.Payload)
			cancel()

			if err == nil {
				if err := c.queue.MarkSucceeded(m.LocalID); err != nil {
					log.WithFields(log.Fields{"err": err, "localId": m.LocalID}).
						Warn("could not retire succeeded mutation")
				}
				c.cache.DropLocal(m.LocalID)
				c.flushSuccesses.Add(1)
				log.WithFields(log.Fields{"localId": m.LocalID, "serverId": serverID}).
					Info("local mutation confirmed by server")
				c.notify()
				continue
			}

			err = classify(err)
			c.flushFailures.Add(1)

			var authErr *AuthError
			if errors.As(err, &authErr) {
				// Session expired: put the item back untouched and stop.
				if derr := c.queue.Defer(m.LocalID); derr != nil {
					log.WithFields(log.Fields{"err": derr, "localId": m.LocalID}).
						Warn("could not defer mutation after auth failure")
				}
				c.syncLocalIntoCache(m.LocalID)
				return err
			}

			var valErr *ValidationError
			permanent := errors.As(err, &valErr)
			if merr := c.queue.MarkFailed(m.LocalID, err.Error(), permanent); merr != nil {
				log.WithFields(log.Fields{"err": merr, "localId": m.LocalID}).
					Warn("could not record mutation failure")
			}
			c.syncLocalIntoCache(m.LocalID)
			log.WithFields(log.Fields{"err": err, "localId": m.LocalID, "permanent": permanent}).
				Warn("mutation flush attempt failed")
			c.notify()
		}
	}
}

// Start launches the background triggers: a periodic tick that syncs only
// when the cache is stale, and a reachability subscription that flushes
// pending mutations the moment connectivity returns.
func (c *Coordinator) Start() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return // already running
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.stopped = false

	c.unsubscribe = c.reach.Subscribe(func(connected bool) {
		if !connected {
			return
		}
		if len(c.queue.Pending()) == 0 {
			return
		}
		c.spawn(func() {
			if err := c.FlushPending(ctx); err != nil {
				log.WithFields(log.Fields{"err": err, "identity": c.identity}).
					Warn("flush on reconnect failed")
			}
		})
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.IsStale() {
					continue
				}
				if err := c.SyncWithServer(ctx); err != nil && err != ErrOffline {
					log.WithFields(log.Fields{"err": err, "identity": c.identity}).
						Warn("periodic sync failed")
				}
			}
		}
	}()
}

// Stop tears down the background triggers and waits for in-flight work,
// including flush attempts kicked off by Enqueue before Start was ever
// called.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.runMu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.wg.Wait()
}

// Logout stops the coordinator and wipes all cached and queued state for
// this identity, then notifies subscribers with the empty view.
func (c *Coordinator) Logout() {
	c.Stop()
	c.queue.Wipe()
	c.cache.Wipe()
	c.notify()
}

// Stats returns a snapshot of runtime counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		SyncsRun:       c.syncsRun.Load(),
		SyncsShared:    c.syncsShared.Load(),
		SyncsOffline:   c.syncsOffline.Load(),
		FetchFailures:  c.fetchFailures.Load(),
		FlushSuccesses: c.flushSuccesses.Load(),
		FlushFailures:  c.flushFailures.Load(),
		Notifications:  c.notifications.Load(),
		PendingCount:   len(c.queue.Pending()),
		FailedCount:    c.queue.FailedCount(),
	}
}

// notify snapshots the merged view and fans it out. The lock makes
// snapshot-and-deliver atomic; without it two callers could deliver their
// snapshots in the opposite order they were taken.
func (c *Coordinator) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notifications.Add(1)
	c.hub.Notify(c.cache.List())
}

func (c *Coordinator) syncLocalIntoCache(localID string) {
	if m, ok := c.queue.Get(localID); ok {
		c.cache.SetLocal(m)
	}
}
