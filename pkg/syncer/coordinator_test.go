package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kunal9797/artissales-sub000/pkg/localid"
	"github.com/Kunal9797/artissales-sub000/pkg/record"
	"github.com/Kunal9797/artissales-sub000/pkg/store"
)

func newTestCoordinator(t *testing.T, remote RemoteClient, options ...Option) (*Coordinator, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	c := New(s, "user-1", remote, options...)
	c.Load()
	t.Cleanup(c.Stop)
	return c, s
}

func waitForFlush(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.queue.Len()-c.queue.FailedCount() == 0
	}, 2*time.Second, 5*time.Millisecond, "pending mutations were not flushed")
}

func TestCoordinator_OfflineEnqueuesAreListedNewestFirst(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newTestCoordinator(t, remote, WithReachability(NewSignal(false)))

	c.Enqueue(record.Entity{Name: "First"})
	c.Enqueue(record.Entity{Name: "Second"})
	c.Enqueue(record.Entity{Name: "Third"})

	records := c.List()
	require.Len(t, records, 3)
	assert.Equal(t, "Third", records[0].Entity().Name)
	assert.Equal(t, "Second", records[1].Entity().Name)
	assert.Equal(t, "First", records[2].Entity().Name)
	for _, r := range records {
		assert.Equal(t, record.StatePending, r.State())
		assert.True(t, localid.IsLocal(r.ID()))
	}

	// Nothing reached the network.
	fetch, create := remote.calls()
	assert.Equal(t, 0, fetch)
	assert.Equal(t, 0, create)
}

func TestCoordinator_SyncIsSingleFlight(t *testing.T) {
	remote := &fakeRemote{fetchDelay: 50 * time.Millisecond}
	c, _ := newTestCoordinator(t, remote)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.SyncWithServer(context.Background()))
		}()
	}
	wg.Wait()

	fetch, _ := remote.calls()
	assert.Equal(t, 1, fetch, "concurrent syncs must share one fetch")
	assert.GreaterOrEqual(t, c.Stats().SyncsShared, uint64(3))
}

func TestCoordinator_OfflineSyncShortCircuits(t *testing.T) {
	remote := &fakeRemote{entities: []record.Entity{{ID: "srv-1", Name: "Acme"}}}
	c, _ := newTestCoordinator(t, remote, WithReachability(NewSignal(false)))

	err := c.SyncWithServer(context.Background())
	assert.ErrorIs(t, err, ErrOffline)

	fetch, _ := remote.calls()
	assert.Equal(t, 0, fetch)
	assert.Nil(t, c.LastSyncedAt(), "offline sync must not touch metadata")
}

func TestCoordinator_RoundTrip(t *testing.T) {
	// Offline create, reconnect, flush, full sync: the local id disappears
	// and the server-assigned id takes its place.
	remote := &fakeRemote{}
	reach := NewSignal(false)
	c, _ := newTestCoordinator(t, remote, WithReachability(reach))
	c.Start()

	localID := c.Enqueue(record.Entity{Name: "Acme"})

	records := c.List()
	require.Len(t, records, 1)
	assert.Equal(t, record.StatePending, records[0].State())
	assert.Equal(t, "Acme", records[0].Entity().Name)

	reach.Set(true) // reconnect triggers an immediate flush
	waitForFlush(t, c)

	require.NoError(t, c.SyncWithServer(context.Background()))

	records = c.List()
	require.Len(t, records, 1)
	assert.Equal(t, record.StateSynced, records[0].State())
	assert.Equal(t, "srv-1", records[0].ID())
	assert.Equal(t, "Acme", records[0].Entity().Name)

	_, ok := c.Get(localID)
	assert.False(t, ok, "local id must be superseded by the server id")
}

func TestCoordinator_RetryCeilingThenManualRemove(t *testing.T) {
	remote := &fakeRemote{}
	remote.setCreateErr(&NetworkError{Cause: context.DeadlineExceeded})
	c, _ := newTestCoordinator(t, remote)

	localID := c.Enqueue(record.Entity{Name: "Acme"})

	// Each flush burns one attempt; after the ceiling the mutation parks as
	// Failed and later flushes ignore it.
	require.Eventually(t, func() bool {
		c.FlushPending(context.Background())
		return c.FailedCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, createsAtFailure := remote.calls()

	require.NoError(t, c.FlushPending(context.Background()))
	_, createsAfter := remote.calls()
	assert.Equal(t, createsAtFailure, createsAfter, "failed mutation must not auto-retry")

	r, ok := c.Get(localID)
	require.True(t, ok)
	assert.Equal(t, record.StateFailed, r.State())
	assert.NotEmpty(t, r.SyncError())

	require.NoError(t, c.Remove(localID))
	assert.Equal(t, 0, c.FailedCount())
	assert.Empty(t, c.List())
}

func TestCoordinator_ManualRetryAfterFailure(t *testing.T) {
	remote := &fakeRemote{}
	remote.setCreateErr(&NetworkError{Cause: assert.AnError})
	c, _ := newTestCoordinator(t, remote, WithRetryCeiling(1))

	localID := c.Enqueue(record.Entity{Name: "Acme"})
	require.Eventually(t, func() bool {
		c.FlushPending(context.Background())
		return c.FailedCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Server recovers; manual retry re-arms and flushes.
	remote.setCreateErr(nil)
	require.NoError(t, c.Retry(localID))
	waitForFlush(t, c)

	assert.Equal(t, 0, c.FailedCount())
}

func TestCoordinator_ValidationErrorFailsImmediately(t *testing.T) {
	remote := &fakeRemote{}
	remote.setCreateErr(&ValidationError{Reason: "name required"})
	c, _ := newTestCoordinator(t, remote)

	localID := c.Enqueue(record.Entity{})
	require.Eventually(t, func() bool {
		return c.FailedCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	r, _ := c.Get(localID)
	assert.Equal(t, record.StateFailed, r.State())
	assert.Equal(t, 1, r.RetryCount(), "rejected payload must not consume the full ceiling")

	_, creates := remote.calls()
	assert.Equal(t, 1, creates)
}

func TestCoordinator_AuthErrorDefersWithoutConsumingAttempts(t *testing.T) {
	remote := &fakeRemote{}
	remote.setCreateErr(&AuthError{Cause: assert.AnError})
	c, _ := newTestCoordinator(t, remote)

	localID := c.Enqueue(record.Entity{Name: "Acme"})

	var authErr *AuthError
	require.Eventually(t, func() bool {
		return errors.As(c.FlushPending(context.Background()), &authErr)
	}, 2*time.Second, 5*time.Millisecond)

	r, ok := c.Get(localID)
	require.True(t, ok)
	assert.Equal(t, record.StatePending, r.State())
	assert.Equal(t, 0, r.RetryCount(), "auth failure must not burn the retry ceiling")
	assert.Equal(t, 0, c.FailedCount())

	// A full sync surfaces the auth error instead of wiping the cache.
	err := c.SyncWithServer(context.Background())
	assert.True(t, errors.As(err, &authErr))
}

func TestCoordinator_StaleCacheServedOnFetchFailure(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	remote := &fakeRemote{entities: []record.Entity{{ID: "srv-1", Name: "Acme"}}}
	c, _ := newTestCoordinator(t, remote, WithClock(clock))

	require.NoError(t, c.SyncWithServer(context.Background()))
	assert.False(t, c.IsStale())

	// 40 minutes later the cache is stale; a failing forced sync must leave
	// the previous view untouched.
	now = now.Add(40 * time.Minute)
	assert.True(t, c.IsStale())

	remote.setFetchErr(&NetworkError{Cause: assert.AnError})
	err := c.SyncWithServer(context.Background())
	require.Error(t, err)

	records := c.List()
	require.Len(t, records, 1)
	assert.Equal(t, "Acme", records[0].Entity().Name)
	assert.True(t, c.IsStale(), "failed sync must not refresh the staleness stamp")
}

func TestCoordinator_IsStaleWithoutAnySync(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeRemote{})
	assert.True(t, c.IsStale())
}

func TestCoordinator_SubscriberPrimedAndNotified(t *testing.T) {
	remote := &fakeRemote{entities: []record.Entity{{ID: "srv-1", Name: "Acme"}}}
	c, _ := newTestCoordinator(t, remote, WithReachability(NewSignal(false)))

	var mu sync.Mutex
	var views [][]record.CacheRecord
	unsub := c.Subscribe(func(records []record.CacheRecord) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, records)
	})
	defer unsub()

	mu.Lock()
	require.Len(t, views, 1, "listener must be primed with the current view")
	assert.Empty(t, views[0])
	mu.Unlock()

	c.Enqueue(record.Entity{Name: "Draft"})

	mu.Lock()
	require.GreaterOrEqual(t, len(views), 2)
	last := views[len(views)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "Draft", last[0].Entity().Name)
	mu.Unlock()
}

func TestCoordinator_IdentityIsolation(t *testing.T) {
	s := store.NewMemoryStore()
	remote := &fakeRemote{entities: []record.Entity{{ID: "srv-1", Name: "Secret"}}}

	a := New(s, "user-a", remote)
	a.Load()
	require.NoError(t, a.SyncWithServer(context.Background()))
	require.Len(t, a.List(), 1)
	a.Stop()

	b := New(s, "user-b", &fakeRemote{})
	b.Load()
	defer b.Stop()
	assert.Empty(t, b.List(), "user-b must never see user-a's records")
	assert.Nil(t, b.LastSyncedAt())
}

func TestCoordinator_LogoutWipesEverything(t *testing.T) {
	remote := &fakeRemote{entities: []record.Entity{{ID: "srv-1", Name: "Acme"}}}
	c, s := newTestCoordinator(t, remote, WithReachability(NewSignal(false)))
	c.Enqueue(record.Entity{Name: "Draft"})

	c.Logout()

	assert.Empty(t, c.List())
	assert.Equal(t, 0, s.Len(), "logout must delete all persisted keys")
}

func TestCoordinator_PeriodicSyncOnlyWhenStale(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	remote := &fakeRemote{}
	c, _ := newTestCoordinator(t, remote,
		WithClock(clock),
		WithSyncInterval(10*time.Millisecond),
		WithStalenessThreshold(time.Hour))

	require.NoError(t, c.SyncWithServer(context.Background()))
	fetchBefore, _ := remote.calls()

	c.Start()
	time.Sleep(60 * time.Millisecond)
	fetchFresh, _ := remote.calls()
	assert.Equal(t, fetchBefore, fetchFresh, "fresh cache must not be re-fetched by the ticker")

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	require.Eventually(t, func() bool {
		fetch, _ := remote.calls()
		return fetch > fetchBefore
	}, 2*time.Second, 10*time.Millisecond, "stale cache must be re-fetched by the ticker")
}

func TestCoordinator_EnqueueDuringInFlightFlushIsDelivered(t *testing.T) {
	remote := &fakeRemote{createDelay: 150 * time.Millisecond}
	c, _ := newTestCoordinator(t, remote)

	c.Enqueue(record.Entity{Name: "First"})
	time.Sleep(40 * time.Millisecond) // First's create is now in flight
	c.Enqueue(record.Entity{Name: "Second"})

	waitForFlush(t, c)
	_, create := remote.calls()
	assert.Equal(t, 2, create, "a mutation enqueued mid-flush must still be sent")

	require.NoError(t, c.SyncWithServer(context.Background()))
	records := c.List()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, record.StateSynced, r.State())
	}
}

func TestCoordinator_SubscribeDuringUpdatesSeesMonotonicViews(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newTestCoordinator(t, remote, WithReachability(NewSignal(false)))

	var (
		mu       sync.Mutex
		lengths  []int
		inFlight atomic.Int32
		overlap  atomic.Bool
	)
	listener := func(records []record.CacheRecord) {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		defer inFlight.Add(-1)
		mu.Lock()
		lengths = append(lengths, len(records))
		mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 40; i++ {
			c.Enqueue(record.Entity{Name: "Lead"})
		}
	}()

	time.Sleep(time.Millisecond)
	unsub := c.Subscribe(listener)
	<-done
	unsub()

	assert.False(t, overlap.Load(), "deliveries must be serialized")
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, lengths, "the prime delivery must arrive")
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1],
			"a later delivery must not carry an older view")
	}
}

func TestCoordinator_EnqueueAfterStopIsSafe(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newTestCoordinator(t, remote, WithReachability(NewSignal(false)))
	c.Start()
	c.Stop()

	id := c.Enqueue(record.Entity{Name: "Late"})
	require.NotEmpty(t, id)
	r, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, record.StatePending, r.State())

	// Teardown racing a burst of enqueues must not trip the wait group.
	c2, _ := newTestCoordinator(t, remote, WithReachability(NewSignal(false)))
	c2.Start()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				c2.Enqueue(record.Entity{Name: "Burst"})
			}
		}()
	}
	c2.Stop()
	wg.Wait()
}

func TestCoordinator_StatsSnapshot(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newTestCoordinator(t, remote)

	require.NoError(t, c.SyncWithServer(context.Background()))
	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.SyncsRun)
	assert.Equal(t, 0, stats.PendingCount)
}
