package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kunal9797/artissales-sub000/pkg/record"
)

// fakeRemote is a scripted RemoteClient. It holds the "server-side" entity
// list in memory; Create appends to it so a later FetchAll returns the
// confirmed entity under its server id.
type fakeRemote struct {
	mu          sync.Mutex
	entities    []record.Entity
	fetchErr    error
	createErr   error
	fetchDelay  time.Duration
	createDelay time.Duration
	fetchCalls  int
	createCalls int
	nextID      int
}

func (f *fakeRemote) FetchAll(ctx context.Context) ([]record.Entity, error) {
	f.mu.Lock()
	f.fetchCalls++
	delay := f.fetchDelay
	ferr := f.fetchErr
	out := append([]record.Entity(nil), f.entities...)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ferr != nil {
		return nil, ferr
	}
	return out, nil
}

func (f *fakeRemote) Create(ctx context.Context, payload record.Entity) (string, error) {
	f.mu.Lock()
	f.createCalls++
	delay := f.createDelay
	cerr := f.createErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if cerr != nil {
		return "", cerr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	e := payload
	e.ID = id
	f.entities = append(f.entities, e)
	return id, nil
}

func (f *fakeRemote) setCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *fakeRemote) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeRemote) calls() (fetch, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.createCalls
}
