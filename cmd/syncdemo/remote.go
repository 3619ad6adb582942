package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Kunal9797/artissales-sub000/pkg/record"
	"github.com/Kunal9797/artissales-sub000/pkg/syncer"
)

// demoRemote is an in-process stand-in for the accounts API. A failure rate
// makes create calls fail with a NetworkError so the retry path is visible.
type demoRemote struct {
	mu          sync.Mutex
	entities    []record.Entity
	nextID      int
	failureRate float64
	latency     time.Duration
	rng         *rand.Rand
}

func newDemoRemote(seedNames []string, failureRate float64, latency time.Duration) *demoRemote {
	r := &demoRemote{
		failureRate: failureRate,
		latency:     latency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, name := range seedNames {
		r.nextID++
		r.entities = append(r.entities, record.Entity{
			ID:   fmt.Sprintf("srv-%d", r.nextID),
			Name: name,
		})
	}
	return r
}

func (r *demoRemote) FetchAll(ctx context.Context) ([]record.Entity, error) {
	if err := r.sleep(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record.Entity(nil), r.entities...), nil
}

func (r *demoRemote) Create(ctx context.Context, payload record.Entity) (string, error) {
	if err := r.sleep(ctx); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if payload.Name == "" {
		return "", &syncer.ValidationError{Reason: "name is required"}
	}
	if r.rng.Float64() < r.failureRate {
		return "", &syncer.NetworkError{Cause: fmt.Errorf("injected failure")}
	}

	r.nextID++
	id := fmt.Sprintf("srv-%d", r.nextID)
	payload.ID = id
	r.entities = append(r.entities, payload)
	return id, nil
}

func (r *demoRemote) sleep(ctx context.Context) error {
	if r.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(r.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
