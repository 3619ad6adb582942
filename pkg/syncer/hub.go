package syncer

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Kunal9797/artissales-sub000/pkg/record"
)

// Listener receives the merged cache view whenever it changes.
type Listener func(records []record.CacheRecord)

// UnsubscribeFunc removes a listener. Safe to call more than once.
type UnsubscribeFunc func()

// Hub fans the merged cache state out to registered listeners. A panicking
// listener is logged and skipped; it cannot stop delivery to the rest.
type Hub struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (h *Hub) Subscribe(fn Listener) UnsubscribeFunc {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Notify delivers records to every listener registered at call time.
// Ordering across concurrent Notify calls is the caller's concern.
func (h *Hub) Notify(records []record.CacheRecord) {
	h.mu.Lock()
	listeners := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.mu.Unlock()

	for _, fn := range listeners {
		h.deliver(fn, records)
	}
}

func (h *Hub) deliver(fn Listener, records []record.CacheRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("cache listener panicked; skipping")
		}
	}()
	fn(records)
}

// Len reports the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
