package syncer

import (
	"sync"
)

// Reachability is the connectivity signal the coordinator reacts to. It is
// injected; embedders without a platform signal get AlwaysOnline.
type Reachability interface {
	// Connected reports the current connectivity state.
	Connected() bool

	// Subscribe registers a callback for connectivity transitions and
	// returns a cancel function.
	Subscribe(fn func(connected bool)) (cancel func())
}

// AlwaysOnline is the default Reachability: permanently connected, never
// fires a transition.
type AlwaysOnline struct{}

func (AlwaysOnline) Connected() bool { return true }

func (AlwaysOnline) Subscribe(func(connected bool)) (cancel func()) {
	return func() {}
}

// Signal is a manual Reachability publisher. The app's platform layer calls
// Set on connectivity changes; tests drive it directly.
type Signal struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	subs      map[int]func(connected bool)
}

func NewSignal(connected bool) *Signal {
	return &Signal{
		connected: connected,
		subs:      make(map[int]func(connected bool)),
	}
}

func (s *Signal) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Signal) Subscribe(fn func(connected bool)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Set publishes a connectivity transition. Redundant sets (same state) do
// not notify.
func (s *Signal) Set(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(connected)
	}
}
