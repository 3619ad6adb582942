package localid

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local identifiers name entities created on-device before the server assigns
// a permanent ID. Format: local-<016x packed ts>-<8 hex random>.
//
// The packed timestamp is 48 bits of physical time (ms since epoch) plus a
// 16-bit logical counter, so IDs minted in the same millisecond still order
// by creation and the clock never runs backwards within a process.

const prefix = "local-"

const (
	logicalMask = 0xFFFF
)

// Generator mints local identifiers. Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	latest int64 // max packed timestamp handed out so far
	now    func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock injects the physical clock, for tests.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Next returns a fresh local identifier, strictly ordered after any previous
// one from this generator.
func (g *Generator) Next() string {
	return fmt.Sprintf("%s%016x-%s", prefix, g.tick(), uuid.NewString()[:8])
}

func (g *Generator) tick() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	phys := g.now().UnixMilli()

	oldPhys := g.latest >> 16
	oldLogical := g.latest & logicalMask

	var newPhys, newLogical int64
	if phys > oldPhys {
		newPhys = phys
		newLogical = 0
	} else {
		newPhys = oldPhys
		newLogical = oldLogical + 1
	}
	if newLogical > logicalMask {
		newPhys++
		newLogical = 0
	}

	g.latest = (newPhys << 16) | newLogical
	return g.latest
}

// IsLocal reports whether id was minted on-device.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, prefix)
}
