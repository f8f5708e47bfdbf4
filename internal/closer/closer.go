package closer

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	openRing   = 0
	closedRing = 1
)

// Closer represents the running/halted state of the ring.
// Its zero-value represents the running state.
// Every wait loop polls it, so it sits on its own cache line.
type Closer struct {
	_ cpu.CacheLinePad
	x atomic.Int64
	_ cpu.CacheLinePad
}

// IsClosed returns true once Close has been called.
func (c *Closer) IsClosed() bool {
	return c.x.Load() == closedRing
}

// Close sets the state to closed.
// It reports whether this call performed the transition.
func (c *Closer) Close() bool {
	return c.x.CompareAndSwap(openRing, closedRing)
}
