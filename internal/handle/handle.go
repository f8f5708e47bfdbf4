// Package handle holds what every consumer loop shares: the view of the
// ring it reads from and the isolation of user handlers.
package handle

import (
	"fmt"

	"github.com/five-vee/ringpool/internal/barrier"
	"github.com/five-vee/ringpool/wait"
)

// ErrPanic wraps a value recovered from a panicking handler.
var ErrPanic = fmt.Errorf("handler panicked")

// Handler processes the item published at seq.
type Handler[T any] func(seq int64, item *T) error

// FaultFunc receives the failure of one item.
// worker is the index of the goroutine within its group.
type FaultFunc func(worker int, seq int64, err error)

// Env is the view of the ring a consumer loop runs against.
type Env[T any] struct {
	Buffer []T
	Mask   int64
	// Cursor is the producer cursor.
	Cursor barrier.Barrier
	// Wait is used while waiting for upstream progress.
	Wait wait.Strategy
	// Producer is signalled whenever a consumer frees space.
	Producer wait.Strategy
	Alert    barrier.ClosedBarrier
}

// Slot returns the slot seq maps to.
func (e *Env[T]) Slot(seq int64) *T {
	return &e.Buffer[seq&e.Mask]
}

// Invoke runs h, converting a panic into an error wrapping ErrPanic.
func Invoke[T any](h Handler[T], seq int64, item *T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w at sequence %d: %v", ErrPanic, seq, r)
		}
	}()
	return h(seq, item)
}
