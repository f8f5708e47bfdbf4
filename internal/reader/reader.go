// Package reader implements consumer groups that own a single cursor:
// a sequential reader driven by its own goroutine, and a poller driven
// by the caller.
package reader

import (
	"errors"
	"fmt"

	"github.com/five-vee/ringpool/internal/barrier"
	"github.com/five-vee/ringpool/internal/handle"
	"github.com/five-vee/ringpool/internal/pad"
	"github.com/five-vee/ringpool/wait"
)

// ErrInvalidSequence is returned when a poller is asked to consume a
// sequence behind its cursor or beyond what upstream has released.
var ErrInvalidSequence = fmt.Errorf("invalid sequence")

// Reader represents a single Reader of the ring buffer.
// It sees every sequence, in order.
type Reader[T any] struct {
	env      *handle.Env[T]
	upstream barrier.Barrier
	handler  handle.Handler[T]
	onFault  handle.FaultFunc

	cursor    pad.AtomicInt64
	processed pad.AtomicInt64
}

// NewReader returns a new Reader gated on upstream.
func NewReader[T any](env *handle.Env[T], upstream barrier.Barrier, h handle.Handler[T], onFault handle.FaultFunc) *Reader[T] {
	r := &Reader[T]{
		env:      env,
		upstream: upstream,
		handler:  h,
		onFault:  onFault,
	}
	r.cursor.Store(-1)
	return r
}

// Cursor returns the reader's cursor.
func (r *Reader[T]) Cursor() *pad.AtomicInt64 { return &r.cursor }

// Processed returns the number of items handled so far.
func (r *Reader[T]) Processed() int64 { return r.processed.Load() }

// LoopRead continuously reads messages.
// Blocks until the ring is halted.
func (r *Reader[T]) LoopRead() {
	next := r.cursor.Load() + 1
	for {
		available, err := r.env.Wait.WaitFor(next, r.env.Cursor, r.upstream, r.env.Alert)
		if errors.Is(err, wait.ErrTimeout) {
			continue
		}
		if err != nil {
			return
		}
		for seq := next; seq <= available; seq++ {
			if err := handle.Invoke(r.handler, seq, r.env.Slot(seq)); err != nil {
				r.onFault(0, seq, err)
			}
		}
		r.processed.Add(available - next + 1)
		r.cursor.Store(available)
		r.env.Producer.SignalAll()
		next = available + 1
	}
}

// Poller is a consumer group whose cursor is advanced by the caller.
// A Poller must be driven by a single goroutine.
type Poller[T any] struct {
	env      *handle.Env[T]
	upstream barrier.Barrier

	cursor    pad.AtomicInt64
	processed pad.AtomicInt64
}

// NewPoller returns a new Poller gated on upstream.
func NewPoller[T any](env *handle.Env[T], upstream barrier.Barrier) *Poller[T] {
	p := &Poller[T]{env: env, upstream: upstream}
	p.cursor.Store(-1)
	return p
}

// Cursor returns the poller's cursor.
func (p *Poller[T]) Cursor() *pad.AtomicInt64 { return &p.cursor }

// Processed returns the number of sequences marked consumed so far.
func (p *Poller[T]) Processed() int64 { return p.processed.Load() }

// NextAvailable blocks until from is released by upstream and returns
// the highest released sequence.
func (p *Poller[T]) NextAvailable(from int64) (int64, error) {
	for {
		available, err := p.env.Wait.WaitFor(from, p.env.Cursor, p.upstream, p.env.Alert)
		if errors.Is(err, wait.ErrTimeout) {
			continue
		}
		return available, err
	}
}

// Get returns the slot seq maps to.
func (p *Poller[T]) Get(seq int64) *T {
	return p.env.Slot(seq)
}

// MarkConsumed advances the cursor to seq.
func (p *Poller[T]) MarkConsumed(seq int64) error {
	current := p.cursor.Load()
	if seq < current {
		return fmt.Errorf("%w: %d is behind cursor %d", ErrInvalidSequence, seq, current)
	}
	if released := p.upstream.Load(); seq > released {
		return fmt.Errorf("%w: %d is beyond released sequence %d", ErrInvalidSequence, seq, released)
	}
	p.processed.Add(seq - current)
	p.cursor.Store(seq)
	p.env.Producer.SignalAll()
	return nil
}
