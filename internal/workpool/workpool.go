// Package workpool implements a consumer group of competing workers.
//
// Workers share a claim counter. Each worker increments it to take the
// next sequence, waits for that sequence to be published, processes it,
// and claims again. A worker's cursor is always one below its current
// claim, so the minimum over all worker cursors is the end of the
// contiguous run of completed sequences.
package workpool

import (
	"errors"

	"github.com/five-vee/ringpool/internal/barrier"
	"github.com/five-vee/ringpool/internal/handle"
	"github.com/five-vee/ringpool/internal/pad"
	"github.com/five-vee/ringpool/wait"
)

type worker struct {
	cursor    *pad.AtomicInt64
	processed pad.AtomicInt64
}

// Pool coordinates the workers of one group.
type Pool[T any] struct {
	env      *handle.Env[T]
	upstream barrier.Barrier
	handlers []handle.Handler[T]
	onFault  handle.FaultFunc
	workers  []*worker
	cursor   barrier.Barrier

	claim *pad.AtomicInt64
}

// New returns a pool with one worker per handler.
// INVARIANT: handlers is non-empty.
func New[T any](env *handle.Env[T], upstream barrier.Barrier, handlers []handle.Handler[T], onFault handle.FaultFunc) *Pool[T] {
	p := &Pool[T]{
		env:      env,
		upstream: upstream,
		handlers: handlers,
		onFault:  onFault,
		workers:  make([]*worker, len(handlers)),
		claim:    pad.NewAtomicInt64(-1),
	}
	cursors := make([]barrier.Barrier, len(handlers))
	for i := range p.workers {
		w := &worker{cursor: pad.NewAtomicInt64(-1)}
		p.workers[i] = w
		cursors[i] = w.cursor
	}
	p.cursor = barrier.Of(cursors...)
	return p
}

// Len returns the number of workers.
func (p *Pool[T]) Len() int { return len(p.workers) }

// Cursor returns the group cursor.
func (p *Pool[T]) Cursor() barrier.Barrier { return p.cursor }

// Counters returns the claim counter followed by every worker cursor.
func (p *Pool[T]) Counters() []*pad.AtomicInt64 {
	counters := []*pad.AtomicInt64{p.claim}
	for _, w := range p.workers {
		counters = append(counters, w.cursor)
	}
	return counters
}

// Processed returns the number of items handled by all workers.
func (p *Pool[T]) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.processed.Load()
	}
	return n
}

// Run is the loop of worker i. Blocks until the ring is halted.
func (p *Pool[T]) Run(i int) {
	w := p.workers[i]
	h := p.handlers[i]
	next := p.claim.Add(1)
	w.cursor.Store(next - 1)
	available := int64(-1)
	for {
		if next > available {
			var err error
			available, err = p.env.Wait.WaitFor(next, p.env.Cursor, p.upstream, p.env.Alert)
			if errors.Is(err, wait.ErrTimeout) {
				continue
			}
			if err != nil {
				return
			}
		}
		if err := handle.Invoke(h, next, p.env.Slot(next)); err != nil {
			p.onFault(i, next, err)
		}
		w.processed.Add(1)
		next = p.claim.Add(1)
		w.cursor.Store(next - 1)
		p.env.Producer.SignalAll()
	}
}
