package ringpool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five-vee/ringpool/internal/affinity"
	"github.com/five-vee/ringpool/internal/barrier"
	"github.com/five-vee/ringpool/internal/closer"
	"github.com/five-vee/ringpool/internal/handle"
	"github.com/five-vee/ringpool/internal/pad"
	"github.com/five-vee/ringpool/internal/reader"
	"github.com/five-vee/ringpool/wait"
)

var (
	// ErrShutdown is returned by blocking calls once Shutdown was called.
	ErrShutdown = fmt.Errorf("ring is shut down")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = fmt.Errorf("ring already started")

	// ErrInsufficientCapacity is returned by TryNext when the ring is full.
	ErrInsufficientCapacity = fmt.Errorf("insufficient capacity")

	// ErrClaimSize is returned when a batch claim is not in [1, capacity].
	ErrClaimSize = fmt.Errorf("claim size out of range")

	// ErrNoSuchGroup is returned for an out of range group index.
	ErrNoSuchGroup = fmt.Errorf("no such consumer group")

	// ErrNotPollable is returned when a group driven by its own
	// goroutines is polled by the caller.
	ErrNotPollable = fmt.Errorf("consumer group is not a poller")

	// ErrNotBuilt is returned by a Poller that was never built into a ring.
	ErrNotBuilt = fmt.Errorf("poller is not bound to a ring")

	// ErrInvalidSequence is returned by MarkConsumed for a sequence
	// behind the group cursor or not yet released to the group.
	ErrInvalidSequence = reader.ErrInvalidSequence

	// ErrHandlerPanic wraps the value recovered from a panicking handler.
	ErrHandlerPanic = handle.ErrPanic

	// ErrDrainTimeout is returned by Drain when consumers did not catch up.
	ErrDrainTimeout = fmt.Errorf("drain timed out")

	// ErrShutdownTimeout is the panic value of a Shutdown whose
	// consumers did not exit in time. Wait strategies must honour the
	// shutdown alert, so this is a bug rather than a runtime condition.
	ErrShutdownTimeout = fmt.Errorf("consumers did not exit after shutdown")
)

const drainPollInterval = 100 * time.Microsecond

// Ring is a fixed-capacity ring buffer with a single producer and one or
// more consumer groups.
//
// Next, TryNext, NextN, Get, Publish, PublishRange and Write must be
// called from a single producer goroutine.
type Ring[T any] struct {
	capacity        int64
	mask            int64 // capacity - 1 for quick modulo operations.
	buffer          []T
	env             handle.Env[T]
	groups          []*group
	gating          barrier.Barrier // slowest group of the last stage
	consumerWait    wait.Strategy
	producerWait    wait.Strategy
	faults          FaultHandler
	logger          zerolog.Logger
	cpus            []int
	shutdownTimeout time.Duration

	wg           sync.WaitGroup
	lifecycle    sync.Mutex // orders Start's wg.Add calls before Shutdown's Wait
	started      bool
	shutdownOnce sync.Once

	stalls       pad.AtomicInt64
	next         pad.Int64 // last claimed sequence
	cachedGating pad.Int64 // cached version of gating
	closer       closer.Closer
	cursor       pad.AtomicInt64
}

// Capacity returns the number of slots.
func (r *Ring[T]) Capacity() int64 { return r.capacity }

// Cursor returns the highest published sequence, -1 if none.
func (r *Ring[T]) Cursor() int64 { return r.cursor.Load() }

// RemainingCapacity returns how many sequences can be claimed without
// blocking.
func (r *Ring[T]) RemainingCapacity() int64 {
	return r.capacity - (r.next.Val - r.gating.Load())
}

// Next claims the next sequence. It blocks, using the producer wait
// strategy, while the slot is still held by the slowest consumer group.
func (r *Ring[T]) Next() (int64, error) {
	return r.NextN(1)
}

// NextN claims n sequences and returns the highest one; the claimed
// range is [hi-n+1, hi].
func (r *Ring[T]) NextN(n int64) (int64, error) {
	if n < 1 || n > r.capacity {
		return -1, fmt.Errorf("%w: %d", ErrClaimSize, n)
	}
	if r.closer.IsClosed() {
		return -1, ErrShutdown
	}
	next := r.next.Val + n
	wrapPoint := next - r.capacity
	if wrapPoint > r.cachedGating.Val {
		gating := r.gating.Load()
		if wrapPoint > gating {
			r.stalls.Add(1)
			var err error
			gating, err = r.waitForCapacity(wrapPoint)
			if err != nil {
				return -1, err
			}
		}
		r.cachedGating.Val = gating
	}
	r.next.Val = next
	return next, nil
}

func (r *Ring[T]) waitForCapacity(wrapPoint int64) (int64, error) {
	for {
		gating, err := r.producerWait.WaitFor(wrapPoint, r.gating, r.gating, &r.closer)
		if errors.Is(err, wait.ErrTimeout) {
			continue
		}
		if err != nil {
			return -1, ErrShutdown
		}
		return gating, nil
	}
}

// TryNext claims the next sequence without blocking.
func (r *Ring[T]) TryNext() (int64, error) {
	if r.closer.IsClosed() {
		return -1, ErrShutdown
	}
	next := r.next.Val + 1
	wrapPoint := next - r.capacity
	if wrapPoint > r.cachedGating.Val {
		gating := r.gating.Load()
		r.cachedGating.Val = gating
		if wrapPoint > gating {
			return -1, ErrInsufficientCapacity
		}
	}
	r.next.Val = next
	return next, nil
}

// Get returns the slot seq maps to.
func (r *Ring[T]) Get(seq int64) *T {
	return &r.buffer[seq&r.mask]
}

// Publish makes every claimed sequence up to seq visible to consumers.
func (r *Ring[T]) Publish(seq int64) {
	r.cursor.Store(seq)
	r.consumerWait.SignalAll()
}

// PublishRange publishes a range claimed with NextN.
func (r *Ring[T]) PublishRange(lo, hi int64) {
	if lo > hi {
		return
	}
	r.Publish(hi)
}

// Write claims a slot, lets f fill it in place and publishes it.
func (r *Ring[T]) Write(f func(seq int64, item *T)) error {
	seq, err := r.Next()
	if err != nil {
		return err
	}
	f(seq, r.Get(seq))
	r.Publish(seq)
	return nil
}

// NextAvailable blocks until from is available to the poller at index
// group and returns the highest available sequence. Groups are indexed
// in the order they were added to the builder.
func (r *Ring[T]) NextAvailable(group int, from int64) (int64, error) {
	p, err := r.poller(group)
	if err != nil {
		return -1, err
	}
	available, err := p.NextAvailable(from)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrShutdown, err)
	}
	return available, nil
}

// MarkConsumed releases every sequence up to seq for the poller at
// index group.
func (r *Ring[T]) MarkConsumed(group int, seq int64) error {
	p, err := r.poller(group)
	if err != nil {
		return err
	}
	return p.MarkConsumed(seq)
}

func (r *Ring[T]) poller(group int) (pollable, error) {
	if group < 0 || group >= len(r.groups) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchGroup, group)
	}
	g := r.groups[group]
	if g.poller == nil {
		return nil, fmt.Errorf("%w: group %d is a %s", ErrNotPollable, group, g.kind)
	}
	return g.poller, nil
}

// Start launches the goroutines of every reader and worker pool.
func (r *Ring[T]) Start() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.closer.IsClosed() {
		return ErrShutdown
	}
	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true
	n := 0
	for _, g := range r.groups {
		for w, run := range g.runners {
			cpu := affinity.Assign(r.cpus, n)
			n++
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				if cpu >= 0 {
					if err := affinity.Pin(cpu); err != nil {
						r.logger.Warn().Err(err).Int("group", g.index).Int("worker", w).Msg("Unable to pin consumer")
					}
				}
				run()
			}()
		}
	}
	r.logger.Info().
		Int64("capacity", r.capacity).
		Int("groups", len(r.groups)).
		Int("goroutines", n).
		Msg("Ring started")
	return nil
}

// Shutdown halts every consumer and any blocked producer, then waits
// for consumer goroutines to exit. Unconsumed items are abandoned; use
// Drain to wait for them first. It is safe to call more than once.
//
// Shutdown panics with ErrShutdownTimeout if a consumer is still running
// after the shutdown timeout, which means a handler never returned.
func (r *Ring[T]) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.lifecycle.Lock()
		r.closer.Close()
		r.lifecycle.Unlock()
		r.consumerWait.SignalAll()
		r.producerWait.SignalAll()

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		timer := time.NewTimer(r.shutdownTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			r.logger.Error().Dur("timeout", r.shutdownTimeout).Msg("Consumers did not exit")
			panic(fmt.Errorf("%w within %v", ErrShutdownTimeout, r.shutdownTimeout))
		}
		r.logger.Info().Int64("cursor", r.cursor.Load()).Int64("gating", r.gating.Load()).Msg("Ring shut down")
	})
}

// Drain waits until every consumer group has caught up with the last
// published sequence, then shuts the ring down. It returns
// ErrDrainTimeout if that took longer than timeout; the ring is shut
// down either way.
func (r *Ring[T]) Drain(timeout time.Duration) error {
	var err error
	deadline := time.Now().Add(timeout)
	for r.gating.Load() < r.cursor.Load() {
		if time.Now().After(deadline) {
			err = fmt.Errorf("%w: %d of %d consumed", ErrDrainTimeout, r.gating.Load()+1, r.cursor.Load()+1)
			break
		}
		time.Sleep(drainPollInterval)
	}
	r.Shutdown()
	return err
}

// IsShutdown reports whether Shutdown has been called.
func (r *Ring[T]) IsShutdown() bool {
	return r.closer.IsClosed()
}

func (r *Ring[T]) onFault(g *group) handle.FaultFunc {
	return func(worker int, seq int64, err error) {
		g.faults.Inc()
		r.faults.HandleFault(Fault{
			Group:    g.index,
			Worker:   worker,
			Sequence: seq,
			Err:      err,
		})
	}
}
