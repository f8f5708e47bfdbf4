package ringpool

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/five-vee/ringpool/internal/barrier"
	"github.com/five-vee/ringpool/internal/handle"
	"github.com/five-vee/ringpool/internal/pad"
	"github.com/five-vee/ringpool/internal/reader"
	"github.com/five-vee/ringpool/internal/workpool"
)

// Handler processes the item published at seq.
// A returned error or a panic is reported to the ring's FaultHandler
// and the consumer moves on to its next sequence.
type Handler[T any] func(seq int64, item *T) error

// Group kinds reported in Stats.
const (
	KindReader     = "reader"
	KindWorkerPool = "worker-pool"
	KindPoller     = "poller"
)

// ConsumerGroup is a set of goroutines sharing one logical cursor.
// Use Reader, WorkerPool or NewPoller to create one.
type ConsumerGroup[T any] interface {
	validate() error
	bind(g *group, env *handle.Env[T], upstream barrier.Barrier, onFault handle.FaultFunc) error
}

type pollable interface {
	NextAvailable(from int64) (int64, error)
	MarkConsumed(seq int64) error
}

var _ pollable = (*reader.Poller[int])(nil)

// group is the type-erased state of a bound ConsumerGroup.
type group struct {
	index     int
	stage     int
	kind      string
	cursor    barrier.Barrier
	counters  []*pad.AtomicInt64
	runners   []func()
	processed func() int64
	poller    pollable
	faults    *xsync.Counter
}

func newGroup(index, stage int) *group {
	return &group{index: index, stage: stage, faults: xsync.NewCounter()}
}

type readerGroup[T any] struct {
	h Handler[T]
}

// Reader returns a group with a single goroutine that hands every
// sequence to h, in order.
func Reader[T any](h Handler[T]) ConsumerGroup[T] {
	return readerGroup[T]{h}
}

func (r readerGroup[T]) validate() error {
	if r.h == nil {
		return ErrNilHandler
	}
	return nil
}

func (r readerGroup[T]) bind(g *group, env *handle.Env[T], upstream barrier.Barrier, onFault handle.FaultFunc) error {
	rd := reader.NewReader(env, upstream, handle.Handler[T](r.h), onFault)
	g.kind = KindReader
	g.cursor = rd.Cursor()
	g.counters = []*pad.AtomicInt64{rd.Cursor()}
	g.runners = []func(){rd.LoopRead}
	g.processed = rd.Processed
	return nil
}

type workerPoolGroup[T any] struct {
	hs []Handler[T]
}

// WorkerPool returns a group with one goroutine per handler. The
// goroutines compete for sequences so each one is handled by exactly
// one of them. The group's cursor only moves over sequences that all
// have been handled, so later stages still see them in order.
func WorkerPool[T any](hs ...Handler[T]) ConsumerGroup[T] {
	return workerPoolGroup[T]{hs}
}

func (w workerPoolGroup[T]) validate() error {
	if len(w.hs) == 0 {
		return ErrEmptyWorkerPool
	}
	for _, h := range w.hs {
		if h == nil {
			return ErrNilHandler
		}
	}
	return nil
}

func (w workerPoolGroup[T]) bind(g *group, env *handle.Env[T], upstream barrier.Barrier, onFault handle.FaultFunc) error {
	handlers := make([]handle.Handler[T], len(w.hs))
	for i, h := range w.hs {
		handlers[i] = handle.Handler[T](h)
	}
	p := workpool.New(env, upstream, handlers, onFault)
	g.kind = KindWorkerPool
	g.cursor = p.Cursor()
	g.counters = p.Counters()
	for i := range p.Len() {
		g.runners = append(g.runners, func() { p.Run(i) })
	}
	g.processed = p.Processed
	return nil
}

// Poller is a consumer group driven by the caller instead of its own
// goroutine. It must be used from a single goroutine.
type Poller[T any] struct {
	p *reader.Poller[T]
}

// NewPoller returns an unbound Poller. Pass it to Builder.WithStage.
func NewPoller[T any]() *Poller[T] {
	return &Poller[T]{}
}

func (p *Poller[T]) validate() error {
	if p.p != nil {
		return ErrPollerBound
	}
	return nil
}

func (p *Poller[T]) bind(g *group, env *handle.Env[T], upstream barrier.Barrier, _ handle.FaultFunc) error {
	if p.p != nil {
		return ErrPollerBound
	}
	p.p = reader.NewPoller(env, upstream)
	g.kind = KindPoller
	g.cursor = p.p.Cursor()
	g.counters = []*pad.AtomicInt64{p.p.Cursor()}
	g.processed = p.p.Processed
	g.poller = p.p
	return nil
}

// NextAvailable blocks until from is available to this group and
// returns the highest available sequence. It returns ErrShutdown once
// the ring is shut down.
func (p *Poller[T]) NextAvailable(from int64) (int64, error) {
	if p.p == nil {
		return -1, ErrNotBuilt
	}
	available, err := p.p.NextAvailable(from)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrShutdown, err)
	}
	return available, nil
}

// MarkConsumed releases every sequence up to and including seq.
func (p *Poller[T]) MarkConsumed(seq int64) error {
	if p.p == nil {
		return ErrNotBuilt
	}
	return p.p.MarkConsumed(seq)
}

// Get returns the slot seq maps to, or nil before the Poller is built.
func (p *Poller[T]) Get(seq int64) *T {
	if p.p == nil {
		return nil
	}
	return p.p.Get(seq)
}

// Cursor returns the highest sequence marked consumed.
func (p *Poller[T]) Cursor() int64 {
	if p.p == nil {
		return -1
	}
	return p.p.Cursor().Load()
}
