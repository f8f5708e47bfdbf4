package ringpool

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/five-vee/ringpool/internal/barrier"
	"github.com/five-vee/ringpool/internal/handle"
	"github.com/five-vee/ringpool/internal/pad"
	"github.com/five-vee/ringpool/wait"
)

var (
	// ErrCapacity is the error corresponding to wrong capacity.
	ErrCapacity = fmt.Errorf("capacity must be a positive power of two")

	// ErrMissingConsumerGroup is the error corresponding to a ring
	// built without any consumer group.
	ErrMissingConsumerGroup = fmt.Errorf("missing consumer group(s)")

	// ErrEmptyStage is the error corresponding to a stage without groups.
	ErrEmptyStage = fmt.Errorf("stage is empty")

	// ErrEmptyWorkerPool is the error corresponding to a worker pool
	// without workers.
	ErrEmptyWorkerPool = fmt.Errorf("worker pool is empty")

	// ErrNilHandler is the error corresponding to a nil handler.
	ErrNilHandler = fmt.Errorf("handler is nil")

	// ErrPollerBound is returned when a Poller is passed to more than
	// one ring or stage.
	ErrPollerBound = fmt.Errorf("poller already bound to a ring")

	// ErrLayout is returned when hot counters end up sharing a cache line.
	ErrLayout = fmt.Errorf("counters share a cache line")
)

// DefaultShutdownTimeout bounds how long Shutdown waits for consumer
// goroutines to exit.
const DefaultShutdownTimeout = 5 * time.Second

// Builder builds a Ring.
type Builder[T any] struct {
	capacity        int64
	stages          [][]ConsumerGroup[T]
	consumerWait    wait.Strategy
	producerWait    wait.Strategy
	faults          FaultHandler
	logger          *zerolog.Logger
	cpus            []int
	shutdownTimeout time.Duration
}

// NewBuilder returns a builder of a ring with the given capacity.
func NewBuilder[T any](capacity int64) *Builder[T] {
	return &Builder[T]{capacity: capacity}
}

// WithStage adds a stage of consumer groups.
// If this is the first time WithStage is called, the groups read
// behind the producer. Otherwise, they read behind the slowest group
// of the previously added stage.
func (b *Builder[T]) WithStage(groups ...ConsumerGroup[T]) *Builder[T] {
	b.stages = append(b.stages, groups)
	return b
}

// WithWaitStrategy sets how consumers wait for upstream progress.
// The default is wait.NewSleeping().
func (b *Builder[T]) WithWaitStrategy(s wait.Strategy) *Builder[T] {
	b.consumerWait = s
	return b
}

// WithProducerWaitStrategy sets how the producer waits for free slots.
// The default is wait.NewYielding().
func (b *Builder[T]) WithProducerWaitStrategy(s wait.Strategy) *Builder[T] {
	b.producerWait = s
	return b
}

// WithFaultHandler sets the receiver of per-item failures.
// The default logs them.
func (b *Builder[T]) WithFaultHandler(h FaultHandler) *Builder[T] {
	b.faults = h
	return b
}

// WithLogger overrides the logger, which defaults to the global zerolog logger.
func (b *Builder[T]) WithLogger(l zerolog.Logger) *Builder[T] {
	b.logger = &l
	return b
}

// WithAffinity pins consumer goroutines to the given CPUs, round robin.
func (b *Builder[T]) WithAffinity(cpus ...int) *Builder[T] {
	b.cpus = cpus
	return b
}

// WithShutdownTimeout overrides DefaultShutdownTimeout.
func (b *Builder[T]) WithShutdownTimeout(d time.Duration) *Builder[T] {
	b.shutdownTimeout = d
	return b
}

// Build builds the ring. Nothing runs until Start is called.
func (b *Builder[T]) Build() (*Ring[T], error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	logger := log.Logger.With().Str("component", "ringpool").Logger()
	if b.logger != nil {
		logger = *b.logger
	}
	r := &Ring[T]{
		capacity:        b.capacity,
		mask:            b.capacity - 1,
		buffer:          make([]T, b.capacity),
		consumerWait:    b.consumerWait,
		producerWait:    b.producerWait,
		faults:          b.faults,
		logger:          logger,
		cpus:            b.cpus,
		shutdownTimeout: b.shutdownTimeout,
	}
	if r.consumerWait == nil {
		r.consumerWait = wait.NewSleeping()
	}
	if r.producerWait == nil {
		r.producerWait = wait.NewYielding()
	}
	if r.faults == nil {
		r.faults = LogFaults(logger)
	}
	if r.shutdownTimeout <= 0 {
		r.shutdownTimeout = DefaultShutdownTimeout
	}
	r.cursor.Store(-1)
	r.next.Val = -1
	r.cachedGating.Val = -1
	r.env = handle.Env[T]{
		Buffer:   r.buffer,
		Mask:     r.mask,
		Cursor:   &r.cursor,
		Wait:     r.consumerWait,
		Producer: r.producerWait,
		Alert:    &r.closer,
	}
	gating, err := b.wireGroups(r)
	if err != nil {
		return nil, err
	}
	r.gating = gating
	if err := r.verifyLayout(); err != nil {
		return nil, err
	}
	return r, nil
}

func (b *Builder[T]) validate() error {
	if b.capacity <= 0 || b.capacity&(b.capacity-1) != 0 {
		return fmt.Errorf("%w, got %d", ErrCapacity, b.capacity)
	}
	if len(b.stages) == 0 {
		return ErrMissingConsumerGroup
	}
	pollers := make(map[*Poller[T]]bool)
	for i, stage := range b.stages {
		if len(stage) == 0 {
			return fmt.Errorf("%w: stage %d", ErrEmptyStage, i)
		}
		for _, g := range stage {
			if g == nil {
				return fmt.Errorf("stage %d: %w", i, ErrNilHandler)
			}
			if err := g.validate(); err != nil {
				return fmt.Errorf("stage %d: %w", i, err)
			}
			if p, ok := g.(*Poller[T]); ok {
				if pollers[p] {
					return fmt.Errorf("stage %d: %w", i, ErrPollerBound)
				}
				pollers[p] = true
			}
		}
	}
	return nil
}

// wireGroups wires up the consumer dependency graph and returns the
// barrier the producer gates on.
func (b *Builder[T]) wireGroups(r *Ring[T]) (barrier.Barrier, error) {
	var upstream barrier.Barrier = &r.cursor
	for si, stage := range b.stages {
		cursors := make([]barrier.Barrier, 0, len(stage))
		for _, cg := range stage {
			g := newGroup(len(r.groups), si)
			if err := cg.bind(g, &r.env, upstream, r.onFault(g)); err != nil {
				return nil, err
			}
			r.groups = append(r.groups, g)
			cursors = append(cursors, g.cursor)
		}
		// Optimize: don't need the minimum barrier if size 1.
		upstream = barrier.Of(cursors...)
	}
	return upstream, nil
}

// verifyLayout checks that no two hot counters share a cache line.
// Padding is a layout hint; this measures the addresses actually used.
func (r *Ring[T]) verifyLayout() error {
	ptrs := []unsafe.Pointer{unsafe.Pointer(&r.cursor.Int64)}
	for _, g := range r.groups {
		for _, c := range g.counters {
			ptrs = append(ptrs, unsafe.Pointer(&c.Int64))
		}
	}
	if !pad.Isolated(ptrs...) {
		return fmt.Errorf("%w (line size %d bytes)", ErrLayout, pad.CacheLineSize)
	}
	return nil
}

// New builds a ring with one stage of independent worker pools, each
// running workersPerGroup copies of h. Both the consumers and the
// producer wait with a strategy of the given kind.
func New[T any](capacity int64, kind wait.Kind, groups, workersPerGroup int, h Handler[T]) (*Ring[T], error) {
	if groups <= 0 {
		return nil, ErrMissingConsumerGroup
	}
	if workersPerGroup <= 0 {
		return nil, ErrEmptyWorkerPool
	}
	consumerWait, err := wait.New(kind)
	if err != nil {
		return nil, err
	}
	producerWait, err := wait.New(kind)
	if err != nil {
		return nil, err
	}
	return NewBuilder[T](capacity).
		WithWaitStrategy(consumerWait).
		WithProducerWaitStrategy(producerWait).
		WithStage(workerPools(groups, workersPerGroup, h)...).
		Build()
}

// workerPools returns groups worker pools of workers copies of h.
func workerPools[T any](groups, workers int, h Handler[T]) []ConsumerGroup[T] {
	stage := make([]ConsumerGroup[T], groups)
	for i := range stage {
		handlers := make([]Handler[T], workers)
		for j := range handlers {
			handlers[j] = h
		}
		stage[i] = WorkerPool(handlers...)
	}
	return stage
}
