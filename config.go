package ringpool

import (
	"github.com/five-vee/ringpool/cfg"
	"github.com/five-vee/ringpool/wait"
)

// FromConfig returns a builder shaped by c: one stage of
// c.ConsumerGroups worker pools of c.WorkersPerGroup workers, each
// running h. Further options can be applied before Build.
func FromConfig[T any](c cfg.RingConfiguration, h Handler[T]) (*Builder[T], error) {
	consumerKind, err := c.ConsumerWait()
	if err != nil {
		return nil, err
	}
	producerKind, err := c.ProducerWait()
	if err != nil {
		return nil, err
	}
	consumerWait, err := wait.New(consumerKind)
	if err != nil {
		return nil, err
	}
	producerWait, err := wait.New(producerKind)
	if err != nil {
		return nil, err
	}
	return NewBuilder[T](c.Capacity()).
		WithWaitStrategy(consumerWait).
		WithProducerWaitStrategy(producerWait).
		WithShutdownTimeout(c.ShutdownTimeout()).
		WithAffinity(c.CPUAffinity...).
		WithStage(workerPools(c.ConsumerGroups, c.WorkersPerGroup, h)...), nil
}
