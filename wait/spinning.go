package wait

import (
	"runtime"
	"time"
)

// Sleeping spins, then yields, then sleeps with a doubling interval
// capped at maxSleep.
type Sleeping struct {
	retries  int
	minSleep time.Duration
	maxSleep time.Duration
}

// NewSleeping returns a Sleeping strategy that spins 100 times,
// yields 100 times, then sleeps from 1µs up to 1ms.
func NewSleeping() *Sleeping {
	return NewSleepingWith(200, time.Microsecond, time.Millisecond)
}

// NewSleepingWith returns a Sleeping strategy with custom parameters.
// The first half of retries are busy spins, the second half yields.
func NewSleepingWith(retries int, minSleep, maxSleep time.Duration) *Sleeping {
	if minSleep <= 0 {
		minSleep = time.Microsecond
	}
	if maxSleep < minSleep {
		maxSleep = minSleep
	}
	return &Sleeping{retries: retries, minSleep: minSleep, maxSleep: maxSleep}
}

func (s *Sleeping) WaitFor(seq int64, _, dependent Sequence, alert Alert) (int64, error) {
	counter := s.retries
	sleep := s.minSleep
	return spinOn(seq, dependent, alert, func() {
		switch {
		case counter > s.retries/2:
			counter--
		case counter > 0:
			counter--
			runtime.Gosched()
		default:
			time.Sleep(sleep)
			sleep = min(2*sleep, s.maxSleep)
		}
	})
}

func (*Sleeping) SignalAll() {}

// Yielding spins briefly, then yields the processor on every poll.
type Yielding struct {
	spinTries int
}

// NewYielding returns a Yielding strategy that spins 100 times first.
func NewYielding() *Yielding {
	return &Yielding{spinTries: 100}
}

func (y *Yielding) WaitFor(seq int64, _, dependent Sequence, alert Alert) (int64, error) {
	counter := y.spinTries
	return spinOn(seq, dependent, alert, func() {
		if counter > 0 {
			counter--
			return
		}
		runtime.Gosched()
	})
}

func (*Yielding) SignalAll() {}

// BusySpin polls in a tight loop. Use it only when every consumer
// has a core to itself.
type BusySpin struct{}

func (BusySpin) WaitFor(seq int64, _, dependent Sequence, alert Alert) (int64, error) {
	return spinOn(seq, dependent, alert, func() {})
}

func (BusySpin) SignalAll() {}
