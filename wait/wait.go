// Package wait provides the policies a blocked producer or consumer uses
// while it waits for a sequence to become available.
//
// The strategies trade CPU for latency. Blocking parks the goroutine on a
// condition variable and costs a lock on every signal; BusySpin never gives
// up its thread. Every strategy observes the alert passed to WaitFor and
// returns ErrAlerted promptly once it is set.
package wait

import (
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAlerted is returned when the ring is shutting down.
	ErrAlerted = fmt.Errorf("wait: alerted")

	// ErrTimeout is returned by strategies with a per-call timeout.
	ErrTimeout = fmt.Errorf("wait: timed out")

	// ErrUnknownKind is the error corresponding to an unknown strategy name.
	ErrUnknownKind = fmt.Errorf("wait: unknown strategy")
)

// Sequence is a read-only sequence.
type Sequence interface {
	Load() int64
}

// Alert is a shutdown-status viewer.
type Alert interface {
	IsClosed() bool
}

// Strategy is a policy for waiting on a sequence.
type Strategy interface {
	// WaitFor blocks until dependent reaches seq and returns the
	// value it observed, which is >= seq.
	// cursor is the sequence that SignalAll announces (the producer
	// cursor for consumers); blocking strategies park on it before
	// spinning on dependent. Pass the same sequence twice when there
	// is nothing upstream of dependent.
	WaitFor(seq int64, cursor, dependent Sequence, alert Alert) (int64, error)

	// SignalAll wakes any goroutine parked in WaitFor.
	SignalAll()
}

// spinOn waits for dependent to reach seq, calling relax between polls.
func spinOn(seq int64, dependent Sequence, alert Alert, relax func()) (int64, error) {
	available := dependent.Load()
	for available < seq {
		if alert.IsClosed() {
			return -1, ErrAlerted
		}
		relax()
		available = dependent.Load()
	}
	return available, nil
}

// Kind names a strategy so it can be selected from configuration.
type Kind int

const (
	KindBlocking Kind = iota
	KindLiteBlocking
	KindTimeoutBlocking
	KindSleeping
	KindYielding
	KindBusySpin
)

var kindNames = [...]string{
	KindBlocking:        "blocking",
	KindLiteBlocking:    "lite-blocking",
	KindTimeoutBlocking: "timeout-blocking",
	KindSleeping:        "sleeping",
	KindYielding:        "yielding",
	KindBusySpin:        "busy-spin",
}

// Kinds lists every strategy kind.
func Kinds() []Kind {
	return []Kind{KindBlocking, KindLiteBlocking, KindTimeoutBlocking, KindSleeping, KindYielding, KindBusySpin}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses a strategy name. Matching ignores case, treats
// underscores as dashes and drops a trailing "wait-strategy", so
// "BUSY_SPIN_WAIT_STRATEGY" and "busy-spin" are the same kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.TrimSuffix(name, "-wait-strategy")
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// DefaultTimeout is the per-call timeout of a TimeoutBlocking built by New.
const DefaultTimeout = time.Millisecond

// New returns a fresh strategy of the given kind.
func New(k Kind) (Strategy, error) {
	switch k {
	case KindBlocking:
		return NewBlocking(), nil
	case KindLiteBlocking:
		return NewLiteBlocking(), nil
	case KindTimeoutBlocking:
		return NewTimeoutBlocking(DefaultTimeout), nil
	case KindSleeping:
		return NewSleeping(), nil
	case KindYielding:
		return NewYielding(), nil
	case KindBusySpin:
		return BusySpin{}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownKind, k)
}
