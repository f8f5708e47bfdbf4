package ringpool

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Fault describes one item a consumer failed to process.
// The consumer has already moved past it.
type Fault struct {
	Group    int
	Worker   int
	Sequence int64
	Err      error
}

func (f Fault) Error() string {
	return fmt.Sprintf("group %d worker %d sequence %d: %v", f.Group, f.Worker, f.Sequence, f.Err)
}

func (f Fault) Unwrap() error { return f.Err }

// FaultHandler receives per-item failures. It is called from consumer
// goroutines, concurrently, and must not block.
type FaultHandler interface {
	HandleFault(Fault)
}

// FaultHandlerFunc adapts a function to a FaultHandler.
type FaultHandlerFunc func(Fault)

func (f FaultHandlerFunc) HandleFault(fault Fault) { f(fault) }

// LogFaults returns a FaultHandler that logs every fault at error level.
func LogFaults(logger zerolog.Logger) FaultHandler {
	return FaultHandlerFunc(func(f Fault) {
		logger.Error().
			Err(f.Err).
			Int("group", f.Group).
			Int("worker", f.Worker).
			Int64("sequence", f.Sequence).
			Msg("Consumer failed to process item")
	})
}

// TeeFaults fans every fault out to all handlers, in order.
func TeeFaults(handlers ...FaultHandler) FaultHandler {
	return FaultHandlerFunc(func(f Fault) {
		for _, h := range handlers {
			h.HandleFault(f)
		}
	})
}

type faultKey struct {
	group int
	seq   int64
}

// FaultLog records faults by group and sequence.
type FaultLog struct {
	faults *xsync.MapOf[faultKey, Fault]
}

// NewFaultLog returns an empty FaultLog.
func NewFaultLog() *FaultLog {
	return &FaultLog{faults: xsync.NewMapOf[faultKey, Fault]()}
}

func (l *FaultLog) HandleFault(f Fault) {
	l.faults.Store(faultKey{f.Group, f.Sequence}, f)
}

// Len returns the number of recorded faults.
func (l *FaultLog) Len() int { return l.faults.Size() }

// Load returns the fault recorded for seq in group, if any.
func (l *FaultLog) Load(group int, seq int64) (Fault, bool) {
	return l.faults.Load(faultKey{group, seq})
}

// Faults returns every recorded fault ordered by group, then sequence.
func (l *FaultLog) Faults() []Fault {
	faults := make([]Fault, 0, l.faults.Size())
	l.faults.Range(func(_ faultKey, f Fault) bool {
		faults = append(faults, f)
		return true
	})
	slices.SortFunc(faults, func(a, b Fault) int {
		if c := cmp.Compare(a.Group, b.Group); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return faults
}
