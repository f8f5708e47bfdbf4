package wait

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
)

// Blocking parks waiters on a condition variable. Signals only take the
// lock while a waiter is parked.
type Blocking struct {
	mu   sync.Mutex
	cond sync.Cond

	_       cpu.CacheLinePad
	waiters atomic.Int32
	_       cpu.CacheLinePad
}

// NewBlocking returns a Blocking strategy.
func NewBlocking() *Blocking {
	b := &Blocking{}
	b.cond.L = &b.mu
	return b
}

func (b *Blocking) WaitFor(seq int64, cursor, dependent Sequence, alert Alert) (int64, error) {
	if cursor.Load() < seq {
		b.mu.Lock()
		// Registered before the cursor is re-read, so a publish that
		// sees no waiters is seen by the re-read.
		b.waiters.Add(1)
		for cursor.Load() < seq {
			if alert.IsClosed() {
				b.waiters.Add(-1)
				b.mu.Unlock()
				return -1, ErrAlerted
			}
			b.cond.Wait()
		}
		b.waiters.Add(-1)
		b.mu.Unlock()
	}
	return spinOn(seq, dependent, alert, runtime.Gosched)
}

func (b *Blocking) SignalAll() {
	if b.waiters.Load() == 0 {
		return
	}
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// LiteBlocking is Blocking without the lock on signals nobody waits for.
type LiteBlocking struct {
	mu   sync.Mutex
	cond sync.Cond

	_            cpu.CacheLinePad
	signalNeeded atomic.Bool
	_            cpu.CacheLinePad
}

// NewLiteBlocking returns a LiteBlocking strategy.
func NewLiteBlocking() *LiteBlocking {
	l := &LiteBlocking{}
	l.cond.L = &l.mu
	return l
}

func (l *LiteBlocking) WaitFor(seq int64, cursor, dependent Sequence, alert Alert) (int64, error) {
	if cursor.Load() < seq {
		l.mu.Lock()
		for {
			// The flag must be raised before the cursor is re-read,
			// otherwise a publish in between is never signalled.
			l.signalNeeded.Store(true)
			if cursor.Load() >= seq {
				break
			}
			if alert.IsClosed() {
				l.mu.Unlock()
				return -1, ErrAlerted
			}
			l.cond.Wait()
		}
		l.mu.Unlock()
	}
	return spinOn(seq, dependent, alert, runtime.Gosched)
}

func (l *LiteBlocking) SignalAll() {
	if l.signalNeeded.Load() && l.signalNeeded.Swap(false) {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}

// TimeoutBlocking parks like Blocking but gives up after a fixed
// timeout with ErrTimeout.
type TimeoutBlocking struct {
	timeout time.Duration
	waiters atomic.Int32
	mu      sync.Mutex
	ch      chan struct{} // closed and replaced on every signal
}

// NewTimeoutBlocking returns a TimeoutBlocking strategy.
func NewTimeoutBlocking(timeout time.Duration) *TimeoutBlocking {
	return &TimeoutBlocking{
		timeout: timeout,
		ch:      make(chan struct{}),
	}
}

func (t *TimeoutBlocking) WaitFor(seq int64, cursor, dependent Sequence, alert Alert) (int64, error) {
	if cursor.Load() < seq {
		t.waiters.Add(1)
		defer t.waiters.Add(-1)
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		for {
			t.mu.Lock()
			ch := t.ch
			t.mu.Unlock()
			if cursor.Load() >= seq {
				break
			}
			if alert.IsClosed() {
				return -1, ErrAlerted
			}
			select {
			case <-ch:
			case <-timer.C:
				return -1, ErrTimeout
			}
		}
	}
	return spinOn(seq, dependent, alert, runtime.Gosched)
}

func (t *TimeoutBlocking) SignalAll() {
	if t.waiters.Load() == 0 {
		return
	}
	t.mu.Lock()
	close(t.ch)
	t.ch = make(chan struct{})
	t.mu.Unlock()
}
