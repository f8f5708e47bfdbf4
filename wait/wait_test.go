package wait

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	"github.com/five-vee/ringpool/internal/pad"
)

type testAlert struct{ atomic.Bool }

func (a *testAlert) IsClosed() bool { return a.Load() }

func newStrategies(t *testing.T) map[Kind]Strategy {
	t.Helper()
	m := make(map[Kind]Strategy)
	for _, k := range Kinds() {
		s, err := New(k)
		if err != nil {
			t.Fatalf("New(%v) error = %v", k, err)
		}
		m[k] = s
	}
	return m
}

func TestWaitFor_AlreadyAvailable(t *testing.T) {
	for k, s := range newStrategies(t) {
		t.Run(k.String(), func(t *testing.T) {
			var cursor atomic.Int64
			cursor.Store(9)
			got, err := s.WaitFor(4, &cursor, &cursor, &testAlert{})
			if err != nil {
				t.Fatalf("WaitFor(4) error = %v", err)
			}
			if got != 9 {
				t.Errorf("WaitFor(4) = %d, want 9", got)
			}
		})
	}
}

func TestWaitFor_ReturnsAfterPublish(t *testing.T) {
	for k, s := range newStrategies(t) {
		t.Run(k.String(), func(t *testing.T) {
			var cursor atomic.Int64
			cursor.Store(-1)
			alert := &testAlert{}
			type result struct {
				seq int64
				err error
			}
			done := make(chan result, 1)
			go func() {
				for {
					seq, err := s.WaitFor(3, &cursor, &cursor, alert)
					if errors.Is(err, ErrTimeout) {
						continue
					}
					done <- result{seq, err}
					return
				}
			}()

			for i := int64(0); i <= 3; i++ {
				time.Sleep(time.Millisecond)
				cursor.Store(i)
				s.SignalAll()
				if i < 3 {
					select {
					case r := <-done:
						t.Fatalf("WaitFor(3) returned early with %+v at cursor %d", r, i)
					default:
					}
				}
			}

			select {
			case r := <-done:
				if r.err != nil || r.seq < 3 {
					t.Errorf("WaitFor(3) = (%d, %v), want (>=3, nil)", r.seq, r.err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("WaitFor(3) did not return after publish")
			}
		})
	}
}

func TestWaitFor_SpinsOnDependent(t *testing.T) {
	for k, s := range newStrategies(t) {
		t.Run(k.String(), func(t *testing.T) {
			var cursor, dependent atomic.Int64
			cursor.Store(10)
			dependent.Store(1)
			done := make(chan int64, 1)
			go func() {
				seq, _ := s.WaitFor(5, &cursor, &dependent, &testAlert{})
				done <- seq
			}()
			time.Sleep(5 * time.Millisecond)
			select {
			case got := <-done:
				t.Fatalf("WaitFor(5) = %d before dependent reached 5", got)
			default:
			}
			dependent.Store(5)
			select {
			case got := <-done:
				if got != 5 {
					t.Errorf("WaitFor(5) = %d, want 5", got)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("WaitFor(5) did not observe dependent")
			}
		})
	}
}

func TestWaitFor_Alert(t *testing.T) {
	for k, s := range newStrategies(t) {
		t.Run(k.String(), func(t *testing.T) {
			var cursor atomic.Int64
			cursor.Store(-1)
			alert := &testAlert{}
			done := make(chan error, 1)
			go func() {
				for {
					_, err := s.WaitFor(0, &cursor, &cursor, alert)
					if errors.Is(err, ErrTimeout) {
						continue
					}
					done <- err
					return
				}
			}()
			time.Sleep(5 * time.Millisecond)
			alert.Store(true)
			s.SignalAll()
			select {
			case err := <-done:
				if !errors.Is(err, ErrAlerted) {
					t.Errorf("WaitFor() error = %v, want %v", err, ErrAlerted)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("WaitFor() ignored the alert")
			}
		})
	}
}

func TestTimeoutBlocking_TimesOut(t *testing.T) {
	s := NewTimeoutBlocking(10 * time.Millisecond)
	var cursor atomic.Int64
	cursor.Store(-1)
	start := time.Now()
	_, err := s.WaitFor(0, &cursor, &cursor, &testAlert{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitFor() error = %v, want %v", err, ErrTimeout)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("WaitFor() returned after %v, want >= 10ms", elapsed)
	}
}

func TestParseKind(t *testing.T) {
	testCases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "blocking", want: KindBlocking},
		{in: "LITE_BLOCKING_WAIT_STRATEGY", want: KindLiteBlocking},
		{in: "timeout-blocking", want: KindTimeoutBlocking},
		{in: " Sleeping ", want: KindSleeping},
		{in: "YIELDING_WAIT_STRATEGY", want: KindYielding},
		{in: "busy_spin", want: KindBusySpin},
		{in: "phased-backoff", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownKind) {
					t.Errorf("ParseKind(%q) error = %v, want %v", tc.in, err, ErrUnknownKind)
				}
				return
			}
			if got != tc.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestKindStringRoundTrip(t *testing.T) {
	var got []Kind
	for _, k := range Kinds() {
		p, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q) error = %v", k.String(), err)
		}
		got = append(got, p)
	}
	if diff := cmp.Diff(Kinds(), got); diff != "" {
		t.Errorf("ParseKind(String()) mismatch (-want +got):\n%s", diff)
	}
	if _, err := New(Kind(42)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("New(42) error = %v, want %v", err, ErrUnknownKind)
	}
}

func TestSignalAll_NoWaiterSkipsLock(t *testing.T) {
	testCases := []struct {
		name string
		s    Strategy
		mu   func(Strategy) *sync.Mutex
	}{
		{"blocking", NewBlocking(), func(s Strategy) *sync.Mutex { return &s.(*Blocking).mu }},
		{"lite-blocking", NewLiteBlocking(), func(s Strategy) *sync.Mutex { return &s.(*LiteBlocking).mu }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mu := tc.mu(tc.s)
			mu.Lock()
			defer mu.Unlock()
			done := make(chan struct{})
			go func() {
				tc.s.SignalAll()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("SignalAll() took the lock with no waiter parked")
			}
		})
	}
}

func TestSignalFlagsOwnCacheLine(t *testing.T) {
	b := NewBlocking()
	if pad.SameLine(uintptr(unsafe.Pointer(&b.mu)), uintptr(unsafe.Pointer(&b.waiters))) {
		t.Errorf("Blocking.waiters shares a cache line with its mutex")
	}
	l := NewLiteBlocking()
	if pad.SameLine(uintptr(unsafe.Pointer(&l.mu)), uintptr(unsafe.Pointer(&l.signalNeeded))) {
		t.Errorf("LiteBlocking.signalNeeded shares a cache line with its mutex")
	}
}

func TestBlocking_WakesParkedWaiter(t *testing.T) {
	for _, s := range []Strategy{NewBlocking(), NewLiteBlocking()} {
		var cursor atomic.Int64
		cursor.Store(-1)
		alert := &testAlert{}
		got := make(chan int64, 1)
		go func() {
			available, _ := s.WaitFor(0, &cursor, &cursor, alert)
			got <- available
		}()
		// Wait until the waiter has registered before publishing.
		deadline := time.Now().Add(5 * time.Second)
		for !parked(s) {
			if time.Now().After(deadline) {
				t.Fatalf("%T: waiter never parked", s)
			}
			time.Sleep(100 * time.Microsecond)
		}
		cursor.Store(0)
		s.SignalAll()
		select {
		case available := <-got:
			if available != 0 {
				t.Errorf("%T: WaitFor() = %d, want 0", s, available)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%T: parked waiter was not woken", s)
		}
	}
}

func parked(s Strategy) bool {
	switch s := s.(type) {
	case *Blocking:
		return s.waiters.Load() > 0
	case *LiteBlocking:
		return s.signalNeeded.Load()
	}
	return false
}
