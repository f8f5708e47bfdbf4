package ringpool_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"github.com/five-vee/ringpool"
)

var errTest = errors.New("boom")

func TestFault(t *testing.T) {
	f := ringpool.Fault{Group: 1, Worker: 2, Sequence: 42, Err: errTest}
	if got, want := f.Error(), "group 1 worker 2 sequence 42: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(f, errTest) {
		t.Errorf("errors.Is(fault, errTest) = false")
	}
}

func TestFaultLog(t *testing.T) {
	l := ringpool.NewFaultLog()
	in := []ringpool.Fault{
		{Group: 1, Sequence: 3, Err: errTest},
		{Group: 0, Sequence: 9, Err: errTest},
		{Group: 0, Sequence: 2, Worker: 1, Err: errTest},
		{Group: 1, Sequence: 3, Worker: 4, Err: errTest}, // replaces the first
	}
	for _, f := range in {
		l.HandleFault(f)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	want := []ringpool.Fault{in[2], in[1], in[3]}
	if diff := cmp.Diff(want, l.Faults(), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("Faults() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := l.Load(2, 3); ok {
		t.Errorf("Load(2, 3) found a fault")
	}
	if f, ok := l.Load(1, 3); !ok || f.Worker != 4 {
		t.Errorf("Load(1, 3) = %v, %v", f, ok)
	}
}

func TestTeeAndLogFaults(t *testing.T) {
	var buf bytes.Buffer
	l := ringpool.NewFaultLog()
	h := ringpool.TeeFaults(l, ringpool.LogFaults(zerolog.New(&buf)))
	h.HandleFault(ringpool.Fault{Group: 0, Worker: 1, Sequence: 7, Err: errTest})

	if l.Len() != 1 {
		t.Errorf("FaultLog.Len() = %d, want 1", l.Len())
	}
	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"sequence":7`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}
