package pad

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"
)

func TestAtomicInt64Layout(t *testing.T) {
	var a AtomicInt64
	offset := unsafe.Offsetof(a.Int64)
	if int(offset) < CacheLineSize {
		t.Errorf("Offsetof(Int64) = %d, want >= %d", offset, CacheLineSize)
	}
	if tail := int(unsafe.Sizeof(a)) - int(offset) - 8; tail < CacheLineSize {
		t.Errorf("trailing padding = %d, want >= %d", tail, CacheLineSize)
	}
}

func TestAdjacentCountersIsolated(t *testing.T) {
	type pair struct {
		a AtomicInt64
		b AtomicInt64
		c Int64
	}
	var p pair
	if !Isolated(unsafe.Pointer(&p.a.Int64), unsafe.Pointer(&p.b.Int64), unsafe.Pointer(&p.c.Val)) {
		t.Errorf("Isolated() = false for padded neighbours")
	}

	// At most one line boundary falls between three consecutive words.
	var u [3]atomic.Int64
	if Isolated(unsafe.Pointer(&u[0]), unsafe.Pointer(&u[1]), unsafe.Pointer(&u[2])) {
		t.Errorf("Isolated() = true for unpadded neighbours")
	}
}

func TestSameLine(t *testing.T) {
	line := uintptr(CacheLineSize)
	testCases := []struct {
		name string
		a, b uintptr
		want bool
	}{
		{"same address", 4 * line, 4 * line, true},
		{"start and end of line", 4 * line, 5*line - 1, true},
		{"adjacent lines", 5*line - 1, 5 * line, false},
		{"far apart", 0, 9 * line, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameLine(tc.a, tc.b); got != tc.want {
				t.Errorf("SameLine(%d, %d) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestNewAtomicInt64(t *testing.T) {
	if got := NewAtomicInt64(-1).Load(); got != -1 {
		t.Errorf("NewAtomicInt64(-1).Load() = %d, want -1", got)
	}
}

// A furious writer and an innocuous reader on neighbouring fields.
// Compare ns/op of the two benchmarks to see the cost of false sharing.
func benchmarkWriterReader(b *testing.B, writer, reader *atomic.Int64) {
	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			_ = reader.Load()
		}
	}()
	for b.Loop() {
		writer.Add(1)
	}
	stop.Store(true)
	wg.Wait()
}

func BenchmarkFalseSharing_Unpadded(b *testing.B) {
	var s struct {
		readOnly  atomic.Int64
		writeOnly atomic.Int64
	}
	benchmarkWriterReader(b, &s.writeOnly, &s.readOnly)
}

func BenchmarkFalseSharing_Padded(b *testing.B) {
	var s struct {
		readOnly  AtomicInt64
		writeOnly AtomicInt64
	}
	benchmarkWriterReader(b, &s.writeOnly.Int64, &s.readOnly.Int64)
}
