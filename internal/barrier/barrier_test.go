package barrier

import (
	"math"
	"testing"
)

// Fixed is a barrier pinned to a constant sequence.
type Fixed int64

func (f Fixed) Load() int64 { return int64(f) }

func TestMinimumBarrier(t *testing.T) {
	testCases := []struct {
		name string
		seqs []int64
		want int64
	}{
		{"single", []int64{7}, 7},
		{"ascending", []int64{-1, 3, 9}, -1},
		{"descending", []int64{9, 3, 1}, 1},
		{"equal", []int64{4, 4, 4}, 4},
		{"extremes", []int64{math.MaxInt64 - 1, -1, math.MaxInt64 - 2}, -1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var m MinimumBarrier
			for _, s := range tc.seqs {
				m = append(m, Fixed(s))
			}
			if got := m.Load(); got != tc.want {
				t.Errorf("MinimumBarrier%v.Load() = %d, want %d", tc.seqs, got, tc.want)
			}
		})
	}
}

func TestOf(t *testing.T) {
	if _, ok := Of(Fixed(1)).(Fixed); !ok {
		t.Errorf("Of(single) did not return the barrier itself")
	}
	if got := Of(Fixed(5), Fixed(2)).Load(); got != 2 {
		t.Errorf("Of(5, 2).Load() = %d, want 2", got)
	}
}
