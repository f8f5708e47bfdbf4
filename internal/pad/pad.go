// Package pad provides counters that live alone on their cache line.
package pad

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is the padding width used on the target architecture.
const CacheLineSize = int(unsafe.Sizeof(cpu.CacheLinePad{}))

// AtomicInt64 is an atomic 64-bit int that is padded on both sides
// to prevent false sharing.
type AtomicInt64 struct {
	_ cpu.CacheLinePad
	atomic.Int64
	_ cpu.CacheLinePad
}

// NewAtomicInt64 returns a padded atomic initialized to v.
func NewAtomicInt64(v int64) *AtomicInt64 {
	a := &AtomicInt64{}
	a.Store(v)
	return a
}

// Int64 is a int64 padded to prevent false sharing.
// It is only safe for single-goroutine use.
type Int64 struct {
	_   cpu.CacheLinePad
	Val int64
	_   cpu.CacheLinePad
}

// SameLine reports whether the two addresses fall on the same cache line.
func SameLine(a, b uintptr) bool {
	return a/uintptr(CacheLineSize) == b/uintptr(CacheLineSize)
}

// Isolated reports whether every pointer lands on a cache line
// no other pointer in ptrs touches. Each pointee is assumed to be 8 bytes.
func Isolated(ptrs ...unsafe.Pointer) bool {
	for i := range ptrs {
		ai := uintptr(ptrs[i])
		for j := i + 1; j < len(ptrs); j++ {
			aj := uintptr(ptrs[j])
			if SameLine(ai, aj) || SameLine(ai+7, aj) || SameLine(ai, aj+7) {
				return false
			}
		}
	}
	return true
}
