// Package affinity pins consumer goroutines to CPUs.
package affinity

import (
	"fmt"
	"runtime"
)

// ErrUnsupported is returned where the platform cannot pin threads.
var ErrUnsupported = fmt.Errorf("affinity: unsupported platform")

// Pin locks the calling goroutine to its OS thread and binds that
// thread to cpu. The goroutine keeps its thread until it exits.
func Pin(cpu int) error {
	if cpu < 0 {
		return fmt.Errorf("affinity: invalid cpu %d", cpu)
	}
	runtime.LockOSThread()
	return setAffinity(cpu)
}

// Assign returns the CPU for the i-th consumer goroutine, cycling
// through cpus. It returns -1 when cpus is empty.
func Assign(cpus []int, i int) int {
	if len(cpus) == 0 {
		return -1
	}
	return cpus[i%len(cpus)]
}
