package utils

import (
	"runtime"
)

// CPUCounter reports how many CPUs the current process may be scheduled on.
type CPUCounter func() int

// AvailableCPUs returns the number of CPUs in the process's scheduling
// affinity mask where the platform exposes one, and the total logical CPU
// count otherwise. It never returns less than 1.
func AvailableCPUs() int {
	if n, ok := affinityCPUs(); ok && n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
