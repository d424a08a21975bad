package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv replaces the computed worker count when set.
const OverrideEnv = "STREAMBOX_WORKERS"

// Count returns GOMAXPROCS scaled by multiplier, at least 1 and at most
// limit. A limit of 0 means no cap.
func Count(multiplier float64, limit int) int {
	n := 0
	if v, err := strconv.Atoi(os.Getenv(OverrideEnv)); err == nil && v > 0 {
		n = v
	} else {
		n = int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	}

	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU is one worker per CPU.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO is two workers per CPU.
func ForIO(limit int) int {
	return Count(2.0, limit)
}
