package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(OverrideEnv, "")
	cpus := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{"one per CPU", 1.0, 0, cpus},
		{"two per CPU", 2.0, 0, cpus * 2},
		{"capped by limit", 2.0, 1, 1},
		{"never below one", 0.0001, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCountOverride(t *testing.T) {
	tests := []struct {
		name  string
		value string
		limit int
		want  int
	}{
		{"override used", "7", 0, 7},
		{"override capped", "7", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(OverrideEnv, tt.value)
			if got := Count(1.0, tt.limit); got != tt.want {
				t.Errorf("Count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountIgnoresBadOverride(t *testing.T) {
	for _, v := range []string{"zero", "0", "-4"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv(OverrideEnv, v)
			if got, want := ForCPU(0), runtime.GOMAXPROCS(0); got != want {
				t.Errorf("ForCPU(0) = %d, want %d", got, want)
			}
		})
	}
}

func TestForIODoublesForCPU(t *testing.T) {
	t.Setenv(OverrideEnv, "")
	if ForIO(0) != 2*ForCPU(0) {
		t.Errorf("ForIO(0) = %d, ForCPU(0) = %d", ForIO(0), ForCPU(0))
	}
}
