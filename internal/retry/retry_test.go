package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu        sync.Mutex
	attempts  int
	failures  int
	durations int
}

func (o *recordingObserver) ObserveAttempt(string) {
	o.mu.Lock()
	o.attempts++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveFailure(string) {
	o.mu.Lock()
	o.failures++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveDuration(string, float64) {
	o.mu.Lock()
	o.durations++
	o.mu.Unlock()
}

func fastConfig(obs Observer) Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Observer:       obs,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.Retryable != nil {
		t.Error("Retryable should be nil by default")
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	obs := &recordingObserver{}
	calls := 0

	err := Do(context.Background(), "op", fastConfig(obs), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if obs.attempts != 0 || obs.failures != 0 {
		t.Errorf("unexpected retry metrics: attempts=%d failures=%d", obs.attempts, obs.failures)
	}
	if obs.durations != 1 {
		t.Errorf("durations = %d, want 1", obs.durations)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	obs := &recordingObserver{}
	calls := 0

	err := Do(context.Background(), "op", fastConfig(obs), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if obs.attempts != 2 {
		t.Errorf("attempts = %d, want 2", obs.attempts)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	obs := &recordingObserver{}
	want := errors.New("always")
	calls := 0

	err := Do(context.Background(), "op", fastConfig(obs), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("Do() error = %v, want %v", err, want)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls)
	}
	if obs.failures != 1 {
		t.Errorf("failures = %d, want 1", obs.failures)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	config := fastConfig(nil)
	config.Retryable = func(err error) bool { return !errors.Is(err, fatal) }
	calls := 0

	err := Do(context.Background(), "op", config, func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do() error = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := Config{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	calls := 0
	err := Do(ctx, "op", config, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
