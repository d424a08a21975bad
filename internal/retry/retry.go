// Package retry runs fallible operations with capped exponential backoff.
package retry

import (
	"context"
	"time"

	"streambox/internal/logging"
)

// Observer records retry metrics. Implementations are provided by the
// metrics package to break the import cycle between retry and metrics.
type Observer interface {
	ObserveAttempt(operation string)
	ObserveFailure(operation string)
	ObserveDuration(operation string, durationSeconds float64)
}

// defaultObserver is the package-level observer set at startup.
// If nil, metric recording is skipped.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
// Call this once at startup after creating the observer implementation.
func SetObserver(o Observer) {
	defaultObserver = o
}

// Config configures retry behavior
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable decides whether an error is worth another attempt.
	// If nil, every error is retried.
	Retryable func(error) bool
	// Observer overrides the package-level observer for this operation.
	Observer Observer
}

// DefaultConfig returns defaults suited to external runtime commands,
// where failures are usually registry or host-resource hiccups.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

func (c *Config) observer() Observer {
	if c.Observer != nil {
		return c.Observer
	}
	return defaultObserver
}

// Do calls fn until it succeeds, returns a non-retryable error, retries are
// exhausted, or ctx is done. It returns the last error from fn, or ctx.Err()
// if the context ended while waiting.
func Do(ctx context.Context, operation string, config Config, fn func(context.Context) error) error {
	start := time.Now()
	obs := config.observer()
	defer func() {
		if obs != nil {
			obs.ObserveDuration(operation, time.Since(start).Seconds())
		}
	}()

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d", operation, attempt)
			}
			return nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxRetries {
			break
		}

		if obs != nil {
			obs.ObserveAttempt(operation)
		}
		logging.Debug("%s failed: %v, retrying in %v (attempt %d/%d)",
			operation, err, backoff, attempt+1, config.MaxRetries)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		// Exponential backoff with cap
		backoff *= 2
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	logging.Warn("%s failed after %d retries: %v", operation, config.MaxRetries, lastErr)
	if obs != nil {
		obs.ObserveFailure(operation)
	}
	return lastErr
}
