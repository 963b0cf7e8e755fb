// Package retry retries operations against a live process that can fail
// transiently, such as reading its memory map while it is being updated.
//
// The wait before attempt n (n >= 1) is InitialBackoff * 2^(n-1), capped at
// MaxBackoff, plus jitter growing linearly with n.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"syscall"
	"time"
)

// Config is the retry schedule. MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the number of calls, including the first.
	MaxRetries int
	// InitialBackoff is the wait before the second call.
	InitialBackoff time.Duration
	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration
	// Jitter is the fraction of the wait added at the last attempt, in [0, 1].
	Jitter float64
}

// ShouldRetryFunc reports whether err is worth another attempt. A nil
// ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, shouldRetry rejects its error, ctx is done
// or cfg.MaxRetries calls were made. The last error is wrapped.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(cfg, attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Transient reports whether err is an interrupted or momentarily
// unavailable system call.
func Transient(err error) bool {
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY)
}

func calculateBackoff(cfg Config, attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1)) * float64(cfg.InitialBackoff))
	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}
	if cfg.Jitter > 0 {
		backoff += time.Duration(float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries))
	}
	return backoff
}
