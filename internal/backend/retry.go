package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RetryConfig controls how connection attempts back off on transient
// failures. Retrying only covers establishing the stream; once SSE frames
// flow, failures surface through the normal completion path.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig matches interactive usage: a few quick attempts, then
// give up and let the user resubmit.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2.0,
	}
}

// connectError wraps a failed connection attempt with retry context.
type connectError struct {
	err        error
	statusCode int
	retryable  bool
}

func (e *connectError) Error() string {
	if e.statusCode > 0 {
		return fmt.Sprintf("backend: connect failed (status %d): %v", e.statusCode, e.err)
	}
	return fmt.Sprintf("backend: connect failed: %v", e.err)
}

func (e *connectError) Unwrap() error { return e.err }

func isRetryableStatusCode(code int) bool {
	return code >= 500 || code == 429
}

func isRetryableNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// withRetry runs fn until it succeeds, fails permanently, or the attempts are
// exhausted. Backoff is exponential and honors context cancellation.
func withRetry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil || config.MaxRetries <= 0 {
		return fn()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var cerr *connectError
		if !errors.As(err, &cerr) || !cerr.retryable {
			return err
		}
		if attempt >= config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("backend: cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("backend: retries exhausted after %d attempts: %w", config.MaxRetries+1, lastErr)
}
