package metricsvc

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryableError marks an error as eligible for the retry loop in
// doWithRetry. It is
// the Go analogue of the transient/permanent distinction every backend
// client in the retrieval pack draws before retrying.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func newRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// RetryConfig controls the exponential-backoff-with-jitter retry loop used
// by the metric service, per spec.md §4.2 and §7.
type RetryConfig struct {
	MaxAttempts         int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	BackoffFactor       float64
	RandomizationFactor float64
}

// DefaultRetryConfig matches the bounded-attempt-count default in spec.md
// §4.2 ("up to a bounded attempt count (default 3)").
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialDelay:        200 * time.Millisecond,
		MaxDelay:            5 * time.Second,
		BackoffFactor:       2.0,
		RandomizationFactor: 0.2,
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * pow(c.BackoffFactor, attempt)
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	jitter := d * c.RandomizationFactor * (2*rand.Float64() - 1)
	d += jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// doWithRetry runs fn up to cfg.MaxAttempts times, retrying only errors
// wrapped as *RetryableError, with exponential backoff and jitter between
// attempts. It stops immediately on a non-retryable error or on context
// cancellation.
func doWithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var retryable *RetryableError
		if !errors.As(err, &retryable) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-time.After(cfg.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// classifyPrometheusError wraps err as *RetryableError when it looks like a
// transient failure (network error, 5xx, 408, 429); 4xx other than 408/429
// is left unwrapped so the caller surfaces it immediately, per spec.md §7.
func classifyPrometheusError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	transientMarkers := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"timed out",
		"eof",
		"too many requests",
		"429",
		"500",
		"502",
		"503",
		"504",
		"408",
		"i/o timeout",
		"no such host",
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return newRetryableError(err)
		}
	}
	return err
}
