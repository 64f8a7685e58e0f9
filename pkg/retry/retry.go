// Package retry runs operations with exponential backoff. Used for LLM calls
// and for opening connections to the engine database and data stores.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, spread applied to every wait
	MaxSameErrorType int     // Consecutive same-type errors before giving up; 0 disables
}

// DefaultConfig: 3 retries from 100ms, doubling, capped at 5s, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// LLMConfig is tuned for model calls: fewer, slower retries.
func LLMConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:       maxRetries,
		InitialDelay:     500 * time.Millisecond,
		MaxDelay:         4 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.2,
		MaxSameErrorType: 3,
	}
}

// backoff yields successive wait durations.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps for the current delay (with jitter) and grows it. Returns the
// context error if ctx ends first.
func (b *backoff) wait(ctx context.Context) error {
	timer := time.NewTimer(applyJitter(b.delay, b.cfg.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.cfg.MaxDelay > 0 && b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

// applyJitter returns delay +/- delay*jitterFactor*rand(-1..1).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn until it succeeds or MaxRetries is exhausted, returning the
// last error. Every error is retried.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value (pool constructors and
// the like). The last result is returned even on error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, false, fn)
}

// DoIfRetryable retries only transient errors; a permanent error is returned
// at once. After MaxSameErrorType consecutive failures of the same kind the
// error is escalated to permanent.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, true, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoIfRetryableWithResult is DoIfRetryable for functions that return a value.
func DoIfRetryableWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, true, fn)
}

func run[T any](ctx context.Context, cfg *Config, transientOnly bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := newBackoff(cfg)
	var (
		result        T
		lastErr       error
		lastErrorType string
		sameCount     int
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if transientOnly {
			if !IsRetryable(err) {
				return result, err
			}
			errType := classifyErrorType(err)
			if errType == lastErrorType {
				sameCount++
			} else {
				sameCount, lastErrorType = 1, errType
			}
			if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
				return result, fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, errType, err)
			}
		}

		if attempt < cfg.MaxRetries {
			if waitErr := b.wait(ctx); waitErr != nil {
				return result, waitErr
			}
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	// connection
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"bad connection",
	"driver: bad connection",
	// http
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service busy",
	"service unavailable",
	"too many requests",
	"overloaded",
}

// IsRetryable reports whether err is transient. Errors implementing
// RetryableError anywhere in their chain decide for themselves; otherwise the
// message is matched against known transient patterns. Context cancellation
// is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated failures of one kind can be detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}
	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429", "404", "403", "401", "400"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	case strings.Contains(errStr, "overloaded"):
		return "overloaded"
	}
	return "unknown"
}
