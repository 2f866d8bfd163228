package resilience

import (
	"context"
	"math"
	"regexp"
	"time"
)

// RetryConfig controls the backoff behavior of Do and DoSmart.
type RetryConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Result holds the outcome of a retried operation. When Success is
// false, Err is the error from the last attempt observed.
type Result[T any] struct {
	Success    bool
	Value      T
	Err        error
	Attempts   int
	TotalDelay time.Duration
}

// Do invokes fn up to cfg.MaxRetries times, sleeping with exponential
// backoff between failed attempts. The sleep respects ctx cancellation.
func Do[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) Result[T] {
	var lastErr error
	var totalDelay time.Duration

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Success: true, Value: value, Attempts: attempt, TotalDelay: totalDelay}
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoff(cfg, attempt)
		totalDelay += delay
		if err := sleep(ctx, delay); err != nil {
			return Result[T]{Err: err, Attempts: attempt, TotalDelay: totalDelay}
		}
	}

	return Result[T]{Err: lastErr, Attempts: cfg.MaxRetries, TotalDelay: totalDelay}
}

// DoSmart behaves like Do but stops retrying as soon as an attempt
// fails with an error that is not retryable. The attempt count still
// reflects the attempts actually made.
func DoSmart[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) Result[T] {
	var lastErr error
	var totalDelay time.Duration

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Success: true, Value: value, Attempts: attempt, TotalDelay: totalDelay}
		}
		lastErr = err

		if !IsRetryable(err) || attempt == cfg.MaxRetries {
			return Result[T]{Err: lastErr, Attempts: attempt, TotalDelay: totalDelay}
		}

		delay := backoff(cfg, attempt)
		totalDelay += delay
		if err := sleep(ctx, delay); err != nil {
			return Result[T]{Err: err, Attempts: attempt, TotalDelay: totalDelay}
		}
	}

	return Result[T]{Err: lastErr, Attempts: cfg.MaxRetries, TotalDelay: totalDelay}
}

var retryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`(?i)timeout`),
	regexp.MustCompile(`(?i)network`),
	regexp.MustCompile(`(?i)temporary`),
	regexp.MustCompile(`(?i)unavailable`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)quota exceeded`),
}

// IsRetryable reports whether an error looks transient based on its
// message. The classification is heuristic.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range retryablePatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1)))
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
