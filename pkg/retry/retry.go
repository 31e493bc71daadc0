// Package retry runs operations with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
)

// Options control one retried operation.
type Options struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// JitterFraction adds a random extra wait of up to this fraction of the delay.
	JitterFraction float64
	// Retryable decides whether a failure is retried. Nil retries every error.
	Retryable func(error) bool
}

// DefaultOptions are three attempts starting at one second, doubling.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
	}
}

// Hooks observe retries, e.g. for metrics.
type Hooks struct {
	OnRetry     func(name string, attempt int, err error)
	OnExhausted func(name string, err error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor holds the shared logger, sleeper and hooks used by Do.
type Executor struct {
	logger logger.Logger
	sleep  Sleeper
	hooks  Hooks
}

// New creates an Executor that sleeps on real timers.
func New(log logger.Logger, hooks Hooks) *Executor {
	return &Executor{
		logger: log,
		sleep:  sleepCtx,
		hooks:  hooks,
	}
}

// WithSleeper returns a copy of e using s instead of real timers.
func (e *Executor) WithSleeper(s Sleeper) *Executor {
	cp := *e
	cp.sleep = s
	return &cp
}

// Do runs op until it succeeds, fails with a non-retryable error, or runs out
// of attempts. The first attempt counts as attempt 1. It never returns the
// error: ok=false is the "no result" signal callers degrade on.
func Do[T any](ctx context.Context, e *Executor, name string, opts Options, op func(ctx context.Context) (T, error)) (T, bool) {
	var zero T
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = 1
	}

	delay := opts.InitialDelay
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, true
		}

		if opts.Retryable != nil && !opts.Retryable(err) {
			e.logger.Error(ctx, "%s failed with non-retryable error on attempt %d/%d: %v",
				name, attempt, opts.MaxAttempts, err)
			e.exhausted(name, err)
			return zero, false
		}

		if attempt == opts.MaxAttempts {
			e.logger.Error(ctx, "Final attempt %d/%d failed for %s: %v", attempt, opts.MaxAttempts, name, err)
			e.exhausted(name, err)
			return zero, false
		}

		wait := withJitter(delay, opts.JitterFraction)
		e.logger.Warn(ctx, "Attempt %d/%d failed for %s: %v. Retrying in %s",
			attempt, opts.MaxAttempts, name, err, wait)
		if e.hooks.OnRetry != nil {
			e.hooks.OnRetry(name, attempt, err)
		}

		if err := e.sleep(ctx, wait); err != nil {
			e.logger.Warn(ctx, "%s abandoned while waiting to retry: %v", name, err)
			e.exhausted(name, err)
			return zero, false
		}

		delay = time.Duration(float64(delay) * opts.BackoffFactor)
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return zero, false
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, e *Executor, name string, opts Options, op func(ctx context.Context) error) bool {
	_, ok := Do(ctx, e, name, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return ok
}

func (e *Executor) exhausted(name string, err error) {
	if e.hooks.OnExhausted != nil {
		e.hooks.OnExhausted(name, err)
	}
}

func withJitter(delay time.Duration, fraction float64) time.Duration {
	if delay <= 0 || fraction <= 0 {
		return delay
	}
	span := int64(float64(delay) * fraction)
	if span <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int64N(span))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
