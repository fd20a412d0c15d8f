package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/metrics"
)

// DefaultSchedule is the backoff applied to consecutive rate-limited attempts.
var DefaultSchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	7 * time.Second,
	12 * time.Second,
}

// RetryFunc is called before each retry with the 1-based number of the
// attempt that failed, the delay about to be slept and the failure.
type RetryFunc func(attempt int, delay time.Duration, err error)

// Executor retries rate-limited operations on a fixed backoff schedule.
// Any other failure is returned immediately.
type Executor struct {
	schedule []time.Duration
	pacer    *Pacer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *logrus.Logger
	metrics  *metrics.Collectors
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSchedule replaces DefaultSchedule.
func WithSchedule(schedule []time.Duration) Option {
	return func(e *Executor) {
		e.schedule = append([]time.Duration(nil), schedule...)
	}
}

// WithPacer makes every attempt wait for the shared pacer first.
func WithPacer(p *Pacer) Option {
	return func(e *Executor) {
		e.pacer = p
	}
}

// WithSleep replaces the context-aware sleep, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithClock replaces time.Now for Retry-After date arithmetic.
func WithClock(fn func() time.Time) Option {
	return func(e *Executor) {
		e.now = fn
	}
}

// WithMetrics records scheduled retries.
func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an Executor with DefaultSchedule.
func NewExecutor(logger *logrus.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Executor{
		schedule: DefaultSchedule,
		sleep:    SleepContext,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxAttempts is the total number of attempts Do will make.
func (e *Executor) MaxAttempts() int {
	return len(e.schedule) + 1
}

// Do runs task, retrying while it fails with a rate-limit error. The delay
// before retry i is the server's Retry-After hint when present, otherwise
// schedule[i]. When the schedule is exhausted the last failure is returned
// without a further attempt.
func Do[T any](ctx context.Context, e *Executor, operation string, task func(context.Context) (T, error), onRetry RetryFunc) (T, error) {
	var zero T
	log := e.logger.WithField("operation", operation)

	for attempt := 1; ; attempt++ {
		if err := e.pacer.Wait(ctx); err != nil {
			return zero, fmt.Errorf("pacer wait failed: %w", err)
		}

		result, err := task(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		if attempt >= e.MaxAttempts() {
			log.WithFields(logrus.Fields{
				"attempts": attempt,
				"error":    err,
			}).Warn("Rate limit retries exhausted")
			return zero, err
		}

		delay := e.schedule[attempt-1]
		if hint := RetryAfterHint(err, e.now()); hint > 0 {
			delay = hint
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err,
		}).Info("Rate limited, backing off before retry")
		e.metrics.ObserveRetry(operation)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
