package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/retry"
)

type httpError struct {
	status     int
	retryAfter string
}

func (e *httpError) Error() string            { return fmt.Sprintf("http status %d", e.status) }
func (e *httpError) StatusCode() int          { return e.status }
func (e *httpError) RetryAfterHeader() string { return e.retryAfter }

var _ = Describe("Executor", func() {
	var (
		logger *logrus.Logger
		slept  []time.Duration
		exec   *retry.Executor
		ctx    context.Context
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		slept = nil
		ctx = context.Background()
		exec = retry.NewExecutor(logger, retry.WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}))
	})

	It("paces the next call after a failed one", func() {
		gap := 150 * time.Millisecond
		paced := retry.NewExecutor(logger, retry.WithPacer(retry.NewPacer(gap, nil)))
		var stamps []time.Time

		_, err := retry.Do(ctx, paced, "submit", func(context.Context) (int, error) {
			stamps = append(stamps, time.Now())
			return 0, errors.New("ledger rejected")
		}, nil)
		Expect(err).To(MatchError("ledger rejected"))

		_, err = retry.Do(ctx, paced, "submit", func(context.Context) (int, error) {
			stamps = append(stamps, time.Now())
			return 1, nil
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(stamps).To(HaveLen(2))
		Expect(stamps[1].Sub(stamps[0])).To(BeNumerically(">=", gap-10*time.Millisecond))
	})

	It("retries a 429 on the schedule and returns the eventual success", func() {
		calls := 0
		var notified []time.Duration

		out, err := retry.Do(ctx, exec, "submit", func(context.Context) (string, error) {
			calls++
			if calls <= 2 {
				return "", &httpError{status: http.StatusTooManyRequests}
			}
			return "ok", nil
		}, func(_ int, d time.Duration, _ error) {
			notified = append(notified, d)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("ok"))
		Expect(calls).To(Equal(3))
		Expect(slept).To(Equal([]time.Duration{2 * time.Second, 4 * time.Second}))
		Expect(notified).To(Equal(slept))
	})

	It("makes schedule+1 attempts and returns the last failure", func() {
		calls := 0
		var last error

		_, err := retry.Do(ctx, exec, "submit", func(context.Context) (int, error) {
			calls++
			last = fmt.Errorf("attempt %d: rate limit exceeded", calls)
			return 0, last
		}, nil)

		Expect(calls).To(Equal(exec.MaxAttempts()))
		Expect(calls).To(Equal(5))
		Expect(err).To(BeIdenticalTo(last))
		Expect(slept).To(Equal(retry.DefaultSchedule))
	})

	It("does not retry other failures", func() {
		calls := 0
		boom := errors.New("boom")

		_, err := retry.Do(ctx, exec, "submit", func(context.Context) (int, error) {
			calls++
			return 0, boom
		}, nil)

		Expect(err).To(MatchError(boom))
		Expect(calls).To(Equal(1))
		Expect(slept).To(BeEmpty())
	})

	It("prefers the server Retry-After hint", func() {
		calls := 0
		_, err := retry.Do(ctx, exec, "submit", func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, &httpError{status: http.StatusTooManyRequests, retryAfter: "9"}
			}
			if calls == 2 {
				return 0, domain.NewDomainError(domain.CodeRateLimited, "slow down", nil).WithRetryAfter(1500 * time.Millisecond)
			}
			return 1, nil
		}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(slept).To(Equal([]time.Duration{9 * time.Second, 1500 * time.Millisecond}))
	})

	It("stops when the context is cancelled during backoff", func() {
		cancelled := retry.NewExecutor(logger, retry.WithSleep(func(context.Context, time.Duration) error {
			return context.Canceled
		}))
		calls := 0

		_, err := retry.Do(ctx, cancelled, "submit", func(context.Context) (int, error) {
			calls++
			return 0, &httpError{status: http.StatusTooManyRequests}
		}, nil)

		Expect(err).To(MatchError(context.Canceled))
		Expect(calls).To(Equal(1))
	})
})

var _ = Describe("IsRateLimited", func() {
	It("finds a 429 deep in the chain", func() {
		inner := &httpError{status: http.StatusTooManyRequests}
		wrapped := fmt.Errorf("submit: %w", fmt.Errorf("provider: %w", inner))
		Expect(retry.IsRateLimited(wrapped)).To(BeTrue())
	})

	It("finds a 429 inside joined errors", func() {
		joined := errors.Join(errors.New("first"), &httpError{status: http.StatusTooManyRequests})
		Expect(retry.IsRateLimited(joined)).To(BeTrue())
	})

	It("matches on the message", func() {
		Expect(retry.IsRateLimited(errors.New("Rate Limit reached"))).To(BeTrue())
		Expect(retry.IsRateLimited(errors.New("got 429 from gateway"))).To(BeTrue())
	})

	It("ignores other failures", func() {
		Expect(retry.IsRateLimited(nil)).To(BeFalse())
		Expect(retry.IsRateLimited(&httpError{status: http.StatusConflict})).To(BeFalse())
	})
})

var _ = Describe("ParseRetryAfter", func() {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	It("parses seconds", func() {
		Expect(retry.ParseRetryAfter("3", now)).To(Equal(3 * time.Second))
		Expect(retry.ParseRetryAfter("0", now)).To(BeZero())
		Expect(retry.ParseRetryAfter("-1", now)).To(BeZero())
	})

	It("parses HTTP dates relative to now", func() {
		at := now.Add(5 * time.Second).Format(http.TimeFormat)
		Expect(retry.ParseRetryAfter(at, now)).To(Equal(5 * time.Second))

		past := now.Add(-5 * time.Second).Format(http.TimeFormat)
		Expect(retry.ParseRetryAfter(past, now)).To(BeZero())
	})

	It("ignores garbage", func() {
		Expect(retry.ParseRetryAfter("soon", now)).To(BeZero())
		Expect(retry.ParseRetryAfter("", now)).To(BeZero())
	})
})
