package retry

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/clearportx/amm-client/pkg/metrics"
)

// Pacer enforces a minimum gap between consecutive wallet calls across all
// callers that share it. Slots are reserved before the caller sleeps, so two
// concurrent callers never observe the same free slot.
type Pacer struct {
	gap     time.Duration
	limiter *rate.Limiter
	metrics *metrics.Collectors
}

// NewPacer creates a pacer. A non-positive gap disables pacing.
func NewPacer(gap time.Duration, m *metrics.Collectors) *Pacer {
	limit := rate.Inf
	if gap > 0 {
		limit = rate.Every(gap)
	}
	return &Pacer{
		gap:     gap,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
	}
}

// Gap returns the configured minimum gap.
func (p *Pacer) Gap() time.Duration {
	return p.gap
}

// Wait blocks until the caller's reserved slot arrives or ctx is done. On
// cancellation the slot is handed back.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	r := p.limiter.Reserve()
	delay := r.Delay()
	p.metrics.ObservePacerWait(delay)
	if delay <= 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
