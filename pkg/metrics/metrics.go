// Package metrics exposes Prometheus collectors for wallet submissions,
// rate-limit retries and liquidity saga outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "amm_client"

// Collectors groups every metric the client records. A nil *Collectors is
// valid and records nothing, so components can be built without metrics.
type Collectors struct {
	Submissions  *prometheus.CounterVec
	Retries      *prometheus.CounterVec
	SagaOutcomes *prometheus.CounterVec
	PacerWait    prometheus.Histogram
	HoldingPolls *prometheus.CounterVec
	PoolResolves *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing nil
// creates unregistered collectors, which is what tests usually want.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "submissions_total",
			Help:      "Wallet submissions by mode and normalized status.",
		}, []string{"mode", "status"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Rate-limited retries scheduled, by operation.",
		}, []string{"operation"}),
		SagaOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "saga_outcomes_total",
			Help:      "Add-liquidity sagas by terminal state.",
		}, []string{"state"}),
		PacerWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "pacer_wait_seconds",
			Help:      "Time callers spent waiting on the wallet pacer.",
			Buckets:   []float64{0, 0.5, 1, 2, 4, 8, 16},
		}),
		HoldingPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "selections_total",
			Help:      "Holding selections by outcome.",
		}, []string{"outcome"}),
		PoolResolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "resolutions_total",
			Help:      "Pool references handed out, by how they were chosen.",
		}, []string{"source"}),
	}

	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{c.Submissions, c.Retries, c.SagaOutcomes, c.PacerWait, c.HoldingPolls, c.PoolResolves} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveSubmission counts one normalized submission.
func (c *Collectors) ObserveSubmission(mode, status string) {
	if c == nil {
		return
	}
	c.Submissions.WithLabelValues(mode, status).Inc()
}

// ObserveRetry counts one scheduled retry of operation.
func (c *Collectors) ObserveRetry(operation string) {
	if c == nil {
		return
	}
	c.Retries.WithLabelValues(operation).Inc()
}

// ObserveSagaOutcome counts one saga reaching a terminal state.
func (c *Collectors) ObserveSagaOutcome(state string) {
	if c == nil {
		return
	}
	c.SagaOutcomes.WithLabelValues(state).Inc()
}

// ObservePacerWait records how long a caller was held by the pacer.
func (c *Collectors) ObservePacerWait(d time.Duration) {
	if c == nil {
		return
	}
	c.PacerWait.Observe(d.Seconds())
}

// ObserveHoldingSelection counts one holding selection by outcome
// ("found", "not_found" or "error").
func (c *Collectors) ObserveHoldingSelection(outcome string) {
	if c == nil {
		return
	}
	c.HoldingPolls.WithLabelValues(outcome).Inc()
}

// ObservePoolResolution counts one resolved pool reference by source.
func (c *Collectors) ObservePoolResolution(source string) {
	if c == nil {
		return
	}
	c.PoolResolves.WithLabelValues(source).Inc()
}
