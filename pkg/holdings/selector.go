// Package holdings finds a freshly created ledger holding by delegating a
// bounded poll to the backend.
package holdings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/metrics"
)

const (
	// DefaultTimeoutSeconds is how long the backend polls when unset
	DefaultTimeoutSeconds = 30
	// DefaultPollIntervalMs is the backend poll interval when unset
	DefaultPollIntervalMs = 2000
)

// Backend is the holding selection RPC.
type Backend interface {
	SelectHolding(ctx context.Context, req backend.HoldingSelectRequest) (*backend.HoldingSelectResponse, error)
}

// Request describes the holding to wait for. Zero TimeoutSeconds and
// PollIntervalMs take the defaults.
type Request struct {
	OwnerParty      string
	InstrumentAdmin string
	InstrumentID    string
	MinAmount       decimal.Decimal
	TimeoutSeconds  int
	PollIntervalMs  int
}

// Validate checks required fields.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.OwnerParty) == "":
		return domain.Validation("ownerParty is required")
	case strings.TrimSpace(r.InstrumentAdmin) == "":
		return domain.Validation("instrumentAdmin is required")
	case strings.TrimSpace(r.InstrumentID) == "":
		return domain.Validation("instrumentId is required")
	case r.MinAmount.IsNegative():
		return domain.Validation("minAmount must not be negative, got %s", r.MinAmount)
	case r.TimeoutSeconds < 0:
		return domain.Validation("timeoutSeconds must not be negative, got %d", r.TimeoutSeconds)
	case r.PollIntervalMs < 0:
		return domain.Validation("pollIntervalMs must not be negative, got %d", r.PollIntervalMs)
	}
	return nil
}

func (r Request) withDefaults() Request {
	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if r.PollIntervalMs == 0 {
		r.PollIntervalMs = DefaultPollIntervalMs
	}
	return r
}

func (r Request) key() string {
	return strings.Join([]string{
		r.OwnerParty, r.InstrumentAdmin, r.InstrumentID, r.MinAmount.String(),
		fmt.Sprint(r.TimeoutSeconds), fmt.Sprint(r.PollIntervalMs),
	}, "|")
}

// rpcGrace lets the backend answer "not found" after its own poll timeout.
const rpcGrace = 30 * time.Second

// Result is the outcome of one selection. Found implies a non-empty
// HoldingCid and a parsed Amount. Error is set only for transport
// failures; a plain timeout leaves it empty and puts the backend's note in
// Detail. Attempts is at least 1 and ElapsedMs is always set.
type Result struct {
	Found                 bool
	HoldingCid            string
	InstrumentAdmin       string
	InstrumentID          string
	Amount                decimal.Decimal
	Owner                 string
	Attempts              int
	ElapsedMs             int64
	TotalHoldingsScanned  int
	MatchingHoldingsFound int
	SelectionRule         string
	Detail                string
	Error                 string
}

// Option configures a Selector.
type Option func(*Selector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		s.now = now
	}
}

// WithMetrics records selection outcomes.
func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Selector) {
		s.metrics = m
	}
}

// Selector issues holding selections. Identical requests made while one is
// in flight share its result instead of issuing a second RPC.
type Selector struct {
	backend Backend
	group   singleflight.Group
	now     func() time.Time
	logger  *logrus.Logger
	metrics *metrics.Collectors
}

// NewSelector creates a Selector.
func NewSelector(b Backend, logger *logrus.Logger, opts ...Option) *Selector {
	s := &Selector{
		backend: b,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select waits for a holding matching req. The returned error is non-nil
// only for invalid requests; every other outcome is described by Result.
func (s *Selector) Select(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.withDefaults()

	// The shared RPC must outlive any single caller, so it runs detached
	// from ctx and is bounded by the poll timeout instead.
	ch := s.group.DoChan(req.key(), func() (interface{}, error) {
		rpcCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
			time.Duration(req.TimeoutSeconds)*time.Second+rpcGrace)
		defer cancel()
		return s.selectOnce(rpcCtx, req), nil
	})

	started := s.now()
	select {
	case <-ctx.Done():
		s.logger.WithFields(logrus.Fields{
			"owner":         req.OwnerParty,
			"instrument_id": req.InstrumentID,
		}).Debug("Caller left in-flight holding selection")
		return &Result{
			Attempts:  1,
			ElapsedMs: s.now().Sub(started).Milliseconds(),
			Error:     domain.From(ctx.Err()).Error(),
		}, nil
	case r := <-ch:
		if r.Shared {
			s.logger.WithField("owner", req.OwnerParty).Debug("Joined in-flight holding selection")
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}

func (s *Selector) selectOnce(ctx context.Context, req Request) *Result {
	log := s.logger.WithFields(logrus.Fields{
		"owner":         req.OwnerParty,
		"instrument_id": req.InstrumentID,
		"min_amount":    req.MinAmount.String(),
		"timeout_s":     req.TimeoutSeconds,
	})
	log.Info("Selecting holding")

	started := s.now()
	raw, err := s.backend.SelectHolding(ctx, backend.HoldingSelectRequest{
		OwnerParty:      req.OwnerParty,
		InstrumentAdmin: req.InstrumentAdmin,
		InstrumentID:    req.InstrumentID,
		MinAmount:       req.MinAmount,
		TimeoutSeconds:  req.TimeoutSeconds,
		PollIntervalMs:  req.PollIntervalMs,
	})
	elapsed := s.now().Sub(started).Milliseconds()

	res := &Result{Attempts: 1, ElapsedMs: elapsed}
	if err != nil {
		res.Error = domain.From(err).Error()
		log.WithError(err).Error("Holding selection failed")
		s.metrics.ObserveHoldingSelection("error")
		return res
	}

	res.HoldingCid = raw.HoldingCid
	res.InstrumentAdmin = raw.InstrumentAdmin
	res.InstrumentID = raw.InstrumentID
	res.Owner = raw.Owner
	res.TotalHoldingsScanned = raw.TotalHoldingsScanned
	res.MatchingHoldingsFound = raw.MatchingHoldingsFound
	res.SelectionRule = raw.SelectionRule
	res.Detail = raw.Error
	if raw.Attempts > res.Attempts {
		res.Attempts = raw.Attempts
	}
	if raw.ElapsedMs > 0 {
		res.ElapsedMs = raw.ElapsedMs
	}

	if raw.Found {
		amount, perr := parseAmount(raw.Amount)
		switch {
		case raw.HoldingCid == "":
			res.Detail = "backend reported a holding without a contract id"
		case perr != nil:
			res.Detail = fmt.Sprintf("backend reported an unparseable amount: %v", perr)
		default:
			res.Found = true
			res.Amount = amount
		}
	}

	if res.Found {
		log.WithFields(logrus.Fields{
			"holding_cid": res.HoldingCid,
			"amount":      res.Amount.String(),
			"attempts":    res.Attempts,
			"elapsed_ms":  res.ElapsedMs,
		}).Info("Holding found")
		s.metrics.ObserveHoldingSelection("found")
		return res
	}

	log.WithFields(logrus.Fields{
		"attempts":   res.Attempts,
		"elapsed_ms": res.ElapsedMs,
		"detail":     res.Detail,
	}).Warn("No matching holding found")
	s.metrics.ObserveHoldingSelection("not_found")
	return res
}

// parseAmount accepts both JSON numbers and numeric strings.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, fmt.Errorf("amount missing")
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}
