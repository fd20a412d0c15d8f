// Package liquidity runs the add-liquidity saga: two wallet-signed inbound
// transfers to the pool operator, strictly in sequence, followed by a
// backend consume that mints the liquidity position.
//
// A failure after leg A has landed is reported as such. The saga never
// issues a compensating transfer.
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/baseline"
	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/metrics"
	"github.com/clearportx/amm-client/pkg/pool"
	"github.com/clearportx/amm-client/pkg/retry"
	"github.com/clearportx/amm-client/pkg/wallet"
)

// PoolResolver yields a visible pool reference.
type PoolResolver interface {
	Resolve(ctx context.Context, poolID, party string) (*pool.Resolution, error)
}

// Wallet prepares and submits transfers.
type Wallet interface {
	PrepareTransfer(ctx context.Context, req wallet.TransferRequest) (*wallet.TransferSubmission, *domain.DomainError)
	Submit(ctx context.Context, req wallet.SubmitRequest) domain.Result[wallet.SubmitResult]
}

// Settlement is the backend side of the saga.
type Settlement interface {
	ConsumeLiquidity(ctx context.Context, req backend.ConsumeRequest) (*backend.ConsumeResponse, error)
	InspectLiquidity(ctx context.Context, requestID string) (*backend.InspectResponse, error)
}

// Observer is told about every state change.
type Observer func(SagaState)

// LegInput is one side of an add-liquidity request.
type LegInput struct {
	InstrumentAdmin string
	InstrumentID    string
	Amount          decimal.Decimal
}

// AddRequest asks to add liquidity to PoolID on behalf of Party.
type AddRequest struct {
	// RequestID correlates both transfers; generated when empty
	RequestID string
	PoolID    string
	Party     string
	LegA      LegInput
	LegB      LegInput
}

// Validate checks the request before anything is sent.
func (r AddRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.PoolID) == "":
		return domain.Validation("poolId is required")
	case strings.TrimSpace(r.Party) == "":
		return domain.Validation("party is required")
	}
	for _, leg := range []struct {
		name string
		in   LegInput
	}{{"A", r.LegA}, {"B", r.LegB}} {
		if leg.in.InstrumentAdmin == "" || leg.in.InstrumentID == "" {
			return domain.Validation("leg %s instrument admin and id are required", leg.name)
		}
		if !leg.in.Amount.IsPositive() {
			return domain.Validation("leg %s amount must be positive, got %s", leg.name, leg.in.Amount)
		}
	}
	if r.LegA.InstrumentAdmin == r.LegB.InstrumentAdmin && r.LegA.InstrumentID == r.LegB.InstrumentID {
		return domain.Validation("legs must transfer different instruments")
	}
	return nil
}

// Option configures a Saga.
type Option func(*Saga)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Saga) {
		s.now = now
	}
}

// WithSleep replaces the context-aware sleep used while waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Saga) {
		s.sleep = fn
	}
}

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Saga) {
		s.newID = fn
	}
}

// WithBaselines enables the post-settlement refresh against store.
func WithBaselines(pools PoolLister, store baseline.Store) Option {
	return func(s *Saga) {
		s.pools = pools
		s.store = store
	}
}

// WithObserver registers a state change observer.
func WithObserver(o Observer) Option {
	return func(s *Saga) {
		s.observer = o
	}
}

// WithMetrics records terminal states.
func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Saga) {
		s.metrics = m
	}
}

// Saga orchestrates add-liquidity requests. One Saga may run many requests;
// each Run call owns its SagaState.
type Saga struct {
	resolver   PoolResolver
	wallet     Wallet
	settlement Settlement
	config     *Config

	pools     PoolLister
	store     baseline.Store
	refresher *Refresher

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newID    func() string
	observer Observer
	logger   *logrus.Logger
	metrics  *metrics.Collectors
}

// NewSaga creates a Saga.
func NewSaga(config *Config, resolver PoolResolver, w Wallet, settlement Settlement, opts ...Option) *Saga {
	s := &Saga{
		resolver:   resolver,
		wallet:     w,
		settlement: settlement,
		config:     config,
		now:        time.Now,
		sleep:      retry.SleepContext,
		newID:      func() string { return "liq-" + uuid.NewString() },
		logger:     config.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pools != nil && s.store != nil {
		s.refresher = NewRefresher(config, s.pools, s.store, s.now, s.sleep)
	}
	return s
}

// Run executes req to a terminal state. The returned state is always
// non-nil once validation passes; the error is the terminal failure, if any.
func (s *Saga) Run(ctx context.Context, req AddRequest) (*SagaState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = s.newID()
	}

	state := &SagaState{
		RequestID: req.RequestID,
		PoolID:    req.PoolID,
		Party:     req.Party,
		Operator:  s.config.OperatorParty,
		Deadline:  s.now().Add(s.config.Deadline),
		State:     StateInit,
		LegA: LegState{
			Leg: LegA, InstrumentAdmin: req.LegA.InstrumentAdmin, InstrumentID: req.LegA.InstrumentID,
			Amount: req.LegA.Amount, DedupKey: DedupKey(req.RequestID, LegA),
		},
		LegB: LegState{
			Leg: LegB, InstrumentAdmin: req.LegB.InstrumentAdmin, InstrumentID: req.LegB.InstrumentID,
			Amount: req.LegB.Amount, DedupKey: DedupKey(req.RequestID, LegB),
		},
	}
	log := s.logger.WithFields(logrus.Fields{
		"request_id": state.RequestID,
		"party":      state.Party,
		"pool_id":    state.PoolID,
	})
	log.Info("Starting add-liquidity request")

	s.advance(state, StateResolvingPool)
	res, err := s.resolver.Resolve(ctx, req.PoolID, req.Party)
	if err != nil {
		de := domain.From(err)
		return s.fail(log, state, StateFailedResolve, de,
			fmt.Sprintf("Pool %s could not be resolved to a visible contract: %s", req.PoolID, de.Message))
	}
	state.PoolCid = res.PoolCid
	if state.Operator == "" && res.Pool != nil {
		state.Operator = res.Pool.Operator
	}
	if state.Operator == "" {
		return s.fail(log, state, StateFailedResolve, domain.Validation("pool operator party is unknown"),
			"The pool operator is not configured; no funds were moved.")
	}
	log = log.WithField("pool_cid", state.PoolCid)

	var before *baseline.Snapshot
	if s.refresher != nil {
		if before, err = s.refresher.Baseline(ctx, state.Party, state.PoolID, state.PoolCid); err != nil {
			log.WithError(err).Warn("Failed to load pool baseline")
		}
	}

	if de := s.runLeg(ctx, log, state, &state.LegA, StatePreparingA, StateSubmittingA); de != nil {
		return s.fail(log, state, StateFailedA, de, legAMessage(de))
	}

	if de := s.runLeg(ctx, log, state, &state.LegB, StatePreparingB, StateSubmittingB); de != nil {
		state.UserCancelled = domain.IsUserCancelled(de)
		return s.fail(log, state, StateFailedB, de, legBMessage(de, state.UserCancelled))
	}

	s.advance(state, StateConsuming)
	if err := s.awaitInbound(ctx, log, state); err != nil {
		de := domain.From(err)
		return s.fail(log, state, StateFailedConsume, de, ConsumeMessage(de.Code))
	}

	consumed, err := s.settlement.ConsumeLiquidity(ctx, backend.ConsumeRequest{
		RequestID:     state.RequestID,
		PoolCid:       state.PoolCid,
		MaxAgeSeconds: s.config.MaxAgeSeconds,
	})
	if err != nil {
		de := settlementError(err)
		if s.config.InspectOnFailure {
			state.Diagnostics = s.inspect(ctx, log, state.RequestID)
		}
		return s.fail(log, state, StateFailedConsume, de, ConsumeMessage(de.Code))
	}
	state.Consume = consumed
	s.advance(state, StateDone)
	s.metrics.ObserveSagaOutcome(string(StateDone))

	log.WithFields(logrus.Fields{
		"lp_minted":     consumed.LpMinted.String(),
		"new_pool_cid":  consumed.NewPoolCid,
		"new_reserve_a": consumed.NewReserveA.String(),
		"new_reserve_b": consumed.NewReserveB.String(),
	}).Info("Liquidity added")

	if s.refresher != nil {
		cid := consumed.NewPoolCid
		if cid == "" {
			cid = state.PoolCid
		}
		outcome, err := s.refresher.AwaitChange(ctx, before, state.Party, state.PoolID, cid, state.RequestID)
		if err != nil {
			log.WithError(err).Warn("Pool refresh after settlement failed")
		}
		state.Refresh = outcome
	}
	return state, nil
}

// runLeg prepares and submits one transfer and requires SUCCEEDED.
func (s *Saga) runLeg(ctx context.Context, log *logrus.Entry, state *SagaState, leg *LegState, preparing, submitting State) *domain.DomainError {
	log = log.WithField("leg", leg.Leg)
	s.advance(state, preparing)

	memo, err := NewMemo(state, *leg).Encode()
	if err != nil {
		leg.Error = domain.NewDomainError(domain.CodeValidation, err.Error(), err)
		return leg.Error
	}
	leg.Memo = memo

	sub, de := s.wallet.PrepareTransfer(ctx, wallet.TransferRequest{
		Recipient:     state.Operator,
		Amount:        leg.Amount,
		Instrument:    wallet.InstrumentRef{Admin: leg.InstrumentAdmin, ID: leg.InstrumentID},
		RequestedAt:   s.now(),
		ExecuteBefore: state.Deadline,
		Memo:          memo,
	})
	if de != nil {
		leg.Error = de
		return de
	}

	s.advance(state, submitting)
	actAs := sub.ActAs
	if len(actAs) == 0 {
		actAs = []string{state.Party}
	}
	res := s.wallet.Submit(ctx, wallet.SubmitRequest{
		Commands:                     sub.Commands,
		ActAs:                        actAs,
		ReadAs:                       sub.ReadAs,
		DeduplicationKey:             leg.DedupKey,
		Memo:                         memo,
		DisclosedContracts:           sub.DisclosedContracts,
		PackageIDSelectionPreference: sub.PackageIDSelectionPreference,
		SynchronizerID:               sub.SynchronizerID,
	})
	if !res.IsOk() {
		leg.Error = res.Error()
		return leg.Error
	}

	result := res.Value()
	leg.Result = &result
	if !result.Succeeded() {
		leg.Error = domain.NewDomainError(domain.CodeProviderError,
			fmt.Sprintf("leg %s transaction %s reported %s", leg.Leg, result.LedgerUpdateID, result.TxStatus), nil)
		return leg.Error
	}

	if result.MemoEcho != "" {
		checkMemoEcho(log, result.MemoEcho, state.RequestID, leg.Leg)
	}

	log.WithFields(logrus.Fields{
		"ledger_update_id": result.LedgerUpdateID,
		"dedup_key":        leg.DedupKey,
	}).Info("Leg submitted")
	return nil
}

// checkMemoEcho warns when the wallet echoes a memo that does not belong to
// this leg. The backend correlates by the memo on the ledger, so a mismatch
// will surface at consume; the leg itself has landed either way.
func checkMemoEcho(log *logrus.Entry, echo, requestID string, leg Leg) {
	memo, err := ParseMemo(echo)
	if err != nil {
		log.WithError(err).Warn("Wallet echoed an unreadable memo")
		return
	}
	if memo.RequestID != requestID || memo.Leg != leg {
		log.WithFields(logrus.Fields{
			"echo_request_id": memo.RequestID,
			"echo_leg":        memo.Leg,
		}).Warn("Wallet echoed a memo for a different leg")
	}
}

// awaitInbound waits the propagation delay, then polls inspect until both
// inbound transfers are visible or the readiness timeout passes. Running
// out of time is not an error; consume then reports what is missing.
func (s *Saga) awaitInbound(ctx context.Context, log *logrus.Entry, state *SagaState) error {
	interval := s.config.PropagationDelay
	if err := s.sleep(ctx, interval); err != nil {
		return err
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	deadline := s.now().Add(s.config.ReadinessTimeout)
	for {
		seen, err := s.settlement.InspectLiquidity(ctx, state.RequestID)
		if err != nil {
			log.WithError(err).Debug("Inspect failed while waiting for inbound transfers")
		} else {
			state.Readiness = seen
			if seen.InboundReady() {
				log.WithFields(logrus.Fields{
					"ti_cid_a": seen.TiCidA,
					"ti_cid_b": seen.TiCidB,
				}).Debug("Inbound transfers visible")
				return nil
			}
		}
		if !s.now().Before(deadline) {
			log.Warn("Inbound transfers not visible before readiness timeout, consuming anyway")
			return nil
		}
		if err := s.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// inspect fetches diagnostics; failures are only logged.
func (s *Saga) inspect(ctx context.Context, log *logrus.Entry, requestID string) *backend.InspectResponse {
	diag, err := s.settlement.InspectLiquidity(ctx, requestID)
	if err != nil {
		log.WithError(err).Warn("Diagnostic inspect failed")
		return nil
	}
	log.WithFields(logrus.Fields{
		"ti_cid_a":          diag.TiCidA,
		"ti_cid_b":          diag.TiCidB,
		"pool_status":       diag.PoolStatus,
		"deadline_expired":  diag.DeadlineExpired,
		"already_processed": diag.AlreadyProcessed,
	}).Info("Settlement diagnostics")
	return diag
}

func (s *Saga) advance(state *SagaState, to State) {
	state.advance(to, s.now())
	if s.observer != nil {
		s.observer(state.snapshot())
	}
}

func (s *Saga) fail(log *logrus.Entry, state *SagaState, to State, de *domain.DomainError, message string) (*SagaState, error) {
	state.Error = de
	state.Message = message
	s.advance(state, to)
	s.metrics.ObserveSagaOutcome(string(to))

	log.WithFields(logrus.Fields{
		"state": to,
		"code":  de.Code,
		"error": de.Message,
	}).Error("Add-liquidity request failed")
	return state, de
}

// settlementError keeps the backend's own code when it sent one.
func settlementError(err error) *domain.DomainError {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.ErrCode != "" {
		return domain.NewDomainError(apiErr.ErrCode, apiErr.Message, err).WithStatus(apiErr.Status)
	}
	return domain.From(err)
}

func legAMessage(de *domain.DomainError) string {
	if domain.IsUserCancelled(de) {
		return "The first transfer was cancelled in the wallet. No funds were moved."
	}
	return fmt.Sprintf("The first transfer failed (%s). No funds were moved.", de.Code)
}

func legBMessage(de *domain.DomainError, cancelled bool) string {
	if cancelled {
		return "The second transfer was cancelled in the wallet. Funds for the first transfer have already moved to the pool operator."
	}
	return fmt.Sprintf("The second transfer failed (%s). Funds for the first transfer have already moved to the pool operator.", de.Code)
}
