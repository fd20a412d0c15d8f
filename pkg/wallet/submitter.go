package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/ledger"
	"github.com/clearportx/amm-client/pkg/metrics"
	"github.com/clearportx/amm-client/pkg/retry"
)

// SubmitRequest is one logical wallet submission.
type SubmitRequest struct {
	Commands                     []ledger.Command
	ActAs                        []string
	ReadAs                       []string
	DeduplicationKey             string
	Memo                         string
	EstimateTraffic              bool
	Mode                         Mode
	DisclosedContracts           []ledger.DisclosedContract
	PackageIDSelectionPreference []string
	SynchronizerID               string
}

// Submitter hands envelopes to the connected wallet provider. Every call
// goes through the shared pacer and is retried on rate limiting; all other
// failures are returned as classified DomainErrors.
type Submitter struct {
	mu       sync.RWMutex
	provider Provider

	config   *Config
	builder  *ledger.Builder
	executor *retry.Executor
	logger   *logrus.Logger
	metrics  *metrics.Collectors
}

// SubmitterOption customizes a Submitter.
type SubmitterOption func(*Submitter)

// WithExecutor replaces the retry executor built from the config.
func WithExecutor(e *retry.Executor) SubmitterOption {
	return func(s *Submitter) {
		s.executor = e
	}
}

// WithBuilder replaces the default envelope builder.
func WithBuilder(b *ledger.Builder) SubmitterOption {
	return func(s *Submitter) {
		s.builder = b
	}
}

// WithMetrics records submission outcomes.
func WithMetrics(m *metrics.Collectors) SubmitterOption {
	return func(s *Submitter) {
		s.metrics = m
	}
}

// NewSubmitter creates a Submitter. The provider may be nil until the user
// connects a wallet; see SetProvider.
//
// Parameters:
//   - config: wallet configuration (mode override, timeouts, backoff schedule)
//   - provider: the connected wallet provider, or nil
//   - pacer: the pacer shared by every wallet-bound caller
//   - opts: optional overrides
//
// Example:
//
//	pacer := retry.NewPacer(config.MinGap, nil)
//	submitter := NewSubmitter(config, provider, pacer)
//	res := submitter.Submit(ctx, SubmitRequest{Commands: cmds, ActAs: []string{party}})
func NewSubmitter(config *Config, provider Provider, pacer *retry.Pacer, opts ...SubmitterOption) *Submitter {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Submitter{
		provider: provider,
		config:   config,
		builder:  ledger.NewBuilder(),
		logger:   config.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = retry.NewExecutor(s.logger,
			retry.WithSchedule(config.BackoffSchedule),
			retry.WithPacer(pacer),
			retry.WithMetrics(s.metrics),
		)
	}
	return s
}

// SetProvider replaces the connected provider. Passing nil disconnects.
func (s *Submitter) SetProvider(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
}

// Provider returns the connected provider, or nil.
func (s *Submitter) Provider() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// resolveMode applies the configured override, then the caller's choice,
// then WAIT.
func (s *Submitter) resolveMode(requested Mode) Mode {
	if s.config.ForcedMode != "" {
		return s.config.ForcedMode
	}
	if requested != "" {
		return requested
	}
	return ModeWait
}

// Submit validates req, builds its envelope and submits it. It never panics
// and never returns a raw error: every failure is a DomainError in the Result.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) domain.Result[SubmitResult] {
	provider := s.Provider()
	if provider == nil {
		return s.fail("", domain.NewDomainError(domain.CodeNoProvider, "wallet provider is not connected", nil))
	}
	if len(req.Commands) == 0 {
		return s.fail("", domain.Validation("commands is required"))
	}
	if len(req.ActAs) == 0 {
		return s.fail("", domain.Validation("actAs is required"))
	}

	env, err := s.builder.Build(ledger.EnvelopeRequest{
		Commands:                     req.Commands,
		ActAs:                        req.ActAs,
		ReadAs:                       req.ReadAs,
		Memo:                         req.Memo,
		DeduplicationKey:             req.DeduplicationKey,
		DisclosedContracts:           req.DisclosedContracts,
		PackageIDSelectionPreference: req.PackageIDSelectionPreference,
		SynchronizerID:               req.SynchronizerID,
	})
	if err != nil {
		return s.fail("", domain.Validation("%s", err.Error()))
	}

	mode := s.resolveMode(req.Mode)
	call, method, opts, derr := s.selectCall(provider, mode)
	if derr != nil {
		return s.fail(mode, derr)
	}
	opts.EstimateTraffic = req.EstimateTraffic

	log := s.logger.WithFields(logrus.Fields{
		"command_id":  env.CommandID,
		"workflow_id": env.WorkflowID,
		"mode":        mode,
		"method":      method,
		"act_as":      env.ActAs,
	})
	log.Debug("Submitting envelope to wallet provider")

	raw, err := retry.Do(ctx, s.executor, "wallet."+method, func(ctx context.Context) (Response, error) {
		return s.invoke(ctx, call, env, opts)
	}, func(attempt int, delay time.Duration, err error) {
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Wallet provider rate limited, retrying")
	})
	if err != nil {
		de := classify(err)
		log.WithFields(logrus.Fields{
			"code":  de.Code,
			"error": de.Message,
		}).Error("Wallet submission failed")
		return s.fail(mode, de)
	}

	result, derr := normalizeResponse(raw, req.EstimateTraffic)
	if derr != nil {
		log.WithField("error", derr.Message).Error("Wallet provider returned an unrecognized response")
		return s.fail(mode, derr)
	}
	result.CommandID = env.CommandID
	result.Mode = mode

	s.metrics.ObserveSubmission(string(mode), string(result.TxStatus))
	log.WithFields(logrus.Fields{
		"ledger_update_id": result.LedgerUpdateID,
		"tx_status":        result.TxStatus,
	}).Info("Wallet submission completed")

	return domain.Ok(result)
}

// selectCall picks the provider method for mode, or explains why none fits.
func (s *Submitter) selectCall(p Provider, mode Mode) (submitFunc, string, SubmitOptions, *domain.DomainError) {
	opts := SubmitOptions{TimeoutMs: s.config.SubmitTimeout.Milliseconds()}
	wait, waitName := waitCapability(p)
	legacy := legacyCapability(p)

	if mode == ModeWait {
		if wait != nil {
			return wait, waitName, opts, nil
		}
		if !s.config.LegacyEnabled {
			return nil, "", opts, domain.NewDomainError(domain.CodeNotSupported, "execute-and-wait is not supported by this wallet provider", nil)
		}
		opts.Mode = legacyWaitHint
	}
	if legacy == nil {
		return nil, "", opts, domain.NewDomainError(domain.CodeNotSupported, "submitTransaction is not supported by this wallet provider", nil)
	}
	return legacy, "submitTransaction", opts, nil
}

// invoke performs one provider call under the per-call timeout. Provider
// panics are converted into errors.
func (s *Submitter) invoke(ctx context.Context, call submitFunc, env *ledger.Envelope, opts SubmitOptions) (resp Response, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SubmitTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = domain.NewDomainError(domain.CodeProviderError, fmt.Sprintf("wallet provider panicked: %v", r), nil)
		}
	}()

	return call(ctx, env, opts)
}

func (s *Submitter) fail(mode Mode, de *domain.DomainError) domain.Result[SubmitResult] {
	label := string(mode)
	if label == "" {
		label = "none"
	}
	s.metrics.ObserveSubmission(label, de.Code)
	return domain.Err[SubmitResult](de)
}

// classify maps provider and transport failures onto domain codes.
func classify(err error) *domain.DomainError {
	if retry.IsRateLimited(err) {
		var existing *domain.DomainError
		if errors.As(err, &existing) && existing.Code == domain.CodeRateLimited {
			return existing
		}
		return domain.NewDomainError(domain.CodeRateLimited, "wallet provider rate limit exceeded", err).
			WithStatus(http.StatusTooManyRequests).
			WithRetryAfter(retry.RetryAfterHint(err, time.Now()))
	}
	return domain.From(err)
}

// PrepareTransfer asks the provider to build a transfer and extracts the
// submission from its answer. The call is paced and rate-limit retried like
// a submission.
func (s *Submitter) PrepareTransfer(ctx context.Context, req TransferRequest) (*TransferSubmission, *domain.DomainError) {
	provider := s.Provider()
	if provider == nil {
		return nil, domain.NewDomainError(domain.CodeNoProvider, "wallet provider is not connected", nil)
	}
	preparer, ok := provider.(TransferPreparer)
	if !ok {
		return nil, domain.NewDomainError(domain.CodeNotSupported, "prepareTransfer is not supported by this wallet provider", nil)
	}
	if err := req.Validate(); err != nil {
		return nil, domain.Validation("%s", err.Error())
	}

	log := s.logger.WithFields(logrus.Fields{
		"recipient":     req.Recipient,
		"instrument_id": req.Instrument.ID,
		"amount":        req.Amount.String(),
	})
	log.Debug("Preparing transfer")

	prepared, err := retry.Do(ctx, s.executor, "wallet.prepareTransfer", func(ctx context.Context) (prepared PreparedTransfer, err error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.SubmitTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				err = domain.NewDomainError(domain.CodeProviderError, fmt.Sprintf("wallet provider panicked: %v", r), nil)
			}
		}()
		return preparer.PrepareTransfer(ctx, s.config.AuthToken, req)
	}, nil)
	if err != nil {
		de := classify(err)
		log.WithFields(logrus.Fields{
			"code":  de.Code,
			"error": de.Message,
		}).Error("Transfer preparation failed")
		return nil, de
	}

	sub, err := ExtractTransferSubmission(prepared)
	if err != nil {
		return nil, domain.NewDomainError(domain.CodeUnrecognizedResponse, "prepared transfer has no recognizable commands", err)
	}
	return sub, nil
}
