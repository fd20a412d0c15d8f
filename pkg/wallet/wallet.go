// Package wallet submits ledger transactions through an external signing
// provider and normalizes whatever the provider answers into a SubmitResult.
//
// Providers differ in which submission methods they expose. The capability
// interfaces below are probed in order; a provider implements as many of
// them as its SDK version supports.
package wallet

import (
	"context"

	"github.com/clearportx/amm-client/pkg/ledger"
)

// Mode selects how a transaction is handed to the provider.
type Mode string

const (
	// ModeWait submits and blocks until the ledger reports completion
	ModeWait Mode = "WAIT"
	// ModeLegacy uses the older fire-and-report submission method
	ModeLegacy Mode = "LEGACY"
)

// legacyWaitHint asks a legacy submitter to behave like execute-and-wait.
const legacyWaitHint = "execute-and-wait"

// TxStatus is the normalized outcome of a submission.
type TxStatus string

const (
	// TxSucceeded indicates the ledger accepted the transaction
	TxSucceeded TxStatus = "SUCCEEDED"
	// TxFailed indicates the provider or ledger reported failures
	TxFailed TxStatus = "FAILED"
)

// SubmitOptions are passed verbatim to the provider.
type SubmitOptions struct {
	// TimeoutMs bounds how long the provider waits for completion
	TimeoutMs int64 `json:"timeoutMs"`

	// EstimateTraffic asks the provider to report traffic cost estimates
	EstimateTraffic bool `json:"estimateTraffic,omitempty"`

	// Mode is set to "execute-and-wait" when WAIT falls back to legacy submission
	Mode string `json:"mode,omitempty"`
}

// Response is a provider answer in its raw JSON shape.
type Response map[string]interface{}

// Provider is any external signing provider. What it can do is discovered
// through the capability interfaces in this package.
type Provider interface{}

// WaitSubmitter is the preferred wait-mode capability.
type WaitSubmitter interface {
	SubmitAndWaitForTransaction(ctx context.Context, env *ledger.Envelope, opts SubmitOptions) (Response, error)
}

// WaitExecutor is the wait-mode capability of intermediate SDK versions.
type WaitExecutor interface {
	ExecuteAndWait(ctx context.Context, env *ledger.Envelope, opts SubmitOptions) (Response, error)
}

// WaitTransactionExecutor is the wait-mode capability of the oldest SDKs that have one.
type WaitTransactionExecutor interface {
	ExecuteAndWaitForTransaction(ctx context.Context, env *ledger.Envelope, opts SubmitOptions) (Response, error)
}

// LegacySubmitter is the pre-wait submission capability.
type LegacySubmitter interface {
	SubmitTransaction(ctx context.Context, env *ledger.Envelope, opts SubmitOptions) (Response, error)
}

// TransferPreparer asks the provider to build the commands for a token
// transfer without submitting them.
type TransferPreparer interface {
	PrepareTransfer(ctx context.Context, authToken string, req TransferRequest) (PreparedTransfer, error)
}

type submitFunc func(ctx context.Context, env *ledger.Envelope, opts SubmitOptions) (Response, error)

// waitCapability returns the first wait-mode method the provider exposes.
func waitCapability(p Provider) (submitFunc, string) {
	switch w := p.(type) {
	case WaitSubmitter:
		return w.SubmitAndWaitForTransaction, "submitAndWaitForTransaction"
	case WaitExecutor:
		return w.ExecuteAndWait, "executeAndWait"
	case WaitTransactionExecutor:
		return w.ExecuteAndWaitForTransaction, "executeAndWaitForTransaction"
	}
	return nil, ""
}

// legacyCapability returns the provider's legacy submission method.
func legacyCapability(p Provider) submitFunc {
	if l, ok := p.(LegacySubmitter); ok {
		return l.SubmitTransaction
	}
	return nil
}

// TrafficEstimation is the provider's traffic cost estimate.
type TrafficEstimation struct {
	EstimationTimestamp                       string  `json:"estimationTimestamp"`
	ConfirmationRequestTrafficCostEstimation  float64 `json:"confirmationRequestTrafficCostEstimation"`
	ConfirmationResponseTrafficCostEstimation float64 `json:"confirmationResponseTrafficCostEstimation"`
	TotalTrafficCostEstimation                float64 `json:"totalTrafficCostEstimation"`
}

// SubmitResult is the normalized outcome of a wallet submission.
type SubmitResult struct {
	LedgerUpdateID    string             `json:"ledgerUpdateId"`
	TransactionID     string             `json:"transactionId,omitempty"`
	TxStatus          TxStatus           `json:"txStatus"`
	Failures          interface{}        `json:"failures,omitempty"`
	MemoEcho          string             `json:"memoEcho,omitempty"`
	TrafficEstimation *TrafficEstimation `json:"trafficEstimation,omitempty"`

	// CommandID is the id the envelope was submitted under
	CommandID string `json:"commandId"`
	// Mode is the submission mode actually used
	Mode Mode `json:"mode"`
}

// Succeeded reports whether the submission reached the ledger without failures.
func (r SubmitResult) Succeeded() bool {
	return r.TxStatus == TxSucceeded
}
