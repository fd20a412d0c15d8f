package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/ledger"
)

// BridgeError is a non-2xx answer from the wallet bridge.
type BridgeError struct {
	Status     int
	ErrCode    string
	Message    string
	RetryAfter string
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.ErrCode != "" {
		return fmt.Sprintf("wallet bridge error: status=%d code=%s message=%s", e.Status, e.ErrCode, e.Message)
	}
	return fmt.Sprintf("wallet bridge error: status=%d message=%s", e.Status, e.Message)
}

// StatusCode returns the HTTP status.
func (e *BridgeError) StatusCode() int { return e.Status }

// Code returns the bridge's error code, if any.
func (e *BridgeError) Code() string { return e.ErrCode }

// RetryAfterHeader returns the raw Retry-After header.
func (e *BridgeError) RetryAfterHeader() string { return e.RetryAfter }

// BridgeProvider is a wallet provider that forwards to a signing gateway
// over JSON/HTTP. It supports transfer preparation, execute-and-wait and
// legacy submission.
type BridgeProvider struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *logrus.Logger
}

// NewBridgeProvider creates a provider for config.BridgeURL.
func NewBridgeProvider(config *Config) (*BridgeProvider, error) {
	if config.BridgeURL == "" {
		return nil, fmt.Errorf("wallet: bridge URL is required")
	}
	return &BridgeProvider{
		baseURL:   config.BridgeURL,
		authToken: config.AuthToken,
		client:    &http.Client{Timeout: config.SubmitTimeout + 5*time.Second},
		logger:    config.Logger,
	}, nil
}

type bridgeSubmission struct {
	Envelope *ledger.Envelope `json:"envelope"`
	Options  SubmitOptions    `json:"options"`
}

// PrepareTransfer implements TransferPreparer.
func (b *BridgeProvider) PrepareTransfer(ctx context.Context, authToken string, req TransferRequest) (PreparedTransfer, error) {
	var out PreparedTransfer
	if authToken == "" {
		authToken = b.authToken
	}
	if err := b.post(ctx, "/transfers/prepare", authToken, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteAndWait implements WaitExecutor.
func (b *BridgeProvider) ExecuteAndWait(ctx context.Context, env *ledger.Envelope, opts SubmitOptions) (Response, error) {
	var out Response
	if err := b.post(ctx, "/transactions/execute-and-wait", b.authToken, bridgeSubmission{Envelope: env, Options: opts}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitTransaction implements LegacySubmitter.
func (b *BridgeProvider) SubmitTransaction(ctx context.Context, env *ledger.Envelope, opts SubmitOptions) (Response, error) {
	var out Response
	if err := b.post(ctx, "/transactions/submit", b.authToken, bridgeSubmission{Envelope: env, Options: opts}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BridgeProvider) post(ctx context.Context, endpoint, authToken string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	b.logger.WithFields(logrus.Fields{
		"endpoint":     endpoint,
		"request_body": string(jsonBody),
	}).Debug("Wallet bridge request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bridgeErr := &BridgeError{
			Status:     resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			bridgeErr.ErrCode = payload.Code
			if payload.Message != "" {
				bridgeErr.Message = payload.Message
			}
		}
		b.logger.WithFields(logrus.Fields{
			"endpoint":    endpoint,
			"status_code": resp.StatusCode,
			"code":        bridgeErr.ErrCode,
		}).Warn("Wallet bridge returned an error")
		return bridgeErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
