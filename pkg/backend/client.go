package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/retry"
)

// ClientOption allows for customization of the client
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithSleep replaces the context-aware sleep used before a conflict retry.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// Client talks JSON over HTTP to the settlement backend. A 409 answer is
// retried exactly once after the backend's retry_after_ms; a second
// conflict becomes a STALE_VISIBILITY error.
type Client struct {
	config *Config
	http   *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
	logger *logrus.Logger
}

// NewClient creates a backend client.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := &Client{
		config: config,
		http:   &http.Client{},
		sleep:  retry.SleepContext,
		logger: config.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Party returns the configured acting party.
func (c *Client) Party() string {
	return c.config.Party
}

type request struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	body    interface{}
	timeout time.Duration
}

// do sends req and decodes a 2xx body into out. Conflicts get one paced retry.
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	data, err := c.send(ctx, req)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		delay := c.config.ConflictRetryDelay
		if apiErr.RetryAfterMs > 0 {
			delay = apiErr.RetryAfter()
		}
		c.logger.WithFields(logrus.Fields{
			"path":  req.path,
			"code":  apiErr.ErrCode,
			"delay": delay.String(),
		}).Warn("Backend reported a visibility conflict, retrying once")

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		data, err = c.send(ctx, req)
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return domain.NewDomainError(domain.CodeStaleVisibility,
				"ledger state is still stale after a retry; refresh and try again", apiErr).
				WithStatus(http.StatusConflict).
				WithRetryAfter(apiErr.RetryAfter())
		}
	}
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.NewDomainError(domain.CodeTransport, "failed to decode backend response", err)
	}
	return nil
}

// send performs one HTTP exchange and returns the raw 2xx body.
func (c *Client) send(ctx context.Context, req request) ([]byte, error) {
	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if req.body != nil {
		jsonBody, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		c.logger.WithField("request_body", string(jsonBody)).Debug("Request payload")
	}

	fullURL := c.config.BaseURL + req.path
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.config.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.WithFields(logrus.Fields{
		"method": req.method,
		"url":    fullURL,
	}).Debug("Sending backend request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewDomainError(domain.CodeTransport, "backend request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewDomainError(domain.CodeTransport, "failed to read backend response", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"path":        req.path,
	}).Debug("Received backend response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseError(resp.StatusCode, resp.Header, data)
		c.logger.WithFields(logrus.Fields{
			"status_code": apiErr.Status,
			"code":        apiErr.ErrCode,
			"message":     apiErr.Message,
			"path":        req.path,
		}).Warn("Backend returned an error")
		return nil, apiErr
	}
	return data, nil
}

// decodeEnvelope unwraps an {ok, result, error} envelope.
func decodeEnvelope[T any](status int, env apiResponse[T]) (T, error) {
	if env.Ok {
		return env.Result, nil
	}
	var zero T
	body, _ := json.Marshal(map[string]json.RawMessage{"error": env.Error})
	apiErr := parseError(status, http.Header{}, body)
	if apiErr.Message == http.StatusText(status) {
		apiErr.Message = "backend reported failure"
	}
	return zero, apiErr
}
