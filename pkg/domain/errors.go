// Package domain holds the error taxonomy and result type shared by the
// wallet submitter, the backend client and the liquidity saga.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Error codes for classifiable failures. Backend settlement codes are
// passed through verbatim and are not limited to this list.
const (
	// CodeValidation indicates missing or malformed required input
	CodeValidation = "VALIDATION"
	// CodeNoProvider indicates no wallet provider is connected
	CodeNoProvider = "NO_PROVIDER"
	// CodeNotSupported indicates the provider lacks the requested submission mode
	CodeNotSupported = "NOT_SUPPORTED"
	// CodeRateLimited indicates the call was throttled (HTTP 429)
	CodeRateLimited = "RATE_LIMITED"
	// CodeUserCancelled indicates the user rejected the wallet prompt
	CodeUserCancelled = "USER_CANCELLED"
	// CodeCancelled indicates the caller's context was cancelled
	CodeCancelled = "CANCELLED"
	// CodeStaleVisibility indicates a 409 conflict that survived its paced retry
	CodeStaleVisibility = "STALE_VISIBILITY"
	// CodeTimeout indicates the call exceeded its deadline
	CodeTimeout = "TIMEOUT"
	// CodeUnrecognizedResponse indicates a provider response matched no known shape
	CodeUnrecognizedResponse = "UNRECOGNIZED_RESPONSE"
	// CodeProviderError indicates the wallet provider failed without a code of its own
	CodeProviderError = "PROVIDER_ERROR"
	// CodeTransport indicates a network or decoding failure talking to the backend
	CodeTransport = "TRANSPORT"
	// CodePoolNotVisible indicates no pool instance visible to the party could be found
	CodePoolNotVisible = "POOL_NOT_VISIBLE"
	// CodeMissingInboundTransfers is the backend code for consume without both inbound transfers
	CodeMissingInboundTransfers = "MISSING_INBOUND_TIS_FOR_POOL_INSTRUMENT"
	// CodeUnknown is used when nothing better is known about an error
	CodeUnknown = "UNKNOWN"
)

// DomainError represents a classified failure with enough context for the
// caller to decide between retrying, reconnecting or surfacing a message.
type DomainError struct {
	Code         string // Stable code identifying the failure kind
	Message      string // Human readable message
	RetryAfterMs int64  // Server-suggested wait before retrying, if any
	HTTPStatus   int    // HTTP status that produced the error, if any
	Err          error  // Underlying error if any
}

// Error implements the error interface for DomainError.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// StatusCode exposes the HTTP status to status-chain inspection.
func (e *DomainError) StatusCode() int {
	if e.HTTPStatus == 0 && e.Code == CodeRateLimited {
		return http.StatusTooManyRequests
	}
	return e.HTTPStatus
}

// RetryAfter returns the server-suggested retry delay, or zero.
func (e *DomainError) RetryAfter() time.Duration {
	if e.RetryAfterMs <= 0 {
		return 0
	}
	return time.Duration(e.RetryAfterMs) * time.Millisecond
}

// WithStatus records the HTTP status that produced the error.
func (e *DomainError) WithStatus(status int) *DomainError {
	e.HTTPStatus = status
	return e
}

// WithRetryAfter records a server-suggested retry delay.
func (e *DomainError) WithRetryAfter(d time.Duration) *DomainError {
	e.RetryAfterMs = d.Milliseconds()
	return e
}

// NewDomainError creates a new DomainError with the given code, message and cause.
func NewDomainError(code string, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation is shorthand for a VALIDATION error.
func Validation(format string, args ...interface{}) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...), nil)
}

// IsDomainError reports whether err is, or wraps, a DomainError with the given code.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// coder is satisfied by SDK errors that carry their own code.
type coder interface {
	Code() string
}

// statusCoder is satisfied by transport errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// From converts any error into a DomainError. Errors already classified are
// returned unchanged; everything else is classified by shape and message.
func From(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}

	code := CodeProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(err, context.Canceled):
		code = CodeCancelled
	default:
		var c coder
		if errors.As(err, &c) && c.Code() != "" {
			code = c.Code()
		} else if IsUserCancelled(err) {
			code = CodeUserCancelled
		}
	}

	out := NewDomainError(code, err.Error(), err)
	var sc statusCoder
	if errors.As(err, &sc) {
		out.HTTPStatus = sc.StatusCode()
		if out.HTTPStatus == http.StatusTooManyRequests && code == CodeProviderError {
			out.Code = CodeRateLimited
		}
	}
	return out
}

// IsUserCancelled reports whether err describes a rejected or cancelled
// wallet prompt, judged by code or message.
func IsUserCancelled(err error) bool {
	if err == nil {
		return false
	}
	if IsDomainError(err, CodeUserCancelled) {
		return true
	}
	text := strings.ToLower(err.Error())
	var de *DomainError
	if errors.As(err, &de) {
		if de.Code == CodeCancelled {
			return false
		}
		text = strings.ToLower(de.Code + " " + de.Message)
	}
	return strings.Contains(text, "cancel") || strings.Contains(text, "reject")
}
