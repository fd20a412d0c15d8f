package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

// APIError is a failed backend call. Code carries the backend's own error
// code verbatim when it sent one.
type APIError struct {
	Status       int
	ErrCode      string
	Message      string
	Details      interface{}
	Retryable    bool
	RetryAfterMs int64
	RetryHeader  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrCode != "" {
		return fmt.Sprintf("backend error: status=%d code=%s message=%s", e.Status, e.ErrCode, e.Message)
	}
	return fmt.Sprintf("backend error: status=%d message=%s", e.Status, e.Message)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// Code returns the backend error code.
func (e *APIError) Code() string { return e.ErrCode }

// RetryAfter returns the backend's suggested retry delay, or zero.
func (e *APIError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterMs) * time.Millisecond
}

// RetryAfterHeader returns the raw Retry-After header.
func (e *APIError) RetryAfterHeader() string { return e.RetryHeader }

// codePattern matches machine-readable codes such as POOL_NOT_VISIBLE.
var codePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// errorBody covers the error shapes the backend produces:
// {code, message, retry_after_ms}, {success:false, error:"CODE", message}
// and {ok:false, error:{code, message, details, retryable}}.
type errorBody struct {
	Code         string          `json:"code"`
	Message      string          `json:"message"`
	Details      interface{}     `json:"details"`
	RetryAfterMs int64           `json:"retry_after_ms"`
	Error        json.RawMessage `json:"error"`
}

type nestedError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details"`
	Retryable bool        `json:"retryable"`
}

// parseError builds an APIError from a non-2xx response body.
func parseError(status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{
		Status:      status,
		Message:     http.StatusText(status),
		RetryHeader: header.Get("Retry-After"),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		if len(body) > 0 {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	apiErr.ErrCode = eb.Code
	apiErr.Details = eb.Details
	apiErr.RetryAfterMs = eb.RetryAfterMs
	if eb.Message != "" {
		apiErr.Message = eb.Message
	}

	if len(eb.Error) > 0 {
		var code string
		var nested nestedError
		switch {
		case json.Unmarshal(eb.Error, &code) == nil:
			switch {
			case apiErr.ErrCode == "" && codePattern.MatchString(code):
				apiErr.ErrCode = code
			case eb.Message == "" && code != "":
				// Free text, e.g. an exception message from a failed grant.
				apiErr.Message = code
			}
		case json.Unmarshal(eb.Error, &nested) == nil:
			if nested.Code != "" {
				apiErr.ErrCode = nested.Code
			}
			if nested.Message != "" {
				apiErr.Message = nested.Message
			}
			if nested.Details != nil {
				apiErr.Details = nested.Details
			}
			apiErr.Retryable = nested.Retryable
		}
	}
	return apiErr
}
