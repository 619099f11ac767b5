package api

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable class of a request failure.
type ErrorCode string

const (
	// ErrBadRequest indicates a malformed request (HTTP 400).
	ErrBadRequest ErrorCode = "bad_request"
	// ErrUnauthorized indicates authentication is required or failed (HTTP 401).
	ErrUnauthorized ErrorCode = "unauthorized"
	// ErrForbidden indicates the user lacks permission (HTTP 403).
	ErrForbidden ErrorCode = "forbidden"
	// ErrNotFound indicates the requested resource does not exist (HTTP 404).
	ErrNotFound ErrorCode = "not_found"
	// ErrConflict indicates a conflict with current state (HTTP 409).
	ErrConflict ErrorCode = "conflict"
	// ErrValidation indicates input validation failed (HTTP 422).
	ErrValidation ErrorCode = "validation_failed"
	// ErrRateLimited indicates too many requests (HTTP 429).
	ErrRateLimited ErrorCode = "rate_limited"
	// ErrServerError indicates an internal server error (HTTP 5xx).
	ErrServerError ErrorCode = "server_error"
	// ErrTimeout indicates the request was cancelled by a deadline.
	ErrTimeout ErrorCode = "timeout"
	// ErrCancelled indicates the request was cancelled by the caller.
	ErrCancelled ErrorCode = "cancelled"
	// ErrTransport indicates a network failure with no HTTP status.
	ErrTransport ErrorCode = "transport"
	// ErrInvalidBody indicates the request body could not be encoded.
	ErrInvalidBody ErrorCode = "invalid_body"
	// ErrInvalidRequest indicates a malformed call (method or URL).
	ErrInvalidRequest ErrorCode = "invalid_request"
	// ErrUnknown indicates an unknown or unclassified error.
	ErrUnknown ErrorCode = "unknown"
)

// IsRetryable returns true if errors with this code may succeed on retry.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrRateLimited, ErrServerError, ErrTimeout, ErrTransport:
		return true
	default:
		return false
	}
}

// Suggestion returns a human-readable suggestion for resolving this error.
func (c ErrorCode) Suggestion() string {
	switch c {
	case ErrUnauthorized:
		return "Check the token, or run 'ajax profile save' with fresh credentials"
	case ErrForbidden:
		return "The credential lacks permission for this resource"
	case ErrNotFound:
		return "Verify the URL"
	case ErrRateLimited:
		return "Wait a moment and retry"
	case ErrValidation:
		return "Check the input values"
	case ErrBadRequest:
		return "Check the request format and parameters"
	case ErrConflict:
		return "The resource state may have changed; refresh and retry"
	case ErrServerError:
		return "The server encountered an error; try again later"
	case ErrTimeout:
		return "The request timed out; raise --timeout or retry"
	case ErrTransport:
		return "Check network connectivity and the target host"
	case ErrInvalidBody:
		return "The request body could not be encoded; check its shape"
	case ErrInvalidRequest:
		return "Use GET, POST, PUT or DELETE with a non-empty URL"
	default:
		return ""
	}
}

// ErrorCodeFromStatus maps an HTTP status code to an ErrorCode.
func ErrorCodeFromStatus(statusCode int) ErrorCode {
	switch statusCode {
	case 400:
		return ErrBadRequest
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	case 422:
		return ErrValidation
	case 429:
		return ErrRateLimited
	default:
		if statusCode >= 500 && statusCode < 600 {
			return ErrServerError
		}
		return ErrUnknown
	}
}

// StructuredError is the JSON form of a request failure.
type StructuredError struct {
	Code          ErrorCode      `json:"code"`
	Message       string         `json:"message"`
	Retryable     bool           `json:"retryable"`
	Suggestion    string         `json:"suggestion,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewStructuredError creates a StructuredError from an ErrorCode and message.
func NewStructuredError(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:       code,
		Message:    message,
		Retryable:  code.IsRetryable(),
		Suggestion: code.Suggestion(),
	}
}

// NewStructuredErrorWithContext creates a StructuredError with additional context.
func NewStructuredErrorWithContext(code ErrorCode, message string, ctx map[string]any) *StructuredError {
	err := NewStructuredError(code, message)
	err.Context = ctx
	return err
}

// StructuredErrorFromHTTPError converts an HTTPError to a StructuredError.
func StructuredErrorFromHTTPError(httpErr *HTTPError) *StructuredError {
	ctx := map[string]any{
		"status_code": httpErr.StatusCode,
		"method":      httpErr.Method,
		"url":         httpErr.URL,
	}
	if httpErr.RequestID != "" {
		ctx["request_id"] = httpErr.RequestID
	}
	if httpErr.Redirected {
		ctx["redirected"] = true
	}
	return &StructuredError{
		Code:       httpErr.Code,
		Message:    httpErr.Message,
		Retryable:  httpErr.Code.IsRetryable(),
		Suggestion: httpErr.Code.Suggestion(),
		Context:    ctx,
	}
}

// StructuredErrorFromError attempts to convert any error to a StructuredError.
// It handles StructuredError, HTTPError, CancelledError, TransportError,
// InvalidBodyError, the request sentinels and generic errors.
func StructuredErrorFromError(err error) *StructuredError {
	if err == nil {
		return nil
	}

	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return StructuredErrorFromHTTPError(httpErr)
	}

	var cancelErr *CancelledError
	if errors.As(err, &cancelErr) {
		code := ErrCancelled
		if errors.Is(cancelErr.Err, context.DeadlineExceeded) {
			code = ErrTimeout
		}
		return NewStructuredErrorWithContext(code, err.Error(), map[string]any{
			"method": cancelErr.Method,
			"url":    cancelErr.URL,
		})
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return NewStructuredErrorWithContext(ErrTransport, err.Error(), map[string]any{
			"method": transportErr.Method,
			"url":    transportErr.URL,
		})
	}

	if IsInvalidBody(err) {
		return NewStructuredError(ErrInvalidBody, err.Error())
	}

	if errors.Is(err, ErrUnsupportedMethod) || errors.Is(err, ErrInvalidURL) {
		return NewStructuredError(ErrInvalidRequest, err.Error())
	}

	return NewStructuredError(ErrUnknown, err.Error())
}
