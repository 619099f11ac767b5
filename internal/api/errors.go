package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedMethod is returned for verbs other than GET, POST, PUT and DELETE.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrInvalidURL is returned for an empty, unparsable or rejected target URL.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrInvalidConfig is returned by New for inconsistent options.
	ErrInvalidConfig = errors.New("invalid client configuration")
)

// InvalidBodyError means the body could not be encoded. It is returned
// before anything is sent.
type InvalidBodyError struct {
	Encoding Encoding
	Err      error
}

func (e *InvalidBodyError) Error() string {
	return fmt.Sprintf("invalid %s body: %v", e.Encoding, e.Err)
}

func (e *InvalidBodyError) Unwrap() error {
	return e.Err
}

// HTTPError is a settled response with a non-2xx status.
//
// It is classified when the status maps to a known ErrorCode and
// unclassified otherwise. Redirected reports whether the unauthorized
// policy ran for it.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Code       ErrorCode
	Message    string
	Body       []byte
	Data       any
	Header     http.Header
	RequestID  string
	Redirected bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed (status %d): %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// Classified reports whether the status is one the layer recognizes.
func (e *HTTPError) Classified() bool {
	return e.Code != ErrUnknown
}

// TransportError is a failure that produced no HTTP status, such as a
// DNS, connection or TLS error.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: request failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CancelledError means the request was cancelled before it settled.
// Err is the cancellation cause, e.g. context.Canceled or
// context.DeadlineExceeded.
type CancelledError struct {
	Method string
	URL    string
	Err    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s %s: request cancelled: %v", e.Method, e.URL, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// IsInvalidBody checks if the error is a body encoding error.
func IsInvalidBody(err error) bool {
	var e *InvalidBodyError
	return errors.As(err, &e)
}

// IsTransport checks if the error is a transport failure.
func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsCancelled checks if the error is a cancellation.
func IsCancelled(err error) bool {
	var e *CancelledError
	return errors.As(err, &e)
}

// IsClassified checks if the error is an HTTP error with a recognized status.
func IsClassified(err error) bool {
	var e *HTTPError
	return errors.As(err, &e) && e.Classified()
}

// IsUnclassified checks if the error is an HTTP error with any other status.
func IsUnclassified(err error) bool {
	var e *HTTPError
	return errors.As(err, &e) && !e.Classified()
}

// IsUnauthorized checks if the error is an HTTP 401.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsForbidden checks if the error is an HTTP 403.
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

// IsNotFound checks if the error is an HTTP 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *HTTPError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// errorMessage extracts a short message from an error body without
// echoing the body itself, which may contain tokens or user data.
func errorMessage(status int, body []byte) string {
	var errResp struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
		Errors  any    `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fallbackMessage(status)
	}

	var result string
	switch v := errResp.Error.(type) {
	case string:
		result = v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			result = msg
		}
	}
	if result == "" {
		result = errResp.Message
	}

	if validationErrors := formatValidationErrors(errResp.Errors); validationErrors != "" {
		if result != "" {
			return result + "\nValidation errors:\n" + validationErrors
		}
		return "Validation errors:\n" + validationErrors
	}
	if result != "" {
		return result
	}
	return fallbackMessage(status)
}

func fallbackMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}

// formatValidationErrors formats the errors field of a validation response.
// Handles both map[string]string and map[string][]string shapes.
func formatValidationErrors(errs any) string {
	errMap, ok := errs.(map[string]any)
	if !ok || len(errMap) == 0 {
		return ""
	}

	var lines []string
	for field, value := range errMap {
		switch v := value.(type) {
		case string:
			lines = append(lines, fmt.Sprintf("  %s: %s", field, v))
		case []any:
			for _, msg := range v {
				if msgStr, ok := msg.(string); ok {
					lines = append(lines, fmt.Sprintf("  %s: %s", field, msgStr))
				}
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
