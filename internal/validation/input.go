package validation

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Input length limits to prevent resource exhaustion
const (
	MaxJSONPayload = 1048576 // 1MB for inline JSON bodies
	MaxURLLength   = 2048
)

// ValidateJSONPayload validates JSON payload size
func ValidateJSONPayload(payload string) error {
	if payload == "" {
		return fmt.Errorf("JSON payload cannot be empty")
	}

	length := len(payload)
	if length > MaxJSONPayload {
		return fmt.Errorf("JSON payload exceeds maximum size of %d bytes (got %d)", MaxJSONPayload, length)
	}

	return nil
}

// ParseHeader splits a "Key: Value" flag into its canonical key and value.
func ParseHeader(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, ":")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid header %q: expected 'Key: Value'", raw)
	}
	if !httpguts.ValidHeaderFieldName(key) {
		return "", "", fmt.Errorf("invalid header name %q", key)
	}
	value = strings.TrimSpace(value)
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", fmt.Errorf("invalid value for header %q", key)
	}
	return http.CanonicalHeaderKey(key), value, nil
}
