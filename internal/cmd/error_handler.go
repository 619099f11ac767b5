package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/config"
)

// HandleError processes an error and returns a user-friendly message with suggestions
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder

	var httpErr *api.HTTPError
	var cancelErr *api.CancelledError
	var transportErr *api.TransportError

	switch {
	case errors.As(err, &httpErr):
		fmt.Fprintf(&msg, "HTTP %d from %s %s: %s\n\n", httpErr.StatusCode, httpErr.Method, httpErr.URL, httpErr.Message)
		msg.WriteString(suggestionsForHTTPError(httpErr))
		if httpErr.RequestID != "" {
			fmt.Fprintf(&msg, "\nRequest ID: %s\n", httpErr.RequestID)
		}

	case errors.As(err, &cancelErr):
		if errors.Is(cancelErr.Err, context.DeadlineExceeded) {
			fmt.Fprintf(&msg, "Request timed out: %s %s\n\n", cancelErr.Method, cancelErr.URL)
			msg.WriteString("Suggestions:\n")
			msg.WriteString("  - Increase the deadline with --timeout (e.g. --timeout 2m)\n")
			msg.WriteString("  - Check that the server is responding\n")
		} else {
			fmt.Fprintf(&msg, "Request cancelled: %s %s\n", cancelErr.Method, cancelErr.URL)
		}

	case errors.As(err, &transportErr):
		msg.WriteString(transportMessage(transportErr))

	case api.IsInvalidBody(err):
		fmt.Fprintf(&msg, "Invalid request body: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check that -d/--body and -i/--input contain valid JSON\n")
		msg.WriteString("  - Use --form with -f/--file for multipart fields\n")
		msg.WriteString("  - Use --dry-run to preview the request\n")

	case errors.Is(err, api.ErrUnsupportedMethod), errors.Is(err, api.ErrInvalidURL):
		fmt.Fprintf(&msg, "Invalid request: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Use an absolute http(s) URL\n")
		msg.WriteString("  - Pass --allow-private for localhost or private network targets\n")

	case errors.Is(err, config.ErrNotConfigured):
		fmt.Fprintf(&msg, "Error: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - List profiles: ajax profile list\n")
		msg.WriteString("  - Save one: ajax profile save NAME --bearer TOKEN\n")

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err.Error())
	}

	return msg.String()
}

func transportMessage(err *api.TransportError) string {
	var msg strings.Builder
	text := err.Error()
	switch {
	case strings.Contains(text, "connection refused"):
		msg.WriteString("Connection refused.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check that the server is running\n")
		msg.WriteString("  - Verify the host and port in the URL\n")
	case strings.Contains(text, "no such host"):
		msg.WriteString("DNS resolution failed.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check the URL spelling\n")
		msg.WriteString("  - Verify your DNS settings\n")
	case strings.Contains(text, "certificate"):
		msg.WriteString("TLS certificate error.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Verify the server's certificate\n")
		msg.WriteString("  - Check if the certificate is expired\n")
	default:
		fmt.Fprintf(&msg, "Network error: %s\n\n", text)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check your network connection\n")
		msg.WriteString("  - Retry transient failures with --retries N\n")
	}
	return msg.String()
}

func suggestionsForHTTPError(err *api.HTTPError) string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggestions:\n")

	switch code := err.StatusCode; {
	case code == 400:
		suggestions.WriteString("  - Check your request parameters\n")
		suggestions.WriteString("  - Use --dry-run to see the prepared request\n")

	case code == 401:
		if err.Redirected {
			suggestions.WriteString("  - Sign in again at the redirect target shown above\n")
		}
		suggestions.WriteString("  - Your token may be invalid or expired\n")
		suggestions.WriteString("  - Inspect it: ajax token inspect\n")
		suggestions.WriteString("  - Fetch a new one: ajax token fetch --save PROFILE\n")

	case code == 403:
		suggestions.WriteString("  - The credential lacks permission for this action\n")
		suggestions.WriteString("  - Try another profile with --profile\n")

	case code == 404:
		suggestions.WriteString("  - Check the URL path\n")
		suggestions.WriteString("  - The resource may have been deleted\n")

	case code == 409:
		suggestions.WriteString("  - The resource changed since you read it\n")
		suggestions.WriteString("  - Fetch it again and retry\n")

	case code == 422:
		suggestions.WriteString("  - Validation failed\n")
		suggestions.WriteString("  - Check your input values\n")

	case code == 429:
		if wait, ok := (&api.Response{Header: err.Header}).RetryAfter(); ok {
			fmt.Fprintf(&suggestions, "  - Retry after %s\n", wait)
		} else {
			suggestions.WriteString("  - Wait and retry in a few seconds\n")
		}
		suggestions.WriteString("  - Use --retries N to back off automatically\n")

	case code >= 500:
		suggestions.WriteString("  - Server error, not your fault\n")
		suggestions.WriteString("  - Wait and retry, or use --retries N\n")

	default:
		suggestions.WriteString("  - Use --debug for more details\n")
		suggestions.WriteString("  - Use --include to see the response headers\n")
	}

	return suggestions.String()
}

// ExitWithError prints error with suggestions and exits
func ExitWithError(err error) {
	if err == nil {
		return
	}
	_, _ = fmt.Fprint(os.Stderr, HandleError(err))
	os.Exit(ExitCode(err))
}
