// Package dryrun previews prepared requests without sending them.
package dryrun

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/acto-dev/ajax/internal/api"
)

type contextKey string

const dryRunKey contextKey = "dry_run_enabled"

// maxBodyPreview caps how much of a body is echoed back.
const maxBodyPreview = 2048

// WithDryRun returns a context with dry-run mode enabled/disabled.
func WithDryRun(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, dryRunKey, enabled)
}

// IsEnabled returns true if dry-run mode is enabled.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(dryRunKey).(bool); ok {
		return v
	}
	return false
}

// Preview represents a request that would have been sent.
type Preview struct {
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Auth     string            `json:"auth"`
	Headers  map[string]string `json:"headers,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
	Body     string            `json:"body,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// FromDescriptor builds a preview of a prepared descriptor. Credentials never
// appear: the URL is the pre-injection one and Authorization is masked.
func FromDescriptor(d *api.Descriptor, scheme api.AuthScheme) *Preview {
	p := &Preview{
		Method:  d.Method,
		URL:     d.DisplayURL(),
		Auth:    "none",
		Headers: make(map[string]string, len(d.Header)),
	}
	if scheme != nil {
		p.Auth = scheme.String()
	}
	for k, vs := range d.Header {
		if http.CanonicalHeaderKey(k) == "Authorization" {
			p.Headers[k] = "[redacted]"
			continue
		}
		p.Headers[k] = strings.Join(vs, ", ")
	}
	if _, ok := scheme.(api.StaticToken); ok {
		p.Warnings = append(p.Warnings, "static token is appended to the URL path when sent")
	}
	if d.Body != nil {
		p.Encoding = d.Body.Encoding().String()
		p.Body = previewBody(d.Body)
	}
	if d.Method == http.MethodGet && d.Body != nil {
		p.Warnings = append(p.Warnings, "GET request carries a body; some servers ignore it")
	}
	return p
}

func previewBody(b api.Body) string {
	data := b.Bytes()
	if b.Encoding() == api.EncodingForm {
		return fmt.Sprintf("<%s, %d bytes>", b.ContentType(), len(data))
	}
	if len(data) > maxBodyPreview {
		return string(data[:maxBodyPreview]) + fmt.Sprintf("... (%d bytes total)", len(data))
	}
	return string(data)
}

// Write outputs the preview to the writer
func (p *Preview) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n[DRY-RUN] Would %s %s\n", p.Method, p.URL)
	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")
	_, _ = fmt.Fprintf(w, "  auth: %s\n", p.Auth)

	if len(p.Headers) > 0 {
		keys := make([]string, 0, len(p.Headers))
		for k := range p.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", k, p.Headers[k])
		}
	}
	if p.Body != "" {
		_, _ = fmt.Fprintf(w, "\n  body (%s):\n  %s\n", p.Encoding, p.Body)
	}
	_, _ = fmt.Fprintln(w)

	if len(p.Warnings) > 0 {
		_, _ = fmt.Fprintln(w, "Warnings:")
		for _, warning := range p.Warnings {
			_, _ = fmt.Fprintf(w, "  ! %s\n", warning)
		}
		_, _ = fmt.Fprintln(w)
	}

	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")
	_, _ = fmt.Fprintln(w, "No request sent (dry-run mode)")
}
