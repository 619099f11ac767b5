package cmd

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/config"
)

func TestNewNavigator(t *testing.T) {
	var buf bytes.Buffer
	navigate := newNavigator(&buf)

	navigate("/login", "")
	navigate("/login", "/inbox")

	want := "unauthorized: redirect to /login\nunauthorized: redirect to /login (from /inbox)\n"
	if buf.String() != want {
		t.Errorf("navigator output = %q, want %q", buf.String(), want)
	}
}

func TestRequestID(t *testing.T) {
	t.Cleanup(func() { flags = rootFlags{} })

	flags = rootFlags{}
	if id := requestID(); id != "" {
		t.Errorf("expected no request ID, got %q", id)
	}

	flags = rootFlags{RequestID: " trace-1 "}
	if id := requestID(); id != "trace-1" {
		t.Errorf("expected explicit ID, got %q", id)
	}

	flags = rootFlags{RequestID: "AUTO"}
	first, second := requestID(), requestID()
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("auto ID is not a UUID: %q", first)
	}
	if first == second {
		t.Error("auto IDs should differ per request")
	}
}

func TestCallOptions(t *testing.T) {
	t.Cleanup(func() { flags = rootFlags{} })
	flags = rootFlags{Referrer: "/inbox", RequestID: "trace-1"}

	client, err := api.New()
	if err != nil {
		t.Fatal(err)
	}
	d, err := client.Prepare(http.MethodGet, api.EncodingJSON, "https://example.com/x", nil, callOptions()...)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := d.Referrer(); got != "/inbox" {
		t.Errorf("referrer = %q, want /inbox", got)
	}
	if got := d.Header.Get(requestIDHeader); got != "trace-1" {
		t.Errorf("request ID header = %q, want trace-1", got)
	}
}

func TestClientFactory_ResolvesBearer(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{}`))
	t.Cleanup(func() { flags = rootFlags{}; settings = config.Settings{} })

	flags = rootFlags{Bearer: "abc123456789", Headers: []string{"X-Tenant: acme"}}
	settings = config.Settings{ParseJSON: true}

	client, cc, err := newClientFactory(&bytes.Buffer{}).client()
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, ok := client.Auth().(api.Bearer); !ok {
		t.Errorf("expected bearer auth, got %T", client.Auth())
	}
	if cc.Source == "" {
		t.Error("expected a credential source")
	}

	d, err := client.Prepare(http.MethodGet, api.EncodingJSON, "https://example.com/x", nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := d.Header.Get("X-Tenant"); got != "acme" {
		t.Errorf("base header = %q, want acme", got)
	}
	if got := d.Header.Get("Authorization"); got != "Bearer abc123456789" {
		t.Errorf("authorization = %q", got)
	}
}

func TestClientFactory_InvalidHeader(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{}`))
	t.Cleanup(func() { flags = rootFlags{} })

	flags = rootFlags{Headers: []string{"no-colon"}}
	if _, _, err := newClientFactory(&bytes.Buffer{}).client(); err == nil {
		t.Fatal("expected error for a malformed header")
	}
}

func TestNewRetryingHTTPClient(t *testing.T) {
	hc := newRetryingHTTPClient(3)
	if _, ok := hc.Transport.(*retryablehttp.RoundTripper); !ok {
		t.Fatalf("expected retrying transport, got %T", hc.Transport)
	}
}
