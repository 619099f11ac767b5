// Package api is an authenticated HTTP request layer: it builds JSON or form
// requests, attaches a credential, and hands 401/403 responses to a navigator.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/acto-dev/ajax/internal/debug"
)

// Transport sends a request and returns its response. *http.Client
// satisfies it, as do test doubles.
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(*http.Request) (*http.Response, error)

// Do calls f(req).
func (f TransportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Config is the long-lived, read-only state of a Client.
type Config struct {
	// Header holds base headers sent with every request.
	Header http.Header
	// Auth is the credential scheme. Nil means NoAuth.
	Auth AuthScheme
	// Unauthorized is run on 401 (and 403 when enabled). Nil disables it.
	Unauthorized *UnauthorizedPolicy
	// Transform post-processes every settled response before classification.
	Transform ResponseTransform
	// Transport sends the requests. Nil uses DefaultHTTPClient.
	Transport Transport
	// ValidateURL, when set, vets each target URL before anything is built.
	ValidateURL func(string) error
	UserAgent   string
}

// Option configures a Client.
type Option func(*Config)

// WithAuth sets the credential scheme.
func WithAuth(scheme AuthScheme) Option {
	return func(c *Config) { c.Auth = scheme }
}

// WithBearer sends token in an Authorization: Bearer header.
func WithBearer(token string) Option {
	return WithAuth(Bearer{Token: token})
}

// WithStaticToken appends token to every request URL.
func WithStaticToken(token string) Option {
	return WithAuth(StaticToken{Token: token})
}

// WithUnauthorized navigates to target on 401 responses.
func WithUnauthorized(target string, navigate Navigator) Option {
	return func(c *Config) {
		forbidden := c.Unauthorized != nil && c.Unauthorized.Forbidden
		c.Unauthorized = &UnauthorizedPolicy{Target: target, Navigate: navigate, Forbidden: forbidden}
	}
}

// WithForbidden extends the unauthorized policy to 403 responses.
func WithForbidden(enabled bool) Option {
	return func(c *Config) {
		if c.Unauthorized == nil {
			if !enabled {
				return
			}
			c.Unauthorized = &UnauthorizedPolicy{}
		}
		c.Unauthorized.Forbidden = enabled
	}
}

// WithTransform sets the response transform. Several calls chain.
func WithTransform(t ResponseTransform) Option {
	return func(c *Config) {
		if c.Transform == nil {
			c.Transform = t
			return
		}
		c.Transform = ChainTransforms(c.Transform, t)
	}
}

// WithTransport sets the transport.
func WithTransport(t Transport) Option {
	return func(c *Config) { c.Transport = t }
}

// WithHTTPClient is WithTransport for an *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.Transport = hc }
}

// WithURLValidator vets target URLs before requests are built.
func WithURLValidator(fn func(string) error) Option {
	return func(c *Config) { c.ValidateURL = fn }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithBaseHeader adds a base header sent with every request.
func WithBaseHeader(key, value string) Option {
	return func(c *Config) {
		if c.Header == nil {
			c.Header = http.Header{}
		}
		c.Header.Set(key, value)
	}
}

// Client issues requests through the build, inject, dispatch and
// intercept pipeline. It is immutable after New and safe for concurrent use.
type Client struct {
	cfg Config
}

var _ Requester = (*Client)(nil)

// New creates a client from options.
func New(opts ...Option) (*Client, error) {
	var cfg Config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a client from cfg. cfg is copied; later changes to
// it do not affect the client.
func NewWithConfig(cfg Config) (*Client, error) {
	if p := cfg.Unauthorized; p != nil {
		if p.Navigate == nil {
			return nil, fmt.Errorf("%w: unauthorized policy has no navigator", ErrInvalidConfig)
		}
		copied := *p
		cfg.Unauthorized = &copied
	}
	if cfg.Auth == nil {
		cfg.Auth = NoAuth{}
	}
	if cfg.Transport == nil {
		cfg.Transport = DefaultHTTPClient()
	}
	cfg.Header = cfg.Header.Clone()
	return &Client{cfg: cfg}, nil
}

// With returns a new client sharing c's settings with opts applied on top,
// e.g. the same wiring with a different auth scheme.
func (c *Client) With(opts ...Option) (*Client, error) {
	cfg := c.cfg
	cfg.Header = c.cfg.Header.Clone()
	if c.cfg.Unauthorized != nil {
		copied := *c.cfg.Unauthorized
		cfg.Unauthorized = &copied
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return NewWithConfig(cfg)
}

// Auth returns the client's credential scheme.
func (c *Client) Auth() AuthScheme {
	return c.cfg.Auth
}

// DefaultHTTPClient returns a pooled client with TLS 1.2 as the minimum
// version and no overall timeout. Deadlines come from the caller's context.
func DefaultHTTPClient() *http.Client {
	client := cleanhttp.DefaultPooledClient()
	if transport, ok := client.Transport.(*http.Transport); ok {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		} else {
			transport.TLSClientConfig = transport.TLSClientConfig.Clone()
		}
		transport.TLSClientConfig.MinVersion = tls.VersionTLS12
		transport.TLSClientConfig.InsecureSkipVerify = false
	}
	return client
}

// Build assembles a descriptor without credentials.
func (c *Client) Build(method string, enc Encoding, rawURL string, body any, opts ...CallOption) (*Descriptor, error) {
	return buildDescriptor(&c.cfg, method, enc, rawURL, body, opts)
}

// Prepare builds a descriptor and injects the client's credential.
func (c *Client) Prepare(method string, enc Encoding, rawURL string, body any, opts ...CallOption) (*Descriptor, error) {
	d, err := c.Build(method, enc, rawURL, body, opts...)
	if err != nil {
		return nil, err
	}
	return Inject(d, c.cfg.Auth), nil
}

// Send prepares and dispatches a request.
func (c *Client) Send(ctx context.Context, method string, enc Encoding, rawURL string, body any, opts ...CallOption) (*Response, error) {
	d, err := c.Prepare(method, enc, rawURL, body, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, d)
}

// Do dispatches a prepared descriptor and classifies the outcome.
//
// Non-2xx responses return both the response and an *HTTPError.
// Failures without a status return *TransportError, and cancellation
// through ctx or the descriptor's handle returns *CancelledError; neither
// runs the unauthorized policy.
func (c *Client) Do(ctx context.Context, d *Descriptor) (*Response, error) {
	handle := d.Handle
	if handle == nil {
		handle = NewHandle()
	}
	ctx, release := handle.bind(ctx)
	defer release()

	displayURL := d.DisplayURL()
	start := time.Now()

	var bodyReader io.Reader
	if d.Body != nil {
		bodyReader = bytes.NewReader(d.Body.Bytes())
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s", ErrInvalidURL, displayURL)
	}
	req.Header = d.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	httpResp, err := c.cfg.Transport.Do(req)
	if cause := cancelCause(ctx, handle); cause != nil {
		if httpResp != nil && httpResp.Body != nil {
			_ = httpResp.Body.Close()
		}
		c.logDone(ctx, d, "request cancelled", start, "cause", cause)
		return nil, &CancelledError{Method: d.Method, URL: displayURL, Err: cause}
	}
	if err == nil && httpResp == nil {
		err = errors.New("transport returned no response")
	}
	if err != nil {
		err = redactURLError(err, displayURL)
		c.logDone(ctx, d, "request failed", start, "error", err)
		return nil, &TransportError{Method: d.Method, URL: displayURL, Err: err}
	}

	var respBody []byte
	if httpResp.Body != nil {
		respBody, err = io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
	}
	if cause := cancelCause(ctx, handle); cause != nil {
		c.logDone(ctx, d, "request cancelled", start, "cause", cause)
		return nil, &CancelledError{Method: d.Method, URL: displayURL, Err: cause}
	}
	if err != nil {
		c.logDone(ctx, d, "request failed", start, "error", err)
		return nil, &TransportError{Method: d.Method, URL: displayURL, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}
	if c.cfg.Transform != nil {
		if transformed := c.cfg.Transform(resp); transformed != nil {
			resp = transformed
		}
	}
	c.logDone(ctx, d, "request complete", start, "status", resp.StatusCode)

	return intercept(d, resp, c.cfg.Unauthorized)
}

func (c *Client) logDone(ctx context.Context, d *Descriptor, msg string, start time.Time, args ...any) {
	if !debug.IsEnabled(ctx) {
		return
	}
	attrs := []any{"method", d.Method, "url", d.DisplayURL(), "auth", c.cfg.Auth.String()}
	attrs = append(attrs, args...)
	attrs = append(attrs, "duration", time.Since(start))
	slog.Debug(msg, attrs...)
}

// redactURLError replaces the URL inside a *url.Error so a credential
// appended to the path is not echoed back.
func redactURLError(err error, displayURL string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: displayURL, Err: urlErr.Err}
	}
	return err
}

// RequestFunc is a request bound to one method and encoding.
type RequestFunc func(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error)

// Func returns the request function for method and enc. The auth axis is
// fixed by the client; use With to derive a client with another scheme.
func (c *Client) Func(method string, enc Encoding) RequestFunc {
	return func(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
		return c.Send(ctx, method, enc, rawURL, body, opts...)
	}
}

// GetJSON performs a GET request accepting JSON.
func (c *Client) GetJSON(ctx context.Context, rawURL string, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodGet, EncodingJSON, rawURL, nil, opts...)
}

// PostJSON performs a POST request with a JSON body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodPost, EncodingJSON, rawURL, body, opts...)
}

// PutJSON performs a PUT request with a JSON body.
func (c *Client) PutJSON(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodPut, EncodingJSON, rawURL, body, opts...)
}

// DeleteJSON performs a DELETE request with an optional JSON body.
func (c *Client) DeleteJSON(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodDelete, EncodingJSON, rawURL, body, opts...)
}

// GetForm performs a GET request with a multipart form body.
func (c *Client) GetForm(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodGet, EncodingForm, rawURL, body, opts...)
}

// PostForm performs a POST request with a multipart form body.
func (c *Client) PostForm(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodPost, EncodingForm, rawURL, body, opts...)
}

// PutForm performs a PUT request with a multipart form body.
func (c *Client) PutForm(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodPut, EncodingForm, rawURL, body, opts...)
}

// DeleteForm performs a DELETE request with a multipart form body.
func (c *Client) DeleteForm(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Send(ctx, http.MethodDelete, EncodingForm, rawURL, body, opts...)
}
