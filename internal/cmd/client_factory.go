package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/config"
	"github.com/acto-dev/ajax/internal/validation"
)

const requestIDHeader = "X-Request-Id"

// Backoff bounds for --retries. Tests shorten them.
var (
	retryWaitMin = 500 * time.Millisecond
	retryWaitMax = 10 * time.Second
)

type clientFactory struct {
	settings  config.Settings
	userAgent string
	retries   int
	headers   []string
	errOut    io.Writer
}

func newClientFactory(errOut io.Writer) *clientFactory {
	ua := settings.UserAgent
	if ua == "" {
		ua = fmt.Sprintf("ajax/%s", version)
	}
	return &clientFactory{
		settings:  settings,
		userAgent: ua,
		retries:   flags.Retries,
		headers:   flags.Headers,
		errOut:    errOut,
	}
}

// overrides collects the credential flags for config.ResolveClientConfig.
func overrides() config.Overrides {
	return config.Overrides{
		Token:              flags.Token,
		Bearer:             flags.Bearer,
		Profile:            flags.Profile,
		UnauthorizedTarget: flags.OnUnauthorized,
		Forbidden:          flags.Forbidden,
	}
}

// client resolves the credential and request defaults and builds a client.
func (f *clientFactory) client() (*api.Client, config.ClientConfig, error) {
	cc, err := config.ResolveClientConfig(overrides(), f.settings)
	if err != nil {
		return nil, config.ClientConfig{}, err
	}
	if cc.UnauthorizedTarget != "" {
		if err := validation.ValidateRedirectTarget(cc.UnauthorizedTarget); err != nil {
			return nil, config.ClientConfig{}, fmt.Errorf("unauthorized target from %s: %w", cc.Source, err)
		}
	}

	opts := cc.ClientOptions(newNavigator(f.errOut))
	opts = append(opts,
		api.WithURLValidator(validation.ValidateTargetURL),
		api.WithUserAgent(f.userAgent),
	)
	for _, raw := range f.headers {
		key, value, err := validation.ParseHeader(raw)
		if err != nil {
			return nil, config.ClientConfig{}, err
		}
		opts = append(opts, api.WithBaseHeader(key, value))
	}
	if f.settings.ParseJSON {
		opts = append(opts, api.WithTransform(api.ParseJSON))
	}
	if f.retries > 0 {
		opts = append(opts, api.WithHTTPClient(newRetryingHTTPClient(f.retries)))
	}

	client, err := api.New(opts...)
	if err != nil {
		return nil, config.ClientConfig{}, err
	}
	slog.Debug("client configured", "auth", client.Auth().String(), "source", cc.Source, "retries", f.retries)
	return client, cc, nil
}

// newNavigator reports unauthorized redirects on w. The CLI has no router,
// so the redirect is a message and the command still fails.
func newNavigator(w io.Writer) api.Navigator {
	return func(target, referrer string) {
		if referrer == "" {
			_, _ = fmt.Fprintf(w, "unauthorized: redirect to %s\n", target)
			return
		}
		_, _ = fmt.Fprintf(w, "unauthorized: redirect to %s (from %s)\n", target, referrer)
	}
}

// newRetryingHTTPClient wraps the default transport with retries on
// connection errors, 429 and 5xx. After the last attempt the final response
// is passed through so the request layer still classifies it.
func newRetryingHTTPClient(retries int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = api.DefaultHTTPClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = slog.Default()
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

// callOptions returns the per-request options shared by every command.
func callOptions() []api.CallOption {
	var opts []api.CallOption
	if flags.Referrer != "" {
		opts = append(opts, api.WithReferrer(flags.Referrer))
	}
	if id := requestID(); id != "" {
		opts = append(opts, api.WithHeader(requestIDHeader, id))
	}
	return opts
}

func requestID() string {
	id := strings.TrimSpace(flags.RequestID)
	if strings.EqualFold(id, "auto") {
		return uuid.NewString()
	}
	return id
}
