package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/cache"
	"github.com/acto-dev/ajax/internal/config"
	"github.com/acto-dev/ajax/internal/dryrun"
	"github.com/acto-dev/ajax/internal/iocontext"
	"github.com/acto-dev/ajax/internal/outfmt"
	"github.com/acto-dev/ajax/internal/token"
)

// tokenExpiryWarning is how close to expiry a bearer JWT triggers a warning.
const tokenExpiryWarning = time.Minute

type requestOptions struct {
	body    bodyOptions
	include bool
	silent  bool
	cache   time.Duration
}

// responseOutput is the --output json shape of a response.
type responseOutput struct {
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Cached    bool              `json:"cached,omitempty"`
	RateLimit map[string]any    `json:"rate_limit,omitempty"`
	Data      any               `json:"data"`
}

func newRequestCmds() []*cobra.Command {
	return []*cobra.Command{
		newRequestCmd(http.MethodGet),
		newRequestCmd(http.MethodPost),
		newRequestCmd(http.MethodPut),
		newRequestCmd(http.MethodDelete),
	}
}

func newRequestCmd(method string) *cobra.Command {
	opts := &requestOptions{}
	verb := strings.ToLower(method)

	cmd := &cobra.Command{
		Use:   verb + " <url>",
		Short: fmt.Sprintf("Send a %s request", method),
		Example: fmt.Sprintf(`  # JSON body from fields
  ajax %[1]s https://api.example.com/items -f name=widget -F tags='["a","b"]'

  # Inline JSON or a file ('-' reads stdin)
  ajax %[1]s https://api.example.com/items -d '{"name":"widget"}'
  ajax %[1]s https://api.example.com/items -i body.json

  # Multipart form with a file part
  ajax %[1]s https://api.example.com/upload --form -f title=report --file doc=@report.pdf

  # Preview without sending
  ajax %[1]s https://api.example.com/items -f name=widget --dry-run`, verb),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, method, args[0], opts)
		}),
	}

	opts.body.register(cmd)
	cmd.Flags().BoolVar(&opts.include, "include", false, "Include status and response headers in output")
	cmd.Flags().BoolVarP(&opts.silent, "silent", "s", false, "Suppress the response body")
	flagAlias(cmd.Flags(), "include", "inc")
	if method == http.MethodGet {
		cmd.Flags().DurationVar(&opts.cache, "cache", 0, "Serve from and store in the response cache for DUR (0 uses the configured TTL)")
	}

	return cmd
}

func runRequest(cmd *cobra.Command, method, rawURL string, opts *requestOptions) error {
	ctx := cmd.Context()
	ioStreams := iocontext.GetIO(ctx)

	body, enc, err := opts.body.build(ioStreams)
	if err != nil {
		return err
	}

	client, _, err := newClientFactory(ioStreams.ErrOut).client()
	if err != nil {
		return err
	}

	d, err := client.Prepare(method, enc, rawURL, body, callOptions()...)
	if err != nil {
		return err
	}

	if dryrun.IsEnabled(ctx) {
		preview := dryrun.FromDescriptor(d, client.Auth())
		if isJSON(cmd) {
			return printJSON(cmd, preview)
		}
		preview.Write(ioStreams.Out)
		return nil
	}

	warnIfTokenExpiring(cmd, client.Auth())

	if flags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.Timeout)
		defer cancel()
	}

	var (
		store    *cache.Cache
		cacheKey string
	)
	if flagOrAliasChanged(cmd, "cache") {
		var closeStore func()
		store, closeStore, err = openCache(settings, opts.cache)
		if err != nil {
			return err
		}
		defer closeStore()
		cacheKey = cache.Key(d)
		if cached, ok := store.Get(ctx, cacheKey); ok {
			return writeResponse(cmd, cached, opts, true)
		}
	}

	resp, err := client.Do(ctx, d)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.Put(ctx, cacheKey, resp); err != nil {
			_, _ = fmt.Fprintf(ioStreams.ErrOut, "Warning: failed to cache response: %v\n", err)
		}
	}
	return writeResponse(cmd, resp, opts, false)
}

// openCache opens the Redis store when a URL is configured and the file
// store otherwise. A non-positive ttl falls back to the configured TTL.
func openCache(s config.Settings, ttl time.Duration) (*cache.Cache, func(), error) {
	if ttl <= 0 {
		ttl = s.Cache.TTL
	}
	if s.Cache.RedisURL != "" {
		store, err := cache.NewRedisStore(s.Cache.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return cache.New(store, ttl), func() { _ = store.Close() }, nil
	}
	return cache.New(cache.NewFileStore(s.CacheDir()), ttl), func() {}, nil
}

func warnIfTokenExpiring(cmd *cobra.Command, scheme api.AuthScheme) {
	bearer, ok := scheme.(api.Bearer)
	if !ok {
		return
	}
	now := time.Now()
	info, err := token.Inspect(bearer.Token, now)
	if err != nil {
		return
	}
	errOut := iocontext.GetIO(cmd.Context()).ErrOut
	switch {
	case info.Expired:
		_, _ = fmt.Fprintf(errOut, "Warning: bearer token expired at %s\n", info.ExpiresAt.Format(time.RFC3339))
	case info.ExpiresWithin(now, tokenExpiryWarning):
		_, _ = fmt.Fprintf(errOut, "Warning: bearer token expires in %s\n", info.ExpiresAt.Sub(now).Round(time.Second))
	}
}

func writeResponse(cmd *cobra.Command, resp *api.Response, opts *requestOptions, cached bool) error {
	if opts.silent {
		return nil
	}
	ioStreams := iocontext.GetIO(cmd.Context())

	if isJSON(cmd) {
		out := responseOutput{
			Status:    resp.StatusCode,
			RequestID: resp.RequestID(),
			Cached:    cached,
			RateLimit: resp.RateLimit().Meta(),
			Data:      responseData(resp),
		}
		if opts.include {
			out.Headers = flattenHeaders(resp.Header)
		}
		return printJSON(cmd, out)
	}

	if opts.include {
		_, _ = fmt.Fprintf(ioStreams.Out, "HTTP %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
		keys := make([]string, 0, len(resp.Header))
		for k := range resp.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range resp.Header[k] {
				_, _ = fmt.Fprintf(ioStreams.Out, "%s: %s\n", k, v)
			}
		}
		_, _ = fmt.Fprintln(ioStreams.Out)
	}
	return outfmt.WriteBody(ioStreams.Out, resp.Body, resp.Header.Get("Content-Type"), outfmt.GetQuery(cmd.Context()), outfmt.IsCompact(cmd.Context()))
}

// responseData is the parsed body, or the raw text when it is not JSON.
func responseData(resp *api.Response) any {
	data, err := resp.JSON()
	if err != nil {
		return string(resp.Body)
	}
	return data
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
