package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/dryrun"
	"github.com/acto-dev/ajax/internal/iocontext"
	"github.com/acto-dev/ajax/internal/validation"
)

// DefaultConcurrency is the default number of concurrent workers
const DefaultConcurrency = 5

// batchLine is one JSON line of batch input. Form switches the line to
// multipart encoding; otherwise Body is sent as JSON.
type batchLine struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Form    map[string]string `json:"form,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	number int
}

// batchItem is a parsed line ready for dispatch.
type batchItem struct {
	line       int
	method     string
	displayURL string
	desc       *api.Descriptor
	err        error
}

// BatchResult is the outcome of one batch line, printed in input order.
type BatchResult struct {
	Line   int                  `json:"line"`
	Method string               `json:"method"`
	URL    string               `json:"url"`
	Status int                  `json:"status,omitempty"`
	Data   any                  `json:"data,omitempty"`
	Error  *api.StructuredError `json:"error,omitempty"`

	err error
}

func newBatchCmd() *cobra.Command {
	var (
		concurrency int64
		failFast    bool
		progress    bool
	)

	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Send requests read as JSON lines",
		Long: `Send one request per input line. Each line is a JSON object:

  {"method":"POST","url":"https://api.example.com/items","body":{"name":"a"}}
  {"method":"PUT","url":"https://api.example.com/upload","form":{"title":"b"}}

Blank lines and lines starting with # are skipped. Results are printed as
JSON lines in input order. Reads stdin when no file is given.`,
		Example: `  ajax batch requests.jsonl --concurrency 10
  cat requests.jsonl | ajax batch --fail-fast`,
		Args: cobra.MaximumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be >= 1")
			}
			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			ioStreams := iocontext.GetIO(cmd.Context())
			data, err := ioStreams.ReadSource(source)
			if err != nil {
				return err
			}
			lines, err := parseBatchLines(data)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return errors.New("no requests in batch input")
			}

			client, _, err := newClientFactory(ioStreams.ErrOut).client()
			if err != nil {
				return err
			}
			items := prepareBatch(client, lines)

			if dryrun.IsEnabled(cmd.Context()) {
				for _, item := range items {
					if item.err != nil {
						_, _ = fmt.Fprintf(ioStreams.ErrOut, "line %d: %v\n", item.line, item.err)
						continue
					}
					preview := dryrun.FromDescriptor(item.desc, client.Auth())
					if isJSON(cmd) {
						if err := printJSON(cmd, preview); err != nil {
							return err
						}
						continue
					}
					preview.Write(ioStreams.Out)
				}
				return nil
			}

			var errOut io.Writer
			if progress {
				errOut = ioStreams.ErrOut
			}
			results := runBatch(cmd.Context(), client, items, concurrency, failFast, errOut)

			failed := 0
			for _, r := range results {
				if r.err != nil {
					failed++
				}
				if err := printJSONLine(ioStreams.Out, r); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, len(results))
			}
			return nil
		}),
	}

	cmd.Flags().Int64Var(&concurrency, "concurrency", DefaultConcurrency, "Maximum requests in flight")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Cancel outstanding requests after the first failure")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show progress on stderr")
	flagAlias(cmd.Flags(), "fail-fast", "ff")

	return cmd
}

// parseBatchLines decodes every line before anything is sent, so a
// malformed line aborts the whole batch.
func parseBatchLines(data []byte) ([]batchLine, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), validation.MaxJSONPayload+1024)

	var lines []batchLine
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var line batchLine
		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&line); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", n, err)
		}
		if strings.TrimSpace(line.URL) == "" {
			return nil, fmt.Errorf("line %d: url is required", n)
		}
		if line.Method == "" {
			line.Method = http.MethodGet
		}
		if len(line.Body) > 0 && line.Form != nil {
			return nil, fmt.Errorf("line %d: body cannot be used with form", n)
		}
		line.number = n
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}
	return lines, nil
}

// prepareBatch builds one descriptor per line. Lines that fail to build
// keep their error and are never sent.
func prepareBatch(client *api.Client, lines []batchLine) []*batchItem {
	base := callOptions()
	items := make([]*batchItem, 0, len(lines))
	for _, line := range lines {
		item := &batchItem{line: line.number, method: strings.ToUpper(line.Method), displayURL: line.URL}

		opts := append([]api.CallOption(nil), base...)
		for k, v := range line.Headers {
			opts = append(opts, api.WithHeader(k, v))
		}

		var (
			enc  = api.EncodingJSON
			body any
		)
		switch {
		case line.Form != nil:
			enc, body = api.EncodingForm, line.Form
		case len(line.Body) > 0:
			body = line.Body
		}

		item.desc, item.err = client.Prepare(line.Method, enc, line.URL, body, opts...)
		if item.desc != nil {
			item.displayURL = item.desc.DisplayURL()
		}
		items = append(items, item)
	}
	return items
}

// runBatch dispatches items with bounded parallelism. With failFast the
// first failure cancels every outstanding request through its handle.
func runBatch(ctx context.Context, client *api.Client, items []*batchItem, concurrency int64, failFast bool, errOut io.Writer) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	sem := semaphore.NewWeighted(concurrency)
	results := make([]BatchResult, len(items))
	total := len(items)
	var (
		done int64
		mu   sync.Mutex
	)

	// The group context ends on the first failure when failFast is set.
	// Outstanding requests are then cancelled through their handles so the
	// failure itself is not reported as their cause.
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		for _, item := range items {
			if item.desc != nil {
				item.desc.Handle.Cancel()
			}
		}
	})

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = BatchResult{Line: item.line, Method: item.method, URL: item.displayURL}

			err := item.err
			var resp *api.Response
			if err == nil {
				resp, err = dispatchBatchItem(ctx, gctx, client, sem, item)
			}
			if resp != nil {
				results[i].Status = resp.StatusCode
				results[i].Data = responseData(resp)
			}
			if err != nil {
				results[i].err = err
				results[i].Error = api.StructuredErrorFromError(err)
			}

			if errOut != nil && total > 0 {
				current := atomic.AddInt64(&done, 1)
				mu.Lock()
				_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d", current, total)
				mu.Unlock()
			}
			if failFast {
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	stop()
	if err != nil {
		slog.Debug("batch stopped after first failure", "error", err)
	}

	if errOut != nil && total > 0 {
		_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d\n", atomic.LoadInt64(&done), total)
	}
	return results
}

// dispatchBatchItem waits for a slot on groupCtx and sends on ctx, so a
// stopped group releases waiting items without becoming their error.
func dispatchBatchItem(ctx, groupCtx context.Context, client *api.Client, sem *semaphore.Weighted, item *batchItem) (*api.Response, error) {
	cancelled := func(cause error) error {
		return &api.CancelledError{Method: item.method, URL: item.displayURL, Err: cause}
	}

	if err := sem.Acquire(groupCtx, 1); err != nil {
		return nil, cancelled(err)
	}
	defer sem.Release(1)

	if cause := item.desc.Handle.Err(); cause != nil {
		return nil, cancelled(cause)
	}

	if flags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.Timeout)
		defer cancel()
	}
	return client.Do(ctx, item.desc)
}

func printJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
