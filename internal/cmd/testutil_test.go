// Test utilities for the ajax commands.
//
// Commands are run through Execute against an httptest server. The server
// is loopback, so setupTestEnv turns on AJAX_ALLOW_PRIVATE, points
// AJAX_CONFIG at a file that does not exist and clears the credential env.
//
//	env := setupTestEnv(t, newRouteHandler().
//	    On("GET", "/items", jsonResponse(200, `{"id": 1}`)))
//
//	output := captureStdout(t, func() {
//	    if err := Execute(context.Background(), []string{"get", env.url("/items")}); err != nil {
//	        t.Fatalf("failed: %v", err)
//	    }
//	})
package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/99designs/keyring"

	"github.com/acto-dev/ajax/internal/config"
)

// captureStdout executes a function and captures its stdout output.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	fn()

	_ = w.Close()
	os.Stdout = old
	<-done
	return buf.String()
}

// captureStderr executes a function and captures its stderr output.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	fn()

	_ = w.Close()
	os.Stderr = old
	<-done
	return buf.String()
}

// captureOutput captures stdout and stderr of fn.
func captureOutput(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()
	stderr = captureStderr(t, func() {
		stdout = captureStdout(t, fn)
	})
	return stdout, stderr
}

// testEnv is a mock server plus an isolated environment.
type testEnv struct {
	server *httptest.Server
	dir    string
}

func (e *testEnv) url(path string) string {
	return e.server.URL + path
}

// setupTestEnv starts handler on a loopback server and isolates config,
// cache and credential env for the test.
func setupTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	t.Setenv("AJAX_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("AJAX_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("AJAX_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("AJAX_NO_CACHE", "")
	t.Setenv("AJAX_ALLOW_PRIVATE", "true")
	t.Setenv("AJAX_OUTPUT", "text")
	t.Setenv("AJAX_TOKEN", "")
	t.Setenv("AJAX_BEARER", "")
	t.Setenv("AJAX_PROFILE", "")
	t.Setenv("AJAX_RETRIES", "")
	t.Setenv("AJAX_TIMEOUT", "")

	return &testEnv{server: server, dir: dir}
}

// useSharedKeyring installs one in-memory keyring for the whole test so
// profiles persist across Execute calls.
func useSharedKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	t.Cleanup(config.SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return ring, nil
	}))
}

// jsonResponse returns a handler that writes body as JSON with statusCode.
func jsonResponse(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
}

// routeHandler routes by "METHOD PATH" and answers 404 otherwise.
type routeHandler struct {
	routes map[string]http.HandlerFunc
}

func newRouteHandler() *routeHandler {
	return &routeHandler{routes: make(map[string]http.HandlerFunc)}
}

// On registers a handler for the given method and path.
func (rh *routeHandler) On(method, path string, handler http.HandlerFunc) *routeHandler {
	rh.routes[method+" "+path] = handler
	return rh
}

func (rh *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handler, ok := rh.routes[r.Method+" "+r.URL.Path]; ok {
		handler(w, r)
		return
	}
	http.NotFound(w, r)
}

// recorder captures the requests a handler receives.
type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

func (rec *recorder) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		rec.mu.Unlock()
		next(w, r)
	}
}

func (rec *recorder) all() []recordedRequest {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]recordedRequest(nil), rec.requests...)
}

func (rec *recorder) last(t *testing.T) recordedRequest {
	t.Helper()
	all := rec.all()
	if len(all) == 0 {
		t.Fatal("no request recorded")
	}
	return all[len(all)-1]
}

func TestRouteHandler(t *testing.T) {
	env := setupTestEnv(t, newRouteHandler().
		On("GET", "/ok", jsonResponse(200, `{"ok":true}`)))

	resp, err := http.Get(env.url("/ok"))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.url("/missing"))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for unknown route, got %d", resp.StatusCode)
	}
}
