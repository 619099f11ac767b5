package cache_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/cache"
)

func prepared(t *testing.T, scheme api.AuthScheme, rawURL string) *api.Descriptor {
	t.Helper()
	client, err := api.New(api.WithAuth(scheme))
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	d, err := client.Prepare(http.MethodGet, api.EncodingJSON, rawURL, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return d
}

func okResponse(body string) *api.Response {
	return &api.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

func backends(t *testing.T) map[string]cache.Backend {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := cache.NewRedisStore("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return map[string]cache.Backend{
		"file":  cache.NewFileStore(t.TempDir()),
		"redis": rs,
	}
}

func TestCache_PutAndGet(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := cache.New(backend, time.Minute)
			key := cache.Key(prepared(t, api.Bearer{Token: "t"}, "https://api.example.com/items"))

			if _, ok := c.Get(ctx, key); ok {
				t.Fatal("expected miss on empty cache")
			}
			if err := c.Put(ctx, key, okResponse(`{"id":1}`)); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, ok := c.Get(ctx, key)
			if !ok {
				t.Fatal("expected cache hit")
			}
			if got.StatusCode != http.StatusOK || string(got.Body) != `{"id":1}` {
				t.Errorf("got %d %s", got.StatusCode, got.Body)
			}
			if got.Header.Get("Content-Type") != "application/json" {
				t.Errorf("header not kept: %v", got.Header)
			}

			if err := c.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok := c.Get(ctx, key); ok {
				t.Error("expected miss after delete")
			}
		})
	}
}

func TestCache_SkipsErrorResponses(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := cache.New(backend, time.Minute)
			key := "k"

			if err := c.Put(ctx, key, &api.Response{StatusCode: http.StatusInternalServerError, Body: []byte("boom")}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if _, ok := c.Get(ctx, key); ok {
				t.Error("error responses must not be cached")
			}
		})
	}
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rs, err := cache.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer rs.Close()

	c := cache.New(rs, time.Second)
	if err := c.Put(ctx, "k", okResponse("{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected miss after redis expiry")
	}

	fc := cache.New(cache.NewFileStore(t.TempDir()), time.Millisecond)
	if err := fc.Put(ctx, "k", okResponse("{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := fc.Get(ctx, "k"); ok {
		t.Error("expected miss after file expiry")
	}
}

func TestKey_SeparatesCredentials(t *testing.T) {
	const u = "https://api.example.com/items"
	a := cache.Key(prepared(t, api.Bearer{Token: "alice"}, u))
	b := cache.Key(prepared(t, api.Bearer{Token: "bob"}, u))
	s := cache.Key(prepared(t, api.StaticToken{Token: "alice"}, u))
	none := cache.Key(prepared(t, api.NoAuth{}, u))

	seen := map[string]bool{}
	for _, k := range []string{a, b, s, none} {
		if seen[k] {
			t.Fatalf("keys should differ per credential: %v", []string{a, b, s, none})
		}
		seen[k] = true
	}
	if a != cache.Key(prepared(t, api.Bearer{Token: "alice"}, u)) {
		t.Error("key should be stable")
	}
}

func TestCache_DisabledByEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AJAX_NO_CACHE", "1")

	c := cache.New(cache.NewFileStore(dir), time.Minute)
	if err := c.Put(context.Background(), "k", okResponse("{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("expected cache miss when disabled via env")
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 0 {
		t.Fatal("expected no files written when cache disabled")
	}
}

func TestCache_Clear(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := cache.New(backend, time.Minute)
			for _, key := range []string{"a", "b"} {
				if err := c.Put(ctx, key, okResponse(`{}`)); err != nil {
					t.Fatalf("Put(%s): %v", key, err)
				}
			}

			removed, err := c.Clear(ctx)
			if err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if removed != 2 {
				t.Errorf("removed = %d, want 2", removed)
			}
			if _, ok := c.Get(ctx, "a"); ok {
				t.Error("expected miss after Clear")
			}
		})
	}
}

func TestFileStore_ClearKeepsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0o600); err != nil {
		t.Fatal(err)
	}

	removed, err := cache.NewFileStore(dir).Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}

	if n, err := cache.NewFileStore(filepath.Join(dir, "missing")).Clear(context.Background()); err != nil || n != 0 {
		t.Errorf("Clear on missing dir = %d, %v", n, err)
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := cache.NewRedisStore("http://not-redis"); err == nil {
		t.Error("expected error for non-redis URL")
	}
}
