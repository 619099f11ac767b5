// Package cache stores successful GET responses keyed by the prepared request.
//
// Entries live in a directory of JSON files or in Redis. Disable with AJAX_NO_CACHE=1.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acto-dev/ajax/internal/api"
)

const DefaultTTL = 5 * time.Minute

var timeNow = time.Now

// Backend is a byte store with per-entry expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) (int, error)
}

type entry struct {
	CachedAt   time.Time   `json:"cached_at"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
}

// Cache maps prepared requests to stored responses.
type Cache struct {
	backend Backend
	ttl     time.Duration
}

// New wraps backend with the given TTL; a non-positive ttl uses DefaultTTL.
func New(backend Backend, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{backend: backend, ttl: ttl}
}

// Key identifies a prepared descriptor. Credentials are part of the key, so
// two profiles never share entries; the key itself is a digest.
func Key(d *api.Descriptor) string {
	h := sha256.New()
	for _, part := range []string{d.Method, d.URL, d.Header.Get("Authorization"), d.Accept()} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the stored response for key. Backend and decode failures are misses.
func (c *Cache) Get(ctx context.Context, key string) (*api.Response, bool) {
	if disabled() {
		return nil, false
	}
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if timeNow().Sub(e.CachedAt) > c.ttl {
		return nil, false
	}
	return &api.Response{StatusCode: e.StatusCode, Header: e.Header, Body: e.Body}, true
}

// Put stores resp under key. Only 2xx responses are kept.
func (c *Cache) Put(ctx context.Context, key string, resp *api.Response) error {
	if disabled() || resp == nil || !resp.OK() {
		return nil
	}
	data, err := json.Marshal(entry{
		CachedAt:   timeNow(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return c.backend.Set(ctx, key, data, c.ttl)
}

// Delete drops key from the backend.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

// Clear drops every stored response and reports how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	return c.backend.Clear(ctx)
}

func disabled() bool {
	return os.Getenv("AJAX_NO_CACHE") != ""
}

// FileStore keeps one JSON file per key in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory holding the entries.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, filePrefix+sanitizeKey(key)+".json")
}

const filePrefix = "resp_"

type fileEntry struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Data      json.RawMessage `json:"data"`
}

// Get implements Backend.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var fe fileEntry
	if err := json.Unmarshal(raw, &fe); err != nil {
		return nil, false, nil
	}
	if timeNow().After(fe.ExpiresAt) {
		_ = os.Remove(s.path(key))
		return nil, false, nil
	}
	return fe.Data, true, nil
}

// Set implements Backend.
func (s *FileStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	raw, err := json.Marshal(fileEntry{ExpiresAt: timeNow().Add(ttl), Data: data})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	// Atomic-ish write: write temp then rename.
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Delete implements Backend.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear implements Backend. Files that are not cache entries are left alone.
func (s *FileStore) Clear(_ context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isEntryFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func isEntryFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && filepath.Ext(name) == ".json"
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "cache"
	}
	key = strings.ReplaceAll(key, "/", "-")
	key = strings.ReplaceAll(key, "\\", "-")
	return key
}
