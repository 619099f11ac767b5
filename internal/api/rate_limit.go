package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

var timeNow = time.Now

// Reset values above this are Unix timestamps; smaller ones are seconds from now.
const unixTimestampThreshold = 1_000_000_000

// RateLimitInfo holds parsed rate limit header values.
type RateLimitInfo struct {
	Limit     *int
	Remaining *int
	ResetAt   *time.Time
	ResetRaw  string
}

// Meta renders the parsed values for JSON output. It returns nil when
// nothing was parsed.
func (r *RateLimitInfo) Meta() map[string]any {
	if r == nil {
		return nil
	}
	meta := map[string]any{}
	if r.Limit != nil {
		meta["limit"] = *r.Limit
	}
	if r.Remaining != nil {
		meta["remaining"] = *r.Remaining
	}
	if r.ResetAt != nil {
		meta["reset_at"] = r.ResetAt.UTC().Format(time.RFC3339)
	} else if r.ResetRaw != "" {
		meta["reset"] = r.ResetRaw
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func parseRateLimitInfo(h http.Header, now time.Time) *RateLimitInfo {
	if h == nil {
		return nil
	}
	info := &RateLimitInfo{
		Limit:     headerInt(h, "X-RateLimit-Limit", "RateLimit-Limit"),
		Remaining: headerInt(h, "X-RateLimit-Remaining", "RateLimit-Remaining"),
		ResetRaw:  firstHeader(h, "X-RateLimit-Reset", "RateLimit-Reset"),
	}
	if info.ResetRaw != "" {
		if t, ok := parseRateLimitReset(info.ResetRaw, now); ok {
			info.ResetAt = &t
		}
	}
	if info.Limit == nil && info.Remaining == nil && info.ResetRaw == "" {
		return nil
	}
	return info
}

// headerInt returns the first of keys that is present and parses as an int.
func headerInt(h http.Header, keys ...string) *int {
	raw := firstHeader(h, keys...)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func firstHeader(h http.Header, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(h.Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseRateLimitReset(value string, now time.Time) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		switch {
		case secs > unixTimestampThreshold:
			return time.Unix(secs, 0).UTC(), true
		case secs >= 0:
			return now.Add(time.Duration(secs) * time.Second).UTC(), true
		}
	}
	if t, err := http.ParseTime(trimmed); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// RetryAfter parses the Retry-After header (seconds or HTTP date).
// Callers that compose their own retries use it to pace them.
func (r *Response) RetryAfter() (time.Duration, bool) {
	return retryAfterDuration(r.Header, timeNow())
}

func retryAfterDuration(h http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(h.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
