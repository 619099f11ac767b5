package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a settled HTTP response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Data holds the parsed body when a ResponseTransform such as ParseJSON
	// has filled it in.
	Data any
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("unexpected response format (JSON decode failed): %w", err)
	}
	return nil
}

// JSON returns the parsed body, using Data when a transform already set it.
func (r *Response) JSON() (any, error) {
	if r.Data != nil {
		return r.Data, nil
	}
	if len(r.Body) == 0 {
		return nil, nil
	}
	var v any
	if err := r.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// RequestID returns the server-assigned request id, if any.
func (r *Response) RequestID() string {
	return requestIDFromHeader(r.Header)
}

// RateLimit returns the rate limit headers of the response, or nil.
func (r *Response) RateLimit() *RateLimitInfo {
	return parseRateLimitInfo(r.Header, timeNow())
}

// Decode is a helper for call sites that want typed data straight from a
// request:
//
//	item, err := api.Decode[Item](client.GetJSON(ctx, url))
func Decode[T any](resp *Response, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if resp == nil {
		return out, nil
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func requestIDFromHeader(header http.Header) string {
	if header == nil {
		return ""
	}
	return header.Get("X-Request-Id")
}
