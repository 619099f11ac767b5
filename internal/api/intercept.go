package api

import (
	"encoding/json"
	"net/http"
)

// Navigator moves the user to target. referrer is the caller's current
// path when the request was made with WithReferrer, empty otherwise.
type Navigator func(target, referrer string)

// UnauthorizedPolicy is run when a request is rejected with 401, and with
// 403 when Forbidden is set. It only signals; the rejection is still
// returned to the caller.
type UnauthorizedPolicy struct {
	Target    string
	Navigate  Navigator
	Forbidden bool
}

func (p *UnauthorizedPolicy) matches(status int) bool {
	if p == nil || p.Navigate == nil {
		return false
	}
	switch status {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		return p.Forbidden
	default:
		return false
	}
}

// ResponseTransform post-processes every settled response before it is
// classified. It must be idempotent; returning nil keeps the input.
type ResponseTransform func(*Response) *Response

// ParseJSON fills Response.Data with the decoded body when the body is
// valid JSON. Responses that already carry Data are left alone.
func ParseJSON(resp *Response) *Response {
	if resp.Data != nil || len(resp.Body) == 0 {
		return resp
	}
	var v any
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return resp
	}
	resp.Data = v
	return resp
}

// ChainTransforms runs transforms in order.
func ChainTransforms(transforms ...ResponseTransform) ResponseTransform {
	return func(resp *Response) *Response {
		for _, t := range transforms {
			if t == nil {
				continue
			}
			if next := t(resp); next != nil {
				resp = next
			}
		}
		return resp
	}
}

// intercept turns a settled response into the caller's result. The policy
// is invoked at most once, after classification and before returning.
func intercept(d *Descriptor, resp *Response, policy *UnauthorizedPolicy) (*Response, error) {
	if resp.OK() {
		return resp, nil
	}

	httpErr := &HTTPError{
		Method:     d.Method,
		URL:        d.DisplayURL(),
		StatusCode: resp.StatusCode,
		Code:       ErrorCodeFromStatus(resp.StatusCode),
		Message:    errorMessage(resp.StatusCode, resp.Body),
		Body:       resp.Body,
		Data:       resp.Data,
		Header:     resp.Header,
		RequestID:  resp.RequestID(),
	}

	if policy.matches(resp.StatusCode) {
		httpErr.Redirected = true
		policy.Navigate(policy.Target, d.referrer)
	}
	return resp, httpErr
}
