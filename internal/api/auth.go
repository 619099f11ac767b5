package api

import (
	"strings"
)

// AuthScheme decides how a credential is attached to a request.
// A client carries exactly one scheme, chosen at construction.
type AuthScheme interface {
	apply(d *Descriptor)
	// String describes the scheme with the credential masked.
	String() string
}

// NoAuth sends requests without credentials.
type NoAuth struct{}

// StaticToken appends the token to the URL as a trailing path segment.
// The URL is concatenated as-is; query strings and trailing slashes
// are not special-cased.
type StaticToken struct {
	Token string
}

// Bearer sends the token in an "Authorization: Bearer" header.
type Bearer struct {
	Token string
}

func (NoAuth) apply(*Descriptor) {}

func (NoAuth) String() string { return "none" }

func (s StaticToken) apply(d *Descriptor) {
	if d.origin == "" {
		d.origin = d.URL
	}
	d.URL = d.URL + "/" + s.Token
}

func (s StaticToken) String() string { return "static-token " + maskToken(s.Token) }

func (b Bearer) apply(d *Descriptor) {
	d.Header.Set("Authorization", "Bearer "+b.Token)
}

func (b Bearer) String() string { return "bearer " + maskToken(b.Token) }

// Inject returns a copy of d decorated with the scheme's credential.
// It never fails and never mutates d, so injecting the same descriptor
// twice yields identical results. A nil scheme behaves like NoAuth.
func Inject(d *Descriptor, scheme AuthScheme) *Descriptor {
	out := d.Clone()
	if scheme != nil {
		scheme.apply(out)
	}
	return out
}

// maskToken masks a token for display, showing only first and last 4 characters
func maskToken(token string) string {
	if len(token) < 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
