// Package token obtains and inspects bearer tokens for use with api.Bearer.
// Nothing here validates signatures; the request layer treats tokens as opaque.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// FetchConfig describes an OAuth2 client credentials grant.
type FetchConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Scopes is a space-separated scope list.
	Scopes     string
	HTTPClient *http.Client
}

// Fetch runs the client credentials flow and returns the issued token.
func Fetch(ctx context.Context, cfg FetchConfig) (*oauth2.Token, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, errors.New("token URL is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("client ID is required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       strings.Fields(cfg.Scopes),
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to fetch token: %w", err)
	}
	return tok, nil
}

// Info is the readable part of a JWT.
type Info struct {
	Subject   string         `json:"subject,omitempty"`
	Issuer    string         `json:"issuer,omitempty"`
	Audience  []string       `json:"audience,omitempty"`
	Scopes    []string       `json:"scopes,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Expired   bool           `json:"expired"`
	Claims    map[string]any `json:"claims"`
}

// ExpiresWithin reports whether the token expires before now+d. Tokens without
// an exp claim never expire.
func (i *Info) ExpiresWithin(now time.Time, d time.Duration) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now.Add(d))
}

// ErrNotJWT is returned by Inspect for tokens that are not three-part JWTs.
var ErrNotJWT = errors.New("token is not a JWT")

// Inspect decodes a JWT without verifying its signature.
func Inspect(raw string, now time.Time) (*Info, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if strings.Count(raw, ".") != 2 {
		return nil, ErrNotJWT
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	info := &Info{Claims: claims, Scopes: extractScopes(claims)}
	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if aud, err := claims.GetAudience(); err == nil {
		info.Audience = aud
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		info.IssuedAt = &t
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
		info.Expired = !now.Before(t)
	}
	return info, nil
}

// extractScopes reads "scope" or "scp" as a space-separated string or an array.
func extractScopes(claims jwt.MapClaims) []string {
	for _, key := range []string{"scope", "scp"} {
		switch v := claims[key].(type) {
		case string:
			return strings.Fields(v)
		case []any:
			scopes := make([]string, 0, len(v))
			for _, s := range v {
				if str, ok := s.(string); ok {
					scopes = append(scopes, str)
				}
			}
			return scopes
		}
	}
	return nil
}
