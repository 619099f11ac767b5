package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/acto-dev/ajax/internal/api"
)

const (
	envToken   = "AJAX_TOKEN"
	envBearer  = "AJAX_BEARER"
	envProfile = "AJAX_PROFILE"
)

// Overrides are per-invocation values from command-line flags.
type Overrides struct {
	Token              string
	Bearer             string
	Profile            string
	UnauthorizedTarget string
	Forbidden          bool
}

// ClientConfig contains resolved request-layer settings.
type ClientConfig struct {
	Auth               api.AuthScheme
	Source             string
	Profile            string
	UnauthorizedTarget string
	Forbidden          bool
	Headers            map[string]string
}

// ResolveClientConfig merges flags, env, the selected profile and settings,
// in that order of precedence.
func ResolveClientConfig(ov Overrides, s Settings) (ClientConfig, error) {
	if ov.Token != "" && ov.Bearer != "" {
		return ClientConfig{}, errors.New("use either --token or --bearer, not both")
	}

	cfg := ClientConfig{
		Auth:               api.NoAuth{},
		Source:             "none",
		UnauthorizedTarget: s.Unauthorized.Target,
		Forbidden:          s.Unauthorized.Forbidden,
		Headers:            make(map[string]string, len(s.Headers)),
	}
	for k, v := range s.Headers {
		cfg.Headers[k] = v
	}

	profile, name, err := selectProfile(ov.Profile)
	if err != nil {
		return ClientConfig{}, err
	}
	if name != "" {
		cfg.Profile = name
		cfg.Source = "profile:" + name
		auth, err := profile.AuthScheme()
		if err != nil {
			return ClientConfig{}, fmt.Errorf("profile %s: %w", name, err)
		}
		cfg.Auth = auth
		if profile.UnauthorizedTarget != "" {
			cfg.UnauthorizedTarget = profile.UnauthorizedTarget
		}
		cfg.Forbidden = cfg.Forbidden || profile.Forbidden
		for k, v := range profile.Headers {
			cfg.Headers[k] = v
		}
	}

	switch {
	case ov.Bearer != "":
		cfg.Auth, cfg.Source = api.Bearer{Token: ov.Bearer}, "flag"
	case ov.Token != "":
		cfg.Auth, cfg.Source = api.StaticToken{Token: ov.Token}, "flag"
	default:
		bearer := strings.TrimSpace(os.Getenv(envBearer))
		token := strings.TrimSpace(os.Getenv(envToken))
		switch {
		case bearer != "" && token != "":
			return ClientConfig{}, fmt.Errorf("set either %s or %s, not both", envBearer, envToken)
		case bearer != "":
			cfg.Auth, cfg.Source = api.Bearer{Token: bearer}, "env"
		case token != "":
			cfg.Auth, cfg.Source = api.StaticToken{Token: token}, "env"
		}
	}

	if ov.UnauthorizedTarget != "" {
		cfg.UnauthorizedTarget = ov.UnauthorizedTarget
	}
	cfg.Forbidden = cfg.Forbidden || ov.Forbidden

	return cfg, nil
}

// selectProfile loads the profile named by flag or AJAX_PROFILE, failing if it
// is missing. Without an explicit name the current profile is used when present.
func selectProfile(flagName string) (Profile, string, error) {
	name := strings.TrimSpace(flagName)
	if name == "" {
		name = strings.TrimSpace(os.Getenv(envProfile))
	}
	if name != "" {
		p, err := LoadProfile(name)
		if err != nil {
			return Profile{}, "", fmt.Errorf("profile %s: %w", name, err)
		}
		return p, name, nil
	}

	current, err := CurrentProfile()
	if err != nil {
		slog.Debug("keyring unavailable, continuing without a profile", "error", err)
		return Profile{}, "", nil
	}
	p, err := LoadProfile(current)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			slog.Debug("current profile unreadable, continuing without it", "profile", current, "error", err)
		}
		return Profile{}, "", nil
	}
	return p, current, nil
}

// AuthScheme converts the stored scheme into a request-layer credential.
func (p Profile) AuthScheme() (api.AuthScheme, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Scheme {
	case SchemeStatic:
		return api.StaticToken{Token: p.Token}, nil
	case SchemeBearer:
		return api.Bearer{Token: p.Token}, nil
	default:
		return api.NoAuth{}, nil
	}
}

// ClientOptions returns the api options for this configuration. The navigator
// is only installed when an unauthorized target is configured.
func (c ClientConfig) ClientOptions(navigate api.Navigator) []api.Option {
	opts := []api.Option{api.WithAuth(c.Auth)}
	if c.UnauthorizedTarget != "" && navigate != nil {
		opts = append(opts, api.WithUnauthorized(c.UnauthorizedTarget, navigate), api.WithForbidden(c.Forbidden))
	}
	for k, v := range c.Headers {
		opts = append(opts, api.WithBaseHeader(k, v))
	}
	return opts
}
