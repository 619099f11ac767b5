package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envConfigFile = "AJAX_CONFIG"
	envPrefix     = "AJAX"

	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = 5 * time.Minute
)

// Settings holds non-secret defaults read from the config file and AJAX_* env.
type Settings struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	ParseJSON    bool          `mapstructure:"parse_json"`
	AllowPrivate bool          `mapstructure:"allow_private"`
	Retries      int           `mapstructure:"retries"`
	Unauthorized struct {
		Target    string `mapstructure:"target"`
		Forbidden bool   `mapstructure:"forbidden"`
	} `mapstructure:"unauthorized"`
	// Keys are lowercased by the loader; header names are case-insensitive.
	Headers map[string]string `mapstructure:"headers"`
	Cache   struct {
		Dir      string        `mapstructure:"dir"`
		RedisURL string        `mapstructure:"redis_url"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`
}

// SettingsPath returns $AJAX_CONFIG or <user config dir>/ajax/config.yaml.
func SettingsPath() string {
	if path := firstNonBlankEnv(envConfigFile); path != "" {
		return path
	}
	return filepath.Join(stateDir(""), "config.yaml")
}

// CacheDir returns the configured cache directory or the default under the state dir.
func (s Settings) CacheDir() string {
	if s.Cache.Dir != "" {
		return s.Cache.Dir
	}
	return filepath.Join(stateDir(""), "cache")
}

// LoadSettings reads the settings file at path (SettingsPath when empty).
// A missing file is not an error; defaults and env still apply.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		path = SettingsPath()
	}

	v := viper.New()
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("user_agent", "")
	v.SetDefault("parse_json", true)
	v.SetDefault("allow_private", false)
	v.SetDefault("retries", 0)
	v.SetDefault("unauthorized.target", "")
	v.SetDefault("unauthorized.forbidden", false)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", DefaultCacheTTL)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read settings %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to stat settings %s: %w", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings %s: %w", path, err)
	}
	if s.Timeout < 0 {
		return Settings{}, fmt.Errorf("timeout must not be negative, got %s", s.Timeout)
	}
	if s.Retries < 0 {
		return Settings{}, fmt.Errorf("retries must not be negative, got %d", s.Retries)
	}
	return s, nil
}
