// Package config resolves runtime settings from defaults, an optional
// config file, environment variables (MOVIETRACKER_*) and bound flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/feenthu/movie-tracker-web-sub001/internal/cache"
	"github.com/feenthu/movie-tracker-web-sub001/internal/transport"
)

// EnvPrefix prefixes every environment override, e.g. MOVIETRACKER_ENDPOINT.
const EnvPrefix = "MOVIETRACKER"

const (
	KeyConfig       = "config"
	KeyEndpoint     = "endpoint"
	KeySessionFile  = "session_file"
	KeyLogLevel     = "log_level"
	KeyLogJSON      = "log_json"
	KeyOTelEndpoint = "otel_endpoint"
	KeyOTelService  = "otel_service"
	KeyTimeout      = "timeout"
	KeyPolicies     = "policies"
)

// Config holds resolved settings.
type Config struct {
	Endpoint     string
	SessionFile  string
	LogLevel     string
	LogJSON      bool
	OTelEndpoint string
	OTelService  string
	// Timeout bounds each HTTP exchange. Zero leaves requests unbounded.
	Timeout  time.Duration
	Policies cache.Policies
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyEndpoint, transport.DefaultEndpoint)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogJSON, false)
	v.SetDefault(KeyOTelService, "movietracker")
	v.SetDefault(KeyTimeout, time.Duration(0))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file named by the "config" key, if any, and
// returns the validated settings.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Endpoint:     strings.TrimSpace(v.GetString(KeyEndpoint)),
		SessionFile:  strings.TrimSpace(v.GetString(KeySessionFile)),
		LogLevel:     v.GetString(KeyLogLevel),
		LogJSON:      v.GetBool(KeyLogJSON),
		OTelEndpoint: v.GetString(KeyOTelEndpoint),
		OTelService:  v.GetString(KeyOTelService),
		Timeout:      v.GetDuration(KeyTimeout),
		Policies:     cache.Policies{},
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = transport.DefaultEndpoint
	}
	if cfg.SessionFile == "" {
		path, err := DefaultSessionFile()
		if err != nil {
			return Config{}, err
		}
		cfg.SessionFile = path
	}
	for field, name := range v.GetStringMapString(KeyPolicies) {
		p, err := cache.ParsePolicy(name)
		if err != nil {
			return Config{}, fmt.Errorf("policy for %q: %w", field, err)
		}
		cfg.Policies[field] = p
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that settings are usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q: scheme must be http or https", c.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q: missing host", c.Endpoint)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// DefaultSessionFile returns the per-user session file location.
func DefaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "movietracker", "session.toml"), nil
}
