// Package config loads descrambler settings from YAML, TOML or JSON files
// with environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ytget/descramble/internal/cache"
	"github.com/ytget/descramble/internal/logger"
)

// Config holds all descrambler configuration.
type Config struct {
	Cache     CacheConfig      `json:"cache" yaml:"cache" toml:"cache"`
	HTTP      HTTPConfig       `json:"http" yaml:"http" toml:"http"`
	Signature SignatureConfig  `json:"signature" yaml:"signature" toml:"signature"`
	NParam    NParamConfig     `json:"nparam" yaml:"nparam" toml:"nparam"`
	Log       logger.LogConfig `json:"log" yaml:"log" toml:"log"`
}

// CacheConfig selects the persistent cache.
type CacheConfig struct {
	// Backend is one of "file", "sqlite", "memory" or "none".
	Backend string `json:"backend" yaml:"backend" toml:"backend"`
	// Dir defaults to $XDG_CACHE_HOME/descramble.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// HTTPConfig tunes player script downloads.
type HTTPConfig struct {
	Timeout         Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Retries         int      `json:"retries,omitempty" yaml:"retries,omitempty" toml:"retries,omitempty"`
	UserAgent       string   `json:"user_agent,omitempty" yaml:"user_agent,omitempty" toml:"user_agent,omitempty"`
	RandomUserAgent bool     `json:"random_user_agent,omitempty" yaml:"random_user_agent,omitempty" toml:"random_user_agent,omitempty"`
	Proxy           string   `json:"proxy,omitempty" yaml:"proxy,omitempty" toml:"proxy,omitempty"`
	CookiesFile     string   `json:"cookies_file,omitempty" yaml:"cookies_file,omitempty" toml:"cookies_file,omitempty"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" toml:"rate_limit,omitempty"`
	Burst     int     `json:"burst,omitempty" yaml:"burst,omitempty" toml:"burst,omitempty"`
}

// SignatureConfig tunes the signature fast path.
type SignatureConfig struct {
	AllowTruncation bool `json:"allow_truncation" yaml:"allow_truncation" toml:"allow_truncation"`
	// VerifyEvery re-checks every Nth fast-path result with the interpreter.
	// Zero turns verification off.
	VerifyEvery int  `json:"verify_every" yaml:"verify_every" toml:"verify_every"`
	PrintCode   bool `json:"print_code" yaml:"print_code" toml:"print_code"`
}

// NParamConfig controls throttling-parameter handling.
type NParamConfig struct {
	// Skip leaves n values untouched instead of descrambling them. Formats
	// then stay usable but are delivered throttled.
	Skip bool `json:"skip" yaml:"skip" toml:"skip"`
}

// Duration is a time.Duration written as "30s" in every file format.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultVerifyEvery is the default fast-path verification cadence.
const DefaultVerifyEvery = 100

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Cache:     CacheConfig{Backend: cache.BackendFile},
		Signature: SignatureConfig{VerifyEvery: DefaultVerifyEvery},
		Log:       *logger.DefaultLogConfig(),
	}
}

// Load reads the file at path over the defaults, choosing the decoder by
// extension (.yaml, .yml, .toml, .json), then applies environment overrides
// and validates. A missing file yields the defaults with overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := decode(data, filepath.Ext(path), cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromBytes decodes data in the given format ("yaml", "toml" or "json")
// over the defaults and validates it. Environment overrides are not applied.
func LoadFromBytes(data []byte, format string) (*Config, error) {
	cfg := Default()
	if err := decode(data, format, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, format string, cfg *Config) error {
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		return yaml.Unmarshal(data, cfg)
	case "toml":
		return toml.Unmarshal(data, cfg)
	case "json":
		return json.Unmarshal(data, cfg)
	}
	return fmt.Errorf("unsupported config format %q", format)
}

// ApplyEnv overlays DESCRAMBLE_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DESCRAMBLE_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("DESCRAMBLE_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("DESCRAMBLE_USER_AGENT"); v != "" {
		c.HTTP.UserAgent = v
	}
	if v := os.Getenv("DESCRAMBLE_PROXY"); v != "" {
		c.HTTP.Proxy = v
	}
	logger.EnvironmentConfig(&c.Log)
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendFile, cache.BackendSQLite, cache.BackendMemory, cache.BackendNone:
	default:
		return fmt.Errorf("unsupported cache backend %q (valid: file, sqlite, memory, none)", c.Cache.Backend)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must be non-negative")
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("http.retries must be non-negative")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.Burst < 0 {
		return fmt.Errorf("http.rate_limit and http.burst must be non-negative")
	}
	if c.HTTP.Proxy != "" {
		if u, err := url.Parse(c.HTTP.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy url %q", c.HTTP.Proxy)
		}
	}
	if c.Signature.VerifyEvery < 0 {
		return fmt.Errorf("signature.verify_every must be non-negative")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
