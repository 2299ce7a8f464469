package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Cache.Backend != "file" {
		t.Errorf("default backend = %q, want file", cfg.Cache.Backend)
	}
	if cfg.Signature.AllowTruncation {
		t.Error("truncation should be off by default")
	}
	if cfg.Signature.VerifyEvery != DefaultVerifyEvery || DefaultVerifyEvery <= 0 {
		t.Errorf("default verify_every = %d, want %d", cfg.Signature.VerifyEvery, DefaultVerifyEvery)
	}
	if cfg.Log.Level != "WARN" {
		t.Errorf("default log level = %q, want WARN", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"sqlite", func(c *Config) { c.Cache.Backend = "SQLite" }, false},
		{"none", func(c *Config) { c.Cache.Backend = "none" }, false},
		{"bad backend", func(c *Config) { c.Cache.Backend = "redis" }, true},
		{"negative retries", func(c *Config) { c.HTTP.Retries = -1 }, true},
		{"negative timeout", func(c *Config) { c.HTTP.Timeout = Duration(-time.Second) }, true},
		{"negative rate", func(c *Config) { c.HTTP.RateLimit = -2 }, true},
		{"bad proxy", func(c *Config) { c.HTTP.Proxy = "not a url" }, true},
		{"good proxy", func(c *Config) { c.HTTP.Proxy = "http://127.0.0.1:3128" }, false},
		{"negative verify", func(c *Config) { c.Signature.VerifyEvery = -1 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "LOUD" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func checkLoaded(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Cache.Backend)
	}
	if cfg.Cache.Dir != "/tmp/dc" {
		t.Errorf("dir = %q, want /tmp/dc", cfg.Cache.Dir)
	}
	if time.Duration(cfg.HTTP.Timeout) != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", time.Duration(cfg.HTTP.Timeout))
	}
	if cfg.HTTP.RateLimit != 2.5 {
		t.Errorf("rate_limit = %v, want 2.5", cfg.HTTP.RateLimit)
	}
	if !cfg.Signature.AllowTruncation || cfg.Signature.VerifyEvery != 10 {
		t.Errorf("signature = %+v", cfg.Signature)
	}
	if !cfg.NParam.Skip {
		t.Error("nparam.skip should be true")
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("log level = %q, want DEBUG", cfg.Log.Level)
	}
	// Unset fields keep their defaults.
	if cfg.Log.Format != "text" {
		t.Errorf("log format = %q, want default text", cfg.Log.Format)
	}
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"config.yaml": `
cache:
  backend: sqlite
  dir: /tmp/dc
http:
  timeout: 15s
  rate_limit: 2.5
signature:
  allow_truncation: true
  verify_every: 10
nparam:
  skip: true
log:
  level: DEBUG
`,
		"config.toml": `
[cache]
backend = "sqlite"
dir = "/tmp/dc"

[http]
timeout = "15s"
rate_limit = 2.5

[signature]
allow_truncation = true
verify_every = 10

[nparam]
skip = true

[log]
level = "DEBUG"
`,
		"config.json": `{
  "cache": {"backend": "sqlite", "dir": "/tmp/dc"},
  "http": {"timeout": "15s", "rate_limit": 2.5},
  "signature": {"allow_truncation": true, "verify_every": 10},
  "nparam": {"skip": true},
  "log": {"level": "DEBUG"}
}`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			checkLoaded(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("backend = %q, want file", cfg.Cache.Backend)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"bad.yaml": "cache: [",
		"bad.ini":  "x=1",
		"bad.toml": "[cache]\nbackend = \"redis\"\n",
		"dur.json": `{"http":{"timeout":"soon"}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DESCRAMBLE_CACHE_DIR", "/env/cache")
	t.Setenv("DESCRAMBLE_CACHE_BACKEND", "memory")
	t.Setenv("DESCRAMBLE_USER_AGENT", "test-agent")
	t.Setenv("DESCRAMBLE_PROXY", "http://proxy:8080")
	t.Setenv("DESCRAMBLE_LOG_LEVEL", "ERROR")

	cfg, err := LoadFromBytes([]byte(`{"cache":{"backend":"sqlite"}}`), "json")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Error("LoadFromBytes should not apply the environment")
	}

	cfg.ApplyEnv()
	if cfg.Cache.Dir != "/env/cache" || cfg.Cache.Backend != "memory" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.HTTP.UserAgent != "test-agent" || cfg.HTTP.Proxy != "http://proxy:8080" {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.Log.Level != "ERROR" {
		t.Errorf("log level = %q, want ERROR", cfg.Log.Level)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if time.Duration(d) != 90*time.Second {
		t.Errorf("got %v", time.Duration(d))
	}
	b, _ := d.MarshalText()
	if string(b) != "1m30s" {
		t.Errorf("MarshalText() = %q", b)
	}
}

func TestVerifyEveryOptOut(t *testing.T) {
	tests := []struct {
		format string
		data   string
		want   int
	}{
		{"yaml", "signature:\n  verify_every: 0\n", 0},
		{"toml", "[signature]\nverify_every = 0\n", 0},
		{"json", `{"signature":{"verify_every":0}}`, 0},
		{"yaml", "signature:\n  allow_truncation: true\n", DefaultVerifyEvery},
	}
	for _, tt := range tests {
		cfg, err := LoadFromBytes([]byte(tt.data), tt.format)
		if err != nil {
			t.Fatalf("%s: %v", tt.format, err)
		}
		if cfg.Signature.VerifyEvery != tt.want {
			t.Errorf("%s %q: verify_every = %d, want %d", tt.format, tt.data, cfg.Signature.VerifyEvery, tt.want)
		}
	}
}
