package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluescreen10/authguard"
	"github.com/bluescreen10/authguard/internal/errutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func serveFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	BindServeFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(BaseURLEnv, "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "http://localhost:3020", cfg.Identity.BaseURL)
	assert.Equal(t, "/inicio", cfg.Guard.HomePath)
	assert.Equal(t, "user", cfg.Session.CookieName)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	path := writeConfig(t, `
identity:
  base_url: https://identity.example.com
  timeout: 3s
  retries: 2
guard:
  public_prefixes: ["/_nuxt/", "/favicon.ico"]
  transport_policy: fail_open
session:
  idle_timeout: 30m
  codec: json
store:
  driver: redis
  dsn: redis://localhost:6379/0
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://identity.example.com", cfg.Identity.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Identity.Timeout)
	assert.Equal(t, uint64(2), cfg.Identity.Retries)
	assert.Equal(t, []string{"/_nuxt/", "/favicon.ico"}, cfg.Guard.PublicPrefixes)
	assert.Equal(t, "fail_open", cfg.Guard.TransportPolicy)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.IsType(t, authguard.JSONCodec{}, cfg.Codec())

	// untouched keys keep their defaults
	assert.Equal(t, "/", cfg.Guard.EntryPath)
	assert.Equal(t, 24*time.Hour, cfg.Session.Lifetime)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv(BaseURLEnv, "http://identity.internal:3020")
	path := writeConfig(t, "identity:\n  base_url: https://identity.example.com\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://identity.internal:3020", cfg.Identity.BaseURL)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv(BaseURLEnv, "http://identity.internal:3020")
	fs := serveFlags(t, "--base-url", "http://127.0.0.1:4000", "--public-prefix", "/assets/", "--refresh-timeout", "2s")

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:4000", cfg.Identity.BaseURL)
	assert.Equal(t, []string{"/assets/"}, cfg.Guard.PublicPrefixes)
	assert.Equal(t, 2*time.Second, cfg.Identity.Timeout)
}

func TestLoadUnsetFlagsKeepFileValues(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	path := writeConfig(t, "listen: \":9090\"\nlog:\n  format: text\n")
	fs := serveFlags(t, "--log-level", "debug")

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "config_file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"relative base url", func(c *Config) { c.Identity.BaseURL = "localhost:3020" }},
		{"ftp base url", func(c *Config) { c.Identity.BaseURL = "ftp://localhost" }},
		{"retries without backoff", func(c *Config) { c.Identity.Retries = 2; c.Identity.RetryBackoff = 0 }},
		{"retries with negative backoff", func(c *Config) { c.Identity.Retries = 1; c.Identity.RetryBackoff = -time.Second }},
		{"unknown policy", func(c *Config) { c.Guard.TransportPolicy = "retry_forever" }},
		{"relative home path", func(c *Config) { c.Guard.HomePath = "inicio" }},
		{"unknown codec", func(c *Config) { c.Session.Codec = "xml" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }},
		{"driver without dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"relative upstream", func(c *Config) { c.Upstream.URL = "frontend:3000" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "config_invalid")
		})
	}
}

func TestValidateBackoffWithoutRetries(t *testing.T) {
	cfg := Default()
	cfg.Identity.RetryBackoff = 0
	require.NoError(t, cfg.Validate())
}

func TestValidateDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.IsType(t, authguard.GobCodec{}, cfg.Codec())
}
