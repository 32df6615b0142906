// Package config loads the authguard configuration. Values are layered as
// defaults, then the YAML config file, then the BASE_URL environment
// variable, then command line flags that were explicitly set.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/bluescreen10/authguard"
)

// BaseURLEnv names the environment variable holding the identity service
// base address.
const BaseURLEnv = "BASE_URL"

// DefaultBaseURL is the identity service address used when none is
// configured.
const DefaultBaseURL = "http://localhost:3020"

// Config is the full authguard configuration.
type Config struct {
	Listen   string         `koanf:"listen"`
	Identity IdentityConfig `koanf:"identity"`
	Guard    GuardConfig    `koanf:"guard"`
	Session  SessionConfig  `koanf:"session"`
	Store    StoreConfig    `koanf:"store"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Log      LogConfig      `koanf:"log"`
	Stub     StubConfig     `koanf:"stub"`
}

// IdentityConfig locates the identity service and tunes refresh calls.
type IdentityConfig struct {
	BaseURL      string        `koanf:"base_url"`
	Timeout      time.Duration `koanf:"timeout"`
	Retries      uint64        `koanf:"retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

type GuardConfig struct {
	EntryPath       string   `koanf:"entry_path"`
	HomePath        string   `koanf:"home_path"`
	PublicPrefixes  []string `koanf:"public_prefixes"`
	TransportPolicy string   `koanf:"transport_policy"`
}

type SessionConfig struct {
	CookieName  string        `koanf:"cookie_name"`
	Lifetime    time.Duration `koanf:"lifetime"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	Secure      bool          `koanf:"secure"`
	// Codec is "gob" or "json".
	Codec string `koanf:"codec"`
}

// StoreConfig selects the session backend. Driver is one of memory, redis,
// sqlite, mysql or postgres; DSN is passed to the driver as is.
type StoreConfig struct {
	Driver          string        `koanf:"driver"`
	DSN             string        `koanf:"dsn"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// UpstreamConfig is what guarded requests are served from: a reverse proxy
// to URL, or the files under StaticDir.
type UpstreamConfig struct {
	URL       string `koanf:"url"`
	StaticDir string `koanf:"static_dir"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StubConfig configures the development identity service.
type StubConfig struct {
	Listen         string        `koanf:"listen"`
	Secret         string        `koanf:"secret"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Listen: ":8080",
		Identity: IdentityConfig{
			BaseURL:      DefaultBaseURL,
			RetryBackoff: 100 * time.Millisecond,
		},
		Guard: GuardConfig{
			EntryPath:       "/",
			HomePath:        "/inicio",
			TransportPolicy: authguard.FailClosed.String(),
		},
		Session: SessionConfig{
			CookieName: "user",
			Lifetime:   24 * time.Hour,
			Codec:      "gob",
		},
		Store: StoreConfig{
			Driver:          "memory",
			CleanupInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Stub: StubConfig{
			Listen:         ":3020",
			Secret:         "authguard-dev-secret",
			TokenTTL:       15 * time.Minute,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":           "listen",
	"base-url":         "identity.base_url",
	"refresh-timeout":  "identity.timeout",
	"refresh-retries":  "identity.retries",
	"transport-policy": "guard.transport_policy",
	"public-prefix":    "guard.public_prefixes",
	"store":            "store.driver",
	"store-dsn":        "store.dsn",
	"upstream":         "upstream.url",
	"static-dir":       "upstream.static_dir",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"stub-listen":      "stub.listen",
	"stub-secret":      "stub.secret",
}

// BindServeFlags declares the flags understood by the serve command.
func BindServeFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("listen", def.Listen, "listen address")
	fs.String("base-url", def.Identity.BaseURL, "identity service base URL (env "+BaseURLEnv+")")
	fs.Duration("refresh-timeout", def.Identity.Timeout, "refresh call timeout (0 = none)")
	fs.Uint64("refresh-retries", def.Identity.Retries, "retries on refresh transport failures")
	fs.String("transport-policy", def.Guard.TransportPolicy, "behaviour when the identity service is unreachable (fail_closed or fail_open)")
	fs.StringSlice("public-prefix", nil, "path prefix served without the guard (repeatable)")
	fs.String("store", def.Store.Driver, "session store driver (memory, redis, sqlite, mysql, postgres)")
	fs.String("store-dsn", def.Store.DSN, "session store DSN")
	fs.String("upstream", def.Upstream.URL, "URL of the front-end to proxy guarded requests to")
	fs.String("static-dir", def.Upstream.StaticDir, "directory to serve guarded requests from")
	bindLogFlags(fs)
}

// BindStubFlags declares the flags understood by the identity-stub command.
func BindStubFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("stub-listen", def.Stub.Listen, "identity stub listen address")
	fs.String("stub-secret", def.Stub.Secret, "HS256 signing secret")
	bindLogFlags(fs)
}

func bindLogFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("log-format", def.Log.Format, "log format (json or text)")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
}

// Load reads the configuration. path may be empty; fs may be nil. Only
// flags changed on the command line override earlier layers.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("config_file").With("path", path).Wrap(err)
		}
	}

	if v := os.Getenv(BaseURLEnv); v != "" {
		if err := k.Set("identity.base_url", v); err != nil {
			return nil, oops.Code("config_env").With("env", BaseURLEnv).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("config_flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("config_decode").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	errb := oops.Code("config_invalid")

	u, err := url.Parse(c.Identity.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errb.With("base_url", c.Identity.BaseURL).Errorf("identity.base_url must be an absolute http(s) URL")
	}

	if c.Identity.Retries > 0 && c.Identity.RetryBackoff <= 0 {
		return errb.With("retries", c.Identity.Retries, "retry_backoff", c.Identity.RetryBackoff).
			Errorf("identity.retry_backoff must be positive when identity.retries is set")
	}

	if _, err := authguard.ParseTransportPolicy(c.Guard.TransportPolicy); err != nil {
		return errb.With("transport_policy", c.Guard.TransportPolicy).Wrap(err)
	}

	if !strings.HasPrefix(c.Guard.EntryPath, "/") || !strings.HasPrefix(c.Guard.HomePath, "/") {
		return errb.With("entry_path", c.Guard.EntryPath, "home_path", c.Guard.HomePath).
			Errorf("guard paths must start with '/'")
	}

	switch c.Session.Codec {
	case "gob", "json":
	default:
		return errb.With("codec", c.Session.Codec).Errorf("session.codec must be 'gob' or 'json'")
	}

	switch c.Store.Driver {
	case "memory":
	case "redis", "sqlite", "mysql", "postgres":
		if c.Store.DSN == "" {
			return errb.With("driver", c.Store.Driver).Errorf("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return errb.With("driver", c.Store.Driver).Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Upstream.URL != "" {
		if u, err := url.Parse(c.Upstream.URL); err != nil || u.Host == "" {
			return errb.With("upstream", c.Upstream.URL).Errorf("upstream.url must be an absolute URL")
		}
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return errb.With("format", c.Log.Format).Errorf("log.format must be 'json' or 'text'")
	}

	return nil
}

// Codec returns the session codec named by Session.Codec.
func (c *Config) Codec() authguard.Codec {
	if c.Session.Codec == "json" {
		return authguard.JSONCodec{}
	}
	return authguard.GobCodec{}
}
