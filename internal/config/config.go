// Package config loads crawlwatch settings from a TOML file, a .env file and
// the environment, and builds the client, push source and engine settings
// from them.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/dm/crawlwatch/internal/model"
)

//go:embed config.example.toml
var exampleConf []byte

// Push transports.
const (
	PushWebSocket = "websocket"
	PushRedis     = "redis"
	PushNone      = "none"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Poll    PollConfig    `toml:"poll"`
	Push    PushConfig    `toml:"push"`
	Command CommandConfig `toml:"command"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig describes the crawl server. Password, SessionCookie and
// CSRFToken are normally supplied through the environment.
type ServerConfig struct {
	BaseURL              string   `toml:"base_url"`
	Username             string   `toml:"username"`
	Password             string   `toml:"password"`
	SessionCookie        string   `toml:"session_cookie"`
	CSRFToken            string   `toml:"csrf_token"`
	Insecure             bool     `toml:"insecure"`
	RequestTimeout       Duration `toml:"request_timeout"`
	MaxRequestsPerSecond float64  `toml:"max_requests_per_second"`
}

// PollConfig configures the status poller.
type PollConfig struct {
	Interval    Duration `toml:"interval"`
	Timeout     Duration `toml:"timeout"`
	Concurrency int      `toml:"concurrency"`
}

// PushConfig configures the push stream and its source.
type PushConfig struct {
	Transport    string   `toml:"transport"`
	URL          string   `toml:"url"`
	RedisURL     string   `toml:"redis_url"`
	RedisChannel string   `toml:"redis_channel"`
	BackoffBase  Duration `toml:"backoff_base"`
	BackoffCap   Duration `toml:"backoff_cap"`
	Jitter       bool     `toml:"jitter"`
	DialTimeout  Duration `toml:"dial_timeout"`
	Keepalive    Duration `toml:"keepalive"`
	StableAfter  Duration `toml:"stable_after"`
}

// CommandConfig configures the command dispatcher.
type CommandConfig struct {
	Timeout Duration `toml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Duration is a time.Duration written as a Go duration string in TOML.
// An empty string decodes to zero, which selects the component default.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return []byte(""), nil
	}
	return []byte(d.String()), nil
}

// Default returns a Config with defaults loaded from the embedded example config.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// Load reads the TOML file at path on top of the defaults. Keys missing
// from the file keep their default values. A missing file is not an error
// when optional is true.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// CreateConfigFile writes the embedded example config to path. It refuses
// to overwrite an existing file.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Variables already set win over the file, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Environment variables read by ApplyEnv.
const (
	EnvBaseURL       = "CRAWLWATCH_URL"
	EnvUsername      = "CRAWLWATCH_USERNAME"
	EnvPassword      = "CRAWLWATCH_PASSWORD"
	EnvSessionCookie = "CRAWLWATCH_SESSION_COOKIE"
	EnvCSRFToken     = "CRAWLWATCH_CSRF_TOKEN"
	EnvRedisURL      = "CRAWLWATCH_REDIS_URL"
)

// ApplyEnv overrides file values with non-empty environment variables.
// lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Server.BaseURL, EnvBaseURL)
	set(&c.Server.Username, EnvUsername)
	set(&c.Server.Password, EnvPassword)
	set(&c.Server.SessionCookie, EnvSessionCookie)
	set(&c.Server.CSRFToken, EnvCSRFToken)
	set(&c.Push.RedisURL, EnvRedisURL)
}

// Validate checks the configuration. Errors wrap model.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidConfig}, args...)...))
	}

	if c.Server.BaseURL == "" {
		add("server.base_url is required")
	} else if _, _, _, err := ParseServerURI(c.Server.BaseURL); err != nil {
		add("server.base_url: %v", err)
	}
	if c.Server.MaxRequestsPerSecond < 0 {
		add("server.max_requests_per_second must not be negative")
	}
	for name, d := range map[string]Duration{
		"server.request_timeout": c.Server.RequestTimeout,
		"poll.interval":          c.Poll.Interval,
		"poll.timeout":           c.Poll.Timeout,
		"push.backoff_base":      c.Push.BackoffBase,
		"push.backoff_cap":       c.Push.BackoffCap,
		"push.dial_timeout":      c.Push.DialTimeout,
		"push.keepalive":         c.Push.Keepalive,
		"push.stable_after":      c.Push.StableAfter,
		"command.timeout":        c.Command.Timeout,
	} {
		if d.Duration < 0 {
			add("%s must not be negative", name)
		}
	}
	if c.Poll.Concurrency < 0 {
		add("poll.concurrency must not be negative")
	}
	if c.Push.BackoffCap.Duration > 0 && c.Push.BackoffCap.Duration < c.Push.BackoffBase.Duration {
		add("push.backoff_cap must be at least push.backoff_base")
	}

	switch c.Push.Transport {
	case PushWebSocket, PushNone, "":
	case PushRedis:
		if c.Push.RedisURL == "" {
			add("push.redis_url is required for the redis transport")
		}
		if c.Push.RedisChannel == "" {
			add("push.redis_channel is required for the redis transport")
		}
	default:
		add("push.transport %q: want websocket, redis or none", c.Push.Transport)
	}
	return errors.Join(errs...)
}

// ParseServerURI parses a crawl server URI and returns the base URL (without
// credentials, query or fragment), username, and password.
func ParseServerURI(uri string) (baseURL, username, password string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid URI %q: %w", uri, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", "", fmt.Errorf("unsupported scheme %q (must be http or https)", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", "", "", fmt.Errorf("invalid URI %q: host is required", uri)
	}
	if p := u.Port(); p != "" {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil || n < 1 || n > 65535 {
			return "", "", "", fmt.Errorf("invalid URI %q: port %s out of range", uri, p)
		}
	}

	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
		u.User = nil
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), username, password, nil
}
