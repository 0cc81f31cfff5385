package config

import (
	"fmt"
	"strings"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
	"github.com/dm/crawlwatch/internal/transport"
)

// ClientConfig builds the HTTP client settings. Credentials embedded in
// server.base_url are used when username and password are not set
// separately.
func (c *Config) ClientConfig() (client.ClientConfig, error) {
	base, user, pass, err := ParseServerURI(c.Server.BaseURL)
	if err != nil {
		return client.ClientConfig{}, fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}
	if c.Server.Username != "" {
		user = c.Server.Username
	}
	if c.Server.Password != "" {
		pass = c.Server.Password
	}
	cc := client.ClientConfig{
		BaseURL:              base,
		Username:             user,
		Password:             pass,
		SessionCookie:        c.Server.SessionCookie,
		InsecureSkipVerify:   c.Server.Insecure,
		RequestTimeout:       c.Server.RequestTimeout.Duration,
		MaxRequestsPerSecond: c.Server.MaxRequestsPerSecond,
	}
	if c.Server.CSRFToken != "" {
		cc.Tokens = client.StaticToken(c.Server.CSRFToken)
	}
	return cc, nil
}

// EngineConfig maps the poll, push and command sections onto the engine.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Poll: transport.PollerConfig{
			Interval:    c.Poll.Interval.Duration,
			Timeout:     c.Poll.Timeout.Duration,
			Concurrency: c.Poll.Concurrency,
		},
		Push: transport.PushConfig{
			Backoff: transport.BackoffConfig{
				Base:   c.Push.BackoffBase.Duration,
				Cap:    c.Push.BackoffCap.Duration,
				Jitter: c.Push.Jitter,
			},
			DialTimeout: c.Push.DialTimeout.Duration,
			StableAfter: c.Push.StableAfter.Duration,
		},
		CommandTimeout: c.Command.Timeout.Duration,
	}
}

// PushURL returns push.url, or the server's /ws/crawler/ endpoint with
// the scheme switched to ws or wss.
func (c *Config) PushURL(baseURL string) string {
	if c.Push.URL != "" {
		return c.Push.URL
	}
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/crawler/"
}

// PushSource builds the configured push source. It returns nil for the
// "none" transport. The WebSocket source shares the client's TLS settings
// and credentials. A *transport.RedisSource must be closed by the caller.
func (c *Config) PushSource(dc *client.DefaultClient) (transport.Source, error) {
	switch c.Push.Transport {
	case PushNone:
		return nil, nil
	case PushRedis:
		return transport.NewRedisSource(c.Push.RedisURL, c.Push.RedisChannel)
	case PushWebSocket, "":
		return &transport.WebSocketSource{
			URL:        c.PushURL(dc.BaseURL()),
			HTTPClient: dc.HTTPClient(),
			Header:     dc.AuthHeader(),
			Keepalive:  c.Push.Keepalive.Duration,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown push transport %q", model.ErrInvalidConfig, c.Push.Transport)
	}
}
