package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dm/crawlwatch/internal/model"
)

// SessionClient defines the interface for talking to the crawl server.
type SessionClient interface {
	GetSessionStatus(ctx context.Context, id string) (*SessionStatus, error)
	GetDashboardStats(ctx context.Context) (*DashboardStats, error)
	StartSession(ctx context.Context, id string) error
	StopSession(ctx context.Context, id string) error
	PauseSession(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	BaseURL() string
}

// TokenProvider supplies the anti-forgery token sent with every command.
// The value is opaque to the client.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider that always returns the same token.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// ClientConfig holds configuration for DefaultClient.
type ClientConfig struct {
	BaseURL            string
	Username           string
	Password           string
	SessionCookie      string
	Tokens             TokenProvider
	InsecureSkipVerify bool
	RequestTimeout     time.Duration
	// MaxRequestsPerSecond bounds outgoing request volume. Zero disables
	// the limiter.
	MaxRequestsPerSecond float64
}

// DefaultClient implements SessionClient using the standard net/http package.
type DefaultClient struct {
	http    *http.Client
	config  ClientConfig
	limiter *rate.Limiter
}

// NewDefaultClient constructs a DefaultClient from the given config.
// It configures TLS skip-verify, request timeout and the request limiter.
// Returns an error if BaseURL is empty.
func NewDefaultClient(cfg ClientConfig) (*DefaultClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: BaseURL is required", model.ErrInvalidConfig)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
	}

	c := &DefaultClient{
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		config: cfg,
	}
	if cfg.MaxRequestsPerSecond > 0 {
		burst := int(cfg.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the configured base URL of the crawl server.
func (c *DefaultClient) BaseURL() string {
	return c.config.BaseURL
}

// HTTPClient exposes the underlying client so other transports (the push
// stream dialer) share TLS settings.
func (c *DefaultClient) HTTPClient() *http.Client {
	return c.http
}

// AuthHeader returns the headers that authenticate a request: basic auth
// and the session cookie. Used by the push stream dialer as well.
func (c *DefaultClient) AuthHeader() http.Header {
	r := &http.Request{Header: http.Header{}}
	c.authorize(r)
	return r.Header
}

func (c *DefaultClient) authorize(req *http.Request) {
	if c.config.Username != "" || c.config.Password != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}
	if c.config.SessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.config.SessionCookie})
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id that doPost sends as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// do sends req and returns the body bytes, or an error wrapping
// model.ErrTransport on network failure or non-2xx status.
func (c *DefaultClient) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("%w: rate limit: %w", model.ErrTransport, err)
		}
	}

	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: do request: %w", model.ErrTransport, err)
	}
	defer resp.Body.Close()

	const maxResponseBytes = 4 * 1024 * 1024 // status payloads are tiny
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", model.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", model.ErrTransport, &StatusError{Code: resp.StatusCode, Body: truncate(body, 200)})
	}
	return body, nil
}

// doGet performs a GET request to the given path (relative to BaseURL).
func (c *DefaultClient) doGet(ctx context.Context, path string) ([]byte, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

// doPost performs a POST request carrying the anti-forgery token in the
// X-CSRFToken header and matching csrftoken cookie.
func (c *DefaultClient) doPost(ctx context.Context, path string) error {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	// Django checks the header against the cookie and the Referer on TLS.
	req.Header.Set("Referer", c.config.BaseURL)

	if c.config.Tokens != nil {
		token, err := c.config.Tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("csrf token: %w", err)
		}
		if token != "" {
			req.Header.Set("X-CSRFToken", token)
			req.AddCookie(&http.Cookie{Name: "csrftoken", Value: token})
		}
	}

	_, err = c.do(req)
	return err
}

// Ping checks connectivity by calling the dashboard stats endpoint with a 1s timeout.
func (c *DefaultClient) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	_, err := c.doGet(pingCtx, endpointDashboardStats)
	return err
}

// StatusError is returned (wrapped) for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
