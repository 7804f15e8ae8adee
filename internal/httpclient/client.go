// Package httpclient is a rate limited JSON HTTP client shared by the
// market data and notification adapters.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"solana-signal-engine/internal/observability"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("http: not found")

// Config holds client settings.
type Config struct {
	Timeout      time.Duration // per attempt
	RateLimit    float64       // requests per second, 0 = unlimited
	Burst        int
	MaxRetries   int // retries after the first attempt for GET requests
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
}

// DefaultConfig returns defaults suited for public market data APIs.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		RateLimit:    4,
		Burst:        1,
		MaxRetries:   3,
		RetryWait:    500 * time.Millisecond,
		RetryMaxWait: 5 * time.Second,
		UserAgent:    "solana-signal-engine/1.0",
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s: %s", e.Code, e.URL, e.Body)
}

// Client wraps resty with a token bucket limiter. GET requests are retried
// with exponential backoff on transport errors, 429 and 5xx.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = def.RetryWait
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = def.RetryMaxWait
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	limiter := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	c := &Client{limiter: limiter, logger: logger}
	c.client = resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRequestMiddleware(func(_ *resty.Client, r *resty.Request) error {
			// Every attempt, retries included, takes a token.
			if err := limiter.Wait(r.Context()); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
			if cfg.UserAgent != "" {
				r.SetHeader("User-Agent", cfg.UserAgent)
			}
			return nil
		}).
		AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
			observability.RecordHTTPRequest(host(resp.Request.URL), strconv.Itoa(resp.StatusCode()))
			if resp.StatusCode() >= 400 {
				logger.Debug("http request failed",
					zap.Int("status", resp.StatusCode()),
					zap.String("url", resp.Request.URL),
					zap.Int("attempt", resp.Request.Attempt),
				)
			}
			return nil
		})
	return c
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.client.Close()
}

// Get issues a GET request and decodes a JSON response into out.
func (c *Client) Get(ctx context.Context, rawURL string, query map[string]string, out any) error {
	req := c.client.R().SetContext(ctx).SetResult(out)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(rawURL)
	return c.check(rawURL, resp, err)
}

// PostJSON issues a POST with a JSON body and decodes the response into out
// (out may be nil). POST requests are never retried.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body, out any) error {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(rawURL)
	return c.check(rawURL, resp, err)
}

func (c *Client) check(rawURL string, resp *resty.Response, err error) error {
	if err != nil {
		if resp == nil || resp.StatusCode() == 0 {
			observability.RecordHTTPRequest(host(rawURL), "error")
		}
		return fmt.Errorf("request %s: %w", rawURL, err)
	}
	switch code := resp.StatusCode(); {
	case code == 404:
		return fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case code >= 400:
		body := resp.String()
		if len(body) > 256 {
			body = body[:256]
		}
		return &StatusError{Code: code, URL: rawURL, Body: body}
	}
	return nil
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
