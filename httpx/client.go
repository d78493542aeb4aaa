// Package httpx provides the HTTP client used for plain web fetches,
// currently thumbnail downloads, with retry, per-host rate limiting and
// Retry-After handling.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ytmanager/retry"
)

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests.
	Timeout time.Duration

	// Retry configuration.
	Retry retry.Config

	// RequestsPerSecond caps requests per host.
	RequestsPerSecond float64

	// UserAgent for HTTP requests.
	UserAgent string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:           30 * time.Second,
		Retry:             retry.DefaultConfig(),
		RequestsPerSecond: 4,
		UserAgent:         "ytmanager/1.0",
	}
}

// Client wraps an HTTP client with retry logic and per-host rate limiting.
type Client struct {
	base   *http.Client
	config *Config

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	notBefore map[string]time.Time // per-host Retry-After deadlines
}

// New creates a client. A nil config selects DefaultConfig.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		base: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		config:    cfg,
		limiters:  make(map[string]*rate.Limiter),
		notBefore: make(map[string]time.Time),
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request with retry and rate limiting.
func (c *Client) Get(ctx context.Context, urlStr string) (*Response, error) {
	host := hostOf(urlStr)

	var out *Response
	err := retry.Do(ctx, c.config.Retry, isRetryableHTTPError, func(ctx context.Context) error {
		if err := c.waitForHost(ctx, host); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.config.UserAgent)

		resp, err := c.base.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			retryAfter := parseRetryAfter(resp.Header)
			c.recordBackoff(host, retryAfter)
			return &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: retryAfter}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return &HTTPError{StatusCode: resp.StatusCode, Body: body}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		out = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// waitForHost blocks until the host's rate limiter admits a request and
// any Retry-After deadline has passed.
func (c *Client) waitForHost(ctx context.Context, host string) error {
	c.mu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.config.RequestsPerSecond), 1)
		c.limiters[host] = lim
	}
	deadline := c.notBefore[host]
	c.mu.Unlock()

	if wait := time.Until(deadline); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lim.Wait(ctx)
}

func (c *Client) recordBackoff(host string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(retryAfter)
	if deadline.After(c.notBefore[host]) {
		c.notBefore[host] = deadline
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}

func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	return u.Host
}

// isRetryableHTTPError retries rate limits and 5xx responses.
func isRetryableHTTPError(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	if _, ok := err.(*RateLimitError); ok {
		return true
	}
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.StatusCode >= 500
	}
	return true
}

// parseRetryAfter extracts the Retry-After header value as a duration.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}
	return 0
}
