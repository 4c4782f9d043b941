// Package fetch downloads the upstream markdown document.
//
// Requests advertise brotli, zstd and gzip and the body is decoded here, so
// the transport's transparent gzip handling is bypassed. Transient failures
// (network errors, 429, 5xx) are retried a bounded number of times, paced by
// a rate limiter.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marl/internal/logging"

	"golang.org/x/time/rate"
)

// DefaultURL is the raw markdown source of the token tables.
const DefaultURL = "https://rentry.co/firehawk52/raw"

const (
	defaultMaxAttempts   = 3
	defaultRetryInterval = 2 * time.Second
	defaultMaxBytes      = 8 << 20
	defaultTimeout       = 30 * time.Second
)

// FetchError reports that the document could not be obtained.
// StatusCode is 0 when no HTTP response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *FetchError) Retryable() bool {
	switch {
	case errors.Is(e.Err, context.Canceled), errors.Is(e.Err, context.DeadlineExceeded):
		return false
	case e.StatusCode == 0, errors.Is(e.Err, errBodyRead):
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return e.Err == nil
	}
	return false
}

// Config configures a Client. Zero values select defaults.
type Config struct {
	URL           string
	HTTPClient    *http.Client
	UserAgent     string
	MaxAttempts   int
	RetryInterval time.Duration
	MaxBytes      int64
	Logger        *slog.Logger
}

// Client fetches the document over HTTP.
type Client struct {
	url           string
	http          *http.Client
	userAgent     string
	maxAttempts   int
	retryInterval time.Duration
	maxBytes      int64
	logger        *slog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		url:           cfg.URL,
		http:          cfg.HTTPClient,
		userAgent:     cfg.UserAgent,
		maxAttempts:   cfg.MaxAttempts,
		retryInterval: cfg.RetryInterval,
		maxBytes:      cfg.MaxBytes,
		logger:        logging.Default(cfg.Logger).With("component", "fetch"),
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.userAgent == "" {
		c.userAgent = "marl"
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.retryInterval <= 0 {
		c.retryInterval = defaultRetryInterval
	}
	if c.maxBytes <= 0 {
		c.maxBytes = defaultMaxBytes
	}
	return c
}

// Fetch returns the full document text. Errors are always *FetchError.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	limiter := rate.NewLimiter(rate.Every(c.retryInterval), 1)

	var lastErr *FetchError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return "", &FetchError{URL: c.url, Err: err}
		}

		start := time.Now()
		text, err := c.fetchOnce(ctx)
		if err == nil {
			c.logger.Info("document fetched", "url", c.url, "bytes", len(text), "elapsed", time.Since(start))
			return text, nil
		}
		lastErr = err

		if !err.Retryable() || attempt == c.maxAttempts {
			break
		}
		c.logger.Warn("fetch failed, retrying", "url", c.url, "attempt", attempt, "error", err)
	}
	return "", lastErr
}

func (c *Client) fetchOnce(ctx context.Context) (string, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", &FetchError{URL: c.url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("Accept", "text/plain, text/markdown;q=0.9, */*;q=0.1")

	resp, err := c.http.Do(req) //nolint:gosec // URL comes from the user's own flag
	if err != nil {
		return "", &FetchError{URL: c.url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: c.url, StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"), c.maxBytes)
	if err != nil {
		return "", &FetchError{URL: c.url, StatusCode: resp.StatusCode, Err: err}
	}
	return string(body), nil
}
