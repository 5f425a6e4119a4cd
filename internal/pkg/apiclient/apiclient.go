// Package apiclient posts JSON to third-party delivery APIs (email, SMS, push)
// and retries transient failures with a capped fibonacci backoff.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultAttempts = 3
	maxErrorBody    = 1024
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: request failed status=%d body=%s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Config tunes a Client. Zero values fall back to defaults.
type Config struct {
	HTTPClient *http.Client
	// Attempts is the total number of tries, including the first one.
	Attempts  uint64
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Client sends JSON requests.
type Client struct {
	http      *http.Client
	attempts  uint64
	baseDelay time.Duration
	maxDelay  time.Duration
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		http:      cfg.HTTPClient,
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.attempts == 0 {
		c.attempts = defaultAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 200 * time.Millisecond
	}
	if c.maxDelay <= 0 {
		c.maxDelay = 2 * time.Second
	}
	return c
}

// WithHTTPClient returns a copy of c that sends through hc.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.http = hc
	return &cp
}

// PostJSON marshals in, posts it to url with the given headers and decodes a
// 2xx response into out when out is non-nil. Network errors, 429 and 5xx
// responses are retried.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}

	b := retry.NewFibonacci(c.baseDelay)
	b = retry.WithCappedDuration(c.maxDelay, b)
	b = retry.WithMaxRetries(c.attempts-1, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.post(ctx, url, headers, raw, out)
		if err == nil {
			return nil
		}

		var serr *StatusError
		if errors.As(err, &serr) && !serr.Retryable() {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, raw []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		//nolint:errcheck // diagnostic only
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		//nolint:errcheck // drain for connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}
