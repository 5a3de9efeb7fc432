// Package httpretry wraps an HTTP client with capped exponential backoff and
// full jitter for calls to external endpoints.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/delivery-engine/internal/pkg/logger"
)

// Doer executes HTTP requests. *http.Client and *Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client. Zero fields take defaults.
type Options struct {
	MaxRetries int           // retries after the first attempt, default 3
	BaseDelay  time.Duration // default 1s
	MaxDelay   time.Duration // default 30s
}

// Client retries requests that fail with a network error or a 429/5xx
// gateway status.
type Client struct {
	doer  Doer
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New wraps doer. A nil doer uses an http.Client with a 30s timeout.
func New(doer Doer, opts Options) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	return &Client{doer: doer, opts: opts, sleep: sleepCtx}
}

// Get issues a GET to url with retries.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends req, retrying on transient failures. The final response is
// returned as-is, whatever its status, so the caller can inspect it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset body: %w", err)
				}
				req.Body = body
			}
			d := c.delay(attempt)
			logger.Debug("http retry", "attempt", attempt, "host", req.URL.Host, "path", req.URL.Path, "wait", d.String())
			if err := c.sleep(ctx, d); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		resp, err := c.doer.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !retryable(resp.StatusCode) || attempt == c.opts.MaxRetries {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}
	return nil, lastErr
}

// delay is random(0, min(MaxDelay, BaseDelay*2^(attempt-1))), at least 100ms.
func (c *Client) delay(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := c.opts.BaseDelay << uint(shift)
	if d <= 0 || d > c.opts.MaxDelay {
		d = c.opts.MaxDelay
	}
	j := time.Duration(rand.Int63n(int64(d) + 1))
	if j < 100*time.Millisecond {
		j = 100 * time.Millisecond
	}
	return j
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
