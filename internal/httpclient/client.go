// Package httpclient wraps net/http with a per-request timeout and bounded
// retries for the hosted model APIs.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/streed/notesai/internal/logger"
)

type Client struct {
	client      *http.Client
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	shouldRetry func(statusCode int) bool
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		client:      &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    10 * time.Second,
		shouldRetry: DefaultShouldRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultShouldRetry retries rate limits and transient server errors.
func DefaultShouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do sends req, retrying retryable statuses and transport errors. A non-2xx
// response that is not retried is returned as-is with a nil error so callers
// can read the error body. When retries run out a *RetryableError is returned.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		var retryAfter time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case !c.shouldRetry(resp.StatusCode):
			return resp, nil
		default:
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			lastErr = &RetryableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
			drain(resp)
			if attempt == c.maxRetries {
				return nil, &RetryableError{
					StatusCode: resp.StatusCode,
					Message:    fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
					Err:        lastErr,
				}
			}
		}

		if attempt == c.maxRetries {
			break
		}

		delay := c.backoff(attempt, retryAfter)
		logger.Debug("HTTP %s %s failed (%v); retrying in %v (attempt %d/%d)",
			req.Method, req.URL.Path, lastErr, delay, attempt+1, c.maxRetries)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, &RetryableError{
		Message: fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
		Err:     lastErr,
	}
}

func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	d += time.Duration(float64(d) * 0.1)
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// RetryableError reports that a request kept failing after every retry.
type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retry runs fn under the same backoff policy as Do, for SDK clients that
// own their transport. fn reports the HTTP status it saw (0 for transport
// failures); a status that is not retryable ends the loop immediately.
func (c *Client) Retry(ctx context.Context, fn func(ctx context.Context) (statusCode int, err error)) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var status int
		status, err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if status != 0 && !c.shouldRetry(status) {
			return err
		}
		if attempt == c.maxRetries {
			break
		}

		timer := time.NewTimer(c.backoff(attempt, 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &RetryableError{
		Message: fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
		Err:     err,
	}
}
