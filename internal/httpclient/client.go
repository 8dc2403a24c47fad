// Package httpclient provides the HTTP transport used to reach remote class sources
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
)

const (
	// DefaultTimeout is the default per-request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the default number of attempts for transient failures
	DefaultRetries = 3

	// DefaultRetryInterval is the initial wait between attempts
	DefaultRetryInterval = 500 * time.Millisecond

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "argon/1.0"
)

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)

	// Post performs an HTTP POST request with a JSON body and returns the
	// response body. It is sent once whatever the configured retries.
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithRetries sets the number of attempts for transient failures. Values below 1 mean a single attempt.
func WithRetries(retries int) Option {
	return func(c *DefaultClient) {
		if retries < 1 {
			retries = 1
		}
		c.retries = retries
	}
}

// WithRetryInterval sets the initial wait between attempts
func WithRetryInterval(interval time.Duration) Option {
	return func(c *DefaultClient) {
		c.retryInterval = interval
	}
}

// WithMaxResponseSize overrides MaxResponseSize
func WithMaxResponseSize(size int64) Option {
	return func(c *DefaultClient) {
		c.maxResponseSize = size
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client          *http.Client
	timeout         time.Duration
	retries         int
	retryInterval   time.Duration
	maxResponseSize int64
}

// NewDefaultClient creates a new default HTTP client with the specified timeout
// If timeout is 0, uses DefaultTimeout
func NewDefaultClient(timeout time.Duration, opts ...Option) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout:         timeout,
		retries:         DefaultRetries,
		retryInterval:   DefaultRetryInterval,
		maxResponseSize: MaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// Post performs an HTTP POST request without retries
func (c *DefaultClient) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

// do runs the request, retrying transport errors and temporary HTTP errors
// with exponential backoff until the attempts are exhausted or ctx ends.
// Only GET is retried: a POST that reached the server must not run twice.
func (c *DefaultClient) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	logger := logr.FromContextOrDiscard(ctx)

	tries := c.retries
	if method != http.MethodGet {
		tries = 1
	}

	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = c.retryInterval

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		data, err := c.once(ctx, method, url, body)
		if err == nil {
			return data, nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, err
		}
		if !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		logger.V(1).Info("Request failed, retrying", "method", method, "url", url, "attempt", attempt, "error", err.Error())
		return nil, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackOff),
		backoff.WithMaxTries(uint(tries)),
	)
}

func (c *DefaultClient) once(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	// Set headers
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Execute request
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Check status code
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	// Check Content-Length header if available
	if resp.ContentLength > c.maxResponseSize {
		return nil, &sizeError{limit: c.maxResponseSize, actual: resp.ContentLength}
	}

	// +1 to detect if limit exceeded
	limitedReader := io.LimitReader(resp.Body, c.maxResponseSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(data)) > c.maxResponseSize {
		return nil, &sizeError{limit: c.maxResponseSize}
	}

	return data, nil
}

// sizeError is returned when a response exceeds the configured limit
type sizeError struct {
	limit  int64
	actual int64
}

func (e *sizeError) Error() string {
	if e.actual > 0 {
		return fmt.Sprintf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
			e.actual, e.limit, float64(e.limit)/(1024*1024))
	}
	return fmt.Sprintf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
		e.limit, float64(e.limit)/(1024*1024))
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var sizeErr *sizeError
	if errors.As(err, &sizeErr) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return true
}
