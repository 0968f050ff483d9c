// Package httpx is a small JSON-over-HTTP client with exponential retries on
// server errors and an optional per-host circuit breaker.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/logger"
)

const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 5 * time.Second
	DefaultTimeout         = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// Error reports a failed call after retries have been exhausted.
type Error struct {
	Method     string
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsClientStatus reports whether err carries a 4xx response.
func IsClientStatus(err error) bool {
	var he *Error
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500
}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration

	BreakerEnabled     bool
	BreakerTimeout     time.Duration
	BreakerMaxFailures uint32

	HTTPClient *http.Client
}

// Request describes one logical call. Data travels as a JSON body for POST,
// PUT and PATCH and as query parameters for GET.
type Request struct {
	Method  string
	URL     string
	Data    map[string]any
	Timeout time.Duration
}

type Client struct {
	http     *http.Client
	opts     Options
	breakers *breakerSet
	logger   *logger.Logger
}

func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		http:   opts.HTTPClient,
		opts:   opts,
		logger: log.WithComponent("httpx"),
	}
	if opts.BreakerEnabled {
		c.breakers = newBreakerSet(opts.BreakerTimeout, opts.BreakerMaxFailures)
	}
	return c
}

// DoJSON performs req and decodes a JSON object response.
func (c *Client) DoJSON(ctx context.Context, req Request) (map[string]any, error) {
	body, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Method: req.Method, URL: req.URL, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

// Do performs req, retrying 5xx responses with exponential backoff. Other
// failures are returned immediately.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}

	if c.breakers == nil {
		return c.retry(ctx, req)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &Error{Method: req.Method, URL: req.URL, Err: err}
	}
	var body []byte
	err = c.breakers.get(u.Host).Execute(func() error {
		var callErr error
		body, callErr = c.retry(ctx, req)
		return callErr
	})
	return body, err
}

func (c *Client) retry(ctx context.Context, req Request) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialInterval
	policy.MaxInterval = c.opts.MaxInterval

	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		return c.once(ctx, req, attempt)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.opts.MaxAttempts),
	)
	if err != nil {
		c.logger.Error("HTTP request failed",
			zap.String("url", req.URL),
			zap.String("method", req.Method),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return nil, err
	}
	return body, nil
}

func (c *Client) once(ctx context.Context, req Request, attempt int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := buildRequest(ctx, req)
	if err != nil {
		return nil, backoff.Permanent(&Error{Method: req.Method, URL: req.URL, Err: err})
	}

	c.logger.Debug("Making HTTP request",
		zap.String("url", req.URL),
		zap.String("method", req.Method),
		zap.Duration("timeout", req.Timeout),
		zap.Int("attempt", attempt),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, backoff.Permanent(&Error{Method: req.Method, URL: req.URL, Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, backoff.Permanent(&Error{Method: req.Method, URL: req.URL, Err: err})
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &Error{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, backoff.Permanent(&Error{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode})
	}

	c.logger.Debug("HTTP request successful",
		zap.String("url", req.URL),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("response_size", len(body)),
	)
	return body, nil
}

func buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	switch req.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		payload, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		return httpReq, nil

	default:
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
		if err != nil {
			return nil, err
		}
		if req.Method == http.MethodGet && len(req.Data) > 0 {
			q := httpReq.URL.Query()
			for k, v := range req.Data {
				q.Set(k, fmt.Sprint(v))
			}
			httpReq.URL.RawQuery = q.Encode()
		}
		httpReq.Header.Set("Accept", "application/json")
		return httpReq, nil
	}
}
