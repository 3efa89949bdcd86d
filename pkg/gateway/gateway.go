// Package gateway owns the network boundary between the adapters and the
// upstream platforms: credential headers, per-request timeouts, bounded
// retries and the translation of transport failures into the typed upstream
// taxonomy.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

const (
	// DefaultTimeout bounds every upstream request.
	DefaultTimeout = 15 * time.Second

	readAttempts  = 3
	writeAttempts = 2

	baseBackoff = 250 * time.Millisecond
	maxBackoff  = 2 * time.Second
)

// Request is one upstream HTTP call on behalf of a connection.
type Request struct {
	Platform models.Platform
	Op       string // Adapter operation, carried into errors and spans
	Method   string
	URL      string
	Header   http.Header
	Body     []byte

	// Idempotent marks the request safe to retry after a response was
	// received. Non-idempotent requests (status writes) are retried at most
	// once and only when no response ever arrived, so a partial-success
	// ambiguity is never replayed.
	Idempotent bool
}

// Response carries the upstream status and raw body back to the adapter,
// which owns the schema-specific decoding.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client executes adapter requests against upstream platforms.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client, used by tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a gateway client.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     logger.With("module", "gateway"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Do executes the request under the retry policy and returns either a
// response or a typed upstream failure. A non-2xx status that is not
// retryable (or survived the retry budget) is returned as an error; the
// caller never sees a raw transport error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	attempts := writeAttempts
	if req.Idempotent {
		attempts = readAttempts
	}

	var (
		lastErr    error
		lastStatus int
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := backoffFor(attempt)
			c.logger.InfoContext(ctx, "Retrying upstream request",
				"platform", req.Platform,
				"op", req.Op,
				"attempt", attempt,
				"backoff", backoff,
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, c.typed(req, 0, ctx.Err())
			}
		}

		resp, err := c.attempt(ctx, req)
		if err != nil {
			lastErr = err
			lastStatus = 0

			// Connection-level failure: no response was received, safe to
			// retry even for status writes.
			if ctx.Err() != nil {
				return nil, c.typed(req, 0, ctx.Err())
			}

			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("server error: %w", platforms.ErrUpstreamUnreachable)
			lastStatus = resp.StatusCode

			// A response arrived; only idempotent reads may be replayed.
			if !req.Idempotent {
				return nil, c.typed(req, resp.StatusCode, platforms.ErrUpstreamUnreachable)
			}

			continue
		}

		if typedErr := statusError(resp.StatusCode); typedErr != nil {
			return nil, c.typed(req, resp.StatusCode, typedErr)
		}

		return resp, nil
	}

	return nil, c.typed(req, lastStatus, lastErr)
}

func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: payload}, nil
}

// typed folds any failure into the upstream taxonomy.
func (c *Client) typed(req *Request, statusCode int, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = platforms.ErrUpstreamTimeout
	case errors.Is(err, context.Canceled):
		// Caller cancellation is surfaced as-is so the facade can abort
		// without billing.
	case errors.Is(err, platforms.ErrUpstreamUnreachable),
		errors.Is(err, platforms.ErrUpstreamAuthFailed),
		errors.Is(err, platforms.ErrWorkflowNotFound):
	default:
		err = fmt.Errorf("%w: %w", platforms.ErrUpstreamUnreachable, err)
	}

	return platforms.NewUpstreamError(req.Platform, req.Op, statusCode, err)
}

// statusError maps terminal non-retryable statuses to taxonomy sentinels.
func statusError(statusCode int) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return platforms.ErrUpstreamAuthFailed
	case statusCode == http.StatusNotFound:
		return platforms.ErrWorkflowNotFound
	case statusCode >= http.StatusBadRequest:
		return fmt.Errorf("unexpected status: %w", platforms.ErrUpstreamMalformedResponse)
	}

	return nil
}

func backoffFor(attempt int) time.Duration {
	backoff := baseBackoff << (attempt - 1)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	return backoff
}
