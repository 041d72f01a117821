// Package httpapi is the small JSON-over-HTTP client used to talk to the
// LocalStack control-plane endpoints and the remote management API.
//
// Callers pass credential-derived headers per request; the client never logs
// header values or request bodies.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader correlates a request with local log lines.
	RequestIDHeader = "X-Request-ID"

	maxBodySize    = 4 << 20
	defaultTimeout = 30 * time.Second
)

// Client represents a JSON API client rooted at a base URL
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option represents a functional option for configuring the Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for baseURL. A bare host:port gets an http:// scheme.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    NormalizeEndpoint(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	RequestID  string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as trimmed text.
func (r *Response) Text() string {
	return strings.TrimSpace(string(r.Body))
}

// DecodeJSON unmarshals the body into out.
func (r *Response) DecodeJSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do performs a request against path. A non-nil body is sent as JSON.
// Non-2xx answers are returned as a Response, not an error; only transport
// failures are errors.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Body: data, RequestID: requestID}, nil
}

// NormalizeEndpoint adds an http:// scheme to bare host:port endpoints and
// strips trailing slashes.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}
