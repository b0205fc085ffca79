// Package httpclient is the small JSON-over-HTTP client used for the
// enrichment oracle.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout applies when NewDefaultClient is given zero
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize bounds the body read from any response
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent identifies the catalog server to upstream services
	UserAgent = "toolhive-catalog-server/1.0"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client fetches and posts JSON documents.
type Client interface {
	// Get returns the body of a successful GET request
	Get(ctx context.Context, url string) ([]byte, error)

	// PostJSON marshals body, posts it and returns the response body
	PostJSON(ctx context.Context, url string, body any, headers map[string]string) ([]byte, error)
}

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

// NewHTTPError creates an HTTPError.
func NewHTTPError(statusCode int, url, message string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, URL: url, Message: message}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// HTTPStatus exposes the status code to retry classification.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// DefaultClient is the net/http backed Client.
type DefaultClient struct {
	client *http.Client
}

var _ Client = (*DefaultClient)(nil)

// NewDefaultClient creates a client with the given overall request timeout.
func NewDefaultClient(timeout time.Duration) *DefaultClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request.
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, url)
}

// PostJSON performs a POST request with a JSON body.
func (c *DefaultClient) PostJSON(ctx context.Context, url string, body any, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, url)
}

func (c *DefaultClient) do(req *http.Request, url string) ([]byte, error) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response too large: Content-Length %d exceeds limit of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// Read one byte past the limit to detect oversize bodies without a Content-Length.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response too large: exceeds limit of %d bytes", MaxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewHTTPError(resp.StatusCode, url, http.StatusText(resp.StatusCode))
	}
	return data, nil
}
