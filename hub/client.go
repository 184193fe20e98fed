package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to the Hugging Face datasets server and downloads the parquet
// exports it points at. Configured with an HTTP client, an optional access token
// and a base URL for the datasets server.
type Client struct {
	inner       *http.Client
	token       string
	baseUrl     string
	endpoint    string
	limiter     *rate.Limiter
	maxAttempts int

	lock      sync.Mutex              // protects downloads
	downloads map[string][]chan error // in progress downloads, keyed by destination
}

// ClientOptions are used to configure a `Client`.
type ClientOptions func(*Client)

// WithHTTPClient allows the caller to customize the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOptions {
	return func(c *Client) {
		c.inner = client
	}
}

// WithBaseURL points the client at a non-default datasets server. By default,
// requests are sent to `https://datasets-server.huggingface.co`.
func WithBaseURL(baseUrl string) ClientOptions {
	return func(c *Client) {
		c.baseUrl = baseUrl
	}
}

// WithEndpoint serves downloads from a Hugging Face mirror: file URLs on
// `https://huggingface.co` are rewritten onto endpoint.
func WithEndpoint(endpoint string) ClientOptions {
	return func(c *Client) {
		c.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// WithToken sets a Hugging Face access token, needed for gated datasets.
func WithToken(token string) ClientOptions {
	return func(c *Client) {
		c.token = token
	}
}

// WithRateLimit caps the number of requests per second sent by the client.
// A non-positive value disables the limit.
func WithRateLimit(rps float64) ClientOptions {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithMaxAttempts sets how many times a request is tried before giving up.
func WithMaxAttempts(n int) ClientOptions {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewClient constructs a new `Client`, allowing the caller to configure it by
// passing zero or more `ClientOptions` functions.
func NewClient(options ...ClientOptions) *Client {
	client := &Client{
		inner:       http.DefaultClient,
		baseUrl:     "https://datasets-server.huggingface.co",
		limiter:     rate.NewLimiter(rate.Limit(5), 1),
		maxAttempts: 3,
		downloads:   make(map[string][]chan error),
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// do sends a GET request to url, retrying transient failures. On success the
// caller owns the response body.
func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Millisecond * 150 * time.Duration(attempt)): // 150ms, 300ms, ...
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("constructing http request: %w", err)
		}
		req.Header.Set("User-Agent", "atomic-bm25-baseline")
		if c.token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
		}

		resp, err := c.inner.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("sending request: %w", err)
			continue
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastErr = newAPIError(url, resp.StatusCode, resp.Header.Get("Content-Type"), body)

		if !statusCodeShouldRetry(resp.StatusCode) {
			break
		}
	}
	return nil, lastErr
}

func getJSON[E any](ctx context.Context, c *Client, url string) (*E, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body := new(E)
	if err := json.NewDecoder(resp.Body).Decode(body); err != nil {
		return nil, fmt.Errorf("unmarshalling response body: %w", err)
	}
	return body, nil
}

func statusCodeShouldRetry(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// APIError is an inspectable error type for non-2xx hub responses.
type APIError struct {
	Code    int
	URL     string
	Message string
}

func newAPIError(url string, code int, contentType string, body []byte) *APIError {
	msg := string(body)
	if strings.HasPrefix(contentType, "application/json") {
		var apiErr struct {
			Error string `json:"error,omitempty"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
	}
	return &APIError{Code: code, URL: url, Message: msg}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub error (http code %d) for %s: %s", e.Code, e.URL, e.Message)
}
