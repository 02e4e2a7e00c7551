package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// DefaultBaseURL is where LM Studio serves its API out of the box.
const DefaultBaseURL = "http://localhost:1234/v1"

// HTTPClient implements Client over LM Studio's REST endpoints.
type HTTPClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL. An empty
// baseURL selects DefaultBaseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// ListModels fetches GET /models.
func (c *HTTPClient) ListModels(ctx context.Context) ([]Model, error) {
	var list modelList
	if err := c.call(ctx, "list models", http.MethodGet, "/models", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// HealthCheck lists models and reports the outcome.
func (c *HTTPClient) HealthCheck(ctx context.Context) Health {
	models, err := c.ListModels(ctx)
	if err != nil {
		return Health{
			Status:    StatusUnhealthy,
			BaseURL:   c.baseURL,
			Error:     err.Error(),
			ErrorKind: KindOf(err),
		}
	}
	return Health{
		Status:      StatusHealthy,
		BaseURL:     c.baseURL,
		ModelsCount: len(models),
	}
}

// CreateCompletion posts to /completions. A response without any choice
// text is reported as a KindAPI error.
func (c *HTTPClient) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var resp CompletionResponse
	if err := c.call(ctx, "completion", http.MethodPost, "/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindAPI, Op: "completion", Message: "no choices in response"}
	}
	return &resp, nil
}

// Close releases idle keep-alive connections.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// call performs one JSON round trip and decodes a 2xx body into result.
func (c *HTTPClient) call(ctx context.Context, op, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindClient, Op: op, Message: fmt.Sprintf("marshal request: %v", err), Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindClient, Op: op, Message: fmt.Sprintf("create request: %v", err), Err: err}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &Error{Kind: KindAPI, Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err), Err: err}
		}
	}
	return nil
}
