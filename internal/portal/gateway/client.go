// Package gateway is the HTTP client for the platform's remote auth API.
// It owns the wire contracts (paths, request/response shapes) and normalizes
// every error body into a typed *APIError, so the flows above it never have
// to know that the backend can say the same thing two different ways.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/campuskit/portal/pkg/slogx"
)

// Client is a client for the portal's auth and profile-security endpoints.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.RWMutex
	bearer string
}

// New creates a gateway client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &slogx.Transport{},
		},
	}
}

// SetBearer installs the token sent as `Authorization: Bearer <token>` on
// subsequent requests. Pass the persisted token verbatim; surrounding quote
// characters left over from older serialization formats are stripped.
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = NormalizeBearer(token)
}

// ClearBearer drops the installed token.
func (c *Client) ClearBearer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = ""
}

// NormalizeBearer trims whitespace and one layer of surrounding quotes from a
// persisted token value.
func NormalizeBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		token = token[1 : len(token)-1]
	}
	return token
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// roundTrip performs one request and returns the status code and raw body.
// A non-nil error here is always a transport-level failure; HTTP error
// statuses are returned to the caller for shape-aware parsing.
func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("gateway: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway: failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	bearer := c.bearer
	c.mu.RUnlock()
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway: failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway: failed to read response body: %w", err)
	}

	return resp.StatusCode, raw, nil
}

// do performs a request and decodes a 2xx response body into target (which
// may be nil). Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	status, raw, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}

	if status < 200 || status > 299 {
		return parseErrorResponse(status, raw)
	}

	if target != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("gateway: failed to decode response: %w", err)
		}
	}
	return nil
}
