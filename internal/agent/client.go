// Package agent is the HTTP client for the external agent backend's
// outgoing-message API.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/reddiedev/tenext-app/internal/model"
)

// ChatStreamPath is the backend route that streams a reply as NDJSON.
const ChatStreamPath = "/agent/v1/chat_stream"

const maxErrorBody = 4 << 10

// ErrMissingToken is returned when a request is attempted without a bearer token.
var ErrMissingToken = errors.New("agent: bearer token is required")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent: request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client calls the agent backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the backend at baseURL. The default HTTP
// client sets no overall timeout so long replies are not cut off; only the
// connection phase is bounded.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
				MaxIdleConnsPerHost:   16,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatStream posts the outgoing message and returns the streaming response
// body. The caller owns the body and must close it.
func (c *Client) ChatStream(ctx context.Context, token string, req model.ChatRequest) (io.ReadCloser, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatStreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: errorMessage(raw)}
	}

	return resp.Body, nil
}

// errorMessage prefers the backend's JSON error field over the raw body.
func errorMessage(raw []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}
