// Package client is the typed REST client for the LMS backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the per-request correlation ID
	RequestIDHeader = "X-Request-ID"

	defaultTimeout  = 15 * time.Second
	maxErrorBodyLen = 64 << 10
)

// TokenSource yields the bearer token attached to outgoing requests
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Config configures a Client
type Config struct {
	BaseURL    string
	HealthPath string
	Timeout    time.Duration
	Tokens     TokenSource
	// HTTPClient overrides the default client; its Jar is replaced when nil
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the LMS REST API
type Client struct {
	baseURL    *url.URL
	healthPath string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// New creates a new API client
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if httpClient.Jar == nil {
		jar, err := newSessionJar()
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		healthPath: healthPath,
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		logger:     logger,
	}, nil
}

// Do sends a JSON request to path (relative to the base URL) and decodes the
// response into out. in and out may be nil. Responses wrapped in a
// {"data": ...} envelope are unwrapped.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	if c.tokens != nil {
		// cookie-only sessions are valid, so a missing token is not an error
		if token, terr := c.tokens.AccessToken(ctx); terr == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", requestID),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp, method, path, requestID)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapEnvelope(raw), out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Cookies returns the cookies the backend has set for the base URL
func (c *Client) Cookies() []*http.Cookie {
	return c.httpClient.Jar.Cookies(c.baseURL)
}

// ClearCookies drops backend session cookies. It is a no-op when the
// caller supplied its own cookie jar.
func (c *Client) ClearCookies() {
	if jar, ok := c.httpClient.Jar.(*sessionJar); ok {
		jar.reset()
	}
}

// resolve joins an already-escaped path onto the base URL
func (c *Client) resolve(path string) string {
	return c.baseURL.String() + "/" + strings.TrimPrefix(path, "/")
}

func decodeAPIError(resp *http.Response, method, path, requestID string) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
		RequestID:  requestID,
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	if len(raw) == 0 {
		return apiErr
	}
	if err := json.Unmarshal(raw, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func unwrapEnvelope(raw []byte) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	data, ok := env["data"]
	if !ok {
		return raw
	}
	for k := range env {
		if k != "data" && k != "message" {
			return raw
		}
	}
	return data
}
