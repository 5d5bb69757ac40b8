// Package client provides a typed HTTP client SDK for apiforge-apps.
package client

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

	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	retryBaseDelay    = 250 * time.Millisecond
)

// ErrNotFound is returned when the server responds with 404.
var ErrNotFound = errors.New("resource not found")

// Config holds registry client configuration.
type Config struct {
	// TokenRefresh optionally resolves a token dynamically when Token is empty.
	TokenRefresh func(ctx context.Context) (string, error)
	// BaseURL is the root URL of the registry API (for example: http://localhost:27780).
	BaseURL string
	// Token is the bearer token used for API requests.
	Token string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of retry attempts for transient errors.
	MaxRetries int
}

// Client is the typed HTTP SDK for the application registry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
}

// APIError carries the problem detail of a non-2xx response.
type APIError struct {
	Status  int
	Problem types.Problem
}

func (e *APIError) Error() string {
	if e.Problem.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Problem.Detail)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, http.StatusText(e.Status))
}

// New creates a new registry client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.BaseURL = baseURL

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		cfg:        cfg,
	}, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.cfg.Token != "" {
		return c.cfg.Token, nil
	}
	if c.cfg.TokenRefresh != nil {
		token, err := c.cfg.TokenRefresh(ctx)
		if err != nil {
			return "", fmt.Errorf("refreshing token: %w", err)
		}
		return token, nil
	}
	return "", nil
}

// do issues one request with retries on transport errors and 5xx responses.
// The response body, when out is non-nil, is decoded as JSON.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		payload = encoded
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		retryable, err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("request failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) (retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.token(ctx)
	if err != nil {
		return false, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decoding response: %w", err)
		}
		return false, nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(&apiErr.Problem)

	if resp.StatusCode == http.StatusNotFound {
		return false, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	return resp.StatusCode >= 500, apiErr
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
