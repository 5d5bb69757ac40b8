package gateway

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout      = 15 * time.Second
	defaultRetryAttempts    = 3
	defaultRetryBackoffBase = 250 * time.Millisecond
	defaultRetryBackoffMax  = 5 * time.Second
)

// HTTPConfig configures the HTTP gateway client.
type HTTPConfig struct {
	// BaseURL is the root URL of the gateway admin API.
	BaseURL string
	// Token is the bearer token used for gateway requests.
	Token string
	// Timeout is the per-request timeout. Defaults to 15s.
	Timeout time.Duration
	// RetryAttempts bounds attempts per logical call, including the first.
	RetryAttempts int
	// RetryBackoffBase is the initial backoff between attempts.
	RetryBackoffBase time.Duration
	// RetryBackoffMax caps the backoff between attempts.
	RetryBackoffMax time.Duration
}

// HTTPGateway is the production gateway transport. Transient failures
// (timeouts, 408/429/5xx, refused connections) are retried with exponential
// backoff and jitter; the reconciliation engine above performs exactly one
// logical attempt per call.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client

	retryAttempts    int
	retryBackoffBase time.Duration
	retryBackoffMax  time.Duration

	sleep  func(context.Context, time.Duration) error
	jitter func(time.Duration) time.Duration
}

// NewHTTPGateway creates a gateway client.
func NewHTTPGateway(cfg HTTPConfig) (*HTTPGateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("gateway: BaseURL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	backoffBase := cfg.RetryBackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultRetryBackoffBase
	}
	backoffMax := cfg.RetryBackoffMax
	if backoffMax <= 0 {
		backoffMax = defaultRetryBackoffMax
	}
	if backoffMax < backoffBase {
		backoffMax = backoffBase
	}

	return &HTTPGateway{
		baseURL:          baseURL,
		token:            strings.TrimSpace(cfg.Token),
		client:           &http.Client{Timeout: timeout},
		retryAttempts:    attempts,
		retryBackoffBase: backoffBase,
		retryBackoffMax:  backoffMax,
		sleep:            sleepWithContext,
		jitter:           cryptoJitter,
	}, nil
}

type scopesResponse struct {
	Scopes []string `json:"scopes"`
}

type createClientRequest struct {
	Name string `json:"name"`
}

type createClientResponse struct {
	ClientID string `json:"clientId"`
	Secret   string `json:"secret"`
}

// FetchScopes returns the scopes currently granted to one client.
func (g *HTTPGateway) FetchScopes(ctx context.Context, environment, clientID string) ([]string, error) {
	var result scopesResponse
	err := g.do(ctx, http.MethodGet, g.scopesPath(environment, clientID), nil, &result)
	if err != nil {
		return nil, opError(OpFetchScopes, environment, clientID, "", err)
	}
	return result.Scopes, nil
}

// AddScope grants one scope to one client. Granting an already-held scope
// succeeds.
func (g *HTTPGateway) AddScope(ctx context.Context, environment, clientID, scope string) error {
	path := g.scopesPath(environment, clientID) + "/" + url.PathEscape(scope)
	if err := g.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return opError(OpAddScope, environment, clientID, scope, err)
	}
	return nil
}

// DeleteScope revokes one scope from one client. Revoking an absent scope
// succeeds.
func (g *HTTPGateway) DeleteScope(ctx context.Context, environment, clientID, scope string) error {
	path := g.scopesPath(environment, clientID) + "/" + url.PathEscape(scope)
	if err := g.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return opError(OpDeleteScope, environment, clientID, scope, err)
	}
	return nil
}

// CreateClient mints a new client in one environment and returns the
// gateway-issued client ID and secret.
func (g *HTTPGateway) CreateClient(ctx context.Context, environment, name string) (string, string, error) {
	var result createClientResponse
	path := fmt.Sprintf("%s/admin/v1/environments/%s/clients", g.baseURL, url.PathEscape(environment))
	err := g.do(ctx, http.MethodPost, path, createClientRequest{Name: strings.TrimSpace(name)}, &result)
	if err != nil {
		return "", "", opError(OpCreateClient, environment, "", "", err)
	}
	if strings.TrimSpace(result.ClientID) == "" {
		return "", "", opError(OpCreateClient, environment, "", "", fmt.Errorf("gateway returned empty client id"))
	}
	return result.ClientID, result.Secret, nil
}

// DeleteClient removes one client and all its grants.
func (g *HTTPGateway) DeleteClient(ctx context.Context, environment, clientID string) error {
	path := fmt.Sprintf("%s/admin/v1/environments/%s/clients/%s",
		g.baseURL, url.PathEscape(environment), url.PathEscape(clientID))
	if err := g.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return opError(OpDeleteClient, environment, clientID, "", err)
	}
	return nil
}

func (g *HTTPGateway) scopesPath(environment, clientID string) string {
	return fmt.Sprintf("%s/admin/v1/environments/%s/clients/%s/scopes",
		g.baseURL, url.PathEscape(environment), url.PathEscape(clientID))
}

func (g *HTTPGateway) do(ctx context.Context, method, rawURL string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		payload = encoded
	}

	var lastErr error
	for attempt := 1; attempt <= g.retryAttempts; attempt++ {
		lastErr = g.doOnce(ctx, method, rawURL, payload, out)
		if lastErr == nil {
			return nil
		}
		if attempt == g.retryAttempts || !isRetryable(lastErr) {
			return lastErr
		}
		if sleepErr := g.sleep(ctx, g.retryDelay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return lastErr
}

func (g *HTTPGateway) doOnce(ctx context.Context, method, rawURL string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("building gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &statusError{Status: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}

func (g *HTTPGateway) retryDelay(attempt int) time.Duration {
	scaled := float64(g.retryBackoffBase) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(scaled)
	if delay > g.retryBackoffMax || delay < 0 {
		delay = g.retryBackoffMax
	}

	jitter := g.jitter(delay / 2)
	if jitter < 0 {
		jitter = 0
	}
	return delay + jitter
}

// statusError carries a non-2xx gateway response status.
type statusError struct {
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var status *statusError
	if errors.As(err, &status) {
		switch status.Status {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return status.Status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "no such host"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	value, err := rand.Int(rand.Reader, big.NewInt(max.Nanoseconds()+1))
	if err != nil {
		return 0
	}
	return time.Duration(value.Int64())
}
