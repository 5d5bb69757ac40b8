package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPConfig configures the HTTP catalog client.
type HTTPConfig struct {
	// BaseURL is the root URL of the catalog API.
	BaseURL string
	// Token is the bearer token used for catalog requests.
	Token string
	// Timeout is the per-request timeout. Defaults to 15s.
	Timeout time.Duration
}

// HTTPCatalog reads API definitions from the catalog service.
type HTTPCatalog struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPCatalog creates a catalog client.
func NewHTTPCatalog(cfg HTTPConfig) (*HTTPCatalog, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("catalog: BaseURL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &HTTPCatalog{
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// GetAPI fetches one API detail by ID.
func (c *HTTPCatalog) GetAPI(ctx context.Context, id string) (*API, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrAPINotFound
	}

	endpoint := fmt.Sprintf("%s/catalog/v1/apis/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog api %q: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("catalog api %q: %w", id, ErrAPINotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching catalog api %q: unexpected status %d", id, resp.StatusCode)
	}

	var detail API
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("decoding catalog api %q: %w", id, err)
	}
	if strings.TrimSpace(detail.ID) == "" {
		detail.ID = id
	}

	return &detail, nil
}
