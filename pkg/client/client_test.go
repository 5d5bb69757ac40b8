package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func problemJSON(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func applicationResource(id, name string) types.Resource[types.Application] {
	return types.Resource[types.Application]{
		Kind:       "Application",
		APIVersion: "apps/v1",
		Metadata:   types.Metadata{ID: id, CreatedAt: time.Now().UTC()},
		Spec:       types.Application{Name: name, TeamID: "team-1"},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires base url", func(t *testing.T) {
		t.Parallel()
		c, err := New(Config{})
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "BaseURL is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, Config{BaseURL: " http://example.invalid/ "})
		assert.Equal(t, "http://example.invalid", c.baseURL)
		assert.Equal(t, defaultTimeout, c.cfg.Timeout)
		assert.Equal(t, defaultMaxRetries, c.cfg.MaxRetries)
	})

	t.Run("uses custom values", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, Config{
			BaseURL:    "http://example.invalid",
			Token:      "token",
			Timeout:    5 * time.Second,
			MaxRetries: 9,
		})
		assert.Equal(t, "token", c.cfg.Token)
		assert.Equal(t, 5*time.Second, c.cfg.Timeout)
		assert.Equal(t, 9, c.cfg.MaxRetries)
	})
}

func TestListApplications(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/apps/v1/applications", r.URL.Path)
		assert.Equal(t, "team-1", r.URL.Query().Get("team"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "3", r.URL.Query().Get("offset"))
		respondJSON(w, http.StatusOK, types.ResourceList[types.Application]{
			Kind:       "ApplicationList",
			APIVersion: "apps/v1",
			Metadata:   types.ListMetadata{Total: 1, Limit: 50, Offset: 3},
			Items:      []types.Resource[types.Application]{applicationResource("app-1", "orders")},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	resp, err := c.ListApplications(context.Background(), ListApplicationsOptions{Team: "team-1", Limit: 50, Offset: 3})

	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "app-1", resp.Items[0].Metadata.ID)
}

func TestCreateApplication_SendsToken(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req types.CreateApplicationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "orders", req.Name)

		respondJSON(w, http.StatusCreated, applicationResource("app-1", req.Name))
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL, Token: "secret-token"})
	resp, err := c.CreateApplication(context.Background(), types.CreateApplicationRequest{
		Name:   "orders",
		TeamID: "team-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "app-1", resp.Metadata.ID)
}

func TestGetApplication_NotFound(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		problemJSON(w, http.StatusNotFound, "resource not found")
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	resp, err := c.GetApplication(context.Background(), "missing")

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetApplication_RequiresID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, Config{BaseURL: "http://example.invalid"})
	_, err := c.GetApplication(context.Background(), "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application id is required")
}

func TestIssueCredential_DecodesSecret(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/v1/applications/app-1/credentials", r.URL.Path)
		respondJSON(w, http.StatusCreated, types.Resource[types.Credential]{
			Kind:       "Credential",
			APIVersion: "apps/v1",
			Metadata:   types.Metadata{ID: "cred-1"},
			Spec: types.Credential{
				Environment: "test",
				ClientID:    "client-1",
				Secret:      "one-time-secret",
			},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	resp, err := c.IssueCredential(context.Background(), "app-1", types.CreateCredentialRequest{Environment: "test"})

	require.NoError(t, err)
	assert.Equal(t, "one-time-secret", resp.Spec.Secret)
	assert.Equal(t, "client-1", resp.Spec.ClientID)
}

func TestFixScopes_ReturnsReport(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/apps/v1/applications/app-1/scopes/fix", r.URL.Path)
		respondJSON(w, http.StatusOK, types.FixReport{
			ApplicationID: "app-1",
			Results: []types.CredentialFix{
				{Environment: "test", ClientID: "client-1", Added: []string{"pets:read"}},
			},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	report, err := c.FixScopes(context.Background(), "app-1")

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, []string{"pets:read"}, report.Results[0].Added)
}

func TestApproveAccessRequest_SendsNote(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/v1/access-requests/req-1/approve", r.URL.Path)

		var req types.DecideAccessRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "looks fine", req.Note)

		respondJSON(w, http.StatusOK, types.Resource[types.AccessRequest]{
			Kind:       "AccessRequest",
			APIVersion: "apps/v1",
			Metadata:   types.Metadata{ID: "req-1"},
			Spec:       types.AccessRequest{State: types.AccessRequestStateApproved},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL})
	resp, err := c.ApproveAccessRequest(context.Background(), "req-1", types.DecideAccessRequest{Note: "looks fine"})

	require.NoError(t, err)
	assert.Equal(t, types.AccessRequestStateApproved, resp.Spec.State)
}

func TestRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			problemJSON(w, http.StatusBadGateway, "gateway unavailable")
			return
		}
		respondJSON(w, http.StatusOK, applicationResource("app-1", "orders"))
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL, MaxRetries: 3})
	resp, err := c.GetApplication(context.Background(), "app-1")

	require.NoError(t, err)
	assert.Equal(t, "app-1", resp.Metadata.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		problemJSON(w, http.StatusConflict, "credential limit reached")
	}))
	defer ts.Close()

	c := newTestClient(t, Config{BaseURL: ts.URL, MaxRetries: 3})
	_, err := c.IssueCredential(context.Background(), "app-1", types.CreateCredentialRequest{Environment: "test"})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "credential limit reached")
}

func TestTokenRefresh(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer refreshed", r.Header.Get("Authorization"))
		respondJSON(w, http.StatusOK, types.ResourceList[types.Team]{Kind: "TeamList", APIVersion: "apps/v1"})
	}))
	defer ts.Close()

	c := newTestClient(t, Config{
		BaseURL: ts.URL,
		TokenRefresh: func(ctx context.Context) (string, error) {
			return "refreshed", nil
		},
	})
	_, err := c.ListTeams(context.Background(), ListOptions{})
	require.NoError(t, err)
}
