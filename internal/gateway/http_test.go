package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, baseURL string) *HTTPGateway {
	t.Helper()

	gw, err := NewHTTPGateway(HTTPConfig{
		BaseURL:          baseURL,
		Token:            "gw-token",
		RetryAttempts:    3,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffMax:  time.Millisecond,
	})
	require.NoError(t, err)
	gw.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	gw.jitter = func(time.Duration) time.Duration { return 0 }
	return gw
}

func TestHTTPGateway_FetchScopes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/admin/v1/environments/test/clients/client-1/scopes", r.URL.Path)
		assert.Equal(t, "Bearer gw-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(scopesResponse{Scopes: []string{"pets:read", "pets:write"}})
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	scopes, err := gw.FetchScopes(context.Background(), "test", "client-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pets:read", "pets:write"}, scopes)
}

func TestHTTPGateway_AddAndDeleteScope(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	ctx := context.Background()

	require.NoError(t, gw.AddScope(ctx, "test", "client-1", "pets:read"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/admin/v1/environments/test/clients/client-1/scopes/pets:read", gotPath)

	require.NoError(t, gw.DeleteScope(ctx, "test", "client-1", "pets:read"))
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestHTTPGateway_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(scopesResponse{Scopes: []string{"pets:read"}})
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	scopes, err := gw.FetchScopes(context.Background(), "test", "client-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pets:read"}, scopes)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPGateway_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	_, err := gw.FetchScopes(context.Background(), "test", "client-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var opErr *GatewayOpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpFetchScopes, opErr.Op)
	assert.Equal(t, "test", opErr.Environment)
	assert.Equal(t, "client-1", opErr.ClientID)
}

func TestHTTPGateway_CreateClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/v1/environments/prod/clients", r.URL.Path)

		var req createClientRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "billing-app", req.Name)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createClientResponse{ClientID: "client-77", Secret: "s3cret"})
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	clientID, secret, err := gw.CreateClient(context.Background(), "prod", "billing-app")
	require.NoError(t, err)
	assert.Equal(t, "client-77", clientID)
	assert.Equal(t, "s3cret", secret)
}

func TestHTTPGateway_CreateClientRejectsEmptyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(createClientResponse{})
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	_, _, err := gw.CreateClient(context.Background(), "prod", "billing-app")
	var opErr *GatewayOpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpCreateClient, opErr.Op)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&statusError{Status: http.StatusBadGateway}))
	assert.True(t, isRetryable(&statusError{Status: http.StatusTooManyRequests}))
	assert.True(t, isRetryable(&statusError{Status: http.StatusRequestTimeout}))
	assert.False(t, isRetryable(&statusError{Status: http.StatusNotFound}))
	assert.False(t, isRetryable(&statusError{Status: http.StatusConflict}))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(nil))
	assert.True(t, isRetryable(errors.New("dial tcp: connection refused")))
}

func TestGatewayOpError_Message(t *testing.T) {
	err := opError(OpAddScope, "prod", "client-1", "pets:write", errors.New("boom"))
	assert.EqualError(t, err, "gateway add_scope on prod/client-1 scope pets:write: boom")
	assert.EqualError(t, errors.Unwrap(err), "boom")
}
