package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func TestRespondJSON_WritesPayloadAndContentType(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondJSON(resp, http.StatusCreated, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "world", body["hello"])
}

func TestRespondProblem_IncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/apps/v1/applications/missing", nil)
	req = req.WithContext(context.WithValue(req.Context(), requestIDKey, "req-123"))
	resp := httptest.NewRecorder()

	RespondProblem(resp, req, http.StatusNotFound, "application not found")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "application/problem+json")

	var problem types.Problem
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &problem))
	assert.Equal(t, "Not Found", problem.Title)
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "application not found", problem.Detail)
	assert.Equal(t, "/apps/v1/applications/missing", problem.Instance)
	assert.Equal(t, "req-123", problem.RequestID)
}

func TestDecodeJSON_RejectsUnknownFieldsAndTrailingContent(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"app"}`))
		var out payload
		require.NoError(t, DecodeJSON(req, &out))
		assert.Equal(t, "app", out.Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"app","extra":1}`))
		var out payload
		assert.Error(t, DecodeJSON(req, &out))
	})

	t.Run("trailing content", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"app"}{"name":"again"}`))
		var out payload
		assert.Error(t, DecodeJSON(req, &out))
	})
}
