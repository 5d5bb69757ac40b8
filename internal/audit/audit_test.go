package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactSensitiveText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty",
			input: "   ",
			want:  "",
		},
		{
			name:  "bearer token",
			input: "request failed: Bearer eyJhbGciOiJSUzI1NiJ9.payload.sig rejected",
			want:  "request failed: Bearer [REDACTED] rejected",
		},
		{
			name:  "key value secret",
			input: "config error: password=hunter2, retry later",
			want:  "config error: password=[REDACTED], retry later",
		},
		{
			name:  "colon separated token",
			input: "token: abc123",
			want:  "token: [REDACTED]",
		},
		{
			name:  "plain text untouched",
			input: "gateway returned 503",
			want:  "gateway returned 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactSensitiveText(tt.input))
		})
	}
}

func TestLogger_ScopeGranted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.ScopeGranted("app-1", "prod", "client-1", "pets:read")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "apps.scope.granted", entry["event"])
	assert.Equal(t, "app-1", entry["application_id"])
	assert.Equal(t, "prod", entry["environment"])
	assert.Equal(t, "client-1", entry["client_id"])
	assert.Equal(t, "pets:read", entry["scope"])
	assert.Equal(t, "audit", entry["component"])
}

func TestLogger_AccessRequestDecidedRedactsNote(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.AccessRequestDecided("req-1", "app-1", "approved", "bob", "shared secret=abc123 with requester")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shared secret=[REDACTED] with requester", entry["note"])
}

func TestLogger_NilReceiverIsSafe(t *testing.T) {
	var logger *Logger
	logger.ScopeGranted("app-1", "prod", "client-1", "pets:read")
	logger.ScopeRevoked("app-1", "prod", "client-1", "pets:read")
	logger.CredentialIssued("app-1", "prod", "client-1", "alice")
	logger.CredentialRevoked("app-1", "prod", "client-1", "alice")
	logger.AccessRequestDecided("req-1", "app-1", "approved", "bob", "")
}
