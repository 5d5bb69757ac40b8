package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ScopeLifecycle(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	clientID, secret, err := mem.CreateClient(ctx, "test", "billing-app")
	require.NoError(t, err)
	assert.NotEmpty(t, clientID)
	assert.NotEmpty(t, secret)

	require.NoError(t, mem.AddScope(ctx, "test", clientID, "pets:read"))
	require.NoError(t, mem.AddScope(ctx, "test", clientID, "pets:read"))
	require.NoError(t, mem.AddScope(ctx, "test", clientID, "pets:write"))

	scopes, err := mem.FetchScopes(ctx, "test", clientID)
	require.NoError(t, err)
	assert.Equal(t, []string{"pets:read", "pets:write"}, scopes)

	require.NoError(t, mem.DeleteScope(ctx, "test", clientID, "pets:write"))
	require.NoError(t, mem.DeleteScope(ctx, "test", clientID, "pets:write"))
	assert.Equal(t, []string{"pets:read"}, mem.Scopes("test", clientID))

	require.NoError(t, mem.DeleteClient(ctx, "test", clientID))
	_, err = mem.FetchScopes(ctx, "test", clientID)
	var opErr *GatewayOpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpFetchScopes, opErr.Op)
}

func TestMemory_UnknownClient(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	var opErr *GatewayOpError

	_, err := mem.FetchScopes(ctx, "test", "ghost")
	require.ErrorAs(t, err, &opErr)

	err = mem.AddScope(ctx, "test", "ghost", "pets:read")
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpAddScope, opErr.Op)
}

func TestMemory_FailureHooks(t *testing.T) {
	mem := NewMemory()
	mem.Seed("test", "client-1", "pets:read")

	boom := errors.New("gateway down")
	mem.AddErr = func(environment, clientID, scope string) error {
		if scope == "pets:write" {
			return boom
		}
		return nil
	}

	ctx := context.Background()
	require.NoError(t, mem.AddScope(ctx, "test", "client-1", "pets:admin"))

	err := mem.AddScope(ctx, "test", "client-1", "pets:write")
	require.ErrorIs(t, err, boom)

	// The failed call must not mutate state.
	assert.Equal(t, []string{"pets:admin", "pets:read"}, mem.Scopes("test", "client-1"))

	fetch, add, deleted := mem.Calls()
	assert.Equal(t, 0, fetch)
	assert.Equal(t, 2, add)
	assert.Equal(t, 0, deleted)
}
