// Package gateway talks to the external scope-granting system. The gateway
// is the source of truth for which scopes a client currently holds; the
// registry never caches that state between reconciliation runs.
package gateway

import (
	"context"
	"fmt"
	"strings"
)

// Gateway operation names carried by GatewayOpError.
const (
	OpFetchScopes  = "fetch_scopes"
	OpAddScope     = "add_scope"
	OpDeleteScope  = "delete_scope"
	OpCreateClient = "create_client"
	OpDeleteClient = "delete_client"
)

// ScopeGateway reads and mutates the scopes held by one client. Every call
// is an independent remote operation keyed by (environment, clientID).
type ScopeGateway interface {
	FetchScopes(ctx context.Context, environment, clientID string) ([]string, error)
	AddScope(ctx context.Context, environment, clientID, scope string) error
	DeleteScope(ctx context.Context, environment, clientID, scope string) error
}

// ClientIssuer manages the lifecycle of gateway clients. Client IDs and
// secrets are minted by the gateway, never locally.
type ClientIssuer interface {
	CreateClient(ctx context.Context, environment, name string) (clientID, secret string, err error)
	DeleteClient(ctx context.Context, environment, clientID string) error
}

// Client is the full gateway surface used by the registry.
type Client interface {
	ScopeGateway
	ClientIssuer
}

// GatewayOpError identifies which remote operation failed and on what.
type GatewayOpError struct {
	Op          string
	Environment string
	ClientID    string
	Scope       string
	Err         error
}

func (e *GatewayOpError) Error() string {
	if e == nil {
		return "gateway operation failed"
	}

	target := fmt.Sprintf("%s/%s", e.Environment, e.ClientID)
	if strings.TrimSpace(e.Scope) != "" {
		target += " scope " + e.Scope
	}
	if e.Err == nil {
		return fmt.Sprintf("gateway %s on %s failed", e.Op, target)
	}
	return fmt.Sprintf("gateway %s on %s: %v", e.Op, target, e.Err)
}

func (e *GatewayOpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func opError(op, environment, clientID, scope string, err error) error {
	return &GatewayOpError{
		Op:          op,
		Environment: environment,
		ClientID:    clientID,
		Scope:       scope,
		Err:         err,
	}
}
