package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process gateway used in dev mode and tests. Scope sets are
// keyed by (environment, clientID); failure hooks let tests inject faults on
// specific operations.
type Memory struct {
	mu      sync.Mutex
	clients map[string]map[string]struct{}
	secrets map[string]string

	fetchCalls  int
	addCalls    int
	deleteCalls int

	// FetchErr, AddErr, and DeleteErr, when set, decide per call whether
	// the operation fails before touching state.
	FetchErr  func(environment, clientID string) error
	AddErr    func(environment, clientID, scope string) error
	DeleteErr func(environment, clientID, scope string) error
}

// NewMemory creates an empty in-process gateway.
func NewMemory() *Memory {
	return &Memory{
		clients: make(map[string]map[string]struct{}),
		secrets: make(map[string]string),
	}
}

func clientKey(environment, clientID string) string {
	return strings.TrimSpace(environment) + "|" + strings.TrimSpace(clientID)
}

// Seed registers a client with an initial scope set, bypassing failure hooks.
func (m *Memory) Seed(environment, clientID string, scopes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	m.clients[clientKey(environment, clientID)] = set
}

// Scopes returns the current scope set of one client, sorted.
func (m *Memory) Scopes(environment, clientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.clients[clientKey(environment, clientID)]
	scopes := make([]string, 0, len(set))
	for scope := range set {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// Calls returns the number of fetch, add, and delete calls seen so far.
func (m *Memory) Calls() (fetch, add, deleted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls, m.addCalls, m.deleteCalls
}

// FetchScopes returns the scopes held by one client.
func (m *Memory) FetchScopes(ctx context.Context, environment, clientID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.fetchCalls++
	hook := m.FetchErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(environment, clientID); err != nil {
			return nil, opError(OpFetchScopes, environment, clientID, "", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.clients[clientKey(environment, clientID)]
	if !ok {
		return nil, opError(OpFetchScopes, environment, clientID, "", fmt.Errorf("unknown client"))
	}

	scopes := make([]string, 0, len(set))
	for scope := range set {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// AddScope grants one scope. Idempotent.
func (m *Memory) AddScope(ctx context.Context, environment, clientID, scope string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.addCalls++
	hook := m.AddErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(environment, clientID, scope); err != nil {
			return opError(OpAddScope, environment, clientID, scope, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.clients[clientKey(environment, clientID)]
	if !ok {
		return opError(OpAddScope, environment, clientID, scope, fmt.Errorf("unknown client"))
	}
	set[scope] = struct{}{}
	return nil
}

// DeleteScope revokes one scope. Idempotent.
func (m *Memory) DeleteScope(ctx context.Context, environment, clientID, scope string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.deleteCalls++
	hook := m.DeleteErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(environment, clientID, scope); err != nil {
			return opError(OpDeleteScope, environment, clientID, scope, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.clients[clientKey(environment, clientID)]
	if !ok {
		return opError(OpDeleteScope, environment, clientID, scope, fmt.Errorf("unknown client"))
	}
	delete(set, scope)
	return nil
}

// CreateClient mints a client with a random ID and secret.
func (m *Memory) CreateClient(ctx context.Context, environment, name string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	clientID := "client-" + uuid.NewString()
	secret := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	key := clientKey(environment, clientID)
	m.clients[key] = make(map[string]struct{})
	m.secrets[key] = secret
	return clientID, secret, nil
}

// DeleteClient removes a client and its grants. Idempotent.
func (m *Memory) DeleteClient(ctx context.Context, environment, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := clientKey(environment, clientID)
	delete(m.clients, key)
	delete(m.secrets, key)
	return nil
}
