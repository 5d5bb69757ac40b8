package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process catalog used in dev mode and tests.
type Memory struct {
	mu   sync.RWMutex
	apis map[string]API

	// GetAPIErr, when set, is returned by every GetAPI call. Used to
	// exercise hard catalog failures.
	GetAPIErr error
}

// NewMemory creates an empty in-process catalog.
func NewMemory() *Memory {
	return &Memory{apis: make(map[string]API)}
}

// Put registers or replaces one API definition.
func (m *Memory) Put(api API) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apis[strings.TrimSpace(api.ID)] = api
}

// Remove deletes one API definition.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.apis, strings.TrimSpace(id))
}

// GetAPI returns the stored API detail or ErrAPINotFound.
func (m *Memory) GetAPI(ctx context.Context, id string) (*API, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.GetAPIErr != nil {
		return nil, m.GetAPIErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	api, ok := m.apis[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("catalog api %q: %w", id, ErrAPINotFound)
	}

	copied := api
	copied.Endpoints = append([]Endpoint(nil), api.Endpoints...)
	return &copied, nil
}
