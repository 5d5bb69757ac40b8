// Package catalog provides read access to the upstream API catalog. The
// registry never authors catalog entries; it only resolves endpoint scope
// requirements from them.
package catalog

import (
	"context"
	"errors"

	"github.com/apiforge-io/apiforge-apps/internal/model"
)

// ErrAPINotFound indicates the catalog has no API with the requested ID.
// Scope resolution folds this to an empty scope set rather than failing.
var ErrAPINotFound = errors.New("api not found in catalog")

// Endpoint is one published API operation with its scope requirements.
type Endpoint struct {
	Method string   `json:"method"`
	Path   string   `json:"path"`
	Scopes []string `json:"scopes,omitempty"`
}

// API is the catalog detail for one published API.
type API struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
}

// ScopesFor returns the scopes the catalog declares for one method+path pair.
func (a *API) ScopesFor(endpoint model.Endpoint) []string {
	if a == nil {
		return nil
	}

	normalized := endpoint.Normalize()
	for _, candidate := range a.Endpoints {
		key := model.Endpoint{Method: candidate.Method, Path: candidate.Path}.Normalize()
		if key == normalized {
			return candidate.Scopes
		}
	}
	return nil
}

// Catalog looks up published API definitions.
type Catalog interface {
	// GetAPI returns the catalog detail for one API. Returns ErrAPINotFound
	// when the API does not exist or is no longer published.
	GetAPI(ctx context.Context, id string) (*API, error)
}
