// Package model defines the domain types shared across the service.
package model

import (
	"sort"
	"strings"
	"time"
)

// AccessRequestState values.
const (
	AccessRequestStatePending   = "pending"
	AccessRequestStateApproved  = "approved"
	AccessRequestStateRejected  = "rejected"
	AccessRequestStateCancelled = "cancelled"
)

// MaxCredentialsPerEnvironment caps live credentials per (application, environment).
const MaxCredentialsPerEnvironment = 5

// Team groups the people that own applications.
type Team struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Application is a registered API-consuming application. Applications are
// soft-deleted only: DeletedAt marks removal while the row is retained.
type Application struct {
	ID          string
	TeamID      string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the application has been soft-deleted.
func (a Application) Deleted() bool {
	return a.DeletedAt != nil
}

// Credential binds one gateway client to an application in one environment.
// The client secret is issued by the gateway and never persisted here.
type Credential struct {
	ID            string
	ApplicationID string
	Environment   string
	ClientID      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Endpoint is one HTTP operation of a published API, identified by method
// and path. Scope requirements live in the catalog, never locally.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Normalize returns the endpoint with the method uppercased and both fields
// trimmed.
func (e Endpoint) Normalize() Endpoint {
	return Endpoint{
		Method: strings.ToUpper(strings.TrimSpace(e.Method)),
		Path:   strings.TrimSpace(e.Path),
	}
}

// NormalizeEndpoints trims and deduplicates an endpoint list, dropping
// entries without a method or path.
func NormalizeEndpoints(endpoints []Endpoint) []Endpoint {
	seen := make(map[Endpoint]struct{}, len(endpoints))
	ordered := make([]Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		normalized := endpoint.Normalize()
		if normalized.Method == "" || normalized.Path == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		ordered = append(ordered, normalized)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Path != ordered[j].Path {
			return ordered[i].Path < ordered[j].Path
		}
		return ordered[i].Method < ordered[j].Method
	})
	return ordered
}

// APILink records that an application consumes a subset of a published API's
// endpoints. Endpoints may diverge from the catalog definition over time;
// resolution against the catalog happens at reconciliation time.
type APILink struct {
	ApplicationID string
	APIID         string
	Endpoints     []Endpoint
	LinkedBy      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccessRequest asks for scopes beyond those implied by linked APIs.
// An empty Environments list targets every environment.
type AccessRequest struct {
	ID             string
	ApplicationID  string
	RequestedBy    string
	RequesterEmail string
	Reason         string
	Scopes         []string
	Environments   []string
	State          string
	DecidedBy      string
	DecisionNote   string
	DecidedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TargetsEnvironment reports whether the request's grants apply to env.
func (r AccessRequest) TargetsEnvironment(env string) bool {
	if len(r.Environments) == 0 {
		return true
	}
	env = strings.TrimSpace(env)
	for _, candidate := range r.Environments {
		if strings.TrimSpace(candidate) == env {
			return true
		}
	}
	return false
}

// Terminal reports whether the request can no longer change state.
func (r AccessRequest) Terminal() bool {
	return r.State == AccessRequestStateRejected || r.State == AccessRequestStateCancelled
}

// Environment is a deployment target for credentials. AllowScopeDeletion
// controls whether reconciliation may remove surplus scopes there.
type Environment struct {
	Name               string
	AllowScopeDeletion bool
}

// NormalizeScopes trims, deduplicates, and sorts a scope list, dropping blanks.
func NormalizeScopes(scopes []string) []string {
	unique := make(map[string]struct{}, len(scopes))
	ordered := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		normalized := strings.TrimSpace(scope)
		if normalized == "" {
			continue
		}
		if _, exists := unique[normalized]; exists {
			continue
		}
		unique[normalized] = struct{}{}
		ordered = append(ordered, normalized)
	}
	sort.Strings(ordered)
	return ordered
}
