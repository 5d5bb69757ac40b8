// Package store defines persistence contracts for the application registry.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("conflict")
	// ErrCredentialLimit indicates the per-environment credential cap is reached.
	ErrCredentialLimit = errors.New("credential limit reached for environment")
)

// ListApplicationsOptions filters and paginates application listings.
type ListApplicationsOptions struct {
	TeamID string
	Limit  int
	Offset int
}

// ListAccessRequestsOptions filters and paginates access request listings.
type ListAccessRequestsOptions struct {
	ApplicationID string
	State         string
	Limit         int
	Offset        int
}

// Store defines persistence methods needed by the registry. Events passed
// alongside a mutation are written to the outbox in the same transaction.
type Store interface {
	// Ping checks DB connectivity for readiness probes.
	Ping(ctx context.Context) error

	CreateTeam(ctx context.Context, team model.Team) (model.Team, error)
	GetTeam(ctx context.Context, id string) (model.Team, error)
	ListTeams(ctx context.Context, limit, offset int) ([]model.Team, int, error)

	CreateApplication(ctx context.Context, app model.Application, event *events.Event) (model.Application, error)
	GetApplication(ctx context.Context, id string) (model.Application, error)
	ListApplications(ctx context.Context, opts ListApplicationsOptions) ([]model.Application, int, error)
	UpdateApplication(ctx context.Context, app model.Application) (model.Application, error)
	SoftDeleteApplication(ctx context.Context, id string, deletedAt time.Time, event *events.Event) error

	// CreateCredential enforces the per-environment cap transactionally and
	// returns ErrCredentialLimit when it is reached.
	CreateCredential(ctx context.Context, credential model.Credential, event *events.Event) (model.Credential, error)
	ListCredentials(ctx context.Context, applicationID string) ([]model.Credential, error)
	DeleteCredentials(ctx context.Context, applicationID, environment string, event *events.Event) ([]model.Credential, error)

	UpsertAPILink(ctx context.Context, link model.APILink, event *events.Event) (model.APILink, error)
	DeleteAPILink(ctx context.Context, applicationID, apiID string, event *events.Event) error
	ListAPILinks(ctx context.Context, applicationID string) ([]model.APILink, error)

	CreateAccessRequest(ctx context.Context, request model.AccessRequest) (model.AccessRequest, error)
	GetAccessRequest(ctx context.Context, id string) (model.AccessRequest, error)
	UpdateAccessRequest(ctx context.Context, request model.AccessRequest, event *events.Event) (model.AccessRequest, error)
	ListAccessRequests(ctx context.Context, opts ListAccessRequestsOptions) ([]model.AccessRequest, int, error)
	ListApprovedAccessRequests(ctx context.Context, applicationID string) ([]model.AccessRequest, error)

	AppendEvent(ctx context.Context, event events.Event) error
	ListUnpublishedEvents(ctx context.Context, limit int) ([]events.Event, error)
	MarkEventPublished(ctx context.Context, id string, sentAt time.Time) error
	ListRecentEvents(ctx context.Context, limit, offset int) ([]events.Event, int, error)
}
