package store

import (
	"context"
	"time"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

// MockStore implements the Store interface for testing. Each method delegates
// to its Fn field; nil fields panic when called, which means the test hit an
// unexpected code path.
type MockStore struct {
	PingFn func(ctx context.Context) error

	CreateTeamFn func(ctx context.Context, team model.Team) (model.Team, error)
	GetTeamFn    func(ctx context.Context, id string) (model.Team, error)
	ListTeamsFn  func(ctx context.Context, limit, offset int) ([]model.Team, int, error)

	CreateApplicationFn     func(ctx context.Context, app model.Application, event *events.Event) (model.Application, error)
	GetApplicationFn        func(ctx context.Context, id string) (model.Application, error)
	ListApplicationsFn      func(ctx context.Context, opts ListApplicationsOptions) ([]model.Application, int, error)
	UpdateApplicationFn     func(ctx context.Context, app model.Application) (model.Application, error)
	SoftDeleteApplicationFn func(ctx context.Context, id string, deletedAt time.Time, event *events.Event) error

	CreateCredentialFn  func(ctx context.Context, credential model.Credential, event *events.Event) (model.Credential, error)
	ListCredentialsFn   func(ctx context.Context, applicationID string) ([]model.Credential, error)
	DeleteCredentialsFn func(ctx context.Context, applicationID, environment string, event *events.Event) ([]model.Credential, error)

	UpsertAPILinkFn func(ctx context.Context, link model.APILink, event *events.Event) (model.APILink, error)
	DeleteAPILinkFn func(ctx context.Context, applicationID, apiID string, event *events.Event) error
	ListAPILinksFn  func(ctx context.Context, applicationID string) ([]model.APILink, error)

	CreateAccessRequestFn        func(ctx context.Context, request model.AccessRequest) (model.AccessRequest, error)
	GetAccessRequestFn           func(ctx context.Context, id string) (model.AccessRequest, error)
	UpdateAccessRequestFn        func(ctx context.Context, request model.AccessRequest, event *events.Event) (model.AccessRequest, error)
	ListAccessRequestsFn         func(ctx context.Context, opts ListAccessRequestsOptions) ([]model.AccessRequest, int, error)
	ListApprovedAccessRequestsFn func(ctx context.Context, applicationID string) ([]model.AccessRequest, error)

	AppendEventFn           func(ctx context.Context, event events.Event) error
	ListUnpublishedEventsFn func(ctx context.Context, limit int) ([]events.Event, error)
	MarkEventPublishedFn    func(ctx context.Context, id string, sentAt time.Time) error
	ListRecentEventsFn      func(ctx context.Context, limit, offset int) ([]events.Event, int, error)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingFn(ctx)
}

func (m *MockStore) CreateTeam(ctx context.Context, team model.Team) (model.Team, error) {
	return m.CreateTeamFn(ctx, team)
}

func (m *MockStore) GetTeam(ctx context.Context, id string) (model.Team, error) {
	return m.GetTeamFn(ctx, id)
}

func (m *MockStore) ListTeams(ctx context.Context, limit, offset int) ([]model.Team, int, error) {
	return m.ListTeamsFn(ctx, limit, offset)
}

func (m *MockStore) CreateApplication(ctx context.Context, app model.Application, event *events.Event) (model.Application, error) {
	return m.CreateApplicationFn(ctx, app, event)
}

func (m *MockStore) GetApplication(ctx context.Context, id string) (model.Application, error) {
	return m.GetApplicationFn(ctx, id)
}

func (m *MockStore) ListApplications(ctx context.Context, opts ListApplicationsOptions) ([]model.Application, int, error) {
	return m.ListApplicationsFn(ctx, opts)
}

func (m *MockStore) UpdateApplication(ctx context.Context, app model.Application) (model.Application, error) {
	return m.UpdateApplicationFn(ctx, app)
}

func (m *MockStore) SoftDeleteApplication(ctx context.Context, id string, deletedAt time.Time, event *events.Event) error {
	return m.SoftDeleteApplicationFn(ctx, id, deletedAt, event)
}

func (m *MockStore) CreateCredential(ctx context.Context, credential model.Credential, event *events.Event) (model.Credential, error) {
	return m.CreateCredentialFn(ctx, credential, event)
}

func (m *MockStore) ListCredentials(ctx context.Context, applicationID string) ([]model.Credential, error) {
	return m.ListCredentialsFn(ctx, applicationID)
}

func (m *MockStore) DeleteCredentials(ctx context.Context, applicationID, environment string, event *events.Event) ([]model.Credential, error) {
	return m.DeleteCredentialsFn(ctx, applicationID, environment, event)
}

func (m *MockStore) UpsertAPILink(ctx context.Context, link model.APILink, event *events.Event) (model.APILink, error) {
	return m.UpsertAPILinkFn(ctx, link, event)
}

func (m *MockStore) DeleteAPILink(ctx context.Context, applicationID, apiID string, event *events.Event) error {
	return m.DeleteAPILinkFn(ctx, applicationID, apiID, event)
}

func (m *MockStore) ListAPILinks(ctx context.Context, applicationID string) ([]model.APILink, error) {
	return m.ListAPILinksFn(ctx, applicationID)
}

func (m *MockStore) CreateAccessRequest(ctx context.Context, request model.AccessRequest) (model.AccessRequest, error) {
	return m.CreateAccessRequestFn(ctx, request)
}

func (m *MockStore) GetAccessRequest(ctx context.Context, id string) (model.AccessRequest, error) {
	return m.GetAccessRequestFn(ctx, id)
}

func (m *MockStore) UpdateAccessRequest(ctx context.Context, request model.AccessRequest, event *events.Event) (model.AccessRequest, error) {
	return m.UpdateAccessRequestFn(ctx, request, event)
}

func (m *MockStore) ListAccessRequests(ctx context.Context, opts ListAccessRequestsOptions) ([]model.AccessRequest, int, error) {
	return m.ListAccessRequestsFn(ctx, opts)
}

func (m *MockStore) ListApprovedAccessRequests(ctx context.Context, applicationID string) ([]model.AccessRequest, error) {
	return m.ListApprovedAccessRequestsFn(ctx, applicationID)
}

func (m *MockStore) AppendEvent(ctx context.Context, event events.Event) error {
	return m.AppendEventFn(ctx, event)
}

func (m *MockStore) ListUnpublishedEvents(ctx context.Context, limit int) ([]events.Event, error) {
	return m.ListUnpublishedEventsFn(ctx, limit)
}

func (m *MockStore) MarkEventPublished(ctx context.Context, id string, sentAt time.Time) error {
	return m.MarkEventPublishedFn(ctx, id, sentAt)
}

func (m *MockStore) ListRecentEvents(ctx context.Context, limit, offset int) ([]events.Event, int, error) {
	return m.ListRecentEventsFn(ctx, limit, offset)
}

var _ Store = (*MockStore)(nil)
var _ Store = (*PostgresStore)(nil)
