package server

import (
	"time"

	"github.com/apiforge-io/apiforge-apps/internal/engine"
	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func applicationSpec(app model.Application, links []model.APILink, credentials []model.Credential) types.Application {
	spec := types.Application{
		Name:        app.Name,
		Description: app.Description,
		TeamID:      app.TeamID,
		CreatedBy:   app.CreatedBy,
	}
	if app.DeletedAt != nil {
		spec.DeletedAt = timeString(*app.DeletedAt)
	}
	for _, link := range links {
		spec.APIs = append(spec.APIs, apiLinkSpec(link))
	}
	for _, credential := range credentials {
		spec.Credentials = append(spec.Credentials, types.Credential{
			Environment: credential.Environment,
			ClientID:    credential.ClientID,
		})
	}
	return spec
}

func applicationResource(app model.Application, links []model.APILink, credentials []model.Credential) types.Resource[types.Application] {
	return types.Resource[types.Application]{
		Kind:       "Application",
		APIVersion: apiVersion,
		Metadata: types.Metadata{
			ID:        app.ID,
			CreatedAt: app.CreatedAt,
			UpdatedAt: app.UpdatedAt,
		},
		Spec: applicationSpec(app, links, credentials),
	}
}

func apiLinkSpec(link model.APILink) types.APILink {
	spec := types.APILink{
		APIID:    link.APIID,
		LinkedBy: link.LinkedBy,
	}
	for _, endpoint := range link.Endpoints {
		spec.Endpoints = append(spec.Endpoints, types.APIEndpoint{
			Method: endpoint.Method,
			Path:   endpoint.Path,
		})
	}
	return spec
}

func apiLinkResource(link model.APILink) types.Resource[types.APILink] {
	return types.Resource[types.APILink]{
		Kind:       "APILink",
		APIVersion: apiVersion,
		Metadata: types.Metadata{
			ID:        link.APIID,
			CreatedAt: link.CreatedAt,
			UpdatedAt: link.UpdatedAt,
		},
		Spec: apiLinkSpec(link),
	}
}

func credentialResource(credential model.Credential, secret string) types.Resource[types.Credential] {
	return types.Resource[types.Credential]{
		Kind:       "Credential",
		APIVersion: apiVersion,
		Metadata: types.Metadata{
			ID:        credential.ID,
			CreatedAt: credential.CreatedAt,
			UpdatedAt: credential.UpdatedAt,
		},
		Spec: types.Credential{
			Environment: credential.Environment,
			ClientID:    credential.ClientID,
			Secret:      secret,
		},
	}
}

func accessRequestResource(request model.AccessRequest) types.Resource[types.AccessRequest] {
	spec := types.AccessRequest{
		ApplicationID: request.ApplicationID,
		Scopes:        request.Scopes,
		Environments:  request.Environments,
		Reason:        request.Reason,
		State:         request.State,
		RequestedBy:   request.RequestedBy,
		DecidedBy:     request.DecidedBy,
		DecisionNote:  request.DecisionNote,
	}
	if request.DecidedAt != nil {
		spec.DecidedAt = timeString(*request.DecidedAt)
	}
	return types.Resource[types.AccessRequest]{
		Kind:       "AccessRequest",
		APIVersion: apiVersion,
		Metadata: types.Metadata{
			ID:        request.ID,
			CreatedAt: request.CreatedAt,
			UpdatedAt: request.UpdatedAt,
		},
		Spec: spec,
	}
}

func teamResource(team model.Team) types.Resource[types.Team] {
	return types.Resource[types.Team]{
		Kind:       "Team",
		APIVersion: apiVersion,
		Metadata: types.Metadata{
			ID:        team.ID,
			CreatedAt: team.CreatedAt,
			UpdatedAt: team.UpdatedAt,
		},
		Spec: types.Team{
			Name:        team.Name,
			Description: team.Description,
		},
	}
}

func eventResource(event events.Event) types.Resource[types.Event] {
	spec := types.Event{
		Source:  event.Source,
		Type:    event.Type,
		Subject: event.Subject,
	}
	if len(event.Data) > 0 {
		spec.Data = event.Data
	}
	if event.SentAt != nil {
		spec.SentAt = timeString(*event.SentAt)
	}
	return types.Resource[types.Event]{
		Kind:       "Event",
		APIVersion: apiVersion,
		Metadata: types.Metadata{
			ID:        event.ID,
			CreatedAt: event.CreatedAt,
		},
		Spec: spec,
	}
}

func fixReport(report *engine.Report) types.FixReport {
	out := types.FixReport{
		ApplicationID: report.ApplicationID,
		Results:       []types.CredentialFix{},
		StartedAt:     timeString(report.StartedAt),
		CompletedAt:   timeString(report.CompletedAt),
	}
	for _, result := range report.Results {
		out.Results = append(out.Results, types.CredentialFix{
			Environment:     result.Environment,
			ClientID:        result.ClientID,
			Added:           result.Added,
			Removed:         result.Removed,
			SkippedRemovals: result.SkippedRemovals,
		})
	}
	return out
}

func scopeView(applicationID string, views []engine.CredentialScopes) types.ScopeView {
	out := types.ScopeView{
		ApplicationID: applicationID,
		Credentials:   []types.CredentialScopes{},
	}
	for _, view := range views {
		out.Credentials = append(out.Credentials, types.CredentialScopes{
			Environment: view.Environment,
			ClientID:    view.ClientID,
			Desired:     view.Desired,
			Actual:      view.Actual,
			Missing:     view.Missing,
			Surplus:     view.Surplus,
		})
	}
	return out
}
