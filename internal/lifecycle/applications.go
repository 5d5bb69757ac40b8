package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/internal/store"
)

type applicationLifecyclePayload struct {
	Action string `json:"action"`
	Name   string `json:"name,omitempty"`
	TeamID string `json:"teamId,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// CreateApplication registers a new application under an existing team.
func (m *Manager) CreateApplication(ctx context.Context, app model.Application) (model.Application, error) {
	if strings.TrimSpace(app.Name) == "" {
		return model.Application{}, fmt.Errorf("application name is required: %w", ErrValidation)
	}
	if strings.TrimSpace(app.TeamID) == "" {
		return model.Application{}, fmt.Errorf("team id is required: %w", ErrValidation)
	}
	if _, err := m.store.GetTeam(ctx, app.TeamID); err != nil {
		return model.Application{}, fmt.Errorf("resolving team %q: %w", app.TeamID, err)
	}

	event, err := events.New(events.TypeApplicationLifecycle, app.Name, applicationLifecyclePayload{
		Action: "created",
		Name:   app.Name,
		TeamID: app.TeamID,
		Actor:  app.CreatedBy,
	})
	if err != nil {
		return model.Application{}, err
	}

	created, err := m.store.CreateApplication(ctx, app, &event)
	if err != nil {
		return model.Application{}, err
	}

	m.logger.Info().
		Str("application_id", created.ID).
		Str("name", created.Name).
		Msg("application created")
	return created, nil
}

// GetApplication returns one live application.
func (m *Manager) GetApplication(ctx context.Context, id string) (model.Application, error) {
	return m.store.GetApplication(ctx, id)
}

// ListApplications returns paginated live applications.
func (m *Manager) ListApplications(ctx context.Context, opts store.ListApplicationsOptions) ([]model.Application, int, error) {
	return m.store.ListApplications(ctx, opts)
}

// UpdateApplication updates name and description.
func (m *Manager) UpdateApplication(ctx context.Context, app model.Application) (model.Application, error) {
	if strings.TrimSpace(app.Name) == "" {
		return model.Application{}, fmt.Errorf("application name is required: %w", ErrValidation)
	}
	return m.store.UpdateApplication(ctx, app)
}

// DeleteApplication revokes every gateway client of the application and then
// soft-deletes it. Gateway revocation is fail-fast: if any client cannot be
// deleted the application stays live and the error is returned, so a retry
// picks up where this attempt stopped.
func (m *Manager) DeleteApplication(ctx context.Context, id, actor string) error {
	app, err := m.store.GetApplication(ctx, id)
	if err != nil {
		return err
	}

	credentials, err := m.store.ListCredentials(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	environments := make(map[string]struct{}, len(credentials))
	for _, credential := range credentials {
		if err := m.gateway.DeleteClient(ctx, credential.Environment, credential.ClientID); err != nil {
			return fmt.Errorf("revoking gateway client %q: %w", credential.ClientID, err)
		}
		if m.audit != nil {
			m.audit.CredentialRevoked(app.ID, credential.Environment, credential.ClientID, actor)
		}
		environments[credential.Environment] = struct{}{}
	}

	for environment := range environments {
		if _, err := m.store.DeleteCredentials(ctx, app.ID, environment, nil); err != nil {
			return fmt.Errorf("deleting credentials in %q: %w", environment, err)
		}
	}

	event, err := events.New(events.TypeApplicationLifecycle, app.ID, applicationLifecyclePayload{
		Action: "deleted",
		Name:   app.Name,
		TeamID: app.TeamID,
		Actor:  actor,
	})
	if err != nil {
		return err
	}

	if err := m.store.SoftDeleteApplication(ctx, app.ID, m.now().UTC(), &event); err != nil {
		return err
	}

	m.logger.Info().
		Str("application_id", app.ID).
		Str("name", app.Name).
		Int("credentials_revoked", len(credentials)).
		Msg("application deleted")
	return nil
}
