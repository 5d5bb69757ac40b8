package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/internal/store"
)

type credentialLifecyclePayload struct {
	Action      string `json:"action"`
	Environment string `json:"environment"`
	ClientID    string `json:"clientId,omitempty"`
	Actor       string `json:"actor,omitempty"`
}

// IssueCredential mints a new gateway client for the application in one
// environment. The returned secret is shown exactly once and never persisted.
// The fresh client is reconciled immediately so it starts with the desired
// scope set.
func (m *Manager) IssueCredential(ctx context.Context, applicationID, environment, actor string) (model.Credential, string, error) {
	if !m.knownEnvironment(environment) {
		return model.Credential{}, "", fmt.Errorf("environment %q: %w", environment, ErrUnknownEnvironment)
	}

	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return model.Credential{}, "", err
	}

	// Pre-check the cap before minting a gateway client. The store enforces
	// it again transactionally; this avoids creating clients doomed to be
	// rolled back.
	existing, err := m.store.ListCredentials(ctx, app.ID)
	if err != nil {
		return model.Credential{}, "", fmt.Errorf("loading credentials: %w", err)
	}
	inEnvironment := 0
	for _, credential := range existing {
		if credential.Environment == environment {
			inEnvironment++
		}
	}
	if inEnvironment >= model.MaxCredentialsPerEnvironment {
		return model.Credential{}, "", fmt.Errorf("environment %q: %w", environment, store.ErrCredentialLimit)
	}

	clientID, secret, err := m.gateway.CreateClient(ctx, environment, app.Name)
	if err != nil {
		return model.Credential{}, "", fmt.Errorf("creating gateway client: %w", err)
	}

	event, err := events.New(events.TypeCredentialLifecycle, app.ID, credentialLifecyclePayload{
		Action:      "issued",
		Environment: environment,
		ClientID:    clientID,
		Actor:       actor,
	})
	if err != nil {
		return model.Credential{}, "", err
	}

	credential, err := m.store.CreateCredential(ctx, model.Credential{
		ApplicationID: app.ID,
		Environment:   environment,
		ClientID:      clientID,
	}, &event)
	if err != nil {
		// The gateway client exists but could not be recorded. Best-effort
		// cleanup so it does not linger unreferenced.
		if deleteErr := m.gateway.DeleteClient(ctx, environment, clientID); deleteErr != nil {
			m.logger.Error().Err(deleteErr).
				Str("environment", environment).
				Str("client_id", clientID).
				Msg("orphaned gateway client could not be cleaned up")
		}
		return model.Credential{}, "", err
	}

	if m.audit != nil {
		m.audit.CredentialIssued(app.ID, environment, clientID, actor)
	}

	// The credential is committed; a failed initial reconciliation surfaces
	// to the caller. The secret travels back alongside the error so the
	// client stays usable once a later fix converges it.
	input, err := m.fixInput(ctx, app)
	if err != nil {
		return credential, secret, fmt.Errorf("loading reconciliation input: %w", err)
	}

	fixCtx, cancel := context.WithTimeout(ctx, m.fixDeadline)
	report, fixErr := m.fixer.FixNewCredential(fixCtx, input, credential)
	cancel()
	m.appendFixEvent(ctx, report, "credential_issued")
	if fixErr != nil {
		m.logger.Warn().Err(fixErr).
			Str("application_id", app.ID).
			Str("client_id", clientID).
			Msg("initial reconciliation of new credential failed")
		return credential, secret, fmt.Errorf("reconciling new credential: %w", fixErr)
	}

	return credential, secret, nil
}

// ListCredentials returns the application's credentials. Secrets are never
// included: they exist only in the issuing response.
func (m *Manager) ListCredentials(ctx context.Context, applicationID string) ([]model.Credential, error) {
	if _, err := m.store.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return m.store.ListCredentials(ctx, applicationID)
}

// RevokeCredentials deletes every gateway client of the application in one
// environment and removes the rows. Gateway deletion is fail-fast so a retry
// resumes with the remaining clients.
func (m *Manager) RevokeCredentials(ctx context.Context, applicationID, environment, actor string) error {
	if !m.knownEnvironment(environment) {
		return fmt.Errorf("environment %q: %w", environment, ErrUnknownEnvironment)
	}

	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}

	credentials, err := m.store.ListCredentials(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	revoked := 0
	for _, credential := range credentials {
		if credential.Environment != environment {
			continue
		}
		if err := m.gateway.DeleteClient(ctx, environment, credential.ClientID); err != nil {
			return fmt.Errorf("revoking gateway client %q: %w", credential.ClientID, err)
		}
		if m.audit != nil {
			m.audit.CredentialRevoked(app.ID, environment, credential.ClientID, actor)
		}
		revoked++
	}
	if revoked == 0 {
		return store.ErrNotFound
	}

	event, err := events.New(events.TypeCredentialLifecycle, app.ID, credentialLifecyclePayload{
		Action:      "revoked",
		Environment: environment,
		Actor:       actor,
	})
	if err != nil {
		return err
	}

	if _, err := m.store.DeleteCredentials(ctx, app.ID, environment, &event); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	m.logger.Info().
		Str("application_id", app.ID).
		Str("environment", environment).
		Int("revoked", revoked).
		Msg("credentials revoked")
	return nil
}
