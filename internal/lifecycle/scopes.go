package lifecycle

import (
	"context"

	"github.com/apiforge-io/apiforge-apps/internal/engine"
)

// FixScopes runs a full reconciliation of the application's credentials and
// returns the report. A partially failed run still returns the results of
// credentials converged before the error; those changes stay committed.
func (m *Manager) FixScopes(ctx context.Context, applicationID string) (*engine.Report, error) {
	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	input, err := m.fixInput(ctx, app)
	if err != nil {
		return nil, err
	}

	fixCtx, cancel := context.WithTimeout(ctx, m.fixDeadline)
	defer cancel()

	report, runErr := m.fixer.Fix(fixCtx, input)
	m.appendFixEvent(ctx, report, "manual")
	return report, runErr
}

// ScopeView computes the live desired/actual diff for every credential
// without mutating anything. Actual scopes are re-fetched from the gateway.
func (m *Manager) ScopeView(ctx context.Context, applicationID string) ([]engine.CredentialScopes, error) {
	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	input, err := m.fixInput(ctx, app)
	if err != nil {
		return nil, err
	}

	viewCtx, cancel := context.WithTimeout(ctx, m.fixDeadline)
	defer cancel()

	return m.fixer.Preview(viewCtx, input)
}
