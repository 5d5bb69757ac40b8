package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/internal/store"
)

type decisionPayload struct {
	State        string   `json:"state"`
	Scopes       []string `json:"scopes"`
	Environments []string `json:"environments,omitempty"`
	DecidedBy    string   `json:"decidedBy,omitempty"`
}

// SubmitAccessRequest opens a new pending request for extra scopes.
func (m *Manager) SubmitAccessRequest(ctx context.Context, request model.AccessRequest) (model.AccessRequest, error) {
	scopes := model.NormalizeScopes(request.Scopes)
	if len(scopes) == 0 {
		return model.AccessRequest{}, fmt.Errorf("at least one scope is required: %w", ErrValidation)
	}
	request.Scopes = scopes

	for _, environment := range request.Environments {
		if !m.knownEnvironment(environment) {
			return model.AccessRequest{}, fmt.Errorf("environment %q: %w", environment, ErrUnknownEnvironment)
		}
	}

	app, err := m.store.GetApplication(ctx, request.ApplicationID)
	if err != nil {
		return model.AccessRequest{}, err
	}
	request.ApplicationID = app.ID
	request.State = model.AccessRequestStatePending

	created, err := m.store.CreateAccessRequest(ctx, request)
	if err != nil {
		return model.AccessRequest{}, err
	}

	m.logger.Info().
		Str("request_id", created.ID).
		Str("application_id", app.ID).
		Strs("scopes", created.Scopes).
		Msg("access request submitted")
	return created, nil
}

// GetAccessRequest returns one access request.
func (m *Manager) GetAccessRequest(ctx context.Context, id string) (model.AccessRequest, error) {
	return m.store.GetAccessRequest(ctx, id)
}

// ListAccessRequests returns paginated access requests.
func (m *Manager) ListAccessRequests(ctx context.Context, opts store.ListAccessRequestsOptions) ([]model.AccessRequest, int, error) {
	return m.store.ListAccessRequests(ctx, opts)
}

// ApproveAccessRequest grants a pending request. The granted scopes join the
// desired set and credentials are reconciled immediately.
func (m *Manager) ApproveAccessRequest(ctx context.Context, id, actor, note string) (model.AccessRequest, error) {
	return m.decide(ctx, id, actor, note, model.AccessRequestStateApproved)
}

// RejectAccessRequest denies a pending request. Terminal.
func (m *Manager) RejectAccessRequest(ctx context.Context, id, actor, note string) (model.AccessRequest, error) {
	return m.decide(ctx, id, actor, note, model.AccessRequestStateRejected)
}

// CancelAccessRequest withdraws a pending or approved request. Cancelling an
// approved request shrinks the desired set, so credentials are reconciled;
// deletion-forbidden environments keep the previously granted scopes.
func (m *Manager) CancelAccessRequest(ctx context.Context, id, actor, note string) (model.AccessRequest, error) {
	return m.decide(ctx, id, actor, note, model.AccessRequestStateCancelled)
}

// decide applies one state transition. Allowed transitions: pending may be
// approved, rejected, or cancelled; approved may be cancelled; rejected and
// cancelled are terminal.
func (m *Manager) decide(ctx context.Context, id, actor, note, target string) (model.AccessRequest, error) {
	request, err := m.store.GetAccessRequest(ctx, id)
	if err != nil {
		return model.AccessRequest{}, err
	}

	if !transitionAllowed(request.State, target) {
		return model.AccessRequest{}, fmt.Errorf("%s request cannot become %s: %w", request.State, target, ErrInvalidTransition)
	}

	wasApproved := request.State == model.AccessRequestStateApproved

	decidedAt := m.now().UTC()
	request.State = target
	request.DecidedBy = strings.TrimSpace(actor)
	request.DecisionNote = strings.TrimSpace(note)
	request.DecidedAt = &decidedAt

	event, err := events.New(events.TypeAccessRequestDecision, request.ID, decisionPayload{
		State:        target,
		Scopes:       request.Scopes,
		Environments: request.Environments,
		DecidedBy:    request.DecidedBy,
	})
	if err != nil {
		return model.AccessRequest{}, err
	}

	updated, err := m.store.UpdateAccessRequest(ctx, request, &event)
	if err != nil {
		return model.AccessRequest{}, err
	}

	if m.audit != nil {
		m.audit.AccessRequestDecided(updated.ID, updated.ApplicationID, updated.State, updated.DecidedBy, updated.DecisionNote)
	}

	app, err := m.store.GetApplication(ctx, updated.ApplicationID)
	if err != nil {
		// The application may have been deleted since the request was filed;
		// the decision itself still stands.
		m.logger.Warn().Err(err).
			Str("request_id", updated.ID).
			Msg("loading application after decision failed")
		return updated, nil
	}

	m.notifyDecision(ctx, app, updated)

	// Approval grows the desired set; cancelling an approval shrinks it.
	// Rejections change nothing the gateway can see. The decision is already
	// committed, so a failed reconciliation surfaces to the caller.
	if target == model.AccessRequestStateApproved || (target == model.AccessRequestStateCancelled && wasApproved) {
		if err := m.fixAfterMutation(ctx, app, "access_request_"+target); err != nil {
			return updated, err
		}
	}

	return updated, nil
}

// notifyDecision emails the requester about approve and reject outcomes.
// Delivery failure never fails the decision.
func (m *Manager) notifyDecision(ctx context.Context, app model.Application, request model.AccessRequest) {
	if m.notifier == nil {
		return
	}
	switch request.State {
	case model.AccessRequestStateApproved, model.AccessRequestStateRejected:
	default:
		return
	}

	if err := m.notifier.AccessRequestDecided(ctx, app, request); err != nil {
		m.logger.Warn().Err(err).
			Str("request_id", request.ID).
			Str("state", request.State).
			Msg("decision notification failed")
	}
}

func transitionAllowed(from, to string) bool {
	switch from {
	case model.AccessRequestStatePending:
		return to == model.AccessRequestStateApproved ||
			to == model.AccessRequestStateRejected ||
			to == model.AccessRequestStateCancelled
	case model.AccessRequestStateApproved:
		return to == model.AccessRequestStateCancelled
	default:
		return false
	}
}
