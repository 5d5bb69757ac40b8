package lifecycle

import (
	"context"
	"fmt"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

type linkLifecyclePayload struct {
	Action string `json:"action"`
	APIID  string `json:"apiId"`
	Actor  string `json:"actor,omitempty"`
}

// LinkAPI records that the application consumes the given endpoints of a
// published API and reconciles credentials toward the enlarged desired set.
// The API is not validated against the catalog here: a link to an unknown or
// later-unpublished API simply contributes no scopes at reconciliation time.
func (m *Manager) LinkAPI(ctx context.Context, link model.APILink) (model.APILink, error) {
	if link.APIID == "" {
		return model.APILink{}, fmt.Errorf("api id is required: %w", ErrValidation)
	}

	app, err := m.store.GetApplication(ctx, link.ApplicationID)
	if err != nil {
		return model.APILink{}, err
	}
	link.ApplicationID = app.ID

	event, err := events.New(events.TypeApplicationLifecycle, app.ID, linkLifecyclePayload{
		Action: "api_linked",
		APIID:  link.APIID,
		Actor:  link.LinkedBy,
	})
	if err != nil {
		return model.APILink{}, err
	}

	saved, err := m.store.UpsertAPILink(ctx, link, &event)
	if err != nil {
		return model.APILink{}, err
	}

	// The link is committed; a failed reconciliation surfaces to the caller.
	if err := m.fixAfterMutation(ctx, app, "api_linked"); err != nil {
		return saved, err
	}
	return saved, nil
}

// UnlinkAPI removes the link and reconciles credentials toward the shrunken
// desired set; deletion-forbidden environments keep their surplus scopes.
func (m *Manager) UnlinkAPI(ctx context.Context, applicationID, apiID, actor string) error {
	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}

	event, err := events.New(events.TypeApplicationLifecycle, app.ID, linkLifecyclePayload{
		Action: "api_unlinked",
		APIID:  apiID,
		Actor:  actor,
	})
	if err != nil {
		return err
	}

	if err := m.store.DeleteAPILink(ctx, app.ID, apiID, &event); err != nil {
		return err
	}

	return m.fixAfterMutation(ctx, app, "api_unlinked")
}

// ListAPILinks returns the application's API links.
func (m *Manager) ListAPILinks(ctx context.Context, applicationID string) ([]model.APILink, error) {
	if _, err := m.store.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return m.store.ListAPILinks(ctx, applicationID)
}
