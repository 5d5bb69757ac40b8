package engine

import (
	"context"
	"sort"

	"github.com/apiforge-io/apiforge-apps/internal/model"
)

// CredentialScopes is the read-only desired/actual comparison for one
// credential.
type CredentialScopes struct {
	Environment string
	ClientID    string
	Desired     []string
	Actual      []string
	Missing     []string
	Surplus     []string
}

// Preview computes the desired/actual diff for every credential without
// issuing any corrective call. It still re-fetches each credential's actual
// scopes from the gateway: the preview is as live as a fix run.
func (f *Fixer) Preview(ctx context.Context, input Input) ([]CredentialScopes, error) {
	if len(input.Credentials) == 0 {
		return []CredentialScopes{}, nil
	}

	desired, err := f.DesiredScopes(ctx, input, credentialEnvironments(input.Credentials))
	if err != nil {
		return nil, err
	}

	views := make([]CredentialScopes, 0, len(input.Credentials))
	for _, credential := range input.Credentials {
		actual, err := f.gateway.FetchScopes(ctx, credential.Environment, credential.ClientID)
		if err != nil {
			return nil, err
		}

		view := CredentialScopes{
			Environment: credential.Environment,
			ClientID:    credential.ClientID,
			Desired:     desired[credential.Environment],
			Actual:      model.NormalizeScopes(actual),
			Missing:     []string{},
			Surplus:     []string{},
		}

		actualSet := make(map[string]struct{}, len(view.Actual))
		for _, scope := range view.Actual {
			actualSet[scope] = struct{}{}
		}
		desiredSet := make(map[string]struct{}, len(view.Desired))
		for _, scope := range view.Desired {
			desiredSet[scope] = struct{}{}
		}

		for _, scope := range view.Desired {
			if _, held := actualSet[scope]; !held {
				view.Missing = append(view.Missing, scope)
			}
		}
		for _, scope := range view.Actual {
			if _, wanted := desiredSet[scope]; !wanted {
				view.Surplus = append(view.Surplus, scope)
			}
		}

		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].Environment != views[j].Environment {
			return views[i].Environment < views[j].Environment
		}
		return views[i].ClientID < views[j].ClientID
	})
	return views, nil
}
