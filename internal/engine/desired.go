package engine

import (
	"context"

	"github.com/apiforge-io/apiforge-apps/internal/model"
)

// DesiredScopes computes the desired scope set for each requested
// environment: the union of resolved scopes across all linked APIs plus the
// scopes of approved access requests targeting that environment. Linked APIs
// contribute uniformly to every environment; access requests carry explicit
// environment targeting.
//
// Approval grants persist until the access request itself is cancelled,
// independent of whether the API link still exists.
func (f *Fixer) DesiredScopes(ctx context.Context, input Input, environments []string) (map[string][]string, error) {
	linked := make([]string, 0)
	for _, link := range input.Links {
		scopes, err := f.resolveLinkScopes(ctx, link)
		if err != nil {
			return nil, err
		}
		linked = append(linked, scopes...)
	}

	desired := make(map[string][]string, len(environments))
	for _, environment := range environments {
		scopes := append([]string(nil), linked...)
		for _, request := range input.Approved {
			if request.State != model.AccessRequestStateApproved {
				continue
			}
			if !request.TargetsEnvironment(environment) {
				continue
			}
			scopes = append(scopes, request.Scopes...)
		}
		desired[environment] = model.NormalizeScopes(scopes)
	}

	return desired, nil
}

func credentialEnvironments(credentials []model.Credential) []string {
	seen := make(map[string]struct{}, len(credentials))
	ordered := make([]string, 0, len(credentials))
	for _, credential := range credentials {
		if _, exists := seen[credential.Environment]; exists {
			continue
		}
		seen[credential.Environment] = struct{}{}
		ordered = append(ordered, credential.Environment)
	}
	return ordered
}
