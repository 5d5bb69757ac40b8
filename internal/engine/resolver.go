package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/apiforge-io/apiforge-apps/internal/catalog"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

// ResolveEndpointScopes returns the scopes the catalog detail requires for
// the given consumed endpoints: the union, over every recorded endpoint, of
// the scopes the catalog declares for the matching method+path. Endpoints
// the catalog no longer defines contribute nothing.
func ResolveEndpointScopes(detail *catalog.API, endpoints []model.Endpoint) []string {
	if detail == nil || len(endpoints) == 0 {
		return []string{}
	}

	scopes := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		scopes = append(scopes, detail.ScopesFor(endpoint)...)
	}
	return model.NormalizeScopes(scopes)
}

// resolveLinkScopes looks the linked API up in the catalog and resolves the
// link's endpoint subset against it. A catalog NotFound folds to the empty
// scope set: a deleted or unpublished API must never block reconciliation.
func (f *Fixer) resolveLinkScopes(ctx context.Context, link model.APILink) ([]string, error) {
	detail, err := f.catalog.GetAPI(ctx, link.APIID)
	if err != nil {
		if errors.Is(err, catalog.ErrAPINotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("resolving scopes for api %q: %w", link.APIID, err)
	}

	return ResolveEndpointScopes(detail, link.Endpoints), nil
}
