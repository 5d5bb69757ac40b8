package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-io/apiforge-apps/internal/catalog"
	"github.com/apiforge-io/apiforge-apps/internal/gateway"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

var testEnvironments = []model.Environment{
	{Name: "prod", AllowScopeDeletion: false},
	{Name: "test", AllowScopeDeletion: true},
}

type countingCatalog struct {
	inner catalog.Catalog
	calls atomic.Int32
}

func (c *countingCatalog) GetAPI(ctx context.Context, id string) (*catalog.API, error) {
	c.calls.Add(1)
	return c.inner.GetAPI(ctx, id)
}

func petsAPI() catalog.API {
	return catalog.API{
		ID:    "pets",
		Title: "Pet Store",
		Endpoints: []catalog.Endpoint{
			{Method: "GET", Path: "/pets", Scopes: []string{"pets:read"}},
			{Method: "POST", Path: "/pets", Scopes: []string{"pets:write"}},
			{Method: "DELETE", Path: "/pets/{id}", Scopes: []string{"pets:admin"}},
		},
	}
}

func petsLink() model.APILink {
	return model.APILink{
		ApplicationID: "app-1",
		APIID:         "pets",
		Endpoints: []model.Endpoint{
			{Method: "GET", Path: "/pets"},
			{Method: "POST", Path: "/pets"},
		},
	}
}

func newFixer(cat catalog.Catalog, gw gateway.ScopeGateway, concurrency int) *Fixer {
	return New(cat, gw, Config{
		Environments: testEnvironments,
		Concurrency:  concurrency,
		Logger:       zerolog.Nop(),
	})
}

func TestResolveEndpointScopes(t *testing.T) {
	api := petsAPI()

	scopes := ResolveEndpointScopes(&api, []model.Endpoint{
		{Method: "GET", Path: "/pets"},
		{Method: "POST", Path: "/pets"},
		{Method: "PATCH", Path: "/pets"},
	})
	assert.Equal(t, []string{"pets:read", "pets:write"}, scopes)

	assert.Equal(t, []string{}, ResolveEndpointScopes(nil, []model.Endpoint{{Method: "GET", Path: "/pets"}}))
	assert.Equal(t, []string{}, ResolveEndpointScopes(&api, nil))
}

func TestFix_NoCredentialsShortCircuit(t *testing.T) {
	cat := &countingCatalog{inner: catalog.NewMemory()}
	gw := gateway.NewMemory()
	fixer := newFixer(cat, gw, 4)

	report, err := fixer.Fix(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Links:       []model.APILink{petsLink()},
		Approved: []model.AccessRequest{
			{State: model.AccessRequestStateApproved, Scopes: []string{"extra:scope"}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Results)

	assert.Equal(t, int32(0), cat.calls.Load())
	fetch, add, deleted := gw.Calls()
	assert.Zero(t, fetch)
	assert.Zero(t, add)
	assert.Zero(t, deleted)
}

// Scenario: API resolves to {pets:read, pets:write}, an approved request
// contributes pets:special to test only. The prod credential holds
// {pets:read}; the test credential holds {pets:read, pets:write}.
func TestFix_ConvergesPerEnvironment(t *testing.T) {
	mem := catalog.NewMemory()
	mem.Put(petsAPI())
	gw := gateway.NewMemory()
	gw.Seed("prod", "client-prod", "pets:read")
	gw.Seed("test", "client-test", "pets:read", "pets:write")

	fixer := newFixer(mem, gw, 4)
	input := Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "prod", ClientID: "client-prod"},
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-test"},
		},
		Links: []model.APILink{petsLink()},
		Approved: []model.AccessRequest{
			{
				ApplicationID: "app-1",
				State:         model.AccessRequestStateApproved,
				Scopes:        []string{"pets:special"},
				Environments:  []string{"test"},
			},
		},
	}

	report, err := fixer.Fix(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	prod := report.Results[0]
	assert.Equal(t, "prod", prod.Environment)
	assert.Equal(t, []string{"pets:write"}, prod.Added)
	assert.Empty(t, prod.Removed)
	assert.Empty(t, prod.SkippedRemovals)

	test := report.Results[1]
	assert.Equal(t, "test", test.Environment)
	assert.Equal(t, []string{"pets:special"}, test.Added)
	assert.Empty(t, test.Removed)

	assert.Equal(t, []string{"pets:read", "pets:write"}, gw.Scopes("prod", "client-prod"))
	assert.Equal(t, []string{"pets:read", "pets:special", "pets:write"}, gw.Scopes("test", "client-test"))
}

func TestFix_Idempotent(t *testing.T) {
	mem := catalog.NewMemory()
	mem.Put(petsAPI())
	gw := gateway.NewMemory()
	gw.Seed("test", "client-1", "stale:scope")

	fixer := newFixer(mem, gw, 4)
	input := Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-1"},
		},
		Links: []model.APILink{petsLink()},
	}

	ctx := context.Background()
	_, err := fixer.Fix(ctx, input)
	require.NoError(t, err)
	_, addFirst, deleteFirst := gw.Calls()
	assert.Equal(t, 2, addFirst)
	assert.Equal(t, 1, deleteFirst)

	report, err := fixer.Fix(ctx, input)
	require.NoError(t, err)

	_, addSecond, deleteSecond := gw.Calls()
	assert.Equal(t, addFirst, addSecond, "second run must issue zero add calls")
	assert.Equal(t, deleteFirst, deleteSecond, "second run must issue zero delete calls")

	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Results[0].Added)
	assert.Empty(t, report.Results[0].Removed)
}

// Two credentials in the same environment with different actual scope sets
// each receive exactly the corrective calls their own diff requires.
func TestFix_PerCredentialIsolation(t *testing.T) {
	mem := catalog.NewMemory()
	mem.Put(petsAPI())
	gw := gateway.NewMemory()
	gw.Seed("test", "client-a", "pets:read")
	gw.Seed("test", "client-b", "pets:read", "pets:write", "stale:scope")

	fixer := newFixer(mem, gw, 4)
	report, err := fixer.Fix(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-a"},
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-b"},
		},
		Links: []model.APILink{petsLink()},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, "client-a", report.Results[0].ClientID)
	assert.Equal(t, []string{"pets:write"}, report.Results[0].Added)
	assert.Empty(t, report.Results[0].Removed)

	assert.Equal(t, "client-b", report.Results[1].ClientID)
	assert.Empty(t, report.Results[1].Added)
	assert.Equal(t, []string{"stale:scope"}, report.Results[1].Removed)

	assert.Equal(t, []string{"pets:read", "pets:write"}, gw.Scopes("test", "client-a"))
	assert.Equal(t, []string{"pets:read", "pets:write"}, gw.Scopes("test", "client-b"))
}

func TestFix_NeverDeletesInProtectedEnvironment(t *testing.T) {
	mem := catalog.NewMemory()
	gw := gateway.NewMemory()
	gw.Seed("prod", "client-1", "stale:a", "stale:b", "stale:c")

	fixer := newFixer(mem, gw, 4)
	report, err := fixer.Fix(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "prod", ClientID: "client-1"},
		},
	})
	require.NoError(t, err)

	_, _, deleted := gw.Calls()
	assert.Zero(t, deleted, "protected environments must never see delete calls")
	assert.Equal(t, []string{"stale:a", "stale:b", "stale:c"}, gw.Scopes("prod", "client-1"))

	require.Len(t, report.Results, 1)
	assert.Equal(t, []string{"stale:a", "stale:b", "stale:c"}, report.Results[0].SkippedRemovals)
}

func TestFix_UndeclaredEnvironmentTreatedAsProtected(t *testing.T) {
	gw := gateway.NewMemory()
	gw.Seed("staging", "client-1", "stale:scope")

	fixer := newFixer(catalog.NewMemory(), gw, 4)
	_, err := fixer.Fix(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "staging", ClientID: "client-1"},
		},
	})
	require.NoError(t, err)

	_, _, deleted := gw.Calls()
	assert.Zero(t, deleted)
	assert.Equal(t, []string{"stale:scope"}, gw.Scopes("staging", "client-1"))
}

func TestFix_MissingAPIFailsOpen(t *testing.T) {
	// The catalog has no "pets" API at all: the link contributes nothing
	// and reconciliation proceeds without error.
	gw := gateway.NewMemory()
	gw.Seed("test", "client-1", "pets:read")

	fixer := newFixer(catalog.NewMemory(), gw, 4)
	report, err := fixer.Fix(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-1"},
		},
		Links: []model.APILink{petsLink()},
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, []string{"pets:read"}, report.Results[0].Removed)
	assert.Empty(t, gw.Scopes("test", "client-1"))
}

func TestFix_CatalogHardErrorPropagates(t *testing.T) {
	mem := catalog.NewMemory()
	mem.GetAPIErr = errors.New("catalog offline")
	gw := gateway.NewMemory()
	gw.Seed("test", "client-1")

	fixer := newFixer(mem, gw, 4)
	_, err := fixer.Fix(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-1"},
		},
		Links: []model.APILink{petsLink()},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog offline")

	fetch, _, _ := gw.Calls()
	assert.Zero(t, fetch, "desired-set failure must precede any gateway call")
}

func TestFix_EmptyDesiredRevokesEverythingWhereAllowed(t *testing.T) {
	gw := gateway.NewMemory()
	gw.Seed("test", "client-1", "pets:read", "pets:write")
	gw.Seed("test", "client-2", "pets:admin")

	fixer := newFixer(catalog.NewMemory(), gw, 4)
	_, err := fixer.Fix(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-1"},
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-2"},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, gw.Scopes("test", "client-1"))
	assert.Empty(t, gw.Scopes("test", "client-2"))
}

func TestFix_FirstGatewayErrorFailsFast(t *testing.T) {
	mem := catalog.NewMemory()
	mem.Put(petsAPI())
	gw := gateway.NewMemory()
	gw.Seed("test", "client-1")
	gw.Seed("test", "client-2")

	boom := errors.New("gateway down")
	gw.AddErr = func(environment, clientID, scope string) error {
		if clientID == "client-1" && scope == "pets:write" {
			return boom
		}
		return nil
	}

	fixer := newFixer(mem, gw, 1)
	input := Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-1"},
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-2"},
		},
		Links: []model.APILink{petsLink()},
	}

	_, err := fixer.Fix(context.Background(), input)
	require.ErrorIs(t, err, boom)

	// pets:read was committed before the failure and stays committed.
	assert.Equal(t, []string{"pets:read"}, gw.Scopes("test", "client-1"))

	// A later run with the fault cleared completes convergence.
	gw.AddErr = nil
	_, err = fixer.Fix(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{"pets:read", "pets:write"}, gw.Scopes("test", "client-1"))
	assert.Equal(t, []string{"pets:read", "pets:write"}, gw.Scopes("test", "client-2"))
}

func TestFix_ContextCancelled(t *testing.T) {
	gw := gateway.NewMemory()
	gw.Seed("test", "client-1", "pets:read")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fixer := newFixer(catalog.NewMemory(), gw, 4)
	_, err := fixer.Fix(ctx, Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-1"},
		},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFixNewCredential_OnlyFetchesTheNewCredential(t *testing.T) {
	mem := catalog.NewMemory()
	mem.Put(petsAPI())
	gw := gateway.NewMemory()
	gw.Seed("test", "client-old", "pets:read", "pets:write")
	gw.Seed("test", "client-new")

	fixer := newFixer(mem, gw, 4)
	newCredential := model.Credential{ApplicationID: "app-1", Environment: "test", ClientID: "client-new"}

	report, err := fixer.FixNewCredential(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-old"},
			newCredential,
		},
		Links: []model.APILink{petsLink()},
	}, newCredential)
	require.NoError(t, err)

	fetch, _, _ := gw.Calls()
	assert.Equal(t, 1, fetch, "sibling credentials must not be re-fetched")

	require.Len(t, report.Results, 1)
	assert.Equal(t, "client-new", report.Results[0].ClientID)
	assert.Equal(t, []string{"pets:read", "pets:write"}, gw.Scopes("test", "client-new"))
}

func TestFixNewCredential_ReportsCommittedScopesOnFailure(t *testing.T) {
	mem := catalog.NewMemory()
	mem.Put(petsAPI())
	gw := gateway.NewMemory()
	gw.Seed("test", "client-new")

	boom := errors.New("gateway down")
	gw.AddErr = func(_, _, scope string) error {
		if scope == "pets:write" {
			return boom
		}
		return nil
	}

	fixer := newFixer(mem, gw, 4)
	newCredential := model.Credential{ApplicationID: "app-1", Environment: "test", ClientID: "client-new"}

	report, err := fixer.FixNewCredential(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{newCredential},
		Links:       []model.APILink{petsLink()},
	}, newCredential)
	require.ErrorIs(t, err, boom)

	// pets:read was granted before the failure; the report must show it.
	require.Len(t, report.Results, 1)
	assert.Equal(t, "client-new", report.Results[0].ClientID)
	assert.Equal(t, []string{"pets:read"}, report.Results[0].Added)
	assert.Equal(t, []string{"pets:read"}, gw.Scopes("test", "client-new"))
}

func TestDesiredScopes_ApprovalSurvivesUnlink(t *testing.T) {
	// No API links at all: the approved request's grants still count.
	fixer := newFixer(catalog.NewMemory(), gateway.NewMemory(), 4)

	desired, err := fixer.DesiredScopes(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Approved: []model.AccessRequest{
			{State: model.AccessRequestStateApproved, Scopes: []string{"legacy:read"}},
			{State: model.AccessRequestStateCancelled, Scopes: []string{"withdrawn:scope"}},
		},
	}, []string{"test", "prod"})
	require.NoError(t, err)

	assert.Equal(t, []string{"legacy:read"}, desired["test"])
	assert.Equal(t, []string{"legacy:read"}, desired["prod"])
}

func TestPreview_DiffsWithoutMutating(t *testing.T) {
	mem := catalog.NewMemory()
	mem.Put(petsAPI())
	gw := gateway.NewMemory()
	gw.Seed("test", "client-1", "pets:read", "stale:scope")

	fixer := newFixer(mem, gw, 4)
	views, err := fixer.Preview(context.Background(), Input{
		Application: model.Application{ID: "app-1"},
		Credentials: []model.Credential{
			{ApplicationID: "app-1", Environment: "test", ClientID: "client-1"},
		},
		Links: []model.APILink{petsLink()},
	})
	require.NoError(t, err)
	require.Len(t, views, 1)

	assert.Equal(t, []string{"pets:read", "pets:write"}, views[0].Desired)
	assert.Equal(t, []string{"pets:read", "stale:scope"}, views[0].Actual)
	assert.Equal(t, []string{"pets:write"}, views[0].Missing)
	assert.Equal(t, []string{"stale:scope"}, views[0].Surplus)

	_, add, deleted := gw.Calls()
	assert.Zero(t, add)
	assert.Zero(t, deleted)
	assert.Equal(t, []string{"pets:read", "stale:scope"}, gw.Scopes("test", "client-1"))
}
