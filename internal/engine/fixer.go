// Package engine implements scope reconciliation: converging the scopes a
// gateway client actually holds toward the scopes the application's linked
// APIs and approved access requests say it should hold.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/apiforge-io/apiforge-apps/internal/catalog"
	"github.com/apiforge-io/apiforge-apps/internal/gateway"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

const defaultConcurrency = 4

// Input bundles the application state one reconciliation run derives from.
// The engine reads it once and never mutates it; persistence is the
// caller's concern.
type Input struct {
	Application model.Application
	Credentials []model.Credential
	Links       []model.APILink
	// Approved must be pre-filtered to approved access requests.
	Approved []model.AccessRequest
}

// CredentialResult reports the corrective calls issued for one credential.
type CredentialResult struct {
	Environment string
	ClientID    string
	Added       []string
	Removed     []string
	// SkippedRemovals lists surplus scopes left in place because the
	// environment forbids automatic deletion.
	SkippedRemovals []string
}

// Report is the outcome of one reconciliation run. When the run fails, the
// report still carries the results of credentials reconciled before the
// first error; their changes stay committed.
type Report struct {
	ApplicationID string
	Results       []CredentialResult
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Auditor observes committed scope mutations.
type Auditor interface {
	ScopeGranted(applicationID, environment, clientID, scope string)
	ScopeRevoked(applicationID, environment, clientID, scope string)
}

// Config controls reconciliation policy.
type Config struct {
	// Environments declares the known deployment targets and their deletion
	// policy. Credentials in undeclared environments are treated as
	// deletion-forbidden.
	Environments []model.Environment
	// Concurrency bounds how many credentials are reconciled in parallel.
	Concurrency int
	// Auditor, when set, receives every committed scope mutation.
	Auditor Auditor
	// Logger receives per-credential reconciliation logs.
	Logger zerolog.Logger
}

// Fixer reconciles actual gateway scopes against desired scopes. It holds no
// state between runs: every run re-fetches each credential's actual scopes
// from the gateway.
type Fixer struct {
	catalog      catalog.Catalog
	gateway      gateway.ScopeGateway
	environments map[string]model.Environment
	concurrency  int
	auditor      Auditor
	logger       zerolog.Logger
	now          func() time.Time
}

// New creates a reconciliation engine.
func New(cat catalog.Catalog, gw gateway.ScopeGateway, cfg Config) *Fixer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	environments := make(map[string]model.Environment, len(cfg.Environments))
	for _, environment := range cfg.Environments {
		environments[environment.Name] = environment
	}

	return &Fixer{
		catalog:      cat,
		gateway:      gw,
		environments: environments,
		concurrency:  concurrency,
		auditor:      cfg.Auditor,
		logger:       cfg.Logger.With().Str("component", "fixer").Logger(),
		now:          time.Now,
	}
}

// Fix converges every credential of the application. Credentials are
// reconciled independently under a bounded concurrency limit; the first
// error cancels outstanding work and is returned, leaving already-committed
// changes in place for the next run to build on.
func (f *Fixer) Fix(ctx context.Context, input Input) (*Report, error) {
	report := &Report{
		ApplicationID: input.Application.ID,
		Results:       []CredentialResult{},
		StartedAt:     f.now().UTC(),
	}

	// No credentials means nothing can hold scopes: skip catalog and
	// gateway entirely.
	if len(input.Credentials) == 0 {
		report.CompletedAt = f.now().UTC()
		return report, nil
	}

	desired, err := f.DesiredScopes(ctx, input, credentialEnvironments(input.Credentials))
	if err != nil {
		report.CompletedAt = f.now().UTC()
		return report, err
	}

	results, err := f.reconcileAll(ctx, input.Credentials, desired)
	report.Results = results
	report.CompletedAt = f.now().UTC()
	return report, err
}

// FixNewCredential converges a single freshly issued credential. Desired
// scopes are recomputed from current application state, but only the new
// credential's remote scopes are fetched and corrected; sibling credentials
// are left to regular runs.
func (f *Fixer) FixNewCredential(ctx context.Context, input Input, credential model.Credential) (*Report, error) {
	report := &Report{
		ApplicationID: input.Application.ID,
		Results:       []CredentialResult{},
		StartedAt:     f.now().UTC(),
	}

	desired, err := f.DesiredScopes(ctx, input, []string{credential.Environment})
	if err != nil {
		report.CompletedAt = f.now().UTC()
		return report, err
	}

	// The result is kept even on failure: scopes added before the error are
	// committed and must stay visible in the report.
	result, err := f.reconcileCredential(ctx, credential, desired[credential.Environment])
	report.Results = append(report.Results, result)
	report.CompletedAt = f.now().UTC()
	return report, err
}

func (f *Fixer) reconcileAll(
	ctx context.Context,
	credentials []model.Credential,
	desired map[string][]string,
) ([]CredentialResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		results  = make([]CredentialResult, 0, len(credentials))
	)
	limiter := make(chan struct{}, f.concurrency)

acquire:
	for _, credential := range credentials {
		credential := credential

		select {
		case limiter <- struct{}{}:
		case <-runCtx.Done():
			break acquire
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-limiter }()

			result, err := f.reconcileCredential(runCtx, credential, desired[credential.Environment])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			results = append(results, result)
		}()
	}

	wg.Wait()

	if firstErr == nil {
		firstErr = ctx.Err()
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Environment != results[j].Environment {
			return results[i].Environment < results[j].Environment
		}
		return results[i].ClientID < results[j].ClientID
	})
	return results, firstErr
}

// reconcileCredential fetches one credential's actual scopes and issues the
// minimal corrective calls. The fetch always precedes mutations; mutations
// for one credential run sequentially and abort on the first failure.
func (f *Fixer) reconcileCredential(
	ctx context.Context,
	credential model.Credential,
	desired []string,
) (CredentialResult, error) {
	result := CredentialResult{
		Environment:     credential.Environment,
		ClientID:        credential.ClientID,
		Added:           []string{},
		Removed:         []string{},
		SkippedRemovals: []string{},
	}

	actual, err := f.gateway.FetchScopes(ctx, credential.Environment, credential.ClientID)
	if err != nil {
		return result, err
	}

	actualSet := make(map[string]struct{}, len(actual))
	for _, scope := range actual {
		actualSet[scope] = struct{}{}
	}
	desiredSet := make(map[string]struct{}, len(desired))
	for _, scope := range desired {
		desiredSet[scope] = struct{}{}
	}

	toAdd := make([]string, 0, len(desired))
	for _, scope := range desired {
		if _, held := actualSet[scope]; !held {
			toAdd = append(toAdd, scope)
		}
	}
	toDelete := make([]string, 0)
	for _, scope := range model.NormalizeScopes(actual) {
		if _, wanted := desiredSet[scope]; !wanted {
			toDelete = append(toDelete, scope)
		}
	}

	for _, scope := range toAdd {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := f.gateway.AddScope(ctx, credential.Environment, credential.ClientID, scope); err != nil {
			return result, err
		}
		result.Added = append(result.Added, scope)
		if f.auditor != nil {
			f.auditor.ScopeGranted(credential.ApplicationID, credential.Environment, credential.ClientID, scope)
		}
	}

	if !f.deletionAllowed(credential.Environment) {
		result.SkippedRemovals = toDelete
	} else {
		for _, scope := range toDelete {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := f.gateway.DeleteScope(ctx, credential.Environment, credential.ClientID, scope); err != nil {
				return result, err
			}
			result.Removed = append(result.Removed, scope)
			if f.auditor != nil {
				f.auditor.ScopeRevoked(credential.ApplicationID, credential.Environment, credential.ClientID, scope)
			}
		}
	}

	f.logger.Debug().
		Str("application_id", credential.ApplicationID).
		Str("environment", credential.Environment).
		Str("client_id", credential.ClientID).
		Int("added", len(result.Added)).
		Int("removed", len(result.Removed)).
		Int("skipped_removals", len(result.SkippedRemovals)).
		Msg("credential reconciled")

	return result, nil
}

// deletionAllowed reports whether the environment's policy permits automatic
// scope revocation. Undeclared environments never allow deletion.
func (f *Fixer) deletionAllowed(environment string) bool {
	declared, ok := f.environments[environment]
	if !ok {
		return false
	}
	return declared.AllowScopeDeletion
}
