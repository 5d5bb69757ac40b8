// Package lifecycle implements the service layer between HTTP handlers and
// the store, gateway, and reconciliation engine.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/apiforge-io/apiforge-apps/internal/audit"
	"github.com/apiforge-io/apiforge-apps/internal/engine"
	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/gateway"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/internal/notify"
	"github.com/apiforge-io/apiforge-apps/internal/store"
)

var (
	// ErrUnknownEnvironment indicates a request named an undeclared environment.
	ErrUnknownEnvironment = errors.New("unknown environment")
	// ErrInvalidTransition indicates an access request state change the state
	// machine forbids.
	ErrInvalidTransition = errors.New("invalid access request transition")
	// ErrValidation indicates a request failed input validation.
	ErrValidation = errors.New("validation failed")
)

const defaultFixDeadline = 60 * time.Second

// Config wires the manager's collaborators.
type Config struct {
	Store        store.Store
	Gateway      gateway.Client
	Fixer        *engine.Fixer
	Notifier     notify.Notifier
	Audit        *audit.Logger
	Environments []model.Environment
	// FixDeadline bounds every reconciliation run triggered by the manager.
	FixDeadline time.Duration
	Logger      zerolog.Logger
}

// Manager coordinates registry mutations with their gateway side effects,
// outbox events, notifications, and reconciliation runs.
type Manager struct {
	store        store.Store
	gateway      gateway.Client
	fixer        *engine.Fixer
	notifier     notify.Notifier
	audit        *audit.Logger
	environments map[string]model.Environment
	fixDeadline  time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config) *Manager {
	deadline := cfg.FixDeadline
	if deadline <= 0 {
		deadline = defaultFixDeadline
	}

	environments := make(map[string]model.Environment, len(cfg.Environments))
	for _, environment := range cfg.Environments {
		environments[environment.Name] = environment
	}

	return &Manager{
		store:        cfg.Store,
		gateway:      cfg.Gateway,
		fixer:        cfg.Fixer,
		notifier:     cfg.Notifier,
		audit:        cfg.Audit,
		environments: environments,
		fixDeadline:  deadline,
		logger:       cfg.Logger.With().Str("component", "lifecycle").Logger(),
		now:          time.Now,
	}
}

// CreateTeam registers a new team.
func (m *Manager) CreateTeam(ctx context.Context, team model.Team) (model.Team, error) {
	if strings.TrimSpace(team.Name) == "" {
		return model.Team{}, fmt.Errorf("team name is required: %w", ErrValidation)
	}
	return m.store.CreateTeam(ctx, team)
}

// GetTeam returns one team.
func (m *Manager) GetTeam(ctx context.Context, id string) (model.Team, error) {
	return m.store.GetTeam(ctx, id)
}

// ListTeams returns paginated teams.
func (m *Manager) ListTeams(ctx context.Context, limit, offset int) ([]model.Team, int, error) {
	return m.store.ListTeams(ctx, limit, offset)
}

// ListEvents returns recent outbox events, newest first.
func (m *Manager) ListEvents(ctx context.Context, limit, offset int) ([]events.Event, int, error) {
	return m.store.ListRecentEvents(ctx, limit, offset)
}

// knownEnvironment reports whether the environment is declared in config.
func (m *Manager) knownEnvironment(name string) bool {
	_, ok := m.environments[strings.TrimSpace(name)]
	return ok
}

// fixInput loads the application state one reconciliation run derives from.
func (m *Manager) fixInput(ctx context.Context, app model.Application) (engine.Input, error) {
	credentials, err := m.store.ListCredentials(ctx, app.ID)
	if err != nil {
		return engine.Input{}, fmt.Errorf("loading credentials: %w", err)
	}
	links, err := m.store.ListAPILinks(ctx, app.ID)
	if err != nil {
		return engine.Input{}, fmt.Errorf("loading api links: %w", err)
	}
	approved, err := m.store.ListApprovedAccessRequests(ctx, app.ID)
	if err != nil {
		return engine.Input{}, fmt.Errorf("loading approved requests: %w", err)
	}

	return engine.Input{
		Application: app,
		Credentials: credentials,
		Links:       links,
		Approved:    approved,
	}, nil
}

// fixAfterMutation reconciles credentials after a mutation changed the
// desired scope set. The mutation already stands either way: a failure is
// returned so the caller sees the remote error, and the next run converges
// the remainder.
func (m *Manager) fixAfterMutation(ctx context.Context, app model.Application, trigger string) error {
	fixCtx, cancel := context.WithTimeout(ctx, m.fixDeadline)
	defer cancel()

	input, err := m.fixInput(fixCtx, app)
	if err != nil {
		return fmt.Errorf("loading reconciliation input: %w", err)
	}

	report, err := m.fixer.Fix(fixCtx, input)
	m.appendFixEvent(fixCtx, report, trigger)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("application_id", app.ID).
			Str("trigger", trigger).
			Msg("reconciliation after mutation failed")
		return fmt.Errorf("reconciling scopes: %w", err)
	}
	return nil
}

// appendFixEvent records a reconciliation report in the outbox.
func (m *Manager) appendFixEvent(ctx context.Context, report *engine.Report, trigger string) {
	if report == nil {
		return
	}

	event, err := events.New(events.TypeScopesFix, report.ApplicationID, map[string]any{
		"trigger":     trigger,
		"results":     report.Results,
		"startedAt":   report.StartedAt,
		"completedAt": report.CompletedAt,
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("building scopes fix event")
		return
	}
	if err := m.store.AppendEvent(ctx, event); err != nil {
		m.logger.Warn().Err(err).Str("event_id", event.ID).Msg("appending scopes fix event")
	}
}
