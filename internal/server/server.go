// Package server provides the application registry HTTP server.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/apiforge-io/apiforge-apps/internal/auth"
	"github.com/apiforge-io/apiforge-apps/internal/config"
	"github.com/apiforge-io/apiforge-apps/internal/gateway"
	"github.com/apiforge-io/apiforge-apps/internal/httputil"
	"github.com/apiforge-io/apiforge-apps/internal/lifecycle"
	"github.com/apiforge-io/apiforge-apps/internal/otel"
	"github.com/apiforge-io/apiforge-apps/internal/store"
)

const apiVersion = "apps/v1"

// Server wraps HTTP routes and dependencies.
type Server struct {
	manager     *lifecycle.Manager
	store       store.Store
	cfg         config.Config
	version     string
	commit      string
	buildDate   string
	openapiSpec []byte
	router      chi.Router
}

// Option configures server construction.
type Option func(*Server)

// WithOpenAPISpec sets the embedded OpenAPI bytes.
func WithOpenAPISpec(spec []byte) Option {
	return func(s *Server) {
		s.openapiSpec = spec
	}
}

// New constructs a registry API server.
func New(manager *lifecycle.Manager, st store.Store, cfg config.Config, version, commit, buildDate string, opts ...Option) *Server {
	s := &Server{
		manager:   manager,
		store:     st,
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(otel.HTTPTracing())
	r.Use(otel.HTTPMetrics("apiforge-apps"))
	r.Use(httputil.RequestID)
	r.Use(httputil.RequestLogger(log.Logger))
	r.Use(httputil.Recoverer)
	r.Use(httputil.SecureHeaders)
	r.Use(httputil.BodyLimit(1 << 20))
	r.Use(httputil.ContentType)
	r.Use(httputil.APIVersion(apiVersion))
	r.Use(httputil.CacheControl)

	r.Group(func(r chi.Router) {
		r.Method(http.MethodGet, "/health", httputil.HealthHandler())
		r.Method(http.MethodGet, "/readiness", httputil.ReadinessHandler(func() error {
			return s.store.Ping(context.Background())
		}))
		r.Method(http.MethodGet, "/version", httputil.VersionHandler(s.version, s.commit, s.buildDate))
		if s.cfg.MetricsEnabled {
			r.Method(http.MethodGet, "/metrics", otel.PrometheusHandler())
		}
		r.Method(http.MethodGet, "/api/docs", httputil.SwaggerHandler())
		r.Method(http.MethodGet, "/api/openapi.yaml", httputil.OpenAPIHandler(s.openapiSpec))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTMiddleware(auth.MiddlewareConfig{
			JWKSURL:       s.cfg.JWKSURL,
			InternalToken: s.cfg.InternalToken,
			DevMode:       s.cfg.DevMode,
		}))

		r.Route("/apps/v1", func(r chi.Router) {
			r.With(requireAnyScope("write:apps", "admin")).Post("/applications", s.handleCreateApplication)
			r.With(requireAnyScope("read:apps", "admin")).Get("/applications", s.handleListApplications)
			r.With(requireAnyScope("read:apps", "admin")).Get("/applications/{id}", s.handleGetApplication)
			r.With(requireAnyScope("write:apps", "admin")).Patch("/applications/{id}", s.handleUpdateApplication)
			r.With(requireAnyScope("write:apps", "admin")).Delete("/applications/{id}", s.handleDeleteApplication)

			r.With(requireAnyScope("write:apps", "admin")).Post("/applications/{id}/credentials", s.handleIssueCredential)
			r.With(requireAnyScope("read:apps", "admin")).Get("/applications/{id}/credentials", s.handleListCredentials)
			r.With(requireAnyScope("write:apps", "admin")).Delete("/applications/{id}/credentials/{env}", s.handleRevokeCredentials)

			r.With(requireAnyScope("write:apps", "admin")).Put("/applications/{id}/apis/{apiID}", s.handleLinkAPI)
			r.With(requireAnyScope("write:apps", "admin")).Delete("/applications/{id}/apis/{apiID}", s.handleUnlinkAPI)

			r.With(requireAnyScope("write:apps", "admin")).Post("/applications/{id}/scopes/fix", s.handleFixScopes)
			r.With(requireAnyScope("read:apps", "admin")).Get("/applications/{id}/scopes", s.handleScopeView)

			r.With(requireAnyScope("write:apps", "admin")).Post("/access-requests", s.handleSubmitAccessRequest)
			r.With(requireAnyScope("read:apps", "admin")).Get("/access-requests", s.handleListAccessRequests)
			r.With(requireAnyScope("read:apps", "admin")).Get("/access-requests/{id}", s.handleGetAccessRequest)
			r.With(requireAnyScope("approve:apps", "admin")).Post("/access-requests/{id}/approve", s.handleApproveAccessRequest)
			r.With(requireAnyScope("approve:apps", "admin")).Post("/access-requests/{id}/reject", s.handleRejectAccessRequest)
			r.With(requireAnyScope("write:apps", "approve:apps", "admin")).Post("/access-requests/{id}/cancel", s.handleCancelAccessRequest)

			r.With(requireAnyScope("read:apps", "admin")).Get("/teams", s.handleListTeams)
			r.With(requireAnyScope("write:apps", "admin")).Post("/teams", s.handleCreateTeam)

			r.With(requireAnyScope("read:apps", "admin")).Get("/events", s.handleListEvents)
		})
	})

	return r
}

func requireAnyScope(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				httputil.RespondProblem(w, r, http.StatusForbidden, "no claims in context")
				return
			}

			for _, scope := range scopes {
				if claims.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.RespondProblemf(w, r, http.StatusForbidden, "missing required scope: %s", scopes[0])
		})
	}
}

// respondError maps service errors to problem responses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var opErr *gateway.GatewayOpError
	switch {
	case errors.As(err, &opErr):
		// The local mutation is committed; only the remote convergence failed.
		httputil.RespondProblem(w, r, http.StatusBadGateway, err.Error())
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondProblem(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, store.ErrConflict):
		httputil.RespondProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrCredentialLimit):
		httputil.RespondProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrValidation):
		httputil.RespondProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, lifecycle.ErrUnknownEnvironment):
		httputil.RespondProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		httputil.RespondProblem(w, r, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		httputil.RespondProblem(w, r, http.StatusInternalServerError, "internal error")
	}
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = intQuery(r, "limit", 100)
	offset = intQuery(r, "offset", 0)
	return limit, offset
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
