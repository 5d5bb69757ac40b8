package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apiforge-io/apiforge-apps/internal/gateway"
	"github.com/apiforge-io/apiforge-apps/internal/httputil"
	"github.com/apiforge-io/apiforge-apps/internal/store"
	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func (s *Server) handleFixScopes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, runErr := s.manager.FixScopes(r.Context(), id)
	if report == nil {
		respondError(w, r, runErr)
		return
	}

	out := fixReport(report)
	if runErr != nil {
		// A gateway failure stops the run but the report still carries the
		// credentials converged before it; surface the failing credential.
		var opErr *gateway.GatewayOpError
		if errors.As(runErr, &opErr) {
			out.Results = append(out.Results, types.CredentialFix{
				Environment: opErr.Environment,
				ClientID:    opErr.ClientID,
				ErrorDetail: opErr.Error(),
			})
			httputil.RespondJSON(w, http.StatusBadGateway, out)
			return
		}
		if errors.Is(runErr, store.ErrNotFound) {
			respondError(w, r, runErr)
			return
		}
		httputil.RespondProblemf(w, r, http.StatusBadGateway, "reconciliation failed: %v", runErr)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, out)
}

func (s *Server) handleScopeView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	views, err := s.manager.ScopeView(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, err)
			return
		}
		httputil.RespondProblemf(w, r, http.StatusBadGateway, "scope preview failed: %v", err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, scopeView(id, views))
}
