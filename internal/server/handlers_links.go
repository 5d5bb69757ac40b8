package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apiforge-io/apiforge-apps/internal/auth"
	"github.com/apiforge-io/apiforge-apps/internal/httputil"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func (s *Server) handleLinkAPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	apiID := chi.URLParam(r, "apiID")

	var req types.LinkAPIRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	linkedBy := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		linkedBy = claims.Subject
	}

	endpoints := make([]model.Endpoint, 0, len(req.Endpoints))
	for _, endpoint := range req.Endpoints {
		endpoints = append(endpoints, model.Endpoint{
			Method: endpoint.Method,
			Path:   endpoint.Path,
		})
	}

	link, err := s.manager.LinkAPI(r.Context(), model.APILink{
		ApplicationID: id,
		APIID:         apiID,
		Endpoints:     endpoints,
		LinkedBy:      linkedBy,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, apiLinkResource(link))
}

func (s *Server) handleUnlinkAPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	apiID := chi.URLParam(r, "apiID")

	actor := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		actor = claims.Subject
	}

	if err := s.manager.UnlinkAPI(r.Context(), id, apiID, actor); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
