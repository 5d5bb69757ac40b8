package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apiforge-io/apiforge-apps/internal/auth"
	"github.com/apiforge-io/apiforge-apps/internal/httputil"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/internal/store"
	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req types.CreateApplicationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	createdBy := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		createdBy = claims.Subject
	}

	app, err := s.manager.CreateApplication(r.Context(), model.Application{
		Name:        req.Name,
		Description: req.Description,
		TeamID:      req.TeamID,
		CreatedBy:   createdBy,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, applicationResource(app, nil, nil))
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	apps, total, err := s.manager.ListApplications(r.Context(), store.ListApplicationsOptions{
		TeamID: r.URL.Query().Get("team"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	list := types.ResourceList[types.Application]{
		Kind:       "ApplicationList",
		APIVersion: apiVersion,
		Metadata:   types.ListMetadata{Total: total, Limit: limit, Offset: offset},
		Items:      []types.Resource[types.Application]{},
	}
	for _, app := range apps {
		list.Items = append(list.Items, applicationResource(app, nil, nil))
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	app, err := s.manager.GetApplication(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	links, err := s.manager.ListAPILinks(r.Context(), app.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	credentials, err := s.manager.ListCredentials(r.Context(), app.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, applicationResource(app, links, credentials))
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req types.UpdateApplicationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	app, err := s.manager.GetApplication(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name != "" {
		app.Name = req.Name
	}
	if req.Description != "" {
		app.Description = req.Description
	}

	updated, err := s.manager.UpdateApplication(r.Context(), app)
	if err != nil {
		respondError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, applicationResource(updated, nil, nil))
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	actor := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		actor = claims.Subject
	}

	if err := s.manager.DeleteApplication(r.Context(), id, actor); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
