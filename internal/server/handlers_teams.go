package server

import (
	"net/http"

	"github.com/apiforge-io/apiforge-apps/internal/httputil"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req types.CreateTeamRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	team, err := s.manager.CreateTeam(r.Context(), model.Team{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, teamResource(team))
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	teams, total, err := s.manager.ListTeams(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	list := types.ResourceList[types.Team]{
		Kind:       "TeamList",
		APIVersion: apiVersion,
		Metadata:   types.ListMetadata{Total: total, Limit: limit, Offset: offset},
		Items:      []types.Resource[types.Team]{},
	}
	for _, team := range teams {
		list.Items = append(list.Items, teamResource(team))
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	recent, total, err := s.manager.ListEvents(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	list := types.ResourceList[types.Event]{
		Kind:       "EventList",
		APIVersion: apiVersion,
		Metadata:   types.ListMetadata{Total: total, Limit: limit, Offset: offset},
		Items:      []types.Resource[types.Event]{},
	}
	for _, event := range recent {
		list.Items = append(list.Items, eventResource(event))
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}
