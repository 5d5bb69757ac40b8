package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apiforge-io/apiforge-apps/internal/auth"
	"github.com/apiforge-io/apiforge-apps/internal/httputil"
	"github.com/apiforge-io/apiforge-apps/internal/model"
	"github.com/apiforge-io/apiforge-apps/internal/store"
	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func (s *Server) handleSubmitAccessRequest(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitAccessRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	requestedBy := ""
	requesterEmail := req.RequesterEmail
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		requestedBy = claims.Subject
		if requesterEmail == "" {
			requesterEmail = claims.Email
		}
	}

	created, err := s.manager.SubmitAccessRequest(r.Context(), model.AccessRequest{
		ApplicationID:  req.ApplicationID,
		RequestedBy:    requestedBy,
		RequesterEmail: requesterEmail,
		Reason:         req.Reason,
		Scopes:         req.Scopes,
		Environments:   req.Environments,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, accessRequestResource(created))
}

func (s *Server) handleListAccessRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	requests, total, err := s.manager.ListAccessRequests(r.Context(), store.ListAccessRequestsOptions{
		ApplicationID: r.URL.Query().Get("application"),
		State:         r.URL.Query().Get("state"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	list := types.ResourceList[types.AccessRequest]{
		Kind:       "AccessRequestList",
		APIVersion: apiVersion,
		Metadata:   types.ListMetadata{Total: total, Limit: limit, Offset: offset},
		Items:      []types.Resource[types.AccessRequest]{},
	}
	for _, request := range requests {
		list.Items = append(list.Items, accessRequestResource(request))
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAccessRequest(w http.ResponseWriter, r *http.Request) {
	request, err := s.manager.GetAccessRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, accessRequestResource(request))
}

func (s *Server) handleApproveAccessRequest(w http.ResponseWriter, r *http.Request) {
	s.decideAccessRequest(w, r, s.manager.ApproveAccessRequest)
}

func (s *Server) handleRejectAccessRequest(w http.ResponseWriter, r *http.Request) {
	s.decideAccessRequest(w, r, s.manager.RejectAccessRequest)
}

// handleCancelAccessRequest allows the original requester or an admin to
// withdraw a request; other callers are refused even with write scope.
func (s *Server) handleCancelAccessRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.RespondProblem(w, r, http.StatusForbidden, "no claims in context")
		return
	}

	request, err := s.manager.GetAccessRequest(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if request.RequestedBy != claims.Subject && !claims.HasScope("admin") {
		httputil.RespondProblem(w, r, http.StatusForbidden, "only the requester or an admin can cancel")
		return
	}

	s.decideAccessRequest(w, r, s.manager.CancelAccessRequest)
}

type decisionFunc func(ctx context.Context, id, actor, note string) (model.AccessRequest, error)

func (s *Server) decideAccessRequest(w http.ResponseWriter, r *http.Request, decide decisionFunc) {
	id := chi.URLParam(r, "id")

	var req types.DecideAccessRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
	}

	actor := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		actor = claims.Subject
	}

	decided, err := decide(r.Context(), id, actor, req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, accessRequestResource(decided))
}
