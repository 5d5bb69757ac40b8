package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apiforge-io/apiforge-apps/internal/auth"
	"github.com/apiforge-io/apiforge-apps/internal/httputil"
	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

func (s *Server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req types.CreateCredentialRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Environment == "" {
		httputil.RespondProblem(w, r, http.StatusBadRequest, "environment is required")
		return
	}

	actor := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		actor = claims.Subject
	}

	credential, secret, err := s.manager.IssueCredential(r.Context(), id, req.Environment, actor)
	if err != nil {
		respondError(w, r, err)
		return
	}

	// The secret appears in this response only; it is never stored.
	httputil.RespondJSON(w, http.StatusCreated, credentialResource(credential, secret))
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	credentials, err := s.manager.ListCredentials(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	list := types.ResourceList[types.Credential]{
		Kind:       "CredentialList",
		APIVersion: apiVersion,
		Metadata:   types.ListMetadata{Total: len(credentials), Limit: len(credentials)},
		Items:      []types.Resource[types.Credential]{},
	}
	for _, credential := range credentials {
		list.Items = append(list.Items, credentialResource(credential, ""))
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}

func (s *Server) handleRevokeCredentials(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	environment := chi.URLParam(r, "env")

	actor := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		actor = claims.Subject
	}

	if err := s.manager.RevokeCredentials(r.Context(), id, environment, actor); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
