// Package httputil provides shared HTTP plumbing: JSON responses, RFC 9457
// problem documents, request decoding, and standard middleware.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

// RespondJSON writes v as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding JSON response")
	}
}

// RespondProblem writes an RFC 9457 problem document.
func RespondProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	problem := types.Problem{
		Type:      "about:blank",
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
	}

	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		log.Error().Err(err).Msg("encoding problem response")
	}
}

// RespondProblemf writes an RFC 9457 problem document with a formatted detail.
func RespondProblemf(w http.ResponseWriter, r *http.Request, status int, format string, args ...any) {
	RespondProblem(w, r, status, fmt.Sprintf(format, args...))
}

// DecodeJSON decodes a request body into v, rejecting unknown fields and
// trailing content.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body has trailing content")
	}
	return nil
}
