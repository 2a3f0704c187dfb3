package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/service"
)

type errorResponse struct {
	Error               string                    `json:"error"`
	LinkedConversations []records.ConversationRef `json:"linked_conversations,omitempty"`
	Messages            []records.Message         `json:"messages,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict *service.ConflictError
		upstream *service.UpstreamError
	)
	switch {
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:               err.Error(),
			LinkedConversations: conflict.References,
		})
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:    err.Error(),
			Messages: upstream.Messages,
		})
	case errors.Is(err, service.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// decodeJSON reads a JSON body into v. Failures are validation errors.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", service.ErrValidation, err)
	}
	return nil
}
