package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/logger"
)

const internalErrorDetail = "An internal server error occurred."

type errorResponse struct {
	Detail      string   `json:"detail"`
	Cause       string   `json:"cause,omitempty"`
	EntityTypes []string `json:"unsupported_entity_types,omitempty"`
}

// writeError maps a service failure to a status code and body. Client
// failures answer 400; everything else answers 500 and hides its details in
// production.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger.WithRequestID(logger.RequestIDFromContext(r.Context()))

	if domain.IsClientError(err) {
		resp := errorResponse{Detail: err.Error()}
		var de *domain.Error
		if errors.As(err, &de) {
			resp.Detail = de.Error()
			resp.EntityTypes = de.EntityTypes
		}
		log.Info("Request rejected",
			zap.String("path", r.URL.Path),
			zap.String("kind", domain.KindOf(err).String()),
			zap.Error(err))
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	log.Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.String("kind", domain.KindOf(err).String()),
		zap.Error(err))

	if s.config.Server.IsProduction() {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: internalErrorDetail})
		return
	}

	resp := errorResponse{Detail: err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Detail = de.Msg
		if de.Cause != nil {
			resp.Cause = de.Cause.Error()
		}
	}
	if resp.Detail == "" {
		resp.Detail = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
