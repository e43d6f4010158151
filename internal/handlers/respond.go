// Package handlers serves the console API over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/model"
)

// responder holds what every handler needs to write a response.
type responder struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// decode reads a JSON request body into v. A failure is answered with
// 400 and recorded against operation; the caller should return.
func (h responder) decode(w http.ResponseWriter, r *http.Request, operation string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debug("Failed to decode request body",
			zap.String("operation", operation),
			zap.Error(err),
		)
		h.recordRejected(operation)
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// fail answers with the status and message carried by err. Unclassified
// errors are answered with fallback.
func (h responder) fail(w http.ResponseWriter, operation string, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("operation", operation),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("Request rejected",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
	h.respondError(w, status, apperr.Message(err, fallback))
}

// respondError sends an error response.
func (h responder) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, model.ErrorResponse{Error: message})
}

// respondSuccess sends {"success": true}.
func (h responder) respondSuccess(w http.ResponseWriter) {
	h.respondJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}

// respondJSON sends a JSON response.
func (h responder) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// recordRejected counts a request rejected before it reached the console.
func (h responder) recordRejected(operation string) {
	if h.metrics != nil && h.metrics.OperationsTotal != nil {
		h.metrics.OperationsTotal.WithLabelValues(operation, apperr.KindInvalid.String()).Inc()
	}
}
