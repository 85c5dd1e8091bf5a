package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"mercator-hq/helios/pkg/governance"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	// Field names the offending input of a validation error.
	Field string `json:"field,omitempty"`
}

// Error types.
const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeNotFound    = "not_found"
	ErrorTypeConflict    = "conflict"
	ErrorTypeEvaluation  = "evaluation_error"
	ErrorTypeInternal    = "internal_error"
	ErrorTypeUnavailable = "unavailable"
)

// classify maps an engine error to a status code and error detail.
func classify(err error) (int, ErrorDetail) {
	detail := ErrorDetail{Message: err.Error()}

	var verr *governance.ValidationError
	switch {
	case errors.As(err, &verr):
		detail.Type = ErrorTypeValidation
		detail.Field = verr.Field
		return http.StatusBadRequest, detail
	case errors.Is(err, governance.ErrValidation):
		detail.Type = ErrorTypeValidation
		return http.StatusBadRequest, detail
	case errors.Is(err, governance.ErrNotFound):
		detail.Type = ErrorTypeNotFound
		return http.StatusNotFound, detail
	case errors.Is(err, governance.ErrInvalidTransition),
		errors.Is(err, governance.ErrDuplicateRequest),
		errors.Is(err, governance.ErrConcurrencyConflict):
		detail.Type = ErrorTypeConflict
		return http.StatusConflict, detail
	case errors.Is(err, governance.ErrEvaluation):
		detail.Type = ErrorTypeEvaluation
		return http.StatusUnprocessableEntity, detail
	default:
		detail.Type = ErrorTypeInternal
		return http.StatusInternalServerError, detail
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, detail := classify(err)
	if code >= 500 {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		detail.Message = "an internal error occurred"
	}
	writeJSON(w, code, ErrorResponse{Error: detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
