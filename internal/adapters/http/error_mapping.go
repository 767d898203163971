package httpadapter

import (
	"errors"
	"net/http"

	"github.com/advmus/invoicevault/internal/core/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// mapError translates domain failures into a status, a stable machine
// code, and optional structured details.
func mapError(err error) (int, string, map[string]any) {
	var dup *domain.DuplicateError
	if errors.As(err, &dup) {
		return http.StatusConflict, "duplicate_content", map[string]any{
			"existing_invoice_id": dup.ExistingInvoiceID,
		}
	}
	var transition *domain.TransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict, "illegal_transition", map[string]any{
			"from":    transition.From,
			"to":      transition.To,
			"allowed": transition.Allowed,
		}
	}

	switch {
	// Unsupported media wraps the invalid-input kind, so it must be
	// checked first to keep the 415.
	case domain.IsKind(err, domain.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported_media_type", nil
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", nil
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", nil
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict, "conflict", nil
	case domain.IsKind(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable", nil
	default:
		return http.StatusInternalServerError, "internal", nil
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, details := mapError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeErrorPayload(w, r, status, code, message, details)
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorPayload(w, r, status, code, message, nil)
}

func writeErrorPayload(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:      code,
		Message:   message,
		RequestID: requestIDFromContext(r.Context()),
		Details:   details,
	}})
}
