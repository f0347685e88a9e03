package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondAppError maps an error's kind to an HTTP status. Internal details
// stay in the logs; the client sees the AppError message only.
func respondAppError(w http.ResponseWriter, err error) {
	appErr := apperrors.Get(err)
	if appErr == nil {
		respondError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	switch appErr.Kind {
	case apperrors.KindValidation:
		respondError(w, appErr.Message, http.StatusBadRequest)
	case apperrors.KindNotFound:
		respondError(w, appErr.Message, http.StatusNotFound)
	case apperrors.KindConflict, apperrors.KindSourceIO, apperrors.KindDatabase:
		respondError(w, appErr.Message, http.StatusInternalServerError)
	default:
		respondError(w, "internal server error", http.StatusInternalServerError)
	}
}
