// internal/server/handlers/respond.go

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"safewatch/internal/domain/incident"
	"safewatch/internal/domain/zone"
)

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses with a structured code so clients can
// distinguish validation failures, business-rule conflicts and transient
// errors
func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, map[string]string{
		"code":  code,
		"error": message,
	})
}

// respondWithDomainError maps domain sentinel errors onto HTTP statuses
func respondWithDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, zone.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", "Zone not found")
	case errors.Is(err, zone.ErrOverlap):
		respondWithError(w, http.StatusConflict, "zone_overlap", err.Error())
	case errors.Is(err, zone.ErrValidation), errors.Is(err, incident.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
