// internal/server/handlers/travel.go

package handlers

import (
	"encoding/json"
	"net/http"

	"safewatch/internal/domain/geo"
	"safewatch/internal/service/travel"
)

// TravelHandler handles route-safety HTTP requests
type TravelHandler struct {
	analyzer *travel.Analyzer
}

// NewTravelHandler creates a new travel handler
func NewTravelHandler(analyzer *travel.Analyzer) *TravelHandler {
	return &TravelHandler{
		analyzer: analyzer,
	}
}

type routeRequest struct {
	Origin       *geo.Point `json:"origin"`
	Destination  *geo.Point `json:"destination"`
	RadiusMeters float64    `json:"radius,omitempty"`
}

func decodeRouteRequest(w http.ResponseWriter, r *http.Request) (*routeRequest, bool) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return nil, false
	}
	if req.Origin == nil || req.Destination == nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Missing origin or destination")
		return nil, false
	}
	return &req, true
}

// AnalyzeRoute scores the corridor between origin and destination
func (h *TravelHandler) AnalyzeRoute(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRouteRequest(w, r)
	if !ok {
		return
	}

	analysis, err := h.analyzer.AnalyzeRoute(r.Context(), *req.Origin, *req.Destination, req.RadiusMeters)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, analysis)
}

// AlternativeRoutes proposes ranked detours around the direct route
func (h *TravelHandler) AlternativeRoutes(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRouteRequest(w, r)
	if !ok {
		return
	}

	options, err := h.analyzer.SuggestAlternativeRoutes(r.Context(), *req.Origin, *req.Destination)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, options)
}
