// internal/server/handlers/geofence.go

package handlers

import (
	"encoding/json"
	"net/http"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/zone"
)

// GeofenceHandler handles location-check requests
type GeofenceHandler struct {
	manager zone.Manager
}

// NewGeofenceHandler creates a new geofence handler
func NewGeofenceHandler(manager zone.Manager) *GeofenceHandler {
	return &GeofenceHandler{
		manager: manager,
	}
}

// CheckLocation returns the active zones containing the given point. An
// optional radius widens the check to every zone whose center lies within
// that many meters.
func (h *GeofenceHandler) CheckLocation(w http.ResponseWriter, r *http.Request) {
	type checkLocationRequest struct {
		Lat          *float64 `json:"lat"`
		Lng          *float64 `json:"lng"`
		RadiusMeters float64  `json:"radius,omitempty"`
	}

	var req checkLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Missing lat or lng")
		return
	}
	if req.RadiusMeters < 0 {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Radius must not be negative")
		return
	}

	p := geo.Point{Lat: *req.Lat, Lng: *req.Lng}

	var zones []zone.Zone
	var err error
	if req.RadiusMeters > 0 {
		zones, err = h.manager.ZonesNear(r.Context(), p, req.RadiusMeters)
	} else {
		zones, err = h.manager.ZonesContaining(r.Context(), p)
	}
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if zones == nil {
		zones = []zone.Zone{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"zones": zones,
	})
}
