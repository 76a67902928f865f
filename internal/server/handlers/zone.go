// internal/server/handlers/zone.go

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/zone"
)

// ZoneHandler handles hotspot-zone HTTP requests
type ZoneHandler struct {
	manager zone.Manager
}

// NewZoneHandler creates a new zone handler
func NewZoneHandler(manager zone.Manager) *ZoneHandler {
	return &ZoneHandler{
		manager: manager,
	}
}

type zoneRequest struct {
	Type         zone.Type       `json:"zone_type"`
	Lat          *float64        `json:"lat"`
	Lng          *float64        `json:"lng"`
	RadiusMeters *int            `json:"radius_meters"`
	RiskLevel    *zone.RiskLevel `json:"risk_level"`
	IsActive     *bool           `json:"is_active"`
}

// CreateZone creates a new hotspot zone
func (h *ZoneHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil || req.RadiusMeters == nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Missing lat, lng or radius_meters")
		return
	}

	z := zone.Zone{
		Type:         req.Type,
		Center:       geo.Point{Lat: *req.Lat, Lng: *req.Lng},
		RadiusMeters: *req.RadiusMeters,
	}
	if req.RiskLevel != nil {
		z.RiskLevel = *req.RiskLevel
	}

	created, err := h.manager.CreateZone(r.Context(), z)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// ListZones returns zones matching query filters
func (h *ZoneHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	var filter zone.Filter

	if t := r.URL.Query().Get("type"); t != "" {
		filter.Type = zone.Type(t)
	}
	if activeStr := r.URL.Query().Get("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err == nil && active {
			filter.ActiveOnly = true
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	zones, err := h.manager.ListZones(r.Context(), filter)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, zones)
}

// GetZone returns a zone by ID
func (h *ZoneHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Missing zone ID")
		return
	}

	z, err := h.manager.GetZone(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, z)
}

// UpdateZone applies a partial update to a zone
func (h *ZoneHandler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Missing zone ID")
		return
	}

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	upd := zone.Update{
		RadiusMeters: req.RadiusMeters,
		RiskLevel:    req.RiskLevel,
		IsActive:     req.IsActive,
	}
	if req.Type != "" {
		upd.Type = &req.Type
	}
	if req.Lat != nil && req.Lng != nil {
		upd.Center = &geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	}

	z, err := h.manager.UpdateZone(r.Context(), id, upd)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, z)
}

// DissolveZone soft-deletes a zone
func (h *ZoneHandler) DissolveZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Missing zone ID")
		return
	}

	if err := h.manager.DissolveZone(r.Context(), id); err != nil {
		respondWithDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ZoneStats returns entry/exit aggregates for a zone
func (h *ZoneHandler) ZoneStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Missing zone ID")
		return
	}

	stats, err := h.manager.ZoneStats(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
