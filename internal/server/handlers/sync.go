// internal/server/handlers/sync.go

package handlers

import (
	"encoding/json"
	"net/http"

	"safewatch/internal/domain/incident"
	"safewatch/internal/service/offline"
)

// SyncHandler handles offline report batches
type SyncHandler struct {
	reconciler *offline.Reconciler
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(reconciler *offline.Reconciler) *SyncHandler {
	return &SyncHandler{
		reconciler: reconciler,
	}
}

// SyncReports reconciles a batch of client-queued incident reports. The
// authenticated user ID is taken from the X-User-ID header set by the
// session layer.
func (h *SyncHandler) SyncReports(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated", "Missing user identity")
		return
	}

	type syncRequest struct {
		Reports []incident.ClientReport `json:"reports"`
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if len(req.Reports) == 0 {
		respondWithError(w, http.StatusBadRequest, "validation_error", "Empty report batch")
		return
	}

	results := h.reconciler.SyncReports(r.Context(), userID, req.Reports)

	synced := 0
	failed := 0
	for _, res := range results {
		switch res.Status {
		case incident.SyncStatusFailed:
			failed++
		default:
			// Duplicates already succeeded once; clients treat them as
			// synced.
			synced++
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"synced":  synced,
		"failed":  failed,
		"results": results,
	})
}
