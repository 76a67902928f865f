// internal/domain/incident/sync.go

package incident

import "time"

// ClientReport is an offline-queued incident report submitted in a sync
// batch. ClientID is opaque to the server and echoed back so the client
// can reconcile its local queue.
type ClientReport struct {
	ClientID       string    `json:"client_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Type           Type      `json:"type"`
	Description    string    `json:"description,omitempty"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	ReportedAt     time.Time `json:"reported_at"`
}

// SyncStatus is the per-report outcome of a sync attempt
type SyncStatus string

const (
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusDuplicate SyncStatus = "duplicate_submission"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncResult reports the independent outcome for one client report
type SyncResult struct {
	ClientID   string     `json:"client_id"`
	Status     SyncStatus `json:"status"`
	IncidentID string     `json:"incident_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}
