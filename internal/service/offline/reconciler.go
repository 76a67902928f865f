// internal/service/offline/reconciler.go

// Package offline reconciles batches of client-queued incident reports
// against previously accepted submissions using client-generated
// idempotency keys.
package offline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
)

// IdempotencyStore persists idempotency records atomically with the
// incidents they produce
type IdempotencyStore interface {
	// Lookup returns the incident previously recorded for a key
	Lookup(ctx context.Context, key string) (string, bool, error)

	// CreateWithKey inserts the incident and its idempotency record in one
	// transaction, returning incident.ErrDuplicateSubmission on a key race
	CreateWithKey(ctx context.Context, inc incident.Incident, key string) (*incident.Incident, error)
}

// CreatedHandler reacts to a successfully synced incident (zone stat
// updates, cell broadcast). Handlers run with at-least-once semantics:
// a failure is logged and the incident stays synced.
type CreatedHandler func(ctx context.Context, inc incident.Incident) error

// Reconciler processes sync batches report-by-report with independent
// outcomes
type Reconciler struct {
	store    IdempotencyStore
	logger   *zap.Logger
	handlers []CreatedHandler
}

// NewReconciler creates a new sync reconciler
func NewReconciler(store IdempotencyStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
	}
}

// RegisterCreatedHandler registers a callback for newly synced incidents
func (r *Reconciler) RegisterCreatedHandler(handler CreatedHandler) {
	r.handlers = append(r.handlers, handler)
}

// SyncReports reconciles one user's batch. One report's failure never
// aborts or rolls back its siblings.
func (r *Reconciler) SyncReports(ctx context.Context, userID string, reports []incident.ClientReport) []incident.SyncResult {
	results := make([]incident.SyncResult, 0, len(reports))
	for _, report := range reports {
		results = append(results, r.syncOne(ctx, userID, report))
	}
	return results
}

func (r *Reconciler) syncOne(ctx context.Context, userID string, report incident.ClientReport) incident.SyncResult {
	result := incident.SyncResult{ClientID: report.ClientID}

	if report.IdempotencyKey == "" {
		result.Status = incident.SyncStatusFailed
		result.Error = "missing idempotency key"
		return result
	}

	reportedAt := report.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}

	inc := incident.Incident{
		Type:        report.Type,
		Description: report.Description,
		Location:    geo.Point{Lat: report.Lat, Lng: report.Lng},
		ReportedBy:  userID,
		CreatedAt:   reportedAt,
	}
	if err := inc.Validate(); err != nil {
		result.Status = incident.SyncStatusFailed
		result.Error = err.Error()
		return result
	}

	// Previously accepted submissions are a soft success for the client.
	if existingID, found, err := r.store.Lookup(ctx, report.IdempotencyKey); err != nil {
		r.logger.Error("failed to look up idempotency key",
			zap.String("user_id", userID),
			zap.String("client_id", report.ClientID),
			zap.Error(err))
		result.Status = incident.SyncStatusFailed
		result.Error = "temporary failure, retry later"
		return result
	} else if found {
		result.Status = incident.SyncStatusDuplicate
		result.IncidentID = existingID
		return result
	}

	created, err := r.store.CreateWithKey(ctx, inc, report.IdempotencyKey)
	if err != nil {
		if errors.Is(err, incident.ErrDuplicateSubmission) {
			// Lost the insert race to a concurrent submission of the same
			// key; report it as the duplicate it is.
			existingID, _, _ := r.store.Lookup(ctx, report.IdempotencyKey)
			result.Status = incident.SyncStatusDuplicate
			result.IncidentID = existingID
			return result
		}

		r.logger.Error("failed to sync report",
			zap.String("user_id", userID),
			zap.String("client_id", report.ClientID),
			zap.Error(err))
		result.Status = incident.SyncStatusFailed
		result.Error = "temporary failure, retry later"
		return result
	}

	for _, handler := range r.handlers {
		if err := handler(ctx, *created); err != nil {
			r.logger.Error("incident created handler failed",
				zap.String("incident_id", created.ID),
				zap.Error(err))
		}
	}

	result.Status = incident.SyncStatusSynced
	result.IncidentID = created.ID
	return result
}
