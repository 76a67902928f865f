// internal/adapter/storage/incident_store.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
)

const incidentColumns = `
	id, incident_type, description,
	ST_Y(location::geometry) AS lat, ST_X(location::geometry) AS lng,
	reported_by, verification_count, created_at, expires_at
`

// IncidentStore serves incident reads for route scoring and hotspot
// detection. Inserts happen in the idempotency store so the record and
// its key land in one transaction.
type IncidentStore struct {
	db *pgxpool.Pool
}

// NewIncidentStore creates a new incident store
func NewIncidentStore(db *pgxpool.Pool) *IncidentStore {
	return &IncidentStore{
		db: db,
	}
}

// FindNear returns unexpired incidents within radiusMeters of a point
func (s *IncidentStore) FindNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]incident.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE (expires_at IS NULL OR expires_at > now())
		AND ST_DWithin(location, ST_MakePoint($1, $2)::geography, $3)
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(ctx, query, p.Lng, p.Lat, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("error querying nearby incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// FindRecent returns incidents of a type reported since the given time
func (s *IncidentStore) FindRecent(ctx context.Context, t incident.Type, since time.Time) ([]incident.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE incident_type = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(ctx, query, string(t), since)
	if err != nil {
		return nil, fmt.Errorf("error querying recent incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var inc incident.Incident
	var incType string

	err := row.Scan(
		&inc.ID,
		&incType,
		&inc.Description,
		&inc.Location.Lat,
		&inc.Location.Lng,
		&inc.ReportedBy,
		&inc.VerificationCount,
		&inc.CreatedAt,
		&inc.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	inc.Type = incident.Type(incType)
	return &inc, nil
}

func collectIncidents(rows pgx.Rows) ([]incident.Incident, error) {
	var incidents []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}

	return incidents, nil
}
