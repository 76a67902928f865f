// internal/adapter/storage/zone_store.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/zone"
)

const zoneColumns = `
	id, zone_type, ST_Y(center::geometry) AS lat, ST_X(center::geometry) AS lng,
	radius_meters, incident_count, risk_level, is_active,
	last_incident_at, created_at, updated_at
`

// ZoneStore implements storage for hotspot zones
type ZoneStore struct {
	db *pgxpool.Pool
}

// NewZoneStore creates a new zone store
func NewZoneStore(db *pgxpool.Pool) *ZoneStore {
	return &ZoneStore{
		db: db,
	}
}

// SaveZone inserts or updates a zone. incident_count and last_incident_at
// are owned by RecordIncident; the conflict branch leaves them alone so an
// increment landing between a caller's read and its save is never lost.
func (s *ZoneStore) SaveZone(ctx context.Context, z zone.Zone) error {
	query := `
		INSERT INTO zones (
			id, zone_type, center, radius_meters,
			incident_count, risk_level, is_active,
			last_incident_at, created_at, updated_at
		) VALUES (
			$1, $2, ST_MakePoint($3, $4)::geography, $5,
			$6, $7, $8,
			$9, $10, $11
		)
		ON CONFLICT (id) DO UPDATE
		SET
			zone_type = $2,
			center = ST_MakePoint($3, $4)::geography,
			radius_meters = $5,
			risk_level = $7,
			is_active = $8,
			updated_at = $11
	`

	_, err := s.db.Exec(
		ctx,
		query,
		z.ID,
		string(z.Type),
		z.Center.Lng,
		z.Center.Lat,
		z.RadiusMeters,
		z.IncidentCount,
		string(z.RiskLevel),
		z.IsActive,
		z.LastIncidentAt,
		z.CreatedAt,
		z.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving zone: %w", err)
	}

	return nil
}

// GetZone retrieves a zone by ID
func (s *ZoneStore) GetZone(ctx context.Context, id string) (*zone.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE id = $1`

	z, err := scanZone(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, zone.ErrNotFound
		}
		return nil, fmt.Errorf("error getting zone: %w", err)
	}

	return z, nil
}

// FindZones returns zones matching the filter
func (s *ZoneStore) FindZones(ctx context.Context, filter zone.Filter) ([]zone.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE 1=1`
	args := []interface{}{}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND zone_type = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active"
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing zones: %w", err)
	}
	defer rows.Close()

	return collectZones(rows)
}

// FindNear returns active zones whose center is within radiusMeters of the
// given point
func (s *ZoneStore) FindNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]zone.Zone, error) {
	query := `
		SELECT ` + zoneColumns + `
		FROM zones
		WHERE is_active
		AND ST_DWithin(center, ST_MakePoint($1, $2)::geography, $3)
		ORDER BY ST_Distance(center, ST_MakePoint($1, $2)::geography)
	`

	rows, err := s.db.Query(ctx, query, p.Lng, p.Lat, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("error querying nearby zones: %w", err)
	}
	defer rows.Close()

	return collectZones(rows)
}

// FindContaining returns active zones whose own radius covers the point
func (s *ZoneStore) FindContaining(ctx context.Context, p geo.Point) ([]zone.Zone, error) {
	query := `
		SELECT ` + zoneColumns + `
		FROM zones
		WHERE is_active
		AND ST_DWithin(center, ST_MakePoint($1, $2)::geography, radius_meters)
	`

	rows, err := s.db.Query(ctx, query, p.Lng, p.Lat)
	if err != nil {
		return nil, fmt.Errorf("error querying containing zones: %w", err)
	}
	defer rows.Close()

	return collectZones(rows)
}

// FindApproaching returns active zones whose boundary lies within
// thresholdMeters of the point, including zones that already contain it.
// The tracker subtracts the containing set to get pure approaches.
func (s *ZoneStore) FindApproaching(ctx context.Context, p geo.Point, thresholdMeters float64) ([]zone.Zone, error) {
	query := `
		SELECT ` + zoneColumns + `
		FROM zones
		WHERE is_active
		AND ST_DWithin(center, ST_MakePoint($1, $2)::geography, radius_meters + $3)
	`

	rows, err := s.db.Query(ctx, query, p.Lng, p.Lat, thresholdMeters)
	if err != nil {
		return nil, fmt.Errorf("error querying approaching zones: %w", err)
	}
	defer rows.Close()

	return collectZones(rows)
}

// FindNearbySameType returns active zones of the given type within
// radiusMeters of the point, excluding excludeID. Used for the overlap
// check at create and update time.
func (s *ZoneStore) FindNearbySameType(ctx context.Context, t zone.Type, p geo.Point, radiusMeters float64, excludeID string) ([]zone.Zone, error) {
	query := `
		SELECT ` + zoneColumns + `
		FROM zones
		WHERE is_active
		AND zone_type = $1
		AND id != $4
		AND ST_DWithin(center, ST_MakePoint($2, $3)::geography, $5)
	`

	rows, err := s.db.Query(ctx, query, string(t), p.Lng, p.Lat, excludeID, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("error querying neighbor zones: %w", err)
	}
	defer rows.Close()

	return collectZones(rows)
}

// FindMatchingZones returns active zones of the given type whose radius
// covers the point, used when reacting to incident creation
func (s *ZoneStore) FindMatchingZones(ctx context.Context, t zone.Type, p geo.Point) ([]zone.Zone, error) {
	query := `
		SELECT ` + zoneColumns + `
		FROM zones
		WHERE is_active
		AND zone_type = $1
		AND ST_DWithin(center, ST_MakePoint($2, $3)::geography, radius_meters)
	`

	rows, err := s.db.Query(ctx, query, string(t), p.Lng, p.Lat)
	if err != nil {
		return nil, fmt.Errorf("error querying matching zones: %w", err)
	}
	defer rows.Close()

	return collectZones(rows)
}

// RecordIncident increments a zone's counter, refreshes last_incident_at
// and re-derives the risk tier in a single transaction so the update is
// all-or-nothing under concurrent incident creation. Returns the updated
// zone.
func (s *ZoneStore) RecordIncident(ctx context.Context, zoneID string, at time.Time, tiers zone.RiskThresholds) (*zone.Zone, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	err = tx.QueryRow(ctx, `
		UPDATE zones
		SET incident_count = incident_count + 1,
		    last_incident_at = $2,
		    updated_at = $2
		WHERE id = $1
		RETURNING incident_count
	`, zoneID, at).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, zone.ErrNotFound
		}
		return nil, fmt.Errorf("error incrementing zone counter: %w", err)
	}

	risk := zone.RiskForCount(count, tiers)

	z, err := scanZone(tx.QueryRow(ctx, `
		UPDATE zones SET risk_level = $2 WHERE id = $1
		RETURNING `+zoneColumns,
		zoneID, string(risk)))
	if err != nil {
		return nil, fmt.Errorf("error updating zone risk: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing zone update: %w", err)
	}

	return z, nil
}

// SetActive flips a zone's active flag, preserving all history
func (s *ZoneStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE zones SET is_active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("error updating zone active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return zone.ErrNotFound
	}

	return nil
}

// DissolveStale deactivates zones with no incident activity since the
// cutoff, returning how many were dissolved
func (s *ZoneStore) DissolveStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE zones
		SET is_active = false, updated_at = now()
		WHERE is_active
		AND COALESCE(last_incident_at, created_at) < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error dissolving stale zones: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanZone(row pgx.Row) (*zone.Zone, error) {
	var z zone.Zone
	var zoneType, riskLevel string

	err := row.Scan(
		&z.ID,
		&zoneType,
		&z.Center.Lat,
		&z.Center.Lng,
		&z.RadiusMeters,
		&z.IncidentCount,
		&riskLevel,
		&z.IsActive,
		&z.LastIncidentAt,
		&z.CreatedAt,
		&z.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	z.Type = zone.Type(zoneType)
	z.RiskLevel = zone.RiskLevel(riskLevel)
	return &z, nil
}

func collectZones(rows pgx.Rows) ([]zone.Zone, error) {
	var zones []zone.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning zone: %w", err)
		}
		zones = append(zones, *z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %w", err)
	}

	return zones, nil
}
