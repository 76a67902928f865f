// internal/domain/zone/manager.go

package zone

import (
	"context"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
)

// Manager defines the interface for hotspot zone management
type Manager interface {
	// CreateZone validates and creates a new hotspot zone, enforcing the
	// same-type overlap rule
	CreateZone(ctx context.Context, z Zone) (*Zone, error)

	// GetZone returns a zone by ID
	GetZone(ctx context.Context, id string) (*Zone, error)

	// ListZones returns zones matching the given filter
	ListZones(ctx context.Context, filter Filter) ([]Zone, error)

	// UpdateZone applies a partial update, re-running the overlap check
	// when center or radius change
	UpdateZone(ctx context.Context, id string, upd Update) (*Zone, error)

	// DissolveZone soft-deletes a zone, preserving membership history
	DissolveZone(ctx context.Context, id string) error

	// ZonesNear returns active zones whose center is within radiusMeters
	// of the given point
	ZonesNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]Zone, error)

	// ZonesContaining returns active zones whose own radius covers the
	// given point
	ZonesContaining(ctx context.Context, p geo.Point) ([]Zone, error)

	// OnIncidentCreated updates statistics and risk for zones the incident
	// falls into
	OnIncidentCreated(ctx context.Context, inc incident.Incident) error

	// ZoneStats aggregates membership history for a zone
	ZoneStats(ctx context.Context, id string) (*Stats, error)
}

// Tracker evaluates zone occupancy for a user's location updates and emits
// entry/exit/approach transitions
type Tracker interface {
	// ProcessLocationUpdate recomputes the user's in-zone set from scratch
	// and reconciles open membership rows against it
	ProcessLocationUpdate(ctx context.Context, userID string, premium bool, p geo.Point) error
}
