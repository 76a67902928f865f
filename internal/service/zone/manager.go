// internal/service/zone/manager.go

package zone

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
	"safewatch/internal/domain/zone"
	"safewatch/internal/service/router"
)

// Store defines the storage interface the manager needs
type Store interface {
	// SaveZone inserts or updates a zone
	SaveZone(ctx context.Context, z zone.Zone) error

	// GetZone retrieves a zone by ID
	GetZone(ctx context.Context, id string) (*zone.Zone, error)

	// FindZones returns zones matching the filter
	FindZones(ctx context.Context, filter zone.Filter) ([]zone.Zone, error)

	// FindNear returns active zones with centers within radiusMeters of p
	FindNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]zone.Zone, error)

	// FindContaining returns active zones whose radius covers p
	FindContaining(ctx context.Context, p geo.Point) ([]zone.Zone, error)

	// FindNearbySameType returns overlap-check candidates
	FindNearbySameType(ctx context.Context, t zone.Type, p geo.Point, radiusMeters float64, excludeID string) ([]zone.Zone, error)

	// FindMatchingZones returns active zones of a type covering p
	FindMatchingZones(ctx context.Context, t zone.Type, p geo.Point) ([]zone.Zone, error)

	// RecordIncident transactionally bumps counters and re-derives risk
	RecordIncident(ctx context.Context, zoneID string, at time.Time, tiers zone.RiskThresholds) (*zone.Zone, error)

	// SetActive flips the active flag
	SetActive(ctx context.Context, id string, active bool) error
}

// StatsStore aggregates membership history for zone statistics
type StatsStore interface {
	Stats(ctx context.Context, zoneID string) (*zone.Stats, error)
}

// ManagerConfig contains configuration for the zone manager
type ManagerConfig struct {
	// OverlapSearchPadMeters widens the neighbor search beyond the
	// candidate radius
	OverlapSearchPadMeters float64

	// MaxOverlapPercent is the rejection threshold for the overlap metric
	MaxOverlapPercent float64

	// RiskThresholds maps incident counts to risk tiers
	RiskThresholds zone.RiskThresholds

	// EventsTopic is the bus subject for zone lifecycle events
	EventsTopic string
}

// Manager implements the zone.Manager interface
type Manager struct {
	store       Store
	memberships StatsStore
	bus         router.Bus
	logger      *zap.Logger
	config      ManagerConfig
}

// NewManager creates a new zone manager
func NewManager(store Store, memberships StatsStore, bus router.Bus, logger *zap.Logger, config ManagerConfig) *Manager {
	return &Manager{
		store:       store,
		memberships: memberships,
		bus:         bus,
		logger:      logger,
		config:      config,
	}
}

// CreateZone validates and creates a new hotspot zone
func (m *Manager) CreateZone(ctx context.Context, z zone.Zone) (*zone.Zone, error) {
	if z.RiskLevel == "" {
		z.RiskLevel = zone.RiskLow
	}
	if err := validateZone(z); err != nil {
		return nil, err
	}

	if err := m.checkOverlap(ctx, z, ""); err != nil {
		return nil, err
	}

	if z.ID == "" {
		z.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	z.CreatedAt = now
	z.UpdatedAt = now
	z.IsActive = true

	if err := m.store.SaveZone(ctx, z); err != nil {
		return nil, err
	}

	m.publishEvent("zone_created", z)
	return &z, nil
}

// GetZone returns a zone by ID
func (m *Manager) GetZone(ctx context.Context, id string) (*zone.Zone, error) {
	return m.store.GetZone(ctx, id)
}

// ListZones returns zones matching the filter
func (m *Manager) ListZones(ctx context.Context, filter zone.Filter) ([]zone.Zone, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return m.store.FindZones(ctx, filter)
}

// UpdateZone applies a partial update. The overlap check re-runs only when
// center or radius change, excluding the zone itself from the neighbor
// search.
func (m *Manager) UpdateZone(ctx context.Context, id string, upd zone.Update) (*zone.Zone, error) {
	z, err := m.store.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}

	geometryChanged := false
	if upd.Type != nil {
		z.Type = *upd.Type
	}
	if upd.Center != nil {
		z.Center = *upd.Center
		geometryChanged = true
	}
	if upd.RadiusMeters != nil {
		z.RadiusMeters = *upd.RadiusMeters
		geometryChanged = true
	}
	if upd.RiskLevel != nil {
		z.RiskLevel = *upd.RiskLevel
	}
	if upd.IsActive != nil {
		z.IsActive = *upd.IsActive
	}

	if err := validateZone(*z); err != nil {
		return nil, err
	}
	if geometryChanged {
		if err := m.checkOverlap(ctx, *z, z.ID); err != nil {
			return nil, err
		}
	}

	z.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveZone(ctx, *z); err != nil {
		return nil, err
	}

	m.publishEvent("zone_updated", *z)
	return z, nil
}

// DissolveZone soft-deletes a zone. Membership history stays intact.
func (m *Manager) DissolveZone(ctx context.Context, id string) error {
	z, err := m.store.GetZone(ctx, id)
	if err != nil {
		return err
	}

	if err := m.store.SetActive(ctx, id, false); err != nil {
		return err
	}

	z.IsActive = false
	m.publishEvent("zone_dissolved", *z)
	return nil
}

// ZonesNear returns active zones whose center lies within radiusMeters of
// the point
func (m *Manager) ZonesNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]zone.Zone, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", zone.ErrValidation)
	}
	return m.store.FindNear(ctx, p, radiusMeters)
}

// ZonesContaining returns active zones whose own radius covers the point
func (m *Manager) ZonesContaining(ctx context.Context, p geo.Point) ([]zone.Zone, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", zone.ErrValidation)
	}
	return m.store.FindContaining(ctx, p)
}

// OnIncidentCreated updates statistics for every active zone of matching
// type whose radius covers the incident. Counter updates are all-or-nothing
// per zone; a transient store failure is returned so the caller's
// at-least-once delivery can retry.
func (m *Manager) OnIncidentCreated(ctx context.Context, inc incident.Incident) error {
	zones, err := m.store.FindMatchingZones(ctx, zone.Type(inc.Type), inc.Location)
	if err != nil {
		return fmt.Errorf("error finding zones for incident %s: %w", inc.ID, err)
	}

	at := inc.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var firstErr error
	for _, z := range zones {
		updated, err := m.store.RecordIncident(ctx, z.ID, at, m.config.RiskThresholds)
		if err != nil {
			m.logger.Error("failed to record incident against zone",
				zap.String("zone_id", z.ID),
				zap.String("incident_id", inc.ID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if updated.RiskLevel != z.RiskLevel {
			m.logger.Info("zone risk level changed",
				zap.String("zone_id", z.ID),
				zap.String("from", string(z.RiskLevel)),
				zap.String("to", string(updated.RiskLevel)))
		}
		m.publishEvent("zone_updated", *updated)
	}

	return firstErr
}

// ZoneStats aggregates membership history for a zone
func (m *Manager) ZoneStats(ctx context.Context, id string) (*zone.Stats, error) {
	if _, err := m.store.GetZone(ctx, id); err != nil {
		return nil, err
	}
	return m.memberships.Stats(ctx, id)
}

// checkOverlap rejects the candidate when the radius-normalized overlap
// metric against any active same-type neighbor exceeds the configured
// threshold
func (m *Manager) checkOverlap(ctx context.Context, candidate zone.Zone, excludeID string) error {
	searchRadius := float64(candidate.RadiusMeters) + m.config.OverlapSearchPadMeters

	neighbors, err := m.store.FindNearbySameType(ctx, candidate.Type, candidate.Center, searchRadius, excludeID)
	if err != nil {
		return fmt.Errorf("error searching overlap neighbors: %w", err)
	}

	for _, n := range neighbors {
		if pct := zone.OverlapPercent(candidate, n); pct > m.config.MaxOverlapPercent {
			return fmt.Errorf("%w: %.0f%% overlap with zone %s", zone.ErrOverlap, pct, n.ID)
		}
	}

	return nil
}

// publishEvent emits a zone lifecycle event on the shared bus. Delivery is
// best-effort.
func (m *Manager) publishEvent(kind string, z zone.Zone) {
	payload, err := json.Marshal(map[string]interface{}{
		"event": kind,
		"zone":  z,
	})
	if err != nil {
		return
	}

	if err := m.bus.Publish(m.config.EventsTopic, payload); err != nil {
		m.logger.Warn("failed to publish zone event",
			zap.String("event", kind),
			zap.String("zone_id", z.ID),
			zap.Error(err))
	}
}

func validateZone(z zone.Zone) error {
	if !zone.ValidType(z.Type) {
		return fmt.Errorf("%w: unknown zone type %q", zone.ErrValidation, z.Type)
	}
	if !z.Center.Valid() {
		return fmt.Errorf("%w: coordinates out of range", zone.ErrValidation)
	}
	if z.RadiusMeters <= 0 {
		return fmt.Errorf("%w: radius must be positive", zone.ErrValidation)
	}
	if !zone.ValidRiskLevel(z.RiskLevel) {
		return fmt.Errorf("%w: unknown risk level %q", zone.ErrValidation, z.RiskLevel)
	}
	return nil
}
