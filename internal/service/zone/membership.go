// internal/service/zone/membership.go

package zone

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/adapter/kv"
	"safewatch/internal/domain/event"
	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/zone"
)

// ZoneLookup is the read-side zone access the tracker needs
type ZoneLookup interface {
	GetZone(ctx context.Context, id string) (*zone.Zone, error)
	FindContaining(ctx context.Context, p geo.Point) ([]zone.Zone, error)
	FindApproaching(ctx context.Context, p geo.Point, thresholdMeters float64) ([]zone.Zone, error)
}

// MembershipStore persists the append-only visit history
type MembershipStore interface {
	Open(ctx context.Context, userID, zoneID string, at time.Time) error
	Close(ctx context.Context, userID, zoneID string, at time.Time) error
	OpenZoneIDs(ctx context.Context, userID string) ([]string, error)
}

// UserEventPublisher delivers zone-transition events to the user's own
// geofence topic
type UserEventPublisher interface {
	PublishUserEvent(userID string, env event.Envelope) error
}

// TrackerConfig contains configuration for the membership tracker
type TrackerConfig struct {
	// ApproachThresholdMeters is how close to a zone boundary a premium
	// user must be, while still outside, for an approach notification
	ApproachThresholdMeters float64

	// SuppressionTTL bounds how long a suppressed approach set is kept
	// when a user stops sending updates
	SuppressionTTL time.Duration
}

// Tracker recomputes a user's zone occupancy on every location update and
// reconciles membership rows against it. Because the in/out set is rebuilt
// from scratch each time, a missed notification never leaves state
// permanently wrong; the next update self-corrects.
type Tracker struct {
	zones       ZoneLookup
	memberships MembershipStore
	publisher   UserEventPublisher
	suppression kv.Store
	logger      *zap.Logger
	config      TrackerConfig
}

// NewTracker creates a new membership tracker
func NewTracker(zones ZoneLookup, memberships MembershipStore, publisher UserEventPublisher, suppression kv.Store, logger *zap.Logger, config TrackerConfig) *Tracker {
	return &Tracker{
		zones:       zones,
		memberships: memberships,
		publisher:   publisher,
		suppression: suppression,
		logger:      logger,
		config:      config,
	}
}

// ProcessLocationUpdate evaluates entry, exit and approach transitions for
// one location update
func (t *Tracker) ProcessLocationUpdate(ctx context.Context, userID string, premium bool, p geo.Point) error {
	if !p.Valid() {
		return fmt.Errorf("%w: coordinates out of range", zone.ErrValidation)
	}

	inside, err := t.zones.FindContaining(ctx, p)
	if err != nil {
		return fmt.Errorf("error finding containing zones: %w", err)
	}

	openIDs, err := t.memberships.OpenZoneIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("error loading open memberships: %w", err)
	}

	insideByID := make(map[string]zone.Zone, len(inside))
	for _, z := range inside {
		insideByID[z.ID] = z
	}
	open := make(map[string]bool, len(openIDs))
	for _, id := range openIDs {
		open[id] = true
	}

	now := time.Now().UTC()

	// currentlyInside − previouslyInside: open rows, emit entries
	for id, z := range insideByID {
		if open[id] {
			continue
		}
		if err := t.memberships.Open(ctx, userID, id, now); err != nil {
			return fmt.Errorf("error opening membership: %w", err)
		}
		t.emit(userID, event.ZoneTransition(event.KindZoneEntered, z, geo.DistanceMeters(z.Center, p)))
	}

	// previouslyInside − currentlyInside: close rows, emit exits
	for _, id := range openIDs {
		if _, still := insideByID[id]; still {
			continue
		}
		if err := t.memberships.Close(ctx, userID, id, now); err != nil {
			return fmt.Errorf("error closing membership: %w", err)
		}

		z, err := t.zones.GetZone(ctx, id)
		if err != nil {
			// Zone may have been dissolved; the exit still counts.
			t.emit(userID, event.ZoneTransition(event.KindZoneExited, zone.Zone{ID: id}, 0))
			continue
		}
		t.emit(userID, event.ZoneTransition(event.KindZoneExited, *z, geo.DistanceMeters(z.Center, p)))
	}

	if premium {
		if err := t.processApproaches(ctx, userID, p, insideByID); err != nil {
			// Approach alerts are advisory; log and move on.
			t.logger.Warn("failed to process approach notifications",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	return nil
}

// processApproaches emits zone:approaching for zones the user is near but
// not inside, suppressing repeats while the user remains in the approach
// band of the same zone
func (t *Tracker) processApproaches(ctx context.Context, userID string, p geo.Point, inside map[string]zone.Zone) error {
	candidates, err := t.zones.FindApproaching(ctx, p, t.config.ApproachThresholdMeters)
	if err != nil {
		return err
	}

	previous := t.loadSuppressed(ctx, userID)

	current := make([]string, 0, len(candidates))
	for _, z := range candidates {
		if _, in := inside[z.ID]; in {
			continue
		}
		current = append(current, z.ID)

		if previous[z.ID] {
			continue
		}

		boundary := geo.DistanceMeters(z.Center, p) - float64(z.RadiusMeters)
		if boundary < 0 {
			boundary = 0
		}
		t.emit(userID, event.ZoneTransition(event.KindZoneApproaching, z, boundary))
	}

	return t.saveSuppressed(ctx, userID, current)
}

func (t *Tracker) loadSuppressed(ctx context.Context, userID string) map[string]bool {
	raw, err := t.suppression.Get(ctx, approachKey(userID))
	if err != nil {
		return map[string]bool{}
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return map[string]bool{}
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (t *Tracker) saveSuppressed(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return t.suppression.Delete(ctx, approachKey(userID))
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return t.suppression.Set(ctx, approachKey(userID), string(raw), t.config.SuppressionTTL)
}

// emit publishes a transition event, best-effort
func (t *Tracker) emit(userID string, env event.Envelope) {
	if err := t.publisher.PublishUserEvent(userID, env); err != nil {
		t.logger.Warn("failed to publish zone transition",
			zap.String("user_id", userID),
			zap.String("kind", string(env.Kind)),
			zap.Error(err))
	}
}

func approachKey(userID string) string {
	return "approach:" + userID
}
