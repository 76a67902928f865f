// internal/domain/zone/model.go

package zone

import (
	"errors"
	"time"

	"safewatch/internal/domain/geo"
)

// Sentinel errors returned by zone operations. Overlap is a business-rule
// conflict distinct from malformed input.
var (
	ErrNotFound   = errors.New("zone not found")
	ErrOverlap    = errors.New("zone overlaps an existing active zone")
	ErrValidation = errors.New("invalid zone attributes")
)

// Type classifies a hotspot zone by the incident kind it tracks
type Type string

const (
	TypeHijacking Type = "hijacking"
	TypeMugging   Type = "mugging"
	TypeAccident  Type = "accident"
)

// ValidType reports whether t is a known zone type
func ValidType(t Type) bool {
	switch t {
	case TypeHijacking, TypeMugging, TypeAccident:
		return true
	}
	return false
}

// RiskLevel represents the derived risk tier of a zone
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ValidRiskLevel reports whether r is a known risk level
func ValidRiskLevel(r RiskLevel) bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RiskThresholds maps cumulative incident counts to risk tiers. The
// boundaries are policy knobs; Valid enforces that they stay monotonic
// so the derived tier is total over any count.
type RiskThresholds struct {
	Medium   int
	High     int
	Critical int
}

// Valid reports whether the tier boundaries are strictly increasing
func (t RiskThresholds) Valid() bool {
	return t.Medium > 0 && t.High > t.Medium && t.Critical > t.High
}

// RiskForCount derives the risk tier for an incident count
func RiskForCount(count int, t RiskThresholds) RiskLevel {
	switch {
	case count >= t.Critical:
		return RiskCritical
	case count >= t.High:
		return RiskHigh
	case count >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskWeight orders risk levels for comparison, low to critical
func RiskWeight(r RiskLevel) int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Zone represents a circular hotspot geofence derived from incident density
type Zone struct {
	ID             string     `json:"id"`
	Type           Type       `json:"zone_type"`
	Center         geo.Point  `json:"center"`
	RadiusMeters   int        `json:"radius_meters"`
	IncidentCount  int        `json:"incident_count"`
	RiskLevel      RiskLevel  `json:"risk_level"`
	IsActive       bool       `json:"is_active"`
	LastIncidentAt *time.Time `json:"last_incident_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Contains reports whether a point falls within the zone radius
func (z Zone) Contains(p geo.Point) bool {
	return geo.DistanceMeters(z.Center, p) <= float64(z.RadiusMeters)
}

// OverlapPercent computes the radius-normalized overlap metric between two
// zones: the amount by which the center distance falls short of the summed
// radii, as a percentage of the smaller radius. This is a deliberate
// approximation, not true circle-intersection area; changing it changes
// which zones are accepted.
func OverlapPercent(a, b Zone) float64 {
	d := geo.DistanceMeters(a.Center, b.Center)
	sum := float64(a.RadiusMeters + b.RadiusMeters)
	if d >= sum {
		return 0
	}
	min := float64(a.RadiusMeters)
	if b.RadiusMeters < a.RadiusMeters {
		min = float64(b.RadiusMeters)
	}
	return (sum - d) / min * 100
}

// Membership records a user's visit to a zone. ExitedAt is nil while the
// user is still inside; rows are append-only visit history.
type Membership struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ZoneID    string     `json:"zone_id"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

// Stats aggregates membership history for a zone
type Stats struct {
	ZoneID          string  `json:"zone_id"`
	TotalEntries    int     `json:"total_entries"`
	TotalExits      int     `json:"total_exits"`
	CurrentlyInside int     `json:"currently_inside"`
	Entries24h      int     `json:"entries_24h"`
	AvgDwellMinutes float64 `json:"avg_dwell_minutes"`
}

// Filter defines criteria for listing zones
type Filter struct {
	Type       Type
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Update holds partial attributes for a zone update; nil fields are left
// unchanged
type Update struct {
	Type         *Type
	Center       *geo.Point
	RadiusMeters *int
	RiskLevel    *RiskLevel
	IsActive     *bool
}
