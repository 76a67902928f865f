// internal/service/travel/analyzer.go

// Package travel scores the safety of straight-line travel corridors
// against current incidents and hotspot zones. Scoring is a pure function
// of the aggregated inputs: identical data always yields an identical
// score, which the route tests rely on.
package travel

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
	"safewatch/internal/domain/zone"
)

// ErrValidation marks malformed route input
var ErrValidation = zone.ErrValidation

// RiskLabel buckets a safety score for presentation
type RiskLabel string

const (
	LabelSafe      RiskLabel = "safe"
	LabelModerate  RiskLabel = "moderate"
	LabelCaution   RiskLabel = "caution"
	LabelDangerous RiskLabel = "dangerous"
)

// SegmentAnalysis is the independent assessment of one corridor segment
type SegmentAnalysis struct {
	Index          int            `json:"index"`
	Start          geo.Point      `json:"start"`
	End            geo.Point      `json:"end"`
	Midpoint       geo.Point      `json:"midpoint"`
	IncidentCounts map[string]int `json:"incident_counts"`
	ZoneCount      int            `json:"zone_count"`
	SafetyScore    float64        `json:"safety_score"`
	RiskLevel      RiskLabel      `json:"risk_level"`
}

// RouteAnalysis is the transient result of scoring one corridor
type RouteAnalysis struct {
	Origin          geo.Point         `json:"origin"`
	Destination     geo.Point         `json:"destination"`
	BufferMeters    float64           `json:"buffer_meters"`
	DistanceKm      float64           `json:"distance_km"`
	SafetyScore     float64           `json:"safety_score"`
	RiskLevel       RiskLabel         `json:"risk_level"`
	IncidentCounts  map[string]int    `json:"incident_counts"`
	TotalIncidents  int               `json:"total_incidents"`
	Zones           []zone.Zone       `json:"zones"`
	Segments        []SegmentAnalysis `json:"segments"`
	Recommendations []string          `json:"recommendations"`
}

// AlternativeRoute is a 3-point detour candidate with its own analysis
type AlternativeRoute struct {
	Waypoints         []geo.Point   `json:"waypoints"`
	OffsetMeters      float64       `json:"offset_meters"`
	EstimatedDetourKm float64       `json:"estimated_detour_km"`
	Analysis          RouteAnalysis `json:"analysis"`
}

// RouteOptions pairs the direct route with ranked alternatives
type RouteOptions struct {
	Direct         RouteAnalysis      `json:"direct"`
	Alternatives   []AlternativeRoute `json:"alternatives"`
	Recommendation string             `json:"recommendation"`
}

// IncidentLookup is the read-side incident access the analyzer needs
type IncidentLookup interface {
	FindNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]incident.Incident, error)
}

// ZoneLookup is the read-side zone access the analyzer needs
type ZoneLookup interface {
	FindNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]zone.Zone, error)
}

// AnalyzerConfig carries the scoring policy. Penalties and breakpoints are
// configuration, not invariants, but must stay monotonic.
type AnalyzerConfig struct {
	SegmentCount        int
	DefaultBufferMeters float64

	// IncidentPenalties is the per-incident deduction by type
	IncidentPenalties map[incident.Type]float64

	// ZonePenalties is the per-zone deduction by risk tier
	ZonePenalties map[zone.RiskLevel]float64

	// DiminishingScale softens per-type incident deductions so
	// pathological counts cannot dominate before clamping
	DiminishingScale float64

	// Score breakpoints for risk labels, descending
	SafeScore    float64
	CautionScore float64
	DangerScore  float64

	// AlternativeOffsetsMeters are the perpendicular waypoint offsets
	// tried when proposing detours
	AlternativeOffsetsMeters []float64
}

// DefaultConfig returns the standing scoring policy
func DefaultConfig() AnalyzerConfig {
	return AnalyzerConfig{
		SegmentCount:        5,
		DefaultBufferMeters: 1000,
		IncidentPenalties: map[incident.Type]float64{
			incident.TypeHijacking: 8,
			incident.TypeMugging:   5,
			incident.TypeAccident:  3,
		},
		ZonePenalties: map[zone.RiskLevel]float64{
			zone.RiskCritical: 25,
			zone.RiskHigh:     15,
			zone.RiskMedium:   8,
			zone.RiskLow:      3,
		},
		DiminishingScale:         15,
		SafeScore:                80,
		CautionScore:             60,
		DangerScore:              40,
		AlternativeOffsetsMeters: []float64{1000, 2000, 3000},
	}
}

// Analyzer implements route safety scoring
type Analyzer struct {
	incidents IncidentLookup
	zones     ZoneLookup
	logger    *zap.Logger
	config    AnalyzerConfig
}

// NewAnalyzer creates a new route analyzer
func NewAnalyzer(incidents IncidentLookup, zones ZoneLookup, logger *zap.Logger, config AnalyzerConfig) *Analyzer {
	return &Analyzer{
		incidents: incidents,
		zones:     zones,
		logger:    logger,
		config:    config,
	}
}

// AnalyzeRoute scores the straight-line corridor between origin and
// destination
func (a *Analyzer) AnalyzeRoute(ctx context.Context, origin, destination geo.Point, bufferMeters float64) (*RouteAnalysis, error) {
	if !origin.Valid() || !destination.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if bufferMeters <= 0 {
		bufferMeters = a.config.DefaultBufferMeters
	}

	return a.analyzePath(ctx, []geo.Point{origin, destination}, bufferMeters)
}

// SuggestAlternativeRoutes proposes detours around a risky direct route.
// Each alternative offsets a single waypoint perpendicular to the direct
// line, alternating sides at increasing distances, and is scored like any
// other corridor. Alternatives are returned in descending safety order.
func (a *Analyzer) SuggestAlternativeRoutes(ctx context.Context, origin, destination geo.Point) (*RouteOptions, error) {
	direct, err := a.AnalyzeRoute(ctx, origin, destination, a.config.DefaultBufferMeters)
	if err != nil {
		return nil, err
	}

	bearing := geo.Bearing(origin, destination)
	mid := geo.Interpolate(origin, destination, 0.5)

	alternatives := make([]AlternativeRoute, 0, len(a.config.AlternativeOffsetsMeters))
	for i, offset := range a.config.AlternativeOffsetsMeters {
		side := 90.0
		if i%2 == 1 {
			side = -90.0
		}
		waypoint := geo.Destination(mid, bearing+side, offset)

		analysis, err := a.analyzePath(ctx, []geo.Point{origin, waypoint, destination}, a.config.DefaultBufferMeters)
		if err != nil {
			return nil, err
		}

		directMeters := geo.DistanceMeters(origin, destination)
		viaMeters := geo.DistanceMeters(origin, waypoint) + geo.DistanceMeters(waypoint, destination)

		alternatives = append(alternatives, AlternativeRoute{
			Waypoints:         []geo.Point{origin, waypoint, destination},
			OffsetMeters:      offset,
			EstimatedDetourKm: (viaMeters - directMeters) / 1000,
			Analysis:          *analysis,
		})
	}

	sort.SliceStable(alternatives, func(i, j int) bool {
		if alternatives[i].Analysis.SafetyScore != alternatives[j].Analysis.SafetyScore {
			return alternatives[i].Analysis.SafetyScore > alternatives[j].Analysis.SafetyScore
		}
		return alternatives[i].EstimatedDetourKm < alternatives[j].EstimatedDetourKm
	})

	recommendation := "The direct route is currently the safest option."
	if direct.SafetyScore < a.config.SafeScore && len(alternatives) > 0 &&
		alternatives[0].Analysis.SafetyScore > direct.SafetyScore {
		recommendation = fmt.Sprintf(
			"Consider the alternative via the %.1fkm detour (safety score %.0f vs %.0f direct).",
			alternatives[0].EstimatedDetourKm,
			alternatives[0].Analysis.SafetyScore,
			direct.SafetyScore,
		)
	}

	return &RouteOptions{
		Direct:         *direct,
		Alternatives:   alternatives,
		Recommendation: recommendation,
	}, nil
}

// analyzePath partitions the polyline into equal-length segments, scores
// each independently, and scores the whole corridor from the union of the
// per-segment data
func (a *Analyzer) analyzePath(ctx context.Context, waypoints []geo.Point, bufferMeters float64) (*RouteAnalysis, error) {
	segCount := a.config.SegmentCount
	if segCount <= 0 {
		segCount = 5
	}

	totalMeters := pathLength(waypoints)
	segMeters := totalMeters / float64(segCount)

	allIncidents := map[string]incident.Incident{}
	allZones := map[string]zone.Zone{}
	segments := make([]SegmentAnalysis, 0, segCount)

	for i := 0; i < segCount; i++ {
		start := pointAlong(waypoints, float64(i)/float64(segCount))
		end := pointAlong(waypoints, float64(i+1)/float64(segCount))
		mid := pointAlong(waypoints, (float64(i)+0.5)/float64(segCount))

		// Radius queries from the segment midpoint stand in for true
		// polygon containment; the half-segment pad covers the ends.
		sampleRadius := bufferMeters + segMeters/2

		incidents, err := a.incidents.FindNear(ctx, mid, sampleRadius)
		if err != nil {
			return nil, fmt.Errorf("error querying corridor incidents: %w", err)
		}
		zones, err := a.zones.FindNear(ctx, mid, sampleRadius)
		if err != nil {
			return nil, fmt.Errorf("error querying corridor zones: %w", err)
		}

		for _, inc := range incidents {
			allIncidents[inc.ID] = inc
		}
		for _, z := range zones {
			allZones[z.ID] = z
		}

		score := a.score(incidents, zones)
		segments = append(segments, SegmentAnalysis{
			Index:          i,
			Start:          start,
			End:            end,
			Midpoint:       mid,
			IncidentCounts: countByType(incidents),
			ZoneCount:      len(zones),
			SafetyScore:    score,
			RiskLevel:      a.label(score),
		})
	}

	unionIncidents := make([]incident.Incident, 0, len(allIncidents))
	for _, inc := range allIncidents {
		unionIncidents = append(unionIncidents, inc)
	}
	unionZones := make([]zone.Zone, 0, len(allZones))
	for _, z := range allZones {
		unionZones = append(unionZones, z)
	}
	sort.Slice(unionZones, func(i, j int) bool { return unionZones[i].ID < unionZones[j].ID })

	score := a.score(unionIncidents, unionZones)
	analysis := &RouteAnalysis{
		Origin:         waypoints[0],
		Destination:    waypoints[len(waypoints)-1],
		BufferMeters:   bufferMeters,
		DistanceKm:     totalMeters / 1000,
		SafetyScore:    score,
		RiskLevel:      a.label(score),
		IncidentCounts: countByType(unionIncidents),
		TotalIncidents: len(unionIncidents),
		Zones:          unionZones,
		Segments:       segments,
	}
	analysis.Recommendations = a.recommendations(analysis)

	return analysis, nil
}

// score starts at 100 and applies weighted deductions with diminishing
// returns, clamped to [0, 100]
func (a *Analyzer) score(incidents []incident.Incident, zones []zone.Zone) float64 {
	counts := map[incident.Type]int{}
	for _, inc := range incidents {
		counts[inc.Type]++
	}

	deduction := 0.0
	for _, t := range []incident.Type{incident.TypeHijacking, incident.TypeMugging, incident.TypeAccident} {
		n := float64(counts[t])
		if n == 0 {
			continue
		}
		deduction += a.config.IncidentPenalties[t] * n / (1 + n/a.config.DiminishingScale)
	}

	for _, z := range zones {
		deduction += a.config.ZonePenalties[z.RiskLevel]
	}

	score := 100 - deduction
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// label maps a score to its risk bucket; breakpoints are monotonic and
// exhaustive
func (a *Analyzer) label(score float64) RiskLabel {
	switch {
	case score >= a.config.SafeScore:
		return LabelSafe
	case score >= a.config.CautionScore:
		return LabelModerate
	case score >= a.config.DangerScore:
		return LabelCaution
	default:
		return LabelDangerous
	}
}

// recommendations derives advisory strings purely from the computed
// aggregates
func (a *Analyzer) recommendations(r *RouteAnalysis) []string {
	var recs []string

	if r.TotalIncidents == 0 && len(r.Zones) == 0 {
		return []string{"No recent incidents or hotspot zones along this route."}
	}

	for _, z := range r.Zones {
		if z.RiskLevel == zone.RiskCritical {
			recs = append(recs, "Route passes a critical risk zone; avoid the area if possible.")
			break
		}
	}

	if r.IncidentCounts[string(incident.TypeHijacking)] > 0 {
		recs = append(recs, "Hijacking activity reported near this route; keep doors locked and avoid stopping.")
	}

	if r.SafetyScore < a.config.CautionScore {
		recs = append(recs, "Consider an alternative route or travelling at a different time.")
	}

	if len(recs) == 0 {
		recs = append(recs, "Exercise normal caution; minor incident activity reported along this route.")
	}

	return recs
}

func countByType(incidents []incident.Incident) map[string]int {
	counts := map[string]int{}
	for _, inc := range incidents {
		counts[string(inc.Type)]++
	}
	return counts
}

// pathLength sums the great-circle lengths of the polyline legs
func pathLength(waypoints []geo.Point) float64 {
	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		total += geo.DistanceMeters(waypoints[i-1], waypoints[i])
	}
	return total
}

// pointAlong returns the point at the given fraction of the polyline's
// total length, interpolating within the leg it falls on
func pointAlong(waypoints []geo.Point, fraction float64) geo.Point {
	if fraction <= 0 {
		return waypoints[0]
	}
	if fraction >= 1 {
		return waypoints[len(waypoints)-1]
	}

	total := pathLength(waypoints)
	if total == 0 {
		return waypoints[0]
	}

	target := total * fraction
	walked := 0.0
	for i := 1; i < len(waypoints); i++ {
		leg := geo.DistanceMeters(waypoints[i-1], waypoints[i])
		if walked+leg >= target && leg > 0 {
			return geo.Interpolate(waypoints[i-1], waypoints[i], (target-walked)/leg)
		}
		walked += leg
	}

	return waypoints[len(waypoints)-1]
}
