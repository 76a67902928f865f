// internal/service/travel/analyzer_test.go

package travel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
	"safewatch/internal/domain/zone"
)

var (
	origin      = geo.Point{Lat: -26.2041, Lng: 28.0473}
	destination = geo.Point{Lat: -25.7479, Lng: 28.2293}
)

// fakeIncidents returns the same incident set for every corridor sample
type fakeIncidents struct {
	incidents []incident.Incident
}

func (f *fakeIncidents) FindNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]incident.Incident, error) {
	return f.incidents, nil
}

type fakeZones struct {
	zones []zone.Zone
}

func (f *fakeZones) FindNear(ctx context.Context, p geo.Point, radiusMeters float64) ([]zone.Zone, error) {
	return f.zones, nil
}

func incidentsOf(t incident.Type, n int) []incident.Incident {
	out := make([]incident.Incident, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, incident.Incident{
			ID:       fmt.Sprintf("%s-%d", t, i),
			Type:     t,
			Location: geo.Interpolate(origin, destination, 0.5),
		})
	}
	return out
}

func newTestAnalyzer(incidents []incident.Incident, zones []zone.Zone) *Analyzer {
	return NewAnalyzer(&fakeIncidents{incidents}, &fakeZones{zones}, zap.NewNop(), DefaultConfig())
}

func TestAnalyzeRouteClean(t *testing.T) {
	a := newTestAnalyzer(nil, nil)

	got, err := a.AnalyzeRoute(context.Background(), origin, destination, 0)
	if err != nil {
		t.Fatalf("AnalyzeRoute() error = %v", err)
	}

	if got.SafetyScore != 100 {
		t.Errorf("score = %.2f, want 100", got.SafetyScore)
	}
	if got.RiskLevel != LabelSafe {
		t.Errorf("risk level = %s, want %s", got.RiskLevel, LabelSafe)
	}
	if len(got.Segments) != 5 {
		t.Errorf("segments = %d, want 5", len(got.Segments))
	}
	if got.BufferMeters != 1000 {
		t.Errorf("default buffer = %.0f, want 1000", got.BufferMeters)
	}
	if len(got.Recommendations) != 1 || !strings.Contains(got.Recommendations[0], "No recent incidents") {
		t.Errorf("recommendations = %v, want the single all-clear", got.Recommendations)
	}

	// JHB to Pretoria is roughly 54km
	if got.DistanceKm < 50 || got.DistanceKm > 58 {
		t.Errorf("distance = %.1fkm, want ~54", got.DistanceKm)
	}
}

func TestAnalyzeRouteIncidentDeduction(t *testing.T) {
	// A single hijacking deducts 8 * 1/(1 + 1/15) = 7.5 points
	a := newTestAnalyzer(incidentsOf(incident.TypeHijacking, 1), nil)

	got, err := a.AnalyzeRoute(context.Background(), origin, destination, 0)
	if err != nil {
		t.Fatalf("AnalyzeRoute() error = %v", err)
	}

	if math.Abs(got.SafetyScore-92.5) > 1e-9 {
		t.Errorf("score = %.4f, want 92.5", got.SafetyScore)
	}
	if got.TotalIncidents != 1 {
		t.Errorf("total incidents = %d, want 1", got.TotalIncidents)
	}
	if got.IncidentCounts["hijacking"] != 1 {
		t.Errorf("incident counts = %v, want one hijacking", got.IncidentCounts)
	}

	found := false
	for _, rec := range got.Recommendations {
		if strings.Contains(rec, "Hijacking") {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations = %v, want hijacking advice", got.Recommendations)
	}
}

func TestAnalyzeRouteZoneDeduction(t *testing.T) {
	a := newTestAnalyzer(nil, []zone.Zone{{
		ID:           "z1",
		Type:         zone.TypeHijacking,
		Center:       geo.Interpolate(origin, destination, 0.5),
		RadiusMeters: 1000,
		RiskLevel:    zone.RiskCritical,
		IsActive:     true,
	}})

	got, err := a.AnalyzeRoute(context.Background(), origin, destination, 0)
	if err != nil {
		t.Fatalf("AnalyzeRoute() error = %v", err)
	}

	if math.Abs(got.SafetyScore-75) > 1e-9 {
		t.Errorf("score = %.4f, want 75", got.SafetyScore)
	}
	if got.RiskLevel != LabelModerate {
		t.Errorf("risk level = %s, want %s", got.RiskLevel, LabelModerate)
	}

	found := false
	for _, rec := range got.Recommendations {
		if strings.Contains(rec, "critical risk zone") {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations = %v, want a critical zone warning", got.Recommendations)
	}
}

func TestAnalyzeRouteScoreClamp(t *testing.T) {
	zones := make([]zone.Zone, 0, 10)
	for i := 0; i < 10; i++ {
		zones = append(zones, zone.Zone{
			ID:           fmt.Sprintf("z%d", i),
			Type:         zone.TypeMugging,
			Center:       geo.Interpolate(origin, destination, 0.5),
			RadiusMeters: 500,
			RiskLevel:    zone.RiskCritical,
			IsActive:     true,
		})
	}
	a := newTestAnalyzer(nil, zones)

	got, err := a.AnalyzeRoute(context.Background(), origin, destination, 0)
	if err != nil {
		t.Fatalf("AnalyzeRoute() error = %v", err)
	}

	if got.SafetyScore != 0 {
		t.Errorf("score = %.2f, want clamped to 0", got.SafetyScore)
	}
	if got.RiskLevel != LabelDangerous {
		t.Errorf("risk level = %s, want %s", got.RiskLevel, LabelDangerous)
	}
}

func TestAnalyzeRouteMonotonicInIncidents(t *testing.T) {
	prev := 101.0
	for _, n := range []int{0, 1, 5, 20, 100} {
		a := newTestAnalyzer(incidentsOf(incident.TypeMugging, n), nil)
		got, err := a.AnalyzeRoute(context.Background(), origin, destination, 0)
		if err != nil {
			t.Fatalf("AnalyzeRoute() with %d incidents error = %v", n, err)
		}
		if got.SafetyScore >= prev {
			t.Errorf("score with %d incidents = %.2f, must be below %.2f", n, got.SafetyScore, prev)
		}
		prev = got.SafetyScore
	}
}

func TestAnalyzeRouteDeterministic(t *testing.T) {
	incidents := append(incidentsOf(incident.TypeHijacking, 3), incidentsOf(incident.TypeAccident, 7)...)
	a := newTestAnalyzer(incidents, []zone.Zone{
		{ID: "zb", RiskLevel: zone.RiskHigh, Center: origin, RadiusMeters: 500, Type: zone.TypeHijacking, IsActive: true},
		{ID: "za", RiskLevel: zone.RiskMedium, Center: destination, RadiusMeters: 500, Type: zone.TypeAccident, IsActive: true},
	})

	first, err := a.AnalyzeRoute(context.Background(), origin, destination, 0)
	if err != nil {
		t.Fatalf("AnalyzeRoute() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := a.AnalyzeRoute(context.Background(), origin, destination, 0)
		if err != nil {
			t.Fatalf("AnalyzeRoute() error = %v", err)
		}
		if again.SafetyScore != first.SafetyScore {
			t.Fatalf("score changed between runs: %.6f vs %.6f", again.SafetyScore, first.SafetyScore)
		}
		if len(again.Zones) != len(first.Zones) {
			t.Fatalf("zone union size changed between runs")
		}
		for j := range again.Zones {
			if again.Zones[j].ID != first.Zones[j].ID {
				t.Fatalf("zone ordering changed between runs")
			}
		}
	}

	// Union zones come back sorted by ID
	if first.Zones[0].ID != "za" || first.Zones[1].ID != "zb" {
		t.Errorf("zones = [%s %s], want sorted by ID", first.Zones[0].ID, first.Zones[1].ID)
	}
}

func TestAnalyzeRouteInvalidInput(t *testing.T) {
	a := newTestAnalyzer(nil, nil)

	_, err := a.AnalyzeRoute(context.Background(), geo.Point{Lat: 95, Lng: 0}, destination, 0)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("AnalyzeRoute() error = %v, want ErrValidation", err)
	}
}

func TestSuggestAlternativeRoutes(t *testing.T) {
	a := newTestAnalyzer(nil, nil)

	got, err := a.SuggestAlternativeRoutes(context.Background(), origin, destination)
	if err != nil {
		t.Fatalf("SuggestAlternativeRoutes() error = %v", err)
	}

	if len(got.Alternatives) != 3 {
		t.Fatalf("alternatives = %d, want 3", len(got.Alternatives))
	}

	for i, alt := range got.Alternatives {
		if len(alt.Waypoints) != 3 {
			t.Errorf("alternative %d has %d waypoints, want 3", i, len(alt.Waypoints))
		}
		if alt.EstimatedDetourKm <= 0 {
			t.Errorf("alternative %d detour = %.3fkm, want positive", i, alt.EstimatedDetourKm)
		}
		if i > 0 {
			prev := got.Alternatives[i-1]
			if alt.Analysis.SafetyScore > prev.Analysis.SafetyScore {
				t.Errorf("alternatives not in descending safety order at %d", i)
			}
			if alt.Analysis.SafetyScore == prev.Analysis.SafetyScore && alt.EstimatedDetourKm < prev.EstimatedDetourKm {
				t.Errorf("tied alternatives not in ascending detour order at %d", i)
			}
		}
	}

	// With a clean direct route the direct option stays recommended
	if !strings.Contains(got.Recommendation, "direct route") {
		t.Errorf("recommendation = %q, want the direct route", got.Recommendation)
	}
}
