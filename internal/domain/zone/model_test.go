// internal/domain/zone/model_test.go

package zone

import (
	"math"
	"testing"

	"safewatch/internal/domain/geo"
)

func TestOverlapPercent(t *testing.T) {
	center := geo.Point{Lat: -26.2041, Lng: 28.0473}

	tests := []struct {
		name      string
		a, b      Zone
		want      float64
		tolerance float64
	}{
		{
			name: "near-coincident zones",
			a:    Zone{Center: center, RadiusMeters: 1000},
			b:    Zone{Center: geo.Destination(center, 0, 150), RadiusMeters: 1000},
			want: 185, tolerance: 2,
		},
		{
			name: "well separated",
			a:    Zone{Center: center, RadiusMeters: 1000},
			b:    Zone{Center: geo.Destination(center, 0, 5000), RadiusMeters: 1000},
			want: 0, tolerance: 0.001,
		},
		{
			name: "centers at summed radii",
			a:    Zone{Center: center, RadiusMeters: 1000},
			b:    Zone{Center: geo.Destination(center, 90, 2000), RadiusMeters: 1000},
			want: 0, tolerance: 0.5,
		},
		{
			name: "normalized by the smaller radius",
			a:    Zone{Center: center, RadiusMeters: 1000},
			b:    Zone{Center: geo.Destination(center, 0, 1000), RadiusMeters: 200},
			want: 100, tolerance: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OverlapPercent(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("OverlapPercent() = %.2f, want %.2f ± %.2f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestRiskForCount(t *testing.T) {
	thresholds := RiskThresholds{Medium: 5, High: 15, Critical: 25}

	tests := []struct {
		count int
		want  RiskLevel
	}{
		{0, RiskLow},
		{4, RiskLow},
		{5, RiskMedium},
		{14, RiskMedium},
		{15, RiskHigh},
		{24, RiskHigh},
		{25, RiskCritical},
		{100, RiskCritical},
	}

	for _, tt := range tests {
		if got := RiskForCount(tt.count, thresholds); got != tt.want {
			t.Errorf("RiskForCount(%d) = %s, want %s", tt.count, got, tt.want)
		}
	}
}

func TestRiskThresholdsValid(t *testing.T) {
	tests := []struct {
		name       string
		thresholds RiskThresholds
		want       bool
	}{
		{"standard", RiskThresholds{5, 15, 25}, true},
		{"zero medium", RiskThresholds{0, 15, 25}, false},
		{"high below medium", RiskThresholds{15, 5, 25}, false},
		{"critical equals high", RiskThresholds{5, 15, 15}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.thresholds.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZoneContains(t *testing.T) {
	z := Zone{
		Center:       geo.Point{Lat: -26.2041, Lng: 28.0473},
		RadiusMeters: 1000,
	}

	if !z.Contains(z.Center) {
		t.Error("zone must contain its own center")
	}
	if !z.Contains(geo.Destination(z.Center, 180, 900)) {
		t.Error("point 900m from center must be inside a 1000m zone")
	}
	if z.Contains(geo.Destination(z.Center, 180, 1100)) {
		t.Error("point 1100m from center must be outside a 1000m zone")
	}
}

func TestRiskWeightOrdering(t *testing.T) {
	order := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(order); i++ {
		if RiskWeight(order[i]) <= RiskWeight(order[i-1]) {
			t.Errorf("RiskWeight(%s) must exceed RiskWeight(%s)", order[i], order[i-1])
		}
	}
}
