// internal/domain/geo/geohash_test.go

package geo

import (
	"math"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		lat, lng  float64
		precision int
		want      string
	}{
		{"reference cell", 42.605, -5.603, 5, "ezs42"},
		{"long reference cell", 57.64911, 10.40744, 11, "u4pruydqqvj"},
		{"origin", 0, 0, 5, "s0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.lat, tt.lng, tt.precision); got != tt.want {
				t.Errorf("Encode(%v, %v, %d) = %q, want %q", tt.lat, tt.lng, tt.precision, got, tt.want)
			}
		})
	}
}

func TestEncodePrecisionClamp(t *testing.T) {
	if got := Encode(10, 10, 0); len(got) != CellPrecision {
		t.Errorf("precision 0 produced %d characters, want %d", len(got), CellPrecision)
	}
	if got := Encode(10, 10, 40); len(got) != 12 {
		t.Errorf("precision 40 produced %d characters, want 12", len(got))
	}
}

func TestDecode(t *testing.T) {
	got := Decode("ezs42")
	if math.Abs(got.Lat-42.605) > 0.03 || math.Abs(got.Lng+5.603) > 0.03 {
		t.Errorf("Decode(ezs42) = %+v, want near (42.605, -5.603)", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	points := []Point{
		{-26.2041, 28.0473},
		{40.7128, -74.0060},
		{-33.8688, 151.2093},
		{0, 0},
	}

	// A precision-5 cell is under 5km per side, so the decoded center must
	// land within a few kilometres of the input.
	for _, p := range points {
		hash := Encode(p.Lat, p.Lng, 5)
		back := Decode(hash)
		if DistanceMeters(p, back) > 4000 {
			t.Errorf("round trip for %+v via %q drifted to %+v", p, hash, back)
		}
	}
}

func TestCell(t *testing.T) {
	p := Point{-26.2041, 28.0473}

	cell := Cell(p)
	if len(cell) != CellPrecision {
		t.Fatalf("Cell() length = %d, want %d", len(cell), CellPrecision)
	}
	if cell != Encode(p.Lat, p.Lng, CellPrecision) {
		t.Errorf("Cell() disagrees with Encode at the fixed precision")
	}

	// Small movement inside the same cell must not change the hash
	nearby := Destination(p, 45, 50)
	if Cell(nearby) != cell {
		t.Errorf("50m movement changed cell from %s to %s", cell, Cell(nearby))
	}
}
