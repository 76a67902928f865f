// internal/domain/geo/geo.go

package geo

import "math"

const earthRadiusMeters = 6371000.0

// Point represents a geographic coordinate pair
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within coordinate ranges
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceMeters returns the great-circle distance between two points
// using the haversine formula
func DistanceMeters(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	deltaPhi := (b.Lat - a.Lat) * math.Pi / 180
	deltaLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Bearing returns the initial bearing in degrees from north for travel
// from a to b
func Bearing(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	deltaLambda := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(deltaLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) -
		math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Destination returns the point reached by travelling distanceMeters from p
// along the given bearing in degrees
func Destination(p Point, bearingDeg, distanceMeters float64) Point {
	phi1 := p.Lat * math.Pi / 180
	lambda1 := p.Lng * math.Pi / 180
	theta := bearingDeg * math.Pi / 180
	delta := distanceMeters / earthRadiusMeters

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	lng := math.Mod(lambda2*180/math.Pi+540, 360) - 180
	return Point{Lat: phi2 * 180 / math.Pi, Lng: lng}
}

// Interpolate returns the point at fraction f along the straight line
// from a to b, where f=0 is a and f=1 is b. Routes are treated as
// straight-line vectors, so linear interpolation is sufficient.
func Interpolate(a, b Point, f float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lng: a.Lng + (b.Lng-a.Lng)*f,
	}
}
