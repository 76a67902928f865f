// internal/domain/geo/geohash.go

package geo

import "strings"

// CellPrecision is the fixed geohash precision used to bucket live
// connections. Precision 5 yields cells of roughly 4.9km per side
// (~20km² of coverage), which keeps incident fan-out local without
// resharding on every small movement.
const CellPrecision = 5

// base32 is the geohash character set; 'a', 'i', 'l' and 'o' are excluded
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

var base32Index = map[byte]int{}

func init() {
	for i := 0; i < len(base32); i++ {
		base32Index[base32[i]] = i
	}
}

// Cell returns the geohash cell a point belongs to at the fixed
// subscription precision
func Cell(p Point) string {
	return Encode(p.Lat, p.Lng, CellPrecision)
}

// Encode converts a latitude/longitude pair to a geohash string of the
// given precision by interleaving longitude and latitude range bisections,
// five bits per base32 character
func Encode(lat, lng float64, precision int) string {
	if precision <= 0 {
		precision = CellPrecision
	}
	if precision > 12 {
		precision = 12
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	var hash strings.Builder
	isEven := true
	bit := 0
	ch := 0

	for hash.Len() < precision {
		if isEven {
			mid := (minLng + maxLng) / 2
			if lng >= mid {
				ch |= 1 << (4 - bit)
				minLng = mid
			} else {
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		isEven = !isEven
		bit++
		if bit == 5 {
			hash.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String()
}

// Decode returns the center point of the cell encoded by hash
func Decode(hash string) Point {
	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0
	isEven := true

	for i := 0; i < len(hash); i++ {
		cd, ok := base32Index[hash[i]]
		if !ok {
			continue
		}
		for j := 4; j >= 0; j-- {
			bit := (cd >> j) & 1
			if isEven {
				mid := (minLng + maxLng) / 2
				if bit == 1 {
					minLng = mid
				} else {
					maxLng = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if bit == 1 {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			isEven = !isEven
		}
	}

	return Point{
		Lat: (minLat + maxLat) / 2,
		Lng: (minLng + maxLng) / 2,
	}
}
