package transform

import (
	"fmt"
	"math"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Observer is a validated ground observer location. Construct only through
// NewObserver so invalid coordinates never reach the engine. ECEF
// coordinates are precomputed once and reused across many satellite lookups.
type Observer struct {
	LatDeg, LonDeg      float64
	LatRad, LonRad      float64
	ECEFx, ECEFy, ECEFz float64 // meters
	Name                string  // optional display name
}

// NewObserver builds an Observer from geodetic coordinates at sea level.
// Latitude must be in [-90, 90], longitude in [-180, 180], both finite.
func NewObserver(latDeg, lonDeg float64) (Observer, error) {
	if math.IsNaN(latDeg) || math.IsInf(latDeg, 0) ||
		math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0) {
		return Observer{}, fmt.Errorf("coordinates must be finite: lat=%v lon=%v", latDeg, lonDeg)
	}
	if latDeg < -90 || latDeg > 90 {
		return Observer{}, fmt.Errorf("latitude %.4f out of range [-90, 90]", latDeg)
	}
	if lonDeg < -180 || lonDeg > 180 {
		return Observer{}, fmt.Errorf("longitude %.4f out of range [-180, 180]", lonDeg)
	}

	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Observer{
		LatDeg: latDeg,
		LonDeg: lonDeg,
		LatRad: lat,
		LonRad: lon,
		ECEFx:  N * math.Cos(lat) * math.Cos(lon),
		ECEFy:  N * math.Cos(lat) * math.Sin(lon),
		ECEFz:  N * (1 - wgs84E2) * sinLat,
	}, nil
}
