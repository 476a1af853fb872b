// Package astro implements the approximate sun geometry used by the
// visibility predicate: whether the satellite is sunlit, whether the
// observer is in sufficient darkness, and the sun-satellite-observer
// phase angle used as a brightness proxy.
//
// The models are deliberately low precision (a degree or so); the
// prediction engine targets casual sky-watching, not astrometry.
package astro

import (
	"math"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

const (
	// MinElevationDeg is the minimum satellite elevation for a pass.
	MinElevationDeg = 10.0

	// CivilTwilightDeg is the solar elevation at or below which the
	// observer counts as dark enough to see satellites.
	CivilTwilightDeg = -6.0

	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// SunDirectionTEME returns a unit vector from Earth's center toward the Sun
// in the TEME frame, using the low-precision solar ephemeris from the
// Astronomical Almanac (accurate to ~0.01 degrees).
func SunDirectionTEME(t time.Time) transform.PositionTEME {
	n := transform.JulianDate(t.UTC()) - 2451545.0

	// Mean longitude and mean anomaly of the Sun (degrees).
	L := math.Mod(280.460+0.9856474*n, 360.0)
	g := math.Mod(357.528+0.9856003*n, 360.0) * deg2rad

	// Ecliptic longitude and obliquity.
	lambda := (L + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * deg2rad
	eps := (23.439 - 0.0000004*n) * deg2rad

	return transform.PositionTEME{
		X: math.Cos(lambda),
		Y: math.Cos(eps) * math.Sin(lambda),
		Z: math.Sin(eps) * math.Sin(lambda),
	}
}

// IsSunlit reports whether a satellite at the given TEME position (km) is
// illuminated at time t. Cylindrical-shadow approximation: a satellite on
// the daylight hemisphere (positive component along the sun direction) is
// sunlit. No umbra/penumbra modeling.
func IsSunlit(sat transform.PositionTEME, t time.Time) bool {
	sun := SunDirectionTEME(t)
	return sat.X*sun.X+sat.Y*sun.Y+sat.Z*sun.Z > 0
}

// SunElevationDeg computes the approximate solar elevation for an observer,
// from day-of-year solar declination and the local hour angle.
func SunElevationDeg(obs transform.Observer, t time.Time) float64 {
	t = t.UTC()

	// Declination from day of year.
	doy := float64(t.YearDay())
	decl := -23.44 * deg2rad * math.Cos(2*math.Pi/365.0*(doy+10))

	// Hour angle from local solar time (longitude offset from UTC).
	utcHours := float64(t.Hour()) + float64(t.Minute())/60.0 + float64(t.Second())/3600.0
	solarHours := utcHours + obs.LonDeg/15.0
	hourAngle := (solarHours - 12.0) * 15.0 * deg2rad

	sinEl := math.Sin(obs.LatRad)*math.Sin(decl) +
		math.Cos(obs.LatRad)*math.Cos(decl)*math.Cos(hourAngle)

	return math.Asin(sinEl) * rad2deg
}

// PhaseAngleDeg computes the sun-satellite-observer phase angle: the angle
// at the satellite between the direction to the Sun and the direction to
// the observer. Smaller angles mean more of the satellite's lit side faces
// the observer (brighter).
func PhaseAngleDeg(sat transform.PositionTEME, obs transform.Observer, t time.Time) float64 {
	sun := SunDirectionTEME(t)

	obsTEME := transform.ECEFToTEME(transform.PositionECEF{
		X: obs.ECEFx, Y: obs.ECEFy, Z: obs.ECEFz,
	}, t)

	// Satellite-to-observer unit vector.
	ox := obsTEME.X - sat.X
	oy := obsTEME.Y - sat.Y
	oz := obsTEME.Z - sat.Z
	mag := math.Sqrt(ox*ox + oy*oy + oz*oz)
	if mag == 0 {
		return 0
	}

	// The Sun is effectively at infinity, so the satellite-to-sun direction
	// is the geocentric sun direction.
	dot := (ox*sun.X + oy*sun.Y + oz*sun.Z) / mag
	dot = math.Max(-1, math.Min(1, dot))

	return math.Acos(dot) * rad2deg
}

// Visible is the full visibility predicate: the satellite is above the
// minimum viewing elevation, sunlit, and the observer's sun elevation is at
// or below the twilight threshold. The elevation gate is evaluated before
// the illumination gates.
func Visible(sat transform.PositionTEME, obs transform.Observer, t time.Time, elevationDeg, minElevationDeg, twilightDeg float64) bool {
	if elevationDeg < minElevationDeg {
		return false
	}
	if !IsSunlit(sat, t) {
		return false
	}
	return SunElevationDeg(obs, t) <= twilightDeg
}
