// Package transform provides the coordinate frame conversions behind the
// look-angle calculator: Julian date / GMST, the TEME→ECEF sidereal
// rotation, and the ECEF→topocentric (azimuth/elevation/range) transform.
//
// The TEME→ECEF rotation uses GMST only, ignoring polar motion and the
// equation of equinoxes. That introduces at most tens of meters of error,
// far below what naked-eye pass prediction needs.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// JulianDate converts a UTC time to Julian Date using the standard
// astronomical algorithm.
func JulianDate(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Jan/Feb count as months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// GMST calculates Greenwich Mean Sidereal Time in radians for a UTC time,
// using the IAU-82 model (Vallado Eq 3-47).
func GMST(t time.Time) float64 {
	tUT1 := (JulianDate(t.UTC()) - j2000) / 36525.0

	// GMST in seconds of time; 876600h = 3155760000 s.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}
