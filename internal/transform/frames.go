package transform

import (
	"math"
	"time"
)

// PositionTEME is a satellite position in the TEME inertial frame (km),
// as produced by SGP4.
type PositionTEME struct {
	X, Y, Z float64
}

// PositionECEF is a satellite position in the Earth-fixed frame (meters).
type PositionECEF struct {
	X, Y, Z float64
}

// TEMEToECEF rotates a TEME position into ECEF at the given UTC time.
// Input in km, output in meters.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST rotates TEME to ECEF using a precomputed GMST angle
// (radians). Callers propagating several satellites to the same instant
// compute GMST once and reuse it.
//
// r_ECEF = R3(θ) * r_TEME where R3 is a rotation about the Z axis.
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	return PositionECEF{
		X: (teme.X*cosG + teme.Y*sinG) * 1000.0,
		Y: (-teme.X*sinG + teme.Y*cosG) * 1000.0,
		Z: teme.Z * 1000.0,
	}
}

// ECEFToTEME is the inverse sidereal rotation, used to bring the observer
// into the inertial frame for sun-geometry calculations.
// Input in meters, output in km.
func ECEFToTEME(ecef PositionECEF, t time.Time) PositionTEME {
	gmst := GMST(t)
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	return PositionTEME{
		X: (ecef.X*cosG - ecef.Y*sinG) / 1000.0,
		Y: (ecef.X*sinG + ecef.Y*cosG) / 1000.0,
		Z: ecef.Z / 1000.0,
	}
}
