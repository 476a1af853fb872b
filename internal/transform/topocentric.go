package transform

import "math"

// LookAngles holds azimuth, elevation, and range from observer to satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise, [0, 360)
	ElevationDeg float64 // 0 = horizon, 90 = zenith, [-90, 90]
	RangeKm      float64
}

// ECEFToLookAngles computes azimuth, elevation, and range from an observer
// to a satellite position in ECEF meters, via the SEZ (South-East-Zenith)
// topocentric rotation (Vallado Section 4.4).
func ECEFToLookAngles(obs Observer, sat PositionECEF) LookAngles {
	rx := sat.X - obs.ECEFx
	ry := sat.Y - obs.ECEFy
	rz := sat.Z - obs.ECEFz

	sinLat := math.Sin(obs.LatRad)
	cosLat := math.Cos(obs.LatRad)
	sinLon := math.Sin(obs.LonRad)
	cosLon := math.Cos(obs.LonRad)

	south := sinLat*cosLon*rx + sinLat*sinLon*ry - cosLat*rz
	east := -sinLon*rx + cosLon*ry
	zenith := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz

	rangeMag := math.Sqrt(south*south + east*east + zenith*zenith)

	el := math.Asin(zenith / rangeMag)

	// North = -South in SEZ, so azimuth = atan2(east, -south).
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180.0 / math.Pi,
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rangeMag / 1000.0,
	}
}
