// Package passes finds and scores visible satellite passes for an observer.
package passes

import "time"

// LaunchMeta is denormalized launch/booster information attached to a pass
// for display. Best-effort: booster fields may be empty.
type LaunchMeta struct {
	Name         string
	LaunchedAt   time.Time
	CoreID       string
	FlightNumber int
	LandingType  string
	LandingPad   string
}

// Pass is one contiguous visible interval for one satellite.
// Invariant: Start <= Peak <= End, and a pass is only built from at least
// two sampled points.
type Pass struct {
	SatelliteID   int
	SatelliteName string
	LaunchID      string

	Start time.Time
	Peak  time.Time
	End   time.Time

	PeakElevationDeg float64
	PhaseAngleDeg    float64
	StartAzimuthDeg  float64
	EndAzimuthDeg    float64

	Score  float64
	Launch *LaunchMeta
}
