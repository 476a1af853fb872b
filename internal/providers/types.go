// Package providers defines the upstream data sources the engine consumes:
// a launch catalog, a per-launch satellite (TLE) source, a best-effort
// booster-history source, and a local offline backup of the last good
// snapshot.
package providers

import (
	"context"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/tle"
)

// LaunchGroup is one launch and the identifier tying its satellites together.
type LaunchGroup struct {
	ID         string
	Name       string
	LaunchedAt time.Time
	Success    bool
	CoreID     string
}

// BoosterInfo is optional booster metadata for display.
type BoosterInfo struct {
	CoreID       string
	FlightNumber int
	LandingType  string
	LandingPad   string
}

// Snapshot is one observer-independent view of recent launches and their
// satellites, as fetched at a point in time.
type Snapshot struct {
	FetchedAt  time.Time
	Launches   []LaunchGroup
	Satellites map[string][]tle.Entry // launch ID -> element sets
}

// LaunchProvider lists recent launches, newest first.
type LaunchProvider interface {
	RecentLaunches(ctx context.Context, windowDays int, successOnly bool) ([]LaunchGroup, error)
}

// SatelliteProvider lists the element sets deployed by one launch.
type SatelliteProvider interface {
	SatellitesForLaunch(ctx context.Context, launchID string) ([]tle.Entry, error)
}

// BoosterProvider looks up booster history for a core. Best-effort: a nil
// result with nil error means "unknown", and failures must never fail
// pass-finding.
type BoosterProvider interface {
	BoosterInfo(ctx context.Context, coreID string) (*BoosterInfo, error)
}
