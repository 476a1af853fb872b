// Package propagation wraps the SGP4 orbital model for single satellites.
package propagation

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/ryanmio/starlink-trainspotter/internal/tle"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite.
//
// Pure Go, battle-tested, explicit TEME output. Propagate() takes the
// Satellite by value so SGP4 error codes are not visible to the caller;
// failures are detected by checking the output for NaN/Inf and
// unreasonable position magnitudes.

// Propagator holds the parsed SGP4 state for one satellite. Parsing the
// element set is the expensive part, so callers retain a Propagator across
// the many time steps of a pass scan.
type Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// New creates a Propagator from a TLE entry. Returns an error if the entry
// fails structural validation or the SGP4 model cannot initialize.
//
// Structural validation runs first because go-satellite calls log.Fatal on
// malformed input, which would kill the process.
func New(entry tle.Entry) (*Propagator, error) {
	if err := tle.Validate(entry.Line1, entry.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for satellite %d: %w", entry.NORADID, err)
	}

	sat := satellite.TLEToSat(entry.Line1, entry.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for satellite %d: code=%d %s", entry.NORADID, sat.Error, sat.ErrorStr)
	}
	return &Propagator{sat: sat, noradID: entry.NORADID}, nil
}

// Propagate computes the satellite's TEME position (km) at the given time.
// Fails on NaN/Inf output or a position magnitude outside the plausible
// Earth-orbit band; such a failure aborts this satellite only, never the
// batch it belongs to.
func (p *Propagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for satellite %d: output is NaN/Inf", p.noradID)
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for satellite %d: unreasonable position magnitude %.1f km", p.noradID, mag)
	}

	return transform.PositionTEME{X: pos.X, Y: pos.Y, Z: pos.Z}, nil
}
