package passes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/astro"
	"github.com/ryanmio/starlink-trainspotter/internal/propagation"
	"github.com/ryanmio/starlink-trainspotter/internal/tle"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

// FinderConfig holds the pass scan parameters.
type FinderConfig struct {
	Step                 time.Duration // time between samples
	Horizon              time.Duration // how far ahead to scan
	MinElevationDeg      float64       // minimum satellite elevation for visibility
	TwilightThresholdDeg float64       // max observer sun elevation for visibility
}

// DefaultFinderConfig returns the production scan parameters: 30 second
// steps over a 7 day horizon with the standard visibility thresholds.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{
		Step:                 30 * time.Second,
		Horizon:              7 * 24 * time.Hour,
		MinElevationDeg:      astro.MinElevationDeg,
		TwilightThresholdDeg: astro.CivilTwilightDeg,
	}
}

// Finder segments a satellite's timeline into discrete visible passes.
type Finder struct {
	cfg    FinderConfig
	logger *slog.Logger
}

// NewFinder creates a Finder with the given scan parameters.
func NewFinder(cfg FinderConfig, logger *slog.Logger) *Finder {
	return &Finder{cfg: cfg, logger: logger}
}

// sample is one time step's geometry while inside a pass.
type sample struct {
	t            time.Time
	elevationDeg float64
	azimuthDeg   float64
	pos          transform.PositionTEME
}

// FindPasses scans from start to start+horizon in fixed steps and returns
// the visible passes for one satellite. The scan is a two-state machine:
// out of a pass, a visible step opens one; inside a pass, the first
// non-visible step closes it. A pass still open at the horizon is closed
// with whatever points were buffered. Passes with fewer than two samples
// are discarded.
//
// A propagation failure aborts this satellite's scan only; the caller skips
// the satellite and continues the batch.
func (f *Finder) FindPasses(ctx context.Context, entry tle.Entry, launchID string, obs transform.Observer, start time.Time) ([]Pass, error) {
	prop, err := propagation.New(entry)
	if err != nil {
		return nil, err
	}

	end := start.Add(f.cfg.Horizon)
	var (
		result []Pass
		buf    []sample
	)

	for t := start; !t.After(end); t = t.Add(f.cfg.Step) {
		if err := ctx.Err(); err != nil {
			// Partial scans are never returned: a truncated timeline would
			// silently drop passes near the horizon.
			return nil, fmt.Errorf("scan of satellite %d interrupted: %w", entry.NORADID, err)
		}

		pos, err := prop.Propagate(t)
		if err != nil {
			return nil, err
		}

		ecef := transform.TEMEToECEF(pos, t)
		la := transform.ECEFToLookAngles(obs, ecef)

		if astro.Visible(pos, obs, t, la.ElevationDeg, f.cfg.MinElevationDeg, f.cfg.TwilightThresholdDeg) {
			buf = append(buf, sample{
				t:            t,
				elevationDeg: la.ElevationDeg,
				azimuthDeg:   la.AzimuthDeg,
				pos:          pos,
			})
			continue
		}

		if len(buf) > 0 {
			if p, ok := f.closePass(entry, launchID, obs, buf); ok {
				result = append(result, p)
			}
			buf = nil
		}
	}

	// Horizon reached while still in a pass: close with the buffered points.
	if len(buf) > 0 {
		if p, ok := f.closePass(entry, launchID, obs, buf); ok {
			result = append(result, p)
		}
	}

	return result, nil
}

// closePass builds a Pass from buffered samples. Degenerate passes (fewer
// than two samples) are dropped.
func (f *Finder) closePass(entry tle.Entry, launchID string, obs transform.Observer, buf []sample) (Pass, bool) {
	if len(buf) < 2 {
		f.logger.Debug("discarding degenerate pass",
			"satellite", entry.NORADID,
			"samples", len(buf),
		)
		return Pass{}, false
	}

	peak := buf[0]
	for _, s := range buf[1:] {
		if s.elevationDeg > peak.elevationDeg {
			peak = s
		}
	}

	first, last := buf[0], buf[len(buf)-1]

	return Pass{
		SatelliteID:      entry.NORADID,
		SatelliteName:    entry.Name,
		LaunchID:         launchID,
		Start:            first.t,
		Peak:             peak.t,
		End:              last.t,
		PeakElevationDeg: peak.elevationDeg,
		PhaseAngleDeg:    astro.PhaseAngleDeg(peak.pos, obs, peak.t),
		StartAzimuthDeg:  first.azimuthDeg,
		EndAzimuthDeg:    last.azimuthDeg,
	}, true
}
