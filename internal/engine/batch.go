package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryanmio/starlink-trainspotter/internal/metrics"
	"github.com/ryanmio/starlink-trainspotter/internal/passes"
	"github.com/ryanmio/starlink-trainspotter/internal/providers"
	"github.com/ryanmio/starlink-trainspotter/internal/tle"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

// runBatch scans every launch group in the snapshot and returns the ranked
// top-N passes. Groups are processed in fixed-size concurrent batches; each
// batch completes fully before the next starts, which keeps peak propagation
// load bounded regardless of how many launches the window holds.
func (e *Engine) runBatch(ctx context.Context, snap *providers.Snapshot, obs transform.Observer, weights passes.Weights) ([]passes.Pass, error) {
	now := e.now()

	var (
		mu  sync.Mutex
		all []passes.Pass
	)

	for i := 0; i < len(snap.Launches); i += e.cfg.GroupBatchSize {
		end := i + e.cfg.GroupBatchSize
		if end > len(snap.Launches) {
			end = len(snap.Launches)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, group := range snap.Launches[i:end] {
			group := group
			g.Go(func() error {
				found, err := e.processGroup(gctx, snap, group, obs, weights, now)
				if err != nil {
					return err
				}
				mu.Lock()
				all = append(all, found...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	metrics.ObservePassesFound(len(all))
	rankPasses(all)

	if e.cfg.TopN > 0 && len(all) > e.cfg.TopN {
		all = all[:e.cfg.TopN]
	}
	return all, nil
}

// processGroup scans one launch group's satellites. Satellites with invalid
// or stale element sets are filtered out; a group with none left is skipped.
// A propagation failure skips that satellite only. Context cancellation is
// the one error that propagates: a truncated result must never be returned
// as if it were complete.
func (e *Engine) processGroup(ctx context.Context, snap *providers.Snapshot, group providers.LaunchGroup, obs transform.Observer, weights passes.Weights, now time.Time) ([]passes.Pass, error) {
	var usable []tle.Entry
	for _, entry := range snap.Satellites[group.ID] {
		if tle.Validate(entry.Line1, entry.Line2) != nil {
			continue
		}
		if !tle.IsFresh(entry.Epoch, now, e.cfg.MaxTLEAge) {
			continue
		}
		usable = append(usable, entry)
	}
	if len(usable) == 0 {
		e.logger.Info("skipping launch group with no usable element sets",
			"launch", group.ID,
			"total", len(snap.Satellites[group.ID]),
		)
		return nil, nil
	}

	// A train's satellites fly in close formation, so scanning every one is
	// redundant: take every Nth up to the cap.
	sampled := subsample(usable, e.cfg.SampleStride, e.cfg.SampleCap)
	meta := e.launchMeta(ctx, group)

	var out []passes.Pass
	for _, entry := range sampled {
		found, err := e.finder.FindPasses(ctx, entry, group.ID, obs, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			metrics.IncPropagationFailures()
			e.logger.Warn("skipping satellite after scan failure",
				"satellite", entry.NORADID,
				"launch", group.ID,
				"error", err,
			)
			continue
		}
		for i := range found {
			found[i].Launch = meta
			found[i].Score = passes.Score(found[i], group.LaunchedAt, obs.LonDeg, weights)
		}
		out = append(out, found...)
	}
	return out, nil
}

// launchMeta builds the display metadata for a group, enriching it with
// booster history when the lookup succeeds. Lookup failures are logged and
// leave the booster fields empty.
func (e *Engine) launchMeta(ctx context.Context, group providers.LaunchGroup) *passes.LaunchMeta {
	meta := &passes.LaunchMeta{
		Name:       group.Name,
		LaunchedAt: group.LaunchedAt,
		CoreID:     group.CoreID,
	}
	if e.deps.Boosters == nil || group.CoreID == "" {
		return meta
	}

	info, err := e.deps.Boosters.BoosterInfo(ctx, group.CoreID)
	if err != nil {
		e.logger.Warn("booster lookup failed",
			"core", group.CoreID,
			"launch", group.ID,
			"error", err,
		)
		return meta
	}
	if info != nil {
		meta.CoreID = info.CoreID
		meta.FlightNumber = info.FlightNumber
		meta.LandingType = info.LandingType
		meta.LandingPad = info.LandingPad
	}
	return meta
}

// subsample takes every stride-th entry, up to cap, preserving source order.
func subsample(entries []tle.Entry, stride, cap int) []tle.Entry {
	if stride < 1 {
		stride = 1
	}
	if cap <= 0 || cap > len(entries) {
		cap = len(entries)
	}
	out := make([]tle.Entry, 0, cap)
	for i := 0; i < len(entries) && len(out) < cap; i += stride {
		out = append(out, entries[i])
	}
	return out
}

// rankPasses sorts passes by score descending, breaking ties by start time
// then satellite ID so equal-scored results are deterministic.
func rankPasses(ps []passes.Pass) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Score != ps[j].Score {
			return ps[i].Score > ps[j].Score
		}
		if !ps[i].Start.Equal(ps[j].Start) {
			return ps[i].Start.Before(ps[j].Start)
		}
		return ps[i].SatelliteID < ps[j].SatelliteID
	})
}
