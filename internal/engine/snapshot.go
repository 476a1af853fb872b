package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryanmio/starlink-trainspotter/internal/metrics"
	"github.com/ryanmio/starlink-trainspotter/internal/providers"
	"github.com/ryanmio/starlink-trainspotter/internal/tle"
)

// snapshotFlightKey is the singleflight key for snapshot refreshes. There is
// only one snapshot, so all refreshers share one key.
const snapshotFlightKey = "snapshot"

// getSnapshot returns the cached snapshot if live, otherwise refreshes it.
// Concurrent callers share one refresh.
func (e *Engine) getSnapshot(ctx context.Context) (*providers.Snapshot, error) {
	e.mu.Lock()
	if e.snapshot != nil && e.now().Before(e.snapshot.expiresAt) {
		snap := e.snapshot.snap
		e.mu.Unlock()
		return snap, nil
	}
	e.mu.Unlock()

	v, err, _ := e.flight.Do(snapshotFlightKey, func() (any, error) {
		return e.refreshSnapshot(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*providers.Snapshot), nil
}

// refreshSnapshot walks the source chain: the primary launch query, then a
// broadened fallback query, then the offline backup, then the expired
// in-memory snapshot. Only when all four fail does the caller see an error.
func (e *Engine) refreshSnapshot(ctx context.Context) (*providers.Snapshot, error) {
	// Another flight waiter may have already stored a live snapshot.
	e.mu.Lock()
	if e.snapshot != nil && e.now().Before(e.snapshot.expiresAt) {
		snap := e.snapshot.snap
		e.mu.Unlock()
		return snap, nil
	}
	e.mu.Unlock()

	launches, source, err := e.fetchLaunches(ctx)
	if err == nil && source == "backup" {
		// The backup already carries satellites; it IS the snapshot.
		snap, berr := e.deps.Backup.LoadSnapshot()
		if berr == nil {
			e.storeSnapshot(snap, source)
			return snap, nil
		}
		err = berr
	}

	if err == nil {
		snap, aerr := e.assembleSnapshot(ctx, launches)
		if aerr == nil {
			e.storeSnapshot(snap, source)
			e.saveBackup(snap)
			return snap, nil
		}
		err = aerr
	}

	// Last resort: the expired in-memory snapshot, if one survives.
	e.mu.Lock()
	stale := e.snapshot
	e.mu.Unlock()
	if stale != nil {
		metrics.IncSnapshotRefresh("stale")
		e.logger.Warn("serving expired launch snapshot after refresh failure",
			"age", e.now().Sub(stale.createdAt).Round(time.Second),
			"error", err,
		)
		return stale.snap, nil
	}

	return nil, fmt.Errorf("refreshing launch snapshot: %w", err)
}

// fetchLaunches tries the primary query, then the broadened fallback, then
// reports "backup" if the offline store should be consulted. The Starlink
// name filter applies to both live queries.
func (e *Engine) fetchLaunches(ctx context.Context) ([]providers.LaunchGroup, string, error) {
	launches, err := e.deps.Launches.RecentLaunches(ctx, e.cfg.LaunchWindowDays, true)
	if err == nil {
		return e.filterByName(launches), "primary", nil
	}
	e.logger.Warn("primary launch query failed, broadening window",
		"window_days", e.cfg.LaunchWindowDays,
		"error", err,
	)

	launches, ferr := e.deps.Launches.RecentLaunches(ctx, e.cfg.FallbackWindowDays, false)
	if ferr == nil {
		return e.filterByName(launches), "fallback", nil
	}
	e.logger.Warn("fallback launch query failed",
		"window_days", e.cfg.FallbackWindowDays,
		"error", ferr,
	)

	if e.deps.Backup != nil {
		return nil, "backup", nil
	}
	return nil, "", errors.Join(err, ferr)
}

// filterByName keeps launches whose name contains the configured train
// name substring (case-insensitive). An empty filter keeps everything.
func (e *Engine) filterByName(launches []providers.LaunchGroup) []providers.LaunchGroup {
	if e.cfg.TrainNameFilter == "" {
		return launches
	}
	needle := strings.ToLower(e.cfg.TrainNameFilter)
	out := launches[:0:0]
	for _, g := range launches {
		if strings.Contains(strings.ToLower(g.Name), needle) {
			out = append(out, g)
		}
	}
	return out
}

// assembleSnapshot fetches element sets for each launch in parallel. A
// per-launch fetch failure is logged and leaves that group empty rather
// than failing the whole snapshot.
func (e *Engine) assembleSnapshot(ctx context.Context, launches []providers.LaunchGroup) (*providers.Snapshot, error) {
	snap := &providers.Snapshot{
		FetchedAt:  e.now(),
		Launches:   launches,
		Satellites: make(map[string][]tle.Entry, len(launches)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.GroupBatchSize)

	for _, launch := range launches {
		launch := launch
		g.Go(func() error {
			entries, err := e.deps.Satellites.SatellitesForLaunch(gctx, launch.ID)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				e.logger.Warn("satellite fetch failed, leaving launch group empty",
					"launch", launch.ID,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			snap.Satellites[launch.ID] = entries
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching satellites: %w", err)
	}
	return snap, nil
}

// storeSnapshot replaces the cached snapshot and records the refresh source.
func (e *Engine) storeSnapshot(snap *providers.Snapshot, source string) {
	now := e.now()
	e.mu.Lock()
	e.snapshot = &snapshotEntry{
		snap:      snap,
		createdAt: now,
		expiresAt: now.Add(e.cfg.SnapshotTTL),
	}
	e.mu.Unlock()

	metrics.IncSnapshotRefresh(source)
	e.logger.Info("launch snapshot refreshed",
		"source", source,
		"launches", len(snap.Launches),
		"expires_at", now.Add(e.cfg.SnapshotTTL),
	)
}

// saveBackup persists the snapshot for offline fallback. Best-effort.
func (e *Engine) saveBackup(snap *providers.Snapshot) {
	if e.deps.Backup == nil {
		return
	}
	if err := e.deps.Backup.SaveSnapshot(snap); err != nil {
		e.logger.Warn("saving backup snapshot failed", "error", err)
	}
}
