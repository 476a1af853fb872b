package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/passes"
	"github.com/ryanmio/starlink-trainspotter/internal/providers"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

// snapshotEntry wraps the cached upstream snapshot with its TTL.
type snapshotEntry struct {
	snap      *providers.Snapshot
	createdAt time.Time
	expiresAt time.Time
}

// predictionEntry wraps one observer's ranked passes with its TTL. Expired
// entries are kept until the next successful computation prunes them, so
// they remain available for degraded serving.
type predictionEntry struct {
	passes    []passes.Pass
	createdAt time.Time
	expiresAt time.Time
}

// predictionKey builds the cache key for an observer/weights pair. The
// location is quantized to 0.01 degrees (roughly a kilometer) so nearby
// requests share an entry; the weights are part of the key because they
// change the ranking.
func predictionKey(obs transform.Observer, w passes.Weights) string {
	lat := math.Round(obs.LatDeg*100) / 100
	lon := math.Round(obs.LonDeg*100) / 100
	return fmt.Sprintf("%.2f,%.2f|%.2f,%.2f,%.2f,%.2f",
		lat, lon, w.DeployRecency, w.Brightness, w.Elevation, w.Twilight)
}

// pruneLocked drops expired entries from both caches. Called opportunistically
// after a successful computation; the engine never runs a background sweeper.
// Callers must hold e.mu.
func (e *Engine) pruneLocked(now time.Time) {
	for key, entry := range e.predictions {
		if !now.Before(entry.expiresAt) {
			delete(e.predictions, key)
		}
	}
	if e.snapshot != nil && !now.Before(e.snapshot.expiresAt) {
		e.snapshot = nil
	}
}
