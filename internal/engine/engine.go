// Package engine is the visibility prediction engine: it fetches upstream
// launch/satellite snapshots, fans the pass finder out across launch
// groups, ranks the resulting passes, and memoizes both the snapshot and
// the per-observer results with independent TTLs.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ryanmio/starlink-trainspotter/internal/passes"
	"github.com/ryanmio/starlink-trainspotter/internal/providers"
)

// ErrDataUnavailable is returned when upstream fetches fail and no cached
// data of any age exists to serve instead. It is distinct from an empty
// (successful) result.
var ErrDataUnavailable = errors.New("prediction data unavailable")

// Config holds the engine's tuning parameters.
type Config struct {
	SnapshotTTL   time.Duration // how long the upstream snapshot is reused
	PredictionTTL time.Duration // how long per-observer results are reused

	LaunchWindowDays   int    // primary launch query window
	FallbackWindowDays int    // broadened window when the primary query fails
	TrainNameFilter    string // substring a launch name must contain; empty disables

	GroupBatchSize int // launch groups processed concurrently per batch
	SampleCap      int // max satellites scanned per group
	SampleStride   int // take every Nth satellite in source order
	TopN           int // ranked passes returned

	MaxTLEAge time.Duration // freshness cutoff for element sets
	Finder    passes.FinderConfig
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		SnapshotTTL:        time.Hour,
		PredictionTTL:      15 * time.Minute,
		LaunchWindowDays:   30,
		FallbackWindowDays: 60,
		TrainNameFilter:    "Starlink",
		GroupBatchSize:     4,
		SampleCap:          10,
		SampleStride:       3,
		TopN:               20,
		MaxTLEAge:          48 * time.Hour,
		Finder:             passes.DefaultFinderConfig(),
	}
}

// BackupStore persists the last good snapshot for offline fallback.
type BackupStore interface {
	SaveSnapshot(*providers.Snapshot) error
	LoadSnapshot() (*providers.Snapshot, error)
}

// Deps are the engine's injected collaborators. Clock defaults to time.Now;
// tests substitute a fake clock and fake providers.
type Deps struct {
	Launches   providers.LaunchProvider
	Satellites providers.SatelliteProvider
	Boosters   providers.BoosterProvider // optional
	Backup     BackupStore               // optional
	Clock      func() time.Time          // optional
}

// Engine owns the two caches and the orchestration between them. Safe for
// concurrent use.
type Engine struct {
	cfg    Config
	deps   Deps
	finder *passes.Finder
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	snapshot    *snapshotEntry
	predictions map[string]*predictionEntry

	// flight deduplicates concurrent refreshes of the same cache key.
	flight singleflight.Group

	degradedServes atomic.Int64
}

// New creates an engine instance.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:         cfg,
		deps:        deps,
		finder:      passes.NewFinder(cfg.Finder, logger),
		logger:      logger,
		now:         now,
		predictions: make(map[string]*predictionEntry),
	}
}

// CacheStats is the diagnostic view of the engine's caches.
type CacheStats struct {
	PredictionCacheSize int
	LaunchCacheValid    bool
	LaunchCacheExpiry   time.Time
	DegradedServes      int64
}

// GetCacheStats reports current cache state. Diagnostic only.
func (e *Engine) GetCacheStats() CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := CacheStats{
		PredictionCacheSize: len(e.predictions),
		DegradedServes:      e.degradedServes.Load(),
	}
	if e.snapshot != nil {
		stats.LaunchCacheValid = e.now().Before(e.snapshot.expiresAt)
		stats.LaunchCacheExpiry = e.snapshot.expiresAt
	}
	return stats
}
