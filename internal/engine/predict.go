package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/metrics"
	"github.com/ryanmio/starlink-trainspotter/internal/passes"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

// GetPredictions returns the ranked upcoming passes for an observer. A nil
// weights pointer selects the default weighting. Results are cached per
// quantized location and weights; within the TTL, repeat calls return the
// cached result verbatim. When a fresh computation fails and an expired
// entry exists for the key, the expired entry is served instead.
func (e *Engine) GetPredictions(ctx context.Context, obs transform.Observer, w *passes.Weights) ([]passes.Pass, error) {
	weights := passes.DefaultWeights
	if w != nil {
		weights = *w
	}
	if weights.Unbalanced() {
		e.logger.Warn("accepting unbalanced scoring weights",
			"sum", weights.Sum(),
			"threshold", passes.UnbalancedThreshold,
		)
	}

	key := predictionKey(obs, weights)

	if cached, ok := e.lookupLive(key); ok {
		metrics.RecordPrediction("hit", 0)
		return cached, nil
	}

	// Concurrent misses for the same key share one computation.
	v, err, _ := e.flight.Do(key, func() (any, error) {
		return e.computePredictions(ctx, key, obs, weights)
	})
	if err != nil {
		return nil, err
	}
	return v.([]passes.Pass), nil
}

// lookupLive returns the cached entry for key if it has not expired.
func (e *Engine) lookupLive(key string) ([]passes.Pass, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.predictions[key]
	if !ok || !e.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.passes, true
}

// computePredictions runs a fresh batch for one cache key, storing the
// result on success and falling back to any expired entry on failure.
func (e *Engine) computePredictions(ctx context.Context, key string, obs transform.Observer, weights passes.Weights) ([]passes.Pass, error) {
	// A flight waiter queued behind the winner sees the stored result here.
	if cached, ok := e.lookupLive(key); ok {
		metrics.RecordPrediction("hit", 0)
		return cached, nil
	}

	started := time.Now()

	var ranked []passes.Pass
	snap, err := e.getSnapshot(ctx)
	if err == nil {
		ranked, err = e.runBatch(ctx, snap, obs, weights)
	}

	if err != nil {
		e.mu.Lock()
		stale, ok := e.predictions[key]
		e.mu.Unlock()
		if ok {
			e.degradedServes.Add(1)
			metrics.RecordPrediction("degraded", 0)
			e.logger.Warn("serving expired predictions after refresh failure",
				"key", key,
				"age", e.now().Sub(stale.createdAt).Round(time.Second),
				"error", err,
			)
			return stale.passes, nil
		}
		metrics.RecordPrediction("error", 0)
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	now := e.now()
	e.mu.Lock()
	e.predictions[key] = &predictionEntry{
		passes:    ranked,
		createdAt: now,
		expiresAt: now.Add(e.cfg.PredictionTTL),
	}
	e.pruneLocked(now)
	size := len(e.predictions)
	e.mu.Unlock()

	metrics.SetPredictionCacheEntries(size)
	metrics.RecordPrediction("computed", time.Since(started))

	e.logger.Info("predictions computed",
		"key", key,
		"passes", len(ranked),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return ranked, nil
}
