package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/providers"
	"github.com/ryanmio/starlink-trainspotter/internal/tle"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

// Quality buckets a numeric quality score for display.
type Quality string

const (
	QualityExcellent Quality = "excellent" // score >= 90
	QualityGood      Quality = "good"      // score >= 70
	QualityFair      Quality = "fair"      // score >= 50
	QualityPoor      Quality = "poor"      // everything below
)

// QualityReport explains how trustworthy predictions for a site are right
// now, based on data availability rather than on any specific pass.
type QualityReport struct {
	Quality         Quality  `json:"quality"`
	Score           int      `json:"score"`
	Factors         []string `json:"factors"`
	Recommendations []string `json:"recommendations"`
}

// GetPredictionQuality assesses prediction trustworthiness for an observer.
// The score starts at 100 and is reduced for missing launches, missing or
// stale element sets, aging trains, and high-latitude geometry. Upstream
// failure is itself a (poor) answer, not an error.
func (e *Engine) GetPredictionQuality(ctx context.Context, obs transform.Observer) (QualityReport, error) {
	report := QualityReport{Score: 100}

	snap, err := e.getSnapshot(ctx)
	if err != nil {
		report.Score = 0
		report.Quality = bucket(report.Score)
		report.Factors = append(report.Factors, "launch data is unavailable from every source")
		report.Recommendations = append(report.Recommendations, "try again later; upstream launch and element-set services are unreachable")
		return report, nil
	}

	now := e.now()

	if len(snap.Launches) == 0 {
		report.Score -= 60
		report.Factors = append(report.Factors,
			fmt.Sprintf("no Starlink launches found in the last %d days", e.cfg.LaunchWindowDays))
		report.Recommendations = append(report.Recommendations,
			"check back after the next Starlink launch; fresh trains are the brightest")
	} else {
		newest := snap.Launches[0].LaunchedAt
		for _, g := range snap.Launches[1:] {
			if g.LaunchedAt.After(newest) {
				newest = g.LaunchedAt
			}
		}
		age := now.Sub(newest)
		switch {
		case age <= 48*time.Hour:
			report.Factors = append(report.Factors,
				fmt.Sprintf("a launch %.0f hours ago means a tight, bright train", age.Hours()))
		case age > 14*24*time.Hour:
			report.Score -= 20
			report.Factors = append(report.Factors,
				fmt.Sprintf("the newest launch is %.0f days old; its satellites have spread out and dimmed", age.Hours()/24))
			report.Recommendations = append(report.Recommendations,
				"older trains are fainter and less train-like; temper expectations")
		}
	}

	total, valid, fresh := e.countElementSets(snap, now)
	switch {
	case total == 0 && len(snap.Launches) > 0:
		report.Score -= 30
		report.Factors = append(report.Factors, "no element sets are available for any recent launch")
		report.Recommendations = append(report.Recommendations,
			"element sets usually appear within hours of a launch; retry soon")
	case total > 0:
		validRatio := float64(valid) / float64(total)
		if validRatio < 0.5 {
			report.Score -= 20
			report.Factors = append(report.Factors,
				fmt.Sprintf("only %d of %d element sets are structurally valid", valid, total))
		} else if validRatio < 0.8 {
			report.Score -= 10
			report.Factors = append(report.Factors,
				fmt.Sprintf("%d of %d element sets are structurally valid", valid, total))
		}
		if valid > 0 {
			staleRatio := float64(valid-fresh) / float64(valid)
			if staleRatio > 0.5 {
				report.Score -= 15
				report.Factors = append(report.Factors,
					fmt.Sprintf("more than half of the element sets are older than %s", e.cfg.MaxTLEAge))
				report.Recommendations = append(report.Recommendations,
					"predicted times may drift by minutes; re-check closer to the pass")
			}
		}
	}

	if math.Abs(obs.LatDeg) > 60 {
		report.Score -= 10
		report.Factors = append(report.Factors,
			fmt.Sprintf("high-latitude site (%.1f deg): twilight geometry limits visible passes", obs.LatDeg))
		report.Recommendations = append(report.Recommendations,
			"near the solstices the sky may never get dark enough at this latitude")
	}

	if report.Score < 0 {
		report.Score = 0
	}
	if report.Score > 100 {
		report.Score = 100
	}
	report.Quality = bucket(report.Score)
	if len(report.Recommendations) == 0 {
		report.Recommendations = append(report.Recommendations,
			"conditions look good; aim for the passes nearest civil twilight")
	}
	return report, nil
}

// countElementSets tallies the snapshot's element sets: total, structurally
// valid, and valid-and-fresh.
func (e *Engine) countElementSets(snap *providers.Snapshot, now time.Time) (total, valid, fresh int) {
	for _, entries := range snap.Satellites {
		for _, entry := range entries {
			total++
			if tle.Validate(entry.Line1, entry.Line2) != nil {
				continue
			}
			valid++
			if tle.IsFresh(entry.Epoch, now, e.cfg.MaxTLEAge) {
				fresh++
			}
		}
	}
	return total, valid, fresh
}

func bucket(score int) Quality {
	switch {
	case score >= 90:
		return QualityExcellent
	case score >= 70:
		return QualityGood
	case score >= 50:
		return QualityFair
	default:
		return QualityPoor
	}
}
