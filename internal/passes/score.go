package passes

import (
	"math"
	"time"
)

// Weights are the four non-negative scalars of the scoring function. They
// are per-request configuration, not persisted state.
type Weights struct {
	DeployRecency float64
	Brightness    float64
	Elevation     float64
	Twilight      float64
}

// DefaultWeights is the documented default weighting (sums to 1.0).
var DefaultWeights = Weights{
	DeployRecency: 0.45,
	Brightness:    0.30,
	Elevation:     0.20,
	Twilight:      0.05,
}

// UnbalancedThreshold is the weight sum above which a request is flagged
// as unbalanced. Unbalanced weights are still accepted.
const UnbalancedThreshold = 1.2

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.DeployRecency + w.Brightness + w.Elevation + w.Twilight
}

// Unbalanced reports whether the weight sum exceeds the accepted threshold.
func (w Weights) Unbalanced() bool {
	return w.Sum() > UnbalancedThreshold
}

// Score computes a pass's quality as a weighted linear sum of four
// normalized sub-scores:
//
//	deploy recency: 1 / (1 + daysSinceDeploy), clamped to [0, 1] so a peak
//	  before the launch timestamp cannot exceed 1
//	brightness:     1 - phaseAngle/180
//	elevation:      peakElevation / 90
//	twilight:       step bonus on the local solar hour of the peak
func Score(p Pass, launchedAt time.Time, obsLonDeg float64, w Weights) float64 {
	days := p.Peak.Sub(launchedAt).Hours() / 24.0
	deploy := 1.0
	if days > 0 {
		deploy = 1.0 / (1.0 + days)
	}

	brightness := 1.0 - p.PhaseAngleDeg/180.0
	elevation := p.PeakElevationDeg / 90.0
	twilight := TwilightBonus(LocalSolarHour(p.Peak, obsLonDeg))

	return w.DeployRecency*deploy +
		w.Brightness*brightness +
		w.Elevation*elevation +
		w.Twilight*twilight
}

// LocalSolarHour returns the whole local solar hour in [0, 24) for a UTC
// time, using the observer's longitude as the UTC offset (15 degrees per
// hour). The twilight bands are hour-granular, so solar time is sufficient;
// no timezone database is involved.
func LocalSolarHour(t time.Time, lonDeg float64) int {
	t = t.UTC()
	h := float64(t.Hour()) + float64(t.Minute())/60.0 + lonDeg/15.0
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return int(h)
}

// TwilightBonus is a step function of the local hour: 1.0 in the tightest
// civil-twilight bands (06-07h, 19-20h), 0.7 in the extended bands
// (05-08h, 18-21h), 0.4 in the wider bands (04-09h, 17-22h), 0.1 otherwise.
func TwilightBonus(hour int) float64 {
	switch {
	case hour == 6 || hour == 19:
		return 1.0
	case (hour >= 5 && hour < 8) || (hour >= 18 && hour < 21):
		return 0.7
	case (hour >= 4 && hour < 9) || (hour >= 17 && hour < 22):
		return 0.4
	default:
		return 0.1
	}
}
