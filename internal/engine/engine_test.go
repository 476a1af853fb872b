package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/passes"
	"github.com/ryanmio/starlink-trainspotter/internal/providers"
	"github.com/ryanmio/starlink-trainspotter/internal/tle"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// ISS element set; epoch 2025-02-14 04:19:40 UTC.
const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058"
)

var (
	testNow   = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	issEpoch  = time.Date(2025, 2, 14, 4, 19, 40, 0, time.UTC)
	errUplink = errors.New("uplink down")
)

func issEntry() tle.Entry {
	return tle.Entry{NORADID: 25544, Name: "STARLINK-TEST", Epoch: issEpoch, Line1: issLine1, Line2: issLine2}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeLaunches struct {
	mu       sync.Mutex
	calls    int
	launches []providers.LaunchGroup
	err      error
}

func (f *fakeLaunches) RecentLaunches(ctx context.Context, windowDays int, successOnly bool) ([]providers.LaunchGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.launches, nil
}

func (f *fakeLaunches) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLaunches) set(launches []providers.LaunchGroup, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches, f.err = launches, err
}

type fakeSatellites struct {
	mu   sync.Mutex
	sats map[string][]tle.Entry
	err  error
}

func (f *fakeSatellites) SatellitesForLaunch(ctx context.Context, launchID string) ([]tle.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.sats[launchID], nil
}

type fakeBoosters struct {
	info *providers.BoosterInfo
}

func (f *fakeBoosters) BoosterInfo(ctx context.Context, coreID string) (*providers.BoosterInfo, error) {
	return f.info, nil
}

type fakeBackup struct {
	snap  *providers.Snapshot
	saves int
}

func (f *fakeBackup) SaveSnapshot(s *providers.Snapshot) error {
	f.snap = s
	f.saves++
	return nil
}

func (f *fakeBackup) LoadSnapshot() (*providers.Snapshot, error) {
	if f.snap == nil {
		return nil, providers.ErrNoBackup
	}
	return f.snap, nil
}

// testConfig disables the darkness gate and shortens the scan so ISS-based
// fixtures deterministically produce passes without hour-long scans.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Finder = passes.FinderConfig{
		Step:                 time.Minute,
		Horizon:              24 * time.Hour,
		MinElevationDeg:      0,
		TwilightThresholdDeg: 90,
	}
	return cfg
}

func testObserver(t *testing.T, lat, lon float64) transform.Observer {
	t.Helper()
	obs, err := transform.NewObserver(lat, lon)
	if err != nil {
		t.Fatalf("NewObserver(%v, %v): %v", lat, lon, err)
	}
	return obs
}

func testLaunchGroup() providers.LaunchGroup {
	return providers.LaunchGroup{
		ID:         "starlink-11-1",
		Name:       "Starlink Group 11-1",
		LaunchedAt: testNow.Add(-48 * time.Hour),
		Success:    true,
		CoreID:     "core-b1067",
	}
}

func newTestEngine(launches *fakeLaunches, sats *fakeSatellites, clock *fakeClock) *Engine {
	return New(testConfig(), Deps{
		Launches:   launches,
		Satellites: sats,
		Boosters:   &fakeBoosters{info: &providers.BoosterInfo{CoreID: "B1067", FlightNumber: 25, LandingType: "ASDS", LandingPad: "JRTI"}},
		Clock:      clock.Now,
	}, testLogger)
}

func TestGetPredictionsRanksAndEnriches(t *testing.T) {
	clock := &fakeClock{t: testNow}
	launches := &fakeLaunches{launches: []providers.LaunchGroup{testLaunchGroup()}}
	sats := &fakeSatellites{sats: map[string][]tle.Entry{"starlink-11-1": {issEntry()}}}
	e := newTestEngine(launches, sats, clock)

	obs := testObserver(t, 40.7128, -74.0060)
	got, err := e.GetPredictions(context.Background(), obs, nil)
	if err != nil {
		t.Fatalf("GetPredictions: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one pass for ISS over NYC in 24h with no darkness gate")
	}
	for i, p := range got {
		if p.Score < 0 || p.Score > passes.DefaultWeights.Sum() {
			t.Errorf("pass %d score %v outside [0, %v]", i, p.Score, passes.DefaultWeights.Sum())
		}
		if i > 0 && got[i].Score > got[i-1].Score {
			t.Errorf("passes not sorted by descending score at %d", i)
		}
		if p.Launch == nil {
			t.Fatalf("pass %d missing launch metadata", i)
		}
		if p.Launch.FlightNumber != 25 || p.Launch.CoreID != "B1067" {
			t.Errorf("pass %d booster metadata = %+v", i, p.Launch)
		}
		if p.LaunchID != "starlink-11-1" {
			t.Errorf("pass %d launch ID = %q", i, p.LaunchID)
		}
	}
	if len(got) > e.cfg.TopN {
		t.Errorf("returned %d passes, want at most %d", len(got), e.cfg.TopN)
	}
}

func TestGetPredictionsCachesByQuantizedLocation(t *testing.T) {
	clock := &fakeClock{t: testNow}
	launches := &fakeLaunches{launches: []providers.LaunchGroup{testLaunchGroup()}}
	sats := &fakeSatellites{sats: map[string][]tle.Entry{"starlink-11-1": {issEntry()}}}
	e := newTestEngine(launches, sats, clock)

	first, err := e.GetPredictions(context.Background(), testObserver(t, 40.712, -74.008), nil)
	if err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := launches.callCount()

	// Breaking the upstream must not matter: a nearby observer in the same
	// 0.01-degree cell hits the cache within the TTL.
	launches.set(nil, errUplink)
	clock.Advance(5 * time.Minute)

	second, err := e.GetPredictions(context.Background(), testObserver(t, 40.714, -74.006), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("cached result differs from original")
	}
	if launches.callCount() != callsAfterFirst {
		t.Errorf("launch provider called %d times, want %d (cache hit)", launches.callCount(), callsAfterFirst)
	}

	// Different weights key separately: this misses the prediction cache but
	// recomputes from the still-live snapshot, so no upstream call is made.
	w := passes.Weights{DeployRecency: 1, Brightness: 0, Elevation: 0, Twilight: 0}
	reweighted, err := e.GetPredictions(context.Background(), testObserver(t, 40.712, -74.008), &w)
	if err != nil {
		t.Fatalf("reweighted request: %v", err)
	}
	if launches.callCount() != callsAfterFirst {
		t.Errorf("reweighted request hit upstream; snapshot cache should cover it")
	}
	if len(reweighted) > 0 && len(first) > 0 && reweighted[0].Score == first[0].Score {
		// Deploy-only weighting gives every pass of one launch the same
		// score, which cannot match the blended default for these fixtures.
		t.Error("reweighted scores identical to default-weight scores")
	}
}

func TestGetPredictionsDataUnavailable(t *testing.T) {
	clock := &fakeClock{t: testNow}
	launches := &fakeLaunches{err: errUplink}
	sats := &fakeSatellites{}
	e := newTestEngine(launches, sats, clock)

	_, err := e.GetPredictions(context.Background(), testObserver(t, 40.7128, -74.0060), nil)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
	// Both windows were tried before giving up.
	if launches.callCount() != 2 {
		t.Errorf("launch provider called %d times, want 2 (primary + fallback)", launches.callCount())
	}
}

func TestGetPredictionsServesExpiredEntryOnFailure(t *testing.T) {
	clock := &fakeClock{t: testNow}
	launches := &fakeLaunches{err: errUplink}
	sats := &fakeSatellites{}
	e := newTestEngine(launches, sats, clock)

	obs := testObserver(t, 40.7128, -74.0060)
	seed := []passes.Pass{{SatelliteID: 25544, SatelliteName: "STARLINK-TEST", Start: testNow, Score: 0.5}}
	key := predictionKey(obs, passes.DefaultWeights)
	e.predictions[key] = &predictionEntry{
		passes:    seed,
		createdAt: testNow.Add(-time.Hour),
		expiresAt: testNow.Add(-45 * time.Minute),
	}

	got, err := e.GetPredictions(context.Background(), obs, nil)
	if err != nil {
		t.Fatalf("expected degraded serve, got error: %v", err)
	}
	if !reflect.DeepEqual(got, seed) {
		t.Errorf("degraded result = %+v, want seeded passes", got)
	}
	if stats := e.GetCacheStats(); stats.DegradedServes != 1 {
		t.Errorf("DegradedServes = %d, want 1", stats.DegradedServes)
	}
}

func TestGetPredictionsBackupFallback(t *testing.T) {
	clock := &fakeClock{t: testNow}
	launches := &fakeLaunches{err: errUplink}
	backup := &fakeBackup{snap: &providers.Snapshot{
		FetchedAt:  testNow.Add(-2 * time.Hour),
		Launches:   []providers.LaunchGroup{testLaunchGroup()},
		Satellites: map[string][]tle.Entry{"starlink-11-1": {issEntry()}},
	}}
	e := New(testConfig(), Deps{
		Launches:   launches,
		Satellites: &fakeSatellites{},
		Backup:     backup,
		Clock:      clock.Now,
	}, testLogger)

	got, err := e.GetPredictions(context.Background(), testObserver(t, 40.7128, -74.0060), nil)
	if err != nil {
		t.Fatalf("GetPredictions with backup: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected passes computed from the backup snapshot")
	}
	if launches.callCount() != 2 {
		t.Errorf("launch provider called %d times before backup, want 2", launches.callCount())
	}
}

func TestGetPredictionsSkipsStaleElementSets(t *testing.T) {
	clock := &fakeClock{t: testNow.Add(5 * 24 * time.Hour)} // epoch now 5 days old
	launches := &fakeLaunches{launches: []providers.LaunchGroup{testLaunchGroup()}}
	sats := &fakeSatellites{sats: map[string][]tle.Entry{"starlink-11-1": {issEntry()}}}
	e := newTestEngine(launches, sats, clock)

	got, err := e.GetPredictions(context.Background(), testObserver(t, 40.7128, -74.0060), nil)
	if err != nil {
		t.Fatalf("stale element sets should not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d passes from a group with only stale element sets, want 0", len(got))
	}
}

func TestGetPredictionsCancelledContext(t *testing.T) {
	clock := &fakeClock{t: testNow}
	launches := &fakeLaunches{launches: []providers.LaunchGroup{testLaunchGroup()}}
	sats := &fakeSatellites{sats: map[string][]tle.Entry{"starlink-11-1": {issEntry()}}}
	e := newTestEngine(launches, sats, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.GetPredictions(ctx, testObserver(t, 40.7128, -74.0060), nil); err == nil {
		t.Fatal("expected error for cancelled context with empty cache")
	}
}

func TestSubsample(t *testing.T) {
	entries := make([]tle.Entry, 30)
	for i := range entries {
		entries[i].NORADID = i
	}

	tests := []struct {
		name    string
		stride  int
		cap     int
		wantIDs []int
	}{
		{"every third up to cap", 3, 5, []int{0, 3, 6, 9, 12}},
		{"stride past end", 3, 20, []int{0, 3, 6, 9, 12, 15, 18, 21, 24, 27}},
		{"stride one", 1, 3, []int{0, 1, 2}},
		{"zero stride treated as one", 0, 2, []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := subsample(entries, tt.stride, tt.cap)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].NORADID != id {
					t.Errorf("entry %d: NORAD %d, want %d", i, got[i].NORADID, id)
				}
			}
		})
	}
}

func TestPredictionKeyQuantization(t *testing.T) {
	a := testObserver(t, 40.712, -74.008)
	b := testObserver(t, 40.714, -74.006)
	c := testObserver(t, 40.72, -74.008)

	if predictionKey(a, passes.DefaultWeights) != predictionKey(b, passes.DefaultWeights) {
		t.Error("observers in the same 0.01-degree cell should share a key")
	}
	if predictionKey(a, passes.DefaultWeights) == predictionKey(c, passes.DefaultWeights) {
		t.Error("observers in different cells should not share a key")
	}
	w := passes.Weights{DeployRecency: 1}
	if predictionKey(a, passes.DefaultWeights) == predictionKey(a, w) {
		t.Error("different weights should not share a key")
	}
}

func TestQualityZeroLaunches(t *testing.T) {
	clock := &fakeClock{t: testNow}
	e := newTestEngine(&fakeLaunches{}, &fakeSatellites{}, clock)

	report, err := e.GetPredictionQuality(context.Background(), testObserver(t, 40.7128, -74.0060))
	if err != nil {
		t.Fatalf("GetPredictionQuality: %v", err)
	}
	if report.Quality != QualityPoor {
		t.Errorf("quality = %q (score %d), want poor", report.Quality, report.Score)
	}
	if len(report.Factors) == 0 {
		t.Error("expected a factor explaining the missing launches")
	}
}

func TestQualityFreshLaunch(t *testing.T) {
	clock := &fakeClock{t: testNow}
	group := testLaunchGroup()
	group.LaunchedAt = testNow.Add(-24 * time.Hour)
	launches := &fakeLaunches{launches: []providers.LaunchGroup{group}}
	sats := &fakeSatellites{sats: map[string][]tle.Entry{group.ID: {issEntry()}}}
	e := newTestEngine(launches, sats, clock)

	report, err := e.GetPredictionQuality(context.Background(), testObserver(t, 40.7128, -74.0060))
	if err != nil {
		t.Fatal(err)
	}
	if report.Quality != QualityExcellent {
		t.Errorf("quality = %q (score %d), want excellent: %v", report.Quality, report.Score, report.Factors)
	}
}

func TestQualityHighLatitude(t *testing.T) {
	clock := &fakeClock{t: testNow}
	group := testLaunchGroup()
	group.LaunchedAt = testNow.Add(-24 * time.Hour)
	launches := &fakeLaunches{launches: []providers.LaunchGroup{group}}
	sats := &fakeSatellites{sats: map[string][]tle.Entry{group.ID: {issEntry()}}}
	e := newTestEngine(launches, sats, clock)

	report, err := e.GetPredictionQuality(context.Background(), testObserver(t, 68.0, 18.0))
	if err != nil {
		t.Fatal(err)
	}
	if report.Score != 90 {
		t.Errorf("score = %d, want 90 after the high-latitude deduction", report.Score)
	}
}

func TestQualityUnavailableUpstream(t *testing.T) {
	clock := &fakeClock{t: testNow}
	e := newTestEngine(&fakeLaunches{err: errUplink}, &fakeSatellites{}, clock)

	report, err := e.GetPredictionQuality(context.Background(), testObserver(t, 40.7128, -74.0060))
	if err != nil {
		t.Fatalf("quality assessment should not error on upstream failure: %v", err)
	}
	if report.Quality != QualityPoor || report.Score != 0 {
		t.Errorf("quality = %q score %d, want poor 0", report.Quality, report.Score)
	}
}

func TestCacheStats(t *testing.T) {
	clock := &fakeClock{t: testNow}
	launches := &fakeLaunches{launches: []providers.LaunchGroup{testLaunchGroup()}}
	sats := &fakeSatellites{sats: map[string][]tle.Entry{"starlink-11-1": {issEntry()}}}
	e := newTestEngine(launches, sats, clock)

	if stats := e.GetCacheStats(); stats.PredictionCacheSize != 0 || stats.LaunchCacheValid {
		t.Errorf("fresh engine stats = %+v", stats)
	}

	if _, err := e.GetPredictions(context.Background(), testObserver(t, 40.7128, -74.0060), nil); err != nil {
		t.Fatal(err)
	}

	stats := e.GetCacheStats()
	if stats.PredictionCacheSize != 1 {
		t.Errorf("PredictionCacheSize = %d, want 1", stats.PredictionCacheSize)
	}
	if !stats.LaunchCacheValid {
		t.Error("launch cache should be valid right after a computation")
	}

	clock.Advance(2 * time.Hour)
	if stats := e.GetCacheStats(); stats.LaunchCacheValid {
		t.Error("launch cache should report invalid after its TTL")
	}
}
