package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/auth"
	"github.com/ryanmio/starlink-trainspotter/internal/engine"
	"github.com/ryanmio/starlink-trainspotter/internal/passes"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

type fakePredictor struct {
	passes  []passes.Pass
	err     error
	report  engine.QualityReport
	stats   engine.CacheStats
	gotObs  transform.Observer
	gotW    *passes.Weights
	called  int
}

func (f *fakePredictor) GetPredictions(ctx context.Context, obs transform.Observer, w *passes.Weights) ([]passes.Pass, error) {
	f.called++
	f.gotObs = obs
	f.gotW = w
	return f.passes, f.err
}

func (f *fakePredictor) GetPredictionQuality(ctx context.Context, obs transform.Observer) (engine.QualityReport, error) {
	return f.report, f.err
}

func (f *fakePredictor) GetCacheStats() engine.CacheStats {
	return f.stats
}

func newTestServer(eng Predictor) http.Handler {
	return NewServer(":0", eng, testLogger, auth.Config{}).Handler()
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPredictionsOK(t *testing.T) {
	start := time.Date(2025, 2, 15, 6, 30, 0, 0, time.UTC)
	fake := &fakePredictor{passes: []passes.Pass{{
		SatelliteID:      62001,
		SatelliteName:    "STARLINK-32501",
		LaunchID:         "starlink-11-1",
		Start:            start,
		Peak:             start.Add(2 * time.Minute),
		End:              start.Add(5 * time.Minute),
		PeakElevationDeg: 47.5,
		Score:            0.61,
		Launch:           &passes.LaunchMeta{Name: "Starlink Group 11-1", FlightNumber: 25},
	}}}
	h := newTestServer(fake)

	rec := get(t, h, "/api/v1/predictions?lat=40.7128&lon=-74.0060")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body struct {
		Passes []passJSON `json:"passes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Passes) != 1 {
		t.Fatalf("got %d passes, want 1", len(body.Passes))
	}
	p := body.Passes[0]
	if p.SatelliteID != 62001 || p.Score != 0.61 || p.Launch == nil || p.Launch.FlightNumber != 25 {
		t.Errorf("pass = %+v", p)
	}
	if fake.gotObs.LatDeg != 40.7128 {
		t.Errorf("observer latitude = %v", fake.gotObs.LatDeg)
	}
	if fake.gotW != nil {
		t.Errorf("weights = %+v, want nil (defaults)", fake.gotW)
	}
}

func TestPredictionsEmptyIsOK(t *testing.T) {
	h := newTestServer(&fakePredictor{})

	rec := get(t, h, "/api/v1/predictions?lat=40.7&lon=-74.0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for an empty result", rec.Code)
	}
	var body struct {
		Passes []passJSON `json:"passes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Passes == nil || len(body.Passes) != 0 {
		t.Errorf("passes = %v, want empty array (not null)", body.Passes)
	}
}

func TestPredictionsWeightOverrides(t *testing.T) {
	fake := &fakePredictor{}
	h := newTestServer(fake)

	rec := get(t, h, "/api/v1/predictions?lat=40.7&lon=-74.0&w_deploy=0.8&w_twilight=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if fake.gotW == nil {
		t.Fatal("weights = nil, want overrides applied")
	}
	if fake.gotW.DeployRecency != 0.8 || fake.gotW.Twilight != 0 {
		t.Errorf("weights = %+v", fake.gotW)
	}
	// Unspecified weights keep defaults.
	if fake.gotW.Brightness != passes.DefaultWeights.Brightness {
		t.Errorf("brightness = %v, want default", fake.gotW.Brightness)
	}
}

func TestPredictionsBadRequests(t *testing.T) {
	h := newTestServer(&fakePredictor{})

	tests := []struct {
		name string
		url  string
	}{
		{"missing params", "/api/v1/predictions"},
		{"non-numeric lat", "/api/v1/predictions?lat=abc&lon=0"},
		{"latitude out of range", "/api/v1/predictions?lat=91&lon=0"},
		{"longitude out of range", "/api/v1/predictions?lat=0&lon=181"},
		{"negative weight", "/api/v1/predictions?lat=40&lon=-74&w_deploy=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(t, h, tt.url); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestPredictionsUnavailable(t *testing.T) {
	h := newTestServer(&fakePredictor{err: engine.ErrDataUnavailable})

	rec := get(t, h, "/api/v1/predictions?lat=40.7&lon=-74.0")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestQuality(t *testing.T) {
	h := newTestServer(&fakePredictor{report: engine.QualityReport{
		Quality: engine.QualityGood,
		Score:   75,
		Factors: []string{"the newest launch is 10 days old"},
	}})

	rec := get(t, h, "/api/v1/quality?lat=40.7&lon=-74.0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report engine.QualityReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Quality != engine.QualityGood || report.Score != 75 {
		t.Errorf("report = %+v", report)
	}
}

func TestCacheStats(t *testing.T) {
	h := newTestServer(&fakePredictor{stats: engine.CacheStats{
		PredictionCacheSize: 3,
		LaunchCacheValid:    true,
		DegradedServes:      1,
	}})

	rec := get(t, h, "/api/v1/cache-stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["prediction_cache_size"].(float64) != 3 || body["launch_cache_valid"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestAuthProtectsAPI(t *testing.T) {
	srv := NewServer(":0", &fakePredictor{}, testLogger, auth.Config{Enabled: true, Token: "secret"})
	h := srv.Handler()

	if rec := get(t, h, "/api/v1/cache-stats"); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200 (exempt)", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache-stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}
