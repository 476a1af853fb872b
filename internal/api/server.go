// Package api exposes the prediction engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/auth"
	"github.com/ryanmio/starlink-trainspotter/internal/engine"
	"github.com/ryanmio/starlink-trainspotter/internal/health"
	"github.com/ryanmio/starlink-trainspotter/internal/metrics"
	"github.com/ryanmio/starlink-trainspotter/internal/passes"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

// Predictor is the engine surface the HTTP layer needs.
type Predictor interface {
	GetPredictions(ctx context.Context, obs transform.Observer, w *passes.Weights) ([]passes.Pass, error)
	GetPredictionQuality(ctx context.Context, obs transform.Observer) (engine.QualityReport, error)
	GetCacheStats() engine.CacheStats
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	engine     Predictor
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, eng Predictor, logger *slog.Logger, authCfg auth.Config) *Server {
	s := &Server{engine: eng, logger: logger}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/predictions", s.handlePredictions)
	mux.HandleFunc("GET /api/v1/quality", s.handleQuality)
	mux.HandleFunc("GET /api/v1/cache-stats", s.handleCacheStats)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second, // a cold prediction scan can take a while
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the fully wrapped handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// passJSON is the wire shape of one pass.
type passJSON struct {
	SatelliteID      int        `json:"satellite_id"`
	SatelliteName    string     `json:"satellite_name,omitempty"`
	LaunchID         string     `json:"launch_id"`
	Start            time.Time  `json:"start"`
	Peak             time.Time  `json:"peak"`
	End              time.Time  `json:"end"`
	PeakElevationDeg float64    `json:"peak_elevation_deg"`
	PhaseAngleDeg    float64    `json:"phase_angle_deg"`
	StartAzimuthDeg  float64    `json:"start_azimuth_deg"`
	EndAzimuthDeg    float64    `json:"end_azimuth_deg"`
	Score            float64    `json:"score"`
	Launch           *launchOut `json:"launch,omitempty"`
}

type launchOut struct {
	Name         string    `json:"name"`
	LaunchedAt   time.Time `json:"launched_at"`
	CoreID       string    `json:"core_id,omitempty"`
	FlightNumber int       `json:"flight_number,omitempty"`
	LandingType  string    `json:"landing_type,omitempty"`
	LandingPad   string    `json:"landing_pad,omitempty"`
}

func toPassJSON(p passes.Pass) passJSON {
	out := passJSON{
		SatelliteID:      p.SatelliteID,
		SatelliteName:    p.SatelliteName,
		LaunchID:         p.LaunchID,
		Start:            p.Start,
		Peak:             p.Peak,
		End:              p.End,
		PeakElevationDeg: p.PeakElevationDeg,
		PhaseAngleDeg:    p.PhaseAngleDeg,
		StartAzimuthDeg:  p.StartAzimuthDeg,
		EndAzimuthDeg:    p.EndAzimuthDeg,
		Score:            p.Score,
	}
	if p.Launch != nil {
		out.Launch = &launchOut{
			Name:         p.Launch.Name,
			LaunchedAt:   p.Launch.LaunchedAt,
			CoreID:       p.Launch.CoreID,
			FlightNumber: p.Launch.FlightNumber,
			LandingType:  p.Launch.LandingType,
			LandingPad:   p.Launch.LandingPad,
		}
	}
	return out
}

// handlePredictions serves GET /api/v1/predictions?lat=..&lon=.. with
// optional w_deploy, w_brightness, w_elevation, w_twilight overrides.
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	obs, ok := s.parseObserver(w, r)
	if !ok {
		return
	}
	weights, ok := s.parseWeights(w, r)
	if !ok {
		return
	}

	found, err := s.engine.GetPredictions(r.Context(), obs, weights)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out := make([]passJSON, 0, len(found))
	for _, p := range found {
		out = append(out, toPassJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": out})
}

// handleQuality serves GET /api/v1/quality?lat=..&lon=..
func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	obs, ok := s.parseObserver(w, r)
	if !ok {
		return
	}

	report, err := s.engine.GetPredictionQuality(r.Context(), obs)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCacheStats serves GET /api/v1/cache-stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.GetCacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"prediction_cache_size": stats.PredictionCacheSize,
		"launch_cache_valid":    stats.LaunchCacheValid,
		"launch_cache_expiry":   stats.LaunchCacheExpiry,
		"degraded_serves":       stats.DegradedServes,
	})
}

// parseObserver reads and validates lat/lon query parameters, writing a 400
// response on any problem.
func (s *Server) parseObserver(w http.ResponseWriter, r *http.Request) (transform.Observer, bool) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		writeError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return transform.Observer{}, false
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat must be a number")
		return transform.Observer{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lon must be a number")
		return transform.Observer{}, false
	}

	obs, err := transform.NewObserver(lat, lon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return transform.Observer{}, false
	}
	return obs, true
}

// parseWeights reads the optional scoring weight overrides. Absent
// parameters keep their default value; any present parameter must be a
// non-negative number.
func (s *Server) parseWeights(w http.ResponseWriter, r *http.Request) (*passes.Weights, bool) {
	q := r.URL.Query()
	weights := passes.DefaultWeights
	params := []struct {
		key string
		dst *float64
	}{
		{"w_deploy", &weights.DeployRecency},
		{"w_brightness", &weights.Brightness},
		{"w_elevation", &weights.Elevation},
		{"w_twilight", &weights.Twilight},
	}

	overridden := false
	for _, p := range params {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, p.key+" must be a non-negative number")
			return nil, false
		}
		*p.dst = f
		overridden = true
	}

	if !overridden {
		return nil, true
	}
	return &weights, true
}

// writeEngineError maps engine errors to HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, engine.ErrDataUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "prediction data unavailable; try again later")
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
