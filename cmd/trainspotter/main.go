package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryanmio/starlink-trainspotter/internal/api"
	"github.com/ryanmio/starlink-trainspotter/internal/engine"
	"github.com/ryanmio/starlink-trainspotter/internal/providers"
	"github.com/ryanmio/starlink-trainspotter/internal/transform"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "trainspotter",
		Short: "Predict visible Starlink train passes for an observer",
		// Bare invocation runs the server, matching how the service deploys.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	var (
		lat    float64
		lon    float64
		asJSON bool
	)
	predictCmd := &cobra.Command{
		Use:   "predict",
		Short: "Print upcoming passes for one location and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), lat, lon, asJSON)
		},
	}
	predictCmd.Flags().Float64Var(&lat, "lat", 0, "observer latitude in degrees")
	predictCmd.Flags().Float64Var(&lon, "lon", 0, "observer longitude in degrees")
	predictCmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	predictCmd.MarkFlagRequired("lat")
	predictCmd.MarkFlagRequired("lon")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serveCmd, predictCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if v := os.Getenv("TRAINSPOTTER_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// buildEngine wires providers and the engine from the environment. The
// returned closer releases the backup database if one was opened.
func buildEngine(logger *slog.Logger) (*engine.Engine, func(), error) {
	provCfg := loadProviderConfig(logger)
	engCfg := loadEngineConfig(logger)

	deps := engine.Deps{
		Launches:   providers.NewLaunchClient(provCfg.LaunchAPIURL, logger),
		Satellites: providers.NewSatelliteClient(provCfg.TLEAPIURL, logger),
		Boosters:   providers.NewBoosterClient(provCfg.LaunchAPIURL, logger),
	}

	closer := func() {}
	if provCfg.BackupDBPath != "" {
		backup, err := providers.OpenBackup(provCfg.BackupDBPath)
		if err != nil {
			// The backup is an availability enhancement, not a requirement.
			logger.Warn("backup store unavailable, continuing without it",
				"path", provCfg.BackupDBPath,
				"error", err,
			)
		} else {
			deps.Backup = backup
			closer = func() { backup.Close() }
		}
	}

	return engine.New(engCfg, deps, logger), closer, nil
}

func runServe() error {
	logger := newLogger()

	addr := os.Getenv("TRAINSPOTTER_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		return err
	}

	eng, closeEngine, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	srv := api.NewServer(addr, eng, logger, authCfg)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runPredict(ctx context.Context, lat, lon float64, asJSON bool) error {
	logger := newLogger()

	obs, err := transform.NewObserver(lat, lon)
	if err != nil {
		return err
	}

	eng, closeEngine, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	found, err := eng.GetPredictions(ctx, obs, nil)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(found)
	}

	if len(found) == 0 {
		fmt.Println("no visible passes in the scan window")
		return nil
	}

	fmt.Printf("%-20s %-22s %8s %8s %7s\n", "SATELLITE", "PEAK (UTC)", "MAX EL", "PHASE", "SCORE")
	for _, p := range found {
		name := p.SatelliteName
		if name == "" {
			name = fmt.Sprintf("NORAD %d", p.SatelliteID)
		}
		fmt.Printf("%-20s %-22s %7.1f° %7.1f° %7.3f\n",
			name,
			p.Peak.Format("2006-01-02 15:04:05"),
			p.PeakElevationDeg,
			p.PhaseAngleDeg,
			p.Score,
		)
	}
	return nil
}
