package main

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/auth"
	"github.com/ryanmio/starlink-trainspotter/internal/engine"
)

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("TRAINSPOTTER_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("TRAINSPOTTER_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("TRAINSPOTTER_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("TRAINSPOTTER_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

type providerConfig struct {
	LaunchAPIURL string
	TLEAPIURL    string
	BackupDBPath string
}

func loadProviderConfig(logger *slog.Logger) providerConfig {
	cfg := providerConfig{
		LaunchAPIURL: "https://api.spacexdata.com/v4",
		TLEAPIURL:    "https://celestrak.org/NORAD/elements/gp.php",
		BackupDBPath: "/tmp/trainspotter/backup.db",
	}

	if v := os.Getenv("TRAINSPOTTER_LAUNCH_API_URL"); v != "" {
		cfg.LaunchAPIURL = v
	}
	if v := os.Getenv("TRAINSPOTTER_TLE_API_URL"); v != "" {
		cfg.TLEAPIURL = v
	}
	if v, ok := os.LookupEnv("TRAINSPOTTER_BACKUP_DB"); ok {
		// Explicitly set to empty disables the backup store.
		cfg.BackupDBPath = v
	}

	logger.Info("provider config",
		"launch_api_url", cfg.LaunchAPIURL,
		"tle_api_url", cfg.TLEAPIURL,
		"backup_db", cfg.BackupDBPath,
	)

	return cfg
}

func loadEngineConfig(logger *slog.Logger) engine.Config {
	cfg := engine.DefaultConfig()

	if v := os.Getenv("TRAINSPOTTER_SNAPSHOT_TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRAINSPOTTER_SNAPSHOT_TTL value, using default", "value", v, "default", cfg.SnapshotTTL.Seconds())
		} else {
			cfg.SnapshotTTL = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("TRAINSPOTTER_PREDICTION_TTL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRAINSPOTTER_PREDICTION_TTL value, using default", "value", v, "default", cfg.PredictionTTL.Seconds())
		} else {
			cfg.PredictionTTL = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("TRAINSPOTTER_LAUNCH_WINDOW_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRAINSPOTTER_LAUNCH_WINDOW_DAYS value, using default", "value", v, "default", cfg.LaunchWindowDays)
		} else {
			cfg.LaunchWindowDays = n
		}
	}

	if v := os.Getenv("TRAINSPOTTER_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRAINSPOTTER_BATCH_SIZE value, using default", "value", v, "default", cfg.GroupBatchSize)
		} else {
			cfg.GroupBatchSize = n
		}
	}

	if v := os.Getenv("TRAINSPOTTER_SAMPLE_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRAINSPOTTER_SAMPLE_CAP value, using default", "value", v, "default", cfg.SampleCap)
		} else {
			cfg.SampleCap = n
		}
	}

	if v := os.Getenv("TRAINSPOTTER_HORIZON_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRAINSPOTTER_HORIZON_DAYS value, using default", "value", v, "default", cfg.Finder.Horizon.Hours()/24)
		} else {
			cfg.Finder.Horizon = time.Duration(n) * 24 * time.Hour
		}
	}

	if v := os.Getenv("TRAINSPOTTER_STEP_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRAINSPOTTER_STEP_SECONDS value, using default", "value", v, "default", cfg.Finder.Step.Seconds())
		} else {
			cfg.Finder.Step = time.Duration(n) * time.Second
		}
	}

	logger.Info("engine config",
		"snapshot_ttl_seconds", cfg.SnapshotTTL.Seconds(),
		"prediction_ttl_seconds", cfg.PredictionTTL.Seconds(),
		"launch_window_days", cfg.LaunchWindowDays,
		"batch_size", cfg.GroupBatchSize,
		"sample_cap", cfg.SampleCap,
		"horizon_hours", cfg.Finder.Horizon.Hours(),
		"step_seconds", cfg.Finder.Step.Seconds(),
	)

	return cfg
}
