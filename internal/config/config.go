// Package config loads the RiskMetric configuration from a TOML file
// with environment overrides for deployment-level knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/opensource-finance/riskmetric/internal/domain"
)

// Load reads the config at path over the defaults. An empty or missing
// path keeps the defaults; environment overrides apply last.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment settings from the environment. Detector
// thresholds are deliberately file-only: changing them between runs
// invalidates the incremental signal tables.
func applyEnv(cfg *domain.Config) {
	if v := os.Getenv("RISKMETRIC_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("RISKMETRIC_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("RISKMETRIC_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("RISKMETRIC_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("RISKMETRIC_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("RISKMETRIC_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("RISKMETRIC_BUS_TYPE"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("RISKMETRIC_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("RISKMETRIC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RISKMETRIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg *domain.Config) error {
	if cfg.Detectors.SpeedThresholdMPH <= 0 {
		return fmt.Errorf("detectors.speedThresholdMph must be positive")
	}
	if cfg.Detectors.VelocityWindowSecs <= 0 {
		return fmt.Errorf("detectors.velocityWindowSecs must be positive")
	}
	if cfg.Detectors.VelocityCountThreshold <= 0 {
		return fmt.Errorf("detectors.velocityCountThreshold must be positive")
	}
	if cfg.Detectors.DriftWindowDays <= 0 {
		return fmt.Errorf("detectors.driftWindowDays must be positive")
	}
	if cfg.Detectors.DriftMinSamples <= 0 {
		return fmt.Errorf("detectors.driftMinSamples must be positive")
	}
	if cfg.Detectors.ZScoreThreshold <= 0 {
		return fmt.Errorf("detectors.zScoreThreshold must be positive")
	}

	weights := cfg.Scoring.WeightImpossibleTravel + cfg.Scoring.WeightVelocitySpike + cfg.Scoring.WeightBehavioralDrift
	if weights <= 0 {
		return fmt.Errorf("scoring weights must sum to a positive value")
	}
	if cfg.Scoring.CriticalCutoff < cfg.Scoring.HighCutoff || cfg.Scoring.HighCutoff < cfg.Scoring.MediumCutoff {
		return fmt.Errorf("scoring cutoffs must be ordered critical >= high >= medium")
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}

	return nil
}
