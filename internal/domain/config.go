package domain

// Config holds the complete RiskMetric configuration.
// Loaded from a TOML file with environment overrides; every knob the
// scorer and calibration engine use is a named field here, so detector
// thresholds, weights and cutoffs are adjustable without code changes.
type Config struct {
	// Server settings for the report API (serve mode)
	Server ServerConfig `toml:"server"`

	// Component configurations
	Repository RepositoryConfig `toml:"repository"`
	Cache      CacheConfig      `toml:"cache"`
	EventBus   EventBusConfig   `toml:"eventBus"`

	// Pipeline configuration
	Detectors   DetectorConfig    `toml:"detectors"`
	Scoring     ScoringConfig     `toml:"scoring"`
	Calibration CalibrationConfig `toml:"calibration"`

	// Triage rules applied to scored records before alerting
	TriageRules []TriageRuleConfig `toml:"triageRules"`

	// Observability
	Logging LoggingConfig `toml:"logging"`
	Tracing TracingConfig `toml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"readTimeout"`  // seconds
	WriteTimeout int    `toml:"writeTimeout"` // seconds
}

// DetectorConfig holds the live detector thresholds and window sizes.
type DetectorConfig struct {
	// SpeedThresholdMPH flags impossible travel when ground speed is
	// defined and strictly greater than this value.
	SpeedThresholdMPH float64 `toml:"speedThresholdMph"`

	// VelocityWindowSecs is the trailing window for the velocity detector.
	VelocityWindowSecs int `toml:"velocityWindowSecs"`

	// VelocityCountThreshold flags a spike when the window count is
	// greater than or equal to this value.
	VelocityCountThreshold int64 `toml:"velocityCountThreshold"`

	// DriftWindowDays is the trailing baseline window for the drift
	// detector. The window always ends one second before the current
	// transaction so a row never influences its own baseline.
	DriftWindowDays int `toml:"driftWindowDays"`

	// DriftMinSamples is the minimum trailing count for a defined z-score.
	DriftMinSamples int64 `toml:"driftMinSamples"`

	// ZScoreThreshold flags drift when |z| is strictly greater than this.
	ZScoreThreshold float64 `toml:"zScoreThreshold"`

	// Workers bounds the number of user partitions processed concurrently.
	Workers int `toml:"workers"`
}

// ScoringConfig holds composite score weights and tier cutoffs.
// Cutoffs are evaluated highest first; a score below MediumCutoff is LOW.
type ScoringConfig struct {
	WeightImpossibleTravel int `toml:"weightImpossibleTravel"`
	WeightVelocitySpike    int `toml:"weightVelocitySpike"`
	WeightBehavioralDrift  int `toml:"weightBehavioralDrift"`

	CriticalCutoff int `toml:"criticalCutoff"`
	HighCutoff     int `toml:"highCutoff"`
	MediumCutoff   int `toml:"mediumCutoff"`
}

// CalibrationConfig holds the ordered candidate threshold sets swept by
// the calibration engine.
type CalibrationConfig struct {
	SpeedThresholdsMPH      []float64 `toml:"speedThresholdsMph"`
	VelocityCountThresholds []int64   `toml:"velocityCountThresholds"`
	ZScoreThresholds        []float64 `toml:"zScoreThresholds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"serviceName"`
}

// DefaultConfig returns the default configuration: embedded SQLite,
// in-process channel bus, local LRU cache, and the reference detector
// thresholds the synthetic archetypes were injected against.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./riskmetric.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detectors: DetectorConfig{
			SpeedThresholdMPH:      500,
			VelocityWindowSecs:     60,
			VelocityCountThreshold: 10,
			DriftWindowDays:        30,
			DriftMinSamples:        5,
			ZScoreThreshold:        3.0,
			Workers:                8,
		},
		Scoring: ScoringConfig{
			WeightImpossibleTravel: 40,
			WeightVelocitySpike:    35,
			WeightBehavioralDrift:  25,
			CriticalCutoff:         60,
			HighCutoff:             35,
			MediumCutoff:           25,
		},
		Calibration: CalibrationConfig{
			SpeedThresholdsMPH:      []float64{200, 300, 400, 500, 600, 700, 800},
			VelocityCountThresholds: []int64{3, 5, 7, 8, 10, 12, 15, 20},
			ZScoreThresholds:        []float64{1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 5.0},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "riskmetric",
		},
	}
}
