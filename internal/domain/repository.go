// Package domain defines the core interfaces and types for RiskMetric.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence across the three
// pipeline layers: staging (transactions, user profiles), detector signal
// tables with their checkpoints, and the Gold output tables consumed by
// the dashboard collaborator.
type Repository interface {
	// Staging operations
	InsertTransactions(ctx context.Context, txns []*Transaction) error
	InsertUserProfiles(ctx context.Context, profiles []*UserProfile) error
	CountTransactions(ctx context.Context) (int64, error)

	// StreamTransactions yields every staged transaction ordered by
	// (user_id, timestamp, transaction_id) — the ordered columnar read the
	// window engine depends on. Iteration stops on the first handler error.
	StreamTransactions(ctx context.Context, fn func(*Transaction) error) error

	GetUserProfiles(ctx context.Context) (map[string]*UserProfile, error)

	// Detector signal tables. Appends are atomic with the checkpoint
	// update: either all rows and the new high-water mark commit, or none.
	AppendTravelSignals(ctx context.Context, rows []TravelSignal, cp Checkpoint) error
	AppendVelocitySignals(ctx context.Context, rows []VelocitySignal, cp Checkpoint) error
	AppendDriftSignals(ctx context.Context, rows []DriftSignal, cp Checkpoint) error

	GetTravelSignals(ctx context.Context) (map[string]*TravelSignal, error)
	GetVelocitySignals(ctx context.Context) (map[string]*VelocitySignal, error)
	GetDriftSignals(ctx context.Context) (map[string]*DriftSignal, error)

	// Checkpoint returns nil (no error) when the detector has never run.
	GetCheckpoint(ctx context.Context, detector Archetype) (*Checkpoint, error)
	SignalRowCount(ctx context.Context, detector Archetype) (int64, error)

	// ResetDetector discards a detector's signal table and checkpoint
	// (full refresh).
	ResetDetector(ctx context.Context, detector Archetype) error

	// Gold tables, replaced wholesale each run.
	ReplaceRiskScores(ctx context.Context, records []*RiskRecord) error
	ReplaceFraudAttribution(ctx context.Context, records []*AttributionRecord) error
	ReplaceUserRiskProfiles(ctx context.Context, profiles []*UserRiskProfile) error
	ReplaceModelEvaluation(ctx context.Context, rows []EvaluationRow) error
	ReplaceThresholdCalibration(ctx context.Context, points []CalibrationPoint) error

	// Gold reads for the report API.
	ListRiskScores(ctx context.Context, limit, offset int) ([]*RiskRecord, error)
	ListFraudAttribution(ctx context.Context, limit, offset int) ([]*AttributionRecord, error)
	ListUserRiskProfiles(ctx context.Context, limit, offset int) ([]*UserRiskProfile, error)
	GetModelEvaluation(ctx context.Context) ([]EvaluationRow, error)
	GetThresholdCalibration(ctx context.Context) ([]CalibrationPoint, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `toml:"driver"`

	// SQLite specific
	SQLitePath string `toml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `toml:"postgresHost"`
	PostgresPort     int    `toml:"postgresPort"`
	PostgresUser     string `toml:"postgresUser"`
	PostgresPassword string `toml:"postgresPassword"`
	PostgresDB       string `toml:"postgresDb"`
	PostgresSSLMode  string `toml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `toml:"maxOpenConns"`
	MaxIdleConns    int           `toml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `toml:"-"`
}
