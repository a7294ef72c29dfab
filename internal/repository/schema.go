package repository

// Schema definitions for the RiskMetric database.
// Compatible with both SQLite and PostgreSQL.
//
// Layers mirror the pipeline: staging (raw transactions + user profiles),
// detector signal tables with checkpoints, and the Gold tables consumed
// by the dashboard collaborator.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS raw_transactions (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    merchant_name TEXT NOT NULL,
    merchant_category TEXT NOT NULL,
    city TEXT NOT NULL,
    country TEXT NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    is_fraud INTEGER NOT NULL DEFAULT 0,
    fraud_type TEXT
);

CREATE INDEX IF NOT EXISTS idx_raw_txn_user_ts ON raw_transactions(user_id, timestamp, transaction_id);
CREATE INDEX IF NOT EXISTS idx_raw_txn_ts ON raw_transactions(timestamp);
`

const schemaUserProfiles = `
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    home_city TEXT NOT NULL,
    home_country TEXT NOT NULL,
    home_lat REAL NOT NULL,
    home_lon REAL NOT NULL,
    avg_amount REAL NOT NULL,
    std_amount REAL NOT NULL
);
`

const schemaTravelSignals = `
CREATE TABLE IF NOT EXISTS sig_impossible_travel (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    distance_miles REAL,
    time_gap_hours REAL,
    ground_speed_mph REAL,
    flag_impossible_travel INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sig_travel_ts ON sig_impossible_travel(timestamp);
`

const schemaVelocitySignals = `
CREATE TABLE IF NOT EXISTS sig_velocity_spike (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    txn_count_60s INTEGER NOT NULL,
    amount_sum_60s REAL NOT NULL,
    flag_velocity_spike INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sig_velocity_ts ON sig_velocity_spike(timestamp);
`

const schemaDriftSignals = `
CREATE TABLE IF NOT EXISTS sig_behavioral_drift (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    txn_count_30d INTEGER NOT NULL,
    rolling_avg REAL,
    rolling_std REAL,
    z_score REAL,
    flag_behavioral_drift INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sig_drift_ts ON sig_behavioral_drift(timestamp);
`

const schemaCheckpoints = `
CREATE TABLE IF NOT EXISTS detector_checkpoints (
    detector TEXT PRIMARY KEY,
    last_processed_timestamp TIMESTAMP NOT NULL,
    last_processed_id TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaGoldRiskScores = `
CREATE TABLE IF NOT EXISTS gold_risk_scores (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    merchant_name TEXT NOT NULL,
    merchant_category TEXT NOT NULL,
    city TEXT NOT NULL,
    country TEXT NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    is_fraud INTEGER NOT NULL,
    fraud_type TEXT,
    distance_miles REAL,
    ground_speed_mph REAL,
    txn_count_60s INTEGER,
    amount_sum_60s REAL,
    txn_count_30d INTEGER,
    z_score REAL,
    flag_impossible_travel INTEGER NOT NULL,
    flag_velocity_spike INTEGER NOT NULL,
    flag_behavioral_drift INTEGER NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_tier TEXT NOT NULL,
    detected_fraud INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gold_scores_tier ON gold_risk_scores(risk_tier);
CREATE INDEX IF NOT EXISTS idx_gold_scores_detected ON gold_risk_scores(detected_fraud);
`

const schemaGoldFraudAttribution = `
CREATE TABLE IF NOT EXISTS gold_fraud_attribution (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    city TEXT NOT NULL,
    country TEXT NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_tier TEXT NOT NULL,
    flag_impossible_travel INTEGER NOT NULL,
    flag_velocity_spike INTEGER NOT NULL,
    flag_behavioral_drift INTEGER NOT NULL,
    primary_fraud_attribution TEXT NOT NULL,
    detection_accuracy TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gold_attr_label ON gold_fraud_attribution(primary_fraud_attribution);
`

const schemaGoldUserRiskProfiles = `
CREATE TABLE IF NOT EXISTS gold_user_risk_profiles (
    user_id TEXT PRIMARY KEY,
    home_city TEXT NOT NULL,
    home_country TEXT NOT NULL,
    user_risk_tier TEXT NOT NULL,
    total_transactions INTEGER NOT NULL,
    total_spend REAL NOT NULL,
    impossible_travel_count INTEGER NOT NULL,
    velocity_spike_count INTEGER NOT NULL,
    behavioral_drift_count INTEGER NOT NULL,
    total_flags INTEGER NOT NULL,
    avg_risk_score REAL NOT NULL,
    max_risk_score INTEGER NOT NULL,
    fraud_rate_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gold_users_tier ON gold_user_risk_profiles(user_risk_tier);
`

const schemaGoldModelEvaluation = `
CREATE TABLE IF NOT EXISTS gold_model_evaluation (
    archetype TEXT PRIMARY KEY,
    total_transactions INTEGER NOT NULL,
    true_positives INTEGER NOT NULL,
    false_positives INTEGER NOT NULL,
    false_negatives INTEGER NOT NULL,
    true_negatives INTEGER NOT NULL,
    precision_score REAL NOT NULL,
    recall_score REAL NOT NULL,
    f1_score REAL NOT NULL,
    accuracy REAL NOT NULL,
    false_positive_rate REAL NOT NULL
);
`

const schemaGoldThresholdCalibration = `
CREATE TABLE IF NOT EXISTS gold_threshold_calibration (
    archetype TEXT NOT NULL,
    threshold_value REAL NOT NULL,
    threshold_unit TEXT NOT NULL,
    true_positives INTEGER NOT NULL,
    false_positives INTEGER NOT NULL,
    false_negatives INTEGER NOT NULL,
    precision_score REAL NOT NULL,
    recall_score REAL NOT NULL,
    f1_score REAL NOT NULL,
    PRIMARY KEY (archetype, threshold_value)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaUserProfiles,
		schemaTravelSignals,
		schemaVelocitySignals,
		schemaDriftSignals,
		schemaCheckpoints,
		schemaGoldRiskScores,
		schemaGoldFraudAttribution,
		schemaGoldUserRiskProfiles,
		schemaGoldModelEvaluation,
		schemaGoldThresholdCalibration,
	}
}
