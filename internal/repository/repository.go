// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// insertBatchSize bounds the number of rows per insert transaction so a
// 1M-row run does not hold one giant statement.
const insertBatchSize = 5000

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// InsertTransactions stages a batch of raw transactions.
func (r *SQLRepository) InsertTransactions(ctx context.Context, txns []*domain.Transaction) error {
	query := `
		INSERT INTO raw_transactions (
			transaction_id, user_id, timestamp, amount,
			merchant_name, merchant_category, city, country,
			latitude, longitude, is_fraud, fraud_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for start := 0; start < len(txns); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(txns) {
			end = len(txns)
		}

		err := r.withTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, r.rebind(query))
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, t := range txns[start:end] {
				if _, err := stmt.ExecContext(ctx,
					t.ID, t.UserID, t.Timestamp.UTC(), t.Amount,
					t.MerchantName, t.MerchantCategory, t.City, t.Country,
					t.Latitude, t.Longitude, boolToInt(t.IsFraud), nullString(t.FraudType),
				); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}
	}
	return nil
}

// InsertUserProfiles stages the user profile reference table.
func (r *SQLRepository) InsertUserProfiles(ctx context.Context, profiles []*domain.UserProfile) error {
	query := `
		INSERT INTO user_profiles (
			user_id, home_city, home_country, home_lat, home_lon,
			avg_amount, std_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range profiles {
			if _, err := stmt.ExecContext(ctx,
				p.UserID, p.HomeCity, p.HomeCountry, p.HomeLat, p.HomeLon,
				p.AvgAmount, p.StdAmount,
			); err != nil {
				return fmt.Errorf("failed to insert user profile: %w", err)
			}
		}
		return nil
	})
}

// CountTransactions returns the number of staged transactions.
func (r *SQLRepository) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// StreamTransactions yields staged transactions ordered by
// (user_id, timestamp, transaction_id).
func (r *SQLRepository) StreamTransactions(ctx context.Context, fn func(*domain.Transaction) error) error {
	query := `
		SELECT transaction_id, user_id, timestamp, amount,
			   merchant_name, merchant_category, city, country,
			   latitude, longitude, is_fraud, fraud_type
		FROM raw_transactions
		ORDER BY user_id, timestamp, transaction_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to stream transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Transaction
		var isFraud int64
		var fraudType sql.NullString

		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Timestamp, &t.Amount,
			&t.MerchantName, &t.MerchantCategory, &t.City, &t.Country,
			&t.Latitude, &t.Longitude, &isFraud, &fraudType,
		); err != nil {
			return fmt.Errorf("failed to scan transaction: %w", err)
		}

		t.Timestamp = t.Timestamp.UTC()
		t.IsFraud = isFraud != 0
		t.FraudType = fraudType.String

		if err := fn(&t); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetUserProfiles loads the full user profile reference table.
func (r *SQLRepository) GetUserProfiles(ctx context.Context) (map[string]*domain.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, home_city, home_country, home_lat, home_lon,
			   avg_amount, std_amount
		FROM user_profiles
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]*domain.UserProfile)
	for rows.Next() {
		var p domain.UserProfile
		if err := rows.Scan(
			&p.UserID, &p.HomeCity, &p.HomeCountry, &p.HomeLat, &p.HomeLon,
			&p.AvgAmount, &p.StdAmount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		profiles[p.UserID] = &p
	}
	return profiles, rows.Err()
}

// AppendTravelSignals appends impossible-travel rows and commits the new
// checkpoint in the same transaction.
func (r *SQLRepository) AppendTravelSignals(ctx context.Context, sigs []domain.TravelSignal, cp domain.Checkpoint) error {
	query := `
		INSERT INTO sig_impossible_travel (
			transaction_id, user_id, timestamp,
			distance_miles, time_gap_hours, ground_speed_mph,
			flag_impossible_travel
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range sigs {
			if _, err := stmt.ExecContext(ctx,
				s.TransactionID, s.UserID, s.Timestamp.UTC(),
				nullFloat(s.DistanceMiles), nullFloat(s.TimeGapHours), nullFloat(s.GroundSpeedMPH),
				boolToInt(s.Flag),
			); err != nil {
				return fmt.Errorf("failed to insert travel signal: %w", err)
			}
		}
		return r.saveCheckpoint(ctx, tx, cp)
	})
}

// AppendVelocitySignals appends velocity-spike rows and commits the new
// checkpoint in the same transaction.
func (r *SQLRepository) AppendVelocitySignals(ctx context.Context, sigs []domain.VelocitySignal, cp domain.Checkpoint) error {
	query := `
		INSERT INTO sig_velocity_spike (
			transaction_id, user_id, timestamp,
			txn_count_60s, amount_sum_60s, flag_velocity_spike
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range sigs {
			if _, err := stmt.ExecContext(ctx,
				s.TransactionID, s.UserID, s.Timestamp.UTC(),
				s.TxnCount, s.AmountSum, boolToInt(s.Flag),
			); err != nil {
				return fmt.Errorf("failed to insert velocity signal: %w", err)
			}
		}
		return r.saveCheckpoint(ctx, tx, cp)
	})
}

// AppendDriftSignals appends behavioral-drift rows and commits the new
// checkpoint in the same transaction.
func (r *SQLRepository) AppendDriftSignals(ctx context.Context, sigs []domain.DriftSignal, cp domain.Checkpoint) error {
	query := `
		INSERT INTO sig_behavioral_drift (
			transaction_id, user_id, timestamp,
			txn_count_30d, rolling_avg, rolling_std, z_score,
			flag_behavioral_drift
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range sigs {
			if _, err := stmt.ExecContext(ctx,
				s.TransactionID, s.UserID, s.Timestamp.UTC(),
				s.TxnCount, nullFloat(s.RollingAvg), nullFloat(s.RollingStd), nullFloat(s.ZScore),
				boolToInt(s.Flag),
			); err != nil {
				return fmt.Errorf("failed to insert drift signal: %w", err)
			}
		}
		return r.saveCheckpoint(ctx, tx, cp)
	})
}

// GetTravelSignals loads the impossible-travel table keyed by transaction ID.
func (r *SQLRepository) GetTravelSignals(ctx context.Context) (map[string]*domain.TravelSignal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, user_id, timestamp,
			   distance_miles, time_gap_hours, ground_speed_mph,
			   flag_impossible_travel
		FROM sig_impossible_travel
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query travel signals: %w", err)
	}
	defer rows.Close()

	sigs := make(map[string]*domain.TravelSignal)
	for rows.Next() {
		var s domain.TravelSignal
		var distance, gap, speed sql.NullFloat64
		var flag int64

		if err := rows.Scan(
			&s.TransactionID, &s.UserID, &s.Timestamp,
			&distance, &gap, &speed, &flag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan travel signal: %w", err)
		}

		s.Timestamp = s.Timestamp.UTC()
		s.DistanceMiles = floatPtr(distance)
		s.TimeGapHours = floatPtr(gap)
		s.GroundSpeedMPH = floatPtr(speed)
		s.Flag = flag != 0
		sigs[s.TransactionID] = &s
	}
	return sigs, rows.Err()
}

// GetVelocitySignals loads the velocity-spike table keyed by transaction ID.
func (r *SQLRepository) GetVelocitySignals(ctx context.Context) (map[string]*domain.VelocitySignal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, user_id, timestamp,
			   txn_count_60s, amount_sum_60s, flag_velocity_spike
		FROM sig_velocity_spike
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query velocity signals: %w", err)
	}
	defer rows.Close()

	sigs := make(map[string]*domain.VelocitySignal)
	for rows.Next() {
		var s domain.VelocitySignal
		var flag int64

		if err := rows.Scan(
			&s.TransactionID, &s.UserID, &s.Timestamp,
			&s.TxnCount, &s.AmountSum, &flag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan velocity signal: %w", err)
		}

		s.Timestamp = s.Timestamp.UTC()
		s.Flag = flag != 0
		sigs[s.TransactionID] = &s
	}
	return sigs, rows.Err()
}

// GetDriftSignals loads the behavioral-drift table keyed by transaction ID.
func (r *SQLRepository) GetDriftSignals(ctx context.Context) (map[string]*domain.DriftSignal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, user_id, timestamp,
			   txn_count_30d, rolling_avg, rolling_std, z_score,
			   flag_behavioral_drift
		FROM sig_behavioral_drift
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query drift signals: %w", err)
	}
	defer rows.Close()

	sigs := make(map[string]*domain.DriftSignal)
	for rows.Next() {
		var s domain.DriftSignal
		var avg, std, z sql.NullFloat64
		var flag int64

		if err := rows.Scan(
			&s.TransactionID, &s.UserID, &s.Timestamp,
			&s.TxnCount, &avg, &std, &z, &flag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan drift signal: %w", err)
		}

		s.Timestamp = s.Timestamp.UTC()
		s.RollingAvg = floatPtr(avg)
		s.RollingStd = floatPtr(std)
		s.ZScore = floatPtr(z)
		s.Flag = flag != 0
		sigs[s.TransactionID] = &s
	}
	return sigs, rows.Err()
}

// GetCheckpoint returns a detector's checkpoint, or nil when the detector
// has never committed a run.
func (r *SQLRepository) GetCheckpoint(ctx context.Context, detector domain.Archetype) (*domain.Checkpoint, error) {
	query := `
		SELECT detector, last_processed_timestamp, last_processed_id, row_count, updated_at
		FROM detector_checkpoints
		WHERE detector = ?
	`

	var cp domain.Checkpoint
	err := r.db.QueryRowContext(ctx, r.rebind(query), string(detector)).Scan(
		&cp.Detector, &cp.LastTimestamp, &cp.LastID, &cp.RowCount, &cp.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp.LastTimestamp = cp.LastTimestamp.UTC()
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return &cp, nil
}

// SignalRowCount returns the number of rows in a detector's output table.
func (r *SQLRepository) SignalRowCount(ctx context.Context, detector domain.Archetype) (int64, error) {
	table, err := signalTable(detector)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count signal rows: %w", err)
	}
	return count, nil
}

// ResetDetector discards a detector's output table and checkpoint.
func (r *SQLRepository) ResetDetector(ctx context.Context, detector domain.Archetype) error {
	table, err := signalTable(detector)
	if err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to reset signal table: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM detector_checkpoints WHERE detector = ?`),
			string(detector),
		); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
		return nil
	})
}

// ReplaceRiskScores rewrites the gold_risk_scores table.
func (r *SQLRepository) ReplaceRiskScores(ctx context.Context, records []*domain.RiskRecord) error {
	if err := r.truncate(ctx, "gold_risk_scores"); err != nil {
		return err
	}

	query := `
		INSERT INTO gold_risk_scores (
			transaction_id, user_id, timestamp, amount,
			merchant_name, merchant_category, city, country,
			latitude, longitude, is_fraud, fraud_type,
			distance_miles, ground_speed_mph,
			txn_count_60s, amount_sum_60s, txn_count_30d, z_score,
			flag_impossible_travel, flag_velocity_spike, flag_behavioral_drift,
			risk_score, risk_tier, detected_fraud
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}

		err := r.withTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, r.rebind(query))
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, rec := range records[start:end] {
				if _, err := stmt.ExecContext(ctx,
					rec.ID, rec.UserID, rec.Timestamp.UTC(), rec.Amount,
					rec.MerchantName, rec.MerchantCategory, rec.City, rec.Country,
					rec.Latitude, rec.Longitude, boolToInt(rec.IsFraud), nullString(rec.FraudType),
					nullFloat(rec.DistanceMiles), nullFloat(rec.GroundSpeedMPH),
					nullInt(rec.TxnCount60s), nullFloat(rec.AmountSum60s),
					nullInt(rec.TxnCount30d), nullFloat(rec.ZScore),
					boolToInt(rec.FlagImpossibleTravel), boolToInt(rec.FlagVelocitySpike), boolToInt(rec.FlagBehavioralDrift),
					rec.RiskScore, string(rec.RiskTier), boolToInt(rec.DetectedFraud),
				); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to insert risk scores: %w", err)
		}
	}
	return nil
}

// ReplaceFraudAttribution rewrites the gold_fraud_attribution table.
func (r *SQLRepository) ReplaceFraudAttribution(ctx context.Context, records []*domain.AttributionRecord) error {
	if err := r.truncate(ctx, "gold_fraud_attribution"); err != nil {
		return err
	}

	query := `
		INSERT INTO gold_fraud_attribution (
			transaction_id, user_id, timestamp, amount, city, country,
			risk_score, risk_tier,
			flag_impossible_travel, flag_velocity_spike, flag_behavioral_drift,
			primary_fraud_attribution, detection_accuracy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx,
				rec.ID, rec.UserID, rec.Timestamp.UTC(), rec.Amount, rec.City, rec.Country,
				rec.RiskScore, string(rec.RiskTier),
				boolToInt(rec.FlagImpossibleTravel), boolToInt(rec.FlagVelocitySpike), boolToInt(rec.FlagBehavioralDrift),
				rec.PrimaryFraudAttribution, rec.DetectionAccuracy,
			); err != nil {
				return fmt.Errorf("failed to insert attribution record: %w", err)
			}
		}
		return nil
	})
}

// ReplaceUserRiskProfiles rewrites the gold_user_risk_profiles table.
func (r *SQLRepository) ReplaceUserRiskProfiles(ctx context.Context, profiles []*domain.UserRiskProfile) error {
	if err := r.truncate(ctx, "gold_user_risk_profiles"); err != nil {
		return err
	}

	query := `
		INSERT INTO gold_user_risk_profiles (
			user_id, home_city, home_country, user_risk_tier,
			total_transactions, total_spend,
			impossible_travel_count, velocity_spike_count, behavioral_drift_count,
			total_flags, avg_risk_score, max_risk_score, fraud_rate_pct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range profiles {
			if _, err := stmt.ExecContext(ctx,
				p.UserID, p.HomeCity, p.HomeCountry, string(p.UserRiskTier),
				p.TotalTransactions, p.TotalSpend,
				p.ImpossibleTravelCount, p.VelocitySpikeCount, p.BehavioralDriftCount,
				p.TotalFlags, p.AvgRiskScore, p.MaxRiskScore, p.FraudRatePct,
			); err != nil {
				return fmt.Errorf("failed to insert user risk profile: %w", err)
			}
		}
		return nil
	})
}

// ReplaceModelEvaluation rewrites the gold_model_evaluation table.
func (r *SQLRepository) ReplaceModelEvaluation(ctx context.Context, evalRows []domain.EvaluationRow) error {
	if err := r.truncate(ctx, "gold_model_evaluation"); err != nil {
		return err
	}

	query := `
		INSERT INTO gold_model_evaluation (
			archetype, total_transactions,
			true_positives, false_positives, false_negatives, true_negatives,
			precision_score, recall_score, f1_score, accuracy, false_positive_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range evalRows {
			if _, err := stmt.ExecContext(ctx,
				string(e.Archetype), e.TotalTransactions,
				e.TruePositives, e.FalsePositives, e.FalseNegatives, e.TrueNegatives,
				e.Precision, e.Recall, e.F1, e.Accuracy, e.FalsePositiveRate,
			); err != nil {
				return fmt.Errorf("failed to insert evaluation row: %w", err)
			}
		}
		return nil
	})
}

// ReplaceThresholdCalibration rewrites the gold_threshold_calibration table.
func (r *SQLRepository) ReplaceThresholdCalibration(ctx context.Context, points []domain.CalibrationPoint) error {
	if err := r.truncate(ctx, "gold_threshold_calibration"); err != nil {
		return err
	}

	query := `
		INSERT INTO gold_threshold_calibration (
			archetype, threshold_value, threshold_unit,
			true_positives, false_positives, false_negatives,
			precision_score, recall_score, f1_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx,
				string(p.Archetype), p.ThresholdValue, p.ThresholdUnit,
				p.TruePositives, p.FalsePositives, p.FalseNegatives,
				p.Precision, p.Recall, p.F1,
			); err != nil {
				return fmt.Errorf("failed to insert calibration point: %w", err)
			}
		}
		return nil
	})
}

// ListRiskScores pages through gold_risk_scores ordered by score descending.
func (r *SQLRepository) ListRiskScores(ctx context.Context, limit, offset int) ([]*domain.RiskRecord, error) {
	query := `
		SELECT transaction_id, user_id, timestamp, amount,
			   merchant_name, merchant_category, city, country,
			   latitude, longitude, is_fraud, fraud_type,
			   distance_miles, ground_speed_mph,
			   txn_count_60s, amount_sum_60s, txn_count_30d, z_score,
			   flag_impossible_travel, flag_velocity_spike, flag_behavioral_drift,
			   risk_score, risk_tier, detected_fraud
		FROM gold_risk_scores
		ORDER BY risk_score DESC, transaction_id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk scores: %w", err)
	}
	defer rows.Close()

	var records []*domain.RiskRecord
	for rows.Next() {
		var rec domain.RiskRecord
		var isFraud, flagIT, flagVS, flagBD, detected int64
		var fraudType sql.NullString
		var distance, speed, amountSum, z sql.NullFloat64
		var count60, count30 sql.NullInt64
		var tier string

		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Timestamp, &rec.Amount,
			&rec.MerchantName, &rec.MerchantCategory, &rec.City, &rec.Country,
			&rec.Latitude, &rec.Longitude, &isFraud, &fraudType,
			&distance, &speed,
			&count60, &amountSum, &count30, &z,
			&flagIT, &flagVS, &flagBD,
			&rec.RiskScore, &tier, &detected,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk record: %w", err)
		}

		rec.Timestamp = rec.Timestamp.UTC()
		rec.IsFraud = isFraud != 0
		rec.FraudType = fraudType.String
		rec.DistanceMiles = floatPtr(distance)
		rec.GroundSpeedMPH = floatPtr(speed)
		rec.TxnCount60s = intPtr(count60)
		rec.AmountSum60s = floatPtr(amountSum)
		rec.TxnCount30d = intPtr(count30)
		rec.ZScore = floatPtr(z)
		rec.FlagImpossibleTravel = flagIT != 0
		rec.FlagVelocitySpike = flagVS != 0
		rec.FlagBehavioralDrift = flagBD != 0
		rec.RiskTier = domain.Tier(tier)
		rec.DetectedFraud = detected != 0
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// ListFraudAttribution pages through gold_fraud_attribution ordered by
// score descending.
func (r *SQLRepository) ListFraudAttribution(ctx context.Context, limit, offset int) ([]*domain.AttributionRecord, error) {
	query := `
		SELECT transaction_id, user_id, timestamp, amount, city, country,
			   risk_score, risk_tier,
			   flag_impossible_travel, flag_velocity_spike, flag_behavioral_drift,
			   primary_fraud_attribution, detection_accuracy
		FROM gold_fraud_attribution
		ORDER BY risk_score DESC, transaction_id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query fraud attribution: %w", err)
	}
	defer rows.Close()

	var records []*domain.AttributionRecord
	for rows.Next() {
		var rec domain.AttributionRecord
		var flagIT, flagVS, flagBD int64
		var tier string

		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Timestamp, &rec.Amount, &rec.City, &rec.Country,
			&rec.RiskScore, &tier,
			&flagIT, &flagVS, &flagBD,
			&rec.PrimaryFraudAttribution, &rec.DetectionAccuracy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attribution record: %w", err)
		}

		rec.Timestamp = rec.Timestamp.UTC()
		rec.RiskTier = domain.Tier(tier)
		rec.FlagImpossibleTravel = flagIT != 0
		rec.FlagVelocitySpike = flagVS != 0
		rec.FlagBehavioralDrift = flagBD != 0
		rec.DetectedFraud = true
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// ListUserRiskProfiles pages through gold_user_risk_profiles ordered by
// max risk score descending.
func (r *SQLRepository) ListUserRiskProfiles(ctx context.Context, limit, offset int) ([]*domain.UserRiskProfile, error) {
	query := `
		SELECT user_id, home_city, home_country, user_risk_tier,
			   total_transactions, total_spend,
			   impossible_travel_count, velocity_spike_count, behavioral_drift_count,
			   total_flags, avg_risk_score, max_risk_score, fraud_rate_pct
		FROM gold_user_risk_profiles
		ORDER BY max_risk_score DESC, total_flags DESC, user_id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query user risk profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.UserRiskProfile
	for rows.Next() {
		var p domain.UserRiskProfile
		var tier string

		if err := rows.Scan(
			&p.UserID, &p.HomeCity, &p.HomeCountry, &tier,
			&p.TotalTransactions, &p.TotalSpend,
			&p.ImpossibleTravelCount, &p.VelocitySpikeCount, &p.BehavioralDriftCount,
			&p.TotalFlags, &p.AvgRiskScore, &p.MaxRiskScore, &p.FraudRatePct,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user risk profile: %w", err)
		}

		p.UserRiskTier = domain.Tier(tier)
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// GetModelEvaluation returns all gold_model_evaluation rows ordered by archetype.
func (r *SQLRepository) GetModelEvaluation(ctx context.Context) ([]domain.EvaluationRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT archetype, total_transactions,
			   true_positives, false_positives, false_negatives, true_negatives,
			   precision_score, recall_score, f1_score, accuracy, false_positive_rate
		FROM gold_model_evaluation
		ORDER BY archetype
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query model evaluation: %w", err)
	}
	defer rows.Close()

	var out []domain.EvaluationRow
	for rows.Next() {
		var e domain.EvaluationRow
		var archetype string

		if err := rows.Scan(
			&archetype, &e.TotalTransactions,
			&e.TruePositives, &e.FalsePositives, &e.FalseNegatives, &e.TrueNegatives,
			&e.Precision, &e.Recall, &e.F1, &e.Accuracy, &e.FalsePositiveRate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation row: %w", err)
		}

		e.Archetype = domain.Archetype(archetype)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetThresholdCalibration returns all gold_threshold_calibration rows
// ordered by archetype then threshold value.
func (r *SQLRepository) GetThresholdCalibration(ctx context.Context) ([]domain.CalibrationPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT archetype, threshold_value, threshold_unit,
			   true_positives, false_positives, false_negatives,
			   precision_score, recall_score, f1_score
		FROM gold_threshold_calibration
		ORDER BY archetype, threshold_value
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threshold calibration: %w", err)
	}
	defer rows.Close()

	var out []domain.CalibrationPoint
	for rows.Next() {
		var p domain.CalibrationPoint
		var archetype string

		if err := rows.Scan(
			&archetype, &p.ThresholdValue, &p.ThresholdUnit,
			&p.TruePositives, &p.FalsePositives, &p.FalseNegatives,
			&p.Precision, &p.Recall, &p.F1,
		); err != nil {
			return nil, fmt.Errorf("failed to scan calibration point: %w", err)
		}

		p.Archetype = domain.Archetype(archetype)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// saveCheckpoint upserts a detector checkpoint inside an open transaction.
func (r *SQLRepository) saveCheckpoint(ctx context.Context, tx *sql.Tx, cp domain.Checkpoint) error {
	query := `
		INSERT INTO detector_checkpoints (
			detector, last_processed_timestamp, last_processed_id, row_count, updated_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (detector) DO UPDATE SET
			last_processed_timestamp = excluded.last_processed_timestamp,
			last_processed_id = excluded.last_processed_id,
			row_count = excluded.row_count,
			updated_at = excluded.updated_at
	`

	_, err := tx.ExecContext(ctx, r.rebind(query),
		string(cp.Detector), cp.LastTimestamp.UTC(), cp.LastID, cp.RowCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (r *SQLRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SQLRepository) truncate(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}
	return nil
}

func signalTable(detector domain.Archetype) (string, error) {
	switch detector {
	case domain.ArchetypeImpossibleTravel:
		return "sig_impossible_travel", nil
	case domain.ArchetypeVelocitySpike:
		return "sig_velocity_spike", nil
	case domain.ArchetypeBehavioralDrift:
		return "sig_behavioral_drift", nil
	default:
		return "", fmt.Errorf("%w: unknown detector %q", ErrInvalidInput, detector)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

// rebind converts ? placeholders to $n for the postgres driver.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
