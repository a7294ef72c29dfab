//go:build integration
// +build integration

// Package integration exercises the complete batch flow end to end:
//
//	CSV ingest → detector materialization → composite scoring →
//	Gold tables → evaluation/calibration → events and report API
//
// Run with: go test -tags=integration -v ./tests/integration/...
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/riskmetric/internal/api"
	"github.com/opensource-finance/riskmetric/internal/bus"
	"github.com/opensource-finance/riskmetric/internal/cache"
	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/pipeline"
	"github.com/opensource-finance/riskmetric/internal/repository"
	"github.com/opensource-finance/riskmetric/internal/rules"
)

type env struct {
	repo domain.Repository
	bus  *bus.ChannelBus
	pipe *pipeline.Pipeline
	cfg  *domain.Config
}

func newEnv(t *testing.T) *env {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "riskmetric-integration-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := bus.NewChannelBus(1000)
	t.Cleanup(func() { b.Close() })

	cfg := domain.DefaultConfig()
	cfg.TriageRules = []domain.TriageRuleConfig{
		{
			ID:          "critical-tier",
			Name:        "Critical tier",
			Description: "score in the critical band",
			Expression:  "risk_tier == 'CRITICAL'",
			Enabled:     true,
		},
		{
			ID:         "foreign-detection",
			Name:       "Detected abroad",
			Expression: "detected_fraud && country != home_country",
			Enabled:    true,
		},
	}

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	if err := engine.LoadRules(cfg.TriageRules); err != nil {
		t.Fatalf("failed to load triage rules: %v", err)
	}

	return &env{
		repo: repo,
		bus:  b,
		pipe: pipeline.New(repo, b, engine, cfg),
		cfg:  cfg,
	}
}

// seed stages a dataset with all three archetypes injected for one user
// alongside a clean baseline:
//
//   - a daily baseline of small purchases in New York
//   - an impossible-travel pair (London ten minutes after New York)
//   - a 12-transaction burst inside 40 seconds
//   - a single amount far outside the user's trailing distribution
func seed(t *testing.T, repo domain.Repository) (total int, fraudulent int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	var txns []*domain.Transaction
	add := func(id string, ts time.Time, amount float64, city, country string, lat, lon float64, fraudType string) {
		txns = append(txns, &domain.Transaction{
			ID:        id,
			UserID:    "user_1",
			Timestamp: ts,
			Amount:    amount,
			City:      city,
			Country:   country,
			Latitude:  lat,
			Longitude: lon,
			IsFraud:   fraudType != "",
			FraudType: fraudType,
		})
	}

	// Clean daily baseline.
	for i := 0; i < 20; i++ {
		add(fmt.Sprintf("base_%03d", i), base.Add(time.Duration(i)*24*time.Hour),
			40+float64(i%7), "New York", "USA", 40.7128, -74.0060, "")
	}

	// Impossible travel: London ten minutes after the last New York row.
	travelAt := base.Add(20 * 24 * time.Hour)
	add("travel_0", travelAt, 45, "New York", "USA", 40.7128, -74.0060, "")
	add("travel_1", travelAt.Add(10*time.Minute), 60, "London", "UK", 51.5074, -0.1278, "impossible_travel")

	// Velocity burst: 12 transactions in under a minute.
	burstAt := base.Add(21 * 24 * time.Hour)
	for i := 0; i < 12; i++ {
		add(fmt.Sprintf("burst_%03d", i), burstAt.Add(time.Duration(i*3)*time.Second),
			15, "New York", "USA", 40.7128, -74.0060, "velocity_spike")
	}

	// Behavioral drift: one massive outlier against the trailing baseline.
	add("drift_0", base.Add(22*24*time.Hour), 9500, "New York", "USA", 40.7128, -74.0060, "behavioral_drift")

	if err := repo.InsertTransactions(ctx, txns); err != nil {
		t.Fatalf("failed to stage transactions: %v", err)
	}

	profiles := []*domain.UserProfile{
		{UserID: "user_1", HomeCity: "New York", HomeCountry: "USA", HomeLat: 40.7128, HomeLon: -74.0060, AvgAmount: 43, StdAmount: 2},
	}
	if err := repo.InsertUserProfiles(ctx, profiles); err != nil {
		t.Fatalf("failed to stage profiles: %v", err)
	}

	for _, tx := range txns {
		if tx.IsFraud {
			fraudulent++
		}
	}
	return len(txns), fraudulent
}

func TestPipelineEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	total, fraudulent := seed(t, e.repo)

	completed := make(chan *domain.Message, 1)
	alerts := make(chan *domain.Message, 100)
	if _, err := e.bus.Subscribe(ctx, domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		completed <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := e.bus.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	summary, err := e.pipe.Run(ctx, false)
	if err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}

	t.Run("Summary", func(t *testing.T) {
		if summary.Transactions != int64(total) {
			t.Errorf("expected %d transactions, got %d", total, summary.Transactions)
		}
		if summary.ScoredRecords != total {
			t.Errorf("expected %d scored records, got %d", total, summary.ScoredRecords)
		}
		if summary.DetectedFraud == 0 {
			t.Error("expected at least one detection")
		}
		if len(summary.Detectors) != 3 {
			t.Errorf("expected 3 detector results, got %d", len(summary.Detectors))
		}
		for _, res := range summary.Detectors {
			if res.TotalRows != int64(total) {
				t.Errorf("%s: expected %d signal rows, got %d", res.Detector, total, res.TotalRows)
			}
		}
	})

	t.Run("ArchetypesDetected", func(t *testing.T) {
		scores, err := e.repo.ListRiskScores(ctx, 1000, 0)
		if err != nil {
			t.Fatalf("ListRiskScores failed: %v", err)
		}
		if len(scores) != total {
			t.Fatalf("expected %d gold rows, got %d", total, len(scores))
		}

		byID := make(map[string]*domain.RiskRecord)
		for _, rec := range scores {
			byID[rec.ID] = rec
		}

		if rec := byID["travel_1"]; !rec.FlagImpossibleTravel {
			t.Error("London hop not flagged as impossible travel")
		}
		if rec := byID["burst_011"]; !rec.FlagVelocitySpike {
			t.Error("burst tail not flagged as velocity spike")
		}
		if rec := byID["drift_0"]; !rec.FlagBehavioralDrift {
			t.Error("amount outlier not flagged as behavioral drift")
		}
		if rec := byID["base_005"]; rec.DetectedFraud {
			t.Error("clean baseline row detected as fraud")
		}
	})

	t.Run("AttributionAndAccuracy", func(t *testing.T) {
		attrib, err := e.repo.ListFraudAttribution(ctx, 1000, 0)
		if err != nil {
			t.Fatalf("ListFraudAttribution failed: %v", err)
		}
		if len(attrib) == 0 {
			t.Fatal("expected attribution rows")
		}
		for _, rec := range attrib {
			if !rec.DetectedFraud {
				t.Errorf("%s: attribution table must only hold detections", rec.ID)
			}
			if rec.DetectionAccuracy != domain.AccuracyTruePositive && rec.DetectionAccuracy != domain.AccuracyFalsePositive {
				t.Errorf("%s: unexpected accuracy %q", rec.ID, rec.DetectionAccuracy)
			}
		}
	})

	t.Run("UserRiskProfile", func(t *testing.T) {
		profiles, err := e.repo.ListUserRiskProfiles(ctx, 100, 0)
		if err != nil {
			t.Fatalf("ListUserRiskProfiles failed: %v", err)
		}
		if len(profiles) != 1 {
			t.Fatalf("expected 1 profile, got %d", len(profiles))
		}
		p := profiles[0]
		if p.UserID != "user_1" || p.HomeCity != "New York" {
			t.Errorf("unexpected profile: %+v", p)
		}
		if p.TotalTransactions != int64(total) {
			t.Errorf("expected %d transactions, got %d", total, p.TotalTransactions)
		}
		if p.TotalFlags == 0 || p.MaxRiskScore == 0 {
			t.Error("expected flags and a positive max score")
		}
	})

	t.Run("EvaluationRows", func(t *testing.T) {
		rows, err := e.repo.GetModelEvaluation(ctx)
		if err != nil {
			t.Fatalf("GetModelEvaluation failed: %v", err)
		}
		if len(rows) != 4 {
			t.Fatalf("expected 4 evaluation rows, got %d", len(rows))
		}
		var overall *domain.EvaluationRow
		for i := range rows {
			if rows[i].Archetype == domain.ArchetypeOverall {
				overall = &rows[i]
			}
			sum := rows[i].TruePositives + rows[i].FalsePositives + rows[i].FalseNegatives + rows[i].TrueNegatives
			if sum != int64(total) {
				t.Errorf("%s: confusion cells sum to %d, want %d", rows[i].Archetype, sum, total)
			}
		}
		if overall == nil {
			t.Fatal("missing OVERALL row")
		}
		if overall.TruePositives+overall.FalseNegatives != int64(fraudulent) {
			t.Errorf("overall truth count %d, want %d", overall.TruePositives+overall.FalseNegatives, fraudulent)
		}
	})

	t.Run("CalibrationSweep", func(t *testing.T) {
		points, err := e.repo.GetThresholdCalibration(ctx)
		if err != nil {
			t.Fatalf("GetThresholdCalibration failed: %v", err)
		}
		want := len(e.cfg.Calibration.SpeedThresholdsMPH) +
			len(e.cfg.Calibration.VelocityCountThresholds) +
			len(e.cfg.Calibration.ZScoreThresholds)
		if len(points) != want {
			t.Errorf("expected %d calibration points, got %d", want, len(points))
		}
	})

	t.Run("Events", func(t *testing.T) {
		select {
		case msg := <-completed:
			var got pipeline.RunSummary
			if err := json.Unmarshal(msg.Payload, &got); err != nil {
				t.Fatalf("bad summary payload: %v", err)
			}
			if got.RunID != summary.RunID {
				t.Errorf("completed event run id %s, want %s", got.RunID, summary.RunID)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("run-completed event not published")
		}

		if summary.Alerts == 0 {
			t.Fatal("expected triage alerts")
		}
		select {
		case msg := <-alerts:
			var alert pipeline.AlertEvent
			if err := json.Unmarshal(msg.Payload, &alert); err != nil {
				t.Fatalf("bad alert payload: %v", err)
			}
			if alert.RunID != summary.RunID || alert.TransactionID == "" {
				t.Errorf("unexpected alert: %+v", alert)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("alert event not published")
		}
	})

	t.Run("IncrementalRerunIsStable", func(t *testing.T) {
		again, err := e.pipe.Run(ctx, false)
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		for _, res := range again.Detectors {
			if res.RowsEmitted != 0 {
				t.Errorf("%s: rerun with no new data emitted %d rows", res.Detector, res.RowsEmitted)
			}
			if res.TotalRows != int64(total) {
				t.Errorf("%s: expected stable total %d, got %d", res.Detector, total, res.TotalRows)
			}
		}
		if again.ScoredRecords != total {
			t.Errorf("rerun scored %d records, want %d", again.ScoredRecords, total)
		}
	})

	t.Run("ReportAPI", func(t *testing.T) {
		c := cache.NewLRUCache(100)
		defer c.Close()
		srv := api.NewServer(domain.ServerConfig{}, e.repo, c, e.bus, time.Minute, "integration")

		req := httptest.NewRequest(http.MethodGet, "/reports/risk-scores?limit=5", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("bad response: %v", err)
		}
		if body["count"] != float64(5) {
			t.Errorf("expected 5 records, got %v", body["count"])
		}
	})
}

func TestPipelinePublishesFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seed(t, e.repo)

	// Corrupt incremental state so the run fails closed.
	bad := domain.Checkpoint{
		Detector:      domain.ArchetypeVelocitySpike,
		LastTimestamp: time.Now().UTC(),
		LastID:        "phantom",
		RowCount:      12345,
	}
	if err := e.repo.AppendVelocitySignals(ctx, []domain.VelocitySignal{
		{TransactionID: "phantom", UserID: "user_1", Timestamp: time.Now().UTC()},
	}, bad); err != nil {
		t.Fatalf("failed to corrupt state: %v", err)
	}

	failed := make(chan *domain.Message, 1)
	if _, err := e.bus.Subscribe(ctx, domain.TopicRunFailed, func(ctx context.Context, msg *domain.Message) error {
		failed <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := e.pipe.Run(ctx, false); err == nil {
		t.Fatal("expected run to fail on inconsistent state")
	}

	select {
	case msg := <-failed:
		var failure pipeline.RunFailure
		if err := json.Unmarshal(msg.Payload, &failure); err != nil {
			t.Fatalf("bad failure payload: %v", err)
		}
		if failure.RunID == "" || failure.Error == "" {
			t.Errorf("incomplete failure event: %+v", failure)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run-failed event not published")
	}

	// A full refresh repairs the corrupted detector.
	if _, err := e.pipe.Run(ctx, true); err != nil {
		t.Fatalf("full refresh failed: %v", err)
	}
}
