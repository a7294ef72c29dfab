// Package pipeline orchestrates a full batch run: detector
// materialization, composite scoring, Gold table builds, model
// evaluation, and triage alerting over the event bus.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/evaluate"
	"github.com/opensource-finance/riskmetric/internal/materialize"
	"github.com/opensource-finance/riskmetric/internal/rules"
	"github.com/opensource-finance/riskmetric/internal/score"
)

// Pipeline runs the batch scoring flow end to end against a repository.
type Pipeline struct {
	repo   domain.Repository
	bus    domain.EventBus
	engine *rules.Engine
	ctrl   *materialize.Controller
	scorer *score.Scorer
	cfg    *domain.Config
}

// New creates a pipeline. The event bus and triage engine are optional;
// a nil bus suppresses run events and a nil engine skips triage.
func New(repo domain.Repository, bus domain.EventBus, engine *rules.Engine, cfg *domain.Config) *Pipeline {
	return &Pipeline{
		repo:   repo,
		bus:    bus,
		engine: engine,
		ctrl:   materialize.NewController(repo, cfg.Detectors),
		scorer: score.NewScorer(cfg.Scoring),
		cfg:    cfg,
	}
}

// RunSummary describes one completed batch run.
type RunSummary struct {
	RunID         string                  `json:"runId"`
	StartedAt     time.Time               `json:"startedAt"`
	DurationMs    int64                   `json:"durationMs"`
	FullRefresh   bool                    `json:"fullRefresh"`
	Transactions  int64                   `json:"transactions"`
	Detectors     []materialize.RunResult `json:"detectors"`
	ScoredRecords int                     `json:"scoredRecords"`
	DetectedFraud int                     `json:"detectedFraud"`
	Alerts        int                     `json:"alerts"`
}

// RunFailure is the payload published when a run fails.
type RunFailure struct {
	RunID string `json:"runId"`
	Error string `json:"error"`
}

// AlertEvent is the payload published per triage alert.
type AlertEvent struct {
	RunID         string               `json:"runId"`
	TransactionID string               `json:"transactionId"`
	UserID        string               `json:"userId"`
	Amount        float64              `json:"amount"`
	RiskScore     int                  `json:"riskScore"`
	RiskTier      domain.Tier          `json:"riskTier"`
	Matches       []domain.TriageMatch `json:"matches,omitempty"`
}

// Run executes one batch run. Every Gold table is rebuilt from the
// detector signal tables after materialization commits; failure at any
// step aborts the run and leaves the previous Gold outputs in place.
func (p *Pipeline) Run(ctx context.Context, fullRefresh bool) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:       uuid.New().String(),
		StartedAt:   time.Now().UTC(),
		FullRefresh: fullRefresh,
	}

	slog.Info("pipeline run starting",
		"run_id", summary.RunID,
		"full_refresh", fullRefresh,
	)

	if err := p.run(ctx, summary); err != nil {
		p.publishFailure(ctx, summary.RunID, err)
		return nil, err
	}

	summary.DurationMs = time.Since(summary.StartedAt).Milliseconds()
	p.publish(ctx, domain.TopicRunCompleted, summary)

	slog.Info("pipeline run completed",
		"run_id", summary.RunID,
		"transactions", summary.Transactions,
		"scored_records", summary.ScoredRecords,
		"detected_fraud", summary.DetectedFraud,
		"alerts", summary.Alerts,
		"duration_ms", summary.DurationMs,
	)

	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, summary *RunSummary) error {
	count, err := p.repo.CountTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to count staged transactions: %w", err)
	}
	summary.Transactions = count

	// Materialize all three detectors; returns after every detector has
	// committed, so the joins below never see a partial run.
	results, err := p.ctrl.Run(ctx, summary.FullRefresh)
	if err != nil {
		return err
	}
	summary.Detectors = results

	records, err := p.scoreRecords(ctx)
	if err != nil {
		return err
	}
	summary.ScoredRecords = len(records)

	profiles, err := p.repo.GetUserProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load user profiles: %w", err)
	}

	if err := p.buildGold(ctx, records, profiles); err != nil {
		return err
	}

	for _, rec := range records {
		if rec.DetectedFraud {
			summary.DetectedFraud++
		}
	}

	summary.Alerts = p.triage(ctx, summary.RunID, records, profiles)
	return nil
}

// scoreRecords joins each staged transaction with its detector signals
// in stream order, so Gold risk scores keep the repository's
// deterministic (user, timestamp, id) ordering.
func (p *Pipeline) scoreRecords(ctx context.Context) ([]*domain.RiskRecord, error) {
	travel, err := p.repo.GetTravelSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load travel signals: %w", err)
	}
	velocity, err := p.repo.GetVelocitySignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load velocity signals: %w", err)
	}
	drift, err := p.repo.GetDriftSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load drift signals: %w", err)
	}

	var records []*domain.RiskRecord
	err = p.repo.StreamTransactions(ctx, func(tx *domain.Transaction) error {
		records = append(records, p.scorer.Fuse(tx, travel[tx.ID], velocity[tx.ID], drift[tx.ID]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score transactions: %w", err)
	}
	return records, nil
}

func (p *Pipeline) buildGold(ctx context.Context, records []*domain.RiskRecord, profiles map[string]*domain.UserProfile) error {
	if err := p.repo.ReplaceRiskScores(ctx, records); err != nil {
		return fmt.Errorf("failed to write risk scores: %w", err)
	}

	if err := p.repo.ReplaceFraudAttribution(ctx, score.Attribute(records)); err != nil {
		return fmt.Errorf("failed to write fraud attribution: %w", err)
	}

	if err := p.repo.ReplaceUserRiskProfiles(ctx, p.scorer.UserProfiles(records, profiles)); err != nil {
		return fmt.Errorf("failed to write user risk profiles: %w", err)
	}

	if err := p.repo.ReplaceModelEvaluation(ctx, evaluate.Evaluate(records)); err != nil {
		return fmt.Errorf("failed to write model evaluation: %w", err)
	}

	if err := p.repo.ReplaceThresholdCalibration(ctx, evaluate.Calibrate(records, p.cfg.Calibration)); err != nil {
		return fmt.Errorf("failed to write threshold calibration: %w", err)
	}

	return nil
}

// triage runs the loaded rules over every scored record and publishes an
// alert event per matching record. CRITICAL records alert even when no
// rule matches. Triage is advisory: it never fails the run.
func (p *Pipeline) triage(ctx context.Context, runID string, records []*domain.RiskRecord, profiles map[string]*domain.UserProfile) int {
	alerts := 0
	for _, rec := range records {
		homeCountry := ""
		if home, ok := profiles[rec.UserID]; ok {
			homeCountry = home.HomeCountry
		}

		var matches []domain.TriageMatch
		if p.engine != nil {
			matches = p.engine.Evaluate(rec, homeCountry)
		}

		if len(matches) == 0 && rec.RiskTier != domain.TierCritical {
			continue
		}

		alerts++
		p.publish(ctx, domain.TopicAlert, &AlertEvent{
			RunID:         runID,
			TransactionID: rec.ID,
			UserID:        rec.UserID,
			Amount:        rec.Amount,
			RiskScore:     rec.RiskScore,
			RiskTier:      rec.RiskTier,
			Matches:       matches,
		})
	}
	return alerts
}

func (p *Pipeline) publish(ctx context.Context, topic string, payload any) {
	if p.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, topic, data); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}

func (p *Pipeline) publishFailure(ctx context.Context, runID string, runErr error) {
	p.publish(ctx, domain.TopicRunFailed, &RunFailure{
		RunID: runID,
		Error: runErr.Error(),
	})
}
