// Package worker processes run requests from the event bus, so the
// report API (or any other publisher) can trigger batch runs without
// holding the HTTP connection open.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/pipeline"
)

// Worker subscribes to run-requested events and executes pipeline runs.
// Runs are serialized: the pipeline rebuilds shared Gold tables, so two
// concurrent runs would race on the replace writes.
type Worker struct {
	bus  domain.EventBus
	pipe *pipeline.Pipeline

	runMu         sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// RunRequest is the payload published to request a batch run.
type RunRequest struct {
	FullRefresh bool `json:"fullRefresh"`
}

// NewWorker creates a new run worker.
func NewWorker(bus domain.EventBus, pipe *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		pipe:   pipe,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the run-requested topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRunRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("run worker started", "topic", domain.TopicRunRequested)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req RunRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse run request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()

	summary, err := w.pipe.Run(ctx, req.FullRefresh)
	if err != nil {
		slog.Error("requested run failed",
			"message_id", msg.ID,
			"full_refresh", req.FullRefresh,
			"error", err,
		)
		return err
	}

	slog.Info("requested run completed",
		"message_id", msg.ID,
		"run_id", summary.RunID,
		"scored_records", summary.ScoredRecords,
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	// Wait for an in-flight run to finish.
	w.runMu.Lock()
	defer w.runMu.Unlock()

	slog.Info("run worker stopped")
	return nil
}
