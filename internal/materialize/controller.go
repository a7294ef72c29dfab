// Package materialize runs the three detectors over the staged snapshot
// with incremental semantics: windows are always computed over the full
// per-user history, but only rows past a detector's high-water mark are
// emitted and appended to its output table.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/riskmetric/internal/detector"
	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/window"
)

// ErrInconsistentState marks a detector output table whose checkpoint is
// missing or disagrees with the table contents. Incremental runs fail
// closed on this error; the operator must request a full refresh.
var ErrInconsistentState = errors.New("inconsistent incremental state, full refresh required")

// Controller orchestrates detector runs against the repository.
type Controller struct {
	repo domain.Repository
	cfg  domain.DetectorConfig
}

// NewController creates a materialization controller.
func NewController(repo domain.Repository, cfg domain.DetectorConfig) *Controller {
	return &Controller{repo: repo, cfg: cfg}
}

// RunResult summarizes one detector's materialization.
type RunResult struct {
	Detector    domain.Archetype `json:"detector"`
	FullBuild   bool             `json:"fullBuild"`
	RowsEmitted int              `json:"rowsEmitted"`
	TotalRows   int64            `json:"totalRows"`
}

// Run executes all three detectors concurrently over the same immutable
// snapshot of staged transactions. It returns only after every detector
// has committed (the join barrier for the scorer), or fails as a whole if
// any detector fails.
func (c *Controller) Run(ctx context.Context, fullRefresh bool) ([]RunResult, error) {
	snapshot, err := c.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("materializing detector signals",
		"transactions", snapshot.total,
		"users", len(snapshot.users),
		"full_refresh", fullRefresh,
	)

	results := make([]RunResult, 3)
	errs := make([]error, 3)
	var wg sync.WaitGroup

	run := func(idx int, fn func(context.Context, *snapshotData, bool) (RunResult, error)) {
		defer wg.Done()
		results[idx], errs[idx] = fn(ctx, snapshot, fullRefresh)
	}

	wg.Add(3)
	go run(0, c.runTravel)
	go run(1, c.runVelocity)
	go run(2, c.runDrift)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for _, res := range results {
		slog.Info("detector committed",
			"detector", res.Detector,
			"full_build", res.FullBuild,
			"rows_emitted", res.RowsEmitted,
			"total_rows", res.TotalRows,
		)
	}

	return results, nil
}

// snapshotData is the immutable per-run view of the staged transactions:
// partitioned by user, sorted within each partition, with a deterministic
// user iteration order.
type snapshotData struct {
	parts map[string][]*domain.Transaction
	users []string
	total int
}

func (c *Controller) loadSnapshot(ctx context.Context) (*snapshotData, error) {
	var txns []*domain.Transaction
	err := c.repo.StreamTransactions(ctx, func(tx *domain.Transaction) error {
		txns = append(txns, tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction snapshot: %w", err)
	}

	parts := window.Partition(txns)
	users := make([]string, 0, len(parts))
	for user := range parts {
		users = append(users, user)
	}
	sort.Strings(users)

	return &snapshotData{parts: parts, users: users, total: len(txns)}, nil
}

func (c *Controller) runTravel(ctx context.Context, snap *snapshotData, fullRefresh bool) (RunResult, error) {
	return runDetector(ctx, c, domain.ArchetypeImpossibleTravel, snap, fullRefresh,
		func(rows []*domain.Transaction) []domain.TravelSignal {
			return detector.Travel(rows, c.cfg.SpeedThresholdMPH)
		},
		func(s domain.TravelSignal) (time.Time, string) { return s.Timestamp, s.TransactionID },
		c.repo.AppendTravelSignals,
	)
}

func (c *Controller) runVelocity(ctx context.Context, snap *snapshotData, fullRefresh bool) (RunResult, error) {
	windowDur := time.Duration(c.cfg.VelocityWindowSecs) * time.Second
	return runDetector(ctx, c, domain.ArchetypeVelocitySpike, snap, fullRefresh,
		func(rows []*domain.Transaction) []domain.VelocitySignal {
			return detector.Velocity(rows, windowDur, c.cfg.VelocityCountThreshold)
		},
		func(s domain.VelocitySignal) (time.Time, string) { return s.Timestamp, s.TransactionID },
		c.repo.AppendVelocitySignals,
	)
}

func (c *Controller) runDrift(ctx context.Context, snap *snapshotData, fullRefresh bool) (RunResult, error) {
	windowDur := time.Duration(c.cfg.DriftWindowDays) * 24 * time.Hour
	return runDetector(ctx, c, domain.ArchetypeBehavioralDrift, snap, fullRefresh,
		func(rows []*domain.Transaction) []domain.DriftSignal {
			return detector.Drift(rows, windowDur, c.cfg.DriftMinSamples, c.cfg.ZScoreThreshold)
		},
		func(s domain.DriftSignal) (time.Time, string) { return s.Timestamp, s.TransactionID },
		c.repo.AppendDriftSignals,
	)
}

// runDetector is the shared materialization path: validate or reset the
// checkpoint, compute every partition's signals over full history with a
// bounded worker pool, then emit only rows past the high-water mark and
// commit them atomically with the new checkpoint.
func runDetector[T any](
	ctx context.Context,
	c *Controller,
	arch domain.Archetype,
	snap *snapshotData,
	fullRefresh bool,
	compute func([]*domain.Transaction) []T,
	meta func(T) (time.Time, string),
	commit func(context.Context, []T, domain.Checkpoint) error,
) (RunResult, error) {
	res := RunResult{Detector: arch}

	cp, err := c.prepare(ctx, arch, fullRefresh)
	if err != nil {
		return res, err
	}
	res.FullBuild = cp == nil

	// Compute all partitions over full history. Partitions are
	// independent; a semaphore bounds concurrency.
	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 8
	}

	computed := make([][]T, len(snap.users))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, user := range snap.users {
		wg.Add(1)
		go func(idx int, rows []*domain.Transaction) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			computed[idx] = compute(rows)
		}(i, snap.parts[user])
	}
	wg.Wait()

	// Emit rows strictly past the high-water mark, in deterministic
	// (user, timestamp, id) order.
	var emit []T
	var lastTS time.Time
	var lastID string
	if cp != nil {
		lastTS, lastID = cp.LastTimestamp, cp.LastID
	}

	for _, sigs := range computed {
		for _, sig := range sigs {
			ts, id := meta(sig)
			if cp != nil && !ts.After(cp.LastTimestamp) {
				continue
			}
			emit = append(emit, sig)
			if ts.After(lastTS) || (ts.Equal(lastTS) && id > lastID) {
				lastTS, lastID = ts, id
			}
		}
	}

	prevRows := int64(0)
	if cp != nil {
		prevRows = cp.RowCount
	}
	res.RowsEmitted = len(emit)
	res.TotalRows = prevRows + int64(len(emit))

	if len(emit) == 0 {
		// Nothing new; the existing checkpoint still holds.
		return res, nil
	}

	next := domain.Checkpoint{
		Detector:      arch,
		LastTimestamp: lastTS,
		LastID:        lastID,
		RowCount:      res.TotalRows,
	}

	if err := commit(ctx, emit, next); err != nil {
		return res, fmt.Errorf("failed to commit %s signals: %w", arch, err)
	}
	return res, nil
}

// prepare validates the detector's incremental state and returns the
// checkpoint to resume from (nil means full build). On full refresh the
// existing output is discarded first.
func (c *Controller) prepare(ctx context.Context, arch domain.Archetype, fullRefresh bool) (*domain.Checkpoint, error) {
	if fullRefresh {
		if err := c.repo.ResetDetector(ctx, arch); err != nil {
			return nil, fmt.Errorf("failed to reset %s: %w", arch, err)
		}
		return nil, nil
	}

	cp, err := c.repo.GetCheckpoint(ctx, arch)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInconsistentState, arch, err)
	}

	rows, err := c.repo.SignalRowCount(ctx, arch)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInconsistentState, arch, err)
	}

	if cp == nil {
		if rows > 0 {
			return nil, fmt.Errorf("%w: %s has %d rows but no checkpoint", ErrInconsistentState, arch, rows)
		}
		return nil, nil
	}

	if cp.RowCount != rows {
		return nil, fmt.Errorf("%w: %s checkpoint records %d rows, table has %d",
			ErrInconsistentState, arch, cp.RowCount, rows)
	}

	return cp, nil
}
