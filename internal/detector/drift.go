package detector

import (
	"math"
	"time"

	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/window"
)

// driftLag keeps the current transaction (and its timestamp peers) out of
// its own baseline: the window ends one second before the row's timestamp.
const driftLag = time.Second

// Drift computes behavioral-drift signals for one sorted user partition:
// rolling mean and population standard deviation of amounts over the
// trailing baseline window of strictly prior history.
//
// The z-score is nil unless the rolling std is positive and the window
// holds at least minSamples rows; insufficient history is an expected
// condition, not an error.
func Drift(rows []*domain.Transaction, windowDur time.Duration, minSamples int64, zThreshold float64) []domain.DriftSignal {
	out := make([]domain.DriftSignal, len(rows))
	w := window.NewAmountWindow(rows, windowDur, driftLag)

	for i, tx := range rows {
		stats := w.Advance(i)
		sig := domain.DriftSignal{
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			Timestamp:     tx.Timestamp,
			TxnCount:      stats.Count,
		}

		if stats.Count > 0 {
			mean := stats.Mean
			std := stats.Std
			sig.RollingAvg = &mean
			sig.RollingStd = &std

			if std > 0 && stats.Count >= minSamples {
				z := (tx.Amount - mean) / std
				sig.ZScore = &z
				sig.Flag = math.Abs(z) > zThreshold
			}
		}

		out[i] = sig
	}
	return out
}
