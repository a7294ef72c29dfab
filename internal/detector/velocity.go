package detector

import (
	"time"

	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/window"
)

// Velocity computes velocity-spike signals for one sorted user partition:
// the count and amount sum over the trailing window ending at each row's
// own timestamp. The window is keyed on elapsed time, not row count, and
// includes the row itself together with any timestamp peers.
func Velocity(rows []*domain.Transaction, windowDur time.Duration, countThreshold int64) []domain.VelocitySignal {
	out := make([]domain.VelocitySignal, len(rows))
	w := window.NewAmountWindow(rows, windowDur, 0)

	for i, tx := range rows {
		stats := w.Advance(i)
		out[i] = domain.VelocitySignal{
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			Timestamp:     tx.Timestamp,
			TxnCount:      stats.Count,
			AmountSum:     stats.Sum,
			Flag:          stats.Count >= countThreshold,
		}
	}
	return out
}
