// Package window provides the partition-sort-scan primitives the signal
// engine is built on: per-user partitioning with a deterministic ordering,
// and trailing time-range windows computed with a two-pointer scan.
package window

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

// Partition groups transactions by user and sorts each partition by
// (timestamp, transaction_id) ascending. The transaction-id tie-break
// makes window membership deterministic when timestamps collide.
func Partition(txns []*domain.Transaction) map[string][]*domain.Transaction {
	parts := make(map[string][]*domain.Transaction)
	for _, tx := range txns {
		parts[tx.UserID] = append(parts[tx.UserID], tx)
	}
	for _, rows := range parts {
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].Before(rows[j])
		})
	}
	return parts
}

// Stats are the aggregates of an amount window.
type Stats struct {
	Count int64
	Sum   float64
	Mean  float64

	// Std is the population standard deviation. Zero when Count == 0.
	Std float64
}

// aggregator maintains running sum and sum of squares so window stats are
// O(1) per row as the two pointers advance.
type aggregator struct {
	count int64
	sum   float64
	sumSq float64
}

func (a *aggregator) add(v float64) {
	a.count++
	a.sum += v
	a.sumSq += v * v
}

func (a *aggregator) remove(v float64) {
	a.count--
	a.sum -= v
	a.sumSq -= v * v
}

func (a *aggregator) stats() Stats {
	s := Stats{Count: a.count, Sum: a.sum}
	if a.count == 0 {
		return s
	}
	n := float64(a.count)
	s.Mean = a.sum / n
	// Guard the variance against negative drift from float cancellation.
	variance := a.sumSq/n - s.Mean*s.Mean
	if variance > 0 {
		s.Std = math.Sqrt(variance)
	}
	return s
}

// AmountWindow scans a sorted partition and reports, for each row in
// order, the amount aggregates over the trailing range
// [t - duration, t - lag] where t is the row's timestamp. Both bounds are
// inclusive. With lag 0 the row itself and all its timestamp peers are in
// range; with a positive lag the window holds strictly prior history only.
type AmountWindow struct {
	rows     []*domain.Transaction
	duration time.Duration
	lag      time.Duration

	lo, hi int // current range is rows[lo:hi]
	agg    aggregator
	last   int
}

// NewAmountWindow creates a scanner over an already-sorted partition.
func NewAmountWindow(rows []*domain.Transaction, duration, lag time.Duration) *AmountWindow {
	return &AmountWindow{
		rows:     rows,
		duration: duration,
		lag:      lag,
		last:     -1,
	}
}

// Advance moves the window to row i and returns its aggregates.
// Rows must be visited in ascending index order.
func (w *AmountWindow) Advance(i int) Stats {
	if i <= w.last {
		panic("window: Advance called out of order")
	}
	w.last = i

	t := w.rows[i].Timestamp
	upper := t.Add(-w.lag)
	lower := t.Add(-w.duration)

	// Grow the right edge: include every row at or before the upper bound.
	for w.hi < len(w.rows) && !w.rows[w.hi].Timestamp.After(upper) {
		w.agg.add(w.rows[w.hi].Amount)
		w.hi++
	}

	// Shrink the left edge: drop rows strictly before the lower bound.
	for w.lo < w.hi && w.rows[w.lo].Timestamp.Before(lower) {
		w.agg.remove(w.rows[w.lo].Amount)
		w.lo++
	}

	return w.agg.stats()
}
