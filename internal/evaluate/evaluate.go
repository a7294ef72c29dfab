// Package evaluate computes model evaluation against the injected
// ground-truth labels: confusion matrices with derived metrics, and the
// threshold calibration sweep that produces operating-point curves.
package evaluate

import (
	"math"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

// Counts is a confusion matrix. The four cells always sum to the number
// of records evaluated.
type Counts struct {
	TP int64
	FP int64
	FN int64
	TN int64
}

// Total returns the sum of all four cells.
func (c Counts) Total() int64 {
	return c.TP + c.FP + c.FN + c.TN
}

// confusion tallies records against a truth predicate and a prediction
// predicate.
func confusion(records []*domain.RiskRecord, truth, pred func(*domain.RiskRecord) bool) Counts {
	var c Counts
	for _, rec := range records {
		switch {
		case truth(rec) && pred(rec):
			c.TP++
		case !truth(rec) && pred(rec):
			c.FP++
		case truth(rec) && !pred(rec):
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

// Metric helpers guard every denominator: a zero denominator yields 0,
// since archetypes with no ground-truth positives are expected, not
// faults.

func precision(c Counts) float64 {
	return ratio(c.TP, c.TP+c.FP)
}

func recall(c Counts) float64 {
	return ratio(c.TP, c.TP+c.FN)
}

func f1(c Counts) float64 {
	p, r := precision(c), recall(c)
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// archetypeTruth returns the ground-truth predicate for an archetype.
// OVERALL uses the is_fraud label; each detector archetype matches the
// label's fraud_type string, so a transaction is a true positive for at
// most one archetype.
func archetypeTruth(a domain.Archetype) func(*domain.RiskRecord) bool {
	if a == domain.ArchetypeOverall {
		return func(rec *domain.RiskRecord) bool { return rec.IsFraud }
	}
	label := a.FraudLabel()
	return func(rec *domain.RiskRecord) bool { return rec.FraudType == label }
}

// Evaluate computes the model evaluation table: one row for OVERALL and
// one per archetype, using each record's live detector flags.
func Evaluate(records []*domain.RiskRecord) []domain.EvaluationRow {
	archetypes := append([]domain.Archetype{domain.ArchetypeOverall}, domain.Archetypes()...)

	rows := make([]domain.EvaluationRow, 0, len(archetypes))
	for _, a := range archetypes {
		arch := a
		c := confusion(records, archetypeTruth(arch), func(rec *domain.RiskRecord) bool {
			return rec.Flagged(arch)
		})

		rows = append(rows, domain.EvaluationRow{
			Archetype:         arch,
			TotalTransactions: c.Total(),
			TruePositives:     c.TP,
			FalsePositives:    c.FP,
			FalseNegatives:    c.FN,
			TrueNegatives:     c.TN,
			Precision:         precision(c),
			Recall:            recall(c),
			F1:                f1(c),
			Accuracy:          ratio(c.TP+c.TN, c.Total()),
			FalsePositiveRate: ratio(c.FP, c.FP+c.TN),
		})
	}
	return rows
}

// Calibrate sweeps each archetype's candidate thresholds, re-deriving the
// flag from the raw window evidence at every threshold. Comparisons match
// the live detectors: strict for speed and |z|, inclusive for count.
// Points are emitted per archetype in ascending threshold order.
func Calibrate(records []*domain.RiskRecord, cfg domain.CalibrationConfig) []domain.CalibrationPoint {
	var points []domain.CalibrationPoint

	for _, thr := range cfg.SpeedThresholdsMPH {
		threshold := thr
		points = append(points, calibrationPoint(records,
			domain.ArchetypeImpossibleTravel, threshold, domain.UnitMPH,
			func(rec *domain.RiskRecord) bool {
				return rec.GroundSpeedMPH != nil && *rec.GroundSpeedMPH > threshold
			},
		))
	}

	for _, thr := range cfg.VelocityCountThresholds {
		threshold := thr
		points = append(points, calibrationPoint(records,
			domain.ArchetypeVelocitySpike, float64(threshold), domain.UnitCount,
			func(rec *domain.RiskRecord) bool {
				return rec.TxnCount60s != nil && *rec.TxnCount60s >= threshold
			},
		))
	}

	for _, thr := range cfg.ZScoreThresholds {
		threshold := thr
		points = append(points, calibrationPoint(records,
			domain.ArchetypeBehavioralDrift, threshold, domain.UnitSigma,
			func(rec *domain.RiskRecord) bool {
				return rec.ZScore != nil && math.Abs(*rec.ZScore) > threshold
			},
		))
	}

	return points
}

func calibrationPoint(records []*domain.RiskRecord, arch domain.Archetype, value float64, unit string, pred func(*domain.RiskRecord) bool) domain.CalibrationPoint {
	c := confusion(records, archetypeTruth(arch), pred)
	return domain.CalibrationPoint{
		Archetype:      arch,
		ThresholdValue: value,
		ThresholdUnit:  unit,
		TruePositives:  c.TP,
		FalsePositives: c.FP,
		FalseNegatives: c.FN,
		Precision:      precision(c),
		Recall:         recall(c),
		F1:             f1(c),
	}
}
