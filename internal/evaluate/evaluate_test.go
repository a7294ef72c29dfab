package evaluate

import (
	"testing"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

// rec builds a scored record with one detector flag and a ground-truth
// label.
func rec(id string, flags [3]bool, isFraud bool, fraudType string) *domain.RiskRecord {
	r := &domain.RiskRecord{
		Transaction: domain.Transaction{
			ID:        id,
			UserID:    "u1",
			IsFraud:   isFraud,
			FraudType: fraudType,
		},
		FlagImpossibleTravel: flags[0],
		FlagVelocitySpike:    flags[1],
		FlagBehavioralDrift:  flags[2],
	}
	r.DetectedFraud = flags[0] || flags[1] || flags[2]
	return r
}

func TestEvaluate(t *testing.T) {
	records := []*domain.RiskRecord{
		rec("t1", [3]bool{true, false, false}, true, "impossible_travel"),  // travel TP
		rec("t2", [3]bool{true, false, false}, false, ""),                  // travel FP
		rec("t3", [3]bool{false, false, false}, true, "impossible_travel"), // travel FN
		rec("t4", [3]bool{false, true, false}, true, "velocity_spike"),     // velocity TP
		rec("t5", [3]bool{false, false, false}, false, ""),                 // all TN
	}

	rows := Evaluate(records)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows (OVERALL + 3 archetypes), got %d", len(rows))
	}
	if rows[0].Archetype != domain.ArchetypeOverall {
		t.Fatalf("expected OVERALL first, got %s", rows[0].Archetype)
	}

	byArch := make(map[domain.Archetype]domain.EvaluationRow)
	for _, row := range rows {
		byArch[row.Archetype] = row
	}

	t.Run("CellsSumToTotal", func(t *testing.T) {
		for arch, row := range byArch {
			sum := row.TruePositives + row.FalsePositives + row.FalseNegatives + row.TrueNegatives
			if sum != int64(len(records)) {
				t.Errorf("%s: cells sum to %d, want %d", arch, sum, len(records))
			}
			if row.TotalTransactions != int64(len(records)) {
				t.Errorf("%s: total %d, want %d", arch, row.TotalTransactions, len(records))
			}
		}
	})

	t.Run("TravelConfusion", func(t *testing.T) {
		travel := byArch[domain.ArchetypeImpossibleTravel]
		if travel.TruePositives != 1 || travel.FalsePositives != 1 || travel.FalseNegatives != 1 || travel.TrueNegatives != 2 {
			t.Errorf("unexpected travel cells: TP=%d FP=%d FN=%d TN=%d",
				travel.TruePositives, travel.FalsePositives, travel.FalseNegatives, travel.TrueNegatives)
		}
		if travel.Precision != 0.5 || travel.Recall != 0.5 || travel.F1 != 0.5 {
			t.Errorf("unexpected travel metrics: P=%f R=%f F1=%f", travel.Precision, travel.Recall, travel.F1)
		}
	})

	t.Run("ArchetypeTruthIsLabelScoped", func(t *testing.T) {
		// t4 is velocity fraud: for the travel archetype it counts as a
		// ground-truth negative.
		velocity := byArch[domain.ArchetypeVelocitySpike]
		if velocity.TruePositives != 1 || velocity.FalseNegatives != 0 {
			t.Errorf("unexpected velocity cells: TP=%d FN=%d", velocity.TruePositives, velocity.FalseNegatives)
		}
	})

	t.Run("OverallUsesIsFraud", func(t *testing.T) {
		overall := byArch[domain.ArchetypeOverall]
		// Truth: t1, t3, t4. Predicted: t1, t2, t4.
		if overall.TruePositives != 2 || overall.FalsePositives != 1 || overall.FalseNegatives != 1 || overall.TrueNegatives != 1 {
			t.Errorf("unexpected overall cells: TP=%d FP=%d FN=%d TN=%d",
				overall.TruePositives, overall.FalsePositives, overall.FalseNegatives, overall.TrueNegatives)
		}
	})

	t.Run("ZeroDenominatorsYieldZero", func(t *testing.T) {
		drift := byArch[domain.ArchetypeBehavioralDrift]
		// No drift flags and no drift labels: precision and recall have
		// zero denominators.
		if drift.Precision != 0 || drift.Recall != 0 || drift.F1 != 0 {
			t.Errorf("expected zero metrics, got P=%f R=%f F1=%f", drift.Precision, drift.Recall, drift.F1)
		}
		if drift.FalsePositiveRate != 0 {
			t.Errorf("expected zero FPR, got %f", drift.FalsePositiveRate)
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		rows := Evaluate(nil)
		if len(rows) != 4 {
			t.Fatalf("expected 4 rows for empty input, got %d", len(rows))
		}
		for _, row := range rows {
			if row.TotalTransactions != 0 || row.Precision != 0 || row.Accuracy != 0 {
				t.Errorf("%s: expected all-zero row", row.Archetype)
			}
		}
	})
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func TestCalibrate(t *testing.T) {
	cfg := domain.CalibrationConfig{
		SpeedThresholdsMPH:      []float64{200, 500, 800},
		VelocityCountThresholds: []int64{5, 10},
		ZScoreThresholds:        []float64{2.0, 3.0},
	}

	fast := rec("t1", [3]bool{true, false, false}, true, "impossible_travel")
	fast.GroundSpeedMPH = floatPtr(600)
	slow := rec("t2", [3]bool{false, false, false}, false, "")
	slow.GroundSpeedMPH = floatPtr(300)
	burst := rec("t3", [3]bool{false, true, false}, true, "velocity_spike")
	burst.TxnCount60s = intPtr(7)
	drifted := rec("t4", [3]bool{false, false, true}, true, "behavioral_drift")
	drifted.ZScore = floatPtr(2.5)
	noEvidence := rec("t5", [3]bool{false, false, false}, false, "")

	records := []*domain.RiskRecord{fast, slow, burst, drifted, noEvidence}
	points := Calibrate(records, cfg)

	if len(points) != 7 {
		t.Fatalf("expected 7 calibration points, got %d", len(points))
	}

	find := func(arch domain.Archetype, value float64) domain.CalibrationPoint {
		for _, p := range points {
			if p.Archetype == arch && p.ThresholdValue == value {
				return p
			}
		}
		t.Fatalf("missing point %s/%f", arch, value)
		return domain.CalibrationPoint{}
	}

	t.Run("SpeedSweepStrictComparison", func(t *testing.T) {
		// At 200: both evidence rows exceed it -> fast TP, slow FP.
		p200 := find(domain.ArchetypeImpossibleTravel, 200)
		if p200.TruePositives != 1 || p200.FalsePositives != 1 {
			t.Errorf("at 200: TP=%d FP=%d", p200.TruePositives, p200.FalsePositives)
		}
		// At 500: only fast (600) exceeds.
		p500 := find(domain.ArchetypeImpossibleTravel, 500)
		if p500.TruePositives != 1 || p500.FalsePositives != 0 {
			t.Errorf("at 500: TP=%d FP=%d", p500.TruePositives, p500.FalsePositives)
		}
		// At 800: nothing exceeds; the labelled fraud becomes a miss.
		p800 := find(domain.ArchetypeImpossibleTravel, 800)
		if p800.TruePositives != 0 || p800.FalseNegatives != 1 {
			t.Errorf("at 800: TP=%d FN=%d", p800.TruePositives, p800.FalseNegatives)
		}
		if p800.ThresholdUnit != domain.UnitMPH {
			t.Errorf("unexpected unit %q", p800.ThresholdUnit)
		}
	})

	t.Run("CountSweepInclusiveComparison", func(t *testing.T) {
		// Count comparison is >=: 7 meets threshold 5 but not 10.
		p5 := find(domain.ArchetypeVelocitySpike, 5)
		if p5.TruePositives != 1 {
			t.Errorf("at 5: TP=%d", p5.TruePositives)
		}
		p10 := find(domain.ArchetypeVelocitySpike, 10)
		if p10.TruePositives != 0 || p10.FalseNegatives != 1 {
			t.Errorf("at 10: TP=%d FN=%d", p10.TruePositives, p10.FalseNegatives)
		}
		if p5.ThresholdUnit != domain.UnitCount {
			t.Errorf("unexpected unit %q", p5.ThresholdUnit)
		}
	})

	t.Run("SigmaSweepUsesAbsoluteZ", func(t *testing.T) {
		p2 := find(domain.ArchetypeBehavioralDrift, 2.0)
		if p2.TruePositives != 1 {
			t.Errorf("at 2.0: TP=%d", p2.TruePositives)
		}
		// 2.5 does not exceed 3.0; nil z-scores never match.
		p3 := find(domain.ArchetypeBehavioralDrift, 3.0)
		if p3.TruePositives != 0 || p3.FalseNegatives != 1 {
			t.Errorf("at 3.0: TP=%d FN=%d", p3.TruePositives, p3.FalseNegatives)
		}
	})

	t.Run("LooserThresholdNeverLowersRecall", func(t *testing.T) {
		if find(domain.ArchetypeImpossibleTravel, 200).Recall < find(domain.ArchetypeImpossibleTravel, 500).Recall {
			t.Error("recall should not increase with a stricter threshold")
		}
	})
}
