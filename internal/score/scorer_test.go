package score

import (
	"testing"
	"time"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

func testScorer() *Scorer {
	return NewScorer(domain.ScoringConfig{
		WeightImpossibleTravel: 40,
		WeightVelocitySpike:    35,
		WeightBehavioralDrift:  25,
		CriticalCutoff:         60,
		HighCutoff:             35,
		MediumCutoff:           25,
	})
}

func baseTxn(id string) *domain.Transaction {
	return &domain.Transaction{
		ID:        id,
		UserID:    "u1",
		Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Amount:    50,
		Country:   "USA",
	}
}

func flagRecord(it, vs, bd bool) *domain.RiskRecord {
	s := testScorer()
	return s.Fuse(baseTxn("t1"),
		&domain.TravelSignal{TransactionID: "t1", Flag: it},
		&domain.VelocitySignal{TransactionID: "t1", TxnCount: 1, Flag: vs},
		&domain.DriftSignal{TransactionID: "t1", Flag: bd},
	)
}

func TestFuse(t *testing.T) {
	s := testScorer()

	t.Run("NilSignalsMeanNotFlagged", func(t *testing.T) {
		rec := s.Fuse(baseTxn("t1"), nil, nil, nil)
		if rec.DetectedFraud {
			t.Error("no signals must mean no detection")
		}
		if rec.RiskScore != 0 || rec.RiskTier != domain.TierLow {
			t.Errorf("expected score 0 LOW, got %d %s", rec.RiskScore, rec.RiskTier)
		}
		if rec.TxnCount60s != nil || rec.ZScore != nil || rec.DistanceMiles != nil {
			t.Error("expected nil evidence for missing signals")
		}
	})

	t.Run("WeightsSum", func(t *testing.T) {
		cases := []struct {
			it, vs, bd bool
			score      int
			tier       domain.Tier
		}{
			{false, false, false, 0, domain.TierLow},
			{false, false, true, 25, domain.TierMedium},
			{false, true, false, 35, domain.TierHigh},
			{true, false, false, 40, domain.TierHigh},
			{false, true, true, 60, domain.TierCritical},
			{true, false, true, 65, domain.TierCritical},
			{true, true, false, 75, domain.TierCritical},
			{true, true, true, 100, domain.TierCritical},
		}

		for _, c := range cases {
			rec := flagRecord(c.it, c.vs, c.bd)
			if rec.RiskScore != c.score {
				t.Errorf("flags %v/%v/%v: expected score %d, got %d", c.it, c.vs, c.bd, c.score, rec.RiskScore)
			}
			if rec.RiskTier != c.tier {
				t.Errorf("flags %v/%v/%v: expected tier %s, got %s", c.it, c.vs, c.bd, c.tier, rec.RiskTier)
			}
			wantDetected := c.it || c.vs || c.bd
			if rec.DetectedFraud != wantDetected {
				t.Errorf("flags %v/%v/%v: expected detected %v", c.it, c.vs, c.bd, wantDetected)
			}
		}
	})

	t.Run("ScoreCappedAt100", func(t *testing.T) {
		heavy := NewScorer(domain.ScoringConfig{
			WeightImpossibleTravel: 60,
			WeightVelocitySpike:    60,
			WeightBehavioralDrift:  60,
			CriticalCutoff:         60,
			HighCutoff:             35,
			MediumCutoff:           25,
		})
		rec := heavy.Fuse(baseTxn("t1"),
			&domain.TravelSignal{Flag: true},
			&domain.VelocitySignal{Flag: true},
			&domain.DriftSignal{Flag: true},
		)
		if rec.RiskScore != 100 {
			t.Errorf("expected capped score 100, got %d", rec.RiskScore)
		}
	})

	t.Run("EvidenceCarriedOver", func(t *testing.T) {
		speed := 900.0
		z := 4.2
		rec := s.Fuse(baseTxn("t1"),
			&domain.TravelSignal{GroundSpeedMPH: &speed, Flag: true},
			&domain.VelocitySignal{TxnCount: 12, AmountSum: 240, Flag: true},
			&domain.DriftSignal{TxnCount: 30, ZScore: &z, Flag: true},
		)
		if rec.GroundSpeedMPH == nil || *rec.GroundSpeedMPH != 900 {
			t.Error("ground speed not carried over")
		}
		if rec.TxnCount60s == nil || *rec.TxnCount60s != 12 {
			t.Error("velocity count not carried over")
		}
		if rec.ZScore == nil || *rec.ZScore != 4.2 {
			t.Error("z-score not carried over")
		}
	})
}

func TestTierMonotonicity(t *testing.T) {
	s := testScorer()
	prev := domain.TierLow
	for score := 0; score <= 100; score++ {
		tier := s.TierFor(score)
		if tier.Rank() < prev.Rank() {
			t.Fatalf("tier decreased at score %d: %s after %s", score, tier, prev)
		}
		prev = tier
	}
}

func TestAttribution(t *testing.T) {
	cases := []struct {
		it, vs, bd bool
		want       string
	}{
		{true, true, true, AttributionTravelVelocity},
		{true, true, false, AttributionTravelVelocity},
		{true, false, true, AttributionTravelDrift},
		{false, true, true, AttributionVelocityDrift},
		{true, false, false, AttributionTravel},
		{false, true, false, AttributionVelocity},
		{false, false, true, AttributionDrift},
		{false, false, false, AttributionUnknown},
	}

	for _, c := range cases {
		rec := flagRecord(c.it, c.vs, c.bd)
		if got := Attribution(rec); got != c.want {
			t.Errorf("flags %v/%v/%v: expected %q, got %q", c.it, c.vs, c.bd, c.want, got)
		}
	}
}

func TestAttribute(t *testing.T) {
	detected := flagRecord(true, false, false)
	detected.IsFraud = true
	falseAlarm := flagRecord(false, true, false)
	clean := flagRecord(false, false, false)

	out := Attribute([]*domain.RiskRecord{detected, falseAlarm, clean})

	if len(out) != 2 {
		t.Fatalf("expected 2 attribution records, got %d", len(out))
	}
	if out[0].DetectionAccuracy != domain.AccuracyTruePositive {
		t.Errorf("expected TRUE_POSITIVE, got %s", out[0].DetectionAccuracy)
	}
	if out[1].DetectionAccuracy != domain.AccuracyFalsePositive {
		t.Errorf("expected FALSE_POSITIVE, got %s", out[1].DetectionAccuracy)
	}
	if out[0].PrimaryFraudAttribution != AttributionTravel {
		t.Errorf("unexpected attribution %q", out[0].PrimaryFraudAttribution)
	}
}

func TestUserProfiles(t *testing.T) {
	s := testScorer()

	recA1 := flagRecord(true, true, false) // score 75, CRITICAL
	recA1.UserID = "alice"
	recA1.Amount = 100
	recA2 := flagRecord(false, false, false)
	recA2.UserID = "alice"
	recA2.Amount = 50
	recB := flagRecord(false, false, true) // score 25, MEDIUM
	recB.UserID = "bob"
	recB.Amount = 10

	profiles := map[string]*domain.UserProfile{
		"alice": {UserID: "alice", HomeCity: "New York", HomeCountry: "USA"},
	}

	out := s.UserProfiles([]*domain.RiskRecord{recB, recA1, recA2}, profiles)

	if len(out) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(out))
	}
	// Ascending user-id order.
	if out[0].UserID != "alice" || out[1].UserID != "bob" {
		t.Fatalf("unexpected order: %s, %s", out[0].UserID, out[1].UserID)
	}

	alice := out[0]
	if alice.HomeCity != "New York" {
		t.Errorf("home city not joined: %q", alice.HomeCity)
	}
	if alice.TotalTransactions != 2 || alice.TotalSpend != 150 {
		t.Errorf("unexpected totals: %d txns, %f spend", alice.TotalTransactions, alice.TotalSpend)
	}
	if alice.ImpossibleTravelCount != 1 || alice.VelocitySpikeCount != 1 || alice.BehavioralDriftCount != 0 {
		t.Error("unexpected per-detector counts")
	}
	if alice.TotalFlags != 2 {
		t.Errorf("expected 2 total flags, got %d", alice.TotalFlags)
	}
	if alice.MaxRiskScore != 75 {
		t.Errorf("expected max score 75, got %d", alice.MaxRiskScore)
	}
	if alice.AvgRiskScore != 37.5 {
		t.Errorf("expected avg score 37.5, got %f", alice.AvgRiskScore)
	}
	if alice.FraudRatePct != 50 {
		t.Errorf("expected 50%% fraud rate, got %f", alice.FraudRatePct)
	}
	// User tier derives from the max score through the same cutoffs.
	if alice.UserRiskTier != domain.TierCritical {
		t.Errorf("expected CRITICAL user tier, got %s", alice.UserRiskTier)
	}

	bob := out[1]
	if bob.HomeCity != "" {
		t.Error("bob has no profile; home city should be empty")
	}
	if bob.UserRiskTier != domain.TierMedium {
		t.Errorf("expected MEDIUM user tier, got %s", bob.UserRiskTier)
	}
}
