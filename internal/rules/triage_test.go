package rules

import (
	"testing"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return eng
}

func scoredRecord() *domain.RiskRecord {
	return &domain.RiskRecord{
		Transaction: domain.Transaction{
			ID:      "txn_1",
			UserID:  "u1",
			Amount:  1200,
			Country: "UK",
		},
		FlagImpossibleTravel: true,
		RiskScore:            40,
		RiskTier:             domain.TierHigh,
		DetectedFraud:        true,
	}
}

func TestValidateRule(t *testing.T) {
	eng := newTestEngine(t)

	t.Run("ValidExpression", func(t *testing.T) {
		err := eng.ValidateRule(&domain.TriageRuleConfig{
			ID:         "high-score",
			Expression: "risk_score >= 60",
		})
		if err != nil {
			t.Errorf("expected valid rule, got %v", err)
		}
	})

	t.Run("SyntaxErrorRejected", func(t *testing.T) {
		err := eng.ValidateRule(&domain.TriageRuleConfig{
			ID:         "broken",
			Expression: "risk_score >=",
		})
		if err == nil {
			t.Error("expected compile error")
		}
	})

	t.Run("UnknownVariableRejected", func(t *testing.T) {
		err := eng.ValidateRule(&domain.TriageRuleConfig{
			ID:         "unknown-var",
			Expression: "merchant_score > 10",
		})
		if err == nil {
			t.Error("expected error for undeclared variable")
		}
	})

	t.Run("MissingIDRejected", func(t *testing.T) {
		err := eng.ValidateRule(&domain.TriageRuleConfig{Expression: "true"})
		if err == nil {
			t.Error("expected error for missing rule id")
		}
	})

	t.Run("ValidationDoesNotLoad", func(t *testing.T) {
		if eng.RuleCount() != 0 {
			t.Errorf("expected no loaded rules, got %d", eng.RuleCount())
		}
	})
}

func TestLoadRules(t *testing.T) {
	eng := newTestEngine(t)

	configs := []domain.TriageRuleConfig{
		{ID: "r1", Name: "critical", Expression: "risk_tier == 'CRITICAL'", Enabled: true},
		{ID: "r2", Name: "disabled", Expression: "true", Enabled: false},
		{ID: "r3", Name: "abroad", Expression: "country != home_country && detected_fraud", Enabled: true},
	}

	if err := eng.LoadRules(configs); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if eng.RuleCount() != 2 {
		t.Errorf("expected 2 loaded rules (disabled skipped), got %d", eng.RuleCount())
	}
}

func TestEvaluate(t *testing.T) {
	eng := newTestEngine(t)

	configs := []domain.TriageRuleConfig{
		{ID: "score", Name: "High score", Description: "score at or above 35", Expression: "risk_score >= 35", Enabled: true},
		{ID: "abroad", Name: "Foreign fraud", Expression: "detected_fraud && country != home_country", Enabled: true},
		{ID: "big-drift", Name: "Large drift", Expression: "flag_behavioral_drift && amount > 5000.0", Enabled: true},
	}
	if err := eng.LoadRules(configs); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	t.Run("MatchingRules", func(t *testing.T) {
		matches := eng.Evaluate(scoredRecord(), "USA")
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}

		byID := make(map[string]domain.TriageMatch)
		for _, m := range matches {
			byID[m.RuleID] = m
		}
		if _, ok := byID["score"]; !ok {
			t.Error("expected score rule to match")
		}
		if _, ok := byID["abroad"]; !ok {
			t.Error("expected abroad rule to match")
		}
		if byID["score"].TransactionID != "txn_1" {
			t.Error("match should carry the transaction id")
		}
		if byID["score"].Reason != "score at or above 35" {
			t.Errorf("unexpected reason %q", byID["score"].Reason)
		}
	})

	t.Run("HomeCountrySuppressesAbroadRule", func(t *testing.T) {
		matches := eng.Evaluate(scoredRecord(), "UK")
		for _, m := range matches {
			if m.RuleID == "abroad" {
				t.Error("abroad rule must not match a home-country transaction")
			}
		}
	})

	t.Run("NoRulesLoaded", func(t *testing.T) {
		empty := newTestEngine(t)
		if matches := empty.Evaluate(scoredRecord(), "USA"); matches != nil {
			t.Errorf("expected nil matches, got %v", matches)
		}
	})

	t.Run("CleanRecordDoesNotMatch", func(t *testing.T) {
		clean := &domain.RiskRecord{
			Transaction: domain.Transaction{ID: "txn_2", Country: "USA", Amount: 10},
			RiskTier:    domain.TierLow,
		}
		if matches := eng.Evaluate(clean, "USA"); len(matches) != 0 {
			t.Errorf("expected no matches, got %v", matches)
		}
	})
}
