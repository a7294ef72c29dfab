package domain

// TriageRuleConfig defines a triage rule applied to scored records.
// Triage rules decide which detected records raise alert events; they run
// after the composite scorer and never influence scores or evaluation.
type TriageRuleConfig struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	Description string `toml:"description" json:"description"`

	// CEL expression over the scored record. Available variables:
	// risk_score, risk_tier, detected_fraud, amount, country,
	// home_country, flag_impossible_travel, flag_velocity_spike,
	// flag_behavioral_drift. Must evaluate to a boolean.
	Expression string `toml:"expression" json:"expression"`

	// Whether the rule is active
	Enabled bool `toml:"enabled" json:"enabled"`
}

// TriageMatch is the outcome of a triage rule firing on a record.
type TriageMatch struct {
	RuleID        string `json:"ruleId"`
	RuleName      string `json:"ruleName"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason,omitempty"`
}
