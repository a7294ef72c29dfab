package domain

// Tier is the ordered risk category derived from the composite score.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// Rank returns the tier's position in the LOW < MEDIUM < HIGH < CRITICAL
// ordering, for monotonicity checks and sorting.
func (t Tier) Rank() int {
	switch t {
	case TierCritical:
		return 3
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}

// RiskRecord is the fused per-transaction view: the base transaction
// left-joined with the three detector outputs. A transaction missing from
// a detector's output is treated as not flagged with nil evidence, never
// as missing data.
type RiskRecord struct {
	Transaction

	// Impossible-travel evidence
	DistanceMiles  *float64 `json:"distanceMiles,omitempty"`
	GroundSpeedMPH *float64 `json:"groundSpeedMph,omitempty"`

	// Velocity evidence
	TxnCount60s  *int64   `json:"txnCount60s,omitempty"`
	AmountSum60s *float64 `json:"amountSum60s,omitempty"`

	// Drift evidence
	TxnCount30d *int64   `json:"txnCount30d,omitempty"`
	ZScore      *float64 `json:"zScore,omitempty"`

	FlagImpossibleTravel bool `json:"flagImpossibleTravel"`
	FlagVelocitySpike    bool `json:"flagVelocitySpike"`
	FlagBehavioralDrift  bool `json:"flagBehavioralDrift"`

	// RiskScore is min(100, sum of the weights of flagged detectors).
	RiskScore int  `json:"riskScore"`
	RiskTier  Tier `json:"riskTier"`

	// DetectedFraud is the OR of the three flags: the model's prediction,
	// as opposed to the injected label.
	DetectedFraud bool `json:"detectedFraud"`
}

// Flagged reports whether the record carries the given archetype's flag.
func (r *RiskRecord) Flagged(a Archetype) bool {
	switch a {
	case ArchetypeImpossibleTravel:
		return r.FlagImpossibleTravel
	case ArchetypeVelocitySpike:
		return r.FlagVelocitySpike
	case ArchetypeBehavioralDrift:
		return r.FlagBehavioralDrift
	case ArchetypeOverall:
		return r.DetectedFraud
	default:
		return false
	}
}

// Detection accuracy classifications for the attribution table.
const (
	AccuracyTruePositive  = "TRUE_POSITIVE"
	AccuracyFalsePositive = "FALSE_POSITIVE"
	AccuracyUnknown       = "UNKNOWN"
)

// AttributionRecord is a detected RiskRecord annotated with a primary
// fraud attribution label and a ground-truth accuracy classification.
type AttributionRecord struct {
	RiskRecord

	// PrimaryFraudAttribution is chosen by a fixed precedence: pairwise
	// flag combinations first, then single flags, else "Unknown".
	PrimaryFraudAttribution string `json:"primaryFraudAttribution"`

	DetectionAccuracy string `json:"detectionAccuracy"`
}

// UserRiskProfile is the per-user Gold rollup across all fraud signals.
type UserRiskProfile struct {
	UserID      string `json:"userId"`
	HomeCity    string `json:"homeCity"`
	HomeCountry string `json:"homeCountry"`

	UserRiskTier Tier `json:"userRiskTier"`

	TotalTransactions int64   `json:"totalTransactions"`
	TotalSpend        float64 `json:"totalSpend"`

	ImpossibleTravelCount int64 `json:"impossibleTravelCount"`
	VelocitySpikeCount    int64 `json:"velocitySpikeCount"`
	BehavioralDriftCount  int64 `json:"behavioralDriftCount"`
	TotalFlags            int64 `json:"totalFlags"`

	AvgRiskScore float64 `json:"avgRiskScore"`
	MaxRiskScore int     `json:"maxRiskScore"`

	// FraudRatePct is the share of the user's transactions flagged by any
	// detector, as a percentage.
	FraudRatePct float64 `json:"fraudRatePct"`
}
