package domain

import (
	"time"
)

// Archetype identifies one of the fraud patterns the pipeline detects.
type Archetype string

const (
	// ArchetypeOverall is the OR of all three detectors, used only in
	// evaluation output.
	ArchetypeOverall Archetype = "OVERALL"

	ArchetypeImpossibleTravel Archetype = "IMPOSSIBLE_TRAVEL"
	ArchetypeVelocitySpike    Archetype = "VELOCITY_SPIKE"
	ArchetypeBehavioralDrift  Archetype = "BEHAVIORAL_DRIFT"
)

// Archetypes lists the three detector archetypes in canonical order.
func Archetypes() []Archetype {
	return []Archetype{
		ArchetypeImpossibleTravel,
		ArchetypeVelocitySpike,
		ArchetypeBehavioralDrift,
	}
}

// FraudLabel returns the ground-truth fraud_type string that marks a
// transaction as a true positive for this archetype.
func (a Archetype) FraudLabel() string {
	switch a {
	case ArchetypeImpossibleTravel:
		return "impossible_travel"
	case ArchetypeVelocitySpike:
		return "velocity_spike"
	case ArchetypeBehavioralDrift:
		return "behavioral_drift"
	default:
		return ""
	}
}

// TravelSignal is one impossible-travel detector output row.
// Distance, gap and speed are nil for the first transaction of a user;
// speed is additionally nil whenever the time gap is zero or negative,
// so a degenerate gap can never produce a flag.
type TravelSignal struct {
	TransactionID  string    `json:"transactionId"`
	UserID         string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
	DistanceMiles  *float64  `json:"distanceMiles,omitempty"`
	TimeGapHours   *float64  `json:"timeGapHours,omitempty"`
	GroundSpeedMPH *float64  `json:"groundSpeedMph,omitempty"`
	Flag           bool      `json:"flagImpossibleTravel"`
}

// VelocitySignal is one velocity-spike detector output row: count and
// amount sum over the trailing 60-second window ending at the row's own
// timestamp, including the row itself and any timestamp peers.
type VelocitySignal struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
	TxnCount      int64     `json:"txnCount60s"`
	AmountSum     float64   `json:"amountSum60s"`
	Flag          bool      `json:"flagVelocitySpike"`
}

// DriftSignal is one behavioral-drift detector output row: rolling mean
// and population standard deviation over the trailing 30-day window that
// ends one second before the row's timestamp (strictly prior history).
// ZScore is nil unless the rolling std is positive and the window holds
// at least the configured minimum sample count.
type DriftSignal struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
	TxnCount      int64     `json:"txnCount30d"`
	RollingAvg    *float64  `json:"rollingAvg,omitempty"`
	RollingStd    *float64  `json:"rollingStd,omitempty"`
	ZScore        *float64  `json:"zScore,omitempty"`
	Flag          bool      `json:"flagBehavioralDrift"`
}

// Checkpoint records the high-water mark of a detector's output table.
// It is written atomically with the rows it covers; RowCount lets a
// subsequent run detect a table that disagrees with its checkpoint.
type Checkpoint struct {
	Detector      Archetype `json:"detector"`
	LastTimestamp time.Time `json:"lastProcessedTimestamp"`
	LastID        string    `json:"lastProcessedId"`
	RowCount      int64     `json:"rowCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
