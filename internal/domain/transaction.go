package domain

import (
	"time"
)

// Transaction is a single banking transaction from the staging layer.
// Transactions are immutable facts: written once by ingest, never updated.
type Transaction struct {
	// Core identifiers
	ID     string `json:"transactionId"`
	UserID string `json:"userId"`

	// Temporal ordering key. Window semantics require per-user ordering
	// by (Timestamp, ID); ties on Timestamp fall back to ID.
	Timestamp time.Time `json:"timestamp"`

	// Financial details
	Amount float64 `json:"amount"`

	// Merchant metadata
	MerchantName     string `json:"merchantName"`
	MerchantCategory string `json:"merchantCategory"`

	// Geolocation of the transaction
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Injected ground-truth label. Used only for evaluation, never for
	// detection. FraudType is empty for legitimate transactions.
	IsFraud   bool   `json:"isFraud"`
	FraudType string `json:"fraudType,omitempty"`
}

// Before reports whether t sorts before other in partition order:
// ascending timestamp, with transaction ID as the stable tie-break.
func (t *Transaction) Before(other *Transaction) bool {
	if !t.Timestamp.Equal(other.Timestamp) {
		return t.Timestamp.Before(other.Timestamp)
	}
	return t.ID < other.ID
}

// UserProfile holds per-user home location and historical spend statistics.
// Read-only reference data produced by the generator collaborator.
type UserProfile struct {
	UserID      string  `json:"userId"`
	HomeCity    string  `json:"homeCity"`
	HomeCountry string  `json:"homeCountry"`
	HomeLat     float64 `json:"homeLat"`
	HomeLon     float64 `json:"homeLon"`
	AvgAmount   float64 `json:"avgAmount"`
	StdAmount   float64 `json:"stdAmount"`
}
