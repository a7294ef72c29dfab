// Package score implements the composite risk scorer: a pure, stateless
// join of the three detector outputs onto the base transaction, plus the
// derived Gold views (fraud attribution and per-user risk profiles).
package score

import (
	"sort"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

// Scorer fuses detector signals into composite risk records.
type Scorer struct {
	cfg domain.ScoringConfig
}

// NewScorer creates a scorer with the given weights and tier cutoffs.
func NewScorer(cfg domain.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Fuse left-joins one transaction with its detector outputs. A nil signal
// means the detector has not covered the transaction: treated as not
// flagged with nil evidence, never as missing data.
func (s *Scorer) Fuse(tx *domain.Transaction, travel *domain.TravelSignal, velocity *domain.VelocitySignal, drift *domain.DriftSignal) *domain.RiskRecord {
	rec := &domain.RiskRecord{Transaction: *tx}

	if travel != nil {
		rec.DistanceMiles = travel.DistanceMiles
		rec.GroundSpeedMPH = travel.GroundSpeedMPH
		rec.FlagImpossibleTravel = travel.Flag
	}
	if velocity != nil {
		count := velocity.TxnCount
		sum := velocity.AmountSum
		rec.TxnCount60s = &count
		rec.AmountSum60s = &sum
		rec.FlagVelocitySpike = velocity.Flag
	}
	if drift != nil {
		count := drift.TxnCount
		rec.TxnCount30d = &count
		rec.ZScore = drift.ZScore
		rec.FlagBehavioralDrift = drift.Flag
	}

	score := 0
	if rec.FlagImpossibleTravel {
		score += s.cfg.WeightImpossibleTravel
	}
	if rec.FlagVelocitySpike {
		score += s.cfg.WeightVelocitySpike
	}
	if rec.FlagBehavioralDrift {
		score += s.cfg.WeightBehavioralDrift
	}
	if score > 100 {
		score = 100
	}

	rec.RiskScore = score
	rec.RiskTier = s.TierFor(score)
	rec.DetectedFraud = rec.FlagImpossibleTravel || rec.FlagVelocitySpike || rec.FlagBehavioralDrift
	return rec
}

// TierFor maps a composite score to its tier, matching cutoffs from
// highest to lowest.
func (s *Scorer) TierFor(score int) domain.Tier {
	switch {
	case score >= s.cfg.CriticalCutoff:
		return domain.TierCritical
	case score >= s.cfg.HighCutoff:
		return domain.TierHigh
	case score >= s.cfg.MediumCutoff:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// Primary fraud attribution labels, in precedence order: pairwise flag
// combinations first, then single flags. The ordering is a fixed design
// choice carried over from the original model, not a severity ranking.
const (
	AttributionTravelVelocity = "Impossible Travel + Velocity Spike"
	AttributionTravelDrift    = "Impossible Travel + Behavioral Drift"
	AttributionVelocityDrift  = "Velocity Spike + Behavioral Drift"
	AttributionTravel         = "Impossible Travel"
	AttributionVelocity       = "Velocity Spike"
	AttributionDrift          = "Behavioral Drift"
	AttributionUnknown        = "Unknown"
)

// Attribution picks the primary fraud attribution label for a record.
func Attribution(rec *domain.RiskRecord) string {
	it, vs, bd := rec.FlagImpossibleTravel, rec.FlagVelocitySpike, rec.FlagBehavioralDrift
	switch {
	case it && vs:
		return AttributionTravelVelocity
	case it && bd:
		return AttributionTravelDrift
	case vs && bd:
		return AttributionVelocityDrift
	case it:
		return AttributionTravel
	case vs:
		return AttributionVelocity
	case bd:
		return AttributionDrift
	default:
		return AttributionUnknown
	}
}

// Attribute builds the fraud attribution view: detected records only,
// annotated with the primary attribution and a ground-truth accuracy
// classification.
func Attribute(records []*domain.RiskRecord) []*domain.AttributionRecord {
	var out []*domain.AttributionRecord
	for _, rec := range records {
		if !rec.DetectedFraud {
			continue
		}

		accuracy := domain.AccuracyFalsePositive
		if rec.IsFraud {
			accuracy = domain.AccuracyTruePositive
		}

		out = append(out, &domain.AttributionRecord{
			RiskRecord:              *rec,
			PrimaryFraudAttribution: Attribution(rec),
			DetectionAccuracy:       accuracy,
		})
	}
	return out
}

// UserProfiles rolls scored records up to one row per user. Users appear
// in ascending user-id order; the user tier is derived from the user's
// maximum composite score through the same cutoffs as transactions.
func (s *Scorer) UserProfiles(records []*domain.RiskRecord, profiles map[string]*domain.UserProfile) []*domain.UserRiskProfile {
	byUser := make(map[string]*domain.UserRiskProfile)
	detected := make(map[string]int64)
	scoreSum := make(map[string]int64)

	for _, rec := range records {
		p, ok := byUser[rec.UserID]
		if !ok {
			p = &domain.UserRiskProfile{UserID: rec.UserID}
			if home, ok := profiles[rec.UserID]; ok {
				p.HomeCity = home.HomeCity
				p.HomeCountry = home.HomeCountry
			}
			byUser[rec.UserID] = p
		}

		p.TotalTransactions++
		p.TotalSpend += rec.Amount
		scoreSum[rec.UserID] += int64(rec.RiskScore)

		if rec.FlagImpossibleTravel {
			p.ImpossibleTravelCount++
		}
		if rec.FlagVelocitySpike {
			p.VelocitySpikeCount++
		}
		if rec.FlagBehavioralDrift {
			p.BehavioralDriftCount++
		}
		if rec.DetectedFraud {
			detected[rec.UserID]++
		}
		if rec.RiskScore > p.MaxRiskScore {
			p.MaxRiskScore = rec.RiskScore
		}
	}

	out := make([]*domain.UserRiskProfile, 0, len(byUser))
	for user, p := range byUser {
		p.TotalFlags = p.ImpossibleTravelCount + p.VelocitySpikeCount + p.BehavioralDriftCount
		p.AvgRiskScore = float64(scoreSum[user]) / float64(p.TotalTransactions)
		p.FraudRatePct = 100 * float64(detected[user]) / float64(p.TotalTransactions)
		p.UserRiskTier = s.TierFor(p.MaxRiskScore)
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
