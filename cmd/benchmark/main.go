// Benchmark tool for the RiskMetric detectors.
//
// Usage:
//   go run cmd/benchmark/main.go -users 500 -txns 200
//
// This tool:
//   1. Generates synthetic transactions in memory with injected fraud
//   2. Runs all three detectors and the composite scorer
//   3. Compares detector output with the injected labels
//   4. Reports per-detector timing, precision, recall and F1
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/opensource-finance/riskmetric/internal/detector"
	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/evaluate"
	"github.com/opensource-finance/riskmetric/internal/score"
	"github.com/opensource-finance/riskmetric/internal/window"
)

type city struct {
	name    string
	country string
	lat     float64
	lon     float64
}

var cities = []city{
	{"New York", "USA", 40.7128, -74.0060},
	{"Chicago", "USA", 41.8781, -87.6298},
	{"London", "UK", 51.5074, -0.1278},
	{"Tokyo", "Japan", 35.6762, 139.6503},
	{"Sydney", "Australia", -33.8688, 151.2093},
	{"Lagos", "Nigeria", 6.5244, 3.3792},
	{"Moscow", "Russia", 55.7558, 37.6173},
}

func main() {
	users := flag.Int("users", 500, "Number of synthetic users")
	txnsPerUser := flag.Int("txns", 200, "Baseline transactions per user")
	fraudRate := flag.Float64("fraud", 0.02, "Fraction of users given each fraud pattern")
	seed := flag.Int64("seed", 42, "RNG seed")
	flag.Parse()

	cfg := domain.DefaultConfig()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            RISKMETRIC BENCHMARK - Detector Throughput         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nUsers:          %d\n", *users)
	fmt.Printf("Txns per user:  %d\n", *txnsPerUser)
	fmt.Printf("Fraud rate:     %.2f\n", *fraudRate)
	fmt.Printf("Seed:           %d\n", *seed)

	rng := rand.New(rand.NewSource(*seed))

	fmt.Println("\nGenerating synthetic transactions...")
	start := time.Now()
	txns := generate(rng, *users, *txnsPerUser, *fraudRate)
	fmt.Printf("✓ Generated %d transactions in %v\n", len(txns), time.Since(start).Round(time.Millisecond))

	parts := window.Partition(txns)
	userIDs := make([]string, 0, len(parts))
	for u := range parts {
		userIDs = append(userIDs, u)
	}
	sort.Strings(userIDs)

	travel := make(map[string]*domain.TravelSignal)
	velocity := make(map[string]*domain.VelocitySignal)
	drift := make(map[string]*domain.DriftSignal)

	fmt.Println("\nRunning detectors...")

	travelDur := timeDetector("impossible_travel", func() {
		for _, u := range userIDs {
			for _, sig := range detector.Travel(parts[u], cfg.Detectors.SpeedThresholdMPH) {
				s := sig
				travel[s.TransactionID] = &s
			}
		}
	})

	velocityDur := timeDetector("velocity_spike", func() {
		windowDur := time.Duration(cfg.Detectors.VelocityWindowSecs) * time.Second
		for _, u := range userIDs {
			for _, sig := range detector.Velocity(parts[u], windowDur, cfg.Detectors.VelocityCountThreshold) {
				s := sig
				velocity[s.TransactionID] = &s
			}
		}
	})

	driftDur := timeDetector("behavioral_drift", func() {
		windowDur := time.Duration(cfg.Detectors.DriftWindowDays) * 24 * time.Hour
		for _, u := range userIDs {
			for _, sig := range detector.Drift(parts[u], windowDur, cfg.Detectors.DriftMinSamples, cfg.Detectors.ZScoreThreshold) {
				s := sig
				drift[s.TransactionID] = &s
			}
		}
	})

	scorer := score.NewScorer(cfg.Scoring)
	records := make([]*domain.RiskRecord, 0, len(txns))

	scoreStart := time.Now()
	for _, u := range userIDs {
		for _, tx := range parts[u] {
			records = append(records, scorer.Fuse(tx, travel[tx.ID], velocity[tx.ID], drift[tx.ID]))
		}
	}
	scoreDur := time.Since(scoreStart)

	fmt.Printf("\n⏱  TIMING\n")
	total := float64(len(txns))
	fmt.Printf("   impossible_travel: %8v  (%.0f txn/sec)\n", travelDur.Round(time.Millisecond), total/travelDur.Seconds())
	fmt.Printf("   velocity_spike:    %8v  (%.0f txn/sec)\n", velocityDur.Round(time.Millisecond), total/velocityDur.Seconds())
	fmt.Printf("   behavioral_drift:  %8v  (%.0f txn/sec)\n", driftDur.Round(time.Millisecond), total/driftDur.Seconds())
	fmt.Printf("   composite scorer:  %8v  (%.0f txn/sec)\n", scoreDur.Round(time.Millisecond), total/scoreDur.Seconds())

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	for _, row := range evaluate.Evaluate(records) {
		fmt.Printf("   %-18s P=%.4f  R=%.4f  F1=%.4f  (TP=%d FP=%d FN=%d)\n",
			row.Archetype, row.Precision, row.Recall, row.F1,
			row.TruePositives, row.FalsePositives, row.FalseNegatives)
	}
	fmt.Println()
}

func timeDetector(name string, fn func()) time.Duration {
	start := time.Now()
	fn()
	dur := time.Since(start)
	fmt.Printf("✓ %s done in %v\n", name, dur.Round(time.Millisecond))
	return dur
}

// generate builds per-user baseline spending plus injected fraud
// patterns matching the three archetypes.
func generate(rng *rand.Rand, users, txnsPerUser int, fraudRate float64) []*domain.Transaction {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var txns []*domain.Transaction
	txnSeq := 0

	newTxn := func(userID string, ts time.Time, amount float64, loc city, isFraud bool, fraudType string) *domain.Transaction {
		txnSeq++
		return &domain.Transaction{
			ID:               fmt.Sprintf("txn_%08d", txnSeq),
			UserID:           userID,
			Timestamp:        ts,
			Amount:           amount,
			MerchantName:     "merchant_bench",
			MerchantCategory: "retail",
			City:             loc.name,
			Country:          loc.country,
			Latitude:         loc.lat,
			Longitude:        loc.lon,
			IsFraud:          isFraud,
			FraudType:        fraudType,
		}
	}

	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user_%05d", u)
		home := cities[rng.Intn(len(cities))]
		baseAmount := 20 + rng.Float64()*80

		// Baseline: steady spending at home, spread over 90 days.
		cursor := base.Add(time.Duration(rng.Intn(86400)) * time.Second)
		for i := 0; i < txnsPerUser; i++ {
			cursor = cursor.Add(time.Duration(30+rng.Intn(90)) * time.Minute)
			amount := baseAmount * (0.5 + rng.Float64())
			txns = append(txns, newTxn(userID, cursor, amount, home, false, ""))
		}

		// Injected patterns, each hitting a distinct slice of users.
		r := rng.Float64()
		switch {
		case r < fraudRate:
			// Impossible travel: a far-city transaction minutes after a
			// home one.
			away := cities[(cityIndex(home)+3)%len(cities)]
			ts := cursor.Add(10 * time.Minute)
			txns = append(txns, newTxn(userID, ts, baseAmount, away, true, "impossible_travel"))

		case r < 2*fraudRate:
			// Velocity spike: 12 transactions inside 45 seconds.
			ts := cursor.Add(time.Hour)
			for i := 0; i < 12; i++ {
				txns = append(txns, newTxn(userID, ts.Add(time.Duration(i*4)*time.Second), baseAmount*0.2, home, true, "velocity_spike"))
			}

		case r < 3*fraudRate:
			// Behavioral drift: one transaction far above the baseline.
			ts := cursor.Add(2 * time.Hour)
			txns = append(txns, newTxn(userID, ts, baseAmount*25, home, true, "behavioral_drift"))
		}
	}

	return txns
}

func cityIndex(c city) int {
	for i := range cities {
		if cities[i].name == c.name {
			return i
		}
	}
	return 0
}
