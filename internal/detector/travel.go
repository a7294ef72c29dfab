// Package detector implements the three windowed fraud signals. Each
// detector is a pure function over one sorted user partition; detectors
// share no state and run concurrently against the same immutable
// transaction snapshot.
package detector

import (
	"math"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

// EarthRadiusMiles is the fixed haversine radius. All implementations
// must use the same constant for bit-comparable distances.
const EarthRadiusMiles = 3958.8

// Haversine returns the great-circle distance in miles between two
// coordinates given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*sinLon*sinLon
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(h))
}

// Travel computes impossible-travel signals for one sorted user
// partition: distance and elapsed time to the immediately preceding
// transaction, and the implied ground speed.
//
// Speed is nil for the first transaction of a user and whenever the time
// gap is zero or negative (duplicate or out-of-order timestamps), so a
// degenerate gap never divides by zero or produces a false flag.
func Travel(rows []*domain.Transaction, speedThresholdMPH float64) []domain.TravelSignal {
	out := make([]domain.TravelSignal, len(rows))
	for i, tx := range rows {
		sig := domain.TravelSignal{
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			Timestamp:     tx.Timestamp,
		}

		if i > 0 {
			prev := rows[i-1]
			distance := Haversine(prev.Latitude, prev.Longitude, tx.Latitude, tx.Longitude)
			gapHours := tx.Timestamp.Sub(prev.Timestamp).Seconds() / 3600

			sig.DistanceMiles = &distance
			sig.TimeGapHours = &gapHours

			if gapHours > 0 {
				speed := distance / gapHours
				sig.GroundSpeedMPH = &speed
				sig.Flag = speed > speedThresholdMPH
			}
		}

		out[i] = sig
	}
	return out
}
