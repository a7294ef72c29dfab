// Package ingest loads the generator collaborator's columnar tables into
// the staging layer. The physical format here is CSV; the core pipeline
// only depends on the repository's ordered read, not on this format.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/riskmetric/internal/domain"
)

// ErrDataShape marks ingest failures caused by the input not matching the
// staging contract: missing columns, unparseable values, out-of-range
// coordinates. Data-shape errors fail the run with nothing written.
var ErrDataShape = errors.New("data shape error")

var transactionColumns = []string{
	"transaction_id", "user_id", "timestamp", "amount",
	"merchant_name", "merchant_category", "city", "country",
	"latitude", "longitude", "is_fraud", "fraud_type",
}

var profileColumns = []string{
	"user_id", "home_city", "home_country",
	"home_lat", "home_lon", "avg_amount", "std_amount",
}

// Timestamp layouts accepted on ingest, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// LoadTransactions parses and validates the transactions CSV, then stages
// it through the repository. The whole file is validated before the first
// row is written, so a malformed file produces no partial output.
func LoadTransactions(ctx context.Context, repo domain.Repository, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open transactions file: %w", err)
	}
	defer f.Close()

	txns, err := ParseTransactions(f)
	if err != nil {
		return 0, err
	}

	if err := repo.InsertTransactions(ctx, txns); err != nil {
		return 0, fmt.Errorf("failed to stage transactions: %w", err)
	}
	return len(txns), nil
}

// LoadUserProfiles parses, validates and stages the user profiles CSV.
func LoadUserProfiles(ctx context.Context, repo domain.Repository, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open user profiles file: %w", err)
	}
	defer f.Close()

	profiles, err := ParseUserProfiles(f)
	if err != nil {
		return 0, err
	}

	if err := repo.InsertUserProfiles(ctx, profiles); err != nil {
		return 0, fmt.Errorf("failed to stage user profiles: %w", err)
	}
	return len(profiles), nil
}

// ParseTransactions reads and validates a transactions CSV stream.
func ParseTransactions(r io.Reader) ([]*domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	cols, err := readHeader(reader, transactionColumns)
	if err != nil {
		return nil, err
	}

	var txns []*domain.Transaction
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed csv at line %d: %v", ErrDataShape, line+1, err)
		}
		line++

		tx, err := parseTransaction(cols, record, line)
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

// ParseUserProfiles reads and validates a user profiles CSV stream.
func ParseUserProfiles(r io.Reader) ([]*domain.UserProfile, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	cols, err := readHeader(reader, profileColumns)
	if err != nil {
		return nil, err
	}

	var profiles []*domain.UserProfile
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed csv at line %d: %v", ErrDataShape, line+1, err)
		}
		line++

		p, err := parseProfile(cols, record, line)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func parseTransaction(cols map[string]int, record []string, line int) (*domain.Transaction, error) {
	get := func(name string) string { return strings.TrimSpace(record[cols[name]]) }

	id := get("transaction_id")
	userID := get("user_id")
	if id == "" || userID == "" {
		return nil, fmt.Errorf("%w: empty transaction_id or user_id at line %d", ErrDataShape, line)
	}

	ts, err := parseTimestamp(get("timestamp"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp at line %d: %v", ErrDataShape, line, err)
	}

	amount, err := strconv.ParseFloat(get("amount"), 64)
	if err != nil || amount < 0 {
		return nil, fmt.Errorf("%w: bad amount %q at line %d", ErrDataShape, get("amount"), line)
	}

	lat, err := strconv.ParseFloat(get("latitude"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("%w: bad latitude %q at line %d", ErrDataShape, get("latitude"), line)
	}

	lon, err := strconv.ParseFloat(get("longitude"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: bad longitude %q at line %d", ErrDataShape, get("longitude"), line)
	}

	isFraud, err := parseBool(get("is_fraud"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad is_fraud %q at line %d", ErrDataShape, get("is_fraud"), line)
	}

	return &domain.Transaction{
		ID:               id,
		UserID:           userID,
		Timestamp:        ts,
		Amount:           amount,
		MerchantName:     get("merchant_name"),
		MerchantCategory: get("merchant_category"),
		City:             get("city"),
		Country:          get("country"),
		Latitude:         lat,
		Longitude:        lon,
		IsFraud:          isFraud,
		FraudType:        get("fraud_type"),
	}, nil
}

func parseProfile(cols map[string]int, record []string, line int) (*domain.UserProfile, error) {
	get := func(name string) string { return strings.TrimSpace(record[cols[name]]) }

	userID := get("user_id")
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user_id at line %d", ErrDataShape, line)
	}

	floats := make(map[string]float64, 4)
	for _, name := range []string{"home_lat", "home_lon", "avg_amount", "std_amount"} {
		v, err := strconv.ParseFloat(get(name), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s %q at line %d", ErrDataShape, name, get(name), line)
		}
		floats[name] = v
	}

	return &domain.UserProfile{
		UserID:      userID,
		HomeCity:    get("home_city"),
		HomeCountry: get("home_country"),
		HomeLat:     floats["home_lat"],
		HomeLon:     floats["home_lon"],
		AvgAmount:   floats["avg_amount"],
		StdAmount:   floats["std_amount"],
	}, nil
}

// readHeader validates that every required column is present and returns
// the name-to-index mapping.
func readHeader(reader *csv.Reader, required []string) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrDataShape, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrDataShape, strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes":
		return true, nil
	case "false", "f", "0", "no", "":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}
