package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const txnHeader = "transaction_id,user_id,timestamp,amount,merchant_name,merchant_category,city,country,latitude,longitude,is_fraud,fraud_type"

func TestParseTransactions(t *testing.T) {
	t.Run("ValidFile", func(t *testing.T) {
		input := txnHeader + "\n" +
			"txn_001,user_001,2025-01-15 09:30:00,42.50,Corner Cafe,dining,New York,USA,40.7128,-74.0060,0,\n" +
			"txn_002,user_001,2025-01-15T10:00:00Z,9500.00,Luxe Watches,retail,London,UK,51.5074,-0.1278,1,impossible_travel\n"

		txns, err := ParseTransactions(strings.NewReader(input))
		if err != nil {
			t.Fatalf("ParseTransactions failed: %v", err)
		}
		if len(txns) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(txns))
		}

		tx := txns[0]
		if tx.ID != "txn_001" || tx.UserID != "user_001" {
			t.Errorf("unexpected identifiers: %s/%s", tx.ID, tx.UserID)
		}
		if tx.Amount != 42.50 {
			t.Errorf("expected amount 42.50, got %f", tx.Amount)
		}
		want := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
		if !tx.Timestamp.Equal(want) {
			t.Errorf("expected %v, got %v", want, tx.Timestamp)
		}
		if tx.IsFraud || tx.FraudType != "" {
			t.Error("first row should be legitimate")
		}

		fraud := txns[1]
		if !fraud.IsFraud || fraud.FraudType != "impossible_travel" {
			t.Error("second row should carry the fraud label")
		}
	})

	t.Run("MissingColumnFails", func(t *testing.T) {
		input := "transaction_id,user_id,timestamp,amount\n" +
			"txn_001,user_001,2025-01-15 09:30:00,42.50\n"

		_, err := ParseTransactions(strings.NewReader(input))
		if !errors.Is(err, ErrDataShape) {
			t.Fatalf("expected ErrDataShape, got %v", err)
		}
		if !strings.Contains(err.Error(), "latitude") {
			t.Errorf("error should name missing columns: %v", err)
		}
	})

	t.Run("NegativeAmountFails", func(t *testing.T) {
		input := txnHeader + "\n" +
			"txn_001,user_001,2025-01-15 09:30:00,-5.00,Shop,retail,NY,USA,40.7,-74.0,0,\n"

		_, err := ParseTransactions(strings.NewReader(input))
		if !errors.Is(err, ErrDataShape) {
			t.Fatalf("expected ErrDataShape for negative amount, got %v", err)
		}
	})

	t.Run("OutOfRangeLatitudeFails", func(t *testing.T) {
		input := txnHeader + "\n" +
			"txn_001,user_001,2025-01-15 09:30:00,5.00,Shop,retail,NY,USA,95.0,-74.0,0,\n"

		_, err := ParseTransactions(strings.NewReader(input))
		if !errors.Is(err, ErrDataShape) {
			t.Fatalf("expected ErrDataShape for latitude 95, got %v", err)
		}
	})

	t.Run("BadTimestampFails", func(t *testing.T) {
		input := txnHeader + "\n" +
			"txn_001,user_001,15/01/2025,5.00,Shop,retail,NY,USA,40.7,-74.0,0,\n"

		_, err := ParseTransactions(strings.NewReader(input))
		if !errors.Is(err, ErrDataShape) {
			t.Fatalf("expected ErrDataShape for bad timestamp, got %v", err)
		}
	})

	t.Run("EmptyIDFails", func(t *testing.T) {
		input := txnHeader + "\n" +
			",user_001,2025-01-15 09:30:00,5.00,Shop,retail,NY,USA,40.7,-74.0,0,\n"

		_, err := ParseTransactions(strings.NewReader(input))
		if !errors.Is(err, ErrDataShape) {
			t.Fatalf("expected ErrDataShape for empty id, got %v", err)
		}
	})

	t.Run("HeaderOnlyIsEmptyNotError", func(t *testing.T) {
		txns, err := ParseTransactions(strings.NewReader(txnHeader + "\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(txns) != 0 {
			t.Errorf("expected no transactions, got %d", len(txns))
		}
	})

	t.Run("ExtraColumnsIgnored", func(t *testing.T) {
		input := txnHeader + ",extra\n" +
			"txn_001,user_001,2025-01-15 09:30:00,5.00,Shop,retail,NY,USA,40.7,-74.0,0,,whatever\n"

		txns, err := ParseTransactions(strings.NewReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(txns) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(txns))
		}
	})
}

func TestParseUserProfiles(t *testing.T) {
	header := "user_id,home_city,home_country,home_lat,home_lon,avg_amount,std_amount"

	t.Run("ValidFile", func(t *testing.T) {
		input := header + "\n" +
			"user_001,New York,USA,40.7128,-74.0060,55.20,12.40\n"

		profiles, err := ParseUserProfiles(strings.NewReader(input))
		if err != nil {
			t.Fatalf("ParseUserProfiles failed: %v", err)
		}
		if len(profiles) != 1 {
			t.Fatalf("expected 1 profile, got %d", len(profiles))
		}
		p := profiles[0]
		if p.UserID != "user_001" || p.HomeCity != "New York" || p.HomeCountry != "USA" {
			t.Error("unexpected profile fields")
		}
		if p.AvgAmount != 55.20 || p.StdAmount != 12.40 {
			t.Error("unexpected spend statistics")
		}
	})

	t.Run("MissingColumnFails", func(t *testing.T) {
		input := "user_id,home_city\nuser_001,New York\n"

		_, err := ParseUserProfiles(strings.NewReader(input))
		if !errors.Is(err, ErrDataShape) {
			t.Fatalf("expected ErrDataShape, got %v", err)
		}
	})

	t.Run("BadFloatFails", func(t *testing.T) {
		input := header + "\n" +
			"user_001,New York,USA,not-a-number,-74.0,55.2,12.4\n"

		_, err := ParseUserProfiles(strings.NewReader(input))
		if !errors.Is(err, ErrDataShape) {
			t.Fatalf("expected ErrDataShape, got %v", err)
		}
	})
}
