package sheets

import (
	"testing"
	"time"

	"courtbook/internal/models"
)

func TestLedgerRowValues(t *testing.T) {
	realized := time.Date(2025, 6, 9, 18, 30, 0, 0, time.UTC)
	entry := &models.LedgerEntry{
		ID:              12,
		ReservationID:   34,
		VenueID:         5,
		Gross:           1000,
		CommissionKind:  models.CommissionPercentage,
		CommissionValue: 10,
		PlatformFee:     100,
		VenueAmount:     900,
		Remainder:       false,
		Status:          models.LedgerPaid,
		RealizedAt:      realized,
	}

	values := ledgerRowValues(entry)

	expected := []interface{}{
		int64(12),
		int64(34),
		int64(5),
		int64(1000),
		"percentage",
		10.0,
		int64(100),
		int64(900),
		false,
		"paid",
		"2025-06-09 18:30:00",
	}

	if len(values) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(values))
	}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("at index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestPayoutRowValues(t *testing.T) {
	settled := time.Date(2025, 6, 10, 2, 0, 0, 0, time.UTC)
	batch := &models.PayoutBatch{
		ID:          3,
		VenueID:     5,
		PeriodStart: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		Gross:       10000,
		Fees:        1000,
		Net:         9000,
		Status:      models.PayoutPaid,
		SettledAt:   &settled,
		ExternalRef: "tx_abc",
	}

	values := payoutRowValues(batch)
	if values[2] != "2025-06-02" || values[3] != "2025-06-09" {
		t.Errorf("unexpected period columns: %v", values)
	}
	if values[8] != "2025-06-10 02:00:00" {
		t.Errorf("unexpected settled column: %v", values[8])
	}

	batch.SettledAt = nil
	values = payoutRowValues(batch)
	if values[8] != "" {
		t.Errorf("unsettled batch must render an empty settled column, got %v", values[8])
	}
}

func TestFilterRealized(t *testing.T) {
	s := &SyncService{}

	entries := []models.LedgerEntry{
		{ID: 1, Gross: 1000},
		{ID: 2, Gross: 0},
		{ID: 3, Gross: 500},
	}

	realized := s.filterRealized(entries)
	if len(realized) != 2 {
		t.Fatalf("expected 2 realized entries, got %d", len(realized))
	}
	for _, e := range realized {
		if e.Gross == 0 {
			t.Error("zero-gross entry found in realized list")
		}
	}
}

func TestCacheOperations(t *testing.T) {
	s := &SyncService{rowCache: make(map[int64]int)}

	s.setCachedRow(100, 5)
	row, ok := s.getCachedRow(100)
	if !ok || row != 5 {
		t.Errorf("expected row 5, got %d (ok=%v)", row, ok)
	}

	s.ClearCache()
	if _, ok := s.getCachedRow(100); ok {
		t.Error("expected cache to be cleared")
	}
}

func TestParseRowNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantOK  bool
	}{
		{"Ledger!A42:K42", 42, true},
		{"Ledger!A7", 7, true},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseRowNumber(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseRowNumber(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
