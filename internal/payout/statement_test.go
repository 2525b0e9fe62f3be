package payout

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"courtbook/internal/models"
)

func TestWriteStatement(t *testing.T) {
	summary := &models.Summary{
		VenueID:        1,
		PeriodStart:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		GrossRevenue:   10000,
		PlatformFees:   1000,
		VenuePayable:   9000,
		AlreadyPaidOut: 4000,
		Outstanding:    5000,
	}
	entries := []models.LedgerEntry{{
		ID: 12, ReservationID: 34, VenueID: 1, Gross: 1000,
		CommissionKind: models.CommissionPercentage, CommissionValue: 10,
		PlatformFee: 100, VenueAmount: 900,
		Status: models.LedgerPaid, RealizedAt: time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC),
	}}
	settled := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	batches := []models.PayoutBatch{{
		ID: 3, VenueID: 1,
		PeriodStart: summary.PeriodStart, PeriodEnd: summary.PeriodEnd,
		Gross: 10000, Fees: 1000, Net: 9000,
		Status: models.PayoutPaid, SettledAt: &settled, ExternalRef: "tx_abc",
	}}

	var buf bytes.Buffer
	sw := NewStatementWriter()
	defer sw.Close()
	require.NoError(t, sw.WriteStatement(&buf, summary, entries, batches))
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Summary", "Ledger", "Payouts"}, f.GetSheetList())

	outstanding, err := f.GetCellValue("Summary", "B9")
	require.NoError(t, err)
	assert.Equal(t, "5000", outstanding)

	gross, err := f.GetCellValue("Ledger", "C2")
	require.NoError(t, err)
	assert.Equal(t, "1000", gross)

	ref, err := f.GetCellValue("Payouts", "I2")
	require.NoError(t, err)
	assert.Equal(t, "tx_abc", ref)
}
