package payout

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"courtbook/internal/models"
)

// StatementWriter renders a venue payout statement as an Excel workbook:
// a summary sheet, the ledger entries of the period, and the payout
// batches settled against them.
type StatementWriter struct {
	file       *excelize.File
	currentRow int
	sheet      string
}

// NewStatementWriter creates an empty statement workbook.
func NewStatementWriter() *StatementWriter {
	return &StatementWriter{file: excelize.NewFile()}
}

// WriteStatement fills the workbook and writes it to w.
func (sw *StatementWriter) WriteStatement(w io.Writer, summary *models.Summary, entries []models.LedgerEntry, batches []models.PayoutBatch) error {
	if err := sw.addSheet("Summary"); err != nil {
		return err
	}
	if err := sw.writeHeader([]string{"Field", "Value"}); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Venue", summary.VenueID},
		{"Period start", summary.PeriodStart.Format("2006-01-02")},
		{"Period end", summary.PeriodEnd.Format("2006-01-02")},
		{"Gross revenue", summary.GrossRevenue},
		{"Platform fees", summary.PlatformFees},
		{"Venue payable", summary.VenuePayable},
		{"Already paid out", summary.AlreadyPaidOut},
		{"Outstanding", summary.Outstanding},
	}
	for _, row := range rows {
		if err := sw.writeRow(row); err != nil {
			return err
		}
	}

	if err := sw.addSheet("Ledger"); err != nil {
		return err
	}
	if err := sw.writeHeader([]string{
		"Entry", "Reservation", "Gross", "Commission", "Fee", "Venue amount", "Remainder", "Status", "Realized",
	}); err != nil {
		return err
	}
	for _, e := range entries {
		commission := fmt.Sprintf("%s %v", e.CommissionKind, e.CommissionValue)
		if err := sw.writeRow([]interface{}{
			e.ID, e.ReservationID, e.Gross, commission, e.PlatformFee, e.VenueAmount,
			e.Remainder, string(e.Status), e.RealizedAt.Format("2006-01-02 15:04:05"),
		}); err != nil {
			return err
		}
	}

	if err := sw.addSheet("Payouts"); err != nil {
		return err
	}
	if err := sw.writeHeader([]string{
		"Batch", "Period start", "Period end", "Gross", "Fees", "Net", "Status", "Settled", "Reference",
	}); err != nil {
		return err
	}
	for _, b := range batches {
		settled := ""
		if b.SettledAt != nil {
			settled = b.SettledAt.Format("2006-01-02")
		}
		if err := sw.writeRow([]interface{}{
			b.ID, b.PeriodStart.Format("2006-01-02"), b.PeriodEnd.Format("2006-01-02"),
			b.Gross, b.Fees, b.Net, string(b.Status), settled, b.ExternalRef,
		}); err != nil {
			return err
		}
	}

	return sw.file.Write(w)
}

// Close releases workbook resources.
func (sw *StatementWriter) Close() error {
	return sw.file.Close()
}

func (sw *StatementWriter) addSheet(name string) error {
	if sw.sheet == "" {
		sw.file.SetSheetName("Sheet1", name)
	} else {
		if _, err := sw.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	sw.sheet = name
	sw.currentRow = 1
	return nil
}

func (sw *StatementWriter) writeHeader(columns []string) error {
	cells := make([]interface{}, len(columns))
	for i, c := range columns {
		cells[i] = c
	}
	if err := sw.writeRow(cells); err != nil {
		return err
	}

	style, err := sw.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = sw.file.SetCellStyle(sw.sheet, startCell, endCell, style)
	}
	return nil
}

func (sw *StatementWriter) writeRow(row []interface{}) error {
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, sw.currentRow)
		if err != nil {
			return err
		}
		if err := sw.file.SetCellValue(sw.sheet, cell, val); err != nil {
			return err
		}
	}
	sw.currentRow++
	return nil
}
