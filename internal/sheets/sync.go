// Package sheets mirrors payout data into a Google Spreadsheet for venue
// operators who live in spreadsheets rather than dashboards.
package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"courtbook/internal/models"
)

const (
	ledgerSheet = "Ledger"
	payoutSheet = "Payouts"
)

// SyncService writes realized ledger entries and payout batches to a
// spreadsheet. Rows are appended once and updated in place afterwards; the
// entry-ID to row-number mapping is cached to avoid re-reading the sheet
// on every update.
type SyncService struct {
	srv           *sheets.Service
	spreadsheetID string
	logger        *zerolog.Logger

	cacheMu  sync.RWMutex
	rowCache map[int64]int
}

// NewSyncService creates a sheets sync service from a service-account
// credentials file.
func NewSyncService(ctx context.Context, credentialsFile, spreadsheetID string, logger *zerolog.Logger) (*SyncService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SyncService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		logger:        logger,
		rowCache:      make(map[int64]int),
	}, nil
}

// SyncLedger appends or updates the given ledger entries. Refunded entries
// are still written so the sheet matches the ledger exactly; only
// zero-amount entries are skipped.
func (s *SyncService) SyncLedger(ctx context.Context, entries []models.LedgerEntry) error {
	for _, e := range s.filterRealized(entries) {
		row, cached := s.getCachedRow(e.ID)
		values := ledgerRowValues(&e)

		if cached {
			rangeStr := fmt.Sprintf("%s!A%d", ledgerSheet, row)
			_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rangeStr, &sheets.ValueRange{
				Values: [][]interface{}{values},
			}).ValueInputOption("RAW").Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("update ledger row %d: %w", row, err)
			}
			continue
		}

		resp, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, ledgerSheet+"!A1", &sheets.ValueRange{
			Values: [][]interface{}{values},
		}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append ledger entry %d: %w", e.ID, err)
		}
		if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
			if n, ok := parseRowNumber(resp.Updates.UpdatedRange); ok {
				s.setCachedRow(e.ID, n)
			}
		}
	}
	s.logger.Debug().Int("entries", len(entries)).Msg("ledger synced to sheet")
	return nil
}

// SyncPayouts appends the given payout batches to the payout sheet.
func (s *SyncService) SyncPayouts(ctx context.Context, batches []models.PayoutBatch) error {
	if len(batches) == 0 {
		return nil
	}
	values := make([][]interface{}, 0, len(batches))
	for _, b := range batches {
		values = append(values, payoutRowValues(&b))
	}
	_, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, payoutSheet+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append payout batches: %w", err)
	}
	s.logger.Debug().Int("batches", len(batches)).Msg("payouts synced to sheet")
	return nil
}

// filterRealized drops entries that never moved money.
func (s *SyncService) filterRealized(entries []models.LedgerEntry) []models.LedgerEntry {
	out := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.Gross > 0 {
			out = append(out, e)
		}
	}
	return out
}

func (s *SyncService) getCachedRow(entryID int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[entryID]
	return row, ok
}

func (s *SyncService) setCachedRow(entryID int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[entryID] = row
}

// ClearCache drops the row mapping, forcing fresh appends.
func (s *SyncService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func ledgerRowValues(e *models.LedgerEntry) []interface{} {
	return []interface{}{
		e.ID,
		e.ReservationID,
		e.VenueID,
		e.Gross,
		string(e.CommissionKind),
		e.CommissionValue,
		e.PlatformFee,
		e.VenueAmount,
		e.Remainder,
		string(e.Status),
		e.RealizedAt.Format("2006-01-02 15:04:05"),
	}
}

func payoutRowValues(b *models.PayoutBatch) []interface{} {
	settled := ""
	if b.SettledAt != nil {
		settled = b.SettledAt.Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		b.ID,
		b.VenueID,
		b.PeriodStart.Format("2006-01-02"),
		b.PeriodEnd.Format("2006-01-02"),
		b.Gross,
		b.Fees,
		b.Net,
		string(b.Status),
		settled,
		b.ExternalRef,
	}
}

// parseRowNumber extracts the starting row from a range like
// "Ledger!A42:K42".
func parseRowNumber(updatedRange string) (int, bool) {
	var sheet string
	var col1, col2 string
	var row1, row2 int
	if _, err := fmt.Sscanf(updatedRange, "%[^!]!%1s%d:%1s%d", &sheet, &col1, &row1, &col2, &row2); err == nil {
		return row1, true
	}
	if _, err := fmt.Sscanf(updatedRange, "%[^!]!%1s%d", &sheet, &col1, &row1); err == nil {
		return row1, true
	}
	return 0, false
}
