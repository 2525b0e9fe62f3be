package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// CaptureLedger writes a ledger entry and applies the matching reservation
// update in one transaction: money is never recorded without the
// reservation moving, and vice versa. The entry carries the commission
// resolved at this instant; it is frozen from here on.
func (db *DB) CaptureLedger(ctx context.Context, entry *models.LedgerEntry, reservationID, version int64, newCommitted int64, newState models.PaymentState) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE reservations
        SET amount_committed = ?, payment_state = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND version = ?`,
		newCommitted, newState, time.Now(), reservationID, version,
	)
	if err != nil {
		return fmt.Errorf("apply capture: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	ins, err := tx.ExecContext(ctx, `
        INSERT INTO ledger_entries (
            reservation_id, venue_id, gross, commission_kind, commission_value,
            platform_fee, venue_amount, remainder, status, realized_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ReservationID, entry.VenueID, entry.Gross,
		entry.CommissionKind, entry.CommissionValue,
		entry.PlatformFee, entry.VenueAmount, entry.Remainder,
		entry.Status, entry.RealizedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit capture: %w", err)
	}
	entry.ID = id
	return nil
}

// LedgerEntriesForReservation returns all entries for a reservation.
func (db *DB) LedgerEntriesForReservation(ctx context.Context, reservationID int64) ([]models.LedgerEntry, error) {
	return db.queryLedger(ctx, "WHERE reservation_id = ?", reservationID)
}

// LedgerEntriesForVenue returns paid entries for a venue within [start, end).
func (db *DB) LedgerEntriesForVenue(ctx context.Context, venueID int64, start, end time.Time) ([]models.LedgerEntry, error) {
	return db.queryLedger(ctx,
		"WHERE venue_id = ? AND status = 'paid' AND realized_at >= ? AND realized_at < ?",
		venueID, start, end,
	)
}

func (db *DB) queryLedger(ctx context.Context, where string, args ...interface{}) ([]models.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, reservation_id, venue_id, gross, commission_kind, commission_value,
               platform_fee, venue_amount, remainder, status, realized_at
        FROM ledger_entries `+where+` ORDER BY realized_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.ReservationID, &e.VenueID, &e.Gross,
			&e.CommissionKind, &e.CommissionValue,
			&e.PlatformFee, &e.VenueAmount, &e.Remainder, &e.Status, &e.RealizedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkLedgerRefunded transitions every entry of a reservation to refunded.
// Entries are never deleted; refund is the only status transition allowed
// after creation.
func (db *DB) MarkLedgerRefunded(ctx context.Context, reservationID int64) error {
	_, err := db.ExecContext(ctx,
		"UPDATE ledger_entries SET status = 'refunded' WHERE reservation_id = ?",
		reservationID,
	)
	return err
}

// SumLedgerForVenue aggregates paid entries for a venue within [start, end).
func (db *DB) SumLedgerForVenue(ctx context.Context, venueID int64, start, end time.Time) (gross, fees, net int64, err error) {
	err = db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(gross), 0), COALESCE(SUM(platform_fee), 0), COALESCE(SUM(venue_amount), 0)
        FROM ledger_entries
        WHERE venue_id = ? AND status = 'paid'
        AND realized_at >= ? AND realized_at < ?`,
		venueID, start, end,
	).Scan(&gross, &fees, &net)
	if err != nil {
		err = fmt.Errorf("sum ledger: %w", err)
	}
	return
}

// SumPaidOut totals the net of every paid batch for a venue, regardless of
// period: payouts may lag behind the revenue period they cover.
func (db *DB) SumPaidOut(ctx context.Context, venueID int64) (int64, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(net), 0) FROM payout_batches WHERE venue_id = ? AND status = 'paid'",
		venueID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum paid out: %w", err)
	}
	return total, nil
}

// CreatePayoutBatch inserts a batch created by the reconciliation job.
func (db *DB) CreatePayoutBatch(ctx context.Context, b *models.PayoutBatch) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
        INSERT INTO payout_batches (
            venue_id, period_start, period_end, gross, fees, net,
            status, settled_at, external_ref, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.VenueID, b.PeriodStart, b.PeriodEnd, b.Gross, b.Fees, b.Net,
		b.Status, b.SettledAt, b.ExternalRef, now,
	)
	if err != nil {
		return fmt.Errorf("insert payout batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	b.CreatedAt = now
	return nil
}

// MarkPayoutPaid settles a batch with its external transfer reference.
func (db *DB) MarkPayoutPaid(ctx context.Context, batchID int64, externalRef string, settledAt time.Time) error {
	res, err := db.ExecContext(ctx, `
        UPDATE payout_batches SET status = 'paid', external_ref = ?, settled_at = ?
        WHERE id = ? AND status = 'pending'`,
		externalRef, settledAt, batchID,
	)
	if err != nil {
		return fmt.Errorf("mark payout paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPayoutBatches returns all batches for a venue, newest first.
func (db *DB) ListPayoutBatches(ctx context.Context, venueID int64) ([]models.PayoutBatch, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, venue_id, period_start, period_end, gross, fees, net,
               status, settled_at, external_ref, created_at
        FROM payout_batches WHERE venue_id = ? ORDER BY period_start DESC`,
		venueID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []models.PayoutBatch
	for rows.Next() {
		var b models.PayoutBatch
		var settledAt sql.NullTime
		var externalRef sql.NullString
		if err := rows.Scan(
			&b.ID, &b.VenueID, &b.PeriodStart, &b.PeriodEnd, &b.Gross, &b.Fees, &b.Net,
			&b.Status, &settledAt, &externalRef, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		if settledAt.Valid {
			b.SettledAt = &settledAt.Time
		}
		if externalRef.Valid {
			b.ExternalRef = externalRef.String
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
