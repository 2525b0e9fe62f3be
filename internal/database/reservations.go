package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// CommittedIntervals returns the [start, end) ranges of every reservation
// that still holds its slot at the venue on the given day. Failed and
// cancelled reservations never block; other venues' reservations are not
// consulted at all.
func (db *DB) CommittedIntervals(ctx context.Context, venueID int64, date time.Time) ([]models.Interval, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	rows, err := db.QueryContext(ctx, `
        SELECT start_time, end_time FROM reservations
        WHERE venue_id = ?
        AND start_time >= ? AND start_time < ?
        AND payment_state NOT IN ('failed', 'cancelled')
        ORDER BY start_time`,
		venueID, startOfDay, endOfDay,
	)
	if err != nil {
		return nil, fmt.Errorf("committed intervals: %w", err)
	}
	defer rows.Close()

	var intervals []models.Interval
	for rows.Next() {
		var iv models.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// CreateReservationExclusive persists a reservation after re-validating the
// interval inside the same transaction. The availability check a client ran
// beforehand is advisory only; this re-check under a serializable
// transaction is what actually prevents double-booking. Returns ErrSlotTaken
// when a committed reservation already overlaps the interval.
func (db *DB) CreateReservationExclusive(ctx context.Context, r *models.Reservation) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM reservations
        WHERE venue_id = ?
        AND start_time < ? AND end_time > ?
        AND payment_state NOT IN ('failed', 'cancelled')`,
		r.VenueID, r.EndTime, r.StartTime,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("overlap check: %w", err)
	}
	if count > 0 {
		return ErrSlotTaken
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
        INSERT INTO reservations (
            venue_id, user_id, date, start_time, end_time, duration,
            total_amount, amount_committed, payment_state, mode, match_id,
            created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		r.VenueID, r.UserID, r.Date, r.StartTime, r.EndTime, r.Duration,
		r.TotalAmount, r.AmountCommitted, r.PaymentState, r.Mode, r.MatchID,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}

	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

// GetReservation loads a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	var r models.Reservation
	var mode sql.NullString
	var matchID sql.NullInt64
	err := db.QueryRowContext(ctx, `
        SELECT id, venue_id, user_id, date, start_time, end_time, duration,
               total_amount, amount_committed, payment_state, mode, match_id,
               created_at, updated_at, version
        FROM reservations WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.VenueID, &r.UserID, &r.Date, &r.StartTime, &r.EndTime, &r.Duration,
		&r.TotalAmount, &r.AmountCommitted, &r.PaymentState, &mode, &matchID,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	if mode.Valid {
		r.Mode = models.CommitmentMode(mode.String)
	}
	if matchID.Valid {
		r.MatchID = &matchID.Int64
	}
	return &r, nil
}

// UpdateStateWithVersion transitions a reservation's payment state using
// optimistic concurrency. Returns ErrVersionConflict when another writer
// moved the row first.
func (db *DB) UpdateStateWithVersion(ctx context.Context, id, version int64, state models.PaymentState) error {
	res, err := db.ExecContext(ctx, `
        UPDATE reservations
        SET payment_state = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND version = ?`,
		state, time.Now(), id, version,
	)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// SetMode records the chosen commitment mode alongside a state transition.
func (db *DB) SetMode(ctx context.Context, id, version int64, mode models.CommitmentMode, state models.PaymentState) error {
	res, err := db.ExecContext(ctx, `
        UPDATE reservations
        SET mode = ?, payment_state = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND version = ?`,
		mode, state, time.Now(), id, version,
	)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ExpireStuckProcessing fails every reservation stuck in processing since
// before the cutoff, releasing the slots they were holding.
func (db *DB) ExpireStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
        UPDATE reservations
        SET payment_state = 'failed', updated_at = ?, version = version + 1
        WHERE payment_state = 'processing' AND updated_at < ?`,
		time.Now(), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("expire processing: %w", err)
	}
	return res.RowsAffected()
}

// ReservationsForDay returns the booking read model rows for a venue/date.
func (db *DB) ReservationsForDay(ctx context.Context, venueID int64, date time.Time) ([]models.Reservation, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	rows, err := db.QueryContext(ctx, `
        SELECT id, venue_id, user_id, date, start_time, end_time, duration,
               total_amount, amount_committed, payment_state, mode, match_id,
               created_at, updated_at, version
        FROM reservations
        WHERE venue_id = ? AND start_time >= ? AND start_time < ?
        ORDER BY start_time`,
		venueID, startOfDay, endOfDay,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var r models.Reservation
		var mode sql.NullString
		var matchID sql.NullInt64
		if err := rows.Scan(
			&r.ID, &r.VenueID, &r.UserID, &r.Date, &r.StartTime, &r.EndTime, &r.Duration,
			&r.TotalAmount, &r.AmountCommitted, &r.PaymentState, &mode, &matchID,
			&r.CreatedAt, &r.UpdatedAt, &r.Version,
		); err != nil {
			return nil, err
		}
		if mode.Valid {
			r.Mode = models.CommitmentMode(mode.String)
		}
		if matchID.Valid {
			r.MatchID = &matchID.Int64
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}
