package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// CreateVenue inserts a venue with its weekly hours and pricing bands.
func (db *DB) CreateVenue(ctx context.Context, v *models.Venue) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
        INSERT INTO venues (
            owner_id, name, price_per_hour, slot_granularity,
            advance_kind, advance_value, allows_advance, allows_pay_at_venue,
            commission_kind, commission_value, payout_frequency, is_active,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.OwnerID, v.Name, v.PricePerHour, v.SlotGranularity,
		advanceKind(v), advanceValue(v), v.AllowsAdvance, v.AllowsPayAtVenue,
		commissionKind(v), commissionValue(v), v.PayoutFrequency, v.IsActive,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("insert venue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = id
	v.CreatedAt = now
	v.UpdatedAt = now

	for day, h := range v.Hours {
		if err := db.SetVenueHours(ctx, v.ID, day, h); err != nil {
			return err
		}
	}
	for _, band := range v.PricingBands {
		if err := db.AddPricingBand(ctx, v.ID, band); err != nil {
			return err
		}
	}
	return nil
}

// GetVenue loads a venue with hours and pricing bands.
func (db *DB) GetVenue(ctx context.Context, id int64) (*models.Venue, error) {
	var (
		v                models.Venue
		advKind, comKind sql.NullString
		advVal, comVal   sql.NullFloat64
	)
	err := db.QueryRowContext(ctx, `
        SELECT id, owner_id, name, price_per_hour, slot_granularity,
               advance_kind, advance_value, allows_advance, allows_pay_at_venue,
               commission_kind, commission_value, payout_frequency, is_active,
               created_at, updated_at
        FROM venues WHERE id = ?`, id,
	).Scan(
		&v.ID, &v.OwnerID, &v.Name, &v.PricePerHour, &v.SlotGranularity,
		&advKind, &advVal, &v.AllowsAdvance, &v.AllowsPayAtVenue,
		&comKind, &comVal, &v.PayoutFrequency, &v.IsActive,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get venue %d: %w", id, err)
	}

	// Both-or-neither: a half-set pair is treated as no override.
	if advKind.Valid && advVal.Valid {
		v.Advance = &models.AdvancePolicy{Kind: models.AdvanceKind(advKind.String), Value: advVal.Float64}
	}
	if comKind.Valid && comVal.Valid {
		v.Commission = &models.CommissionRule{Kind: models.CommissionKind(comKind.String), Value: comVal.Float64}
	}

	if v.Hours, err = db.venueHours(ctx, v.ID); err != nil {
		return nil, err
	}
	if v.PricingBands, err = db.pricingBands(ctx, v.ID); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListActiveVenues returns all active venues (hours and bands included).
func (db *DB) ListActiveVenues(ctx context.Context) ([]models.Venue, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM venues WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	venues := make([]models.Venue, 0, len(ids))
	for _, id := range ids {
		v, err := db.GetVenue(ctx, id)
		if err != nil {
			return nil, err
		}
		venues = append(venues, *v)
	}
	return venues, nil
}

// SetVenueHours sets the opening window for one weekday.
func (db *DB) SetVenueHours(ctx context.Context, venueID int64, day int, h models.DayHours) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO venue_hours (venue_id, day_of_week, is_open, start_time, end_time)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(venue_id, day_of_week) DO UPDATE SET
            is_open = excluded.is_open,
            start_time = excluded.start_time,
            end_time = excluded.end_time`,
		venueID, day, h.Open, h.StartTime, h.EndTime,
	)
	return err
}

// AddPricingBand adds a day/time-banded price override.
func (db *DB) AddPricingBand(ctx context.Context, venueID int64, band models.PricingBand) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO pricing_bands (venue_id, day_of_week, start_time, end_time, price_per_hour)
        VALUES (?, ?, ?, ?, ?)`,
		venueID, band.DayOfWeek, band.StartTime, band.EndTime, band.PricePerHour,
	)
	return err
}

// UpdateVenueCommission sets or clears the venue commission override as an
// atomic pair.
func (db *DB) UpdateVenueCommission(ctx context.Context, venueID int64, rule *models.CommissionRule) error {
	var kind interface{}
	var value interface{}
	if rule != nil {
		kind = string(rule.Kind)
		value = rule.Value
	}
	_, err := db.ExecContext(ctx,
		"UPDATE venues SET commission_kind = ?, commission_value = ?, updated_at = ? WHERE id = ?",
		kind, value, time.Now(), venueID,
	)
	return err
}

// UpdateVenueAdvance sets or clears the venue advance policy.
func (db *DB) UpdateVenueAdvance(ctx context.Context, venueID int64, policy *models.AdvancePolicy, allowsAdvance, allowsPayAtVenue bool) error {
	var kind interface{}
	var value interface{}
	if policy != nil {
		kind = string(policy.Kind)
		value = policy.Value
	}
	_, err := db.ExecContext(ctx, `
        UPDATE venues SET advance_kind = ?, advance_value = ?,
            allows_advance = ?, allows_pay_at_venue = ?, updated_at = ?
        WHERE id = ?`,
		kind, value, allowsAdvance, allowsPayAtVenue, time.Now(), venueID,
	)
	return err
}

func (db *DB) venueHours(ctx context.Context, venueID int64) (map[int]models.DayHours, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT day_of_week, is_open, start_time, end_time FROM venue_hours WHERE venue_id = ?",
		venueID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hours := make(map[int]models.DayHours)
	for rows.Next() {
		var day int
		var h models.DayHours
		if err := rows.Scan(&day, &h.Open, &h.StartTime, &h.EndTime); err != nil {
			return nil, err
		}
		hours[day] = h
	}
	return hours, rows.Err()
}

func (db *DB) pricingBands(ctx context.Context, venueID int64) ([]models.PricingBand, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT day_of_week, start_time, end_time, price_per_hour
        FROM pricing_bands WHERE venue_id = ? ORDER BY day_of_week, start_time`,
		venueID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bands []models.PricingBand
	for rows.Next() {
		var b models.PricingBand
		if err := rows.Scan(&b.DayOfWeek, &b.StartTime, &b.EndTime, &b.PricePerHour); err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	return bands, rows.Err()
}

func advanceKind(v *models.Venue) interface{} {
	if v.Advance == nil {
		return nil
	}
	return string(v.Advance.Kind)
}

func advanceValue(v *models.Venue) interface{} {
	if v.Advance == nil {
		return nil
	}
	return v.Advance.Value
}

func commissionKind(v *models.Venue) interface{} {
	if v.Commission == nil {
		return nil
	}
	return string(v.Commission.Kind)
}

func commissionValue(v *models.Venue) interface{} {
	if v.Commission == nil {
		return nil
	}
	return v.Commission.Value
}
