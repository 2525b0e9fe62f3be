package models

import "time"

// LedgerStatus is the status of a realized payment record.
type LedgerStatus string

const (
	LedgerPaid     LedgerStatus = "paid"
	LedgerPending  LedgerStatus = "pending"
	LedgerFailed   LedgerStatus = "failed"
	LedgerRefunded LedgerStatus = "refunded"
)

// LedgerEntry records one realized payment split into platform fee and
// venue amount. The commission fields are frozen at capture time; later
// rule changes never alter an existing entry.
type LedgerEntry struct {
	ID              int64          `json:"id"`
	ReservationID   int64          `json:"reservation_id"`
	VenueID         int64          `json:"venue_id"`
	Gross           int64          `json:"gross"`
	CommissionKind  CommissionKind `json:"commission_kind"`
	CommissionValue float64        `json:"commission_value"`
	PlatformFee     int64          `json:"platform_fee"`
	VenueAmount     int64          `json:"venue_amount"`
	Remainder       bool           `json:"remainder"` // true for the at-venue remainder entry
	Status          LedgerStatus   `json:"status"`
	RealizedAt      time.Time      `json:"realized_at"`
}

// PayoutStatus is the settlement status of a payout batch.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
	PayoutFailed  PayoutStatus = "failed"
)

// PayoutBatch is an aggregated settlement of venue payables for a period.
// Created by the reconciliation scheduler, never by the booking flow.
type PayoutBatch struct {
	ID          int64        `json:"id"`
	VenueID     int64        `json:"venue_id"`
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Gross       int64        `json:"gross"`
	Fees        int64        `json:"fees"`
	Net         int64        `json:"net"`
	Status      PayoutStatus `json:"status"`
	SettledAt   *time.Time   `json:"settled_at,omitempty"`
	ExternalRef string       `json:"external_ref,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Summary is the reconciliation result for a venue over a period.
type Summary struct {
	VenueID        int64     `json:"venue_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	GrossRevenue   int64     `json:"gross_revenue"`
	PlatformFees   int64     `json:"platform_fees"`
	VenuePayable   int64     `json:"venue_payable"`
	AlreadyPaidOut int64     `json:"already_paid_out"`
	Outstanding    int64     `json:"outstanding"`
}
