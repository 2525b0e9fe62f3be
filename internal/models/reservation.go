package models

import "time"

// PaymentState is the payment lifecycle state of a reservation.
type PaymentState string

const (
	StateUnpaid            PaymentState = "unpaid"
	StateProcessing        PaymentState = "processing"
	StatePaid              PaymentState = "paid"
	StatePartiallyPaid     PaymentState = "partially_paid"
	StatePayAtVenuePending PaymentState = "pay_at_venue_pending"
	StateFailed            PaymentState = "failed"
	StateCancelled         PaymentState = "cancelled"
	StateRefunded          PaymentState = "refunded"
)

// Committed reports whether a reservation in this state occupies its slot.
// A pay-at-venue reservation holds the slot even though no money has moved.
func (s PaymentState) Committed() bool {
	return s != StateFailed && s != StateCancelled
}

// Terminal reports whether no further transition is allowed from this state.
func (s PaymentState) Terminal() bool {
	return s == StateFailed || s == StateCancelled || s == StateRefunded
}

// CommitmentMode is how a reservation's cost is paid.
type CommitmentMode string

const (
	ModeFull    CommitmentMode = "full"
	ModeAdvance CommitmentMode = "advance"
	ModeGround  CommitmentMode = "ground" // pay at venue
)

// Reservation is a requester's claim on a venue for a date/time interval.
type Reservation struct {
	ID              int64          `json:"id"`
	VenueID         int64          `json:"venue_id"`
	UserID          int64          `json:"user_id"`
	Date            time.Time      `json:"date"` // calendar day, midnight local
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Duration        int            `json:"duration"` // minutes
	TotalAmount     int64          `json:"total_amount"`
	AmountCommitted int64          `json:"amount_committed"`
	PaymentState    PaymentState   `json:"payment_state"`
	Mode            CommitmentMode `json:"mode,omitempty"`
	MatchID         *int64         `json:"match_id,omitempty"` // linked organized match
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Version         int64          `json:"version"`
}

// OverlapsWith checks interval collision against another reservation using
// half-open [start, end) semantics: adjacency is not overlap.
func (r *Reservation) OverlapsWith(other *Reservation) bool {
	return r.StartTime.Before(other.EndTime) && other.StartTime.Before(r.EndTime)
}

// Interval is a committed [start, end) minute-range derived from a
// reservation whose payment state still holds the slot.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps applies the half-open overlap rule against a candidate interval.
func (iv Interval) Overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && iv.Start.Before(end)
}

// BookingView is the read model exposed to external collaborators.
// No amounts or commission data leave the owner/admin surfaces.
type BookingView struct {
	VenueID      int64        `json:"venue_id"`
	Date         string       `json:"date"` // YYYY-MM-DD
	StartTime    string       `json:"start_time"`
	EndTime      string       `json:"end_time"`
	PaymentState PaymentState `json:"payment_state"`
}
