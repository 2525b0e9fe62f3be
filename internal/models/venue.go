package models

import "time"

// CommissionKind selects how a commission value is applied to a gross amount.
type CommissionKind string

const (
	CommissionPercentage CommissionKind = "percentage"
	CommissionFlat       CommissionKind = "flat"
)

// CommissionRule is a kind+value pair resolved at payment capture.
// A venue either carries a full rule or none at all; the two fields are
// never overridden independently.
type CommissionRule struct {
	Kind  CommissionKind `json:"kind" yaml:"kind"`
	Value float64        `json:"value" yaml:"value"`
}

// AdvanceKind selects how the advance portion of a total is computed.
type AdvanceKind string

const (
	AdvancePercentage AdvanceKind = "percentage"
	AdvanceFlat       AdvanceKind = "flat"
)

// AdvancePolicy describes a venue's advance-payment configuration.
type AdvancePolicy struct {
	Kind  AdvanceKind `json:"kind"`
	Value float64     `json:"value"`
}

// DayHours is the opening window for one weekday. Times are "HH:MM".
type DayHours struct {
	Open      bool   `json:"open"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// PricingBand overrides the base hourly price for a weekday/time window.
// Times are "HH:MM"; the band applies to slots starting within [Start, End).
type PricingBand struct {
	DayOfWeek    int    `json:"day_of_week"` // 1=Monday .. 7=Sunday
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	PricePerHour int64  `json:"price_per_hour"`
}

// Venue is a bookable sports facility.
type Venue struct {
	ID               int64            `json:"id"`
	OwnerID          int64            `json:"owner_id"`
	Name             string           `json:"name"`
	PricePerHour     int64            `json:"price_per_hour"`
	SlotGranularity  int              `json:"slot_granularity"` // minutes
	Hours            map[int]DayHours `json:"hours"`            // 1=Monday .. 7=Sunday
	PricingBands     []PricingBand    `json:"pricing_bands,omitempty"`
	Commission       *CommissionRule  `json:"commission,omitempty"` // nil = platform default
	Advance          *AdvancePolicy   `json:"advance,omitempty"`
	AllowsAdvance    bool             `json:"allows_advance_payment"`
	AllowsPayAtVenue bool             `json:"allows_pay_at_venue"`
	PayoutFrequency  string           `json:"payout_frequency"` // weekly, monthly
	IsActive         bool             `json:"is_active"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HoursFor returns the opening window for a date's weekday.
func (v *Venue) HoursFor(date time.Time) (DayHours, bool) {
	day := int(date.Weekday())
	if day == 0 {
		day = 7 // Sunday = 7
	}
	h, ok := v.Hours[day]
	if !ok || !h.Open {
		return DayHours{}, false
	}
	return h, true
}

// Granularity returns the slot granularity with the 30-minute floor applied.
// Duration options may be coarser, but the scan tick never is.
func (v *Venue) Granularity() int {
	if v.SlotGranularity < 30 {
		return 30
	}
	return v.SlotGranularity
}
