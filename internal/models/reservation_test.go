package models

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 14, hour, minute, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	committed := Interval{Start: at(18, 0), End: at(19, 30)}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical interval", at(18, 0), at(19, 30), true},
		{"contained inside", at(18, 30), at(19, 0), true},
		{"straddles start", at(17, 30), at(18, 30), true},
		{"straddles end", at(19, 0), at(20, 0), true},
		{"ends exactly at start", at(17, 0), at(18, 0), false},
		{"starts exactly at end", at(19, 30), at(20, 30), false},
		{"fully before", at(15, 0), at(16, 0), false},
		{"fully after", at(21, 0), at(22, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := committed.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestReservationOverlapsWith(t *testing.T) {
	a := &Reservation{StartTime: at(10, 0), EndTime: at(11, 0)}
	b := &Reservation{StartTime: at(11, 0), EndTime: at(12, 0)}
	c := &Reservation{StartTime: at(10, 30), EndTime: at(11, 30)}

	if a.OverlapsWith(b) {
		t.Error("back-to-back reservations must not overlap")
	}
	if !a.OverlapsWith(c) || !b.OverlapsWith(c) {
		t.Error("expected overlap with straddling reservation")
	}
}

func TestPaymentStateCommitted(t *testing.T) {
	blocking := []PaymentState{
		StateUnpaid, StateProcessing, StatePaid,
		StatePartiallyPaid, StatePayAtVenuePending, StateRefunded,
	}
	for _, s := range blocking {
		if !s.Committed() {
			t.Errorf("state %s should hold its slot", s)
		}
	}

	released := []PaymentState{StateFailed, StateCancelled}
	for _, s := range released {
		if s.Committed() {
			t.Errorf("state %s should release its slot", s)
		}
	}
}

func TestPaymentStateTerminal(t *testing.T) {
	terminal := []PaymentState{StateFailed, StateCancelled, StateRefunded}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("state %s should be terminal", s)
		}
	}
	if StateProcessing.Terminal() || StatePaid.Terminal() {
		t.Error("processing and paid are not terminal")
	}
}
