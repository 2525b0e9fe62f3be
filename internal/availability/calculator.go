// Package availability computes bookable start times for a venue and date.
package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/models"
)

// Slot is one candidate start tick with its bookability for the requested
// duration.
type Slot struct {
	StartTime time.Time
	EndTime   time.Time
	Available bool
}

// SlotInfo is a simplified representation for API responses.
type SlotInfo struct {
	Start     string `json:"start"` // "18:00"
	End       string `json:"end"`   // "19:00"
	Available bool   `json:"available"`
}

// Calculator generates candidate slots against committed intervals.
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a calculator using the wall clock.
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// NewCalculatorAt creates a calculator with a fixed clock source.
func NewCalculatorAt(now func() time.Time) *Calculator {
	return &Calculator{now: now}
}

// Compute returns every candidate start tick from opening time to
// closingTime - duration, stepped at the venue's granularity (never finer
// than 30 minutes). A candidate [t, t+duration) is available iff it is not
// in the past when date is today, it does not intersect any committed
// interval under the half-open rule, and it ends by closing time.
//
// Committed intervals must already exclude failed and cancelled
// reservations and reservations of other venues; the caller derives them
// from reservations whose payment state still holds the slot.
func (c *Calculator) Compute(venue *models.Venue, date time.Time, duration int, committed []models.Interval) ([]Slot, error) {
	hours, open := venue.HoursFor(date)
	if !open {
		return nil, nil
	}

	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", duration)
	}

	openTime, err := parseTimeOnDate(date, hours.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse opening time: %w", err)
	}
	closeTime, err := parseTimeOnDate(date, hours.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse closing time: %w", err)
	}

	tick := time.Duration(venue.Granularity()) * time.Minute
	span := time.Duration(duration) * time.Minute
	now := c.now()

	var slots []Slot
	for cursor := openTime; !cursor.Add(span).After(closeTime); cursor = cursor.Add(tick) {
		start := cursor
		end := cursor.Add(span)

		// Past starts are never bookable; on future dates this is a no-op.
		available := !start.Before(now)
		if available {
			for _, iv := range committed {
				if iv.Overlaps(start, end) {
					available = false
					break
				}
			}
		}

		slots = append(slots, Slot{
			StartTime: start,
			EndTime:   end,
			Available: available,
		})
	}

	return slots, nil
}

// Revalidate re-runs the availability check for a single start time.
// A longer duration can turn a previously-available start unavailable, so
// callers must invalidate an earlier selection whenever the duration
// changes.
func (c *Calculator) Revalidate(venue *models.Venue, date, start time.Time, duration int, committed []models.Interval) (bool, error) {
	slots, err := c.Compute(venue, date, duration, committed)
	if err != nil {
		return false, err
	}
	for _, s := range slots {
		if s.StartTime.Equal(start) {
			return s.Available, nil
		}
	}
	return false, nil
}

// DurationOptions returns the bookable durations from a start time, in
// granularity steps up to the longest free run, starting at the 60-minute
// minimum.
func DurationOptions(slots []Slot, start time.Time, granularity int) []int {
	startIdx := -1
	for i, s := range slots {
		if s.StartTime.Equal(start) && s.Available {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil
	}

	maxTicks := 0
	for i := startIdx; i < len(slots); i++ {
		if !slots[i].Available {
			break
		}
		if i > startIdx && !slots[i].StartTime.Equal(slots[i-1].StartTime.Add(time.Duration(granularity)*time.Minute)) {
			break
		}
		maxTicks++
	}

	var options []int
	for i := 1; i <= maxTicks; i++ {
		d := i * granularity
		if d < 60 {
			continue
		}
		options = append(options, d)
	}
	return options
}

// ToSlotInfo converts slots for API responses.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:     s.StartTime.Format("15:04"),
			End:       s.EndTime.Format("15:04"),
			Available: s.Available,
		}
	}
	return result
}

func parseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour: %w", err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute: %w", err)
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}
