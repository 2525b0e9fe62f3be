// Package booking validates and persists reservations against current
// availability.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/availability"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
)

// ErrSlotUnavailable is surfaced to the caller as "slot taken": the
// requested interval is no longer free at write time. Recovered by a fresh
// availability fetch and a new selection, never auto-substituted.
var ErrSlotUnavailable = errors.New("slot unavailable")

// ErrInvalidInterval is returned for intervals violating venue rules.
var ErrInvalidInterval = errors.New("invalid interval")

// Repository is the storage surface the booking service needs.
type Repository interface {
	GetVenue(ctx context.Context, id int64) (*models.Venue, error)
	CommittedIntervals(ctx context.Context, venueID int64, date time.Time) ([]models.Interval, error)
	CreateReservationExclusive(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	ReservationsForDay(ctx context.Context, venueID int64, date time.Time) ([]models.Reservation, error)
	UpdateStateWithVersion(ctx context.Context, id, version int64, state models.PaymentState) error
	LedgerEntriesForReservation(ctx context.Context, reservationID int64) ([]models.LedgerEntry, error)
	MarkLedgerRefunded(ctx context.Context, reservationID int64) error
}

// EventBus publishes domain events.
type EventBus interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Invalidator drops cached availability for a venue/day.
type Invalidator interface {
	Invalidate(ctx context.Context, venueID int64, date string)
}

// Service is the reservation writer and availability read path.
type Service struct {
	repo   Repository
	bus    EventBus
	cache  Invalidator
	calc   *availability.Calculator
	logger *zerolog.Logger
}

// NewService creates a booking service.
func NewService(repo Repository, bus EventBus, cache Invalidator, calc *availability.Calculator, logger *zerolog.Logger) *Service {
	return &Service{repo: repo, bus: bus, cache: cache, calc: calc, logger: logger}
}

// Availability computes the bookable start ticks for a venue, date and
// requested duration.
func (s *Service) Availability(ctx context.Context, venueID int64, date time.Time, duration int) ([]availability.Slot, error) {
	venue, err := s.repo.GetVenue(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("load venue: %w", err)
	}
	committed, err := s.repo.CommittedIntervals(ctx, venueID, date)
	if err != nil {
		return nil, fmt.Errorf("load committed intervals: %w", err)
	}
	return s.calc.Compute(venue, date, duration, committed)
}

// CreateRequest is a requester's slot choice.
type CreateRequest struct {
	VenueID   int64
	UserID    int64
	Date      time.Time
	StartTime time.Time
	Duration  int // minutes
	MatchID   *int64
}

// Create validates the requested interval and persists an unpaid
// reservation. The availability re-check runs inside the insert
// transaction; losing that race returns ErrSlotUnavailable.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Reservation, error) {
	venue, err := s.repo.GetVenue(ctx, req.VenueID)
	if err != nil {
		return nil, fmt.Errorf("load venue: %w", err)
	}

	if err := validateDuration(venue, req.Duration); err != nil {
		return nil, err
	}

	committed, err := s.repo.CommittedIntervals(ctx, req.VenueID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("load committed intervals: %w", err)
	}
	ok, err := s.calc.Revalidate(venue, req.Date, req.StartTime, req.Duration, committed)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.IncReservationConflict()
		return nil, ErrSlotUnavailable
	}

	end := req.StartTime.Add(time.Duration(req.Duration) * time.Minute)
	reservation := &models.Reservation{
		VenueID:      req.VenueID,
		UserID:       req.UserID,
		Date:         dayOf(req.Date),
		StartTime:    req.StartTime,
		EndTime:      end,
		Duration:     req.Duration,
		TotalAmount:  Quote(venue, req.StartTime, req.Duration),
		PaymentState: models.StateUnpaid,
		MatchID:      req.MatchID,
	}

	if err := s.repo.CreateReservationExclusive(ctx, reservation); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncReservationConflict()
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	s.afterChange(ctx, reservation, events.TypeReservationCreated)
	s.logger.Info().
		Int64("reservation_id", reservation.ID).
		Int64("venue_id", reservation.VenueID).
		Time("start", reservation.StartTime).
		Int("duration", reservation.Duration).
		Msg("reservation created")

	return reservation, nil
}

// Cancel moves a non-terminal reservation to cancelled, releasing the
// slot. Any existing ledger entries transition to refunded; they are never
// deleted.
func (s *Service) Cancel(ctx context.Context, reservationID int64) error {
	reservation, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.PaymentState.Terminal() {
		return fmt.Errorf("reservation %d is %s: %w", reservationID, reservation.PaymentState, ErrInvalidInterval)
	}

	if err := s.repo.UpdateStateWithVersion(ctx, reservation.ID, reservation.Version, models.StateCancelled); err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}

	entries, err := s.repo.LedgerEntriesForReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := s.repo.MarkLedgerRefunded(ctx, reservationID); err != nil {
			return fmt.Errorf("refund ledger: %w", err)
		}
	}

	metrics.IncReservationCancelled()
	s.afterChange(ctx, reservation, events.TypeReservationCancelled)
	s.logger.Info().Int64("reservation_id", reservationID).Msg("reservation cancelled")
	return nil
}

// DayView returns the read model for external collaborators: interval and
// payment state only, no amounts or commission data.
func (s *Service) DayView(ctx context.Context, venueID int64, date time.Time) ([]models.BookingView, error) {
	reservations, err := s.repo.ReservationsForDay(ctx, venueID, date)
	if err != nil {
		return nil, err
	}
	views := make([]models.BookingView, 0, len(reservations))
	for _, r := range reservations {
		views = append(views, models.BookingView{
			VenueID:      r.VenueID,
			Date:         r.Date.Format("2006-01-02"),
			StartTime:    r.StartTime.Format("15:04"),
			EndTime:      r.EndTime.Format("15:04"),
			PaymentState: r.PaymentState,
		})
	}
	return views, nil
}

// Quote prices an interval: the matching pricing band's hourly rate if one
// covers the start time, the venue base price otherwise.
func Quote(venue *models.Venue, start time.Time, duration int) int64 {
	price := venue.PricePerHour

	day := int(start.Weekday())
	if day == 0 {
		day = 7
	}
	startHM := start.Format("15:04")
	for _, band := range venue.PricingBands {
		if band.DayOfWeek == day && startHM >= band.StartTime && startHM < band.EndTime {
			price = band.PricePerHour
			break
		}
	}

	return price * int64(duration) / 60
}

func (s *Service) afterChange(ctx context.Context, r *models.Reservation, eventType string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, r.VenueID, r.Date.Format("2006-01-02"))
	}
	if s.bus != nil {
		if err := s.bus.PublishJSON(eventType, r); err != nil {
			s.logger.Warn().Err(err).Str("event", eventType).Msg("publish event failed")
		}
	}
	if eventType == events.TypeReservationCreated {
		metrics.IncReservationCreated(string(r.Mode))
	}
}

func validateDuration(venue *models.Venue, duration int) error {
	if duration < 60 {
		return fmt.Errorf("duration %d below 60 minute minimum: %w", duration, ErrInvalidInterval)
	}
	if duration%venue.Granularity() != 0 {
		return fmt.Errorf("duration %d not a multiple of %d minute granularity: %w",
			duration, venue.Granularity(), ErrInvalidInterval)
	}
	return nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
