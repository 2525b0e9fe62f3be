// Package payment drives a reservation through its payment lifecycle.
// All commitment-mode branching happens here, behind a single dispatch
// point; adding a mode means extending this machine, not scattering string
// checks through call sites.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/commission"
	"courtbook/internal/events"
	"courtbook/internal/gateway"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
)

// ErrModeNotAllowed is returned when the venue does not offer the chosen
// commitment mode.
var ErrModeNotAllowed = errors.New("commitment mode not allowed for venue")

// ErrBadTransition is returned for a payment-state transition outside the
// allowed set.
var ErrBadTransition = errors.New("invalid payment state transition")

// transitions is the closed set of allowed payment-state moves.
var transitions = map[models.PaymentState][]models.PaymentState{
	models.StateUnpaid:            {models.StateProcessing, models.StatePayAtVenuePending, models.StateCancelled},
	models.StateProcessing:        {models.StatePaid, models.StatePartiallyPaid, models.StateFailed, models.StateCancelled},
	models.StatePartiallyPaid:     {models.StatePaid, models.StateCancelled, models.StateRefunded},
	models.StatePayAtVenuePending: {models.StatePaid, models.StateCancelled, models.StateRefunded},
	models.StatePaid:              {models.StateRefunded, models.StateCancelled},
	models.StateFailed:            {},
	models.StateCancelled:         {},
	models.StateRefunded:          {},
}

// CanTransition checks if a payment-state move is allowed.
func CanTransition(from, to models.PaymentState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Repository is the storage surface the machine needs.
type Repository interface {
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetVenue(ctx context.Context, id int64) (*models.Venue, error)
	SetMode(ctx context.Context, id, version int64, mode models.CommitmentMode, state models.PaymentState) error
	UpdateStateWithVersion(ctx context.Context, id, version int64, state models.PaymentState) error
	CaptureLedger(ctx context.Context, entry *models.LedgerEntry, reservationID, version int64, newCommitted int64, newState models.PaymentState) error
}

// Gateway is the external payment gateway contract.
type Gateway interface {
	CreateOrder(ctx context.Context, reservationID int64, req gateway.OrderRequest) (*gateway.Order, error)
	Verify(cb gateway.Callback) error
}

// EventBus publishes domain events.
type EventBus interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Machine is the payment commitment state machine.
type Machine struct {
	repo            Repository
	gateway         Gateway
	bus             EventBus
	platformDefault models.CommissionRule
	logger          *zerolog.Logger
}

// NewMachine creates a payment machine.
func NewMachine(repo Repository, gw Gateway, bus EventBus, platformDefault models.CommissionRule, logger *zerolog.Logger) *Machine {
	return &Machine{repo: repo, gateway: gw, bus: bus, platformDefault: platformDefault, logger: logger}
}

// AdvanceAmount splits a total under the venue's advance policy. With no
// policy configured the advance is the full total, equivalent to full
// mode. The remainder is derived by subtraction so the two always sum back
// to the total.
func AdvanceAmount(venue *models.Venue, total int64) (advance, remaining int64) {
	if venue.Advance == nil {
		return total, 0
	}
	switch venue.Advance.Kind {
	case models.AdvanceFlat:
		advance = int64(math.Round(venue.Advance.Value))
	default: // percentage
		advance = int64(math.Round(float64(total) * venue.Advance.Value / 100))
	}
	if advance > total {
		advance = total
	}
	if advance < 0 {
		advance = 0
	}
	return advance, total - advance
}

// Commit selects the commitment mode for an unpaid reservation.
//
// Ground commits the slot immediately with no gateway interaction and zero
// money moved; the operator collects in person. Full and advance create an
// external order and move the reservation to processing for the client-side
// handshake; any gateway failure lands the reservation in failed, never
// stuck in processing.
func (m *Machine) Commit(ctx context.Context, reservationID int64, mode models.CommitmentMode) (*gateway.Order, error) {
	reservation, err := m.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	venue, err := m.repo.GetVenue(ctx, reservation.VenueID)
	if err != nil {
		return nil, err
	}

	switch mode {
	case models.ModeGround:
		if !venue.AllowsPayAtVenue {
			return nil, ErrModeNotAllowed
		}
		if !CanTransition(reservation.PaymentState, models.StatePayAtVenuePending) {
			return nil, fmt.Errorf("%s -> %s: %w", reservation.PaymentState, models.StatePayAtVenuePending, ErrBadTransition)
		}
		if err := m.repo.SetMode(ctx, reservation.ID, reservation.Version, mode, models.StatePayAtVenuePending); err != nil {
			return nil, err
		}
		m.logger.Info().Int64("reservation_id", reservation.ID).Msg("pay-at-venue commitment")
		return nil, nil

	case models.ModeFull, models.ModeAdvance:
		amount := reservation.TotalAmount
		if mode == models.ModeAdvance {
			if !venue.AllowsAdvance {
				return nil, ErrModeNotAllowed
			}
			amount, _ = AdvanceAmount(venue, reservation.TotalAmount)
		}

		if !CanTransition(reservation.PaymentState, models.StateProcessing) {
			return nil, fmt.Errorf("%s -> %s: %w", reservation.PaymentState, models.StateProcessing, ErrBadTransition)
		}
		if err := m.repo.SetMode(ctx, reservation.ID, reservation.Version, mode, models.StateProcessing); err != nil {
			return nil, err
		}

		order, err := m.gateway.CreateOrder(ctx, reservation.ID, gateway.OrderRequest{
			Amount:      amount,
			TotalAmount: reservation.TotalAmount,
			VenueID:     reservation.VenueID,
			Date:        reservation.Date.Format("2006-01-02"),
			StartTime:   reservation.StartTime.Format("15:04"),
			EndTime:     reservation.EndTime.Format("15:04"),
			Duration:    reservation.Duration,
			IsAdvance:   mode == models.ModeAdvance,
			MatchID:     reservation.MatchID,
		})
		if err != nil {
			// The slot must not stay held by a handshake that never started.
			m.fail(ctx, reservation.ID, "gateway_unreachable")
			return nil, fmt.Errorf("create order: %w", err)
		}
		return order, nil

	default:
		return nil, fmt.Errorf("unknown commitment mode %q: %w", mode, ErrModeNotAllowed)
	}
}

// HandleCallback verifies a gateway callback server-side and, on success,
// records the capture: one ledger entry with the commission resolved and
// frozen at this instant, and the reservation moved to paid or
// partially_paid. Verification failure forces the reservation to failed
// and is never retried silently.
func (m *Machine) HandleCallback(ctx context.Context, cb gateway.Callback) error {
	reservation, err := m.repo.GetReservation(ctx, cb.ReservationID)
	if err != nil {
		return err
	}

	if err := m.gateway.Verify(cb); err != nil {
		m.fail(ctx, reservation.ID, "verification_failed")
		return err
	}

	venue, err := m.repo.GetVenue(ctx, reservation.VenueID)
	if err != nil {
		return err
	}

	captured := reservation.TotalAmount
	if cb.IsAdvance {
		captured, _ = AdvanceAmount(venue, reservation.TotalAmount)
	}

	newCommitted := reservation.AmountCommitted + captured
	newState := models.StatePartiallyPaid
	if newCommitted >= reservation.TotalAmount {
		newState = models.StatePaid
	}
	if !CanTransition(reservation.PaymentState, newState) {
		return fmt.Errorf("%s -> %s: %w", reservation.PaymentState, newState, ErrBadTransition)
	}

	entry := m.buildEntry(venue, reservation, captured, false)
	if err := m.repo.CaptureLedger(ctx, entry, reservation.ID, reservation.Version, newCommitted, newState); err != nil {
		return fmt.Errorf("capture ledger: %w", err)
	}

	metrics.IncPaymentCaptured(string(reservation.Mode))
	if m.bus != nil {
		_ = m.bus.PublishJSON(events.TypePaymentCaptured, entry)
	}
	m.logger.Info().
		Int64("reservation_id", reservation.ID).
		Int64("gross", entry.Gross).
		Int64("fee", entry.PlatformFee).
		Str("state", string(newState)).
		Msg("payment captured")
	return nil
}

// CollectRemainder records the at-venue remainder as a second ledger entry
// and completes the reservation. Used both for the advance remainder and
// for the full amount of a pay-at-venue reservation.
func (m *Machine) CollectRemainder(ctx context.Context, reservationID int64) error {
	reservation, err := m.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if !CanTransition(reservation.PaymentState, models.StatePaid) {
		return fmt.Errorf("%s -> %s: %w", reservation.PaymentState, models.StatePaid, ErrBadTransition)
	}

	remainder := reservation.TotalAmount - reservation.AmountCommitted
	if remainder <= 0 {
		return fmt.Errorf("reservation %d has no remainder to collect", reservationID)
	}

	venue, err := m.repo.GetVenue(ctx, reservation.VenueID)
	if err != nil {
		return err
	}

	entry := m.buildEntry(venue, reservation, remainder, true)
	if err := m.repo.CaptureLedger(ctx, entry, reservation.ID, reservation.Version, reservation.TotalAmount, models.StatePaid); err != nil {
		return fmt.Errorf("capture remainder: %w", err)
	}

	metrics.IncPaymentCaptured("remainder")
	if m.bus != nil {
		_ = m.bus.PublishJSON(events.TypePaymentCaptured, entry)
	}
	m.logger.Info().Int64("reservation_id", reservationID).Int64("gross", remainder).Msg("remainder collected at venue")
	return nil
}

func (m *Machine) buildEntry(venue *models.Venue, reservation *models.Reservation, gross int64, remainder bool) *models.LedgerEntry {
	rule := commission.Resolve(venue, m.platformDefault)
	fee, net := commission.Split(rule, gross)
	return &models.LedgerEntry{
		ReservationID:   reservation.ID,
		VenueID:         venue.ID,
		Gross:           gross,
		CommissionKind:  rule.Kind,
		CommissionValue: rule.Value,
		PlatformFee:     fee,
		VenueAmount:     net,
		Remainder:       remainder,
		Status:          models.LedgerPaid,
		RealizedAt:      time.Now(),
	}
}

func (m *Machine) fail(ctx context.Context, reservationID int64, reason string) {
	reservation, err := m.repo.GetReservation(ctx, reservationID)
	if err != nil {
		m.logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("load reservation for failure")
		return
	}
	if !CanTransition(reservation.PaymentState, models.StateFailed) {
		return
	}
	if err := m.repo.UpdateStateWithVersion(ctx, reservation.ID, reservation.Version, models.StateFailed); err != nil {
		m.logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("mark reservation failed")
		return
	}
	metrics.IncPaymentFailed(reason)
	if m.bus != nil {
		_ = m.bus.PublishJSON(events.TypePaymentFailed, map[string]interface{}{
			"reservation_id": reservationID,
			"reason":         reason,
		})
	}
	m.logger.Warn().Int64("reservation_id", reservationID).Str("reason", reason).Msg("payment failed, slot released")
}
