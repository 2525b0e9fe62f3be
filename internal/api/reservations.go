package api

import (
	"errors"
	"net/http"
	"time"

	"courtbook/internal/booking"
	"courtbook/internal/database"
	"courtbook/internal/gateway"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/payment"
)

// CreateReservationRequest is the request body for POST /api/v1/reservations.
type CreateReservationRequest struct {
	VenueID   int64  `json:"venue_id"`
	UserID    int64  `json:"user_id"`
	Date      string `json:"date"`       // YYYY-MM-DD
	StartTime string `json:"start_time"` // HH:MM
	Duration  int    `json:"duration"`   // minutes
	MatchID   *int64 `json:"match_id,omitempty"`
}

// handleCreateReservation validates and writes an unpaid reservation.
// POST /api/v1/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_reservation")

	var req CreateReservationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.VenueID <= 0 || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "venue_id and user_id are required")
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.StartTime, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time format; expected HH:MM")
		return
	}

	reservation, err := s.booking.Create(r.Context(), booking.CreateRequest{
		VenueID:   req.VenueID,
		UserID:    req.UserID,
		Date:      date,
		StartTime: start,
		Duration:  req.Duration,
		MatchID:   req.MatchID,
	})
	if err != nil {
		s.writeReservationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

// handleCancelReservation releases a reservation's slot.
// POST /api/v1/reservations/{id}/cancel
func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_reservation")

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.booking.Cancel(r.Context(), id); err != nil {
		s.writeReservationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CommitRequest is the request body for POST /api/v1/reservations/{id}/commit.
type CommitRequest struct {
	Mode string `json:"mode"` // full, advance, ground
}

// CommitResponse carries the gateway order for the client-side checkout
// handshake. Order is null for pay-at-venue commitments.
type CommitResponse struct {
	ReservationID int64          `json:"reservation_id"`
	Mode          string         `json:"mode"`
	Order         *gateway.Order `json:"order,omitempty"`
}

// handleCommit selects the commitment mode for a reservation.
// POST /api/v1/reservations/{id}/commit
func (s *HTTPServer) handleCommit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("commit")

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req CommitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := s.machine.Commit(r.Context(), id, models.CommitmentMode(req.Mode))
	if err != nil {
		s.writeReservationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommitResponse{
		ReservationID: id,
		Mode:          req.Mode,
		Order:         order,
	})
}

// handleCollectRemainder records the at-venue remainder and completes the
// reservation.
// POST /api/v1/reservations/{id}/collect
func (s *HTTPServer) handleCollectRemainder(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("collect_remainder")

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.machine.CollectRemainder(r.Context(), id); err != nil {
		s.writeReservationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePaymentCallback verifies and records a gateway capture.
// POST /api/v1/payments/callback
func (s *HTTPServer) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_callback")

	var cb gateway.Callback
	if !decodeBody(w, r, &cb) {
		return
	}
	if cb.ReservationID <= 0 {
		writeError(w, http.StatusBadRequest, "reservation_id is required")
		return
	}

	if err := s.machine.HandleCallback(r.Context(), cb); err != nil {
		if errors.Is(err, gateway.ErrVerificationFailed) {
			writeError(w, http.StatusBadRequest, "signature verification failed")
			return
		}
		s.writeReservationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *HTTPServer) writeReservationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot taken; refresh availability and pick another slot")
	case errors.Is(err, booking.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrModeNotAllowed):
		writeError(w, http.StatusUnprocessableEntity, "commitment mode not offered by this venue")
	case errors.Is(err, payment.ErrBadTransition):
		writeError(w, http.StatusConflict, "payment state does not allow this operation")
	case errors.Is(err, database.ErrVersionConflict):
		writeError(w, http.StatusConflict, "reservation changed concurrently; reload and retry")
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Msg("reservation request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
