package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"courtbook/internal/availability"
	"courtbook/internal/database"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
)

// AvailabilityResponse is the response for GET /api/v1/venues/{id}/availability.
type AvailabilityResponse struct {
	VenueID  int64                   `json:"venue_id"`
	Date     string                  `json:"date"`
	Duration int                     `json:"duration"`
	Slots    []availability.SlotInfo `json:"slots"`
	// Durations lists the bookable durations from the requested start,
	// present only when a start parameter is given.
	Durations []int `json:"durations,omitempty"`
	Cached    bool  `json:"cached"`
}

// handleAvailability returns candidate start ticks for a venue and date.
// GET /api/v1/venues/{id}/availability?date=YYYY-MM-DD&duration=60[&start=HH:MM]
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return
	}

	duration := 60
	if d := r.URL.Query().Get("duration"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid duration; expected positive minutes")
			return
		}
		duration = n
	}

	dateStr := date.Format("2006-01-02")
	resp := AvailabilityResponse{VenueID: venueID, Date: dateStr, Duration: duration}

	if cached, hit := s.cache.Get(r.Context(), venueID, dateStr, duration); hit {
		resp.Slots = cached
		resp.Cached = true
		writeJSON(w, http.StatusOK, resp)
		return
	}

	slots, err := s.booking.Availability(r.Context(), venueID, date, duration)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp.Slots = availability.ToSlotInfo(slots)
	s.cache.Set(r.Context(), venueID, dateStr, duration, resp.Slots)

	if startStr := r.URL.Query().Get("start"); startStr != "" {
		start, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+startStr, date.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start; expected HH:MM")
			return
		}
		venue, err := s.store.GetVenue(r.Context(), venueID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resp.Durations = availability.DurationOptions(slots, start, venue.Granularity())
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDayView returns the amount-free day read model for external
// collaborators.
// GET /api/v1/venues/{id}/day?date=YYYY-MM-DD
func (s *HTTPServer) handleDayView(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("day_view")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return
	}

	views, err := s.booking.DayView(r.Context(), venueID, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": views})
}

// SetHoursRequest is the request body for PUT /api/v1/venues/{id}/hours.
type SetHoursRequest struct {
	Hours map[int]models.DayHours `json:"hours"` // 1=Monday .. 7=Sunday
}

func (s *HTTPServer) handleSetHours(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_hours")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SetHoursRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Hours) == 0 {
		writeError(w, http.StatusBadRequest, "hours is required")
		return
	}
	for day := range req.Hours {
		if day < 1 || day > 7 {
			writeError(w, http.StatusBadRequest, "day_of_week must be 1..7")
			return
		}
	}

	for day, h := range req.Hours {
		if err := s.store.SetVenueHours(r.Context(), venueID, day, h); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetCommissionRequest is the request body for PUT /api/v1/venues/{id}/commission.
// A null rule clears the override back to the platform default.
type SetCommissionRequest struct {
	Rule *models.CommissionRule `json:"rule"`
}

func (s *HTTPServer) handleSetCommission(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_commission")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SetCommissionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Rule != nil {
		switch req.Rule.Kind {
		case models.CommissionPercentage, models.CommissionFlat:
		default:
			writeError(w, http.StatusBadRequest, "kind must be percentage or flat")
			return
		}
		if req.Rule.Value < 0 {
			writeError(w, http.StatusBadRequest, "value must not be negative")
			return
		}
	}

	if err := s.store.UpdateVenueCommission(r.Context(), venueID, req.Rule); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetAdvanceRequest is the request body for PUT /api/v1/venues/{id}/advance.
type SetAdvanceRequest struct {
	Policy           *models.AdvancePolicy `json:"policy"`
	AllowsAdvance    bool                  `json:"allows_advance"`
	AllowsPayAtVenue bool                  `json:"allows_pay_at_venue"`
}

func (s *HTTPServer) handleSetAdvance(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_advance")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SetAdvanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Policy != nil {
		switch req.Policy.Kind {
		case models.AdvancePercentage, models.AdvanceFlat:
		default:
			writeError(w, http.StatusBadRequest, "kind must be percentage or flat")
			return
		}
		if req.Policy.Value < 0 {
			writeError(w, http.StatusBadRequest, "value must not be negative")
			return
		}
	}

	if err := s.store.UpdateVenueAdvance(r.Context(), venueID, req.Policy, req.AllowsAdvance, req.AllowsPayAtVenue); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return time.Time{}, false
	}
	date, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" format; expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
