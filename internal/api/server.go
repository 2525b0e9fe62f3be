// Package api is the HTTP surface of the reservation engine.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"courtbook/internal/booking"
	"courtbook/internal/cache"
	"courtbook/internal/models"
	"courtbook/internal/payment"
	"courtbook/internal/payout"
)

// Store is the direct storage surface the handlers need beyond the
// domain services.
type Store interface {
	GetVenue(ctx context.Context, id int64) (*models.Venue, error)
	SetVenueHours(ctx context.Context, venueID int64, day int, h models.DayHours) error
	UpdateVenueCommission(ctx context.Context, venueID int64, rule *models.CommissionRule) error
	UpdateVenueAdvance(ctx context.Context, venueID int64, policy *models.AdvancePolicy, allowsAdvance, allowsPayAtVenue bool) error
	LedgerEntriesForVenue(ctx context.Context, venueID int64, start, end time.Time) ([]models.LedgerEntry, error)
	ListPayoutBatches(ctx context.Context, venueID int64) ([]models.PayoutBatch, error)
}

// HTTPServer serves the reservation API.
type HTTPServer struct {
	booking    *booking.Service
	machine    *payment.Machine
	reconciler *payout.Reconciler
	store      Store
	cache      *cache.AvailabilityCache
	apiKey     string
	limiter    *rate.Limiter
	logger     *zerolog.Logger
	server     *http.Server
}

// Config holds HTTP server settings.
type Config struct {
	Port              int
	APIKey            string
	RequestsPerSecond float64
	Burst             int
}

// NewHTTPServer wires the handlers and middleware.
func NewHTTPServer(cfg Config, bookingSvc *booking.Service, machine *payment.Machine, reconciler *payout.Reconciler, store Store, availCache *cache.AvailabilityCache, logger *zerolog.Logger) *HTTPServer {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}

	s := &HTTPServer{
		booking:    bookingSvc,
		machine:    machine,
		reconciler: reconciler,
		store:      store,
		cache:      availCache,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/venues/{id}/availability", s.handleAvailability)
	mux.HandleFunc("GET /api/v1/venues/{id}/day", s.handleDayView)
	mux.HandleFunc("PUT /api/v1/venues/{id}/hours", s.handleSetHours)
	mux.HandleFunc("PUT /api/v1/venues/{id}/commission", s.handleSetCommission)
	mux.HandleFunc("PUT /api/v1/venues/{id}/advance", s.handleSetAdvance)
	mux.HandleFunc("GET /api/v1/venues/{id}/payouts", s.handlePayoutSummary)
	mux.HandleFunc("POST /api/v1/venues/{id}/payouts/{batch}/settle", s.handleSettlePayout)
	mux.HandleFunc("GET /api/v1/venues/{id}/statement", s.handleStatement)
	mux.HandleFunc("POST /api/v1/reservations", s.handleCreateReservation)
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", s.handleCancelReservation)
	mux.HandleFunc("POST /api/v1/reservations/{id}/commit", s.handleCommit)
	mux.HandleFunc("POST /api/v1/reservations/{id}/collect", s.handleCollectRemainder)
	mux.HandleFunc("POST /api/v1/payments/callback", s.handlePaymentCallback)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.middleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the wrapped handler for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
