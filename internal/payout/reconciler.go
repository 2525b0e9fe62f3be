// Package payout aggregates realized venue payables into settlement
// batches and tracks the outstanding balance per venue.
package payout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
)

// Repository is the storage surface the reconciler needs.
type Repository interface {
	ListActiveVenues(ctx context.Context) ([]models.Venue, error)
	SumLedgerForVenue(ctx context.Context, venueID int64, start, end time.Time) (gross, fees, net int64, err error)
	SumPaidOut(ctx context.Context, venueID int64) (int64, error)
	CreatePayoutBatch(ctx context.Context, b *models.PayoutBatch) error
	MarkPayoutPaid(ctx context.Context, batchID int64, externalRef string, settledAt time.Time) error
}

// EventBus publishes domain events.
type EventBus interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Reconciler computes venue payables and drives payout batches.
// Reconciliation is serialized per venue: two runs for the same venue
// never interleave, so a batch is never double-counted.
type Reconciler struct {
	repo   Repository
	bus    EventBus
	logger *zerolog.Logger

	mu              sync.Mutex
	venueLocks      map[int64]*sync.Mutex
	lastOutstanding map[int64]int64
}

// NewReconciler creates a reconciler.
func NewReconciler(repo Repository, bus EventBus, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:            repo,
		bus:             bus,
		logger:          logger,
		venueLocks:      make(map[int64]*sync.Mutex),
		lastOutstanding: make(map[int64]int64),
	}
}

func (r *Reconciler) lockFor(venueID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.venueLocks[venueID]
	if !ok {
		l = &sync.Mutex{}
		r.venueLocks[venueID] = l
	}
	return l
}

// Reconcile sums paid ledger entries for the venue within [start, end) and
// paid-out batches of any period, and reports the outstanding balance.
// A growing outstanding signals a payout-pipeline failure: it is reported
// via log and gauge, never auto-corrected.
func (r *Reconciler) Reconcile(ctx context.Context, venueID int64, start, end time.Time) (*models.Summary, error) {
	lock := r.lockFor(venueID)
	lock.Lock()
	defer lock.Unlock()

	gross, fees, net, err := r.repo.SumLedgerForVenue(ctx, venueID, start, end)
	if err != nil {
		return nil, fmt.Errorf("reconcile venue %d: %w", venueID, err)
	}
	paidOut, err := r.repo.SumPaidOut(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("reconcile venue %d: %w", venueID, err)
	}

	summary := &models.Summary{
		VenueID:        venueID,
		PeriodStart:    start,
		PeriodEnd:      end,
		GrossRevenue:   gross,
		PlatformFees:   fees,
		VenuePayable:   net,
		AlreadyPaidOut: paidOut,
		Outstanding:    net - paidOut,
	}

	metrics.SetPayoutOutstanding(venueID, summary.Outstanding)

	r.mu.Lock()
	previous, seen := r.lastOutstanding[venueID]
	r.lastOutstanding[venueID] = summary.Outstanding
	r.mu.Unlock()

	if seen && summary.Outstanding > previous && summary.Outstanding > 0 {
		r.logger.Warn().
			Int64("venue_id", venueID).
			Int64("outstanding", summary.Outstanding).
			Int64("previous", previous).
			Msg("outstanding balance growing; payout pipeline may be stalled")
	}

	return summary, nil
}

// CreateBatch aggregates the period into a pending payout batch. Venues
// with nothing payable in the period are skipped.
func (r *Reconciler) CreateBatch(ctx context.Context, venueID int64, start, end time.Time) (*models.PayoutBatch, error) {
	lock := r.lockFor(venueID)
	lock.Lock()
	defer lock.Unlock()

	gross, fees, net, err := r.repo.SumLedgerForVenue(ctx, venueID, start, end)
	if err != nil {
		return nil, fmt.Errorf("batch venue %d: %w", venueID, err)
	}
	if net == 0 && gross == 0 {
		return nil, nil
	}

	batch := &models.PayoutBatch{
		VenueID:     venueID,
		PeriodStart: start,
		PeriodEnd:   end,
		Gross:       gross,
		Fees:        fees,
		Net:         net,
		Status:      models.PayoutPending,
	}
	if err := r.repo.CreatePayoutBatch(ctx, batch); err != nil {
		return nil, err
	}

	r.logger.Info().
		Int64("venue_id", venueID).
		Int64("batch_id", batch.ID).
		Int64("net", net).
		Time("period_start", start).
		Msg("payout batch created")
	return batch, nil
}

// Settle marks a batch paid with an external transfer reference and
// publishes the settlement event.
func (r *Reconciler) Settle(ctx context.Context, batch *models.PayoutBatch, externalRef string) error {
	if externalRef == "" {
		externalRef = uuid.NewString()
	}
	now := time.Now()
	if err := r.repo.MarkPayoutPaid(ctx, batch.ID, externalRef, now); err != nil {
		return err
	}
	batch.Status = models.PayoutPaid
	batch.ExternalRef = externalRef
	batch.SettledAt = &now

	if r.bus != nil {
		_ = r.bus.PublishJSON(events.TypePayoutSettled, batch)
	}
	r.logger.Info().Int64("batch_id", batch.ID).Str("external_ref", externalRef).Msg("payout settled")
	return nil
}
