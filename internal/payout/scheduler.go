package payout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SchedulerConfig holds configuration for the payout scheduler.
type SchedulerConfig struct {
	// Timezone for scheduling (e.g., "Asia/Kolkata").
	Timezone string
	// DailyHour is the hour (0-23) when the batch run happens.
	DailyHour int
	// DailyMinute is the minute (0-59) when the batch run happens.
	DailyMinute int
	// CheckInterval is how often to check if it's time to run.
	CheckInterval time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:      "Asia/Kolkata",
		DailyHour:     2,
		DailyMinute:   0,
		CheckInterval: 1 * time.Minute,
	}
}

// Scheduler creates payout batches on venue payout frequencies: weekly
// venues get a batch for the previous ISO week each Monday, monthly venues
// for the previous month on the 1st. The booking flow never creates
// batches.
type Scheduler struct {
	config      SchedulerConfig
	reconciler  *Reconciler
	repo        Repository
	location    *time.Location
	logger      *zerolog.Logger
	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of last run
	running     bool
	stopCh      chan struct{}
}

// NewScheduler creates a payout scheduler.
func NewScheduler(config SchedulerConfig, reconciler *Reconciler, repo Repository, logger *zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, err
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 1 * time.Minute
	}
	return &Scheduler{
		config:     config,
		reconciler: reconciler,
		repo:       repo,
		location:   loc,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Str("timezone", s.config.Timezone).
		Int("hour", s.config.DailyHour).
		Int("minute", s.config.DailyMinute).
		Msg("payout scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

func (s *Scheduler) checkAndRun(ctx context.Context) {
	now := time.Now().In(s.location)
	today := now.Format("2006-01-02")

	s.mu.Lock()
	alreadyRan := s.lastRunDate == today
	s.mu.Unlock()

	if alreadyRan {
		return
	}
	if now.Hour() != s.config.DailyHour || now.Minute() != s.config.DailyMinute {
		return
	}

	s.mu.Lock()
	s.lastRunDate = today
	s.mu.Unlock()

	s.RunNow(ctx)
}

// RunNow creates batches for every venue whose payout frequency is due
// today.
func (s *Scheduler) RunNow(ctx context.Context) {
	now := time.Now().In(s.location)

	venues, err := s.repo.ListActiveVenues(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list venues for payout run")
		return
	}

	created := 0
	for _, v := range venues {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start, end, due := periodFor(v.PayoutFrequency, now)
		if !due {
			continue
		}
		batch, err := s.reconciler.CreateBatch(ctx, v.ID, start, end)
		if err != nil {
			s.logger.Error().Err(err).Int64("venue_id", v.ID).Msg("create payout batch")
			continue
		}
		if batch != nil {
			created++
		}

		// Refresh the outstanding gauge alongside batch creation.
		if _, err := s.reconciler.Reconcile(ctx, v.ID, start, end); err != nil {
			s.logger.Error().Err(err).Int64("venue_id", v.ID).Msg("reconcile after batch run")
		}
	}

	s.logger.Info().Int("batches", created).Msg("payout run completed")
}

// periodFor returns the half-open settlement period preceding now for a
// payout frequency, and whether a batch is due today.
func periodFor(frequency string, now time.Time) (start, end time.Time, due bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch frequency {
	case "monthly":
		if now.Day() != 1 {
			return time.Time{}, time.Time{}, false
		}
		end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		start = end.AddDate(0, -1, 0)
		return start, end, true
	default: // weekly
		if now.Weekday() != time.Monday {
			return time.Time{}, time.Time{}, false
		}
		end = today
		start = end.AddDate(0, 0, -7)
		return start, end, true
	}
}
