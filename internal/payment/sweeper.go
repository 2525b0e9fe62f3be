package payment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/metrics"
)

// Expirer fails reservations stuck in processing since before a cutoff.
type Expirer interface {
	ExpireStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper actively expires abandoned gateway handshakes so a stuck
// processing reservation cannot hold its slot forever. Pay-at-venue
// reservations are untouched: they block until the operator confirms or
// cancels.
type Sweeper struct {
	repo     Expirer
	timeout  time.Duration
	interval time.Duration
	logger   *zerolog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper.
func NewSweeper(repo Expirer, timeout, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		repo:     repo,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().
		Dur("timeout", s.timeout).
		Dur("interval", s.interval).
		Msg("processing sweeper started")
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single expiry pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.timeout)
	expired, err := s.repo.ExpireStuckProcessing(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("processing sweep failed")
		return
	}
	if expired > 0 {
		for i := int64(0); i < expired; i++ {
			metrics.IncProcessingExpired()
		}
		s.logger.Warn().Int64("expired", expired).Msg("expired stuck processing reservations")
	}
}
