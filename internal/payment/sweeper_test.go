package payment

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeExpirer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	expired int64
	err     error
}

func (f *fakeExpirer) ExpireStuckProcessing(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.expired, f.err
}

func (f *fakeExpirer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestSweepOnceUsesTimeoutCutoff(t *testing.T) {
	logger := zerolog.New(io.Discard)
	repo := &fakeExpirer{expired: 2}
	s := NewSweeper(repo, 20*time.Minute, time.Hour, &logger)

	before := time.Now().Add(-20 * time.Minute)
	s.SweepOnce(context.Background())
	after := time.Now().Add(-20 * time.Minute)

	assert.Equal(t, 1, repo.calls())
	cutoff := repo.cutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestSweepOnceSurvivesRepoError(t *testing.T) {
	logger := zerolog.New(io.Discard)
	repo := &fakeExpirer{err: errors.New("db down")}
	s := NewSweeper(repo, 20*time.Minute, time.Hour, &logger)

	s.SweepOnce(context.Background())
	s.SweepOnce(context.Background())
	assert.Equal(t, 2, repo.calls())
}

func TestSweeperStartStop(t *testing.T) {
	logger := zerolog.New(io.Discard)
	repo := &fakeExpirer{}
	s := NewSweeper(repo, time.Minute, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	// Starting twice is a no-op.
	s.Start(ctx)

	assert.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	// Stopping twice is safe.
	s.Stop()
}

func TestSweeperDefaults(t *testing.T) {
	logger := zerolog.New(io.Discard)
	s := NewSweeper(&fakeExpirer{}, 0, 0, &logger)
	assert.Equal(t, 20*time.Minute, s.timeout)
	assert.Equal(t, 5*time.Minute, s.interval)
}
