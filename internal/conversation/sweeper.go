package conversation

import (
	"context"
	"time"

	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"

	"github.com/jonboulle/clockwork"
)

const (
	defaultRetention     = 30 * 24 * time.Hour
	defaultSweepInterval = time.Hour
	defaultSweepDelay    = 30 * time.Second
)

// Sweeper periodically purges idle conversations.
type Sweeper struct {
	store     *Store
	clock     clockwork.Clock
	log       *logger.Logger
	retention time.Duration
	interval  time.Duration
	delay     time.Duration
}

func NewSweeper(store *Store, clock clockwork.Clock, log *logger.Logger, retention, interval, delay time.Duration) *Sweeper {
	if retention <= 0 {
		retention = defaultRetention
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if delay < 0 {
		delay = defaultSweepDelay
	}
	return &Sweeper{
		store:     store,
		clock:     clock,
		log:       log,
		retention: retention,
		interval:  interval,
		delay:     delay,
	}
}

// Run sweeps once after the startup delay and then on every interval
// until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.delay):
		}
	}
	s.SweepOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single retention pass and returns the number of
// conversations removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.retention)
	if err != nil {
		s.log.Warn("conversation sweep failed", "error", err)
	}
	if removed > 0 {
		metrics.ConversationsSweptTotal.Add(float64(removed))
		s.log.Info("conversation sweep removed idle conversations", "removed", removed)
	}
	return removed
}
