package scheduler

import (
	"context"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/jonboulle/clockwork"
)

const (
	defaultFollowUpCleanupInterval = time.Hour
	defaultProcessedRetention      = 30 * 24 * time.Hour
)

// FollowUpCleanup periodically removes processed follow-ups.
type FollowUpCleanup struct {
	repo      followUpStore
	clock     clockwork.Clock
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewFollowUpCleanup(repo *FollowUpRepository, clock clockwork.Clock, log *logger.Logger, interval, retention time.Duration) *FollowUpCleanup {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = defaultFollowUpCleanupInterval
	}
	if retention <= 0 {
		retention = defaultProcessedRetention
	}

	c := &FollowUpCleanup{
		clock:     clock,
		log:       log,
		interval:  interval,
		retention: retention,
	}
	if repo != nil {
		c.repo = repo
	}
	return c
}

func (c *FollowUpCleanup) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.cleanup(ctx)
		}
	}
}

func (c *FollowUpCleanup) cleanup(ctx context.Context) {
	deleted, err := c.repo.DeleteProcessedBefore(ctx, c.clock.Now().Add(-c.retention))
	if err != nil {
		c.log.Warn("follow-up cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("follow-up cleanup deleted processed follow-ups", "deleted", deleted)
	}
}
