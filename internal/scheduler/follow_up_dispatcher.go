package scheduler

import (
	"context"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/jonboulle/clockwork"
)

const (
	defaultDispatchInterval = 2 * time.Second
	dispatchBatchSize       = 50
)

type followUpEnqueuer interface {
	EnqueueFollowUp(ctx context.Context, payload LeadFollowUpPayload, runAt time.Time) error
}

// FollowUpDispatcher hands pending follow-ups to the task queue.
type FollowUpDispatcher struct {
	client   followUpEnqueuer
	repo     followUpStore
	clock    clockwork.Clock
	log      *logger.Logger
	interval time.Duration
}

func NewFollowUpDispatcher(client *Client, repo *FollowUpRepository, clock clockwork.Clock, log *logger.Logger) *FollowUpDispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := &FollowUpDispatcher{
		clock:    clock,
		log:      log,
		interval: defaultDispatchInterval,
	}
	if client != nil {
		d.client = client
	}
	if repo != nil {
		d.repo = repo
	}
	return d
}

func (d *FollowUpDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		d.DispatchOnce(ctx)
	}
}

// DispatchOnce claims one batch and enqueues it. It returns how many
// follow-ups were handed to the queue.
func (d *FollowUpDispatcher) DispatchOnce(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, dispatchBatchSize)
	if err != nil {
		d.log.Warn("follow-up claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		payload := LeadFollowUpPayload{
			FollowUpID: rec.ID.String(),
			TenantID:   rec.TenantID.String(),
			LeadID:     rec.LeadID.String(),
			Reason:     rec.Reason,
		}
		if rec.AppointmentID != nil {
			payload.AppointmentID = rec.AppointmentID.String()
		}

		if err := d.client.EnqueueFollowUp(ctx, payload, rec.DueAt); err != nil {
			msg := err.Error()
			if markErr := d.repo.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.Warn("follow-up could not be returned to pending", "follow_up_id", rec.ID.String(), "error", markErr)
			}
			d.log.SideEffectFailed("follow_up_enqueue", err, "follow_up_id", rec.ID.String())
			continue
		}
		enqueued++
	}
	return enqueued
}
