package scheduler

import (
	"context"
	"time"

	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

type followUpStore interface {
	Create(ctx context.Context, f FollowUp) error
	ClaimPending(ctx context.Context, limit int) ([]FollowUp, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
	MarkDue(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (bool, error)
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

var _ followUpStore = (*FollowUpRepository)(nil)

// FollowUps records follow-ups for the dispatcher to hand to the queue.
type FollowUps struct {
	repo followUpStore
}

var _ ports.FollowUpScheduler = (*FollowUps)(nil)

func NewFollowUps(repo *FollowUpRepository) *FollowUps {
	return &FollowUps{repo: repo}
}

func (f *FollowUps) ScheduleFollowUp(ctx context.Context, req ports.FollowUpRequest) error {
	if req.TenantID == uuid.Nil || req.LeadID == uuid.Nil {
		return apperr.Validation("tenant and lead are required")
	}
	if req.DueAt.IsZero() {
		return apperr.Validation("follow-up due time is required")
	}

	followUp := FollowUp{
		ID:       uuid.New(),
		TenantID: req.TenantID,
		LeadID:   req.LeadID,
		Reason:   req.Reason,
		DueAt:    req.DueAt,
		Status:   FollowUpPending,
	}
	if req.AppointmentID != uuid.Nil {
		appointmentID := req.AppointmentID
		followUp.AppointmentID = &appointmentID
	}
	if err := f.repo.Create(ctx, followUp); err != nil {
		return apperr.Unavailable("follow-up could not be recorded", err).WithOp("scheduler.ScheduleFollowUp")
	}
	return nil
}
