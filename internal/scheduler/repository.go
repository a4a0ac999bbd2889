package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/platform/db"

	"github.com/google/uuid"
)

const (
	FollowUpPending  = "pending"
	FollowUpEnqueued = "enqueued"
	FollowUpDue      = "due"
)

// FollowUp is one scheduled follow-up on a lead.
type FollowUp struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	LeadID        uuid.UUID
	AppointmentID *uuid.UUID
	Reason        string
	DueAt         time.Time
	Status        string
}

// FollowUpRepository persists follow-ups in lead_follow_ups.
type FollowUpRepository struct {
	pool db.Querier
}

func NewFollowUpRepository(pool db.Querier) *FollowUpRepository {
	return &FollowUpRepository{pool: pool}
}

func (r *FollowUpRepository) Create(ctx context.Context, f FollowUp) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_follow_ups (id, tenant_id, lead_id, appointment_id, reason, due_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.TenantID, f.LeadID, f.AppointmentID, f.Reason, f.DueAt, FollowUpPending)
	if err != nil {
		return fmt.Errorf("create follow-up: %w", err)
	}
	return nil
}

// ClaimPending moves up to limit pending follow-ups to enqueued and returns
// them. Concurrent dispatchers never claim the same row.
func (r *FollowUpRepository) ClaimPending(ctx context.Context, limit int) ([]FollowUp, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE lead_follow_ups SET status = $2, updated_at = now()
		WHERE id IN (
			SELECT id FROM lead_follow_ups
			WHERE status = $1
			ORDER BY due_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, lead_id, appointment_id, reason, due_at, status
	`, FollowUpPending, FollowUpEnqueued, limit)
	if err != nil {
		return nil, fmt.Errorf("claim follow-ups: %w", err)
	}
	defer rows.Close()

	items := make([]FollowUp, 0)
	for rows.Next() {
		var f FollowUp
		if err := rows.Scan(&f.ID, &f.TenantID, &f.LeadID, &f.AppointmentID, &f.Reason, &f.DueAt, &f.Status); err != nil {
			return nil, fmt.Errorf("scan follow-up: %w", err)
		}
		items = append(items, f)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("claim follow-ups: %w", rows.Err())
	}
	return items, nil
}

// MarkPending returns a claimed follow-up to pending, recording why.
func (r *FollowUpRepository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_follow_ups SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1
	`, id, FollowUpPending, lastError)
	if err != nil {
		return fmt.Errorf("mark follow-up pending: %w", err)
	}
	return nil
}

// MarkDue flags the follow-up as due. It reports false when the follow-up
// was already processed or does not exist.
func (r *FollowUpRepository) MarkDue(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_follow_ups SET status = $3, processed_at = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status <> $3
	`, tenantID, id, FollowUpDue, at)
	if err != nil {
		return false, fmt.Errorf("mark follow-up due: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteProcessedBefore removes follow-ups processed before the cutoff.
func (r *FollowUpRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM lead_follow_ups WHERE status = $1 AND processed_at < $2
	`, FollowUpDue, before)
	if err != nil {
		return 0, fmt.Errorf("delete processed follow-ups: %w", err)
	}
	return tag.RowsAffected(), nil
}
