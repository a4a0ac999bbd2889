// Package repository is the pgx-backed lead store behind the stage service.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/internal/stages"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("lead not found")

var (
	_ stages.LeadStore    = (*Repository)(nil)
	_ stages.StageCounter = (*Repository)(nil)
)

type Repository struct {
	pool db.Querier
}

func New(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, tenant_id, name, email, phone, stage, status, assigned_agent_id, metadata, updated_at`

// ListLeads returns the tenant's leads ordered by last update. Stage,
// funnel-removal and soft-delete rules are applied by the caller.
func (r *Repository) ListLeads(ctx context.Context, q stages.LeadQuery) ([]stages.Lead, error) {
	sql, args := listQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]stages.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, lead)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list leads: %w", rows.Err())
	}
	return items, nil
}

func listQuery(q stages.LeadQuery) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT " + leadColumns + " FROM leads WHERE tenant_id = $1")
	args := []any{q.TenantID}
	if !q.IncludeClosedStatus {
		sb.WriteString(" AND lower(status) <> 'closed'")
	}
	if q.AgentID != nil {
		args = append(args, *q.AgentID)
		fmt.Fprintf(&sb, " AND assigned_agent_id = $%d", len(args))
	}
	sb.WriteString(" ORDER BY updated_at DESC, id ASC")
	return sb.String(), args
}

func (r *Repository) GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (stages.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 AND id = $2`, tenantID, leadID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return stages.Lead{}, apperr.NotFound(ErrNotFound.Error()).WithOp("leads.GetLead")
	}
	if err != nil {
		return stages.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// UpdateLeadStage stores the canonical stage label.
func (r *Repository) UpdateLeadStage(ctx context.Context, tenantID, leadID uuid.UUID, stage string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET stage = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, leadID, stage)
	if err != nil {
		return fmt.Errorf("update lead stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(ErrNotFound.Error()).WithOp("leads.UpdateLeadStage")
	}
	return nil
}

// CountLeadsByRawStage runs the lead_stage_counts aggregate. Keys are the
// stage labels as stored.
func (r *Repository) CountLeadsByRawStage(ctx context.Context, q stages.CountQuery) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT raw_stage, total FROM lead_stage_counts($1, $2, $3, $4, $5)`,
		q.TenantID, q.IncludeClosedStatus, q.IncludeRemovedFromFunnel, q.IncludeDeleted, q.AgentID)
	if err != nil {
		return nil, fmt.Errorf("count leads by stage: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			raw   string
			total int64
		)
		if err := rows.Scan(&raw, &total); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		counts[raw] += int(total)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("count leads by stage: %w", rows.Err())
	}
	return counts, nil
}

func scanLead(row pgx.Row) (stages.Lead, error) {
	var lead stages.Lead
	var metadata map[string]any
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.Name, &lead.Email, &lead.Phone,
		&lead.Stage, &lead.Status, &lead.AssignedAgentID, &metadata, &lead.UpdatedAt,
	)
	if err != nil {
		return stages.Lead{}, err
	}
	lead.Metadata = metadata
	return lead, nil
}
