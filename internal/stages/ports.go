package stages

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead is the part of a lead the stage service reads and writes.
type Lead struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenantId"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Stage    string    `json:"stage"`
	// RawStage is the label as stored, set when it differs from Stage.
	RawStage        string         `json:"rawStage,omitempty"`
	Status          string         `json:"status"`
	AssignedAgentID *uuid.UUID     `json:"assignedAgentId,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

const (
	StatusClosed = "closed"

	MetadataRemovedFromFunnel = "removed_from_funnel"
	MetadataDeleted           = "is_deleted"
)

// RemovedFromFunnel reports whether the lead was taken off the funnel.
func (l Lead) RemovedFromFunnel() bool { return truthy(l.Metadata[MetadataRemovedFromFunnel]) }

// Deleted reports whether the lead is soft-deleted.
func (l Lead) Deleted() bool { return truthy(l.Metadata[MetadataDeleted]) }

// trueLiterals match what lead_stage_counts treats as a set flag.
var trueLiterals = map[string]bool{"t": true, "true": true, "y": true, "yes": true, "on": true, "1": true}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return trueLiterals[strings.ToLower(strings.TrimSpace(t))]
	case float64:
		return t == 1
	default:
		return false
	}
}

// LeadQuery is the part of the criteria the lead store applies itself.
type LeadQuery struct {
	TenantID            uuid.UUID
	IncludeClosedStatus bool
	AgentID             *uuid.UUID
}

// CountQuery selects the leads the aggregate collaborator counts.
type CountQuery struct {
	TenantID                 uuid.UUID
	IncludeClosedStatus      bool
	IncludeRemovedFromFunnel bool
	IncludeDeleted           bool
	AgentID                  *uuid.UUID
}

// LeadStore reads and writes leads within a tenant.
type LeadStore interface {
	ListLeads(ctx context.Context, q LeadQuery) ([]Lead, error)
	GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (Lead, error)
	UpdateLeadStage(ctx context.Context, tenantID, leadID uuid.UUID, stage string) error
}

// StageCounter is the server-side aggregate. It returns lead counts keyed
// by the raw stage label as stored.
type StageCounter interface {
	CountLeadsByRawStage(ctx context.Context, q CountQuery) (map[string]int, error)
}
