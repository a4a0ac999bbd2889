// Package ports defines the collaborators the flow step handlers need from
// the rest of the system. Implementations are wired in cmd/api/main.go, so
// handlers never import other domains.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StageUpdater moves a lead to another pipeline stage.
type StageUpdater interface {
	UpdateLeadStage(ctx context.Context, tenantID, leadID uuid.UUID, stage, source string) error
}

// AppointmentRequest carries what the appointment collaborator needs.
type AppointmentRequest struct {
	TenantID     uuid.UUID
	LeadID       uuid.UUID
	Date         time.Time
	TimeSlot     string
	ContactName  string
	ContactEmail string
	ContactPhone string
}

// AppointmentCreator books appointments.
type AppointmentCreator interface {
	CreateAppointment(ctx context.Context, req AppointmentRequest) (uuid.UUID, error)
}

// AvailabilityReader reports which slots are already taken.
type AvailabilityReader interface {
	// BookedSlots maps each date (2006-01-02) between from and to, both
	// inclusive, to the time slots held on it.
	BookedSlots(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (map[string][]string, error)
}

// FollowUpRequest schedules a follow-up on a lead.
type FollowUpRequest struct {
	TenantID      uuid.UUID
	LeadID        uuid.UUID
	AppointmentID uuid.UUID
	Reason        string
	DueAt         time.Time
}

// FollowUpScheduler enqueues a follow-up task.
type FollowUpScheduler interface {
	ScheduleFollowUp(ctx context.Context, req FollowUpRequest) error
}

// VerificationRequest asks for an appointment verification code to be
// generated and emailed.
type VerificationRequest struct {
	TenantID      uuid.UUID
	LeadID        uuid.UUID
	AppointmentID uuid.UUID
	ContactName   string
	ContactEmail  string
	Date          time.Time
	TimeSlot      string
}

// VerificationIssuer generates and sends a verification code with QR.
type VerificationIssuer interface {
	IssueVerification(ctx context.Context, req VerificationRequest) error
}

// CatalogType distinguishes products from services.
type CatalogType string

const (
	CatalogProducts CatalogType = "product"
	CatalogServices CatalogType = "service"
)

// CatalogQuery is a paged catalog lookup.
type CatalogQuery struct {
	TenantID    uuid.UUID
	Type        CatalogType
	Category    string
	MinPrice    *int64
	MaxPrice    *int64
	InStockOnly bool
	SortBy      string
	Page        int
	PageSize    int
}

// CatalogItem is one catalog entry as the conversation shows it.
type CatalogItem struct {
	ID          string
	Name        string
	Description string
	Category    string
	PriceCents  int64
	InStock     bool
	ImageURL    string
}

// CatalogReader lists catalog items.
type CatalogReader interface {
	ListCatalog(ctx context.Context, q CatalogQuery) ([]CatalogItem, error)
}
