// Package service books appointments for the conversation flow and issues
// their verification codes.
package service

import (
	"context"
	"strings"
	"time"

	"leadflow_backend/internal/appointments/repository"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	dateFormat = "2006-01-02"

	// DefaultCodeTTL is how long a verification code is accepted.
	DefaultCodeTTL = 48 * time.Hour
)

// Repository is the persistence the service needs.
type Repository interface {
	Create(ctx context.Context, p repository.CreateParams) (repository.Appointment, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (repository.Appointment, error)
	SetVerification(ctx context.Context, tenantID, id uuid.UUID, codeHash string, sentAt time.Time) error
	MarkVerified(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
	ListBooked(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]repository.BookedSlot, error)
}

var (
	_ ports.AppointmentCreator = (*Service)(nil)
	_ ports.VerificationIssuer = (*Service)(nil)
	_ ports.AvailabilityReader = (*Service)(nil)
)

// Service provides business logic for appointments
type Service struct {
	repo    Repository
	sender  email.Sender
	clock   clockwork.Clock
	log     *logger.Logger
	codeTTL time.Duration
}

// New creates a new appointments service
func New(repo Repository, sender email.Sender, clock clockwork.Clock, log *logger.Logger) *Service {
	if sender == nil {
		sender = email.NoopSender{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, sender: sender, clock: clock, log: log, codeTTL: DefaultCodeTTL}
}

// CreateAppointment books the slot. A slot already taken by another active
// appointment yields a conflict error.
func (s *Service) CreateAppointment(ctx context.Context, req ports.AppointmentRequest) (uuid.UUID, error) {
	slot := strings.TrimSpace(req.TimeSlot)
	if req.TenantID == uuid.Nil || req.LeadID == uuid.Nil {
		return uuid.Nil, apperr.Validation("tenant and lead are required")
	}
	if req.Date.IsZero() || slot == "" {
		return uuid.Nil, apperr.Validation("date and time slot are required")
	}

	appt, err := s.repo.Create(ctx, repository.CreateParams{
		TenantID:     req.TenantID,
		LeadID:       req.LeadID,
		Date:         req.Date,
		TimeSlot:     slot,
		ContactName:  sanitize.Name(req.ContactName),
		ContactEmail: strings.ToLower(strings.TrimSpace(req.ContactEmail)),
		ContactPhone: phone.NormalizeE164(req.ContactPhone),
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.log.Info("appointment booked",
		"appointment_id", appt.ID.String(),
		"lead_id", req.LeadID.String(),
		"date", req.Date.Format(dateFormat),
		"slot", slot,
	)
	return appt.ID, nil
}

// Get returns one appointment of the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (repository.Appointment, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// BookedSlots groups the active bookings between from and to by date.
func (s *Service) BookedSlots(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (map[string][]string, error) {
	booked, err := s.repo.ListBooked(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, b := range booked {
		day := b.Date.Format(dateFormat)
		out[day] = append(out[day], strings.TrimSpace(b.TimeSlot))
	}
	return out, nil
}
