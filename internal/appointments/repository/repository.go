package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	opCreate          = "appointments.Create"
	opGet             = "appointments.Get"
	opSetVerification = "appointments.SetVerification"
	opMarkVerified    = "appointments.MarkVerified"

	errAppointmentNotFound = "appointment not found"
	errSlotTaken           = "time slot already booked"

	uniqueViolation = "23505"
)

const (
	StatusScheduled = "scheduled"
	StatusVerified  = "verified"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	LeadID               uuid.UUID
	Date                 time.Time
	TimeSlot             string
	ContactName          string
	ContactEmail         string
	ContactPhone         string
	Status               string
	VerificationCodeHash *string
	VerificationSentAt   *time.Time
	VerifiedAt           *time.Time
	CreatedAt            time.Time
}

type CreateParams struct {
	TenantID     uuid.UUID
	LeadID       uuid.UUID
	Date         time.Time
	TimeSlot     string
	ContactName  string
	ContactEmail string
	ContactPhone string
}

type Repository struct {
	pool db.Querier
}

func New(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

const appointmentColumns = `id, tenant_id, lead_id, appointment_date, time_slot, contact_name, contact_email, contact_phone,
	status, verification_code_hash, verification_sent_at, verified_at, created_at`

func (r *Repository) Create(ctx context.Context, p CreateParams) (Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, tenant_id, lead_id, appointment_date, time_slot, contact_name, contact_email, contact_phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+appointmentColumns,
		uuid.New(), p.TenantID, p.LeadID, p.Date, p.TimeSlot, p.ContactName, p.ContactEmail, p.ContactPhone, StatusScheduled,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Appointment{}, apperr.Conflict(errSlotTaken).WithOp(opCreate)
		}
		return Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	return appt, nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, apperr.NotFound(errAppointmentNotFound).WithOp(opGet)
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// SetVerification stores the hashed verification code and when it was sent.
func (r *Repository) SetVerification(ctx context.Context, tenantID, id uuid.UUID, codeHash string, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET verification_code_hash = $3, verification_sent_at = $4
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, codeHash, sentAt)
	if err != nil {
		return fmt.Errorf("set verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errAppointmentNotFound).WithOp(opSetVerification)
	}
	return nil
}

func (r *Repository) MarkVerified(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = $3, verified_at = $4
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, StatusVerified, at)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errAppointmentNotFound).WithOp(opMarkVerified)
	}
	return nil
}

// BookedSlot is a date and time slot held by an active appointment.
type BookedSlot struct {
	Date     time.Time
	TimeSlot string
}

// ListBooked returns the slots held by non-cancelled appointments between
// from and to, both dates inclusive.
func (r *Repository) ListBooked(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]BookedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_date, time_slot FROM appointments
		WHERE tenant_id = $1 AND appointment_date BETWEEN $2 AND $3 AND status <> $4
		ORDER BY appointment_date, time_slot
	`, tenantID, from, to, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	defer rows.Close()

	slots := make([]BookedSlot, 0)
	for rows.Next() {
		var b BookedSlot
		if err := rows.Scan(&b.Date, &b.TimeSlot); err != nil {
			return nil, fmt.Errorf("scan booked slot: %w", err)
		}
		slots = append(slots, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate booked slots: %w", rows.Err())
	}
	return slots, nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.TenantID, &a.LeadID, &a.Date, &a.TimeSlot, &a.ContactName, &a.ContactEmail, &a.ContactPhone,
		&a.Status, &a.VerificationCodeHash, &a.VerificationSentAt, &a.VerifiedAt, &a.CreatedAt,
	)
	return a, err
}
