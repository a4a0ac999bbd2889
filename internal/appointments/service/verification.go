package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"leadflow_backend/internal/appointments/repository"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeDigits = 6
	qrSize     = 256

	errInvalidCode  = "invalid verification code"
	errCodeExpired  = "verification code expired"
	errNoCodeIssued = "no verification code was issued for this appointment"
)

// IssueVerification generates a one-time code, stores its hash and emails
// the code with a QR image to the contact.
func (s *Service) IssueVerification(ctx context.Context, req ports.VerificationRequest) error {
	if strings.TrimSpace(req.ContactEmail) == "" {
		return apperr.Precondition("contact email is required for verification")
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash verification code: %w", err)
	}
	png, err := qrcode.Encode(qrPayload(req.AppointmentID, code), qrcode.Medium, qrSize)
	if err != nil {
		return fmt.Errorf("encode verification qr: %w", err)
	}

	now := s.clock.Now()
	if err := s.repo.SetVerification(ctx, req.TenantID, req.AppointmentID, string(hash), now); err != nil {
		return err
	}

	err = s.sender.SendAppointmentVerification(ctx, req.ContactEmail, email.AppointmentVerification{
		ContactName: req.ContactName,
		Date:        req.Date.Format(dateFormat),
		TimeSlot:    req.TimeSlot,
		Code:        code,
		QRCode:      png,
	})
	if err != nil {
		return apperr.Unavailable("verification email could not be sent", err).WithOp("appointments.IssueVerification")
	}

	s.log.Info("appointment verification sent", "appointment_id", req.AppointmentID.String())
	return nil
}

// Verify checks a code against the stored hash and marks the appointment
// verified. Verifying an already verified appointment is a no-op.
func (s *Service) Verify(ctx context.Context, tenantID, id uuid.UUID, code string) (repository.Appointment, error) {
	appt, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return repository.Appointment{}, err
	}
	if appt.VerifiedAt != nil {
		return appt, nil
	}
	if appt.VerificationCodeHash == nil || appt.VerificationSentAt == nil {
		return repository.Appointment{}, apperr.Precondition(errNoCodeIssued)
	}

	now := s.clock.Now()
	if now.Sub(*appt.VerificationSentAt) > s.codeTTL {
		return repository.Appointment{}, apperr.Precondition(errCodeExpired)
	}

	err = bcrypt.CompareHashAndPassword([]byte(*appt.VerificationCodeHash), []byte(strings.TrimSpace(code)))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return repository.Appointment{}, apperr.Validation(errInvalidCode)
	}
	if err != nil {
		return repository.Appointment{}, fmt.Errorf("compare verification code: %w", err)
	}

	if err := s.repo.MarkVerified(ctx, tenantID, id, now); err != nil {
		return repository.Appointment{}, err
	}
	appt.Status = repository.StatusVerified
	appt.VerifiedAt = &now
	return appt, nil
}

func generateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func qrPayload(appointmentID uuid.UUID, code string) string {
	return "appointment:" + appointmentID.String() + ":" + code
}
