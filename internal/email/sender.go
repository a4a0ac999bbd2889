// Package email delivers transactional emails to leads.
package email

import (
	"context"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// Attachment represents a file attachment for an email.
type Attachment struct {
	Content  []byte // raw file bytes
	FileName string // e.g. "visita-qr.png"
	MIMEType string // e.g. "image/png"
	// Inline attachments are referenced from the HTML body by FileName.
	Inline bool
}

// AppointmentVerification is what the verification email shows.
type AppointmentVerification struct {
	ContactName string
	Date        string
	TimeSlot    string
	Code        string
	// QRCode is a PNG of the verification payload.
	QRCode []byte
}

type Sender interface {
	SendAppointmentVerification(ctx context.Context, toEmail string, data AppointmentVerification) error
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

type NoopSender struct{}

func (NoopSender) SendAppointmentVerification(ctx context.Context, toEmail string, data AppointmentVerification) error {
	return nil
}

func (NoopSender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return nil
}

// New returns an SMTP sender, or a NoopSender when email is disabled.
func New(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		log.Info("email disabled, using noop sender")
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
