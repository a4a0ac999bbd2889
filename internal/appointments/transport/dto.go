package transport

import (
	"time"

	"github.com/google/uuid"
)

// VerifyAppointmentRequest is the request body for verifying an appointment
type VerifyAppointmentRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// AppointmentResponse is the public view of an appointment
type AppointmentResponse struct {
	ID           uuid.UUID  `json:"id"`
	LeadID       uuid.UUID  `json:"leadId"`
	Date         string     `json:"date"`
	TimeSlot     string     `json:"timeSlot"`
	ContactName  string     `json:"contactName,omitempty"`
	ContactEmail string     `json:"contactEmail,omitempty"`
	ContactPhone string     `json:"contactPhone,omitempty"`
	Status       string     `json:"status"`
	Verified     bool       `json:"verified"`
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
