// Package chatsync keeps the chat inbox in step with lead stage and name
// changes made anywhere else, including other instances sharing the
// key-value store.
package chatsync

import (
	"strings"
	"time"

	"leadflow_backend/internal/stages"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/sanitize"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
)

// Notification is a stage or name change as reported by a surface.
type Notification struct {
	TenantID string `json:"tenantId" validate:"required,uuid"`
	LeadID   string `json:"leadId" validate:"required,uuid"`
	Name     string `json:"name" validate:"required,nonblank"`
	Stage    string `json:"stage,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,phone"`
}

// Update is a validated, normalized pending change for one lead.
type Update struct {
	TenantID  uuid.UUID `json:"tenantId"`
	LeadID    uuid.UUID `json:"leadId"`
	Name      string    `json:"name"`
	Stage     string    `json:"stage,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Origin names the instance that accepted the update.
	Origin string `json:"origin,omitempty"`
}

func normalize(v *validator.Validator, n Notification, at time.Time) (Update, error) {
	n.LeadID = strings.TrimSpace(n.LeadID)
	n.TenantID = strings.TrimSpace(n.TenantID)
	if err := v.Struct(n); err != nil {
		return Update{}, apperr.Validation("invalid sync notification").WithDetails(validator.Messages(err))
	}

	leadID, err := uuid.Parse(n.LeadID)
	if err != nil {
		return Update{}, apperr.Validation("lead id is not well-formed")
	}
	tenantID, err := uuid.Parse(n.TenantID)
	if err != nil {
		return Update{}, apperr.Validation("tenant id is not well-formed")
	}

	u := Update{
		TenantID:  tenantID,
		LeadID:    leadID,
		Name:      sanitize.Name(n.Name),
		Email:     strings.ToLower(strings.TrimSpace(n.Email)),
		Phone:     phone.NormalizeE164(n.Phone),
		Timestamp: at,
	}
	if u.Name == "" {
		return Update{}, apperr.Validation("name is empty after cleanup")
	}
	if n.Stage != "" {
		stage, _ := stages.Resolve(n.Stage)
		u.Stage = stage
	}
	return u, nil
}

// merge overlays the non-empty fields of next onto prev.
func merge(prev, next Update) Update {
	out := prev
	out.TenantID = next.TenantID
	out.LeadID = next.LeadID
	out.Name = next.Name
	out.Timestamp = next.Timestamp
	out.Origin = next.Origin
	if next.Stage != "" {
		out.Stage = next.Stage
	}
	if next.Email != "" {
		out.Email = next.Email
	}
	if next.Phone != "" {
		out.Phone = next.Phone
	}
	return out
}
