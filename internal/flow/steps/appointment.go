package steps

import (
	"context"
	"strings"
	"time"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/logger"

	"github.com/jonboulle/clockwork"
)

const (
	HandleSuccess = "success"
	HandleFailure = "failure"

	appointmentSource = "flow:book_appointment"
	dateLayout        = "2006-01-02"

	defaultMissingMessage     = "Necesito una fecha y una hora para reservar la visita. ¿Cuándo te viene bien?"
	defaultUnavailableMessage = "Esa hora ya no está disponible. Por favor elige otra."
	defaultFailureMessage     = "No hemos podido reservar la visita ahora mismo. Un agente te contactará en breve."
	defaultSuccessMessage     = "¡Listo! Tu visita está reservada para el {{selectedDate}} a las {{selectedTimeSlot}}."
)

type appointmentConfig struct {
	Stage              string        `mapstructure:"stage"`
	FollowUp           bool          `mapstructure:"followUp"`
	FollowUpDelay      time.Duration `mapstructure:"followUpDelay"`
	SendVerification   bool          `mapstructure:"sendVerification"`
	SuccessMessage     string        `mapstructure:"successMessage"`
	FailureMessage     string        `mapstructure:"failureMessage"`
	MissingMessage     string        `mapstructure:"missingMessage"`
	UnavailableMessage string        `mapstructure:"unavailableMessage"`
}

// AppointmentDeps are the collaborators of the booking step. Only
// Appointments is required.
type AppointmentDeps struct {
	Appointments  ports.AppointmentCreator
	Stages        ports.StageUpdater
	FollowUps     ports.FollowUpScheduler
	Verifications ports.VerificationIssuer
	// FollowUpDelay applies when the step config sets none.
	FollowUpDelay time.Duration
	Clock         clockwork.Clock
}

// BookAppointmentHandler books the slot selected earlier in the conversation.
type BookAppointmentHandler struct {
	deps AppointmentDeps
	log  *logger.Logger
}

func NewBookAppointmentHandler(deps AppointmentDeps, log *logger.Logger) *BookAppointmentHandler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.FollowUpDelay <= 0 {
		deps.FollowUpDelay = 24 * time.Hour
	}
	return &BookAppointmentHandler{deps: deps, log: log}
}

func (h *BookAppointmentHandler) Kind() graph.Kind      { return graph.KindBookAppointment }
func (h *BookAppointmentHandler) Handles() []string     { return []string{HandleSuccess, HandleFailure} }
func (h *BookAppointmentHandler) DefaultHandle() string { return HandleFailure }

func (h *BookAppointmentHandler) ValidateConfig(config map[string]any) error {
	var cfg appointmentConfig
	return decodeConfig(config, &cfg)
}

func (h *BookAppointmentHandler) Execute(ctx context.Context, in Input) Result {
	var cfg appointmentConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		h.log.Warn("appointment config unreadable", "step_id", in.Step.ID, "error", err)
	}
	log := h.log.With("lead_id", in.LeadID.String(), "step_id", in.Step.ID)

	selectedDate := stringValue(in.Data, "selectedDate")
	selectedSlot := stringValue(in.Data, "selectedTimeSlot")
	available, hasSlots := in.Data["availableSlots"]
	if selectedDate == "" || selectedSlot == "" || !hasSlots || available == nil {
		log.Info("appointment booking missing precondition",
			"has_date", selectedDate != "", "has_slot", selectedSlot != "", "has_available", hasSlots)
		return h.fail(in, orDefault(cfg.MissingMessage, defaultMissingMessage))
	}

	date, err := time.Parse(dateLayout, selectedDate)
	if err != nil {
		log.Info("appointment booking with unreadable date", "selected_date", selectedDate)
		return h.fail(in, orDefault(cfg.MissingMessage, defaultMissingMessage))
	}
	if !slotAvailable(available, selectedDate, selectedSlot) {
		log.Info("appointment slot no longer available", "selected_date", selectedDate, "slot", selectedSlot)
		return h.fail(in, orDefault(cfg.UnavailableMessage, defaultUnavailableMessage))
	}

	req := ports.AppointmentRequest{
		TenantID:     in.TenantID,
		LeadID:       in.LeadID,
		Date:         date,
		TimeSlot:     selectedSlot,
		ContactName:  stringValue(in.Data, "name"),
		ContactEmail: stringValue(in.Data, "email"),
		ContactPhone: stringValue(in.Data, "phone"),
	}
	appointmentID, err := h.deps.Appointments.CreateAppointment(ctx, req)
	if err != nil {
		log.CollaboratorError("appointments", "create", err)
		return h.fail(in, orDefault(cfg.FailureMessage, defaultFailureMessage))
	}

	updates := map[string]any{
		"appointmentId":     appointmentID.String(),
		"appointmentStatus": "scheduled",
	}

	// Side effects below are best-effort and never change the outcome.
	if cfg.Stage != "" && h.deps.Stages != nil {
		if err := h.deps.Stages.UpdateLeadStage(ctx, in.TenantID, in.LeadID, cfg.Stage, appointmentSource); err != nil {
			log.SideEffectFailed("lead_stage_update", err, "stage", cfg.Stage)
		} else {
			updates["stage"] = cfg.Stage
		}
	}

	if cfg.FollowUp && h.deps.FollowUps != nil {
		delay := cfg.FollowUpDelay
		if delay <= 0 {
			delay = h.deps.FollowUpDelay
		}
		err := h.deps.FollowUps.ScheduleFollowUp(ctx, ports.FollowUpRequest{
			TenantID:      in.TenantID,
			LeadID:        in.LeadID,
			AppointmentID: appointmentID,
			Reason:        "appointment_booked",
			DueAt:         h.deps.Clock.Now().Add(delay),
		})
		if err != nil {
			log.SideEffectFailed("follow_up_schedule", err, "appointment_id", appointmentID.String())
		}
	}

	if cfg.SendVerification && h.deps.Verifications != nil {
		if req.ContactEmail == "" {
			log.Info("verification skipped without contact email", "appointment_id", appointmentID.String())
		} else {
			err := h.deps.Verifications.IssueVerification(ctx, ports.VerificationRequest{
				TenantID:      in.TenantID,
				LeadID:        in.LeadID,
				AppointmentID: appointmentID,
				ContactName:   req.ContactName,
				ContactEmail:  req.ContactEmail,
				Date:          date,
				TimeSlot:      selectedSlot,
			})
			if err != nil {
				log.SideEffectFailed("verification_email", err, "appointment_id", appointmentID.String())
			} else {
				updates["verificationSent"] = true
			}
		}
	}

	return Result{
		Handle:  HandleSuccess,
		Output:  Output{Message: render(orDefault(cfg.SuccessMessage, defaultSuccessMessage), in.Data)},
		Context: updates,
	}
}

func (h *BookAppointmentHandler) fail(in Input, message string) Result {
	return Result{
		Handle: HandleFailure,
		Output: Output{Message: render(message, in.Data)},
	}
}

// slotAvailable accepts the shapes availableSlots is collected in:
// a list of slot strings, a list of {date, time} objects, or a map of
// date to slot list.
func slotAvailable(available any, date, slot string) bool {
	switch v := available.(type) {
	case []any:
		for _, item := range v {
			if slotMatches(item, date, slot) {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if strings.EqualFold(strings.TrimSpace(item), slot) {
				return true
			}
		}
	case map[string]any:
		if slots, ok := v[date]; ok {
			return slotAvailable(slots, date, slot)
		}
	}
	return false
}

func slotMatches(item any, date, slot string) bool {
	switch v := item.(type) {
	case string:
		return strings.EqualFold(strings.TrimSpace(v), slot)
	case map[string]any:
		if d := stringValue(v, "date"); d != "" && d != date {
			return false
		}
		for _, key := range []string{"time", "slot", "timeSlot"} {
			if s := stringValue(v, key); s != "" {
				return strings.EqualFold(s, slot)
			}
		}
	}
	return false
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
