package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/logger"

	"github.com/jonboulle/clockwork"
)

const (
	HandleSelected    = "selected"
	HandleUnavailable = "unavailable"

	// AvailableSlotsKey holds the offered slots as a list of {date, time}.
	AvailableSlotsKey = "availableSlots"

	defaultAvailabilityDays       = 7
	defaultAvailabilityMaxOptions = 6

	defaultAvailabilityPrompt      = "Estos son los huecos libres para tu visita. ¿Cuál prefieres?"
	defaultAvailabilityRetry       = "Elige uno de los huecos de la lista, por favor."
	defaultAvailabilityUnavailable = "Ahora mismo no tenemos huecos libres. Un agente te propondrá una fecha."
)

var defaultAvailabilitySlots = []string{"10:00", "12:00", "17:00"}

var weekdayNames = [...]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}

type availabilityConfig struct {
	Prompt             string   `mapstructure:"prompt"`
	Slots              []string `mapstructure:"slots"`
	Days               int      `mapstructure:"days"`
	StartOffsetDays    int      `mapstructure:"startOffsetDays"`
	IncludeWeekends    bool     `mapstructure:"includeWeekends"`
	MaxOptions         int      `mapstructure:"maxOptions"`
	RetryMessage       string   `mapstructure:"retryMessage"`
	UnavailableMessage string   `mapstructure:"unavailableMessage"`
}

// CheckAvailabilityHandler offers the free appointment slots of the coming
// days, waits for the lead to pick one and stores it as selectedDate and
// selectedTimeSlot for a later book_appointment step.
type CheckAvailabilityHandler struct {
	reader ports.AvailabilityReader
	clock  clockwork.Clock
	log    *logger.Logger
}

func NewCheckAvailabilityHandler(reader ports.AvailabilityReader, clock clockwork.Clock, log *logger.Logger) *CheckAvailabilityHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CheckAvailabilityHandler{reader: reader, clock: clock, log: log}
}

func (h *CheckAvailabilityHandler) Kind() graph.Kind      { return graph.KindCheckAvailability }
func (h *CheckAvailabilityHandler) Handles() []string     { return []string{HandleSelected, HandleUnavailable} }
func (h *CheckAvailabilityHandler) DefaultHandle() string { return HandleUnavailable }

func (h *CheckAvailabilityHandler) ValidateConfig(config map[string]any) error {
	var cfg availabilityConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	for _, slot := range cfg.Slots {
		if _, err := time.Parse("15:04", strings.TrimSpace(slot)); err != nil {
			return fmt.Errorf("slot %q is not HH:MM", slot)
		}
	}
	if cfg.Days < 0 || cfg.StartOffsetDays < 0 || cfg.MaxOptions < 0 {
		return fmt.Errorf("days, startOffsetDays and maxOptions cannot be negative")
	}
	return nil
}

// offer is one free slot.
type offer struct {
	Date string
	Time string
}

func (o offer) id() string { return o.Date + " " + o.Time }

func (h *CheckAvailabilityHandler) Execute(ctx context.Context, in Input) Result {
	var cfg availabilityConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		h.log.Warn("availability config unreadable", "step_id", in.Step.ID, "error", err)
	}

	raw := in.UserInput.Value()
	offers := offersFromData(in.Data[AvailableSlotsKey])
	if raw != "" && len(offers) > 0 {
		if picked, ok := pickOffer(offers, raw); ok {
			return Result{
				Handle: HandleSelected,
				Context: map[string]any{
					"selectedDate":     picked.Date,
					"selectedTimeSlot": picked.Time,
				},
			}
		}
		return Result{
			Handle: HandleSelected,
			Await:  true,
			Output: Output{
				Message: render(orDefault(cfg.RetryMessage, defaultAvailabilityRetry), in.Data),
				Choices: offerChoices(offers),
			},
		}
	}

	offers = h.freeSlots(ctx, in, cfg)
	if len(offers) == 0 {
		return Result{
			Handle:  HandleUnavailable,
			Output:  Output{Message: render(orDefault(cfg.UnavailableMessage, defaultAvailabilityUnavailable), in.Data)},
			Context: map[string]any{AvailableSlotsKey: []any{}},
		}
	}
	return Result{
		Handle: HandleSelected,
		Await:  true,
		Output: Output{
			Message: render(orDefault(cfg.Prompt, defaultAvailabilityPrompt), in.Data),
			Choices: offerChoices(offers),
		},
		Context: map[string]any{AvailableSlotsKey: offersToData(offers)},
	}
}

// freeSlots lists configured slots of the coming days minus the booked ones.
// When bookings cannot be read every slot is offered; the booking itself
// still rejects a taken slot.
func (h *CheckAvailabilityHandler) freeSlots(ctx context.Context, in Input, cfg availabilityConfig) []offer {
	slots := cfg.Slots
	if len(slots) == 0 {
		slots = defaultAvailabilitySlots
	}
	days := cfg.Days
	if days <= 0 {
		days = defaultAvailabilityDays
	}
	offset := cfg.StartOffsetDays
	if offset <= 0 {
		offset = 1
	}
	limit := cfg.MaxOptions
	if limit <= 0 {
		limit = defaultAvailabilityMaxOptions
	}

	now := h.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := today.AddDate(0, 0, offset)
	to := from.AddDate(0, 0, days-1)

	var booked map[string][]string
	if h.reader != nil {
		var err error
		booked, err = h.reader.BookedSlots(ctx, in.TenantID, from, to)
		if err != nil {
			h.log.CollaboratorError("appointments", "booked_slots", err)
		}
	}

	var offers []offer
	for day := from; !day.After(to) && len(offers) < limit; day = day.AddDate(0, 0, 1) {
		if !cfg.IncludeWeekends && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		date := day.Format(dateLayout)
		taken := make(map[string]bool, len(booked[date]))
		for _, s := range booked[date] {
			taken[strings.TrimSpace(s)] = true
		}
		for _, slot := range slots {
			slot = strings.TrimSpace(slot)
			if taken[slot] || len(offers) >= limit {
				continue
			}
			offers = append(offers, offer{Date: date, Time: slot})
		}
	}
	return offers
}

func offerChoices(offers []offer) []Choice {
	choices := make([]Choice, 0, len(offers))
	for _, o := range offers {
		choices = append(choices, Choice{ID: o.id(), Label: offerLabel(o)})
	}
	return choices
}

// offerLabel renders "lun 20/10 · 10:00".
func offerLabel(o offer) string {
	day, err := time.Parse(dateLayout, o.Date)
	if err != nil {
		return o.id()
	}
	return fmt.Sprintf("%s %s · %s", weekdayNames[day.Weekday()], day.Format("02/01"), o.Time)
}

func pickOffer(offers []offer, raw string) (offer, bool) {
	raw = strings.TrimSpace(raw)
	for _, o := range offers {
		if strings.EqualFold(raw, o.id()) || strings.EqualFold(raw, offerLabel(o)) {
			return o, true
		}
	}
	return offer{}, false
}

func offersToData(offers []offer) []any {
	out := make([]any, 0, len(offers))
	for _, o := range offers {
		out = append(out, map[string]any{"date": o.Date, "time": o.Time})
	}
	return out
}

// offersFromData reads back what offersToData stored.
func offersFromData(v any) []offer {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []offer
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		date, slot := stringValue(m, "date"), stringValue(m, "time")
		if date != "" && slot != "" {
			out = append(out, offer{Date: date, Time: slot})
		}
	}
	return out
}
