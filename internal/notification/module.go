// Package notification turns lead change events into live signals for the
// tenant's connected surfaces.
package notification

import (
	"context"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Publisher fans an event out to a tenant's open streams.
type Publisher interface {
	PublishToTenant(tenantID uuid.UUID, event sse.Event)
}

// Module subscribes to domain events. It is not HTTP facing.
type Module struct {
	stream Publisher
	log    *logger.Logger
	stops  []func()
}

func New(stream Publisher, log *logger.Logger) *Module {
	return &Module{stream: stream, log: log}
}

// RegisterHandlers subscribes the module to the lead change events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.stops = append(m.stops,
		bus.Subscribe(events.TagLeadStageChanged, m),
		bus.Subscribe(events.TagLeadNameChanged, m),
	)
}

// Close removes the subscriptions.
func (m *Module) Close() {
	for _, stop := range m.stops {
		stop()
	}
	m.stops = nil
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadStageChanged:
		return m.handleLeadStageChanged(ctx, e)
	case events.LeadNameChanged:
		return m.handleLeadNameChanged(ctx, e)
	default:
		m.log.Debug("notification: ignoring event", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleLeadStageChanged(_ context.Context, e events.LeadStageChanged) error {
	m.stream.PublishToTenant(e.TenantID, sse.Event{
		Type:   sse.EventFunnelLeadMoved,
		LeadID: e.LeadID,
		Data: map[string]any{
			"name":          e.Name,
			"stage":         e.Stage,
			"previousStage": e.PreviousStage,
			"source":        e.Source,
		},
	})
	return nil
}

func (m *Module) handleLeadNameChanged(_ context.Context, e events.LeadNameChanged) error {
	m.stream.PublishToTenant(e.TenantID, sse.Event{
		Type:   sse.EventLeadRenamed,
		LeadID: e.LeadID,
		Data:   map[string]any{"name": e.Name},
	})
	return nil
}
