// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"context"
	"fmt"

	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// Tags of the lead change channel. The set is closed: nothing else is
// published on it.
const (
	TagLeadStageChanged = "lead-stage-changed"
	TagLeadNameChanged  = "lead-name-changed"
	TagForceResync      = "force-resync"
)

// SourceChatSync marks changes reported through the chat sync endpoint.
const SourceChatSync = "chat-sync"

// =============================================================================
// Lead Change Events
// =============================================================================

// LeadStageChanged is published after a lead's stage was written to the lead store.
type LeadStageChanged struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	LeadID        uuid.UUID `json:"leadId"`
	Name          string    `json:"name"`
	PreviousStage string    `json:"previousStage,omitempty"`
	Stage         string    `json:"stage"`
	Source        string    `json:"source"`
}

func (e LeadStageChanged) EventName() string { return TagLeadStageChanged }

// LeadNameChanged is published when a surface renames a lead or edits its contact fields.
type LeadNameChanged struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Source   string    `json:"source,omitempty"`
}

func (e LeadNameChanged) EventName() string { return TagLeadNameChanged }

// ForceResync asks the sync engine to re-apply its cache and refresh the chat view.
type ForceResync struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	Reason   string    `json:"reason,omitempty"`
}

func (e ForceResync) EventName() string { return TagForceResync }

// =============================================================================
// Typed subscriptions
// =============================================================================

// OnLeadStageChanged subscribes fn to lead-stage-changed.
func OnLeadStageChanged(bus Bus, fn func(context.Context, LeadStageChanged) error) func() {
	return subscribe(bus, TagLeadStageChanged, fn)
}

// OnLeadNameChanged subscribes fn to lead-name-changed.
func OnLeadNameChanged(bus Bus, fn func(context.Context, LeadNameChanged) error) func() {
	return subscribe(bus, TagLeadNameChanged, fn)
}

// OnForceResync subscribes fn to force-resync.
func OnForceResync(bus Bus, fn func(context.Context, ForceResync) error) func() {
	return subscribe(bus, TagForceResync, fn)
}

func subscribe[E Event](bus Bus, tag string, fn func(context.Context, E) error) func() {
	return bus.Subscribe(tag, HandlerFunc(func(ctx context.Context, event Event) error {
		typed, ok := event.(E)
		if !ok {
			return fmt.Errorf("event %s: unexpected payload %T", tag, event)
		}
		return fn(ctx, typed)
	}))
}
