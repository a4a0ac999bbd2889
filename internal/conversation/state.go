// Package conversation persists per (lead, template) conversation progress
// in the durable key-value store.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction of a transcript message.
type Direction string

const (
	DirectionUser Direction = "user"
	DirectionBot  Direction = "bot"
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	StepID    string    `json:"stepId,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Choice    string    `json:"choice,omitempty"`
	MediaRefs []string  `json:"mediaRefs,omitempty"`
}

// Metadata tracks the lifecycle of a conversation.
type Metadata struct {
	StartedAt         time.Time `json:"startedAt"`
	LastInteractionAt time.Time `json:"lastInteractionAt"`
	Completed         bool      `json:"completed"`
	Stage             string    `json:"stage,omitempty"`
}

// TurnRecord remembers the response of a turn submitted with a request id.
type TurnRecord struct {
	RequestID string          `json:"requestId"`
	Response  json.RawMessage `json:"response"`
}

const maxTurnRecords = 20

// State is the durable record of one conversation.
type State struct {
	LeadID        uuid.UUID      `json:"leadId"`
	TemplateID    string         `json:"templateId"`
	CurrentStepID string         `json:"currentStepId,omitempty"`
	VisitedSteps  []string       `json:"visitedSteps"`
	// StepVisit counts step entries; it stays put while a step awaits input.
	StepVisit     int            `json:"stepVisit"`
	CollectedData map[string]any `json:"collectedData"`
	Messages      []Message      `json:"messages"`
	Metadata      Metadata       `json:"metadata"`
	Turns         []TurnRecord   `json:"turns,omitempty"`

	// written holds variables set since load, for the lead projection.
	written map[string]any
}

func newState(leadID uuid.UUID, templateID string, now time.Time) *State {
	return &State{
		LeadID:        leadID,
		TemplateID:    templateID,
		VisitedSteps:  []string{},
		CollectedData: map[string]any{},
		Messages:      []Message{},
		Metadata:      Metadata{StartedAt: now, LastInteractionAt: now},
	}
}

// SetCurrentStep moves the conversation to stepID and records the visit.
// Setting the same step again does not duplicate the visit.
func (s *State) SetCurrentStep(stepID string) {
	if stepID != s.CurrentStepID {
		s.StepVisit++
	}
	s.enter(stepID)
}

// Advance follows a transition to stepID. Unlike SetCurrentStep it starts
// a new visit even when the transition loops back to the current step.
func (s *State) Advance(stepID string) {
	s.StepVisit++
	s.enter(stepID)
}

func (s *State) enter(stepID string) {
	s.CurrentStepID = stepID
	if !s.Visited(stepID) {
		s.VisitedSteps = append(s.VisitedSteps, stepID)
	}
}

// Visited reports whether stepID was ever current.
func (s *State) Visited(stepID string) bool {
	for _, id := range s.VisitedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// AppendMessage adds msg unless a message with the same id exists.
// It reports whether the message was added.
func (s *State) AppendMessage(msg Message) bool {
	for _, existing := range s.Messages {
		if existing.ID == msg.ID {
			return false
		}
	}
	s.Messages = append(s.Messages, msg)
	return true
}

// SetVariable writes (or overwrites) one collected variable.
func (s *State) SetVariable(key string, value any) {
	if s.CollectedData == nil {
		s.CollectedData = map[string]any{}
	}
	s.CollectedData[key] = value
	if s.written == nil {
		s.written = map[string]any{}
	}
	s.written[key] = value
}

// MarkCompleted flags the conversation as finished.
func (s *State) MarkCompleted() {
	s.Metadata.Completed = true
}

// Turn returns the stored response for requestID.
func (s *State) Turn(requestID string) (json.RawMessage, bool) {
	for _, t := range s.Turns {
		if t.RequestID == requestID {
			return t.Response, true
		}
	}
	return nil, false
}

// RecordTurn stores the response for requestID, keeping the most recent ones.
func (s *State) RecordTurn(requestID string, response json.RawMessage) {
	s.Turns = append(s.Turns, TurnRecord{RequestID: requestID, Response: response})
	if len(s.Turns) > maxTurnRecords {
		s.Turns = s.Turns[len(s.Turns)-maxTurnRecords:]
	}
}

// Clone returns a deep enough copy for callers to read without sharing
// slices or the top-level variable map with the store.
func (s *State) Clone() *State {
	out := *s
	out.VisitedSteps = append([]string(nil), s.VisitedSteps...)
	out.Messages = append([]Message(nil), s.Messages...)
	out.Turns = append([]TurnRecord(nil), s.Turns...)
	out.written = nil
	out.CollectedData = make(map[string]any, len(s.CollectedData))
	for k, v := range s.CollectedData {
		out.CollectedData[k] = v
	}
	return &out
}
