package transport

import (
	"time"

	"github.com/google/uuid"
)

// TurnRequest is the user's input for one conversation turn. Both fields
// are empty on the turn that opens the conversation.
type TurnRequest struct {
	Text   string `json:"text" validate:"omitempty,max=4000"`
	Choice string `json:"choice" validate:"omitempty,max=200"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	StepID    string    `json:"stepId,omitempty"`
	Content   string    `json:"content"`
	Direction string    `json:"direction"`
	Choice    string    `json:"choice,omitempty"`
	MediaRefs []string  `json:"mediaRefs,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationResponse struct {
	LeadID            uuid.UUID         `json:"leadId"`
	TemplateID        string            `json:"templateId"`
	CurrentStepID     string            `json:"currentStepId,omitempty"`
	VisitedSteps      []string          `json:"visitedSteps"`
	CollectedData     map[string]any    `json:"collectedData"`
	Messages          []MessageResponse `json:"messages"`
	Stage             string            `json:"stage,omitempty"`
	Completed         bool              `json:"completed"`
	StartedAt         time.Time         `json:"startedAt"`
	LastInteractionAt time.Time         `json:"lastInteractionAt"`
}

type ConversationListResponse struct {
	Items []ConversationResponse `json:"items"`
	Total int                    `json:"total"`
}
