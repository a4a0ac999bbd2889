// Package flow runs conversation turns through a flow template.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"leadflow_backend/internal/conversation"
	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/internal/flow/steps"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	outcomeAdvanced  = "advanced"
	outcomeAwaiting  = "awaiting"
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"

	stageContextKey = "stage"
)

// TurnRequest is one turn submitted for a conversation.
type TurnRequest struct {
	TenantID   uuid.UUID
	LeadID     uuid.UUID
	TemplateID string
	// RequestID makes the turn idempotent: a repeated id returns the stored
	// result without running any handler.
	RequestID string
	Input     *steps.UserInput
}

// TurnResult is what the caller renders after a turn.
type TurnResult struct {
	Message       string         `json:"message,omitempty"`
	Choices       []steps.Choice `json:"choices,omitempty"`
	MediaRefs     []string       `json:"mediaRefs,omitempty"`
	Context       map[string]any `json:"context"`
	StepID        string         `json:"stepId"`
	Handle        string         `json:"handle,omitempty"`
	CurrentStepID string         `json:"currentStepId"`
	Completed     bool           `json:"completed"`
	Replayed      bool           `json:"replayed,omitempty"`
}

// Executor walks flow templates one step per turn.
type Executor struct {
	templates graph.Source
	registry  *steps.Registry
	store     *conversation.Store
	log       *logger.Logger

	// active turns, keyed by conversation
	activeTurns map[string]bool
	turnsMu     sync.Mutex
}

func NewExecutor(templates graph.Source, registry *steps.Registry, store *conversation.Store, log *logger.Logger) *Executor {
	return &Executor{
		templates:   templates,
		registry:    registry,
		store:       store,
		log:         log,
		activeTurns: make(map[string]bool),
	}
}

// ExecuteTurn runs the conversation's current step, records its output and
// follows the emitted handle. A handle without a transition completes the
// conversation. Errors are returned only for infrastructure failures.
func (e *Executor) ExecuteTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	tpl, err := e.templates.Template(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	key := req.LeadID.String() + ":" + req.TemplateID
	if !e.markRunning(key) {
		return nil, apperr.Conflict("a turn is already running for this conversation")
	}
	defer e.markComplete(key)

	state, err := e.store.Get(ctx, req.LeadID, req.TemplateID)
	if err != nil {
		return nil, err
	}

	if req.RequestID != "" {
		if raw, ok := state.Turn(req.RequestID); ok {
			return e.replay(raw, state, req.RequestID)
		}
	}

	if state.Metadata.Completed {
		return &TurnResult{
			Context:       state.CollectedData,
			StepID:        state.CurrentStepID,
			CurrentStepID: state.CurrentStepID,
			Completed:     true,
		}, nil
	}

	stepID := state.CurrentStepID
	step, ok := tpl.Step(stepID)
	if !ok {
		if stepID != "" {
			e.log.Warn("conversation points at a step the template no longer has, restarting",
				"template_id", tpl.ID(), "step_id", stepID, "lead_id", req.LeadID.String())
		}
		stepID = tpl.Start()
		step, _ = tpl.Step(stepID)
	}

	handler, ok := e.registry.Handler(step.Kind)
	if !ok {
		return nil, apperr.Internal(fmt.Sprintf("no handler for step kind %s", step.Kind))
	}

	data, err := e.inputData(ctx, req.LeadID, state)
	if err != nil {
		return nil, err
	}

	result := handler.Execute(ctx, steps.Input{
		TenantID:   req.TenantID,
		LeadID:     req.LeadID,
		TemplateID: tpl.ID(),
		Step:       step,
		Data:       data,
		UserInput:  req.Input,
	})
	result.Handle = e.declaredHandle(handler, step, result.Handle)

	var out *TurnResult
	saved, err := e.store.Update(ctx, req.LeadID, req.TemplateID, func(st *conversation.State) error {
		st.SetCurrentStep(stepID)
		e.appendUserMessage(st, stepID, req)

		for k, v := range result.Context {
			st.SetVariable(k, v)
		}
		if stage, ok := result.Context[stageContextKey].(string); ok && stage != "" {
			st.Metadata.Stage = stage
		}
		if result.Output.Message != "" || len(result.Output.MediaRefs) > 0 {
			st.AppendMessage(conversation.Message{
				ID:        botMessageID(tpl.ID(), stepID, st.StepVisit, result.Output.Message),
				StepID:    stepID,
				Content:   result.Output.Message,
				Timestamp: st.Metadata.LastInteractionAt,
				Direction: conversation.DirectionBot,
				MediaRefs: result.Output.MediaRefs,
			})
		}

		// An unrouted failure keeps the lead on the step to retry; any other
		// unrouted handle ends the flow.
		if !result.Await {
			if next, ok := tpl.Next(stepID, result.Handle); ok {
				st.Advance(next)
			} else if result.Handle != steps.HandleFailure {
				st.MarkCompleted()
			}
		}

		out = &TurnResult{
			Message:       result.Output.Message,
			Choices:       result.Output.Choices,
			MediaRefs:     result.Output.MediaRefs,
			StepID:        stepID,
			Handle:        result.Handle,
			CurrentStepID: st.CurrentStepID,
			Completed:     st.Metadata.Completed,
		}

		if req.RequestID != "" {
			raw, err := json.Marshal(out)
			if err != nil {
				return fmt.Errorf("encode turn result: %w", err)
			}
			st.RecordTurn(req.RequestID, raw)
		}
		return nil
	})
	if err != nil {
		// The handler already ran; its side effects are not replayed.
		e.log.Error("turn ran but its result could not be saved",
			"template_id", tpl.ID(), "step_id", stepID, "lead_id", req.LeadID.String(), "error", err)
		return nil, err
	}
	out.Context = saved.CollectedData

	outcome := outcomeAdvanced
	switch {
	case result.Await:
		outcome = outcomeAwaiting
	case out.Completed:
		outcome = outcomeCompleted
	case out.CurrentStepID == stepID && result.Handle == steps.HandleFailure:
		outcome = outcomeFailed
	}
	metrics.RecordTurn(string(step.Kind), outcome)
	e.log.FlowTurn(tpl.ID(), stepID, result.Handle, out.Completed)

	return out, nil
}

// Conversation returns the conversation for rendering, creating it on
// first access.
func (e *Executor) Conversation(ctx context.Context, leadID uuid.UUID, templateID string) (*conversation.State, error) {
	if _, err := e.templates.Template(ctx, templateID); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, leadID, templateID)
}

// Conversations lists every conversation of a lead.
func (e *Executor) Conversations(ctx context.Context, leadID uuid.UUID) ([]*conversation.State, error) {
	return e.store.ListByLead(ctx, leadID)
}

// Reset deletes the conversation so the next turn starts over.
func (e *Executor) Reset(ctx context.Context, leadID uuid.UUID, templateID string) error {
	return e.store.Reset(ctx, leadID, templateID)
}

// CheckTemplate verifies that every step of t can be executed.
func (e *Executor) CheckTemplate(t *graph.Template) error {
	if err := e.registry.Check(t); err != nil {
		return fmt.Errorf("template %s: %w", t.ID(), err)
	}
	return nil
}

func (e *Executor) replay(raw json.RawMessage, state *conversation.State, requestID string) (*TurnResult, error) {
	var out TurnResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Internal("stored turn result is corrupt")
	}
	out.Context = state.CollectedData
	out.Replayed = true
	e.log.Info("turn replayed from idempotency record", "template_id", state.TemplateID, "request_id", requestID)
	return &out, nil
}

// inputData merges lead-scoped variables under the conversation's own.
func (e *Executor) inputData(ctx context.Context, leadID uuid.UUID, state *conversation.State) (map[string]any, error) {
	leadVars, err := e.store.LeadVariables(ctx, leadID)
	if err != nil {
		return nil, err
	}
	data := make(map[string]any, len(leadVars)+len(state.CollectedData))
	for k, v := range leadVars {
		data[k] = v
	}
	for k, v := range state.CollectedData {
		data[k] = v
	}
	return data, nil
}

func (e *Executor) declaredHandle(h steps.Handler, step graph.Step, handle string) string {
	for _, declared := range h.Handles() {
		if declared == handle {
			return handle
		}
	}
	e.log.Warn("handler emitted an undeclared handle, using default",
		"step_id", step.ID, "kind", string(step.Kind), "handle", handle, "default", h.DefaultHandle())
	return h.DefaultHandle()
}

func (e *Executor) appendUserMessage(st *conversation.State, stepID string, req TurnRequest) {
	if req.Input == nil || req.Input.Value() == "" {
		return
	}
	id := uuid.NewString()
	if req.RequestID != "" {
		id = "user:" + req.RequestID
	}
	st.AppendMessage(conversation.Message{
		ID:        id,
		StepID:    stepID,
		Content:   strings.TrimSpace(req.Input.Text),
		Choice:    req.Input.Choice,
		Timestamp: st.Metadata.LastInteractionAt,
		Direction: conversation.DirectionUser,
	})
}

func (e *Executor) markRunning(key string) bool {
	e.turnsMu.Lock()
	defer e.turnsMu.Unlock()
	if e.activeTurns[key] {
		return false
	}
	e.activeTurns[key] = true
	return true
}

func (e *Executor) markComplete(key string) {
	e.turnsMu.Lock()
	defer e.turnsMu.Unlock()
	delete(e.activeTurns, key)
}

// botMessageID is stable for the same output within one step visit, so a
// re-run of an awaiting step does not append its prompt twice.
func botMessageID(templateID, stepID string, visit int, content string) string {
	digest := uuid.NewSHA1(uuid.NameSpaceOID, []byte(content)).String()
	return fmt.Sprintf("bot:%s:%s:%d:%s", templateID, stepID, visit, digest[:8])
}
