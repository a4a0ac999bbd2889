// Package steps implements one handler per flow step kind and the registry
// the executor dispatches through.
package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"leadflow_backend/internal/flow/graph"

	"github.com/google/uuid"
)

// UserInput is what the lead sent on this turn, if anything.
type UserInput struct {
	Text   string `json:"text,omitempty"`
	Choice string `json:"choice,omitempty"`
}

// Value returns the selected choice, or the text when no choice was made.
func (u *UserInput) Value() string {
	if u == nil {
		return ""
	}
	if u.Choice != "" {
		return u.Choice
	}
	return strings.TrimSpace(u.Text)
}

// Input is everything a handler may look at. Handlers never see sibling steps.
type Input struct {
	TenantID   uuid.UUID
	LeadID     uuid.UUID
	TemplateID string
	Step       graph.Step
	// Data is a copy of the conversation's collected variables, including
	// variables collected for this lead under other templates.
	Data      map[string]any
	UserInput *UserInput
}

// Choice is a selectable reply offered with a message.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Output is what the step shows the lead.
type Output struct {
	Message   string   `json:"message,omitempty"`
	Choices   []Choice `json:"choices,omitempty"`
	MediaRefs []string `json:"mediaRefs,omitempty"`
}

// Result is a handler's answer for one turn.
type Result struct {
	Handle string
	// Await keeps the conversation on this step until the next input.
	Await  bool
	Output Output
	// Context holds variables to write into the conversation.
	Context map[string]any
}

// Handler executes one step kind. Execute never fails: problems are routed
// to a declared handle, usually DefaultHandle, with a user-facing message.
type Handler interface {
	Kind() graph.Kind
	Handles() []string
	DefaultHandle() string
	Execute(ctx context.Context, in Input) Result
}

// ConfigValidator is implemented by handlers that can check a step config
// when a template is registered.
type ConfigValidator interface {
	ValidateConfig(config map[string]any) error
}

// Registry maps each kind to its handler.
type Registry struct {
	handlers map[graph.Kind]Handler
}

// NewRegistry registers handlers. Two handlers for one kind is an error.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[graph.Kind]Handler, len(handlers))}
	for _, h := range handlers {
		if !graph.IsKnownKind(h.Kind()) {
			return nil, fmt.Errorf("handler for unknown kind %q", h.Kind())
		}
		if _, dup := r.handlers[h.Kind()]; dup {
			return nil, fmt.Errorf("duplicate handler for kind %q", h.Kind())
		}
		if !contains(h.Handles(), h.DefaultHandle()) {
			return nil, fmt.Errorf("kind %s: default handle %q is not declared", h.Kind(), h.DefaultHandle())
		}
		r.handlers[h.Kind()] = h
	}
	return r, nil
}

// Handler returns the handler for kind.
func (r *Registry) Handler(kind graph.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Missing lists known kinds without a handler.
func (r *Registry) Missing() []graph.Kind {
	var out []graph.Kind
	for _, k := range graph.Kinds() {
		if _, ok := r.handlers[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// RequireComplete fails unless every known kind has a handler.
func (r *Registry) RequireComplete() error {
	if missing := r.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, k := range missing {
			names[i] = string(k)
		}
		return fmt.Errorf("no handler registered for kinds: %s", strings.Join(names, ", "))
	}
	return nil
}

// Declared returns the handles a kind can emit, sorted.
func (r *Registry) Declared(kind graph.Kind) []string {
	h, ok := r.handlers[kind]
	if !ok {
		return nil
	}
	out := append([]string(nil), h.Handles()...)
	sort.Strings(out)
	return out
}

// Check verifies that every step of t has a handler, that every transition
// uses a handle the step can emit and that step configs decode.
func (r *Registry) Check(t *graph.Template) error {
	var errs []error
	for _, step := range t.Steps() {
		h, ok := r.handlers[step.Kind]
		if !ok {
			errs = append(errs, fmt.Errorf("step %s: no handler for kind %s", step.ID, step.Kind))
			continue
		}
		if v, ok := h.(ConfigValidator); ok {
			if err := v.ValidateConfig(step.Config); err != nil {
				errs = append(errs, fmt.Errorf("step %s: %w", step.ID, err))
			}
		}
	}
	if err := t.CheckHandles(r.Declared); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func contains(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}
