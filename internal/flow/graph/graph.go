// Package graph holds the immutable description of a chatbot script: steps
// typed by kind and handle-labelled transitions between them.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the closed set of step kinds.
type Kind string

const (
	KindMessage           Kind = "message"
	KindQuestion          Kind = "question"
	KindAIResponse        Kind = "ai_response"
	KindLeadQualification Kind = "lead_qualification"
	KindCheckAvailability Kind = "check_availability"
	KindBookAppointment   Kind = "book_appointment"
	KindProductCatalog    Kind = "product_catalog"
	KindServiceCatalog    Kind = "service_catalog"
)

var knownKinds = map[Kind]struct{}{
	KindMessage:           {},
	KindQuestion:          {},
	KindAIResponse:        {},
	KindLeadQualification: {},
	KindCheckAvailability: {},
	KindBookAppointment:   {},
	KindProductCatalog:    {},
	KindServiceCatalog:    {},
}

// IsKnownKind reports whether k belongs to the closed set.
func IsKnownKind(k Kind) bool {
	_, ok := knownKinds[k]
	return ok
}

// Kinds returns every known kind, sorted.
func Kinds() []Kind {
	out := make([]Kind, 0, len(knownKinds))
	for k := range knownKinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Step is one vertex of the graph. Config is kind specific and decoded by
// the step's handler.
type Step struct {
	ID     string         `yaml:"id" json:"id"`
	Kind   Kind           `yaml:"kind" json:"kind"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Transition is the edge (Source, Handle) -> Target.
type Transition struct {
	Source string `yaml:"source" json:"source"`
	Handle string `yaml:"handle" json:"handle"`
	Target string `yaml:"target" json:"target"`
}

// Definition is the authoring form of a template.
type Definition struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name,omitempty" json:"name,omitempty"`
	Start       string       `yaml:"start,omitempty" json:"start,omitempty"`
	Steps       []Step       `yaml:"steps" json:"steps"`
	Transitions []Transition `yaml:"transitions" json:"transitions"`
}

type edgeKey struct {
	source string
	handle string
}

// Template is a compiled, read-only Definition.
type Template struct {
	id    string
	name  string
	start string
	steps []Step
	index map[string]int
	edges map[edgeKey]string
}

// Compile validates def and builds a Template. The start step defaults to
// the first step.
func Compile(def Definition) (*Template, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return nil, fmt.Errorf("template id is required")
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("template %s: at least one step is required", id)
	}

	t := &Template{
		id:    id,
		name:  def.Name,
		steps: make([]Step, 0, len(def.Steps)),
		index: make(map[string]int, len(def.Steps)),
		edges: make(map[edgeKey]string, len(def.Transitions)),
	}

	for _, step := range def.Steps {
		if step.ID == "" {
			return nil, fmt.Errorf("template %s: step without id", id)
		}
		if _, dup := t.index[step.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate step id %q", id, step.ID)
		}
		if !IsKnownKind(step.Kind) {
			return nil, fmt.Errorf("template %s: step %s has unknown kind %q", id, step.ID, step.Kind)
		}
		t.index[step.ID] = len(t.steps)
		t.steps = append(t.steps, Step{ID: step.ID, Kind: step.Kind, Config: cloneMap(step.Config)})
	}

	for _, tr := range def.Transitions {
		if _, ok := t.index[tr.Source]; !ok {
			return nil, fmt.Errorf("template %s: transition from unknown step %q", id, tr.Source)
		}
		if _, ok := t.index[tr.Target]; !ok {
			return nil, fmt.Errorf("template %s: transition to unknown step %q", id, tr.Target)
		}
		if tr.Handle == "" {
			return nil, fmt.Errorf("template %s: transition from %s has no handle", id, tr.Source)
		}
		key := edgeKey{source: tr.Source, handle: tr.Handle}
		if _, dup := t.edges[key]; dup {
			return nil, fmt.Errorf("template %s: duplicate transition %s/%s", id, tr.Source, tr.Handle)
		}
		t.edges[key] = tr.Target
	}

	t.start = def.Start
	if t.start == "" {
		t.start = t.steps[0].ID
	}
	if _, ok := t.index[t.start]; !ok {
		return nil, fmt.Errorf("template %s: start step %q does not exist", id, t.start)
	}

	return t, nil
}

func (t *Template) ID() string    { return t.id }
func (t *Template) Name() string  { return t.name }
func (t *Template) Start() string { return t.start }

// Step returns the step with the given id.
func (t *Template) Step(id string) (Step, bool) {
	i, ok := t.index[id]
	if !ok {
		return Step{}, false
	}
	return t.steps[i], true
}

// Next resolves the transition for (stepID, handle). ok is false when the
// pair has no transition, which ends the flow.
func (t *Template) Next(stepID, handle string) (string, bool) {
	target, ok := t.edges[edgeKey{source: stepID, handle: handle}]
	return target, ok
}

// Steps returns the steps in authoring order.
func (t *Template) Steps() []Step {
	return append([]Step(nil), t.steps...)
}

// Handles returns the handles with an outgoing transition from stepID, sorted.
func (t *Template) Handles(stepID string) []string {
	var out []string
	for key := range t.edges {
		if key.source == stepID {
			out = append(out, key.handle)
		}
	}
	sort.Strings(out)
	return out
}

// CheckHandles verifies every transition handle is one that its source
// step's kind can emit. declared returns the handles of a kind.
func (t *Template) CheckHandles(declared func(Kind) []string) error {
	for key := range t.edges {
		step := t.steps[t.index[key.source]]
		allowed := declared(step.Kind)
		if !contains(allowed, key.handle) {
			return fmt.Errorf("template %s: step %s (%s) cannot emit handle %q (allowed: %s)",
				t.id, step.ID, step.Kind, key.handle, strings.Join(allowed, ", "))
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
