package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"leadflow_backend/platform/apperr"
)

const sampleTemplate = `
id: buyer-intake
name: Buyer intake
start: welcome
steps:
  - id: welcome
    kind: message
    config:
      text: "Hola {{name}}"
  - id: score
    kind: lead_qualification
    config:
      highThreshold: 70
      mediumThreshold: 40
  - id: book
    kind: book_appointment
transitions:
  - { source: welcome, handle: next, target: score }
  - { source: score, handle: high, target: book }
`

func TestParseCompilesTemplate(t *testing.T) {
	tpl, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.ID() != "buyer-intake" || tpl.Start() != "welcome" {
		t.Fatalf("unexpected template header: %s/%s", tpl.ID(), tpl.Start())
	}

	step, ok := tpl.Step("score")
	if !ok || step.Kind != KindLeadQualification {
		t.Fatalf("expected qualification step, got %+v", step)
	}
	if step.Config["highThreshold"] != 70 {
		t.Fatalf("expected config to survive decoding, got %#v", step.Config)
	}

	if target, ok := tpl.Next("score", "high"); !ok || target != "book" {
		t.Fatalf("expected score/high -> book, got %q %v", target, ok)
	}
	if _, ok := tpl.Next("score", "low"); ok {
		t.Fatal("expected score/low to have no transition")
	}
}

func TestCompileRejectsInvalidDefinitions(t *testing.T) {
	steps := []Step{{ID: "a", Kind: KindMessage}, {ID: "b", Kind: KindMessage}}

	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{name: "missing id", def: Definition{Steps: steps}, want: "id is required"},
		{name: "no steps", def: Definition{ID: "t"}, want: "at least one step"},
		{
			name: "duplicate step",
			def:  Definition{ID: "t", Steps: []Step{{ID: "a", Kind: KindMessage}, {ID: "a", Kind: KindMessage}}},
			want: "duplicate step id",
		},
		{
			name: "unknown kind",
			def:  Definition{ID: "t", Steps: []Step{{ID: "a", Kind: "teleport"}}},
			want: "unknown kind",
		},
		{
			name: "dangling target",
			def:  Definition{ID: "t", Steps: steps, Transitions: []Transition{{Source: "a", Handle: "next", Target: "z"}}},
			want: "unknown step",
		},
		{
			name: "duplicate source and handle",
			def: Definition{ID: "t", Steps: steps, Transitions: []Transition{
				{Source: "a", Handle: "next", Target: "b"},
				{Source: "a", Handle: "next", Target: "a"},
			}},
			want: "duplicate transition",
		},
		{name: "bad start", def: Definition{ID: "t", Start: "zz", Steps: steps}, want: "start step"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.def)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestStartDefaultsToFirstStep(t *testing.T) {
	tpl, err := Compile(Definition{ID: "t", Steps: []Step{{ID: "first", Kind: KindMessage}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Start() != "first" {
		t.Fatalf("expected first, got %s", tpl.Start())
	}
}

func TestCheckHandles(t *testing.T) {
	tpl, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	declared := map[Kind][]string{
		KindMessage:           {"next"},
		KindLeadQualification: {"high", "medium", "low"},
		KindBookAppointment:   {"success", "failure"},
	}
	if err := tpl.CheckHandles(func(k Kind) []string { return declared[k] }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	declared[KindLeadQualification] = []string{"hot", "cold"}
	if err := tpl.CheckHandles(func(k Kind) []string { return declared[k] }); err == nil {
		t.Fatal("expected undeclared handle to be rejected")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "intake.yaml"), []byte(sampleTemplate), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}

	source, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := source.Template(context.Background(), "buyer-intake"); err != nil {
		t.Fatalf("expected template to be loaded: %v", err)
	}
	_, err = source.Template(context.Background(), "other")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadDirMissingDirectoryIsEmpty(t *testing.T) {
	source, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(source.IDs()) != 0 {
		t.Fatalf("expected no templates, got %v", source.IDs())
	}
}
