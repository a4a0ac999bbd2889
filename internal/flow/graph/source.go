package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"leadflow_backend/platform/apperr"

	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML (or JSON) template and compiles it.
func Parse(data []byte) (*Template, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return Compile(def)
}

// Source resolves templates by id.
type Source interface {
	Template(ctx context.Context, id string) (*Template, error)
}

// MemorySource serves templates held in memory.
type MemorySource struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewMemorySource creates a source holding the given templates.
func NewMemorySource(templates ...*Template) *MemorySource {
	s := &MemorySource{templates: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		s.templates[t.ID()] = t
	}
	return s
}

// Put adds or replaces a template.
func (s *MemorySource) Put(t *Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID()] = t
}

func (s *MemorySource) Template(_ context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("flow template %s not found", id))
	}
	return t, nil
}

// IDs lists template ids, sorted.
func (s *MemorySource) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadDir parses every .yaml, .yml and .json file in dir. A missing
// directory yields an empty source.
func LoadDir(dir string) (*MemorySource, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return NewMemorySource(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	source := NewMemorySource()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		t, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if _, err := source.Template(context.Background(), t.ID()); err == nil {
			return nil, fmt.Errorf("%s: duplicate template id %s", entry.Name(), t.ID())
		}
		source.Put(t)
	}
	return source, nil
}
