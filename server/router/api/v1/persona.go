package v1

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Persona is a named conversational character: the system instructions
// and generation knobs a chat runs with.
type Persona struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	SystemPrompt string  `json:"systemPrompt"`
	Temperature  float32 `json:"temperature"`
}

// Registry is a validated, read-only persona lookup. Lookups return a
// typed (persona, found) pair instead of indexing an untyped table.
type Registry struct {
	personas map[string]*Persona
	order    []string
}

// NewRegistry builds a registry from the given personas. IDs must be
// unique and system prompts non-empty.
func NewRegistry(personas []*Persona) (*Registry, error) {
	r := &Registry{personas: make(map[string]*Persona, len(personas))}
	for _, p := range personas {
		if p.ID == "" {
			return nil, errors.New("persona with empty id")
		}
		if p.SystemPrompt == "" {
			return nil, errors.Errorf("persona %q has no system prompt", p.ID)
		}
		if _, ok := r.personas[p.ID]; ok {
			return nil, errors.Errorf("duplicate persona id %q", p.ID)
		}
		r.personas[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	if len(r.order) == 0 {
		return nil, errors.New("no personas defined")
	}
	return r, nil
}

// LoadRegistry reads persona definitions from a JSON file, or falls back
// to the built-in set when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(defaultPersonas())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read persona file %s", path)
	}
	var personas []*Persona
	if err := json.Unmarshal(raw, &personas); err != nil {
		return nil, errors.Wrapf(err, "parse persona file %s", path)
	}
	return NewRegistry(personas)
}

// Lookup returns the persona with the given id.
func (r *Registry) Lookup(id string) (*Persona, bool) {
	p, ok := r.personas[id]
	return p, ok
}

// List returns all personas in definition order.
func (r *Registry) List() []*Persona {
	out := make([]*Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.personas[id])
	}
	return out
}

func defaultPersonas() []*Persona {
	return []*Persona{
		{
			ID:          "sage",
			Name:        "Sage",
			Description: "A calm, thoughtful mentor.",
			SystemPrompt: "You are Sage, a calm and thoughtful mentor. " +
				"You answer with patience, draw on what you know about the user, " +
				"and prefer asking one good question over giving ten answers.",
			Temperature: 0.6,
		},
		{
			ID:          "scout",
			Name:        "Scout",
			Description: "An upbeat, curious companion.",
			SystemPrompt: "You are Scout, an upbeat and curious companion. " +
				"You keep replies short, playful and concrete, and you remember " +
				"the little details the user shares.",
			Temperature: 0.9,
		},
	}
}
