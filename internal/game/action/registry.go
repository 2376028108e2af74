package action

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateAction is returned by Register when the ID is already taken.
var ErrDuplicateAction = errors.New("action already registered")

// Registry holds every known Definition keyed by ID. It is constructed
// explicitly and passed to each combat; reads are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	defs       map[string]*Definition
	categories map[string][]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:       make(map[string]*Definition),
		categories: make(map[string][]string),
	}
}

// Register adds def and files it under each category.
//
// Precondition: def is non-nil and must not be mutated after registration.
// Postcondition: Returns ErrDuplicateAction if def.ID is taken; the registry is unchanged on error.
func (r *Registry) Register(def *Definition, categories ...string) error {
	if def == nil {
		return fmt.Errorf("register: definition must not be nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("register %q: %w", def.ID, ErrDuplicateAction)
	}
	r.put(def, categories)
	return nil
}

// Override replaces any existing definition with def's ID.
func (r *Registry) Override(def *Definition, categories ...string) error {
	if def == nil {
		return fmt.Errorf("override: definition must not be nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(def.ID)
	r.put(def, categories)
	return nil
}

func (r *Registry) put(def *Definition, categories []string) {
	r.defs[def.ID] = def
	for _, c := range categories {
		r.categories[c] = append(r.categories[c], def.ID)
	}
}

func (r *Registry) removeLocked(id string) {
	delete(r.defs, id)
	for c, ids := range r.categories {
		kept := ids[:0]
		for _, x := range ids {
			if x != id {
				kept = append(kept, x)
			}
		}
		r.categories[c] = kept
	}
}

// Get returns the Definition for id, or (nil, false).
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

// All returns every Definition sorted by ID.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByCategory returns the definitions filed under category in registration order.
func (r *Registry) ByCategory(category string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.categories[category]
	out := make([]*Definition, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.defs[id])
	}
	return out
}

// ByKind returns every definition of kind k sorted by ID.
func (r *Registry) ByKind(k Kind) []*Definition {
	var out []*Definition
	for _, d := range r.All() {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
