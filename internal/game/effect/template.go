package effect

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Template is the static definition of an effect, loaded from YAML.
type Template struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Kind          string   `yaml:"kind"`
	Duration      int      `yaml:"duration"` // turns; -1 = permanent
	Intensity     float64  `yaml:"intensity"`
	MaxStacks     int      `yaml:"max_stacks"`
	Stacking      string   `yaml:"stacking"`
	Tags          []string `yaml:"tags"`
	AmountPerTurn float64  `yaml:"amount_per_turn"`
	DamageKind    string   `yaml:"damage_kind"`
	DamageKinds   []string `yaml:"damage_kinds"`
	Multiplier    float64  `yaml:"multiplier"`
	ImmuneTo      []string `yaml:"immune_to"`
	Condition     string   `yaml:"condition"`
	Restricts     []string `yaml:"restricts"`
}

// Instantiate builds a fresh Effect from t. The ledger assigns the instance
// ID, source and target when the effect is applied.
func (t *Template) Instantiate() (Effect, error) {
	kind, err := ParseKind(t.Kind)
	if err != nil {
		return Effect{}, fmt.Errorf("template %q: %w", t.ID, err)
	}
	stacking := Replace
	if t.Stacking != "" {
		if stacking, err = ParseStacking(t.Stacking); err != nil {
			return Effect{}, fmt.Errorf("template %q: %w", t.ID, err)
		}
	}
	e := Effect{
		Name:          t.Name,
		Description:   strings.TrimSpace(t.Description),
		Kind:          kind,
		Duration:      t.Duration,
		Intensity:     t.Intensity,
		Stacks:        1,
		MaxStacks:     max(t.MaxStacks, 1),
		Stacking:      stacking,
		Tags:          t.Tags,
		AmountPerTurn: t.AmountPerTurn,
		DamageKind:    t.DamageKind,
		DamageKinds:   t.DamageKinds,
		Multiplier:    t.Multiplier,
		ImmuneTo:      t.ImmuneTo,
		Condition:     t.Condition,
		Restricts:     t.Restricts,
	}
	if e.Intensity == 0 {
		e.Intensity = 1
	}
	if err := e.Validate(); err != nil {
		return Effect{}, fmt.Errorf("template %q: %w", t.ID, err)
	}
	return e.clone(), nil
}

// Registry holds effect templates keyed by ID. Reads are safe for
// concurrent use once loading completes.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Template
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Template)}
}

// Register adds t, overwriting any template with the same ID.
//
// Precondition: t is non-nil with a non-empty ID.
// Postcondition: Returns an error if t cannot be instantiated.
func (r *Registry) Register(t *Template) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("register: template must have an id")
	}
	if _, err := t.Instantiate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[t.ID] = t
	return nil
}

// Get returns the template for id, or (nil, false).
func (r *Registry) Get(id string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.defs[id]
	return t, ok
}

// New instantiates the template id.
func (r *Registry) New(id string) (Effect, error) {
	t, ok := r.Get(id)
	if !ok {
		return Effect{}, fmt.Errorf("effect template %q not found", id)
	}
	return t.Instantiate()
}

// All returns every template sorted by ID.
func (r *Registry) All() []*Template {
	r.mu.RLock()
	out := make([]*Template, 0, len(r.defs))
	for _, t := range r.defs {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir as one Template and returns
// a populated Registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var t Template
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := reg.Register(&t); err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
	}
	return reg, nil
}
