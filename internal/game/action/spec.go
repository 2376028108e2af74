package action

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec is the YAML form of an action. Behaviors are bound separately because
// YAML cannot carry functions.
type Spec struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Kind         string         `yaml:"kind"`
	Target       string         `yaml:"target"`
	MinRange     float64        `yaml:"min_range"`
	MaxRange     float64        `yaml:"max_range"`
	Cooldown     int            `yaml:"cooldown"`
	ResourceCost map[string]int `yaml:"resource_cost"`
	Tags         []string       `yaml:"tags"`
	Categories   []string       `yaml:"categories"`
	Damage       string         `yaml:"damage"`      // dice expression, e.g. "1d8+2"
	DamageKind   string         `yaml:"damage_kind"` // e.g. "slashing"
	Effects      []string       `yaml:"effects"`     // effect template IDs applied on success
	LuaLegal     string         `yaml:"lua_legal"`   // global Lua function name
	LuaExecute   string         `yaml:"lua_execute"` // global Lua function name
}

// Definition converts the static fields of s into a Definition without behaviors.
func (s Spec) Definition() (*Definition, error) {
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", s.ID, err)
	}
	target := TargetSingle
	if s.Target != "" {
		if target, err = ParseTarget(s.Target); err != nil {
			return nil, fmt.Errorf("action %q: %w", s.ID, err)
		}
	}
	def := &Definition{
		ID:           s.ID,
		Name:         s.Name,
		Description:  strings.TrimSpace(s.Description),
		Kind:         kind,
		Target:       target,
		MinRange:     s.MinRange,
		MaxRange:     s.MaxRange,
		Cooldown:     s.Cooldown,
		ResourceCost: s.ResourceCost,
		Tags:         s.Tags,
	}
	return def, def.Validate()
}

// LoadSpecs reads every *.yaml file in dir, one Spec per file, in file-name order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the specs, or an error naming the first file that fails to parse.
func LoadSpecs(dir string) ([]Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading action dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var s Spec
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}
