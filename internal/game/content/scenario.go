package content

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
)

// Scenario is a YAML-described starting line-up for one combat.
type Scenario struct {
	ID         string              `yaml:"id"`
	Combatants []ScenarioCombatant `yaml:"combatants"`
	Effects    []ScenarioEffect    `yaml:"effects"`
}

// ScenarioCombatant is one participant; HP defaults to MaxHP.
type ScenarioCombatant struct {
	ID        string      `yaml:"id"`
	Name      string      `yaml:"name"`
	Kind      combat.Kind `yaml:"kind"`
	MaxHP     int         `yaml:"max_hp"`
	HP        int         `yaml:"hp"`
	Dexterity int         `yaml:"dexterity"`
	X         float64     `yaml:"x"`
	Y         float64     `yaml:"y"`
}

// ScenarioEffect applies an effect template before the first turn.
type ScenarioEffect struct {
	Target   string `yaml:"target"`
	Template string `yaml:"template"`
}

// LoadScenario parses and validates the scenario at path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %q: %w", path, err)
	}
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario %q: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", path, err)
	}
	return &s, nil
}

// Validate checks that the scenario can seed a combat.
func (s *Scenario) Validate() error {
	if len(s.Combatants) < 2 {
		return errors.New("at least two combatants are required")
	}
	ids := make(map[string]bool, len(s.Combatants))
	for _, cb := range s.Combatants {
		if cb.ID == "" {
			return errors.New("combatant id must not be empty")
		}
		if ids[cb.ID] {
			return fmt.Errorf("combatant %q is listed twice", cb.ID)
		}
		ids[cb.ID] = true
	}
	for _, e := range s.Effects {
		if !ids[e.Target] {
			return fmt.Errorf("effect %q targets unknown combatant %q", e.Template, e.Target)
		}
	}
	return nil
}

// Seed adds the scenario's combatants to c, applies its starting effects
// and starts the combat.
//
// Precondition: c must be initializing.
// Postcondition: c is active, or an error names the step that failed.
func (s *Scenario) Seed(c *combat.Combat) error {
	for _, sc := range s.Combatants {
		hp := sc.HP
		if hp == 0 {
			hp = sc.MaxHP
		}
		name := sc.Name
		if name == "" {
			name = sc.ID
		}
		_, err := c.AddCombatant(combat.Combatant{
			ID:        sc.ID,
			Name:      name,
			Kind:      sc.Kind,
			MaxHP:     sc.MaxHP,
			CurrentHP: hp,
			Dexterity: sc.Dexterity,
			Position:  combat.Position{X: sc.X, Y: sc.Y},
		})
		if err != nil {
			return fmt.Errorf("adding %q: %w", sc.ID, err)
		}
	}
	for _, e := range s.Effects {
		res, err := c.ApplyEffectTemplate("", e.Target, e.Template)
		if err != nil {
			return fmt.Errorf("applying %q to %q: %w", e.Template, e.Target, err)
		}
		if !res.Success {
			return fmt.Errorf("applying %q to %q: %s", e.Template, e.Target, res.Message)
		}
	}
	if _, err := c.Start(); err != nil {
		return fmt.Errorf("starting: %w", err)
	}
	return nil
}
