// Package effect tracks timed combat effects (buffs, debuffs, conditions,
// damage and healing over time, resistances) per combatant and folds them
// into damage and action legality.
package effect

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags the variant of an Effect; behavior is dispatched on it.
type Kind int

const (
	Buff Kind = iota
	Debuff
	Condition
	DamageOverTime
	HealOverTime
	Resistance
	Vulnerability
	Immunity
	Trigger
	Passive
)

var kindNames = [...]string{
	Buff:           "buff",
	Debuff:         "debuff",
	Condition:      "condition",
	DamageOverTime: "damage_over_time",
	HealOverTime:   "heal_over_time",
	Resistance:     "resistance",
	Vulnerability:  "vulnerability",
	Immunity:       "immunity",
	Trigger:        "trigger",
	Passive:        "passive",
}

// String returns the snake_case kind name used in content and snapshots.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name to its Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown effect kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown effect kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Stacking decides what re-applying a same-named effect does.
type Stacking int

const (
	// Replace rejects re-application while the effect is active.
	Replace Stacking = iota
	DurationSum
	IntensitySum
	Both
	ReplaceIfStronger
	// Independent keeps each application as a separate instance.
	Independent
)

var stackingNames = [...]string{
	Replace:           "replace",
	DurationSum:       "duration",
	IntensitySum:      "intensity",
	Both:              "both",
	ReplaceIfStronger: "replace_if_stronger",
	Independent:       "independent",
}

// String returns the stacking name used in content and snapshots.
func (s Stacking) String() string {
	if s >= 0 && int(s) < len(stackingNames) {
		return stackingNames[s]
	}
	return fmt.Sprintf("stacking(%d)", int(s))
}

// ParseStacking maps a stacking name to its Stacking.
func ParseStacking(s string) (Stacking, error) {
	for i, name := range stackingNames {
		if strings.EqualFold(s, name) {
			return Stacking(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stacking behavior %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stacking) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stackingNames) {
		return nil, fmt.Errorf("unknown stacking behavior %d", int(s))
	}
	return []byte(stackingNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stacking) UnmarshalText(b []byte) error {
	v, err := ParseStacking(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Permanent is the Duration of an effect that never expires on its own.
const Permanent = -1

// Effect is one applied instance. It is plain data; the Ledger interprets
// the payload fields according to Kind.
type Effect struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Kind        Kind      `json:"kind"`
	Duration    int       `json:"duration"` // turns remaining; Permanent never expires
	Intensity   float64   `json:"intensity"`
	Stacks      int       `json:"stacks"`
	MaxStacks   int       `json:"maxStacks"`
	Stacking    Stacking  `json:"stacking"`
	SourceID    string    `json:"sourceId,omitempty"`
	TargetID    string    `json:"targetId,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	AppliedAt   time.Time `json:"appliedAt"`

	// DamageOverTime / HealOverTime
	AmountPerTurn float64 `json:"amountPerTurn,omitempty"`
	DamageKind    string  `json:"damageKind,omitempty"`
	// Resistance / Vulnerability / Immunity
	DamageKinds []string `json:"damageKinds,omitempty"`
	Multiplier  float64  `json:"multiplier,omitempty"`
	// Immunity against other effects, by kind name or effect name.
	ImmuneTo []string `json:"immuneTo,omitempty"`
	// Condition
	Condition string `json:"condition,omitempty"`
	// Restricts lists action IDs or action tags this effect forbids.
	Restricts []string `json:"restricts,omitempty"`
}

// IsPermanent reports whether the effect never expires on its own.
func (e Effect) IsPermanent() bool { return e.Duration < 0 }

// ConditionName returns the condition this effect imposes, lowercased.
// It falls back to Name when Condition is unset.
func (e Effect) ConditionName() string {
	if e.Condition != "" {
		return strings.ToLower(e.Condition)
	}
	return strings.ToLower(e.Name)
}

func (e Effect) coversDamage(kind string) bool {
	for _, k := range e.DamageKinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}

func (e Effect) clone() Effect {
	e.Tags = append([]string(nil), e.Tags...)
	e.DamageKinds = append([]string(nil), e.DamageKinds...)
	e.ImmuneTo = append([]string(nil), e.ImmuneTo...)
	e.Restricts = append([]string(nil), e.Restricts...)
	return e
}

// Validate checks the structural invariants of an effect instance.
func (e Effect) Validate() error {
	var errs []string
	if e.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if e.Kind < 0 || int(e.Kind) >= len(kindNames) {
		errs = append(errs, fmt.Sprintf("kind %d is invalid", int(e.Kind)))
	}
	if e.Stacking < 0 || int(e.Stacking) >= len(stackingNames) {
		errs = append(errs, fmt.Sprintf("stacking %d is invalid", int(e.Stacking)))
	}
	if e.Duration == 0 {
		errs = append(errs, "duration must be positive or permanent")
	}
	if e.MaxStacks < 1 || e.Stacks < 1 || e.Stacks > e.MaxStacks {
		errs = append(errs, fmt.Sprintf("stacks %d/%d are invalid", e.Stacks, e.MaxStacks))
	}
	if len(errs) > 0 {
		return fmt.Errorf("effect %q: %s", e.Name, strings.Join(errs, "; "))
	}
	return nil
}
