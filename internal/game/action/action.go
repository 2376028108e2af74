// Package action defines the immutable action templates combatants choose
// from, and the registry that shares them across combats.
package action

import (
	"fmt"
	"strings"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
)

// Kind is the action-economy slot an action consumes.
type Kind int

const (
	Standard Kind = iota
	Bonus
	Reaction
	Movement
	Free
)

var kindNames = map[Kind]string{
	Standard: "standard",
	Bonus:    "bonus",
	Reaction: "reaction",
	Movement: "movement",
	Free:     "free",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Priority orders simultaneous resolution; lower resolves first.
func (k Kind) Priority() int {
	switch k {
	case Reaction:
		return 0
	case Standard:
		return 1
	case Bonus:
		return 2
	case Movement:
		return 3
	default:
		return 4
	}
}

// ParseKind maps a name such as "bonus" to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action kind %q", s)
}

// Target is the shape of what an action affects.
type Target int

const (
	TargetSelf Target = iota
	TargetSingle
	TargetMulti
	TargetArea
	TargetGlobal
)

var targetNames = map[Target]string{
	TargetSelf:   "self",
	TargetSingle: "single",
	TargetMulti:  "multi",
	TargetArea:   "area",
	TargetGlobal: "global",
}

// String returns the lowercase target name.
func (t Target) String() string {
	if s, ok := targetNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseTarget maps a name such as "single" to its Target.
func ParseTarget(s string) (Target, error) {
	for t, name := range targetNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown target shape %q", s)
}

// Subject is the read-only view of a combatant handed to action behaviors.
type Subject struct {
	ID        string
	Name      string
	CurrentHP int
	MaxHP     int
	Dexterity int
	Defeated  bool
}

// Outcome is what executing an action produced.
type Outcome struct {
	Success    bool
	Message    string
	Damage     int
	DamageKind string
	// Effects are applied to the target (or the actor for self-targeted actions)
	// after damage.
	Effects []effect.Effect
}

// Fail builds an unsuccessful Outcome.
func Fail(format string, args ...any) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...)}
}

// LegalFunc decides whether source may use the action on target.
// target is nil for actions without a target.
type LegalFunc func(source Subject, target *Subject) bool

// ExecuteFunc carries out the action. It must not mutate combat state
// directly; the combat applies the returned Outcome.
type ExecuteFunc func(source Subject, target *Subject) Outcome

// Definition is an immutable action template. Definitions are shared
// read-only by every combat once registered.
type Definition struct {
	ID           string
	Name         string
	Description  string
	Kind         Kind
	Target       Target
	MinRange     float64
	MaxRange     float64
	Cooldown     int // rounds; 0 means none
	ResourceCost map[string]int
	Tags         []string

	Legal   LegalFunc
	Execute ExecuteFunc
}

// HasTag reports whether the definition carries tag, ignoring case.
func (d *Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// IsLegal evaluates the legality predicate; a nil predicate always allows.
func (d *Definition) IsLegal(source Subject, target *Subject) bool {
	if d.Legal == nil {
		return true
	}
	return d.Legal(source, target)
}

// Run executes the action. A nil Execute reports a plain success.
func (d *Definition) Run(source Subject, target *Subject) Outcome {
	if d.Execute != nil {
		return d.Execute(source, target)
	}
	if target != nil {
		return Outcome{Success: true, Message: fmt.Sprintf("%s uses %s on %s", source.Name, d.Name, target.Name)}
	}
	return Outcome{Success: true, Message: fmt.Sprintf("%s uses %s", source.Name, d.Name)}
}

// Validate checks the structural invariants of a definition.
func (d *Definition) Validate() error {
	var errs []string
	if d.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if _, ok := kindNames[d.Kind]; !ok {
		errs = append(errs, fmt.Sprintf("kind %d is invalid", d.Kind))
	}
	if _, ok := targetNames[d.Target]; !ok {
		errs = append(errs, fmt.Sprintf("target %d is invalid", d.Target))
	}
	if d.Cooldown < 0 {
		errs = append(errs, "cooldown must not be negative")
	}
	if d.MinRange < 0 || (d.MaxRange > 0 && d.MaxRange < d.MinRange) {
		errs = append(errs, fmt.Sprintf("range [%g, %g] is invalid", d.MinRange, d.MaxRange))
	}
	if len(errs) > 0 {
		return fmt.Errorf("action %q: %s", d.ID, strings.Join(errs, "; "))
	}
	return nil
}
