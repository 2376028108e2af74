// Package combat composes the initiative queue, the action economy and the
// effect ledger into a single turn-based combat, and hosts many such combats
// in an Engine.
package combat

import (
	"fmt"
	"math"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
)

// Kind distinguishes player combatants from NPC combatants.
type Kind int

const (
	KindPlayer Kind = iota
	KindNPC
)

// String returns "player" or "npc".
func (k Kind) String() string {
	if k == KindNPC {
		return "npc"
	}
	return "player"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "player":
		*k = KindPlayer
	case "npc":
		*k = KindNPC
	default:
		return fmt.Errorf("unknown combatant kind %q", b)
	}
	return nil
}

// Position is a point in the combat area.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the Euclidean distance between p and q.
func (p Position) Distance(q Position) float64 {
	return math.Sqrt((p.X-q.X)*(p.X-q.X) + (p.Y-q.Y)*(p.Y-q.Y) + (p.Z-q.Z)*(p.Z-q.Z))
}

// Combatant is one participant. ID is the only key used for lookups.
type Combatant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	MaxHP      int    `json:"maxHp"`
	CurrentHP  int    `json:"currentHp"`
	Dexterity  int    `json:"dexterity"`
	Initiative int    `json:"initiative"`
	// Position is where the combatant is placed on joining. Afterwards the
	// Spatial service owns the position.
	Position Position `json:"position"`
	Defeated bool     `json:"defeated"`
}

// IsAlive reports whether c can still act.
func (c *Combatant) IsAlive() bool { return !c.Defeated && c.CurrentHP > 0 }

func (c *Combatant) validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("combatant id must not be empty")
	case c.MaxHP <= 0:
		return fmt.Errorf("combatant %q: max hp must be positive", c.ID)
	case c.CurrentHP < 0 || c.CurrentHP > c.MaxHP:
		return fmt.Errorf("combatant %q: hp %d outside [0, %d]", c.ID, c.CurrentHP, c.MaxHP)
	}
	return nil
}

func (c *Combatant) subject() action.Subject {
	return action.Subject{
		ID:        c.ID,
		Name:      c.Name,
		CurrentHP: c.CurrentHP,
		MaxHP:     c.MaxHP,
		Dexterity: c.Dexterity,
		Defeated:  c.Defeated,
	}
}

func subjectOf(c *Combatant) *action.Subject {
	if c == nil {
		return nil
	}
	s := c.subject()
	return &s
}

// AbilityMod computes the standard ability modifier using floor division: floor((score - 10) / 2).
// Postcondition: Returns floor((score - 10) / 2).
func AbilityMod(score int) int {
	diff := score - 10
	if diff < 0 {
		return (diff - 1) / 2
	}
	return diff / 2
}
