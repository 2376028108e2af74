// Package economy enforces the per-turn action budget: one standard, one
// bonus and one reaction per turn, a movement allowance, and per-action
// cooldowns counted in turns.
package economy

import (
	"fmt"
	"maps"
	"slices"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
)

// DefaultMovement is the movement budget granted each turn when none is configured.
const DefaultMovement = 30.0

// State is one combatant's action budget for the current turn.
type State struct {
	StandardUsed bool           `json:"standardUsed"`
	BonusUsed    bool           `json:"bonusUsed"`
	ReactionUsed bool           `json:"reactionUsed"`
	Movement     float64        `json:"movement"`
	Used         []string       `json:"used,omitempty"`      // action IDs used this turn, in order
	Cooldowns    map[string]int `json:"cooldowns,omitempty"` // action ID -> turns remaining
}

func (s State) clone() State {
	s.Used = slices.Clone(s.Used)
	s.Cooldowns = maps.Clone(s.Cooldowns)
	return s
}

func (s *State) slotFree(k action.Kind) bool {
	switch k {
	case action.Standard:
		return !s.StandardUsed
	case action.Bonus:
		return !s.BonusUsed
	case action.Reaction:
		return !s.ReactionUsed
	case action.Movement:
		return s.Movement > 0
	default:
		return true
	}
}

func (s *State) spend(k action.Kind) {
	switch k {
	case action.Standard:
		s.StandardUsed = true
	case action.Bonus:
		s.BonusUsed = true
	case action.Reaction:
		s.ReactionUsed = true
	}
}

// Remaining summarises what a combatant can still do this turn.
type Remaining struct {
	Standard bool    `json:"standard"`
	Bonus    bool    `json:"bonus"`
	Reaction bool    `json:"reaction"`
	Movement float64 `json:"movement"`
}

// Tracker holds the action budget of every combatant in one combat.
// It is not safe for concurrent use.
type Tracker struct {
	states   map[string]*State
	movement float64
}

// NewTracker creates a Tracker granting movement units per turn.
// A non-positive movement uses DefaultMovement.
func NewTracker(movement float64) *Tracker {
	if movement <= 0 {
		movement = DefaultMovement
	}
	return &Tracker{states: make(map[string]*State), movement: movement}
}

// Budget returns the configured movement per turn.
func (t *Tracker) Budget() float64 { return t.movement }

// Join gives id a fresh budget. Joining twice keeps the existing state.
func (t *Tracker) Join(id string) {
	if _, ok := t.states[id]; ok {
		return
	}
	t.states[id] = &State{Movement: t.movement, Cooldowns: map[string]int{}}
}

// Leave forgets id.
func (t *Tracker) Leave(id string) { delete(t.states, id) }

// Has reports whether id has joined.
func (t *Tracker) Has(id string) bool {
	_, ok := t.states[id]
	return ok
}

// CanUse reports whether id may use def on target right now: the action is
// off cooldown, its slot is free, and its legality predicate passes.
func (t *Tracker) CanUse(id string, def *action.Definition, source action.Subject, target *action.Subject) bool {
	return t.CanUseAs(id, def, def.Kind, source, target)
}

// CanUseAs is CanUse charging the action to slot k instead of def.Kind.
// Readied actions use it to spend the reaction slot.
func (t *Tracker) CanUseAs(id string, def *action.Definition, k action.Kind, source action.Subject, target *action.Subject) bool {
	return t.check(id, def, k, source, target) == ""
}

func (t *Tracker) check(id string, def *action.Definition, k action.Kind, source action.Subject, target *action.Subject) string {
	s, ok := t.states[id]
	if !ok {
		return fmt.Sprintf("%s is not in this combat", id)
	}
	if cd := s.Cooldowns[def.ID]; cd > 0 {
		return fmt.Sprintf("%s is on cooldown for %d more turn(s)", def.Name, cd)
	}
	if !s.slotFree(k) {
		if k == action.Movement {
			return "no movement remaining"
		}
		return fmt.Sprintf("%s action already used this turn", k)
	}
	if !def.IsLegal(source, target) {
		return fmt.Sprintf("%s cannot be used on that target", def.Name)
	}
	return ""
}

// Use re-validates, executes def and, on success only, spends the slot,
// records the action and starts its cooldown.
//
// Postcondition: a failed Outcome leaves the budget unchanged.
func (t *Tracker) Use(id string, def *action.Definition, source action.Subject, target *action.Subject) action.Outcome {
	return t.UseAs(id, def, def.Kind, source, target)
}

// UseAs is Use charging slot k.
func (t *Tracker) UseAs(id string, def *action.Definition, k action.Kind, source action.Subject, target *action.Subject) action.Outcome {
	if reason := t.check(id, def, k, source, target); reason != "" {
		return action.Fail("%s", reason)
	}
	out := def.Run(source, target)
	if !out.Success {
		return out
	}
	s := t.states[id]
	s.spend(k)
	s.Used = append(s.Used, def.ID)
	if def.Cooldown > 0 {
		s.Cooldowns[def.ID] = def.Cooldown
	}
	return out
}

// SpendStandard marks id's standard action as used. It reports false when
// the slot was already spent or id is unknown.
func (t *Tracker) SpendStandard(id string) bool {
	s, ok := t.states[id]
	if !ok || s.StandardUsed {
		return false
	}
	s.StandardUsed = true
	return true
}

// UseMovement deducts up to distance from id's movement and returns the
// amount actually spent.
//
// Postcondition: 0 <= spent <= min(distance, remaining before the call).
func (t *Tracker) UseMovement(id string, distance float64) float64 {
	s, ok := t.states[id]
	if !ok || distance <= 0 {
		return 0
	}
	spent := min(distance, s.Movement)
	s.Movement -= spent
	return spent
}

// ResetForTurn restores id's slots and movement and counts cooldowns down
// by one, dropping those that reach zero. A non-positive movement grants
// nothing; use Budget() for the configured allowance.
//
// Postcondition: no cooldown is negative.
func (t *Tracker) ResetForTurn(id string, movement float64) {
	s, ok := t.states[id]
	if !ok {
		t.Join(id)
		s = t.states[id]
	}
	s.StandardUsed = false
	s.BonusUsed = false
	s.ReactionUsed = false
	s.Movement = max(movement, 0)
	s.Used = nil
	for actionID, cd := range s.Cooldowns {
		if cd <= 1 {
			delete(s.Cooldowns, actionID)
		} else {
			s.Cooldowns[actionID] = cd - 1
		}
	}
}

// Remaining reports what id can still do this turn.
func (t *Tracker) Remaining(id string) (Remaining, bool) {
	s, ok := t.states[id]
	if !ok {
		return Remaining{}, false
	}
	return Remaining{
		Standard: !s.StandardUsed,
		Bonus:    !s.BonusUsed,
		Reaction: !s.ReactionUsed,
		Movement: s.Movement,
	}, true
}

// Cooldown returns the turns remaining before id may use actionID again.
func (t *Tracker) Cooldown(id, actionID string) int {
	if s, ok := t.states[id]; ok {
		return s.Cooldowns[actionID]
	}
	return 0
}

// State returns a copy of id's budget.
func (t *Tracker) State(id string) (State, bool) {
	s, ok := t.states[id]
	if !ok {
		return State{}, false
	}
	return s.clone(), true
}

// Restore replaces id's budget with s.
//
// Postcondition: on error the tracker is unchanged.
func (t *Tracker) Restore(id string, s State) error {
	if s.Movement < 0 {
		return fmt.Errorf("restore %s: movement %g is negative", id, s.Movement)
	}
	for actionID, cd := range s.Cooldowns {
		if cd < 0 {
			return fmt.Errorf("restore %s: cooldown for %s is negative", id, actionID)
		}
	}
	c := s.clone()
	if c.Cooldowns == nil {
		c.Cooldowns = map[string]int{}
	}
	t.states[id] = &c
	return nil
}
