package effect

import (
	"math"
	"strings"
)

// Default multipliers used when a Resistance or Vulnerability omits one.
const (
	DefaultResistance    = 0.5
	DefaultVulnerability = 2.0
)

var disablingConditions = map[string]bool{
	"stunned":     true,
	"paralyzed":   true,
	"unconscious": true,
}

// movementFactors scales the movement budget granted at turn start.
var movementFactors = map[string]float64{
	"prone":      0.5,
	"grappled":   0,
	"restrained": 0,
}

// ModifyDamage folds every damage modifier on targetID over amount, in the
// order the effects were applied. The fold runs in floating point; callers
// round the final value.
//
// Postcondition: Returns >= 0 when amount >= 0.
func (l *Ledger) ModifyDamage(targetID string, amount float64, damageKind string) float64 {
	for _, e := range l.effects[targetID] {
		if !e.coversDamage(damageKind) {
			continue
		}
		switch e.Kind {
		case Resistance:
			amount *= multiplierOr(e.Multiplier, DefaultResistance)
		case Vulnerability:
			amount *= multiplierOr(e.Multiplier, DefaultVulnerability)
		case Immunity:
			amount = 0
		}
	}
	return amount
}

// ModifyDamageInt is ModifyDamage for whole hit points, rounding down.
func (l *Ledger) ModifyDamageInt(targetID string, amount int, damageKind string) int {
	return int(math.Floor(l.ModifyDamage(targetID, float64(amount), damageKind)))
}

func multiplierOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// PreventsAction reports whether an active condition on sourceID (stunned,
// paralyzed or unconscious) forbids acting at all.
func (l *Ledger) PreventsAction(sourceID string) bool {
	_, ok := l.DisablingCondition(sourceID)
	return ok
}

// DisablingCondition returns the first condition on sourceID that forbids acting.
func (l *Ledger) DisablingCondition(sourceID string) (string, bool) {
	for _, e := range l.effects[sourceID] {
		if e.Kind == Condition && disablingConditions[e.ConditionName()] {
			return e.ConditionName(), true
		}
	}
	return "", false
}

// Restricts reports whether any effect on sourceID forbids the action with
// the given ID or any of its tags.
func (l *Ledger) Restricts(sourceID, actionID string, tags []string) bool {
	for _, e := range l.effects[sourceID] {
		for _, r := range e.Restricts {
			if strings.EqualFold(r, actionID) {
				return true
			}
			for _, t := range tags {
				if strings.EqualFold(r, t) {
					return true
				}
			}
		}
	}
	return false
}

// MovementFactor returns the multiplier applied to targetID's movement
// budget: prone halves it, grappled and restrained remove it.
//
// Postcondition: 0 <= result <= 1.
func (l *Ledger) MovementFactor(targetID string) float64 {
	factor := 1.0
	for _, e := range l.effects[targetID] {
		if e.Kind != Condition {
			continue
		}
		if f, ok := movementFactors[e.ConditionName()]; ok && f < factor {
			factor = f
		}
	}
	return factor
}
