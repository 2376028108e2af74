package combat

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// ApplyDamage deals amount of damageKind to targetID after the target's
// resistances, vulnerabilities and immunities. sourceID may be empty.
//
// Postcondition: 0 <= CurrentHP <= MaxHP. Result.Damage is the hit point
// loss after modifiers. The target is defeated exactly once, when its hit
// points first reach 0.
func (c *Combat) ApplyDamage(sourceID, targetID string, amount int, damageKind string) (Result, error) {
	defer c.operation()()
	target, ok := c.combatants[targetID]
	if !ok {
		return c.result(Result{}), fmt.Errorf("apply damage to %q: %w", targetID, ErrNotFound)
	}
	if amount < 0 {
		return c.result(Result{}), fmt.Errorf("apply damage to %q: amount %d is negative", targetID, amount)
	}
	if !target.IsAlive() {
		return c.result(failure(fmt.Sprintf("%s is already defeated", target.Name))), nil
	}
	dealt := c.applyDamage(sourceID, targetID, float64(amount), damageKind)
	return c.result(Result{
		Success: true,
		Damage:  dealt,
		Message: fmt.Sprintf("%s takes %d damage", target.Name, dealt),
	}), nil
}

// applyDamage returns the hit points actually removed.
func (c *Combat) applyDamage(sourceID, targetID string, amount float64, damageKind string) int {
	target := c.combatants[targetID]
	if target == nil || !target.IsAlive() {
		return 0
	}
	modified := max(int(math.Floor(c.effects.ModifyDamage(targetID, amount, damageKind))), 0)
	dealt := min(modified, target.CurrentHP)
	target.CurrentHP -= dealt
	c.notify(TelemetryEvent{Type: EventDamage, ActorID: sourceID, TargetID: targetID, Amount: float64(modified),
		Detail: map[string]any{"kind": damageKind, "base": amount}})
	if damageKind != "" {
		c.logf("%s takes %d %s damage", target.Name, modified, damageKind)
	} else {
		c.logf("%s takes %d damage", target.Name, modified)
	}
	c.logger.Debug("damage applied",
		zap.String("source", sourceID),
		zap.String("target", targetID),
		zap.Float64("base", amount),
		zap.Int("modified", modified),
		zap.Int("hp", target.CurrentHP),
	)
	if modified > 0 {
		c.dispatch(Trigger{Type: "damage_taken", SourceID: sourceID, TargetID: targetID, Data: modified})
	}
	if target.CurrentHP == 0 && !target.Defeated {
		c.handleDeath(targetID, sourceID)
	}
	return modified
}

// ApplyHealing restores up to amount hit points to targetID, capped at its
// maximum. Defeated combatants are not revived.
func (c *Combat) ApplyHealing(sourceID, targetID string, amount int) (Result, error) {
	defer c.operation()()
	target, ok := c.combatants[targetID]
	if !ok {
		return c.result(Result{}), fmt.Errorf("apply healing to %q: %w", targetID, ErrNotFound)
	}
	if amount < 0 {
		return c.result(Result{}), fmt.Errorf("apply healing to %q: amount %d is negative", targetID, amount)
	}
	if !target.IsAlive() {
		return c.result(failure(fmt.Sprintf("%s is defeated and cannot be healed", target.Name))), nil
	}
	healed := c.applyHealing(sourceID, targetID, amount)
	return c.result(Result{
		Success: true,
		Healing: healed,
		Message: fmt.Sprintf("%s recovers %d hit points", target.Name, healed),
	}), nil
}

func (c *Combat) applyHealing(sourceID, targetID string, amount int) int {
	target := c.combatants[targetID]
	if target == nil || !target.IsAlive() || amount <= 0 {
		return 0
	}
	healed := min(amount, target.MaxHP-target.CurrentHP)
	target.CurrentHP += healed
	c.notify(TelemetryEvent{Type: EventHeal, ActorID: sourceID, TargetID: targetID, Amount: float64(healed)})
	c.logf("%s recovers %d hit points", target.Name, healed)
	return healed
}

// handleDeath marks id defeated, takes it out of the rotation and drops its
// per-combat state. If it held the turn, the next combatant's turn begins.
func (c *Combat) handleDeath(id, killerID string) {
	target := c.combatants[id]
	target.Defeated = true
	target.CurrentHP = 0
	wasCurrent := c.isCurrent(id)
	c.notify(TelemetryEvent{Type: EventDeath, ActorID: killerID, TargetID: id})
	c.logf("%s is defeated", target.Name)
	c.logger.Info("combatant defeated", zap.String("combatant", id), zap.String("killer", killerID))
	c.detach(id)
	c.economy.Leave(id)
	c.settle(wasCurrent)
}

// autoResolve ends the combat when Options.AutoResolve is set and one side
// has no one left standing. Combats that never had both sides are left alone.
func (c *Combat) autoResolve() {
	if !c.opts.AutoResolve || c.Status().IsTerminal() || c.Status() == StatusInitializing {
		return
	}
	var players, npcs, livePlayers, liveNPCs int
	for _, cb := range c.combatants {
		switch cb.Kind {
		case KindPlayer:
			players++
			if cb.IsAlive() {
				livePlayers++
			}
		case KindNPC:
			npcs++
			if cb.IsAlive() {
				liveNPCs++
			}
		}
	}
	if players == 0 || npcs == 0 {
		return
	}
	switch {
	case liveNPCs == 0:
		_ = c.fire(terminalEvents[StatusVictory])
	case livePlayers == 0:
		_ = c.fire(terminalEvents[StatusDefeat])
	}
}
