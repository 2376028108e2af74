package combat

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/economy"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
)

// TakeAction has actorID use actionID on targetID (empty for untargeted
// actions). Off-turn use is allowed only for Reaction actions.
//
// Postcondition: a failed Result leaves the combat unchanged. On success the
// outcome's damage and effects have been applied.
func (c *Combat) TakeAction(actorID, actionID, targetID string) (Result, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return c.result(Result{}), fmt.Errorf("take action: %w", ErrNotActive)
	}
	actor, def, target, err := c.resolve(actorID, actionID, targetID)
	if err != nil {
		return c.result(Result{}), err
	}
	if reason := c.precheck(actor, def, target, true); reason != "" {
		return c.result(failure(reason)), nil
	}
	c.checkpoint()
	res := c.perform(actor, def, def.Kind, target)
	if !res.Success {
		c.dropCheckpoint()
	}
	return c.result(res), nil
}

func (c *Combat) resolve(actorID, actionID, targetID string) (*Combatant, *action.Definition, *Combatant, error) {
	actor, ok := c.combatants[actorID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("actor %q: %w", actorID, ErrNotFound)
	}
	def, ok := c.registry.Get(actionID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("action %q: %w", actionID, ErrNotFound)
	}
	var target *Combatant
	if targetID != "" {
		if target, ok = c.combatants[targetID]; !ok {
			return nil, nil, nil, fmt.Errorf("target %q: %w", targetID, ErrNotFound)
		}
	}
	return actor, def, target, nil
}

// precheck returns why actor cannot use def on target before the economy is
// consulted, or "" when nothing in the combat itself forbids it.
func (c *Combat) precheck(actor *Combatant, def *action.Definition, target *Combatant, checkTurn bool) string {
	if reason := c.actorCheck(actor, def, checkTurn); reason != "" {
		return reason
	}
	return c.targetCheck(actor, def, target)
}

// actorCheck returns why actor cannot use def at all right now, or "".
func (c *Combat) actorCheck(actor *Combatant, def *action.Definition, checkTurn bool) string {
	if !actor.IsAlive() {
		return fmt.Sprintf("%s is defeated", actor.Name)
	}
	if checkTurn && def.Kind != action.Reaction && !c.isCurrent(actor.ID) {
		return fmt.Sprintf("It is not %s's turn", actor.Name)
	}
	if cond, ok := c.effects.DisablingCondition(actor.ID); ok {
		return fmt.Sprintf("%s is %s and cannot act", actor.Name, cond)
	}
	if c.effects.Restricts(actor.ID, def.ID, def.Tags) {
		return fmt.Sprintf("%s cannot use %s right now", actor.Name, def.Name)
	}
	return ""
}

// targetCheck returns why def cannot reach target from actor, or "".
func (c *Combat) targetCheck(actor *Combatant, def *action.Definition, target *Combatant) string {
	if target == nil {
		if def.Target == action.TargetSingle {
			return fmt.Sprintf("%s needs a target", def.Name)
		}
		return ""
	}
	if !target.IsAlive() && def.Target != action.TargetSelf {
		return fmt.Sprintf("%s is already defeated", target.Name)
	}
	if target.ID != actor.ID {
		if c.visibility.VisibilityBetween(actor.ID, target.ID) == SightNone {
			return fmt.Sprintf("%s cannot see %s", actor.Name, target.Name)
		}
		if d, ok := c.distance(actor.ID, target.ID); ok {
			if def.MaxRange > 0 && d > def.MaxRange {
				return fmt.Sprintf("%s is out of range (%.0f > %.0f)", target.Name, d, def.MaxRange)
			}
			if d < def.MinRange {
				return fmt.Sprintf("%s is too close (%.0f < %.0f)", target.Name, d, def.MinRange)
			}
		}
	}
	return ""
}

func (c *Combat) distance(a, b string) (float64, bool) {
	pa, ok := c.spatial.EntityPosition(a)
	if !ok {
		return 0, false
	}
	pb, ok := c.spatial.EntityPosition(b)
	if !ok {
		return 0, false
	}
	return pa.Distance(pb), true
}

// perform charges slot, runs def and applies its outcome.
func (c *Combat) perform(actor *Combatant, def *action.Definition, slot action.Kind, target *Combatant) Result {
	out := c.economy.UseAs(actor.ID, def, slot, actor.subject(), subjectOf(target))
	if !out.Success {
		return failure(out.Message)
	}
	targetID := ""
	if target != nil {
		targetID = target.ID
	}
	c.notify(TelemetryEvent{Type: EventAction, ActorID: actor.ID, TargetID: targetID,
		Detail: map[string]any{"action": def.ID, "kind": slot.String()}})
	c.logf("%s", out.Message)
	c.logger.Debug("action taken",
		zap.String("actor", actor.ID),
		zap.String("action", def.ID),
		zap.String("target", targetID),
		zap.Int("damage", out.Damage),
	)

	res := Result{Success: true, Message: out.Message}
	if out.Damage > 0 && target != nil {
		res.Damage = c.applyDamage(actor.ID, target.ID, float64(out.Damage), out.DamageKind)
	}
	recipient := target
	if def.Target == action.TargetSelf || recipient == nil {
		recipient = actor
	}
	for _, e := range out.Effects {
		if !recipient.IsAlive() {
			break
		}
		res.Effects = append(res.Effects, c.effects.Apply(actor.ID, recipient.ID, e))
	}
	return res
}

// Intent is one entry of a simultaneous batch.
type Intent struct {
	ActorID  string `json:"actorId"`
	ActionID string `json:"actionId"`
	TargetID string `json:"targetId,omitempty"`
}

// ExecuteSimultaneousActions validates every intent first and executes none
// unless all are legal. Legal batches run in action-kind priority order
// (Reaction, Standard, Bonus, Movement, Free), ties keeping submission order.
// Batched intents are not bound to the current turn.
//
// Postcondition: on ErrIllegalBatch no intent has been executed.
func (c *Combat) ExecuteSimultaneousActions(intents []Intent) ([]Result, View, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return nil, c.State(), fmt.Errorf("simultaneous actions: %w", ErrNotActive)
	}
	type step struct {
		actor  *Combatant
		def    *action.Definition
		target *Combatant
	}
	steps := make([]step, len(intents))
	slots := make(map[string]bool)
	cooling := make(map[string]bool)
	for i, in := range intents {
		actor, def, target, err := c.resolve(in.ActorID, in.ActionID, in.TargetID)
		if err != nil {
			return nil, c.State(), fmt.Errorf("intent %d: %w", i, err)
		}
		if reason := c.precheck(actor, def, target, false); reason != "" {
			return nil, c.State(), fmt.Errorf("intent %d: %s: %w", i, reason, ErrIllegalBatch)
		}
		if !c.economy.CanUse(actor.ID, def, actor.subject(), subjectOf(target)) {
			return nil, c.State(), fmt.Errorf("intent %d: %s cannot use %s: %w", i, actor.Name, def.Name, ErrIllegalBatch)
		}
		if def.Kind != action.Free && def.Kind != action.Movement {
			key := actor.ID + "/" + def.Kind.String()
			if slots[key] {
				return nil, c.State(), fmt.Errorf("intent %d: %s uses the %s slot twice: %w", i, actor.Name, def.Kind, ErrIllegalBatch)
			}
			slots[key] = true
		}
		if def.Cooldown > 0 {
			key := actor.ID + "/" + def.ID
			if cooling[key] {
				return nil, c.State(), fmt.Errorf("intent %d: %s uses %s twice before its cooldown: %w", i, actor.Name, def.Name, ErrIllegalBatch)
			}
			cooling[key] = true
		}
		steps[i] = step{actor, def, target}
	}

	c.checkpoint()
	slices.SortStableFunc(steps, func(a, b step) int { return a.def.Kind.Priority() - b.def.Kind.Priority() })
	results := make([]Result, 0, len(steps))
	for _, s := range steps {
		if reason := c.precheck(s.actor, s.def, s.target, false); reason != "" {
			// An earlier intent in the batch changed the situation.
			results = append(results, failure(reason))
			continue
		}
		results = append(results, c.perform(s.actor, s.def, s.def.Kind, s.target))
	}
	return results, c.State(), nil
}

// ReadyAction holds actionID until trigger is observed, spending the
// standard action now. Readied actions lapse at the start of the owner's
// next turn.
func (c *Combat) ReadyAction(id, actionID, trigger, targetID string) (Result, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return c.result(Result{}), fmt.Errorf("ready action: %w", ErrNotActive)
	}
	actor, def, target, err := c.resolve(id, actionID, targetID)
	if err != nil {
		return c.result(Result{}), err
	}
	if strings.TrimSpace(trigger) == "" {
		return c.result(failure("a readied action needs a trigger")), nil
	}
	reason := c.actorCheck(actor, def, true)
	if reason == "" && target != nil {
		reason = c.targetCheck(actor, def, target)
	}
	if reason != "" {
		return c.result(failure(reason)), nil
	}
	if !c.economy.SpendStandard(id) {
		return c.result(failure(fmt.Sprintf("%s has already used their standard action", actor.Name))), nil
	}
	r := Readied{ActionID: def.ID, Trigger: trigger}
	if target != nil {
		r.TargetID = target.ID
	}
	c.readied[id] = r
	msg := fmt.Sprintf("%s readies %s for: %s", actor.Name, def.Name, trigger)
	c.logf("%s", msg)
	return c.result(Result{Success: true, Message: msg}), nil
}

// CheckReadiedActions fires every readied action whose stored trigger
// contains trigger, ignoring case. Matches run in registration order, use
// the reaction slot, and target subjectID when no target was readied. A
// matched readied action is cleared whether or not it succeeds.
func (c *Combat) CheckReadiedActions(trigger, subjectID string) ([]Result, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return nil, fmt.Errorf("check readied actions: %w", ErrNotActive)
	}
	fold := cases.Fold()
	needle := fold.String(trigger)
	var results []Result
	for _, id := range slices.Clone(c.order) {
		r, ok := c.readied[id]
		if !ok || !strings.Contains(fold.String(r.Trigger), needle) {
			continue
		}
		delete(c.readied, id)
		actor := c.combatants[id]
		def, ok := c.registry.Get(r.ActionID)
		if !ok || actor == nil {
			continue
		}
		targetID := r.TargetID
		if targetID == "" {
			targetID = subjectID
		}
		target := c.combatants[targetID]
		c.logger.Info("readied action triggered",
			zap.String("combatant", id), zap.String("action", def.ID), zap.String("trigger", trigger))
		if reason := c.precheck(actor, def, target, false); reason != "" {
			results = append(results, c.result(failure(reason)))
			continue
		}
		results = append(results, c.result(c.perform(actor, def, action.Reaction, target)))
	}
	return results, nil
}

// Trigger describes an event reactions can respond to.
type Trigger struct {
	Type     string
	SourceID string
	TargetID string
	Data     any
}

// ReactionFunc responds to a trigger. It may call back into the combat.
// Returning false means the callback declined to react.
type ReactionFunc func(c *Combat, t Trigger) (Result, bool)

// RegisterReactionTrigger adds fn to the callbacks run for triggerType.
func (c *Combat) RegisterReactionTrigger(triggerType string, fn ReactionFunc) {
	c.triggers[triggerType] = append(c.triggers[triggerType], fn)
}

// TriggerReaction runs every callback registered for t.Type in registration
// order. A callback that panics is logged and skipped.
func (c *Combat) TriggerReaction(t Trigger) ([]Result, error) {
	defer c.operation()()
	if _, ok := c.combatants[t.SourceID]; !ok {
		return nil, fmt.Errorf("trigger source %q: %w", t.SourceID, ErrNotFound)
	}
	if t.TargetID != "" {
		if _, ok := c.combatants[t.TargetID]; !ok {
			return nil, fmt.Errorf("trigger target %q: %w", t.TargetID, ErrNotFound)
		}
	}
	return c.dispatch(t), nil
}

func (c *Combat) dispatch(t Trigger) []Result {
	var results []Result
	for _, fn := range slices.Clone(c.triggers[t.Type]) {
		if res, ok := c.safeCall(fn, t); ok {
			results = append(results, res)
		}
	}
	c.fired = append(c.fired, results...)
	return results
}

func (c *Combat) safeCall(fn ReactionFunc, t Trigger) (res Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("reaction trigger panicked",
				zap.String("trigger", t.Type), zap.String("source", t.SourceID), zap.Any("panic", r))
			res, ok = Result{}, false
		}
	}()
	return fn(c, t)
}

// AvailableReactions lists the reaction actions id could take right now in
// response to triggerType: those tagged with the trigger type whose
// reaction slot, cooldown and legality allow it against sourceID.
func (c *Combat) AvailableReactions(id, triggerType, sourceID string) ([]*action.Definition, error) {
	actor, ok := c.combatants[id]
	if !ok {
		return nil, fmt.Errorf("available reactions %q: %w", id, ErrNotFound)
	}
	var source *Combatant
	if sourceID != "" {
		if source, ok = c.combatants[sourceID]; !ok {
			return nil, fmt.Errorf("reaction source %q: %w", sourceID, ErrNotFound)
		}
	}
	var out []*action.Definition
	for _, def := range c.registry.ByKind(action.Reaction) {
		if triggerType != "" && !def.HasTag(triggerType) {
			continue
		}
		if c.precheck(actor, def, source, false) != "" {
			continue
		}
		if c.economy.CanUse(id, def, actor.subject(), subjectOf(source)) {
			out = append(out, def)
		}
	}
	return out, nil
}

// ActionOption is one entry of AvailableActions.
type ActionOption struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Kind            action.Kind `json:"-"`
	KindName        string      `json:"kind"`
	Cooldown        int         `json:"cooldown"`
	CurrentCooldown int         `json:"currentCooldown"`
	RequiresTarget  bool        `json:"requiresTarget"`
}

// AvailableActions lists the actions id could still start this turn: the
// slot is free, the action is off cooldown and no effect forbids it.
// Target-dependent legality is not evaluated.
func (c *Combat) AvailableActions(id string) ([]ActionOption, error) {
	actor, ok := c.combatants[id]
	if !ok {
		return nil, fmt.Errorf("available actions %q: %w", id, ErrNotFound)
	}
	rem, ok := c.economy.Remaining(id)
	if !ok || !actor.IsAlive() || c.effects.PreventsAction(id) {
		return nil, nil
	}
	var out []ActionOption
	for _, def := range c.registry.All() {
		if !slotOpen(rem, def.Kind) || c.economy.Cooldown(id, def.ID) > 0 {
			continue
		}
		if c.effects.Restricts(id, def.ID, def.Tags) {
			continue
		}
		out = append(out, ActionOption{
			ID:              def.ID,
			Name:            def.Name,
			Description:     def.Description,
			Kind:            def.Kind,
			KindName:        def.Kind.String(),
			Cooldown:        def.Cooldown,
			CurrentCooldown: c.economy.Cooldown(id, def.ID),
			RequiresTarget:  def.Target == action.TargetSingle || def.Target == action.TargetMulti,
		})
	}
	return out, nil
}

func slotOpen(r economy.Remaining, k action.Kind) bool {
	switch k {
	case action.Standard:
		return r.Standard
	case action.Bonus:
		return r.Bonus
	case action.Reaction:
		return r.Reaction
	case action.Movement:
		return r.Movement > 0
	}
	return true
}

// Remaining reports id's unspent action budget.
func (c *Combat) Remaining(id string) (economy.Remaining, error) {
	if _, ok := c.combatants[id]; !ok {
		return economy.Remaining{}, fmt.Errorf("remaining %q: %w", id, ErrNotFound)
	}
	r, _ := c.economy.Remaining(id)
	return r, nil
}

// Move walks id to dest, paying the Spatial path cost from its movement.
// Only the current combatant may move.
func (c *Combat) Move(id string, dest Position) (Result, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return c.result(Result{}), fmt.Errorf("move: %w", ErrNotActive)
	}
	cb, ok := c.combatants[id]
	if !ok {
		return c.result(Result{}), fmt.Errorf("move %q: %w", id, ErrNotFound)
	}
	switch {
	case !cb.IsAlive():
		return c.result(failure(fmt.Sprintf("%s is defeated", cb.Name))), nil
	case !c.isCurrent(id):
		return c.result(failure(fmt.Sprintf("It is not %s's turn", cb.Name))), nil
	}
	from, _ := c.spatial.EntityPosition(id)
	cost := c.spatial.PathCost(from, dest)
	rem, _ := c.economy.Remaining(id)
	if cost > rem.Movement {
		return c.result(failure(fmt.Sprintf("%s needs %.1f movement but has %.1f", cb.Name, cost, rem.Movement))), nil
	}
	c.checkpoint()
	c.economy.UseMovement(id, cost)
	c.spatial.MoveEntity(id, dest)
	c.notify(TelemetryEvent{Type: EventMove, ActorID: id, Amount: cost,
		Detail: map[string]any{"from": from, "to": dest}})
	msg := fmt.Sprintf("%s moves %.1f", cb.Name, cost)
	c.logf("%s", msg)
	c.dispatch(Trigger{Type: "movement", SourceID: id, Data: dest})
	return c.result(Result{Success: true, Message: msg}), nil
}

// UseMovement spends up to distance of id's movement without moving it and
// reports how much was actually spent in Result.Message. Only the current
// combatant may spend movement.
func (c *Combat) UseMovement(id string, distance float64) (Result, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return c.result(Result{}), fmt.Errorf("use movement: %w", ErrNotActive)
	}
	cb, ok := c.combatants[id]
	if !ok {
		return c.result(Result{}), fmt.Errorf("use movement %q: %w", id, ErrNotFound)
	}
	switch {
	case !cb.IsAlive():
		return c.result(failure(fmt.Sprintf("%s is defeated", cb.Name))), nil
	case !c.isCurrent(id):
		return c.result(failure(fmt.Sprintf("It is not %s's turn", cb.Name))), nil
	}
	spent := c.economy.UseMovement(id, distance)
	rem, _ := c.economy.Remaining(id)
	return c.result(Result{
		Success: spent > 0,
		Message: fmt.Sprintf("%s spends %.1f movement, %.1f left", cb.Name, spent, rem.Movement),
	}), nil
}

// PerceptionCheck rolls d20 + bonus for observerID to notice targetID. The
// difficulty is 10 for a clear view, 15 for a partial one and 20 otherwise.
func (c *Combat) PerceptionCheck(observerID, targetID string, bonus int) (Result, error) {
	defer c.operation()()
	if _, ok := c.combatants[observerID]; !ok {
		return c.result(Result{}), fmt.Errorf("observer %q: %w", observerID, ErrNotFound)
	}
	if _, ok := c.combatants[targetID]; !ok {
		return c.result(Result{}), fmt.Errorf("target %q: %w", targetID, ErrNotFound)
	}
	sight := c.visibility.VisibilityBetween(observerID, targetID)
	dc := map[Sight]int{SightClear: 10, SightPartial: 15, SightNone: 20}[sight]
	roll := c.roller.D20() + bonus
	ok := roll >= dc
	c.notify(TelemetryEvent{Type: EventPerceptionResult, ActorID: observerID, TargetID: targetID,
		Amount: float64(roll - dc), Detail: map[string]any{"success": ok, "visibility": sight.String()}})
	msg := fmt.Sprintf("%s rolls %d against %d to spot %s", c.nameOf(observerID), roll, dc, c.nameOf(targetID))
	return c.result(Result{Success: ok, Message: msg}), nil
}

// ApplyEffect places e on targetID on behalf of sourceID (which may be empty).
func (c *Combat) ApplyEffect(sourceID, targetID string, e effect.Effect) (Result, error) {
	defer c.operation()()
	target, ok := c.combatants[targetID]
	if !ok {
		return c.result(Result{}), fmt.Errorf("apply effect to %q: %w", targetID, ErrNotFound)
	}
	if !target.IsAlive() {
		return c.result(failure(fmt.Sprintf("%s is defeated", target.Name))), nil
	}
	if err := validateEffect(e); err != nil {
		return c.result(Result{}), err
	}
	r := c.effects.Apply(sourceID, targetID, e)
	res := Result{Success: r.Applied(), Effects: []effect.Result{r}}
	if r.Applied() {
		res.Message = fmt.Sprintf("%s gains %s", target.Name, r.Effect.Name)
	} else {
		res.Message = r.Reason
	}
	return c.result(res), nil
}

func validateEffect(e effect.Effect) error {
	if e.Stacks < 1 {
		e.Stacks = 1
	}
	if e.MaxStacks < 1 {
		e.MaxStacks = 1
	}
	return e.Validate()
}

// ApplyEffectTemplate instantiates templateID from Options.Templates and applies it.
func (c *Combat) ApplyEffectTemplate(sourceID, targetID, templateID string) (Result, error) {
	if c.opts.Templates == nil {
		return c.result(Result{}), fmt.Errorf("effect template %q: %w", templateID, ErrNotFound)
	}
	if _, ok := c.opts.Templates.Get(templateID); !ok {
		return c.result(Result{}), fmt.Errorf("effect template %q: %w", templateID, ErrNotFound)
	}
	e, err := c.opts.Templates.New(templateID)
	if err != nil {
		return c.result(Result{}), err
	}
	return c.ApplyEffect(sourceID, targetID, e)
}

// RemoveEffect removes the effect instance effectID from targetID.
func (c *Combat) RemoveEffect(targetID, effectID string) (Result, error) {
	defer c.operation()()
	if _, ok := c.combatants[targetID]; !ok {
		return c.result(Result{}), fmt.Errorf("remove effect from %q: %w", targetID, ErrNotFound)
	}
	e, ok := c.effects.Get(targetID, effectID)
	if !ok {
		return c.result(Result{}), fmt.Errorf("effect %q on %q: %w", effectID, targetID, ErrNotFound)
	}
	c.effects.Remove(targetID, effectID)
	return c.result(Result{Success: true, Removed: 1, Message: fmt.Sprintf("%s removed from %s", e.Name, c.nameOf(targetID))}), nil
}

// RemoveEffectsByName removes every effect named name from targetID.
func (c *Combat) RemoveEffectsByName(targetID, name string) (Result, error) {
	return c.removeEffects(targetID, func() int { return c.effects.RemoveByName(targetID, name) })
}

// RemoveEffectsByKind removes every effect of kind k from targetID.
func (c *Combat) RemoveEffectsByKind(targetID string, k effect.Kind) (Result, error) {
	return c.removeEffects(targetID, func() int { return c.effects.RemoveByKind(targetID, k) })
}

// ClearEffects removes every effect from targetID.
func (c *Combat) ClearEffects(targetID string) (Result, error) {
	return c.removeEffects(targetID, func() int { return c.effects.Clear(targetID) })
}

func (c *Combat) removeEffects(targetID string, remove func() int) (Result, error) {
	defer c.operation()()
	if _, ok := c.combatants[targetID]; !ok {
		return c.result(Result{}), fmt.Errorf("remove effects from %q: %w", targetID, ErrNotFound)
	}
	n := remove()
	return c.result(Result{Success: n > 0, Removed: n, Message: fmt.Sprintf("%d effect(s) removed from %s", n, c.nameOf(targetID))}), nil
}

// Effects returns the active effects on id in application order.
func (c *Combat) Effects(id string) []effect.Effect { return c.effects.Active(id) }

func failure(msg string) Result { return Result{Message: msg} }

// result attaches reaction results and the current View to r.
func (c *Combat) result(r Result) Result {
	if c.depth == 1 {
		r.Reactions = append(r.Reactions, c.fired...)
		c.fired = nil
	}
	r.View = c.State()
	return r
}
