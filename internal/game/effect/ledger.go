package effect

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names a ledger lifecycle event.
type EventType int

const (
	EventApplied EventType = iota
	EventStacked
	EventRemoved
	EventExpired
)

// String returns the telemetry name of the event.
func (t EventType) String() string {
	switch t {
	case EventApplied:
		return "effect_applied"
	case EventStacked:
		return "effect_stacked"
	case EventRemoved:
		return "effect_removed"
	case EventExpired:
		return "effect_expired"
	default:
		return "effect_unknown"
	}
}

// Event describes one change to the ledger.
type Event struct {
	Type     EventType
	TargetID string
	Effect   Effect
}

// Listener observes ledger events. Listeners run synchronously in
// registration order.
type Listener func(Event)

// Outcome classifies the result of Apply.
type Outcome int

const (
	Added Outcome = iota
	Stacked
	Replaced
	Immune
	Rejected
)

// Result reports what Apply did.
type Result struct {
	Outcome Outcome
	Effect  Effect // the instance as stored after the call
	Reason  string // set when the effect was not applied
}

// Applied reports whether the ledger changed.
func (r Result) Applied() bool {
	return r.Outcome == Added || r.Outcome == Stacked || r.Outcome == Replaced
}

// Tick is one periodic damage or healing amount produced at turn start.
type Tick struct {
	EffectID   string
	EffectName string
	Kind       Kind // DamageOverTime or HealOverTime
	SourceID   string
	Amount     float64
	DamageKind string
}

// Ledger holds the active effects of every combatant in one combat, in
// application order. It is not safe for concurrent use.
type Ledger struct {
	effects   map[string][]Effect
	listeners []Listener
	now       func() time.Time
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{effects: make(map[string][]Effect), now: time.Now}
}

// Subscribe registers fn for every subsequent event.
func (l *Ledger) Subscribe(fn Listener) {
	l.listeners = append(l.listeners, fn)
}

func (l *Ledger) emit(t EventType, targetID string, e Effect) {
	ev := Event{Type: t, TargetID: targetID, Effect: e.clone()}
	for _, fn := range l.listeners {
		fn(ev)
	}
}

// Apply places e on targetID, honouring immunity and the stacking rules of
// any same-named effect already present.
//
// Postcondition: for every effect on the target, Stacks <= MaxStacks.
// A Rejected or Immune result leaves the ledger unchanged.
func (l *Ledger) Apply(sourceID, targetID string, e Effect) Result {
	e = e.clone()
	e.SourceID = sourceID
	e.TargetID = targetID
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.MaxStacks < 1 {
		e.MaxStacks = 1
	}
	if e.Stacks < 1 {
		e.Stacks = 1
	}
	if e.Stacks > e.MaxStacks {
		e.Stacks = e.MaxStacks
	}
	if e.Intensity == 0 {
		e.Intensity = 1
	}
	if e.AppliedAt.IsZero() {
		e.AppliedAt = l.now()
	}
	if err := e.Validate(); err != nil {
		return Result{Outcome: Rejected, Effect: e, Reason: err.Error()}
	}
	if l.IsImmune(targetID, e) {
		return Result{Outcome: Immune, Effect: e, Reason: fmt.Sprintf("%s is immune to %s", targetID, e.Name)}
	}

	list := l.effects[targetID]
	idx := -1
	count := 0
	for i := range list {
		if list[i].Name == e.Name {
			if idx < 0 {
				idx = i
			}
			count++
		}
	}
	if idx < 0 {
		l.effects[targetID] = append(list, e)
		l.emit(EventApplied, targetID, e)
		return Result{Outcome: Added, Effect: e}
	}

	existing := &list[idx]
	switch {
	case existing.Stacking == Replace:
		return Result{Outcome: Rejected, Effect: *existing, Reason: fmt.Sprintf("%s is already active", e.Name)}

	case existing.Stacking == Independent:
		if count >= existing.MaxStacks {
			return Result{Outcome: Rejected, Effect: *existing, Reason: fmt.Sprintf("%s is at its stack limit", e.Name)}
		}
		e.Stacks = count + 1
		e.MaxStacks = existing.MaxStacks
		l.effects[targetID] = append(list, e)
		l.emit(EventStacked, targetID, e)
		return Result{Outcome: Stacked, Effect: e}

	case existing.Stacks < existing.MaxStacks:
		stack(existing, e)
		l.emit(EventStacked, targetID, *existing)
		return Result{Outcome: Stacked, Effect: existing.clone()}

	case existing.Stacking == ReplaceIfStronger && e.Intensity > existing.Intensity:
		old := *existing
		l.effects[targetID] = append(append(list[:idx:idx], list[idx+1:]...), e)
		l.emit(EventRemoved, targetID, old)
		l.emit(EventApplied, targetID, e)
		return Result{Outcome: Replaced, Effect: e}
	}
	return Result{Outcome: Rejected, Effect: *existing, Reason: fmt.Sprintf("%s cannot stack further", e.Name)}
}

func stack(existing *Effect, incoming Effect) {
	switch existing.Stacking {
	case DurationSum:
		existing.Duration = sumDuration(existing.Duration, incoming.Duration)
	case IntensitySum:
		existing.Intensity += incoming.Intensity
	case Both:
		existing.Duration = sumDuration(existing.Duration, incoming.Duration)
		existing.Intensity += incoming.Intensity
	case ReplaceIfStronger:
		if incoming.Intensity > existing.Intensity {
			existing.Intensity = incoming.Intensity
			existing.Duration = incoming.Duration
		}
	}
	existing.Stacks = min(existing.Stacks+1, existing.MaxStacks)
}

func sumDuration(a, b int) int {
	if a < 0 || b < 0 {
		return Permanent
	}
	return a + b
}

// IsImmune reports whether an active Immunity on targetID vetoes e, matching
// e's kind name or effect name case-insensitively.
func (l *Ledger) IsImmune(targetID string, e Effect) bool {
	for _, x := range l.effects[targetID] {
		if x.Kind != Immunity {
			continue
		}
		for _, v := range x.ImmuneTo {
			if strings.EqualFold(v, e.Kind.String()) || strings.EqualFold(v, e.Name) {
				return true
			}
		}
	}
	return false
}

// Remove deletes the effect instance effectID from targetID.
//
// Postcondition: Returns false if no such instance exists.
func (l *Ledger) Remove(targetID, effectID string) bool {
	n := l.removeWhere(targetID, func(e Effect) bool { return e.ID == effectID })
	return n > 0
}

// RemoveByKind deletes every effect of kind k from targetID and returns the count.
func (l *Ledger) RemoveByKind(targetID string, k Kind) int {
	return l.removeWhere(targetID, func(e Effect) bool { return e.Kind == k })
}

// RemoveByName deletes every effect named name from targetID and returns the count.
func (l *Ledger) RemoveByName(targetID, name string) int {
	return l.removeWhere(targetID, func(e Effect) bool { return e.Name == name })
}

// Clear deletes every effect on targetID and returns the count.
func (l *Ledger) Clear(targetID string) int {
	n := l.removeWhere(targetID, func(Effect) bool { return true })
	delete(l.effects, targetID)
	return n
}

// ClearAll deletes every effect in the ledger and returns the count.
func (l *Ledger) ClearAll() int {
	n := 0
	for _, id := range l.Targets() {
		n += l.Clear(id)
	}
	return n
}

func (l *Ledger) removeWhere(targetID string, match func(Effect) bool) int {
	list := l.effects[targetID]
	var kept, removed []Effect
	for _, e := range list {
		if match(e) {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	if len(removed) == 0 {
		return 0
	}
	l.effects[targetID] = kept
	for _, e := range removed {
		l.emit(EventRemoved, targetID, e)
	}
	return len(removed)
}

// OnTurnStart returns the periodic damage and healing due to targetID this
// turn. The caller routes each Tick through its damage or healing path; the
// ledger itself does not touch hit points.
func (l *Ledger) OnTurnStart(targetID string) []Tick {
	var ticks []Tick
	for _, e := range l.effects[targetID] {
		if e.Kind != DamageOverTime && e.Kind != HealOverTime {
			continue
		}
		amount := e.AmountPerTurn * e.Intensity
		if amount <= 0 {
			continue
		}
		ticks = append(ticks, Tick{
			EffectID:   e.ID,
			EffectName: e.Name,
			Kind:       e.Kind,
			SourceID:   e.SourceID,
			Amount:     amount,
			DamageKind: e.DamageKind,
		})
	}
	return ticks
}

// OnTurnEnd counts down every non-permanent effect on targetID and removes
// those reaching exactly zero, emitting EventRemoved then EventExpired for each.
//
// Postcondition: no effect on targetID has Duration == 0.
func (l *Ledger) OnTurnEnd(targetID string) []Effect {
	list := l.effects[targetID]
	var kept, expired []Effect
	for _, e := range list {
		if e.Duration > 0 {
			e.Duration--
		}
		if e.Duration == 0 {
			expired = append(expired, e)
			continue
		}
		kept = append(kept, e)
	}
	l.effects[targetID] = kept
	for _, e := range expired {
		l.emit(EventRemoved, targetID, e)
		l.emit(EventExpired, targetID, e)
	}
	return expired
}

// Active returns a copy of targetID's effects in application order.
func (l *Ledger) Active(targetID string) []Effect {
	list := l.effects[targetID]
	out := make([]Effect, len(list))
	for i, e := range list {
		out[i] = e.clone()
	}
	return out
}

// Get returns the effect instance effectID on targetID.
func (l *Ledger) Get(targetID, effectID string) (Effect, bool) {
	for _, e := range l.effects[targetID] {
		if e.ID == effectID {
			return e.clone(), true
		}
	}
	return Effect{}, false
}

// Has reports whether an effect named name is active on targetID.
func (l *Ledger) Has(targetID, name string) bool {
	for _, e := range l.effects[targetID] {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Targets returns the IDs holding at least one effect, in no particular order.
func (l *Ledger) Targets() []string {
	out := make([]string, 0, len(l.effects))
	for id, list := range l.effects {
		if len(list) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Restore replaces targetID's effects wholesale without stacking, immunity
// checks or events. Used when resuming a saved combat.
//
// Postcondition: on error the ledger is unchanged.
func (l *Ledger) Restore(targetID string, effects []Effect) error {
	out := make([]Effect, len(effects))
	for i, e := range effects {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("restore %s: %w", targetID, err)
		}
		out[i] = e.clone()
	}
	if len(out) == 0 {
		delete(l.effects, targetID)
		return nil
	}
	l.effects[targetID] = out
	return nil
}
