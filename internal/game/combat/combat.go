package combat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/economy"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/initiative"
)

var (
	// ErrNotFound is returned when a combatant, action or effect ID is unknown.
	ErrNotFound = errors.New("not found")
	// ErrNotYourTurn is returned when a turn-bound request comes from someone else.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNotActive is returned when a turn operation is attempted outside an active combat.
	ErrNotActive = errors.New("combat is not active")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrIllegalBatch is returned when any intent in a simultaneous batch is illegal.
	ErrIllegalBatch = errors.New("illegal simultaneous batch")
	// ErrInvalidSnapshot is returned when a snapshot cannot be restored.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrDuplicateCombatant is returned when a combatant ID joins twice.
	ErrDuplicateCombatant = errors.New("combatant already in combat")
	// ErrNoHistory is returned by Undo when there is nothing to roll back to.
	ErrNoHistory = errors.New("no earlier state")
)

// DefaultLogLimit is the number of log lines kept when Options.LogLimit is zero.
const DefaultLogLimit = 200

// Options configures a Combat. Zero values select the defaults.
type Options struct {
	// MovementBudget is the movement granted each turn; 0 uses economy.DefaultMovement.
	MovementBudget float64
	// Source supplies initiative rolls; nil uses a crypto source.
	Source     dice.Source
	Logger     *zap.Logger
	Spatial    Spatial
	Visibility Visibility
	Telemetry  Telemetry
	// Templates resolves ApplyEffectTemplate; nil disables it.
	Templates *effect.Registry
	// AutoResolve ends the combat in Victory when no NPC stands and in
	// Defeat when no player stands.
	AutoResolve bool
	LogLimit    int
	// HistoryLimit is how many checkpoints Undo can roll back through; 0 disables Undo.
	HistoryLimit int
	AreaWidth    float64
	AreaHeight   float64
}

// Readied is an action held until its trigger phrase is observed.
type Readied struct {
	ActionID string `json:"actionId"`
	Trigger  string `json:"trigger"`
	TargetID string `json:"targetId,omitempty"`
}

// Combat is one encounter. It is not safe for concurrent use; the Engine
// serialises access per combat.
type Combat struct {
	id       string
	registry *action.Registry
	opts     Options
	logger   *zap.Logger
	roller   *dice.Roller

	status     *fsm.FSM
	round      int
	turn       int // turns begun so far; lets timers detect a stale turn
	combatants map[string]*Combatant
	order      []string // registration order
	readied    map[string]Readied
	delayed    map[string]bool // delayed this round; their turn has already begun

	queue   *initiative.Queue
	economy *economy.Tracker
	effects *effect.Ledger

	spatial    Spatial
	visibility Visibility
	telemetry  Telemetry
	triggers   map[string][]ReactionFunc

	log     []string
	history []Snapshot
	depth   int
	pending []TelemetryEvent
	fired   []Result
}

// New creates an empty combat in the Initializing status. An empty id is
// replaced with a random UUID.
//
// Precondition: registry must be non-nil.
func New(id string, registry *action.Registry, opts Options) *Combat {
	if id == "" {
		id = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Source == nil {
		opts.Source = dice.NewCryptoSource()
	}
	if opts.Spatial == nil {
		opts.Spatial = NewGrid()
	}
	if opts.Visibility == nil {
		opts.Visibility = AlwaysVisible
	}
	if opts.Telemetry == nil {
		opts.Telemetry = NopTelemetry
	}
	if opts.LogLimit <= 0 {
		opts.LogLimit = DefaultLogLimit
	}
	logger := opts.Logger.With(zap.String("combat_id", id))
	c := &Combat{
		id:         id,
		registry:   registry,
		opts:       opts,
		logger:     logger,
		roller:     dice.NewLoggedRoller(opts.Source, logger),
		combatants: make(map[string]*Combatant),
		readied:    make(map[string]Readied),
		delayed:    make(map[string]bool),
		queue:      initiative.NewQueue(),
		economy:    economy.NewTracker(opts.MovementBudget),
		effects:    effect.NewLedger(),
		spatial:    opts.Spatial,
		visibility: opts.Visibility,
		telemetry:  opts.Telemetry,
		triggers:   make(map[string][]ReactionFunc),
	}
	c.status = newStatusMachine(c.onStatus)
	c.queue.OnRoundStart(c.roundStart)
	c.queue.OnTurnEnd(c.turnEnd)
	c.queue.OnTurnStart(c.turnStart)
	c.effects.Subscribe(c.onEffectEvent)
	return c
}

// ID returns the combat ID.
func (c *Combat) ID() string { return c.id }

// Status returns the current lifecycle status.
func (c *Combat) Status() Status { return Status(c.status.Current()) }

// Round returns the round number; 0 before Start.
func (c *Combat) Round() int { return c.round }

// TurnNumber counts every turn begun since Start.
func (c *Combat) TurnNumber() int { return c.turn }

// Current returns the combatant whose turn it is.
func (c *Combat) Current() (string, bool) { return c.queue.Current() }

// Combatant returns a copy of the combatant record for id.
func (c *Combat) Combatant(id string) (Combatant, bool) {
	cb, ok := c.combatants[id]
	if !ok {
		return Combatant{}, false
	}
	return *cb, true
}

// Log returns the most recent combat log lines, oldest first.
func (c *Combat) Log() []string { return append([]string(nil), c.log...) }

// AddCombatant registers cb. In an active combat the newcomer rolls
// initiative at once and joins the rotation without changing whose turn it is.
//
// Precondition: cb has a unique non-empty ID and 0 <= CurrentHP <= MaxHP.
// Postcondition: the combatant is in the roster, the economy and, if the
// combat is running, the initiative queue.
func (c *Combat) AddCombatant(cb Combatant) (View, error) {
	defer c.operation()()
	if c.Status().IsTerminal() {
		return c.State(), fmt.Errorf("add %q: %w", cb.ID, ErrNotActive)
	}
	if err := cb.validate(); err != nil {
		return c.State(), err
	}
	if _, exists := c.combatants[cb.ID]; exists {
		return c.State(), fmt.Errorf("add %q: %w", cb.ID, ErrDuplicateCombatant)
	}
	cb.Defeated = cb.Defeated || cb.CurrentHP == 0
	c.combatants[cb.ID] = &cb
	c.order = append(c.order, cb.ID)
	c.spatial.MoveEntity(cb.ID, cb.Position)
	c.economy.Join(cb.ID)
	if c.Status() != StatusInitializing && cb.IsAlive() {
		cb.Initiative = c.rollInitiative(&cb)
		if err := c.queue.Add(cb.ID, cb.Initiative); err != nil {
			return c.State(), err
		}
	}
	c.logf("%s joins the combat", cb.Name)
	c.logger.Info("combatant added", zap.String("combatant", cb.ID), zap.Stringer("kind", cb.Kind))
	return c.State(), nil
}

// RemoveCombatant drops id from the roster, the rotation, the economy, the
// effect ledger and the readied actions together. Removing the current
// combatant begins the next combatant's turn.
func (c *Combat) RemoveCombatant(id string) (View, error) {
	defer c.operation()()
	cb, ok := c.combatants[id]
	if !ok {
		return c.State(), fmt.Errorf("remove combatant %q: %w", id, ErrNotFound)
	}
	wasCurrent := c.isCurrent(id)
	c.detach(id)
	delete(c.combatants, id)
	c.order = deleteID(c.order, id)
	c.economy.Leave(id)
	c.logf("%s leaves the combat", cb.Name)
	c.logger.Info("combatant removed", zap.String("combatant", id))
	c.settle(wasCurrent)
	return c.State(), nil
}

// detach takes id out of the rotation and drops its effects and readied action.
func (c *Combat) detach(id string) {
	if c.queue.Contains(id) {
		_ = c.queue.Remove(id)
	}
	c.effects.Clear(id)
	delete(c.readied, id)
	delete(c.delayed, id)
}

// settle runs after a combatant leaves the rotation: it checks for an
// automatic resolution, then starts the next turn if the leaver held it.
func (c *Combat) settle(wasCurrent bool) {
	c.autoResolve()
	if wasCurrent && c.Status() == StatusActive {
		c.queue.BeginTurn()
	}
}

// Start rolls initiative (d20 + dexterity modifier) for every standing
// combatant, seeds the rotation in registration order, sets round 1 and
// begins the first turn.
//
// Precondition: status is Initializing.
// Postcondition: status is Active and Current() is the highest initiative.
func (c *Combat) Start() (View, error) {
	defer c.operation()()
	if err := c.fire(evStart); err != nil {
		return c.State(), err
	}
	c.queue.Clear()
	for _, id := range c.order {
		cb := c.combatants[id]
		if !cb.IsAlive() {
			continue
		}
		cb.Initiative = c.rollInitiative(cb)
		if err := c.queue.Add(id, cb.Initiative); err != nil {
			return c.State(), err
		}
	}
	c.queue.Rewind()
	c.round = 1
	c.logf("Combat begins")
	c.logger.Info("combat started", zap.Strings("order", c.queue.OrderedIDs()))
	c.notify(TelemetryEvent{Type: EventRoundStart})
	c.queue.BeginTurn()
	c.autoResolve()
	return c.State(), nil
}

func (c *Combat) rollInitiative(cb *Combatant) int {
	return c.roller.D20() + AbilityMod(cb.Dexterity)
}

// Pause suspends an active combat.
func (c *Combat) Pause() (View, error) {
	defer c.operation()()
	err := c.fire(evPause)
	return c.State(), err
}

// Resume continues a paused combat.
func (c *Combat) Resume() (View, error) {
	defer c.operation()()
	err := c.fire(evResume)
	return c.State(), err
}

// TransitionTo moves the combat to status, choosing the matching lifecycle
// event. Reaching Active from Initializing is the same as Start.
func (c *Combat) TransitionTo(status Status) (View, error) {
	if !status.valid() {
		return c.State(), fmt.Errorf("unknown status %q: %w", status, ErrInvalidTransition)
	}
	if status == StatusActive && c.Status() == StatusInitializing {
		return c.Start()
	}
	defer c.operation()()
	ev, err := eventFor(c.Status(), status)
	if err != nil {
		return c.State(), err
	}
	err = c.fire(ev)
	return c.State(), err
}

// End finishes the combat with a terminal result and tears down the
// rotation, economy, effects and readied actions. The roster is kept so the
// final View still lists everyone.
//
// Precondition: result is terminal and the combat is not already over.
func (c *Combat) End(result Status) (View, error) {
	if !result.IsTerminal() {
		return c.State(), fmt.Errorf("end with %q: %w", result, ErrInvalidTransition)
	}
	return c.TransitionTo(result)
}

func (c *Combat) onStatus(from, to Status) {
	c.logger.Info("combat status changed", zap.String("from", string(from)), zap.String("to", string(to)))
	c.notify(TelemetryEvent{Type: EventStatus, Detail: map[string]any{"from": string(from), "to": string(to)}})
	if to.IsTerminal() {
		c.logf("Combat ends: %s", to)
		c.queue.Clear()
		c.effects.ClearAll()
		c.economy = economy.NewTracker(c.opts.MovementBudget)
		clear(c.readied)
		clear(c.delayed)
	}
}

// AdvanceTurn ends the current turn and begins the next. The round counter
// increases exactly when the rotation wraps.
func (c *Combat) AdvanceTurn() (TurnResult, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return TurnResult{View: c.State()}, fmt.Errorf("advance turn: %w", ErrNotActive)
	}
	c.checkpoint()
	round := c.round
	prev, cur := c.queue.Advance()
	return TurnResult{Previous: prev, Current: cur, NewRound: c.round != round, View: c.State()}, nil
}

func (c *Combat) roundStart() {
	clear(c.delayed)
	c.round++
	c.logf("Round %d begins", c.round)
	c.notify(TelemetryEvent{Type: EventRoundStart})
}

func (c *Combat) turnStart(id string) {
	cb, ok := c.combatants[id]
	if !ok {
		return
	}
	c.turn++
	if c.delayed[id] {
		// Resuming a delayed turn: slots, cooldowns and ticks were settled
		// when it first began.
		delete(c.delayed, id)
		c.notify(TelemetryEvent{Type: EventTurnStart, ActorID: id, Detail: map[string]any{"resumed": true}})
		c.logger.Debug("delayed turn resumed", zap.String("combatant", id), zap.Int("round", c.round))
		return
	}
	c.economy.ResetForTurn(id, c.economy.Budget()*c.effects.MovementFactor(id))
	if r, ok := c.readied[id]; ok {
		delete(c.readied, id)
		c.logf("%s's readied %s lapses", cb.Name, r.ActionID)
	}
	c.notify(TelemetryEvent{Type: EventTurnStart, ActorID: id})
	c.logger.Debug("turn started", zap.String("combatant", id), zap.Int("round", c.round))
	for _, tick := range c.effects.OnTurnStart(id) {
		if !cb.IsAlive() {
			break
		}
		switch tick.Kind {
		case effect.DamageOverTime:
			c.applyDamage(tick.SourceID, id, tick.Amount, tick.DamageKind)
		case effect.HealOverTime:
			c.applyHealing(tick.SourceID, id, int(tick.Amount))
		}
	}
}

func (c *Combat) turnEnd(id string) {
	c.effects.OnTurnEnd(id)
	c.notify(TelemetryEvent{Type: EventTurnEnd, ActorID: id})
}

func (c *Combat) onEffectEvent(ev effect.Event) {
	c.notify(TelemetryEvent{
		Type:     ev.Type.String(),
		ActorID:  ev.Effect.SourceID,
		TargetID: ev.TargetID,
		Detail:   map[string]any{"effect": ev.Effect.Name, "stacks": ev.Effect.Stacks, "duration": ev.Effect.Duration},
	})
	name := c.nameOf(ev.TargetID)
	switch ev.Type {
	case effect.EventApplied:
		c.logf("%s is affected by %s", name, ev.Effect.Name)
	case effect.EventExpired:
		c.logf("%s on %s wears off", ev.Effect.Name, name)
	}
}

// DelayTurn moves the current combatant to the end of this round and
// begins the next combatant's turn. When the delayer comes up again the
// same turn resumes: its spent slots stay spent and start-of-turn effects
// do not tick a second time.
//
// Precondition: id is the current combatant.
func (c *Combat) DelayTurn(id string) (View, error) {
	defer c.operation()()
	if c.Status() != StatusActive {
		return c.State(), fmt.Errorf("delay turn: %w", ErrNotActive)
	}
	cb, ok := c.combatants[id]
	if !ok {
		return c.State(), fmt.Errorf("delay turn %q: %w", id, ErrNotFound)
	}
	if !c.isCurrent(id) {
		return c.State(), fmt.Errorf("delay turn %q: %w", id, ErrNotYourTurn)
	}
	c.checkpoint()
	c.delayed[id] = true
	if err := c.queue.Delay(id); err != nil {
		delete(c.delayed, id)
		return c.State(), err
	}
	if c.isCurrent(id) {
		// Already last in the rotation; the turn simply continues.
		delete(c.delayed, id)
	}
	cb.Initiative, _ = c.queue.Initiative(id)
	c.logf("%s delays their turn", cb.Name)
	return c.State(), nil
}

// RecomputeInitiative sets id's initiative to *value, or rerolls it when
// value is nil, and re-sorts the rotation without changing whose turn it is.
func (c *Combat) RecomputeInitiative(id string, value *int) (View, error) {
	defer c.operation()()
	cb, ok := c.combatants[id]
	if !ok {
		return c.State(), fmt.Errorf("recompute initiative %q: %w", id, ErrNotFound)
	}
	if value != nil {
		cb.Initiative = *value
	} else {
		cb.Initiative = c.rollInitiative(cb)
	}
	if c.queue.Contains(id) {
		if err := c.queue.Recompute(id, cb.Initiative); err != nil {
			return c.State(), err
		}
	}
	return c.State(), nil
}

func (c *Combat) isCurrent(id string) bool {
	cur, ok := c.queue.Current()
	return ok && cur == id
}

func (c *Combat) nameOf(id string) string {
	if cb, ok := c.combatants[id]; ok {
		return cb.Name
	}
	return id
}

// operation brackets a public call. Telemetry and reaction results gathered
// during the outermost call are reported in its View.
func (c *Combat) operation() func() {
	if c.depth == 0 {
		c.pending = nil
		c.fired = nil
	}
	c.depth++
	return func() { c.depth-- }
}

func (c *Combat) notify(ev TelemetryEvent) {
	ev.CombatID = c.id
	ev.Round = c.round
	c.pending = append(c.pending, ev)
	c.telemetry.Notify(ev)
}

func (c *Combat) logf(format string, args ...any) {
	c.log = append(c.log, fmt.Sprintf(format, args...))
	if over := len(c.log) - c.opts.LogLimit; over > 0 {
		c.log = append([]string(nil), c.log[over:]...)
	}
}

func deleteID(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func (c *Combat) now() time.Time { return time.Now().UTC() }
