package combat

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/economy"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/initiative"
)

// Snapshot is the complete persisted state of a combat, sufficient to
// resume it deterministically.
type Snapshot struct {
	CombatID   string                     `json:"combatId"`
	Timestamp  time.Time                  `json:"timestamp"`
	Round      int                        `json:"roundNumber"`
	Turn       int                        `json:"turnNumber"`
	Status     Status                     `json:"status"`
	Order      []string                   `json:"order"`
	Characters map[string]Combatant       `json:"characters"`
	Effects    map[string][]effect.Effect `json:"effects"`
	TurnQueue  QueueState                 `json:"turnQueue"`
	Economy    map[string]economy.State   `json:"economy,omitempty"`
	Readied    map[string]Readied         `json:"readied,omitempty"`
	Delayed    []string                   `json:"delayed,omitempty"`
	Log        []string                   `json:"log"`
}

// QueueState is the persisted initiative rotation.
type QueueState struct {
	Queue          []string       `json:"queue"`
	Initiative     map[string]int `json:"initiative"`
	Current        string         `json:"current,omitempty"`
	IsStartOfRound bool           `json:"isStartOfRound"`
}

// EncodeSnapshot serialises s as JSON.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", s.CombatID, err)
	}
	return data, nil
}

// DecodeSnapshot parses JSON produced by EncodeSnapshot. Unknown effect
// kinds and stacking names are rejected.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %v: %w", err, ErrInvalidSnapshot)
	}
	return s, nil
}

// Snapshot captures the combat's full state. Positions come from the
// Spatial service.
func (c *Combat) Snapshot() Snapshot {
	s := Snapshot{
		CombatID:   c.id,
		Timestamp:  c.now(),
		Round:      c.round,
		Turn:       c.turn,
		Status:     c.Status(),
		Order:      slices.Clone(c.order),
		Characters: make(map[string]Combatant, len(c.combatants)),
		Effects:    make(map[string][]effect.Effect),
		Economy:    make(map[string]economy.State),
		Readied:    maps.Clone(c.readied),
		Delayed:    slices.Sorted(maps.Keys(c.delayed)),
		Log:        slices.Clone(c.log),
	}
	for id, cb := range c.combatants {
		rec := *cb
		if p, ok := c.spatial.EntityPosition(id); ok {
			rec.Position = p
		}
		s.Characters[id] = rec
		if list := c.effects.Active(id); len(list) > 0 {
			s.Effects[id] = list
		}
		if st, ok := c.economy.State(id); ok {
			s.Economy[id] = st
		}
	}
	cur, _ := c.queue.Current()
	s.TurnQueue = QueueState{
		Queue:          c.queue.OrderedIDs(),
		Initiative:     make(map[string]int),
		Current:        cur,
		IsStartOfRound: c.queue.IsStartOfRound(),
	}
	for _, e := range c.queue.Entries() {
		s.TurnQueue.Initiative[e.ID] = e.Initiative
	}
	return s
}

// Restore replaces the combat's state with s. Everything is validated
// before any live state changes.
//
// Postcondition: on error the combat is unchanged.
func (c *Combat) Restore(s Snapshot) error {
	if err := c.restore(s); err != nil {
		c.logger.Warn("snapshot rejected", zap.Error(err))
		return err
	}
	c.history = nil
	c.logger.Info("combat restored", zap.Int("round", s.Round), zap.String("status", string(s.Status)))
	return nil
}

func (c *Combat) restore(s Snapshot) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidSnapshot)
	}
	if s.CombatID != "" && s.CombatID != c.id {
		return invalid("snapshot is for combat %q, not %q", s.CombatID, c.id)
	}
	if !s.Status.valid() {
		return invalid("unknown status %q", s.Status)
	}
	if s.Round < 0 {
		return invalid("round %d is negative", s.Round)
	}

	roster := make(map[string]*Combatant, len(s.Characters))
	for id, cb := range s.Characters {
		if cb.ID != id {
			return invalid("character key %q holds id %q", id, cb.ID)
		}
		if err := cb.validate(); err != nil {
			return invalid("%v", err)
		}
		rec := cb
		roster[id] = &rec
	}
	order, err := restoreOrder(s.Order, roster)
	if err != nil {
		return invalid("%v", err)
	}

	entries := make([]initiative.Entry, len(s.TurnQueue.Queue))
	for i, id := range s.TurnQueue.Queue {
		if _, ok := roster[id]; !ok {
			return invalid("turn queue references unknown combatant %q", id)
		}
		value, ok := s.TurnQueue.Initiative[id]
		if !ok {
			value = roster[id].Initiative
		}
		if i > 0 && value > entries[i-1].Initiative {
			return invalid("turn queue is not in initiative order at %q", id)
		}
		entries[i] = initiative.Entry{ID: id, Initiative: value, Seq: i}
	}
	if err := initiative.NewQueue().Restore(entries, s.TurnQueue.Current, s.TurnQueue.IsStartOfRound); err != nil {
		return invalid("%v", err)
	}

	ledger := effect.NewLedger()
	for id, list := range s.Effects {
		if _, ok := roster[id]; !ok {
			return invalid("effects reference unknown combatant %q", id)
		}
		if err := ledger.Restore(id, list); err != nil {
			return invalid("%v", err)
		}
	}
	tracker := economy.NewTracker(c.opts.MovementBudget)
	for id, st := range s.Economy {
		if _, ok := roster[id]; !ok {
			return invalid("economy references unknown combatant %q", id)
		}
		if err := tracker.Restore(id, st); err != nil {
			return invalid("%v", err)
		}
	}
	for id, cb := range roster {
		if !tracker.Has(id) && cb.IsAlive() && !s.Status.IsTerminal() {
			tracker.Join(id)
		}
	}
	for id, r := range s.Readied {
		if _, ok := roster[id]; !ok {
			return invalid("readied action references unknown combatant %q", id)
		}
		if _, ok := c.registry.Get(r.ActionID); !ok {
			return invalid("readied action %q is not registered", r.ActionID)
		}
	}

	for _, id := range s.Delayed {
		if _, ok := roster[id]; !ok {
			return invalid("delayed turn references unknown combatant %q", id)
		}
	}

	// Validated; swap in.
	_ = c.queue.Restore(entries, s.TurnQueue.Current, s.TurnQueue.IsStartOfRound)
	ledger.Subscribe(c.onEffectEvent)
	c.effects = ledger
	c.economy = tracker
	c.combatants = roster
	c.order = order
	c.readied = maps.Clone(s.Readied)
	if c.readied == nil {
		c.readied = make(map[string]Readied)
	}
	c.delayed = make(map[string]bool, len(s.Delayed))
	for _, id := range s.Delayed {
		c.delayed[id] = true
	}
	c.round = s.Round
	c.turn = s.Turn
	c.log = slices.Clone(s.Log)
	c.status.SetState(string(s.Status))
	for id, cb := range roster {
		c.spatial.MoveEntity(id, cb.Position)
	}
	return nil
}

// restoreOrder returns the registration order, falling back to sorted IDs
// for snapshots that do not carry one.
func restoreOrder(order []string, roster map[string]*Combatant) ([]string, error) {
	if len(order) == 0 {
		return slices.Sorted(maps.Keys(roster)), nil
	}
	if len(order) != len(roster) {
		return nil, fmt.Errorf("order lists %d combatants, roster has %d", len(order), len(roster))
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if _, ok := roster[id]; !ok || seen[id] {
			return nil, fmt.Errorf("order entry %q is unknown or repeated", id)
		}
		seen[id] = true
	}
	return slices.Clone(order), nil
}

// checkpoint records the state before a turn-changing operation so Undo can
// return to it.
func (c *Combat) checkpoint() {
	if c.opts.HistoryLimit <= 0 || c.depth > 1 {
		return
	}
	c.history = append(c.history, c.Snapshot())
	if over := len(c.history) - c.opts.HistoryLimit; over > 0 {
		c.history = append([]Snapshot(nil), c.history[over:]...)
	}
}

// dropCheckpoint discards the checkpoint taken for an operation that
// changed nothing.
func (c *Combat) dropCheckpoint() {
	if c.opts.HistoryLimit > 0 && c.depth <= 1 && len(c.history) > 0 {
		c.history = c.history[:len(c.history)-1]
	}
}

// History returns the checkpoints Undo can roll back to, oldest first.
func (c *Combat) History() []Snapshot { return slices.Clone(c.history) }

// Undo rolls the combat back to the state before the last action, move,
// delay or turn advance.
func (c *Combat) Undo() (View, error) {
	defer c.operation()()
	if len(c.history) == 0 {
		return c.State(), ErrNoHistory
	}
	last := c.history[len(c.history)-1]
	if err := c.restore(last); err != nil {
		return c.State(), err
	}
	c.history = c.history[:len(c.history)-1]
	c.logger.Info("combat rolled back", zap.Int("round", c.round))
	return c.State(), nil
}
