// Package initiative maintains the turn rotation of a combat: who acts now,
// who acts next, and when a new round begins.
//
// A Queue is not safe for concurrent use; the owning combat serialises
// access.
package initiative

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCombatant is returned when an operation names an ID the queue does not hold.
	ErrUnknownCombatant = errors.New("combatant not in initiative order")
	// ErrDuplicateCombatant is returned by Add when the ID is already queued.
	ErrDuplicateCombatant = errors.New("combatant already in initiative order")
	// ErrNotCurrent is returned by Delay when the caller is not the current combatant.
	ErrNotCurrent = errors.New("combatant is not the current combatant")
)

// Entry is one combatant's place in the rotation.
type Entry struct {
	ID         string `json:"id"`
	Initiative int    `json:"initiative"`
	// Seq is the registration sequence; lower values win initiative ties.
	Seq int `json:"seq"`
}

// Hook observes a turn boundary for the given combatant ID.
type Hook func(id string)

// Queue orders combatants by descending initiative, breaking ties by
// registration order, and tracks whose turn it is.
type Queue struct {
	entries      []Entry
	current      int // index into entries; -1 when empty
	nextSeq      int
	startOfRound bool

	onTurnStart  []Hook
	onTurnEnd    []Hook
	onRoundStart []func()
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{current: -1}
}

// OnTurnStart registers h to run, in registration order, whenever a
// combatant's turn begins.
func (q *Queue) OnTurnStart(h Hook) { q.onTurnStart = append(q.onTurnStart, h) }

// OnTurnEnd registers h to run whenever a combatant's turn ends.
func (q *Queue) OnTurnEnd(h Hook) { q.onTurnEnd = append(q.onTurnEnd, h) }

// OnRoundStart registers fn to run whenever the rotation wraps into a new round.
// Round hooks run before the turn-start hooks of the round's first combatant.
func (q *Queue) OnRoundStart(fn func()) { q.onRoundStart = append(q.onRoundStart, fn) }

// Len returns the number of queued combatants.
func (q *Queue) Len() int { return len(q.entries) }

// Contains reports whether id is queued.
func (q *Queue) Contains(id string) bool { return q.indexOf(id) >= 0 }

// Current returns the ID of the combatant whose turn it is.
//
// Postcondition: ok is false iff the queue is empty.
func (q *Queue) Current() (id string, ok bool) {
	if q.current < 0 || q.current >= len(q.entries) {
		return "", false
	}
	return q.entries[q.current].ID, true
}

// IsStartOfRound reports whether the last rotation wrapped into a new round,
// or the queue was just rewound to its head.
func (q *Queue) IsStartOfRound() bool { return q.startOfRound }

// OrderedIDs returns the combatant IDs in turn order.
func (q *Queue) OrderedIDs() []string {
	ids := make([]string, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.ID
	}
	return ids
}

// Entries returns a copy of the rotation in turn order.
func (q *Queue) Entries() []Entry {
	return append([]Entry(nil), q.entries...)
}

// Initiative returns the initiative value recorded for id.
func (q *Queue) Initiative(id string) (int, bool) {
	i := q.indexOf(id)
	if i < 0 {
		return 0, false
	}
	return q.entries[i].Initiative, true
}

// Add inserts id at the position its initiative earns. The current combatant
// does not change unless the queue was empty, in which case id becomes current.
//
// Postcondition: OrderedIDs stays sorted by (initiative desc, registration asc).
func (q *Queue) Add(id string, initiative int) error {
	if q.indexOf(id) >= 0 {
		return fmt.Errorf("add %q: %w", id, ErrDuplicateCombatant)
	}
	q.insert(Entry{ID: id, Initiative: initiative, Seq: q.nextSeq})
	q.nextSeq++
	return nil
}

// Remove drops id from the rotation. If id was current, the pointer moves to
// the entry that followed it; wrapping past the end starts a new round. No
// turn hooks fire, but round hooks do when the pointer wraps.
//
// Postcondition: Contains(id) is false.
func (q *Queue) Remove(id string) error {
	i := q.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove %q: %w", id, ErrUnknownCombatant)
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	switch {
	case len(q.entries) == 0:
		q.current = -1
		q.startOfRound = false
	case i < q.current:
		q.current--
	case i == q.current && q.current >= len(q.entries):
		q.current = 0
		q.startOfRound = true
		q.fireRoundStart()
	}
	return nil
}

// Advance ends the current turn and begins the next one, firing turn-end
// hooks for the leaving combatant, round hooks on wrap, then turn-start hooks
// for the entering combatant.
//
// Postcondition: IsStartOfRound() is true iff the rotation wrapped.
// current is the combatant whose turn it is once all hooks have run.
func (q *Queue) Advance() (previous, current string) {
	if len(q.entries) == 0 {
		return "", ""
	}
	if q.current < 0 {
		q.current = 0
	}
	previous = q.entries[q.current].ID
	q.fire(q.onTurnEnd, previous)

	// A turn-end hook may have removed entries.
	if len(q.entries) == 0 {
		return previous, ""
	}
	if cur, ok := q.Current(); ok && cur == previous {
		q.current++
		q.startOfRound = q.current >= len(q.entries)
		if q.startOfRound {
			q.current = 0
			q.fireRoundStart()
		}
	}
	q.BeginTurn()
	current, _ = q.Current()
	return previous, current
}

// BeginTurn fires the turn-start hooks for the current combatant.
func (q *Queue) BeginTurn() {
	if id, ok := q.Current(); ok {
		q.fire(q.onTurnStart, id)
	}
}

// Delay moves the current combatant to the end of this round. Its initiative
// drops to the lowest value in the rotation so the ordering invariant holds
// in later rounds. The next combatant's turn begins; the delayer's turn-end
// hooks do not fire because its turn has not been taken.
//
// Precondition: id is the current combatant.
// Postcondition: id is last in OrderedIDs. If id was already last, nothing changes.
func (q *Queue) Delay(id string) error {
	i := q.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delay %q: %w", id, ErrUnknownCombatant)
	}
	if i != q.current {
		return fmt.Errorf("delay %q: %w", id, ErrNotCurrent)
	}
	last := len(q.entries) - 1
	if i == last {
		return nil
	}
	e := q.entries[i]
	e.Initiative = q.entries[last].Initiative
	e.Seq = q.nextSeq
	q.nextSeq++
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.entries = append(q.entries, e)
	// q.current now indexes the entry that followed the delayer.
	q.startOfRound = false
	q.BeginTurn()
	return nil
}

// Recompute assigns id a new initiative and re-sorts it, keeping the same
// combatant current.
func (q *Queue) Recompute(id string, initiative int) error {
	i := q.indexOf(id)
	if i < 0 {
		return fmt.Errorf("recompute %q: %w", id, ErrUnknownCombatant)
	}
	cur, _ := q.Current()
	e := q.entries[i]
	e.Initiative = initiative
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.insert(e)
	if cur != "" {
		q.current = q.indexOf(cur)
	}
	return nil
}

// Rewind points the queue at its first entry and marks the start of a round
// without firing hooks.
func (q *Queue) Rewind() {
	if len(q.entries) == 0 {
		q.current = -1
		return
	}
	q.current = 0
	q.startOfRound = true
}

// Clear empties the rotation. Registered hooks are kept.
func (q *Queue) Clear() {
	q.entries = nil
	q.current = -1
	q.startOfRound = false
}

// Restore replaces the rotation with entries (already in turn order) and
// points at current. Hooks do not fire.
//
// Postcondition: on error the queue is unchanged.
func (q *Queue) Restore(entries []Entry, current string, startOfRound bool) error {
	seen := make(map[string]bool, len(entries))
	next := 0
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("restore: entry %d has empty id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("restore %q: %w", e.ID, ErrDuplicateCombatant)
		}
		seen[e.ID] = true
		if e.Seq >= next {
			next = e.Seq + 1
		}
	}
	idx := -1
	if current != "" {
		for i, e := range entries {
			if e.ID == current {
				idx = i
			}
		}
		if idx < 0 {
			return fmt.Errorf("restore current %q: %w", current, ErrUnknownCombatant)
		}
	} else if len(entries) > 0 {
		idx = 0
	}
	q.entries = append([]Entry(nil), entries...)
	q.current = idx
	q.startOfRound = startOfRound
	q.nextSeq = next
	return nil
}

func (q *Queue) insert(e Entry) {
	pos := len(q.entries)
	for i, x := range q.entries {
		if before(e, x) {
			pos = i
			break
		}
	}
	q.entries = append(q.entries, Entry{})
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = e
	switch {
	case q.current < 0:
		q.current = 0
	case pos <= q.current:
		q.current++
	}
}

func before(a, b Entry) bool {
	if a.Initiative != b.Initiative {
		return a.Initiative > b.Initiative
	}
	return a.Seq < b.Seq
}

func (q *Queue) indexOf(id string) int {
	for i, e := range q.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) fire(hooks []Hook, id string) {
	for _, h := range hooks {
		h(id)
	}
}

func (q *Queue) fireRoundStart() {
	for _, fn := range q.onRoundStart {
		fn()
	}
}
