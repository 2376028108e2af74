package combat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
)

// SnapshotStore persists combat snapshots.
type SnapshotStore interface {
	// Save appends s to its combat's history.
	Save(ctx context.Context, s Snapshot) error
	// Latest returns the newest snapshot for combatID.
	Latest(ctx context.Context, combatID string) (Snapshot, error)
	// ListCombatIDs returns every combat with at least one snapshot.
	ListCombatIDs(ctx context.Context) ([]string, error)
}

type session struct {
	mu     sync.Mutex
	combat *Combat
	timer  *TurnTimer
	armed  int // turn number the timer is counting down; 0 when idle
	closed bool
}

// Engine manages independent combats keyed by combat ID. Each combat is
// driven by one operation at a time; different combats run in parallel.
// All methods are safe for concurrent use.
type Engine struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	registry    *action.Registry
	opts        Options
	turnTimeout time.Duration
	logger      *zap.Logger
}

// NewEngine creates an empty Engine. Every combat it creates shares registry
// and opts, except that each gets its own Spatial service. A positive
// turnTimeout advances any turn left idle that long.
//
// Precondition: registry must be non-nil.
// Postcondition: Returns a non-nil Engine ready for use.
func NewEngine(registry *action.Registry, opts Options, turnTimeout time.Duration) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		sessions:    make(map[string]*session),
		registry:    registry,
		opts:        opts,
		turnTimeout: turnTimeout,
		logger:      opts.Logger,
	}
}

// Create registers a new combat. An empty id is replaced with a random UUID.
//
// Postcondition: Returns an error if a combat with id already exists.
func (e *Engine) Create(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sessions[id]; exists {
		return "", fmt.Errorf("combat %q already exists", id)
	}
	o := e.opts
	o.Spatial = nil
	e.sessions[id] = &session{combat: New(id, e.registry, o)}
	e.logger.Info("combat created", zap.String("combat_id", id))
	return id, nil
}

// Restore registers a combat rebuilt from s.
func (e *Engine) Restore(s Snapshot) error {
	o := e.opts
	o.Spatial = nil
	c := New(s.CombatID, e.registry, o)
	if err := c.Restore(s); err != nil {
		return err
	}
	e.mu.Lock()
	if _, exists := e.sessions[c.ID()]; exists {
		e.mu.Unlock()
		return fmt.Errorf("combat %q already exists", c.ID())
	}
	sess := &session{combat: c}
	e.sessions[c.ID()] = sess
	e.mu.Unlock()

	sess.mu.Lock()
	e.armTimer(c.ID(), sess)
	sess.mu.Unlock()
	return nil
}

// RestoreAll loads the latest snapshot of every combat in store that is
// still in progress. It returns how many combats were restored.
func (e *Engine) RestoreAll(ctx context.Context, store SnapshotStore) (int, error) {
	ids, err := store.ListCombatIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing saved combats: %w", err)
	}
	n := 0
	var errs []error
	for _, id := range ids {
		s, err := store.Latest(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("loading combat %q: %w", id, err))
			continue
		}
		if s.Status.IsTerminal() {
			continue
		}
		if err := e.Restore(s); err != nil {
			errs = append(errs, fmt.Errorf("restoring combat %q: %w", id, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Do runs fn against combat id while holding that combat's lock. ctx is
// checked before fn starts; an operation that has started always completes.
func (e *Engine) Do(ctx context.Context, id string, fn func(*Combat) error) error {
	sess, ok := e.session(id)
	if !ok {
		return fmt.Errorf("combat %q: %w", id, ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return fmt.Errorf("combat %q: %w", id, ErrNotFound)
	}
	err := fn(sess.combat)
	e.armTimer(id, sess)
	return err
}

// View returns the current View of combat id.
func (e *Engine) View(id string) (View, error) {
	var v View
	err := e.Do(context.Background(), id, func(c *Combat) error {
		v = c.State()
		return nil
	})
	return v, err
}

// End stops and forgets combat id. The combat itself is not transitioned;
// callers end it through Do first when a result should be recorded.
func (e *Engine) End(id string) error {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("combat %q: %w", id, ErrNotFound)
	}
	sess.mu.Lock()
	sess.closed = true
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.mu.Unlock()
	e.logger.Info("combat closed", zap.String("combat_id", id))
	return nil
}

// IDs returns the IDs of every hosted combat, sorted.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SaveAll snapshots every hosted combat into store. Each combat is locked
// only while its snapshot is taken.
func (e *Engine) SaveAll(ctx context.Context, store SnapshotStore) error {
	var errs []error
	for _, id := range e.IDs() {
		var snap Snapshot
		err := e.Do(ctx, id, func(c *Combat) error {
			snap = c.Snapshot()
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := store.Save(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("saving combat %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) session(id string) (*session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	return s, ok
}

// armTimer starts the idle-turn timer when a new turn has begun in an
// active combat, and stops it once the combat is no longer active.
//
// Precondition: sess.mu is held.
func (e *Engine) armTimer(id string, sess *session) {
	if e.turnTimeout <= 0 {
		return
	}
	c := sess.combat
	if c.Status() != StatusActive {
		if sess.timer != nil {
			sess.timer.Stop()
		}
		sess.armed = 0
		return
	}
	turn := c.TurnNumber()
	if turn == sess.armed {
		return
	}
	sess.armed = turn
	onFire := func() { e.expireTurn(id, turn) }
	if sess.timer == nil {
		sess.timer = NewTurnTimer(e.turnTimeout, onFire)
		return
	}
	sess.timer.Reset(e.turnTimeout, onFire)
}

// expireTurn advances combat id if turn is still the one in progress.
func (e *Engine) expireTurn(id string, turn int) {
	err := e.Do(context.Background(), id, func(c *Combat) error {
		if c.Status() != StatusActive || c.TurnNumber() != turn {
			return nil
		}
		cur, _ := c.Current()
		e.logger.Info("turn timed out", zap.String("combat_id", id), zap.String("combatant", cur))
		_, err := c.AdvanceTurn()
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		e.logger.Warn("turn timeout failed", zap.String("combat_id", id), zap.Error(err))
	}
}
