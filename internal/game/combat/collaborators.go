package combat

import (
	"sync"

	"go.uber.org/zap"
)

// Spatial owns combatant positions.
type Spatial interface {
	// EntityPosition returns the position of id.
	EntityPosition(id string) (Position, bool)
	// MoveEntity places id at pos.
	MoveEntity(id string, pos Position)
	// PathCost returns the movement needed to travel from a to b.
	PathCost(a, b Position) float64
}

// Sight is how well one combatant perceives another.
type Sight int

const (
	SightNone Sight = iota
	SightPartial
	SightClear
)

// String returns the sight level name.
func (s Sight) String() string {
	switch s {
	case SightClear:
		return "clear"
	case SightPartial:
		return "partial"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Sight) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Visibility answers line-of-sight questions.
type Visibility interface {
	VisibilityBetween(observerID, targetID string) Sight
}

// TelemetryEvent is a fire-and-forget notification for animation or audit sinks.
type TelemetryEvent struct {
	Type     string         `json:"type"`
	CombatID string         `json:"combatId"`
	Round    int            `json:"round"`
	ActorID  string         `json:"actorId,omitempty"`
	TargetID string         `json:"targetId,omitempty"`
	Amount   float64        `json:"amount,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Telemetry event types.
const (
	EventTurnStart        = "turn_start"
	EventTurnEnd          = "turn_end"
	EventRoundStart       = "round_start"
	EventMove             = "move"
	EventAction           = "action"
	EventDamage           = "damage"
	EventHeal             = "heal"
	EventDeath            = "death"
	EventStatus           = "status"
	EventPerceptionResult = "perception_result"
)

// Telemetry receives notifications. Its outcome never affects combat state.
type Telemetry interface {
	Notify(TelemetryEvent)
}

// Grid is the default Spatial service: an unbounded space where path cost
// is straight-line distance. It is safe for concurrent use.
type Grid struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// NewGrid creates an empty Grid.
func NewGrid() *Grid {
	return &Grid{positions: make(map[string]Position)}
}

// EntityPosition implements Spatial.
func (g *Grid) EntityPosition(id string) (Position, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.positions[id]
	return p, ok
}

// MoveEntity implements Spatial.
func (g *Grid) MoveEntity(id string, pos Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[id] = pos
}

// PathCost implements Spatial.
func (g *Grid) PathCost(a, b Position) float64 { return a.Distance(b) }

type clearSight struct{}

func (clearSight) VisibilityBetween(string, string) Sight { return SightClear }

// AlwaysVisible is the default Visibility service.
var AlwaysVisible Visibility = clearSight{}

type nopTelemetry struct{}

func (nopTelemetry) Notify(TelemetryEvent) {}

// NopTelemetry discards every event.
var NopTelemetry Telemetry = nopTelemetry{}

// LoggingTelemetry writes each event to a zap logger at Debug.
type LoggingTelemetry struct {
	logger *zap.Logger
}

// NewLoggingTelemetry returns a Telemetry backed by logger.
//
// Precondition: logger must be non-nil.
func NewLoggingTelemetry(logger *zap.Logger) *LoggingTelemetry {
	return &LoggingTelemetry{logger: logger}
}

// Notify implements Telemetry.
func (t *LoggingTelemetry) Notify(ev TelemetryEvent) {
	t.logger.Debug("combat telemetry",
		zap.String("type", ev.Type),
		zap.String("combat_id", ev.CombatID),
		zap.Int("round", ev.Round),
		zap.String("actor", ev.ActorID),
		zap.String("target", ev.TargetID),
		zap.Float64("amount", ev.Amount),
		zap.Any("detail", ev.Detail),
	)
}
