package combat

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// Status is the lifecycle state of a combat.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusVictory      Status = "victory"
	StatusDefeat       Status = "defeat"
	StatusRetreated    Status = "retreated"
	StatusSurrendered  Status = "surrendered"
)

// IsTerminal reports whether s ends the combat.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusVictory, StatusDefeat, StatusRetreated, StatusSurrendered:
		return true
	}
	return false
}

func (s Status) valid() bool {
	switch s {
	case StatusInitializing, StatusActive, StatusPaused:
		return true
	}
	return s.IsTerminal()
}

const (
	evStart     = "start"
	evPause     = "pause"
	evResume    = "resume"
	evVictory   = "victory"
	evDefeat    = "defeat"
	evRetreat   = "retreat"
	evSurrender = "surrender"
)

var live = []string{string(StatusInitializing), string(StatusActive), string(StatusPaused)}

// terminalEvents maps each terminal status to the event reaching it.
var terminalEvents = map[Status]string{
	StatusVictory:     evVictory,
	StatusDefeat:      evDefeat,
	StatusRetreated:   evRetreat,
	StatusSurrendered: evSurrender,
}

func newStatusMachine(onEnter func(from, to Status)) *fsm.FSM {
	return fsm.NewFSM(
		string(StatusInitializing),
		fsm.Events{
			{Name: evStart, Src: []string{string(StatusInitializing)}, Dst: string(StatusActive)},
			{Name: evPause, Src: []string{string(StatusActive)}, Dst: string(StatusPaused)},
			{Name: evResume, Src: []string{string(StatusPaused)}, Dst: string(StatusActive)},
			{Name: evVictory, Src: live, Dst: string(StatusVictory)},
			{Name: evDefeat, Src: live, Dst: string(StatusDefeat)},
			{Name: evRetreat, Src: live, Dst: string(StatusRetreated)},
			{Name: evSurrender, Src: live, Dst: string(StatusSurrendered)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(Status(e.Src), Status(e.Dst))
			},
		},
	)
}

// eventFor picks the event that moves the machine from cur to target.
func eventFor(cur, target Status) (string, error) {
	switch {
	case target.IsTerminal():
		return terminalEvents[target], nil
	case target == StatusPaused:
		return evPause, nil
	case target == StatusActive && cur == StatusPaused:
		return evResume, nil
	case target == StatusActive:
		return evStart, nil
	}
	return "", fmt.Errorf("%s -> %s: %w", cur, target, ErrInvalidTransition)
}

func (c *Combat) fire(event string) error {
	from := c.Status()
	if err := c.status.Event(context.Background(), event); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return fmt.Errorf("%s on %s: %w", event, from, ErrInvalidTransition)
		}
		return fmt.Errorf("%s on %s: %w", event, from, err)
	}
	return nil
}
