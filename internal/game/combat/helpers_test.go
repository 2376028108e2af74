package combat_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
)

// recorder is a Telemetry that keeps every event.
type recorder struct {
	events []combat.TelemetryEvent
}

func (r *recorder) Notify(ev combat.TelemetryEvent) { r.events = append(r.events, ev) }

func (r *recorder) count(typ string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) countFor(typ, actorID string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ && ev.ActorID == actorID {
			n++
		}
	}
	return n
}

func hit(verb string, damage int, kind string) action.ExecuteFunc {
	return func(src action.Subject, tgt *action.Subject) action.Outcome {
		return action.Outcome{
			Success:    true,
			Message:    fmt.Sprintf("%s %s %s", src.Name, verb, tgt.Name),
			Damage:     damage,
			DamageKind: kind,
		}
	}
}

func grant(e effect.Effect) action.ExecuteFunc {
	return func(src action.Subject, _ *action.Subject) action.Outcome {
		return action.Outcome{Success: true, Message: src.Name + " gains " + e.Name, Effects: []effect.Effect{e}}
	}
}

// testRegistry builds the actions used across combat tests.
func testRegistry(t testing.TB) *action.Registry {
	t.Helper()
	reg := action.NewRegistry()
	defs := []*action.Definition{
		{ID: "attack", Name: "Attack", Kind: action.Standard, Target: action.TargetSingle, Execute: hit("attacks", 20, "physical")},
		{ID: "jab", Name: "Jab", Kind: action.Bonus, Target: action.TargetSingle, Execute: hit("jabs", 3, "physical")},
		{ID: "riposte", Name: "Riposte", Kind: action.Reaction, Target: action.TargetSingle, Tags: []string{"damage_taken"}, Execute: hit("ripostes", 4, "physical")},
		{ID: "spear", Name: "Spear", Kind: action.Standard, Target: action.TargetSingle, MaxRange: 5, Execute: hit("spears", 6, "physical")},
		{ID: "hex", Name: "Hex", Kind: action.Standard, Target: action.TargetSingle, Cooldown: 2, Execute: hit("hexes", 1, "necrotic")},
		{ID: "dodge", Name: "Dodge", Kind: action.Standard, Target: action.TargetSelf,
			Execute: grant(effect.Effect{Name: "Dodging", Kind: effect.Buff, Duration: 1})},
		{ID: "shove", Name: "Shove", Kind: action.Bonus, Target: action.TargetSingle,
			Execute: func(src action.Subject, tgt *action.Subject) action.Outcome {
				return action.Outcome{Success: true, Message: src.Name + " shoves " + tgt.Name,
					Effects: []effect.Effect{{Name: "Prone", Kind: effect.Condition, Condition: "prone", Duration: 1}}}
			}},
		{ID: "wave", Name: "Wave", Kind: action.Free, Target: action.TargetSelf},
		{ID: "sprint", Name: "Sprint", Kind: action.Movement, Target: action.TargetSelf},
	}
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}
	return reg
}

// newCombat creates a combat with alice (player, dex 16), bob (player,
// dex 10) and orc (npc, dex 8). With the default Fixed(9) source every d20
// is 10, so initiatives are alice 13, bob 10, orc 9.
func newCombat(t testing.TB, opts combat.Options) (*combat.Combat, *recorder) {
	t.Helper()
	rec := &recorder{}
	if opts.Source == nil {
		opts.Source = dice.Fixed(9)
	}
	if opts.Telemetry == nil {
		opts.Telemetry = rec
	}
	c := combat.New("test-combat", testRegistry(t), opts)
	for _, cb := range []combat.Combatant{
		{ID: "alice", Name: "Alice", Kind: combat.KindPlayer, MaxHP: 30, CurrentHP: 30, Dexterity: 16},
		{ID: "bob", Name: "Bob", Kind: combat.KindPlayer, MaxHP: 25, CurrentHP: 25, Dexterity: 10},
		{ID: "orc", Name: "Orc", Kind: combat.KindNPC, MaxHP: 40, CurrentHP: 40, Dexterity: 8},
	} {
		_, err := c.AddCombatant(cb)
		require.NoError(t, err)
	}
	return c, rec
}

// startCombat is newCombat followed by Start.
func startCombat(t testing.TB, opts combat.Options) (*combat.Combat, *recorder) {
	t.Helper()
	c, rec := newCombat(t, opts)
	_, err := c.Start()
	require.NoError(t, err)
	return c, rec
}

func hp(t testing.TB, c *combat.Combat, id string) int {
	t.Helper()
	cb, ok := c.Combatant(id)
	require.True(t, ok, "combatant %s", id)
	return cb.CurrentHP
}

func current(c *combat.Combat) string {
	id, _ := c.Current()
	return id
}

func effectNames(list []effect.Effect) []string {
	names := make([]string, len(list))
	for i, e := range list {
		names[i] = e.Name
	}
	return names
}
