package combat_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
)

// midFight returns a combat in round 2 with damage, an effect, a spent
// slot and a cooldown to persist.
func midFight(t *testing.T) *combat.Combat {
	t.Helper()
	c, _ := startCombat(t, combat.Options{})
	_, err := c.ApplyEffect("alice", "orc", effect.Effect{
		Name: "Burning", Kind: effect.DamageOverTime, Duration: 5, AmountPerTurn: 2, DamageKind: "fire",
		Stacking: effect.Both, MaxStacks: 3,
	})
	require.NoError(t, err)
	rotate(t, c, 3)
	res, err := c.TakeAction("alice", "hex", "orc")
	require.NoError(t, err)
	require.True(t, res.Success)
	res, err = c.Move("alice", combat.Position{X: 6, Y: 8})
	require.NoError(t, err)
	require.True(t, res.Success)
	return c
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c := midFight(t)
	data, err := combat.EncodeSnapshot(c.Snapshot())
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte(`"roundNumber":2`)))
	assert.True(t, bytes.Contains(data, []byte(`"kind":"damage_over_time"`)))

	s, err := combat.DecodeSnapshot(data)
	require.NoError(t, err)
	restored := combat.New(c.ID(), testRegistry(t), combat.Options{Source: dice.Fixed(9)})
	require.NoError(t, restored.Restore(s))

	want, got := c.State(), restored.State()
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Round, got.Round)
	assert.Equal(t, want.Current, got.Current)
	assert.Equal(t, want.TurnOrder, got.TurnOrder)
	assert.Equal(t, c.TurnNumber(), restored.TurnNumber())
	assert.Equal(t, c.Log(), restored.Log())
	require.Len(t, got.Combatants, len(want.Combatants))
	for i := range want.Combatants {
		w, g := want.Combatants[i], got.Combatants[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.CurrentHP, g.CurrentHP)
		assert.Equal(t, w.Initiative, g.Initiative)
		assert.Equal(t, w.Position, g.Position)
		assert.Equal(t, w.Remaining, g.Remaining)
		assert.Equal(t, effectNames(w.Effects), effectNames(g.Effects))
	}

	// The restored combat carries on identically.
	rem, err := restored.Remaining("alice")
	require.NoError(t, err)
	assert.Equal(t, 20.0, rem.Movement)
	res, err := restored.TakeAction("alice", "hex", "orc")
	require.NoError(t, err)
	assert.False(t, res.Success, "standard slot and cooldown survive")

	for _, r := range []*combat.Combat{c, restored} {
		rotate(t, r, 3)
	}
	assert.Equal(t, hp(t, c, "orc"), hp(t, restored, "orc"))
	assert.Equal(t, c.Round(), restored.Round())
}

func TestRestore_RejectsMalformed(t *testing.T) {
	cases := map[string]func(*combat.Snapshot){
		"unknown queue entry": func(s *combat.Snapshot) { s.TurnQueue.Queue = append(s.TurnQueue.Queue, "ghost") },
		"unknown status":      func(s *combat.Snapshot) { s.Status = "exploded" },
		"other combat":        func(s *combat.Snapshot) { s.CombatID = "elsewhere" },
		"negative round":      func(s *combat.Snapshot) { s.Round = -1 },
		"hp above max": func(s *combat.Snapshot) {
			cb := s.Characters["bob"]
			cb.CurrentHP = cb.MaxHP + 1
			s.Characters["bob"] = cb
		},
		"queue out of order": func(s *combat.Snapshot) {
			q := s.TurnQueue.Queue
			q[0], q[len(q)-1] = q[len(q)-1], q[0]
		},
		"effect on stranger": func(s *combat.Snapshot) {
			s.Effects["ghost"] = []effect.Effect{{ID: "x", Name: "Hexed", Kind: effect.Debuff, Duration: 1, Stacks: 1, MaxStacks: 1}}
		},
		"unknown readied action": func(s *combat.Snapshot) {
			s.Readied = map[string]combat.Readied{"alice": {ActionID: "fireball", Trigger: "now"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := midFight(t)
			before := c.State()
			s := c.Snapshot()
			mutate(&s)

			err := c.Restore(s)
			assert.ErrorIs(t, err, combat.ErrInvalidSnapshot)

			after := c.State()
			assert.Equal(t, before.Round, after.Round)
			assert.Equal(t, before.Current, after.Current)
			assert.Equal(t, before.TurnOrder, after.TurnOrder)
			assert.Equal(t, hp(t, c, "orc"), before.Combatants[2].CurrentHP)
			assert.Len(t, c.Effects("orc"), 1)
		})
	}
}

func TestDecodeSnapshot_RejectsUnknownEffectKind(t *testing.T) {
	c := midFight(t)
	data, err := combat.EncodeSnapshot(c.Snapshot())
	require.NoError(t, err)

	data = bytes.ReplaceAll(data, []byte(`"kind":"damage_over_time"`), []byte(`"kind":"wibble"`))
	_, err = combat.DecodeSnapshot(data)
	assert.ErrorIs(t, err, combat.ErrInvalidSnapshot)

	_, err = combat.DecodeSnapshot([]byte(`{"combatId":`))
	assert.ErrorIs(t, err, combat.ErrInvalidSnapshot)
}

func TestUndo(t *testing.T) {
	c, _ := startCombat(t, combat.Options{HistoryLimit: 5})
	_, err := c.Undo()
	assert.ErrorIs(t, err, combat.ErrNoHistory)

	res, err := c.TakeAction("alice", "attack", "orc")
	require.NoError(t, err)
	require.True(t, res.Success)
	_, err = c.AdvanceTurn()
	require.NoError(t, err)

	// Failed requests leave nothing to undo.
	res, err = c.TakeAction("alice", "attack", "orc")
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Len(t, c.History(), 2)

	v, err := c.Undo()
	require.NoError(t, err)
	assert.Equal(t, "alice", v.Current)
	assert.Equal(t, 20, hp(t, c, "orc"))

	v, err = c.Undo()
	require.NoError(t, err)
	assert.Equal(t, 40, hp(t, c, "orc"))
	rem, _ := c.Remaining("alice")
	assert.True(t, rem.Standard)

	_, err = c.Undo()
	assert.ErrorIs(t, err, combat.ErrNoHistory)
}

func TestUndo_HistoryIsBounded(t *testing.T) {
	c, _ := startCombat(t, combat.Options{HistoryLimit: 2})
	rotate(t, c, 5)
	assert.Len(t, c.History(), 2)
}

func TestProperty_HitPointsStayInBounds(t *testing.T) {
	reg := testRegistry(t)
	rapid.Check(t, func(rt *rapid.T) {
		rec := &recorder{}
		c := combat.New("prop", reg, combat.Options{Source: dice.Fixed(9), Telemetry: rec})
		_, err := c.AddCombatant(combat.Combatant{ID: "a", Name: "A", Kind: combat.KindPlayer, MaxHP: 30, CurrentHP: 30})
		if err != nil {
			rt.Fatal(err)
		}
		_, err = c.AddCombatant(combat.Combatant{ID: "b", Name: "B", Kind: combat.KindNPC, MaxHP: 20, CurrentHP: 20})
		if err != nil {
			rt.Fatal(err)
		}
		if _, err := c.Start(); err != nil {
			rt.Fatal(err)
		}

		ops := rapid.IntRange(1, 30).Draw(rt, "ops")
		wasDefeated := false
		for i := 0; i < ops; i++ {
			amount := rapid.IntRange(0, 25).Draw(rt, "amount")
			if rapid.Bool().Draw(rt, "heal") {
				_, err = c.ApplyHealing("a", "b", amount)
			} else {
				_, err = c.ApplyDamage("a", "b", amount, "physical")
			}
			if err != nil {
				rt.Fatal(err)
			}
			b, _ := c.Combatant("b")
			if b.CurrentHP < 0 || b.CurrentHP > b.MaxHP {
				rt.Fatalf("hp %d outside [0, %d]", b.CurrentHP, b.MaxHP)
			}
			if b.Defeated != (b.CurrentHP == 0) {
				rt.Fatalf("defeated=%v with hp %d", b.Defeated, b.CurrentHP)
			}
			if wasDefeated && !b.Defeated {
				rt.Fatalf("b was revived")
			}
			wasDefeated = b.Defeated
		}
		if n := rec.count(combat.EventDeath); n > 1 {
			rt.Fatalf("death reported %d times", n)
		}
	})
}
