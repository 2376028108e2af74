package content_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/content"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
)

var contentPaths = content.Paths{
	ActionsDir: "../../../content/actions",
	EffectsDir: "../../../content/effects",
	ScriptsDir: "../../../content/scripts",
}

func loadBundle(t *testing.T, src dice.Source) *content.Bundle {
	t.Helper()
	b, err := content.Load(contentPaths, dice.NewLoggedRoller(src, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func fighter() action.Subject {
	return action.Subject{ID: "f", Name: "Fighter", CurrentHP: 20, MaxHP: 20, Dexterity: 14}
}

func orc() *action.Subject {
	return &action.Subject{ID: "o", Name: "Orc", CurrentHP: 15, MaxHP: 15, Dexterity: 10}
}

func TestLoad_ShippedContent(t *testing.T) {
	b := loadBundle(t, dice.Fixed(3))
	for _, id := range []string{"attack", "ranged_attack", "dodge", "dash", "disengage", "help", "hide", "opportunity_attack", "fire_bolt"} {
		_, ok := b.Actions.Get(id)
		assert.True(t, ok, "missing action %s", id)
	}
	assert.NotEmpty(t, b.Actions.ByCategory("basic"))
	for _, def := range b.Actions.ByKind(action.Reaction) {
		assert.Equal(t, action.Reaction, def.Kind)
	}
	_, ok := b.Effects.Get("burning")
	assert.True(t, ok)
}

func TestBind_StaticDamage(t *testing.T) {
	b := loadBundle(t, dice.Fixed(3))
	def, ok := b.Actions.Get("attack")
	require.True(t, ok)
	out := def.Run(fighter(), orc())
	assert.True(t, out.Success)
	assert.Equal(t, 6, out.Damage)
	assert.Equal(t, "slashing", out.DamageKind)
	assert.Equal(t, "Fighter's Attack hits Orc for 6 slashing damage", out.Message)
}

func TestBind_StaticEffects(t *testing.T) {
	b := loadBundle(t, dice.Fixed(0))
	def, ok := b.Actions.Get("dodge")
	require.True(t, ok)
	out := def.Run(fighter(), nil)
	assert.True(t, out.Success)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, "Dodging", out.Effects[0].Name)
	assert.Equal(t, effect.Buff, out.Effects[0].Kind)

	// each Run instantiates fresh effects
	again := def.Run(fighter(), nil)
	again.Effects[0].Duration = 99
	assert.Equal(t, 1, out.Effects[0].Duration)
}

func TestBind_LuaAction(t *testing.T) {
	t.Run("low roll", func(t *testing.T) {
		b := loadBundle(t, dice.Fixed(0))
		def, _ := b.Actions.Get("fire_bolt")
		out := def.Run(fighter(), orc())
		assert.True(t, out.Success)
		assert.Equal(t, 2, out.Damage)
		assert.Equal(t, "fire", out.DamageKind)
		assert.Empty(t, out.Effects)
	})
	t.Run("high roll sets target alight", func(t *testing.T) {
		b := loadBundle(t, dice.Fixed(9))
		def, _ := b.Actions.Get("fire_bolt")
		out := def.Run(fighter(), orc())
		assert.Equal(t, 20, out.Damage)
		require.Len(t, out.Effects, 1)
		assert.Equal(t, effect.DamageOverTime, out.Effects[0].Kind)
	})
}

func TestBind_LuaLegality(t *testing.T) {
	b := loadBundle(t, dice.Fixed(0))
	def, _ := b.Actions.Get("fire_bolt")
	assert.True(t, def.IsLegal(fighter(), orc()))
	assert.False(t, def.IsLegal(fighter(), nil))
	self := fighter()
	assert.False(t, def.IsLegal(fighter(), &self))
	down := orc()
	down.Defeated = true
	assert.False(t, def.IsLegal(fighter(), down))
}

func TestBind_Rejects(t *testing.T) {
	roller := dice.NewLoggedRoller(dice.Fixed(0), nil)
	effects := effect.NewRegistry()
	b := &content.Binder{Roller: roller, Effects: effects}

	_, err := b.Bind(action.Spec{ID: "x", Name: "X", Kind: "standard", Effects: []string{"nope"}})
	assert.ErrorContains(t, err, "nope")

	_, err = b.Bind(action.Spec{ID: "x", Name: "X", Kind: "standard", Damage: "banana"})
	assert.Error(t, err)

	_, err = b.Bind(action.Spec{ID: "x", Name: "X", Kind: "standard", LuaExecute: "missing"})
	assert.ErrorContains(t, err, "missing")

	_, err = b.Bind(action.Spec{ID: "x", Name: "X", Kind: "sideways"})
	assert.Error(t, err)
}

func TestBind_PlainActionUsesDefaultRun(t *testing.T) {
	b := &content.Binder{Roller: dice.NewLoggedRoller(dice.Fixed(0), nil), Effects: effect.NewRegistry()}
	def, err := b.Bind(action.Spec{ID: "wave", Name: "Wave", Kind: "free", Target: "self"})
	require.NoError(t, err)
	assert.Nil(t, def.Execute)
	assert.Equal(t, "Fighter uses Wave", def.Run(fighter(), nil).Message)
}

func TestLoadRegistry_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	spec := []byte("id: jab\nname: Jab\nkind: standard\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), spec, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), spec, 0644))
	b := &content.Binder{Roller: dice.NewLoggedRoller(dice.Fixed(0), nil), Effects: effect.NewRegistry()}
	_, err := b.LoadRegistry(dir)
	assert.ErrorIs(t, err, action.ErrDuplicateAction)
}

func TestLoad_MissingDirs(t *testing.T) {
	roller := dice.NewLoggedRoller(dice.Fixed(0), nil)
	_, err := content.Load(content.Paths{ActionsDir: contentPaths.ActionsDir, EffectsDir: "/nonexistent"}, roller, nil)
	assert.Error(t, err)
	_, err = content.Load(content.Paths{ActionsDir: contentPaths.ActionsDir, EffectsDir: contentPaths.EffectsDir}, roller, nil)
	assert.Error(t, err, "fire_bolt needs scripts")
}
