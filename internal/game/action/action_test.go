package action_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
)

func strike() *action.Definition {
	return &action.Definition{ID: "strike", Name: "Strike", Kind: action.Standard, Target: action.TargetSingle, Tags: []string{"attack", "melee"}}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(strike(), "offense"))
	def, ok := reg.Get("strike")
	require.True(t, ok)
	assert.Equal(t, "Strike", def.Name)
	assert.Len(t, reg.ByCategory("offense"), 1)
	assert.Len(t, reg.ByKind(action.Standard), 1)
	assert.Empty(t, reg.ByKind(action.Bonus))
}

func TestRegistry_DuplicateIsAnError(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(strike()))
	err := reg.Register(strike())
	assert.ErrorIs(t, err, action.ErrDuplicateAction)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_OverrideReplaces(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(strike(), "offense"))
	replacement := strike()
	replacement.Name = "Heavy Strike"
	require.NoError(t, reg.Override(replacement, "heavy"))
	def, _ := reg.Get("strike")
	assert.Equal(t, "Heavy Strike", def.Name)
	assert.Empty(t, reg.ByCategory("offense"))
	assert.Len(t, reg.ByCategory("heavy"), 1)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	reg := action.NewRegistry()
	assert.Error(t, reg.Register(&action.Definition{ID: "", Name: "x"}))
	assert.Error(t, reg.Register(&action.Definition{ID: "x", Name: "x", Cooldown: -1}))
	assert.Error(t, reg.Register(&action.Definition{ID: "x", Name: "x", MinRange: 10, MaxRange: 5}))
	assert.Error(t, reg.Register(nil))
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(strike()))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := reg.Get("strike")
			assert.True(t, ok)
			assert.Len(t, reg.All(), 1)
		}()
	}
	wg.Wait()
}

func TestDefinition_RunDefaults(t *testing.T) {
	def := strike()
	src := action.Subject{ID: "a", Name: "Aria"}
	tgt := &action.Subject{ID: "b", Name: "Bram"}
	out := def.Run(src, tgt)
	assert.True(t, out.Success)
	assert.Equal(t, "Aria uses Strike on Bram", out.Message)
	assert.True(t, def.IsLegal(src, tgt))
	assert.True(t, def.HasTag("MELEE"))
}

func TestKind_ParseAndPriority(t *testing.T) {
	k, err := action.ParseKind("Reaction")
	require.NoError(t, err)
	assert.Equal(t, action.Reaction, k)
	_, err = action.ParseKind("lair")
	assert.Error(t, err)
	assert.Less(t, action.Reaction.Priority(), action.Standard.Priority())
	assert.Less(t, action.Standard.Priority(), action.Bonus.Priority())
	assert.Less(t, action.Bonus.Priority(), action.Movement.Priority())
	assert.Less(t, action.Movement.Priority(), action.Free.Priority())
}

func TestLoadSpecs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fire_bolt.yaml"), []byte(`
id: fire_bolt
name: Fire Bolt
kind: standard
target: single
max_range: 120
damage: 1d10
damage_kind: fire
effects: [burning]
tags: [spell, ranged]
categories: [offense]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	specs, err := action.LoadSpecs(dir)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	def, err := specs[0].Definition()
	require.NoError(t, err)
	assert.Equal(t, action.Standard, def.Kind)
	assert.Equal(t, 120.0, def.MaxRange)
	assert.Equal(t, []string{"burning"}, specs[0].Effects)
}

func TestLoadSpecs_UnknownFieldFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: x\nname: X\nkind: free\nbogus: 1\n"), 0644))
	_, err := action.LoadSpecs(dir)
	assert.Error(t, err)
}

func TestSpec_DefinitionRejectsUnknownKind(t *testing.T) {
	_, err := action.Spec{ID: "x", Name: "X", Kind: "legendary"}.Definition()
	assert.Error(t, err)
}
