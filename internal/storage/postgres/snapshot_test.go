package postgres_test

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage/postgres"
	"github.com/sharronesofer/visual-dm-sub028/internal/testutil"
)

func uniqueCombat(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func makeSnapshot(combatID string, round int) combat.Snapshot {
	return combat.Snapshot{
		CombatID:  combatID,
		Timestamp: time.Date(2026, time.March, 1, 12, 0, round, 0, time.UTC),
		Round:     round,
		Turn:      round * 2,
		Status:    combat.StatusActive,
		Order:     []string{"alice", "orc"},
		Characters: map[string]combat.Combatant{
			"alice": {ID: "alice", Name: "Alice", Kind: combat.KindPlayer, MaxHP: 30, CurrentHP: 30 - round},
			"orc":   {ID: "orc", Name: "Orc", Kind: combat.KindNPC, MaxHP: 40, CurrentHP: 40},
		},
		Effects: map[string][]effect.Effect{
			"orc": {{ID: "e1", Name: "Burning", Kind: effect.DamageOverTime, Duration: 3, AmountPerTurn: 2,
				DamageKind: "fire", Stacks: 1, MaxStacks: 1, TargetID: "orc"}},
		},
		TurnQueue: combat.QueueState{
			Queue:      []string{"alice", "orc"},
			Initiative: map[string]int{"alice": 15, "orc": 9},
			Current:    "alice",
		},
		Log: []string{fmt.Sprintf("round %d", round)},
	}
}

func setupRepo(t *testing.T) *postgres.SnapshotRepository {
	t.Helper()
	return postgres.NewSnapshotRepository(testutil.Postgres(t).Pool.DB())
}

func TestPool_HealthAndStats(t *testing.T) {
	pool := testutil.Postgres(t).Pool
	require.NoError(t, pool.Health(context.Background(), 5*time.Second))
	stats := pool.Stats()
	assert.Equal(t, int32(5), stats.Max)
	assert.GreaterOrEqual(t, stats.Total, stats.Idle)
}

func TestSnapshotRepository_SaveAndLatest(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	id := uniqueCombat("arena")

	_, err := repo.Latest(ctx, id)
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)

	for round := 1; round <= 3; round++ {
		require.NoError(t, repo.Save(ctx, makeSnapshot(id, round)))
	}

	got, err := repo.Latest(ctx, id)
	require.NoError(t, err)
	want := makeSnapshot(id, 3)
	assert.Equal(t, want.Round, got.Round)
	assert.Equal(t, want.Turn, got.Turn)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, want.Characters, got.Characters)
	assert.Equal(t, want.TurnQueue, got.TurnQueue)
	assert.Equal(t, want.Log, got.Log)
	require.Len(t, got.Effects["orc"], 1)
	assert.Equal(t, effect.DamageOverTime, got.Effects["orc"][0].Kind)
}

func TestSnapshotRepository_SaveRequiresCombatID(t *testing.T) {
	repo := setupRepo(t)
	assert.Error(t, repo.Save(context.Background(), combat.Snapshot{}))
}

func TestSnapshotRepository_ListIsOrdered(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	id := uniqueCombat("history")
	for round := 1; round <= 4; round++ {
		require.NoError(t, repo.Save(ctx, makeSnapshot(id, round)))
	}

	records, err := repo.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Snapshot.Round)
		if i > 0 {
			assert.Less(t, records[i-1].ID, rec.ID)
		}
	}
}

func TestSnapshotRepository_ListCombatIDs(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	a, b := uniqueCombat("a"), uniqueCombat("b")
	require.NoError(t, repo.Save(ctx, makeSnapshot(b, 1)))
	require.NoError(t, repo.Save(ctx, makeSnapshot(a, 1)))
	require.NoError(t, repo.Save(ctx, makeSnapshot(a, 2)))

	// The database is shared with other tests, so only relative order is checked.
	ids, err := repo.ListCombatIDs(ctx)
	require.NoError(t, err)
	ia, ib := slices.Index(ids, a), slices.Index(ids, b)
	require.NotEqual(t, -1, ia)
	require.NotEqual(t, -1, ib)
	assert.Less(t, ia, ib)
	assert.True(t, slices.IsSorted(ids))
}

func TestSnapshotRepository_Prune(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	id := uniqueCombat("prune")
	for round := 1; round <= 5; round++ {
		require.NoError(t, repo.Save(ctx, makeSnapshot(id, round)))
	}

	_, err := repo.Prune(ctx, id, 0)
	assert.Error(t, err)

	n, err := repo.Prune(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	records, err := repo.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 4, records[0].Snapshot.Round)
	assert.Equal(t, 5, records[1].Snapshot.Round)
}

func TestSnapshotRepository_Delete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	id := uniqueCombat("gone")
	require.NoError(t, repo.Save(ctx, makeSnapshot(id, 1)))

	require.NoError(t, repo.Delete(ctx, id))
	assert.ErrorIs(t, repo.Delete(ctx, id), storage.ErrSnapshotNotFound)
	_, err := repo.Latest(ctx, id)
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
}

func TestSnapshotRepository_EngineRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	id := uniqueCombat("engine")
	require.NoError(t, repo.Save(ctx, makeSnapshot(id, 2)))

	got, err := repo.Latest(ctx, id)
	require.NoError(t, err)
	c := combat.New(id, action.NewRegistry(), combat.Options{})
	require.NoError(t, c.Restore(got))
	assert.Equal(t, 2, c.Round())
	assert.Equal(t, "alice", c.State().Current)
}
