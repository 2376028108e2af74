package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
)

func TestParse_Forms(t *testing.T) {
	cases := []struct {
		raw  string
		want dice.Expression
	}{
		{"d20", dice.Expression{Raw: "d20", Count: 1, Sides: 20}},
		{"2d6", dice.Expression{Raw: "2d6", Count: 2, Sides: 6}},
		{"2d6+3", dice.Expression{Raw: "2d6+3", Count: 2, Sides: 6, Modifier: 3}},
		{"1D8 - 1", dice.Expression{Raw: "1D8 - 1", Count: 1, Sides: 8, Modifier: -1}},
		{"4d6kh3", dice.Expression{Raw: "4d6kh3", Count: 4, Sides: 6, KeepHighest: 3}},
	}
	for _, tc := range cases {
		got, err := dice.Parse(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, raw := range []string{"", "d", "2x6", "0d6", "2d1", "3d6kh3", "2d6+", "d20++1"} {
		_, err := dice.Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestMustParse_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { dice.MustParse("nope") })
}

func TestRoll_KeepHighest(t *testing.T) {
	src := dice.NewSeededSource(7)
	res := dice.Roll(dice.MustParse("4d6kh3"), src)
	require.Len(t, res.Rolled, 4)
	require.Len(t, res.Kept, 3)
	min := res.Rolled[0]
	sum := 0
	for _, d := range res.Rolled {
		sum += d
		if d < min {
			min = d
		}
	}
	assert.Equal(t, sum-min, res.Total())
}

func TestRollResult_String(t *testing.T) {
	r := dice.RollResult{Expression: "2d6+3", Rolled: []int{4, 5}, Kept: []int{4, 5}, Modifier: 3}
	assert.Equal(t, "2d6+3: [4 5] +3 = 12", r.String())
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := dice.NewSeededSource(42)
	b := dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Intn(20), b.Intn(20))
	}
}

func TestFixed_Clamps(t *testing.T) {
	assert.Equal(t, 19, dice.Fixed(25).Intn(20))
	assert.Equal(t, 0, dice.Fixed(-3).Intn(20))
	assert.Equal(t, 4, dice.Fixed(4).Intn(20))
}

func TestCryptoSource_PanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { dice.NewCryptoSource().Intn(0) })
}

func TestRoller_LogsRoll(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := dice.NewLoggedRoller(dice.Fixed(9), zap.New(core))
	assert.Equal(t, 10, r.D20())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "dice roll", logs.All()[0].Message)
}

func TestPropertyRoll_TotalWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 10).Draw(rt, "count")
		sides := rapid.IntRange(2, 20).Draw(rt, "sides")
		mod := rapid.IntRange(-10, 10).Draw(rt, "mod")
		seed := rapid.Uint64().Draw(rt, "seed")
		expr := dice.Expression{Raw: "x", Count: count, Sides: sides, Modifier: mod}
		res := dice.Roll(expr, dice.NewSeededSource(seed))
		assert.GreaterOrEqual(rt, res.Total(), count+mod)
		assert.LessOrEqual(rt, res.Total(), count*sides+mod)
	})
}
