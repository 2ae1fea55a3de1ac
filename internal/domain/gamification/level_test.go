package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	th := Thresholds{100, 300, 600}

	cases := []struct {
		xp    int
		level int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{599, 3},
		{600, 4},
		{10000, 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelFor(tc.xp, th), "xp=%d", tc.xp)
	}
}

func TestLevelFor_DefaultTable(t *testing.T) {
	assert.Equal(t, 1, LevelFor(50, DefaultThresholds))
	assert.Equal(t, 2, LevelFor(110, DefaultThresholds))
	assert.Equal(t, 10, LevelFor(5000, DefaultThresholds))
	assert.Equal(t, DefaultThresholds.MaxLevel(), LevelFor(1_000_000, DefaultThresholds))
}

func TestProgressWithinLevel(t *testing.T) {
	th := Thresholds{100, 300, 600}

	p := ProgressWithinLevel(200, 2, th)
	assert.Equal(t, 100, p.XPInLevel)
	assert.Equal(t, 200, p.XPForLevel)
	assert.InDelta(t, 50.0, p.Percent, 0.001)
	assert.Equal(t, 100, p.XPToNext)
	assert.False(t, p.IsMaxLevel)

	p = ProgressWithinLevel(0, 1, th)
	assert.Equal(t, 0.0, p.Percent)
	assert.Equal(t, 100, p.XPToNext)
}

func TestProgressWithinLevel_MaxLevel(t *testing.T) {
	th := Thresholds{100, 300, 600}
	p := ProgressWithinLevel(10000, 4, th)

	assert.True(t, p.IsMaxLevel)
	assert.Equal(t, 100.0, p.Percent)
	assert.Equal(t, 0, p.XPToNext)
}

func TestProgressWithinLevel_Clamped(t *testing.T) {
	th := Thresholds{100, 300, 600}
	// Stale level: xp already beyond the level's end.
	p := ProgressWithinLevel(500, 2, th)
	assert.Equal(t, 100.0, p.Percent)
	assert.Equal(t, 0, p.XPToNext)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds.Validate())
	assert.Error(t, Thresholds{}.Validate())
	assert.Error(t, Thresholds{100, 100}.Validate())
	assert.Error(t, Thresholds{300, 100}.Validate())
	assert.Error(t, Thresholds{0, 100}.Validate())
}
