package gamification

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestBadgeProgress_UnlocksOnce(t *testing.T) {
	p := NewBadgeProgress("u1", "b1")

	assert.False(t, p.Advance(2, 3, now))
	assert.True(t, p.Advance(1, 3, now))
	assert.True(t, p.Unlocked)
	assert.Equal(t, now, p.UnlockedAt)

	assert.False(t, p.Advance(5, 3, now.Add(time.Hour)))
	assert.Equal(t, 3, p.Progress)
	assert.Equal(t, now, p.UnlockedAt)
}

func TestBadgeProgress_Percent(t *testing.T) {
	p := NewBadgeProgress("u1", "b1")
	p.Progress = 1
	assert.InDelta(t, 25.0, p.Percent(4), 0.001)
	assert.Equal(t, 100.0, p.Percent(0))
}

func TestQuestProgress_ClaimLifecycle(t *testing.T) {
	p := NewQuestProgress("u1", "q1")

	assert.ErrorIs(t, p.Claim(now), shared.ErrQuestNotCompleted)

	assert.True(t, p.Advance(5, 5, now))
	assert.False(t, p.Advance(1, 5, now))
	assert.Equal(t, 5, p.Progress)

	require.NoError(t, p.Claim(now))
	assert.True(t, p.Claimed)
	assert.ErrorIs(t, p.Claim(now), shared.ErrQuestAlreadyClaimed)
}

func TestQuest_IsOpen(t *testing.T) {
	q := Quest{Active: true}
	assert.True(t, q.IsOpen(now))

	q.ExpiresAt = now
	assert.False(t, q.IsOpen(now))

	q = Quest{Active: false}
	assert.False(t, q.IsOpen(now))
}

func TestAccount_Apply(t *testing.T) {
	a := NewAccount("u1")

	out, err := a.Apply("t1", 50, SourceModule, "m1", "", DefaultThresholds, now)
	require.NoError(t, err)
	assert.Equal(t, 50, out.NewTotal)
	assert.Equal(t, 1, out.NewLevel)
	assert.False(t, out.LeveledUp())

	out, err = a.Apply("t2", 60, SourceModule, "m2", "", DefaultThresholds, now)
	require.NoError(t, err)
	assert.Equal(t, 110, out.NewTotal)
	assert.Equal(t, 2, out.NewLevel)
	assert.True(t, out.LeveledUp())
	assert.Equal(t, 110, out.Transaction.BalanceAfter)
	assert.Equal(t, shared.UserID("u1"), out.Transaction.UserID)
}

func TestAccount_ApplyRejects(t *testing.T) {
	a := NewAccount("u1")

	_, err := a.Apply("t", 0, SourceModule, "", "", DefaultThresholds, now)
	assert.ErrorIs(t, err, shared.ErrZeroAmount)

	_, err = a.Apply("t", 10, SourceKind("lottery"), "", "", DefaultThresholds, now)
	assert.ErrorIs(t, err, shared.ErrInvalidSourceKind)

	_, err = a.Apply("t", -10, SourceReward, "r1", "", DefaultThresholds, now)
	assert.ErrorIs(t, err, shared.ErrInsufficientXP)
	assert.Equal(t, 0, a.XP)
}

func TestProgress_SaturatesAndNeverDecreases(t *testing.T) {
	b := NewBadgeProgress("u1", "b1")
	b.Progress = math.MaxInt32 - 1
	assert.True(t, b.Advance(math.MaxInt, math.MaxInt32, now))
	assert.Equal(t, math.MaxInt32, b.Progress)

	q := NewQuestProgress("u1", "q1")
	q.Progress = 3
	assert.False(t, q.Advance(-10, 5, now))
	assert.False(t, q.Advance(0, 5, now))
	assert.Equal(t, 3, q.Progress)
}

func TestAccount_ApplyRespectsBalanceLimit(t *testing.T) {
	a := NewAccount("u1")
	a.XP = MaxXP - 5

	_, err := a.Apply("t", 10, SourceModule, "", "", DefaultThresholds, now)
	assert.ErrorIs(t, err, shared.ErrXPLimitExceeded)
	assert.Equal(t, MaxXP-5, a.XP)

	out, err := a.Apply("t", 5, SourceModule, "", "", DefaultThresholds, now)
	require.NoError(t, err)
	assert.Equal(t, MaxXP, out.NewTotal)
}

func TestRequirementKind_IsReportable(t *testing.T) {
	assert.True(t, RequirementModulesCompleted.IsReportable())
	assert.True(t, RequirementSessionsAttended.IsReportable())
	assert.False(t, RequirementStreakDays.IsReportable())
	assert.False(t, RequirementKind("made_up").IsReportable())
}
