package command

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/memory"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var testNow = time.Date(2024, time.March, 10, 15, 0, 0, 0, time.UTC)

func setup(t *testing.T, users ...shared.UserID) (*memory.Store, Settings, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	for _, u := range users {
		require.NoError(t, store.EnsureAccount(context.Background(), u))
	}
	pub := &recordingPublisher{}
	s := DefaultSettings()
	s.Clock = timeutil.FixedClock{T: testNow}
	s.Publisher = pub
	return store, s, pub
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

func TestAwardXP_EndToEnd(t *testing.T) {
	store, settings, pub := setup(t, "u1")
	h := NewAwardXPHandler(store, settings)
	ctx := context.Background()

	res, err := h.Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 50, SourceKind: "module", SourceID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, 50, res.NewTotal)
	assert.Equal(t, 1, res.NewLevel)
	assert.False(t, res.LeveledUp)

	res, err = h.Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 60, SourceKind: "module", SourceID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, 110, res.NewTotal)
	assert.Equal(t, 2, res.NewLevel)
	assert.True(t, res.LeveledUp)

	txns, err := store.ListTransactions(ctx, "u1", shared.NewPagination(1, 10))
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, 110, txns[0].BalanceAfter)
	assert.Equal(t, 50, txns[1].BalanceAfter)

	assert.Equal(t, []shared.EventType{
		shared.EventXPAwarded,
		shared.EventXPAwarded,
		shared.EventLevelUp,
	}, pub.types())
}

func TestAwardXP_Validation(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	h := NewAwardXPHandler(store, settings)
	ctx := context.Background()

	_, err := h.Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 0, SourceKind: "module"})
	assert.ErrorIs(t, err, shared.ErrZeroAmount)
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 10, SourceKind: "lottery"})
	assert.ErrorIs(t, err, shared.ErrInvalidSourceKind)

	_, err = h.Handle(ctx, AwardXPCommand{UserID: "nobody", Amount: 10, SourceKind: "module"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestAwardXP_ConcurrentLedgerSum(t *testing.T) {
	store, settings, _ := setup(t, "u1", "u2")
	h := NewAwardXPHandler(store, settings)
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := shared.UserID("u1")
			if i%4 == 0 {
				user = "u2"
			}
			_, err := h.Handle(ctx, AwardXPCommand{UserID: user, Amount: i + 1, SourceKind: "session"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, user := range []shared.UserID{"u1", "u2"} {
		acc, err := store.GetAccount(ctx, user)
		require.NoError(t, err)

		txns, err := store.ListTransactions(ctx, user, shared.NewPagination(1, 100))
		require.NoError(t, err)

		// Oldest first: each row's balance is the running sum.
		sum := 0
		for i := len(txns) - 1; i >= 0; i-- {
			sum += txns[i].Amount
			assert.Equal(t, sum, txns[i].BalanceAfter)
		}
		assert.Equal(t, acc.XP, sum)
		assert.Equal(t, gamification.LevelFor(acc.XP, settings.Thresholds), acc.Level)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES AND QUESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordEvent_BadgeUnlocksOnce(t *testing.T) {
	store, settings, pub := setup(t, "u1")
	ctx := context.Background()
	require.NoError(t, store.UpsertBadge(ctx, &gamification.Badge{
		ID: "b-sessions", Name: "Regular", Active: true,
		RequirementType: gamification.RequirementSessionsAttended, RequirementValue: 3, XPReward: 25,
	}))
	h := NewRecordEventHandler(store, settings)

	for i := 0; i < 2; i++ {
		res, err := h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: gamification.RequirementSessionsAttended, Count: 1})
		require.NoError(t, err)
		assert.Empty(t, res.UnlockedBadges)
	}

	res, err := h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: gamification.RequirementSessionsAttended, Count: 1})
	require.NoError(t, err)
	require.Len(t, res.UnlockedBadges, 1)
	assert.Equal(t, "b-sessions", res.UnlockedBadges[0].ID)

	res, err = h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: gamification.RequirementSessionsAttended, Count: 5})
	require.NoError(t, err)
	assert.Empty(t, res.UnlockedBadges)

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 25, acc.XP)
	assert.Equal(t, 1, acc.BadgeCount)
	assert.Contains(t, pub.types(), shared.EventBadgeUnlocked)
}

func TestRecordEvent_MultipleBadgesAndQuest(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	kind := gamification.RequirementModulesCompleted
	require.NoError(t, store.UpsertBadge(ctx, &gamification.Badge{ID: "b1", Name: "First", Active: true, RequirementType: kind, RequirementValue: 1, XPReward: 10}))
	require.NoError(t, store.UpsertBadge(ctx, &gamification.Badge{ID: "b2", Name: "Free", Active: true, RequirementType: kind, RequirementValue: 1}))
	require.NoError(t, store.UpsertBadge(ctx, &gamification.Badge{ID: "b3", Name: "Retired", Active: false, RequirementType: kind, RequirementValue: 1, XPReward: 99}))
	require.NoError(t, store.UpsertQuest(ctx, &gamification.Quest{ID: "q1", Title: "Learn", Active: true, RequirementType: kind, RequirementValue: 1, XPReward: 40}))

	settings.EventXP = map[gamification.RequirementKind]int{kind: 5}
	h := NewRecordEventHandler(store, settings)

	res, err := h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: kind, Count: 1, SourceID: "mod-1"})
	require.NoError(t, err)
	assert.Len(t, res.UnlockedBadges, 2)
	require.Len(t, res.CompletedQuests, 1)
	assert.Equal(t, 15, res.XPEarned)

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	// Quest completion does not pay out until claimed.
	assert.Equal(t, 15, acc.XP)
}

func TestRecordEvent_RejectsBadInput(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	h := NewRecordEventHandler(store, settings)
	ctx := context.Background()

	_, err := h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: " ", Count: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidEventKind)

	_, err = h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: "modules_completed", Count: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidEventCount)
}

func completeQuest(t *testing.T, store *memory.Store, settings Settings, xp int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertQuest(ctx, &gamification.Quest{
		ID: "q1", Title: "Daily code", QuestType: gamification.QuestDaily, Active: true,
		RequirementType: gamification.RequirementCodeSubmissions, RequirementValue: 2, XPReward: xp,
	}))
	_, err := NewRecordEventHandler(store, settings).Handle(ctx, RecordEventCommand{
		UserID: "u1", EventKind: gamification.RequirementCodeSubmissions, Count: 2,
	})
	require.NoError(t, err)
}

func TestClaimQuest_Lifecycle(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	h := NewClaimQuestHandler(store, settings)

	_, err := h.Handle(ctx, ClaimQuestCommand{UserID: "u1", QuestID: "q1"})
	assert.ErrorIs(t, err, shared.ErrQuestNotFound)

	require.NoError(t, store.UpsertQuest(ctx, &gamification.Quest{
		ID: "q1", Title: "Daily code", Active: true,
		RequirementType: gamification.RequirementCodeSubmissions, RequirementValue: 2, XPReward: 120,
	}))
	_, err = h.Handle(ctx, ClaimQuestCommand{UserID: "u1", QuestID: "q1"})
	assert.ErrorIs(t, err, shared.ErrQuestNotStarted)
	assert.True(t, shared.IsNotFound(err))

	_, err = NewRecordEventHandler(store, settings).Handle(ctx, RecordEventCommand{
		UserID: "u1", EventKind: gamification.RequirementCodeSubmissions, Count: 1,
	})
	require.NoError(t, err)
	_, err = h.Handle(ctx, ClaimQuestCommand{UserID: "u1", QuestID: "q1"})
	assert.ErrorIs(t, err, shared.ErrQuestNotCompleted)

	completeQuest(t, store, settings, 120)
	res, err := h.Handle(ctx, ClaimQuestCommand{UserID: "u1", QuestID: "q1"})
	require.NoError(t, err)
	assert.Equal(t, 120, res.XPEarned)
	assert.Equal(t, 2, res.NewLevel)
	assert.True(t, res.LeveledUp)

	_, err = h.Handle(ctx, ClaimQuestCommand{UserID: "u1", QuestID: "q1"})
	assert.ErrorIs(t, err, shared.ErrQuestAlreadyClaimed)
	assert.True(t, shared.IsInvalidState(err))
}

func TestClaimQuest_ConcurrentDoubleClaim(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	completeQuest(t, store, settings, 75)
	h := NewClaimQuestHandler(store, settings)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(ctx, ClaimQuestCommand{UserID: "u1", QuestID: "q1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, shared.ErrQuestAlreadyClaimed):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, dupes)

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 75, acc.XP)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordActivity_IdempotentSameDay(t *testing.T) {
	store, settings, pub := setup(t, "u1")
	h := NewRecordActivityHandler(store, settings)
	ctx := context.Background()

	res, err := h.Handle(ctx, RecordActivityCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, res.StreakExtended)
	assert.Equal(t, 1, res.CurrentStreak)

	res, err = h.Handle(ctx, RecordActivityCommand{UserID: "u1", Today: testNow.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, res.StreakExtended)
	assert.Equal(t, 1, res.CurrentStreak)

	assert.Equal(t, []shared.EventType{shared.EventStreakExtended}, pub.types())
}

func TestRecordActivity_StreakBadgeAndReset(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	require.NoError(t, store.UpsertBadge(ctx, &gamification.Badge{
		ID: "b-streak3", Name: "Three in a row", Active: true,
		RequirementType: gamification.RequirementStreakDays, RequirementValue: 3, XPReward: 30,
	}))
	h := NewRecordActivityHandler(store, settings)

	day := func(d int) time.Time { return timeutil.Date(2024, time.March, d) }

	for d := 1; d <= 2; d++ {
		res, err := h.Handle(ctx, RecordActivityCommand{UserID: "u1", Today: day(d)})
		require.NoError(t, err)
		assert.Empty(t, res.UnlockedBadges)
	}
	res, err := h.Handle(ctx, RecordActivityCommand{UserID: "u1", Today: day(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.CurrentStreak)
	require.Len(t, res.UnlockedBadges, 1)

	res, err = h.Handle(ctx, RecordActivityCommand{UserID: "u1", Today: day(7)})
	require.NoError(t, err)
	assert.True(t, res.StreakReset)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 3, res.LongestStreak)

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, acc.XP)
}

func TestRecordActivity_Disabled(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	settings.Toggles.Streaks = false
	_, err := NewRecordActivityHandler(store, settings).Handle(context.Background(), RecordActivityCommand{UserID: "u1"})
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

// ══════════════════════════════════════════════════════════════════════════════
// SPENDING
// ══════════════════════════════════════════════════════════════════════════════

func TestRedeemReward(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	require.NoError(t, store.UpsertReward(ctx, &gamification.Reward{ID: "r1", Name: "Free session", XPCost: 100, Active: true}))
	h := NewRedeemRewardHandler(store, settings)

	_, err := h.Handle(ctx, RedeemRewardCommand{UserID: "u1", RewardID: "r1"})
	assert.ErrorIs(t, err, shared.ErrInsufficientXP)

	_, err = NewAwardXPHandler(store, settings).Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 150, SourceKind: "manual"})
	require.NoError(t, err)

	res, err := h.Handle(ctx, RedeemRewardCommand{UserID: "u1", RewardID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 50, res.NewTotal)
	assert.Equal(t, 1, res.NewLevel)

	_, err = h.Handle(ctx, RedeemRewardCommand{UserID: "u1", RewardID: "r1"})
	assert.ErrorIs(t, err, shared.ErrRewardAlreadyClaimed)

	_, err = h.Handle(ctx, RedeemRewardCommand{UserID: "u1", RewardID: "missing"})
	assert.ErrorIs(t, err, shared.ErrRewardNotFound)
}

func TestFreezeStreak(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	h := NewFreezeStreakHandler(store, settings)

	_, err := h.Handle(ctx, FreezeStreakCommand{UserID: "u1", Days: 2})
	assert.ErrorIs(t, err, shared.ErrStreakNotStarted)

	_, err = NewRecordActivityHandler(store, settings).Handle(ctx, RecordActivityCommand{UserID: "u1"})
	require.NoError(t, err)

	_, err = h.Handle(ctx, FreezeStreakCommand{UserID: "u1", Days: 2})
	assert.ErrorIs(t, err, shared.ErrInsufficientXP)

	_, err = NewAwardXPHandler(store, settings).Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 200, SourceKind: "manual"})
	require.NoError(t, err)

	res, err := h.Handle(ctx, FreezeStreakCommand{UserID: "u1", Days: 2})
	require.NoError(t, err)
	assert.Equal(t, 2*gamification.FreezeCostPerDay, res.XPSpent)
	assert.Equal(t, 100, res.NewTotal)
	assert.Equal(t, timeutil.AddDays(timeutil.DateOf(testNow), 1), res.FrozenUntil)

	_, err = h.Handle(ctx, FreezeStreakCommand{UserID: "u1", Days: gamification.MaxFreezeDays + 1})
	assert.ErrorIs(t, err, shared.ErrInvalidFreezeDays)
}

// ══════════════════════════════════════════════════════════════════════════════
// INPUT BOUNDS
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordEvent_CountOutOfRangeHasNoSideEffects(t *testing.T) {
	store, settings, pub := setup(t, "u1")
	ctx := context.Background()
	kind := gamification.RequirementModulesCompleted
	require.NoError(t, store.UpsertBadge(ctx, &gamification.Badge{ID: "b1", Name: "First", Active: true, RequirementType: kind, RequirementValue: 1, XPReward: 10}))
	settings.EventXP = map[gamification.RequirementKind]int{kind: 50}
	h := NewRecordEventHandler(store, settings)

	for _, count := range []int{gamification.MaxEventCount + 1, 1_000_000, math.MaxInt / 25, -3} {
		_, err := h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: kind, Count: count})
		assert.ErrorIs(t, err, shared.ErrInvalidEventCount, "count %d", count)
		assert.True(t, shared.IsValidation(err), "count %d", count)
	}

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, acc.XP)
	assert.Empty(t, pub.types())

	res, err := h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: kind, Count: gamification.MaxEventCount})
	require.NoError(t, err)
	assert.Equal(t, 50*gamification.MaxEventCount+10, res.XPEarned)
}

func TestRecordEvent_EarnNeverDebits(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	kind := gamification.RequirementModulesCompleted

	// A rate whose product overflows is rejected outright.
	settings.EventXP = map[gamification.RequirementKind]int{kind: math.MaxInt / 2}
	_, err := NewRecordEventHandler(store, settings).Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: kind, Count: 3})
	assert.ErrorIs(t, err, shared.ErrInvalidEventCount)

	// A product past the balance limit is refused by the ledger.
	settings.EventXP = map[gamification.RequirementKind]int{kind: gamification.MaxXP/2 + 1}
	_, err = NewRecordEventHandler(store, settings).Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: kind, Count: 2})
	assert.ErrorIs(t, err, shared.ErrXPLimitExceeded)

	// A negative rate earns nothing instead of spending.
	settings.EventXP = map[gamification.RequirementKind]int{kind: -10}
	res, err := NewRecordEventHandler(store, settings).Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: kind, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, res.XPEarned)

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, acc.XP)
}

func TestRecordEvent_StreakDaysNotReportable(t *testing.T) {
	store, settings, pub := setup(t, "u1")
	ctx := context.Background()
	require.NoError(t, store.UpsertBadge(ctx, &gamification.Badge{
		ID: "streak365", Name: "Year of code", Active: true,
		RequirementType: gamification.RequirementStreakDays, RequirementValue: 365, XPReward: 1000,
	}))
	h := NewRecordEventHandler(store, settings)

	_, err := h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: gamification.RequirementStreakDays, Count: 365})
	assert.ErrorIs(t, err, shared.ErrEventNotReportable)

	_, err = h.Handle(ctx, RecordEventCommand{UserID: "u1", EventKind: "made_up", Count: 1})
	assert.ErrorIs(t, err, shared.ErrEventNotReportable)

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, acc.XP)
	assert.Equal(t, 0, acc.BadgeCount)
	assert.Empty(t, pub.types())
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK FREEZE AND CONCURRENCY
// ══════════════════════════════════════════════════════════════════════════════

func buildStreak(t *testing.T, store *memory.Store, settings Settings, from, to time.Time) {
	t.Helper()
	h := NewRecordActivityHandler(store, settings)
	for d := from; !d.After(to); d = timeutil.AddDays(d, 1) {
		_, err := h.Handle(context.Background(), RecordActivityCommand{UserID: "u1", Today: d})
		require.NoError(t, err)
	}
}

func TestFreezeStreak_RejectedAfterLapse(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	march := func(d int) time.Time { return timeutil.Date(2024, time.March, d) }

	buildStreak(t, store, settings, march(1), march(10))
	_, err := NewAwardXPHandler(store, settings).Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 200, SourceKind: "manual"})
	require.NoError(t, err)

	_, err = NewFreezeStreakHandler(store, settings).Handle(ctx, FreezeStreakCommand{UserID: "u1", Days: 1, Today: march(15)})
	assert.ErrorIs(t, err, shared.ErrStreakLapsed)
	assert.True(t, shared.IsInvalidState(err))

	acc, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 200, acc.XP)

	res, err := NewRecordActivityHandler(store, settings).Handle(ctx, RecordActivityCommand{UserID: "u1", Today: march(16)})
	require.NoError(t, err)
	assert.True(t, res.StreakReset)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 10, res.LongestStreak)
}

func TestFreezeStreak_BridgesIdleDays(t *testing.T) {
	store, settings, _ := setup(t, "u1")
	ctx := context.Background()
	march := func(d int) time.Time { return timeutil.Date(2024, time.March, d) }

	buildStreak(t, store, settings, march(1), march(10))
	_, err := NewAwardXPHandler(store, settings).Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 200, SourceKind: "manual"})
	require.NoError(t, err)

	_, err = NewFreezeStreakHandler(store, settings).Handle(ctx, FreezeStreakCommand{UserID: "u1", Days: 2, Today: march(11)})
	require.NoError(t, err)

	res, err := NewRecordActivityHandler(store, settings).Handle(ctx, RecordActivityCommand{UserID: "u1", Today: march(13)})
	require.NoError(t, err)
	assert.False(t, res.StreakReset)
	assert.Equal(t, 11, res.CurrentStreak)
}

func TestRecordActivity_ConcurrentSameDayExtendsOnce(t *testing.T) {
	store, settings, pub := setup(t, "u1")
	ctx := context.Background()
	h := NewRecordActivityHandler(store, settings)
	march := func(d int) time.Time { return timeutil.Date(2024, time.March, d) }

	_, err := h.Handle(ctx, RecordActivityCommand{UserID: "u1", Today: march(1)})
	require.NoError(t, err)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		extended int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Handle(ctx, RecordActivityCommand{UserID: "u1", Today: march(2)})
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, 2, res.CurrentStreak)
			if res.StreakExtended {
				mu.Lock()
				extended++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, extended)
	streak, err := store.GetStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, streak.Current)
	assert.Equal(t, 2, streak.Longest)

	var events int
	for _, typ := range pub.types() {
		if typ == shared.EventStreakExtended {
			events++
		}
	}
	assert.Equal(t, 2, events)
}
