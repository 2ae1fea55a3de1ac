// Package command contains write operations (CQRS - Commands).
//
// Every command runs inside one gamification.Store unit of work for the
// acting user. Domain events collected while the unit of work runs are
// published only after it commits.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Toggles switches optional gamification features.
type Toggles struct {
	Streaks bool
	Badges  bool
	Quests  bool
}

// AllEnabled returns toggles with every feature on.
func AllEnabled() Toggles {
	return Toggles{Streaks: true, Badges: true, Quests: true}
}

// Metrics receives counters from command handlers.
type Metrics interface {
	XPAwarded(source gamification.SourceKind, amount int)
	LevelUp(level int)
	StreakRecorded(outcome string)
	BadgeUnlocked()
	QuestCompleted()
	QuestClaimed()
	RewardRedeemed()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) XPAwarded(gamification.SourceKind, int) {}
func (NopMetrics) LevelUp(int)                            {}
func (NopMetrics) StreakRecorded(string)                  {}
func (NopMetrics) BadgeUnlocked()                         {}
func (NopMetrics) QuestCompleted()                        {}
func (NopMetrics) QuestClaimed()                          {}
func (NopMetrics) RewardRedeemed()                        {}

// Settings is shared by all gamification command handlers.
type Settings struct {
	Thresholds gamification.Thresholds
	Clock      timeutil.Clock
	Toggles    Toggles
	// EventXP is XP credited per unit of a recorded event kind, on top of
	// any badge or quest rewards. Kinds absent from the map earn nothing.
	EventXP   map[gamification.RequirementKind]int
	Metrics   Metrics
	Publisher shared.EventPublisher
	Logger    *logger.Logger
}

// DefaultSettings returns settings suitable for tests and local runs.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: gamification.DefaultThresholds,
		Clock:      timeutil.SystemClock{},
		Toggles:    AllEnabled(),
		Metrics:    NopMetrics{},
		Publisher:  shared.NopPublisher{},
		Logger:     logger.Nop(),
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if len(s.Thresholds) == 0 {
		s.Thresholds = d.Thresholds
	}
	if s.Clock == nil {
		s.Clock = d.Clock
	}
	if s.Metrics == nil {
		s.Metrics = d.Metrics
	}
	if s.Publisher == nil {
		s.Publisher = d.Publisher
	}
	if s.Logger == nil {
		s.Logger = d.Logger
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// unitOfWork carries a transaction plus the events and counters produced in it.
type unitOfWork struct {
	tx       gamification.Tx
	settings Settings
	now      time.Time

	events  []shared.Event
	onAfter []func()
}

// run opens a unit of work for userID, then publishes events and flushes
// metrics if fn succeeded.
func run(ctx context.Context, store gamification.Store, s Settings, userID shared.UserID, fn func(ctx context.Context, u *unitOfWork) error) error {
	var committed *unitOfWork
	err := store.WithinUser(ctx, userID, func(ctx context.Context, tx gamification.Tx) error {
		u := &unitOfWork{tx: tx, settings: s, now: s.Clock.Now().UTC()}
		if err := fn(ctx, u); err != nil {
			return err
		}
		committed = u
		return nil
	})
	if err != nil {
		return err
	}

	for _, f := range committed.onAfter {
		f()
	}
	for _, e := range committed.events {
		if err := s.Publisher.Publish(e); err != nil {
			s.Logger.Warn("failed to publish event",
				logger.String("event", string(e.EventType())),
				logger.UserID(userID.String()),
				logger.Err(err),
			)
		}
	}
	return nil
}

func (u *unitOfWork) emit(e shared.Event) {
	u.events = append(u.events, e)
}

func (u *unitOfWork) after(f func()) {
	u.onAfter = append(u.onAfter, f)
}

// award applies amount to the locked account and appends the ledger row.
// It is the single write path for XP.
func (u *unitOfWork) award(ctx context.Context, amount int, kind gamification.SourceKind, sourceID, description string) (gamification.AwardOutcome, error) {
	acc, err := u.tx.Account(ctx)
	if err != nil {
		return gamification.AwardOutcome{}, fmt.Errorf("load account: %w", err)
	}

	out, err := acc.Apply(uuid.NewString(), amount, kind, sourceID, description, u.settings.Thresholds, u.now)
	if err != nil {
		return gamification.AwardOutcome{}, err
	}
	if err := u.tx.SaveAccount(ctx, acc); err != nil {
		return gamification.AwardOutcome{}, fmt.Errorf("save account: %w", err)
	}
	if err := u.tx.AppendTransaction(ctx, &out.Transaction); err != nil {
		return gamification.AwardOutcome{}, fmt.Errorf("append transaction: %w", err)
	}

	userID := acc.UserID.String()
	ev := shared.NewXPAwardedEvent(userID, amount, out.NewTotal, kind.String(), sourceID)
	if amount < 0 {
		ev.Type = shared.EventXPSpent
	}
	u.emit(ev)
	if out.LeveledUp() {
		u.emit(shared.NewLevelUpEvent(userID, out.OldLevel, out.NewLevel, out.NewTotal))
	}

	m := u.settings.Metrics
	u.after(func() {
		m.XPAwarded(kind, amount)
		if out.LeveledUp() {
			m.LevelUp(out.NewLevel)
		}
	})
	return out, nil
}

// accrue advances every open badge and quest of kind by count. For
// streak_days the count is the current streak length and progress is
// raised to it rather than added.
func (u *unitOfWork) accrue(ctx context.Context, kind gamification.RequirementKind, count int, absolute bool) (*RecordEventResult, error) {
	res := &RecordEventResult{UnlockedBadges: []UnlockedBadge{}, CompletedQuests: []CompletedQuest{}}
	toggles := u.settings.Toggles

	if toggles.Badges {
		badges, err := u.tx.OpenBadges(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load badges: %w", err)
		}
		for _, v := range badges {
			p := v.Progress
			delta := count
			if absolute {
				delta = count - p.Progress
			}
			if delta <= 0 {
				continue
			}
			unlocked := p.Advance(delta, v.Badge.RequirementValue, u.now)
			if err := u.tx.SaveBadgeProgress(ctx, &p); err != nil {
				return nil, fmt.Errorf("save badge progress: %w", err)
			}
			if !unlocked {
				continue
			}
			if err := u.unlockBadge(ctx, v.Badge); err != nil {
				return nil, err
			}
			res.UnlockedBadges = append(res.UnlockedBadges, UnlockedBadge{
				ID:       v.Badge.ID,
				Name:     v.Badge.Name,
				Tier:     v.Badge.Tier,
				XPReward: v.Badge.XPReward,
			})
		}
	}

	if toggles.Quests {
		quests, err := u.tx.OpenQuests(ctx, kind, u.now)
		if err != nil {
			return nil, fmt.Errorf("load quests: %w", err)
		}
		for _, v := range quests {
			p := v.Progress
			delta := count
			if absolute {
				delta = count - p.Progress
			}
			if delta <= 0 {
				continue
			}
			completed := p.Advance(delta, v.Quest.RequirementValue, u.now)
			if err := u.tx.SaveQuestProgress(ctx, &p); err != nil {
				return nil, fmt.Errorf("save quest progress: %w", err)
			}
			if !completed {
				continue
			}
			u.emit(shared.NewAchievementEvent(shared.EventQuestCompleted, p.UserID.String(), v.Quest.ID, v.Quest.Title, v.Quest.XPReward))
			u.after(u.settings.Metrics.QuestCompleted)
			res.CompletedQuests = append(res.CompletedQuests, CompletedQuest{
				ID:       v.Quest.ID,
				Title:    v.Quest.Title,
				XPReward: v.Quest.XPReward,
			})
		}
	}

	return res, nil
}

func (u *unitOfWork) unlockBadge(ctx context.Context, b gamification.Badge) error {
	acc, err := u.tx.Account(ctx)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	acc.BadgeCount++
	if err := u.tx.SaveAccount(ctx, acc); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if b.XPReward != 0 {
		if _, err := u.award(ctx, b.XPReward, gamification.SourceBadge, b.ID, "Unlocked badge: "+b.Name); err != nil {
			return fmt.Errorf("award badge xp: %w", err)
		}
	}
	u.emit(shared.NewAchievementEvent(shared.EventBadgeUnlocked, acc.UserID.String(), b.ID, b.Name, b.XPReward))
	u.after(u.settings.Metrics.BadgeUnlocked)
	return nil
}
