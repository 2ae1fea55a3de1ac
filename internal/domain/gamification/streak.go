package gamification

import (
	"slices"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// StreakMilestones are the streak lengths reported once each.
var StreakMilestones = []int{7, 14, 30, 60, 90, 180, 365}

// MaxFreezeDays bounds a single streak freeze purchase.
const MaxFreezeDays = 7

// Streak tracks consecutive days of activity for one user.
type Streak struct {
	UserID       shared.UserID
	Current      int
	Longest      int
	LastActivity time.Time
	// FrozenUntil is inclusive. Zero means not frozen.
	FrozenUntil time.Time
	// Milestones already reported, ascending.
	Milestones []int
}

// StreakOutcome describes what a recorded activity did to the streak.
type StreakOutcome struct {
	Current   int
	Longest   int
	Extended  bool
	Frozen    bool
	Reset     bool
	Milestone int // 0 when none was reached
	// Changed is false for same-day repeats; nothing needs persisting.
	Changed bool
}

// NewStreak starts a streak of length 1 on day.
func NewStreak(userID shared.UserID, day time.Time) (*Streak, StreakOutcome) {
	s := &Streak{
		UserID:       userID,
		Current:      1,
		Longest:      1,
		LastActivity: timeutil.DateOf(day),
	}
	return s, StreakOutcome{Current: 1, Longest: 1, Extended: true, Changed: true}
}

// IsFrozenOn reports whether the freeze window covers day.
func (s *Streak) IsFrozenOn(day time.Time) bool {
	return !s.FrozenUntil.IsZero() && !timeutil.DateOf(s.FrozenUntil).Before(timeutil.DateOf(day))
}

// lastCovered is the latest day the streak is known to hold: the last
// activity, or the end of a freeze window that follows it.
func (s *Streak) lastCovered() time.Time {
	last := timeutil.DateOf(s.LastActivity)
	if !s.FrozenUntil.IsZero() && timeutil.DateOf(s.FrozenUntil).After(last) {
		return timeutil.DateOf(s.FrozenUntil)
	}
	return last
}

// HasMilestone reports whether m was already reported.
func (s *Streak) HasMilestone(m int) bool {
	return slices.Contains(s.Milestones, m)
}

// RecordActivity applies one day of activity.
//
// A freeze window takes precedence: the activity date moves but counters
// stay put. Otherwise same day is a no-op, the day after the last covered
// day extends, and any larger gap restarts at 1 without touching Longest.
func (s *Streak) RecordActivity(today time.Time) StreakOutcome {
	today = timeutil.DateOf(today)

	if s.IsFrozenOn(today) {
		s.LastActivity = today
		return StreakOutcome{Current: s.Current, Longest: s.Longest, Frozen: true, Changed: true}
	}

	last := timeutil.DateOf(s.LastActivity)
	switch {
	case last.Equal(today):
		return StreakOutcome{Current: s.Current, Longest: s.Longest}

	case timeutil.IsConsecutiveDay(s.lastCovered(), today):
		s.Current++
		s.Longest = max(s.Longest, s.Current)
		s.LastActivity = today
		out := StreakOutcome{Current: s.Current, Longest: s.Longest, Extended: true, Changed: true}
		if slices.Contains(StreakMilestones, s.Current) && !s.HasMilestone(s.Current) {
			s.Milestones = append(s.Milestones, s.Current)
			slices.Sort(s.Milestones)
			out.Milestone = s.Current
		}
		return out

	case today.Before(last):
		// Late or replayed activity for a past day does not rewind the streak.
		return StreakOutcome{Current: s.Current, Longest: s.Longest}

	default:
		s.Current = 1
		s.LastActivity = today
		return StreakOutcome{Current: 1, Longest: s.Longest, Extended: true, Reset: true, Changed: true}
	}
}

// Freeze protects the streak for the given number of days starting today.
// An existing longer freeze is kept. A streak that has already lapsed
// cannot be frozen back to life.
func (s *Streak) Freeze(today time.Time, days int) error {
	if days < 1 || days > MaxFreezeDays {
		return shared.ErrInvalidFreezeDays
	}
	if s.Current == 0 {
		return shared.ErrStreakNotStarted
	}
	if s.IsLapsed(today) {
		return shared.ErrStreakLapsed
	}
	until := timeutil.AddDays(today, days-1)
	if until.After(s.FrozenUntil) {
		s.FrozenUntil = until
	}
	return nil
}

// IsAtRisk reports whether the streak lapses unless there is activity today.
func (s *Streak) IsAtRisk(today time.Time) bool {
	if s.Current == 0 || s.IsFrozenOn(today) {
		return false
	}
	return timeutil.IsConsecutiveDay(s.lastCovered(), today)
}

// IsLapsed reports whether the streak will reset on the next activity.
func (s *Streak) IsLapsed(today time.Time) bool {
	if s.Current == 0 || s.IsFrozenOn(today) {
		return false
	}
	return timeutil.DaysBetween(s.lastCovered(), today) > 1
}
