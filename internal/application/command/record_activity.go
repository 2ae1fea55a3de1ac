package command

import (
	"context"
	"fmt"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Advances the daily streak. Safe to call on every user action: repeated
// calls on the same day change nothing.
// ══════════════════════════════════════════════════════════════════════════════

// ErrFeatureDisabled is returned when a command targets a switched-off feature.
var ErrFeatureDisabled = shared.NewDomainError("gamification", "Feature", shared.ErrForbidden, "feature disabled")

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	UserID shared.UserID

	// Today is the activity date. Zero means the clock's current UTC date.
	// Only the calendar date is used.
	Today time.Time
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.WrapError("streak", "RecordActivity", shared.ErrInvalidInput, "user_id is required", shared.ErrInvalidID)
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	CurrentStreak    int             `json:"current_streak"`
	LongestStreak    int             `json:"longest_streak"`
	StreakExtended   bool            `json:"streak_extended"`
	StreakReset      bool            `json:"streak_reset,omitempty"`
	IsFrozen         bool            `json:"is_frozen,omitempty"`
	MilestoneReached int             `json:"milestone_reached,omitempty"`
	UnlockedBadges   []UnlockedBadge `json:"unlocked_badges,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	store    gamification.Store
	settings Settings
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(store gamification.Store, settings Settings) *RecordActivityHandler {
	return &RecordActivityHandler{store: store, settings: settings.withDefaults()}
}

// Handle executes the record activity command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}
	if !h.settings.Toggles.Streaks {
		return nil, fmt.Errorf("record_activity: %w", ErrFeatureDisabled)
	}

	today := timeutil.DateOf(cmd.Today)
	if cmd.Today.IsZero() {
		today = timeutil.TodayFrom(h.settings.Clock)
	}

	var result *RecordActivityResult
	err := run(ctx, h.store, h.settings, cmd.UserID, func(ctx context.Context, u *unitOfWork) error {
		streak, err := u.tx.Streak(ctx)
		if err != nil {
			return fmt.Errorf("load streak: %w", err)
		}

		var out gamification.StreakOutcome
		if streak == nil {
			streak, out = gamification.NewStreak(cmd.UserID, today)
		} else {
			out = streak.RecordActivity(today)
		}

		result = &RecordActivityResult{
			CurrentStreak:    out.Current,
			LongestStreak:    out.Longest,
			StreakExtended:   out.Extended,
			StreakReset:      out.Reset,
			IsFrozen:         out.Frozen,
			MilestoneReached: out.Milestone,
		}
		if !out.Changed {
			return nil
		}
		if err := u.tx.SaveStreak(ctx, streak); err != nil {
			return fmt.Errorf("save streak: %w", err)
		}

		h.emitStreakEvents(u, streak, out, today)

		if out.Extended {
			acc, err := u.accrue(ctx, gamification.RequirementStreakDays, streak.Current, true)
			if err != nil {
				return err
			}
			result.UnlockedBadges = acc.UnlockedBadges
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}

	if result.MilestoneReached > 0 {
		h.settings.Logger.Info("streak milestone reached",
			logger.UserID(cmd.UserID.String()),
			logger.Int("milestone", result.MilestoneReached),
		)
	}
	return result, nil
}

func (h *RecordActivityHandler) emitStreakEvents(u *unitOfWork, s *gamification.Streak, out gamification.StreakOutcome, today time.Time) {
	userID := s.UserID.String()
	outcome := "noop"

	switch {
	case out.Frozen:
		outcome = "frozen"
	case out.Reset:
		outcome = "reset"
		u.emit(shared.NewStreakEvent(shared.EventStreakReset, userID, s.Current, s.Longest, today))
	case out.Extended:
		outcome = "extended"
		u.emit(shared.NewStreakEvent(shared.EventStreakExtended, userID, s.Current, s.Longest, today))
	}
	if out.Milestone > 0 {
		u.emit(shared.NewStreakMilestoneEvent(userID, out.Milestone))
	}

	m := h.settings.Metrics
	u.after(func() { m.StreakRecorded(outcome) })
}
