package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM REWARD COMMAND
// Spends XP on a catalogue reward. The balance check, the debit and the
// claim row share one unit of work.
// ══════════════════════════════════════════════════════════════════════════════

// RedeemRewardCommand identifies the reward to buy.
type RedeemRewardCommand struct {
	UserID   shared.UserID
	RewardID string
}

// Validate validates the command.
func (c RedeemRewardCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.WrapError("reward", "Redeem", shared.ErrInvalidInput, "user_id is required", shared.ErrInvalidID)
	}
	if strings.TrimSpace(c.RewardID) == "" {
		return shared.WrapError("reward", "Redeem", shared.ErrInvalidInput, "reward_id is required", shared.ErrEmptyValue)
	}
	return nil
}

// SpendResult is returned by XP spending commands.
type SpendResult struct {
	XPSpent  int `json:"xp_spent"`
	NewTotal int `json:"new_total"`
	NewLevel int `json:"new_level"`
}

// RedeemRewardHandler handles RedeemRewardCommand.
type RedeemRewardHandler struct {
	store    gamification.Store
	settings Settings
}

// NewRedeemRewardHandler creates a new RedeemRewardHandler.
func NewRedeemRewardHandler(store gamification.Store, settings Settings) *RedeemRewardHandler {
	return &RedeemRewardHandler{store: store, settings: settings.withDefaults()}
}

// Handle executes the redemption.
func (h *RedeemRewardHandler) Handle(ctx context.Context, cmd RedeemRewardCommand) (*SpendResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("redeem_reward: %w", err)
	}

	var result *SpendResult
	err := run(ctx, h.store, h.settings, cmd.UserID, func(ctx context.Context, u *unitOfWork) error {
		reward, err := u.tx.Reward(ctx, cmd.RewardID)
		if err != nil {
			return err
		}
		claimed, err := u.tx.RewardClaimed(ctx, reward.ID)
		if err != nil {
			return fmt.Errorf("check claim: %w", err)
		}
		if claimed {
			return shared.ErrRewardAlreadyClaimed
		}

		result = &SpendResult{XPSpent: reward.XPCost}
		if reward.XPCost > 0 {
			out, err := u.award(ctx, -reward.XPCost, gamification.SourceReward, reward.ID, "Redeemed reward: "+reward.Name)
			if err != nil {
				return err
			}
			result.NewTotal = out.NewTotal
			result.NewLevel = out.NewLevel
		} else {
			acc, err := u.tx.Account(ctx)
			if err != nil {
				return err
			}
			result.NewTotal, result.NewLevel = acc.XP, acc.Level
		}

		if err := u.tx.SaveRewardClaim(ctx, &gamification.RewardClaim{
			UserID:    cmd.UserID,
			RewardID:  reward.ID,
			XPSpent:   reward.XPCost,
			ClaimedAt: u.now,
		}); err != nil {
			return fmt.Errorf("save claim: %w", err)
		}

		u.emit(shared.NewAchievementEvent(shared.EventRewardRedeemed, cmd.UserID.String(), reward.ID, reward.Name, -reward.XPCost))
		u.after(u.settings.Metrics.RewardRedeemed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redeem_reward: %w", err)
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FREEZE STREAK COMMAND
// Buys days during which missing activity does not break the streak.
// ══════════════════════════════════════════════════════════════════════════════

// FreezeStreakCommand contains the freeze length.
type FreezeStreakCommand struct {
	UserID shared.UserID
	Days   int
	// Today defaults to the clock's current date.
	Today time.Time
}

// Validate validates the command.
func (c FreezeStreakCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.WrapError("streak", "Freeze", shared.ErrInvalidInput, "user_id is required", shared.ErrInvalidID)
	}
	if c.Days < 1 || c.Days > gamification.MaxFreezeDays {
		return shared.ErrInvalidFreezeDays
	}
	return nil
}

// FreezeStreakResult is returned by a successful freeze.
type FreezeStreakResult struct {
	SpendResult
	FrozenUntil time.Time `json:"frozen_until"`
}

// FreezeStreakHandler handles FreezeStreakCommand.
type FreezeStreakHandler struct {
	store    gamification.Store
	settings Settings
}

// NewFreezeStreakHandler creates a new FreezeStreakHandler.
func NewFreezeStreakHandler(store gamification.Store, settings Settings) *FreezeStreakHandler {
	return &FreezeStreakHandler{store: store, settings: settings.withDefaults()}
}

// Handle executes the freeze.
func (h *FreezeStreakHandler) Handle(ctx context.Context, cmd FreezeStreakCommand) (*FreezeStreakResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("freeze_streak: %w", err)
	}
	if !h.settings.Toggles.Streaks {
		return nil, fmt.Errorf("freeze_streak: %w", ErrFeatureDisabled)
	}

	today := timeutil.DateOf(cmd.Today)
	if cmd.Today.IsZero() {
		today = timeutil.TodayFrom(h.settings.Clock)
	}

	var result *FreezeStreakResult
	err := run(ctx, h.store, h.settings, cmd.UserID, func(ctx context.Context, u *unitOfWork) error {
		streak, err := u.tx.Streak(ctx)
		if err != nil {
			return fmt.Errorf("load streak: %w", err)
		}
		if streak == nil {
			return shared.ErrStreakNotStarted
		}
		if err := streak.Freeze(today, cmd.Days); err != nil {
			return err
		}

		cost := cmd.Days * gamification.FreezeCostPerDay
		out, err := u.award(ctx, -cost, gamification.SourceStreak, "", fmt.Sprintf("Streak freeze: %d days", cmd.Days))
		if err != nil {
			return err
		}
		if err := u.tx.SaveStreak(ctx, streak); err != nil {
			return fmt.Errorf("save streak: %w", err)
		}

		u.emit(shared.NewStreakEvent(shared.EventStreakFrozen, cmd.UserID.String(), streak.Current, streak.Longest, streak.FrozenUntil))
		result = &FreezeStreakResult{
			SpendResult: SpendResult{XPSpent: cost, NewTotal: out.NewTotal, NewLevel: out.NewLevel},
			FrozenUntil: streak.FrozenUntil,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("freeze_streak: %w", err)
	}

	h.settings.Logger.Info("streak frozen",
		logger.UserID(cmd.UserID.String()),
		logger.Int("days", cmd.Days),
		logger.String("until", timeutil.FormatDate(result.FrozenUntil)),
	)
	return result, nil
}
