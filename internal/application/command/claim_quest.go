package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM QUEST COMMAND
// Turns a completed quest into XP. The claimed flag and the ledger row are
// written in the same unit of work, so a quest pays out at most once.
// ══════════════════════════════════════════════════════════════════════════════

// ClaimQuestCommand identifies the quest to claim.
type ClaimQuestCommand struct {
	UserID  shared.UserID
	QuestID string
}

// Validate validates the command.
func (c ClaimQuestCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.WrapError("quest", "Claim", shared.ErrInvalidInput, "user_id is required", shared.ErrInvalidID)
	}
	if strings.TrimSpace(c.QuestID) == "" {
		return shared.WrapError("quest", "Claim", shared.ErrInvalidInput, "quest_id is required", shared.ErrEmptyValue)
	}
	return nil
}

// ClaimQuestResult is returned by a successful claim.
type ClaimQuestResult struct {
	QuestID   string `json:"quest_id"`
	XPEarned  int    `json:"xp_earned"`
	NewTotal  int    `json:"new_total"`
	NewLevel  int    `json:"new_level"`
	LeveledUp bool   `json:"leveled_up"`
}

// ClaimQuestHandler handles ClaimQuestCommand.
type ClaimQuestHandler struct {
	store    gamification.Store
	settings Settings
}

// NewClaimQuestHandler creates a new ClaimQuestHandler.
func NewClaimQuestHandler(store gamification.Store, settings Settings) *ClaimQuestHandler {
	return &ClaimQuestHandler{store: store, settings: settings.withDefaults()}
}

// Handle executes the claim.
func (h *ClaimQuestHandler) Handle(ctx context.Context, cmd ClaimQuestCommand) (*ClaimQuestResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("claim_quest: %w", err)
	}
	if !h.settings.Toggles.Quests {
		return nil, fmt.Errorf("claim_quest: %w", ErrFeatureDisabled)
	}

	var result *ClaimQuestResult
	err := run(ctx, h.store, h.settings, cmd.UserID, func(ctx context.Context, u *unitOfWork) error {
		quest, err := u.tx.Quest(ctx, cmd.QuestID)
		if err != nil {
			return err
		}
		progress, err := u.tx.QuestProgress(ctx, cmd.QuestID)
		if err != nil {
			return err
		}
		if err := progress.Claim(u.now); err != nil {
			return err
		}
		if err := u.tx.SaveQuestProgress(ctx, progress); err != nil {
			return fmt.Errorf("save quest progress: %w", err)
		}

		result = &ClaimQuestResult{QuestID: quest.ID}
		if quest.XPReward != 0 {
			out, err := u.award(ctx, quest.XPReward, gamification.SourceQuest, quest.ID, "Completed quest: "+quest.Title)
			if err != nil {
				return err
			}
			result.XPEarned = quest.XPReward
			result.NewTotal = out.NewTotal
			result.NewLevel = out.NewLevel
			result.LeveledUp = out.LeveledUp()
		} else {
			acc, err := u.tx.Account(ctx)
			if err != nil {
				return err
			}
			result.NewTotal = acc.XP
			result.NewLevel = acc.Level
		}

		u.emit(shared.NewAchievementEvent(shared.EventQuestClaimed, cmd.UserID.String(), quest.ID, quest.Title, quest.XPReward))
		u.after(u.settings.Metrics.QuestClaimed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim_quest: %w", err)
	}

	h.settings.Logger.Info("quest claimed",
		logger.UserID(cmd.UserID.String()),
		logger.QuestID(cmd.QuestID),
		logger.XPAmount(result.XPEarned),
	)
	return result, nil
}
