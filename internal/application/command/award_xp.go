package command

import (
	"context"
	"fmt"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// Credits (or debits) XP and writes the ledger row in one unit of work.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains the data for one ledger entry.
type AwardXPCommand struct {
	UserID shared.UserID

	// Amount is positive for earnings and negative for spends. Zero is rejected.
	Amount int

	// SourceKind is one of module, session, badge, quest, manual, reward, streak.
	SourceKind string

	SourceID    string
	Description string
}

// Validate validates the command.
func (c AwardXPCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.WrapError("ledger", "Award", shared.ErrInvalidInput, "user_id is required", shared.ErrInvalidID)
	}
	if c.Amount == 0 {
		return shared.ErrZeroAmount
	}
	if _, err := gamification.ParseSourceKind(c.SourceKind); err != nil {
		return err
	}
	return nil
}

// AwardResult is returned by AwardXPHandler.
type AwardResult struct {
	XPEarned  int  `json:"xp_earned"`
	NewTotal  int  `json:"new_total"`
	OldLevel  int  `json:"old_level"`
	NewLevel  int  `json:"new_level"`
	LeveledUp bool `json:"leveled_up"`
}

// AwardXPHandler handles AwardXPCommand.
type AwardXPHandler struct {
	store    gamification.Store
	settings Settings
}

// NewAwardXPHandler creates a new AwardXPHandler.
func NewAwardXPHandler(store gamification.Store, settings Settings) *AwardXPHandler {
	return &AwardXPHandler{store: store, settings: settings.withDefaults()}
}

// Handle executes the award.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}

	var result *AwardResult
	err := run(ctx, h.store, h.settings, cmd.UserID, func(ctx context.Context, u *unitOfWork) error {
		out, err := u.award(ctx, cmd.Amount, gamification.SourceKind(cmd.SourceKind), cmd.SourceID, cmd.Description)
		if err != nil {
			return err
		}
		result = &AwardResult{
			XPEarned:  cmd.Amount,
			NewTotal:  out.NewTotal,
			OldLevel:  out.OldLevel,
			NewLevel:  out.NewLevel,
			LeveledUp: out.LeveledUp(),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}

	if result.LeveledUp {
		h.settings.Logger.Info("user leveled up",
			logger.UserID(cmd.UserID.String()),
			logger.UserLevel(result.NewLevel),
		)
	}
	return result, nil
}
