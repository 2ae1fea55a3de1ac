package command

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EVENT COMMAND
// Counts a learning event (module completed, session attended...) toward
// every matching badge and quest. Badges unlock and pay out immediately;
// quests only complete and wait for a claim.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventCommand contains the data for one event.
type RecordEventCommand struct {
	UserID    shared.UserID
	EventKind gamification.RequirementKind
	// Count must be in [1, gamification.MaxEventCount]. Transports default
	// a missing count to 1.
	Count int
	// SourceID identifies the module or session, for the ledger row.
	SourceID string
}

// Validate validates the command and normalises the event kind.
func (c *RecordEventCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.WrapError("badge", "RecordEvent", shared.ErrInvalidInput, "user_id is required", shared.ErrInvalidID)
	}
	c.EventKind = gamification.RequirementKind(strings.TrimSpace(string(c.EventKind)))
	if c.EventKind == "" {
		return shared.ErrInvalidEventKind
	}
	if !c.EventKind.IsReportable() {
		return shared.ErrEventNotReportable
	}
	if c.Count <= 0 || c.Count > gamification.MaxEventCount {
		return shared.ErrInvalidEventCount
	}
	return nil
}

// UnlockedBadge describes a badge unlocked by a command.
type UnlockedBadge struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Tier     gamification.BadgeTier `json:"tier"`
	XPReward int                    `json:"xp_reward"`
}

// CompletedQuest describes a quest completed by a command.
type CompletedQuest struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	XPReward int    `json:"xp_reward"`
}

// RecordEventResult lists what one event unlocked. Both lists may be empty.
type RecordEventResult struct {
	UnlockedBadges  []UnlockedBadge  `json:"unlocked_badges"`
	CompletedQuests []CompletedQuest `json:"completed_quests"`
	XPEarned        int              `json:"xp_earned"`
}

// RecordEventHandler handles RecordEventCommand.
type RecordEventHandler struct {
	store    gamification.Store
	settings Settings
}

// NewRecordEventHandler creates a new RecordEventHandler.
func NewRecordEventHandler(store gamification.Store, settings Settings) *RecordEventHandler {
	return &RecordEventHandler{store: store, settings: settings.withDefaults()}
}

// Handle executes the command.
func (h *RecordEventHandler) Handle(ctx context.Context, cmd RecordEventCommand) (*RecordEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_event: %w", err)
	}

	earned, err := eventXP(h.settings.EventXP[cmd.EventKind], cmd.Count)
	if err != nil {
		return nil, fmt.Errorf("record_event: %w", err)
	}

	var result *RecordEventResult
	err = run(ctx, h.store, h.settings, cmd.UserID, func(ctx context.Context, u *unitOfWork) error {
		if earned > 0 {
			if _, err := u.award(ctx, earned, sourceKindFor(cmd.EventKind), cmd.SourceID, "Event: "+cmd.EventKind.String()); err != nil {
				return err
			}
		}

		res, err := u.accrue(ctx, cmd.EventKind, cmd.Count, false)
		if err != nil {
			return err
		}
		res.XPEarned = earned
		for _, b := range res.UnlockedBadges {
			res.XPEarned += b.XPReward
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_event: %w", err)
	}

	for _, b := range result.UnlockedBadges {
		h.settings.Logger.Info("badge unlocked",
			logger.UserID(cmd.UserID.String()),
			logger.BadgeID(b.ID),
			logger.XPAmount(b.XPReward),
		)
	}
	return result, nil
}

// eventXP is the XP one event earns. Events only ever earn, so a negative
// rate or a product that overflows is rejected before anything is written.
func eventXP(perUnit, count int) (int, error) {
	if perUnit <= 0 {
		return 0, nil
	}
	if count > math.MaxInt/perUnit {
		return 0, shared.ErrInvalidEventCount
	}
	return perUnit * count, nil
}

func sourceKindFor(kind gamification.RequirementKind) gamification.SourceKind {
	switch kind {
	case gamification.RequirementModulesCompleted:
		return gamification.SourceModule
	case gamification.RequirementSessionsAttended:
		return gamification.SourceSession
	default:
		return gamification.SourceManual
	}
}
