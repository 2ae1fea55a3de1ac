package eventhandler

import (
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT HANDLER
// Writes an audit line for every level-up, milestone and unlock so support
// can answer "why did I get this XP" without reading the ledger.
// ═══════════════════════════════════════════════════════════════════════════

// OnAchievementHandler logs achievement events.
type OnAchievementHandler struct {
	log *logger.Logger
}

// NewOnAchievementHandler creates the handler.
func NewOnAchievementHandler(log *logger.Logger) *OnAchievementHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnAchievementHandler{log: log.With(logger.Component("achievements"))}
}

// Handle implements shared.EventHandler.
func (h *OnAchievementHandler) Handle(event shared.Event) error {
	fields := []logger.Field{logger.String("event_type", string(event.EventType()))}

	switch e := event.(type) {
	case shared.LevelUpEvent:
		fields = append(fields, logger.UserID(e.UserID), logger.UserLevel(e.NewLevel), logger.Int("old_level", e.OldLevel))
	case shared.StreakMilestoneEvent:
		fields = append(fields, logger.UserID(e.UserID), logger.Int("milestone", e.Milestone))
	case shared.AchievementEvent:
		fields = append(fields, logger.UserID(e.UserID), logger.String("target_id", e.TargetID), logger.XPAmount(e.XP))
	case shared.StreakEvent:
		fields = append(fields, logger.UserID(e.UserID), logger.Int("current", e.Current))
	default:
		return nil
	}

	h.log.Info("achievement", fields...)
	return nil
}

// Register subscribes the handler to achievement events.
func (h *OnAchievementHandler) Register(sub shared.EventSubscriber) error {
	types := []shared.EventType{
		shared.EventLevelUp,
		shared.EventStreakMilestone,
		shared.EventStreakAtRisk,
		shared.EventBadgeUnlocked,
		shared.EventQuestCompleted,
		shared.EventQuestClaimed,
		shared.EventRewardRedeemed,
	}
	for _, t := range types {
		if err := sub.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
