// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are published after the unit of work that
// produced them has committed.
const (
	// Ledger events
	EventXPAwarded EventType = "ledger.xp_awarded"
	EventLevelUp   EventType = "ledger.level_up"
	EventXPSpent   EventType = "ledger.xp_spent"

	// Streak events
	EventStreakExtended  EventType = "streak.extended"
	EventStreakMilestone EventType = "streak.milestone"
	EventStreakReset     EventType = "streak.reset"
	EventStreakFrozen    EventType = "streak.frozen"
	EventStreakAtRisk    EventType = "streak.at_risk"
	EventStreakLapsed    EventType = "streak.lapsed"

	// Badge and quest events
	EventBadgeUnlocked  EventType = "badge.unlocked"
	EventQuestCompleted EventType = "quest.completed"
	EventQuestClaimed   EventType = "quest.claimed"
	EventRewardRedeemed EventType = "reward.redeemed"

	// Collaboration events
	EventParticipantJoined EventType = "collab.participant_joined"
	EventParticipantLeft   EventType = "collab.participant_left"
	EventClassroomLinkSet  EventType = "collab.classroom_link_set"

	// Leaderboard events
	EventLeaderboardRebuilt EventType = "leaderboard.rebuilt"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted after an XP transaction commits.
type XPAwardedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	Amount     int    `json:"amount"`
	NewTotal   int    `json:"new_total"`
	SourceKind string `json:"source_kind"`
	SourceID   string `json:"source_id,omitempty"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"amount":      e.Amount,
		"new_total":   e.NewTotal,
		"source_kind": e.SourceKind,
		"source_id":   e.SourceID,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID string, amount, newTotal int, sourceKind, sourceID string) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent:  NewBaseEvent(EventXPAwarded, userID),
		UserID:     userID,
		Amount:     amount,
		NewTotal:   newTotal,
		SourceKind: sourceKind,
		SourceID:   sourceID,
	}
}

// LevelUpEvent is emitted when an award crosses one or more thresholds.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	TotalXP  int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_xp":  e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel, totalXP int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakEvent covers extended, reset, frozen and at-risk notifications.
type StreakEvent struct {
	BaseEvent
	UserID  string    `json:"user_id"`
	Current int       `json:"current"`
	Longest int       `json:"longest"`
	Day     time.Time `json:"day"`
}

// Payload implements Event interface.
func (e StreakEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"current": e.Current,
		"longest": e.Longest,
		"day":     e.Day.Format("2006-01-02"),
	}
}

// NewStreakEvent creates a streak event of the given type.
func NewStreakEvent(eventType EventType, userID string, current, longest int, day time.Time) StreakEvent {
	return StreakEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		UserID:    userID,
		Current:   current,
		Longest:   longest,
		Day:       day,
	}
}

// StreakMilestoneEvent is emitted the first time a streak reaches a milestone.
type StreakMilestoneEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	Milestone int    `json:"milestone"`
}

// Payload implements Event interface.
func (e StreakMilestoneEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"milestone": e.Milestone,
	}
}

// NewStreakMilestoneEvent creates a new StreakMilestoneEvent.
func NewStreakMilestoneEvent(userID string, milestone int) StreakMilestoneEvent {
	return StreakMilestoneEvent{
		BaseEvent: NewBaseEvent(EventStreakMilestone, userID),
		UserID:    userID,
		Milestone: milestone,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge / Quest / Reward Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementEvent is emitted for badge unlocks, quest completion and claims,
// and reward redemption. Kind tells which.
type AchievementEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	TargetID string `json:"target_id"`
	Name     string `json:"name"`
	XP       int    `json:"xp"`
}

// Payload implements Event interface.
func (e AchievementEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"target_id": e.TargetID,
		"name":      e.Name,
		"xp":        e.XP,
	}
}

// NewAchievementEvent creates an achievement event of the given type.
func NewAchievementEvent(eventType EventType, userID, targetID, name string, xp int) AchievementEvent {
	return AchievementEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		UserID:    userID,
		TargetID:  targetID,
		Name:      name,
		XP:        xp,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Collaboration Events
// ═══════════════════════════════════════════════════════════════════════════

// CollabEvent is emitted on session membership and classroom link changes.
type CollabEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Detail    string `json:"detail,omitempty"`
}

// Payload implements Event interface.
func (e CollabEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"user_id":    e.UserID,
		"detail":     e.Detail,
	}
}

// NewCollabEvent creates a collaboration event.
func NewCollabEvent(eventType EventType, sessionID, userID, detail string) CollabEvent {
	return CollabEvent{
		BaseEvent: NewBaseEvent(eventType, sessionID),
		SessionID: sessionID,
		UserID:    userID,
		Detail:    detail,
	}
}

// LeaderboardRebuiltEvent is emitted by the rebuild job.
type LeaderboardRebuiltEvent struct {
	BaseEvent
	Entries int `json:"entries"`
}

// Payload implements Event interface.
func (e LeaderboardRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"entries": e.Entries}
}

// NewLeaderboardRebuiltEvent creates a new LeaderboardRebuiltEvent.
func NewLeaderboardRebuiltEvent(entries int) LeaderboardRebuiltEvent {
	return LeaderboardRebuiltEvent{
		BaseEvent: NewBaseEvent(EventLeaderboardRebuilt, "global"),
		Entries:   entries,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
