// Package collab models the real-time collaborative workspace attached to a
// mentorship session: a shared code buffer, its language tag and the
// mentor-controlled classroom link.
package collab

import (
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// DefaultLanguage is used for workspaces created on first join.
const DefaultLanguage = "python"

// SessionStatus is the lifecycle state of a mentorship session.
type SessionStatus string

const (
	StatusScheduled  SessionStatus = "scheduled"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
	StatusMissed     SessionStatus = "missed"
)

// Mentorship is the slice of a mentorship session record the hub needs.
type Mentorship struct {
	SessionID     shared.SessionID
	MentorID      shared.UserID
	MenteeID      shared.UserID
	ClassroomLink string
	Status        SessionStatus
}

// IsParticipant reports whether userID is the mentor or the mentee.
func (m *Mentorship) IsParticipant(userID shared.UserID) bool {
	return userID != "" && (userID == m.MentorID || userID == m.MenteeID)
}

// IsMentor reports whether userID is this session's mentor.
func (m *Mentorship) IsMentor(userID shared.UserID) bool {
	return userID != "" && userID == m.MentorID
}

// State is the persisted collaborative document of one session.
type State struct {
	SessionID shared.SessionID
	Code      string
	Language  string
	UpdatedAt time.Time
}

// NewState creates an empty workspace.
func NewState(sessionID shared.SessionID, now time.Time) *State {
	return &State{SessionID: sessionID, Language: DefaultLanguage, UpdatedAt: now}
}
