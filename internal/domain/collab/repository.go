package collab

import (
	"context"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// MentorshipRepository reads and updates mentorship session records.
type MentorshipRepository interface {
	// GetMentorship returns shared.ErrSessionNotFound when there is no such session.
	GetMentorship(ctx context.Context, sessionID shared.SessionID) (*Mentorship, error)
	SetClassroomLink(ctx context.Context, sessionID shared.SessionID, link string) error
}

// StateRepository persists collaborative documents.
type StateRepository interface {
	// LoadOrCreate returns the stored state, creating an empty one if absent.
	LoadOrCreate(ctx context.Context, sessionID shared.SessionID) (*State, error)
	SaveCode(ctx context.Context, sessionID shared.SessionID, code string) error
	SaveLanguage(ctx context.Context, sessionID shared.SessionID, language string) error
}
