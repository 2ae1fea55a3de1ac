package memory

import (
	"context"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// PutMentorship registers a mentorship session.
func (s *Store) PutMentorship(m *collab.Mentorship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *m
	s.mentorships[m.SessionID] = &c
}

// GetMentorship implements collab.MentorshipRepository.
func (s *Store) GetMentorship(ctx context.Context, sessionID shared.SessionID) (*collab.Mentorship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mentorships[sessionID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	c := *m
	return &c, nil
}

// SetClassroomLink implements collab.MentorshipRepository.
func (s *Store) SetClassroomLink(ctx context.Context, sessionID shared.SessionID, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentorships[sessionID]
	if !ok {
		return shared.ErrSessionNotFound
	}
	m.ClassroomLink = link
	return nil
}

// LoadOrCreate implements collab.StateRepository.
func (s *Store) LoadOrCreate(ctx context.Context, sessionID shared.SessionID) (*collab.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionID]
	if !ok {
		st = collab.NewState(sessionID, s.now())
		s.states[sessionID] = st
	}
	c := *st
	return &c, nil
}

// SaveCode implements collab.StateRepository.
func (s *Store) SaveCode(ctx context.Context, sessionID shared.SessionID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(sessionID)
	st.Code = code
	st.UpdatedAt = s.now()
	return nil
}

// SaveLanguage implements collab.StateRepository.
func (s *Store) SaveLanguage(ctx context.Context, sessionID shared.SessionID, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(sessionID)
	st.Language = language
	st.UpdatedAt = s.now()
	return nil
}

func (s *Store) stateLocked(sessionID shared.SessionID) *collab.State {
	st, ok := s.states[sessionID]
	if !ok {
		st = collab.NewState(sessionID, s.now())
		s.states[sessionID] = st
	}
	return st
}
