package postgres

import (
	"context"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CollabRepository implements collab.MentorshipRepository and
// collab.StateRepository.
type CollabRepository struct {
	conn *Connection
}

var (
	_ collab.MentorshipRepository = (*CollabRepository)(nil)
	_ collab.StateRepository      = (*CollabRepository)(nil)
)

// NewCollabRepository creates a new CollabRepository.
func NewCollabRepository(conn *Connection) *CollabRepository {
	return &CollabRepository{conn: conn}
}

// SaveMentorship inserts or updates a mentorship session record.
func (r *CollabRepository) SaveMentorship(ctx context.Context, m *collab.Mentorship) error {
	status := m.Status
	if status == "" {
		status = collab.StatusScheduled
	}
	_, err := r.conn.Pool().Exec(ctx, `
		INSERT INTO mentorship_sessions (id, mentor_id, mentee_id, classroom_link, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			mentor_id = EXCLUDED.mentor_id,
			mentee_id = EXCLUDED.mentee_id,
			classroom_link = EXCLUDED.classroom_link,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, m.SessionID.String(), m.MentorID.String(), m.MenteeID.String(), m.ClassroomLink, string(status))
	return storageErr("SaveMentorship", err)
}

// GetMentorship implements collab.MentorshipRepository.
func (r *CollabRepository) GetMentorship(ctx context.Context, sessionID shared.SessionID) (*collab.Mentorship, error) {
	var m collab.Mentorship
	var id, mentor, mentee, status string
	err := r.conn.Pool().QueryRow(ctx, `
		SELECT id, mentor_id, mentee_id, classroom_link, status
		FROM mentorship_sessions WHERE id = $1
	`, sessionID.String()).Scan(&id, &mentor, &mentee, &m.ClassroomLink, &status)
	if IsNoRows(err) {
		return nil, shared.ErrSessionNotFound
	}
	if err != nil {
		return nil, storageErr("GetMentorship", err)
	}
	m.SessionID = shared.SessionID(id)
	m.MentorID = shared.UserID(mentor)
	m.MenteeID = shared.UserID(mentee)
	m.Status = collab.SessionStatus(status)
	return &m, nil
}

// SetClassroomLink implements collab.MentorshipRepository.
func (r *CollabRepository) SetClassroomLink(ctx context.Context, sessionID shared.SessionID, link string) error {
	tag, err := r.conn.Pool().Exec(ctx, `
		UPDATE mentorship_sessions SET classroom_link = $2, updated_at = NOW() WHERE id = $1
	`, sessionID.String(), link)
	if err != nil {
		return storageErr("SetClassroomLink", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// LoadOrCreate implements collab.StateRepository.
func (r *CollabRepository) LoadOrCreate(ctx context.Context, sessionID shared.SessionID) (*collab.State, error) {
	st := &collab.State{SessionID: sessionID}
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := r.conn.Pool().QueryRow(ctx, `
		INSERT INTO collaborative_sessions (session_id, language)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		RETURNING code, language, updated_at
	`, sessionID.String(), collab.DefaultLanguage).Scan(&st.Code, &st.Language, &st.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, storageErr("LoadOrCreate", err)
	}
	return st, nil
}

// SaveCode implements collab.StateRepository. Last write wins.
func (r *CollabRepository) SaveCode(ctx context.Context, sessionID shared.SessionID, code string) error {
	_, err := r.conn.Pool().Exec(ctx, `
		INSERT INTO collaborative_sessions (session_id, code, language, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET code = EXCLUDED.code, updated_at = EXCLUDED.updated_at
	`, sessionID.String(), code, collab.DefaultLanguage, time.Now().UTC())
	return storageErr("SaveCode", err)
}

// SaveLanguage implements collab.StateRepository.
func (r *CollabRepository) SaveLanguage(ctx context.Context, sessionID shared.SessionID, language string) error {
	_, err := r.conn.Pool().Exec(ctx, `
		INSERT INTO collaborative_sessions (session_id, language, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET language = EXCLUDED.language, updated_at = EXCLUDED.updated_at
	`, sessionID.String(), language, time.Now().UTC())
	return storageErr("SaveLanguage", err)
}
