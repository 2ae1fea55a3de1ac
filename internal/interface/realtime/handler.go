package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/auth"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// SessionParam is the path wildcard carrying the session id.
const SessionParam = "session_id"

// Handler upgrades collaboration requests and attaches them to the hub.
// Authentication happens after the upgrade so a rejected client receives a
// policy-violation close frame instead of a bare HTTP error.
type Handler struct {
	hub         *Hub
	resolver    auth.TokenResolver
	mentorships collab.MentorshipRepository
	upgrader    websocket.Upgrader
	log         *logger.Logger
}

// NewHandler creates the websocket endpoint. An empty allowedOrigins list
// accepts any origin.
func NewHandler(hub *Hub, resolver auth.TokenResolver, mentorships collab.MentorshipRepository, allowedOrigins []string) *Handler {
	h := &Handler{
		hub:         hub,
		resolver:    resolver,
		mentorships: mentorships,
		log:         hub.log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug("websocket upgrade failed", logger.Err(err))
		return
	}

	ctx := r.Context()
	client, m, err := h.authorize(ctx, conn, r)
	if err != nil {
		h.reject(conn, err)
		return
	}

	if err := h.hub.Join(ctx, client, m); err != nil {
		h.log.Error("failed to join session", logger.SessionID(client.sessionID.String()), logger.Err(err))
		h.reject(conn, err)
		return
	}

	h.hub.metrics.ClientConnected()
	defer h.hub.metrics.ClientDisconnected()

	go client.writePump()
	client.readPump(ctx)

	h.hub.Leave(client)
	client.shutdown()
}

func (h *Handler) authorize(ctx context.Context, conn *websocket.Conn, r *http.Request) (*Client, *collab.Mentorship, error) {
	sessionID, err := shared.NewSessionID(r.PathValue(SessionParam))
	if err != nil {
		return nil, nil, shared.ErrSessionNotFound
	}

	principal, err := h.resolver.Resolve(ctx, tokenFrom(r))
	if err != nil {
		return nil, nil, err
	}

	m, err := h.mentorships.GetMentorship(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !m.IsParticipant(principal.UserID) {
		return nil, nil, shared.ErrNotParticipant
	}

	return newClient(h.hub, conn, principal.UserID, sessionID), m, nil
}

// reject closes conn with a code derived from err.
func (h *Handler) reject(conn *websocket.Conn, err error) {
	code := closeCode(err)
	if code == websocket.ClosePolicyViolation {
		h.log.Info("rejected collaboration connection", logger.Err(err))
	}
	msg := websocket.FormatCloseMessage(code, closeReason(code))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.hub.cfg.WriteWait))
	_ = conn.Close()
}

func closeCode(err error) int {
	switch {
	case shared.IsUnauthorized(err), shared.IsNotFound(err), shared.IsValidation(err):
		return websocket.ClosePolicyViolation
	case errors.Is(err, context.Canceled):
		return websocket.CloseGoingAway
	default:
		return websocket.CloseInternalServerErr
	}
}

func closeReason(code int) string {
	switch code {
	case websocket.ClosePolicyViolation:
		return "unauthorized"
	case websocket.CloseGoingAway:
		return "going away"
	default:
		return "internal error"
	}
}

// tokenFrom reads the bearer token from the query string or the
// Authorization header. Browsers cannot set headers on websocket requests.
func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
