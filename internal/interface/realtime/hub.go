// Package realtime hosts the collaboration hub: websocket connections of a
// mentorship session share one code buffer, one language tag and the
// mentor-controlled classroom link.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes connection handling.
type Config struct {
	// SendBuffer is the per-client outbound queue length. A client whose
	// queue is full is disconnected.
	SendBuffer int

	// MaxMessageSize is the largest inbound frame in bytes.
	MaxMessageSize int64

	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration

	// PersistTimeout bounds each state write.
	PersistTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     64,
		MaxMessageSize: 512 * 1024,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		PersistTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	return c
}

// Metrics receives hub counters.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	RoomOpened()
	RoomClosed()
	ReceiverDropped()
	MessageReceived(msgType string)
}

type nopMetrics struct{}

func (nopMetrics) ClientConnected()       {}
func (nopMetrics) ClientDisconnected()    {}
func (nopMetrics) RoomOpened()            {}
func (nopMetrics) RoomClosed()            {}
func (nopMetrics) ReceiverDropped()       {}
func (nopMetrics) MessageReceived(string) {}

// ══════════════════════════════════════════════════════════════════════════════
// HUB
// ══════════════════════════════════════════════════════════════════════════════

// Hub owns one room per active session. The hub mutex guards only the room
// map; everything inside a room is guarded by the room's own mutex.
type Hub struct {
	mu    sync.Mutex
	rooms map[shared.SessionID]*room

	states      collab.StateRepository
	mentorships collab.MentorshipRepository
	publisher   shared.EventPublisher
	metrics     Metrics
	log         *logger.Logger
	cfg         Config
}

// room is the in-memory view of one session.
type room struct {
	id shared.SessionID

	mu         sync.Mutex
	clients    map[*Client]struct{}
	state      *collab.State
	mentorship collab.Mentorship
	// closed is set once the last participant leaves; a closed room is
	// never reused.
	closed bool
}

// HubOptions carries optional collaborators.
type HubOptions struct {
	Config    Config
	Publisher shared.EventPublisher
	Metrics   Metrics
	Logger    *logger.Logger
}

// NewHub creates a hub backed by the given repositories.
func NewHub(states collab.StateRepository, mentorships collab.MentorshipRepository, opts HubOptions) *Hub {
	if opts.Publisher == nil {
		opts.Publisher = shared.NopPublisher{}
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Hub{
		rooms:       make(map[shared.SessionID]*room),
		states:      states,
		mentorships: mentorships,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		log:         opts.Logger.With(logger.Component("collab_hub")),
		cfg:         opts.Config.withDefaults(),
	}
}

// Config returns the effective configuration.
func (h *Hub) Config() Config { return h.cfg }

// Join registers c in its session's room and queues the init snapshot to c
// alone. m is the session record the caller was authorized against.
func (h *Hub) Join(ctx context.Context, c *Client, m *collab.Mentorship) error {
	for {
		r := h.roomFor(c.sessionID)

		r.mu.Lock()
		if r.closed {
			// Lost a race with the last participant leaving.
			r.mu.Unlock()
			continue
		}

		if r.state == nil {
			st, err := h.states.LoadOrCreate(ctx, c.sessionID)
			if err != nil {
				empty := len(r.clients) == 0
				if empty {
					r.closed = true
				}
				r.mu.Unlock()
				if empty {
					h.dropRoom(r)
				}
				return err
			}
			r.state = st
			r.mentorship = *m
		}

		r.clients[c] = struct{}{}
		frame, err := collab.NewInit(r.state, r.mentorship.ClassroomLink).Encode()
		if err == nil {
			c.enqueue(frame)
		}
		participants := len(r.clients)
		r.mu.Unlock()

		h.log.Info("participant joined",
			logger.SessionID(c.sessionID.String()),
			logger.UserID(c.userID.String()),
			logger.Int("participants", participants),
		)
		h.publish(shared.NewCollabEvent(shared.EventParticipantJoined, c.sessionID.String(), c.userID.String(), ""))
		return err
	}
}

// Leave deregisters c. The room is dropped when it becomes empty; the
// persisted state is reloaded on the next join.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	r, ok := h.rooms[c.sessionID]
	h.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	_, member := r.clients[c]
	empty := r.removeLocked(c)
	r.mu.Unlock()

	if empty {
		h.dropRoom(r)
	}
	if member {
		h.log.Info("participant left",
			logger.SessionID(c.sessionID.String()),
			logger.UserID(c.userID.String()),
		)
		h.publish(shared.NewCollabEvent(shared.EventParticipantLeft, c.sessionID.String(), c.userID.String(), ""))
	}
}

// Handle applies one decoded message from c.
func (h *Hub) Handle(ctx context.Context, c *Client, msg collab.Inbound) {
	h.mu.Lock()
	r, ok := h.rooms[c.sessionID]
	h.mu.Unlock()
	if !ok {
		return
	}

	h.metrics.MessageReceived(string(msg.Type()))

	r.mu.Lock()
	if _, member := r.clients[c]; !member {
		r.mu.Unlock()
		return
	}

	var empty bool
	switch m := msg.(type) {
	case collab.CodeUpdate:
		empty = h.applyCode(ctx, r, c, m)
	case collab.LanguageUpdate:
		empty = h.applyLanguage(ctx, r, c, m)
	case collab.ClassroomLinkUpdate:
		empty = h.applyLink(ctx, r, c, m)
	}
	r.mu.Unlock()

	if empty {
		h.dropRoom(r)
	}
}

// Caller holds r.mu.
func (h *Hub) applyCode(ctx context.Context, r *room, c *Client, m collab.CodeUpdate) bool {
	if err := h.persist(ctx, func(ctx context.Context) error {
		return h.states.SaveCode(ctx, r.id, m.Code)
	}); err != nil {
		h.log.Warn("failed to persist code", logger.SessionID(r.id.String()), logger.Err(err))
		return false
	}
	r.state.Code = m.Code
	return h.broadcastLocked(r, collab.NewCodeBroadcast(m.Code, c.userID), c)
}

// Caller holds r.mu.
func (h *Hub) applyLanguage(ctx context.Context, r *room, c *Client, m collab.LanguageUpdate) bool {
	if err := h.persist(ctx, func(ctx context.Context) error {
		return h.states.SaveLanguage(ctx, r.id, m.Language)
	}); err != nil {
		h.log.Warn("failed to persist language", logger.SessionID(r.id.String()), logger.Err(err))
		return false
	}
	r.state.Language = m.Language
	return h.broadcastLocked(r, collab.NewLanguageBroadcast(m.Language), c)
}

// Caller holds r.mu. A link from anyone but the session's mentor is ignored.
func (h *Hub) applyLink(ctx context.Context, r *room, c *Client, m collab.ClassroomLinkUpdate) bool {
	if !r.mentorship.IsMentor(c.userID) {
		h.log.Debug("ignored classroom link from non-mentor",
			logger.SessionID(r.id.String()),
			logger.UserID(c.userID.String()),
		)
		return false
	}
	if err := h.persist(ctx, func(ctx context.Context) error {
		return h.mentorships.SetClassroomLink(ctx, r.id, m.Link)
	}); err != nil {
		h.log.Warn("failed to persist classroom link", logger.SessionID(r.id.String()), logger.Err(err))
		return false
	}
	r.mentorship.ClassroomLink = m.Link
	h.publish(shared.NewCollabEvent(shared.EventClassroomLinkSet, r.id.String(), c.userID.String(), m.Link))
	return h.broadcastLocked(r, collab.NewLinkBroadcast(m.Link), nil)
}

// broadcastLocked queues msg to every client except skip. Receivers whose
// queue is full are removed and disconnected. Reports whether the room is
// now empty. Caller holds r.mu.
func (h *Hub) broadcastLocked(r *room, msg collab.Outbound, skip *Client) bool {
	frame, err := msg.Encode()
	if err != nil {
		h.log.Error("failed to encode broadcast", logger.Err(err))
		return false
	}

	var empty bool
	for c := range r.clients {
		if c == skip {
			continue
		}
		if !c.enqueue(frame) {
			h.metrics.ReceiverDropped()
			h.log.Warn("dropping slow receiver",
				logger.SessionID(r.id.String()),
				logger.UserID(c.userID.String()),
			)
			empty = r.removeLocked(c)
			c.shutdown()
		}
	}
	return empty
}

func (h *Hub) persist(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.PersistTimeout)
	defer cancel()
	return fn(ctx)
}

func (h *Hub) publish(e shared.Event) {
	if err := h.publisher.Publish(e); err != nil {
		h.log.Warn("failed to publish event", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
}

// roomFor returns the live room for id, creating it if needed.
func (h *Hub) roomFor(id shared.SessionID) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[id]; ok {
		return r
	}
	r := &room{id: id, clients: make(map[*Client]struct{})}
	h.rooms[id] = r
	h.metrics.RoomOpened()
	return r
}

// dropRoom removes r from the registry if it is still the registered room.
func (h *Hub) dropRoom(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.rooms[r.id]; ok && cur == r {
		delete(h.rooms, r.id)
		h.metrics.RoomClosed()
	}
}

// removeLocked deletes c and marks the room closed when it empties.
// Caller holds r.mu.
func (r *room) removeLocked(c *Client) bool {
	delete(r.clients, c)
	if len(r.clients) == 0 && !r.closed {
		r.closed = true
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// RoomCount returns the number of sessions with at least one participant.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Participants returns the number of connections joined to sessionID.
func (h *Hub) Participants(sessionID shared.SessionID) int {
	h.mu.Lock()
	r, ok := h.rooms[sessionID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		for c := range r.clients {
			c.shutdown()
		}
		r.mu.Unlock()
	}
}
