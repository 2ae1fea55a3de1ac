package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// Client is one websocket connection joined to a session.
type Client struct {
	id        string
	userID    shared.UserID
	sessionID shared.SessionID

	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID shared.UserID, sessionID shared.SessionID) *Client {
	return &Client{
		id:        uuid.NewString(),
		userID:    userID,
		sessionID: sessionID,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, hub.cfg.SendBuffer),
		done:      make(chan struct{}),
	}
}

// enqueue queues frame without blocking. False means the client is closed
// or its buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown stops the write pump, which closes the connection.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump decodes inbound frames until the connection fails. Malformed
// frames are dropped and the connection stays open.
func (c *Client) readPump(ctx context.Context) {
	cfg := c.hub.cfg
	log := c.hub.log

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug("connection closed unexpectedly", logger.String("client_id", c.id), logger.Err(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			c.hub.metrics.MessageReceived("malformed")
			continue
		}

		msg, err := collab.DecodeInbound(raw)
		if err != nil {
			c.hub.metrics.MessageReceived("malformed")
			log.Debug("dropped malformed frame",
				logger.SessionID(c.sessionID.String()),
				logger.UserID(c.userID.String()),
				logger.Err(err),
			)
			continue
		}
		c.hub.Handle(ctx, c, msg)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(cfg.WriteWait))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				c.hub.log.Debug("close frame not sent", logger.String("client_id", c.id), logger.Err(err))
			}
			return
		}
	}
}
