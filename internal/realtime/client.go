package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joshua-takyi/gatherly/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Joiner is the attendance coordinator as seen from a connection.
type Joiner interface {
	Join(ctx context.Context, eventID, userID string) (*models.Event, error)
}

// Client is one live websocket connection. userID is empty for guest
// sessions, which may subscribe to rooms but never join events.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	joiner Joiner
	logger *slog.Logger

	userID string
	send   chan []byte

	// rooms is owned by the hub run loop.
	rooms map[string]struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, joiner Joiner, userID string, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		joiner: joiner,
		logger: logger,
		userID: userID,
		send:   make(chan []byte, 16),
		rooms:  make(map[string]struct{}),
	}
}

// Serve registers the client and starts its pumps. It returns when the
// connection is gone; the deferred unregister clears every subscription even
// after an abrupt drop.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Register(c)
	go c.writePump()
	c.readPump(ctx)
}

type inboundMessage struct {
	Action  string `json:"action"`
	EventID string `json:"eventId"`
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("Websocket read error", "error", err)
			}
			return
		}

		switch msg.Action {
		case "joinRoom":
			if msg.EventID == "" {
				c.sendError("eventId is required")
				continue
			}
			c.hub.Subscribe(c, msg.EventID)

		case "requestJoin":
			c.handleRequestJoin(ctx, msg.EventID)

		default:
			c.sendError("unknown action")
		}
	}
}

func (c *Client) handleRequestJoin(ctx context.Context, eventID string) {
	if eventID == "" {
		c.sendError("eventId is required")
		return
	}
	if c.userID == "" {
		c.sendError(models.ErrUnauthorized.Error())
		return
	}

	// The join's durability must not depend on this connection staying up,
	// so it does not run under the connection's context.
	_, err := c.joiner.Join(context.WithoutCancel(ctx), eventID, c.userID)
	if err != nil {
		switch {
		case err == models.ErrUnauthorized,
			err == models.ErrEventNotFound,
			err == models.ErrBusy:
			c.sendError(err.Error())
		default:
			c.logger.Error("Join failed",
				"event_id", eventID,
				"user_id", c.userID,
				"error", err,
			)
			c.sendError(models.ErrPersistence.Error())
		}
	}
	// Success is delivered through the room broadcast, never echoed here:
	// clients render counts from broadcasts only.
}

func (c *Client) sendError(msg string) {
	payload, err := json.Marshal(Envelope{Type: "error", Error: msg})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
