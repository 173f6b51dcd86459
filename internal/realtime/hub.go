package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/joshua-takyi/gatherly/internal/models"
)

// Envelope is the frame broadcast to a room when an event's attendance
// changes.
type Envelope struct {
	Type  string        `json:"type"`
	Event *models.Event `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}

const TypeAttendeeUpdated = "attendeeUpdated"

type message struct {
	eventID string
	payload []byte
}

type subscription struct {
	client  *Client
	eventID string
}

// Hub owns all live connections and their room subscriptions. A single run
// loop serializes registration, subscription and fan-out, so subscriber state
// needs no further locking and broadcasts for a room go out in the order they
// were enqueued.
type Hub struct {
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	broadcast  chan message
	done       chan struct{}
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// Run processes hub commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}

		case client := <-h.unregister:
			h.removeClient(client)

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			room, ok := h.rooms[sub.eventID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[sub.eventID] = room
			}
			room[sub.client] = struct{}{}
			sub.client.rooms[sub.eventID] = struct{}{}

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.eventID] {
				select {
				case client.send <- msg.payload:
				default:
					// Drop if the subscriber is lagging; delivery is
					// best-effort and a full refresh catches it up.
					h.logger.Warn("Dropping broadcast for slow subscriber",
						"event_id", msg.eventID,
					)
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				h.removeClient(client)
			}
			close(h.done)
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	for eventID := range client.rooms {
		if room, ok := h.rooms[eventID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, eventID)
			}
		}
	}
	delete(h.clients, client)
	close(client.send)
}

// Register adds a connection to the hub. No-op after shutdown.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a connection from every room it joined and releases it.
// Invoked from the client's read pump teardown, so it runs on abrupt network
// drops as well as clean closes.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		// The run loop already released everything on shutdown; a pump's
		// deferred unregister must not park on a dead hub.
	}
}

// Subscribe adds the connection to the room for eventID. Idempotent.
func (h *Hub) Subscribe(client *Client, eventID string) {
	select {
	case h.subscribe <- subscription{client: client, eventID: eventID}:
	case <-h.done:
	}
}

// Publish enqueues the refreshed event for delivery to the eventID room and
// returns without waiting for delivery. Enqueue order is preserved per room.
func (h *Hub) Publish(eventID string, event *models.Event) {
	payload, err := json.Marshal(Envelope{
		Type:  TypeAttendeeUpdated,
		Event: event,
	})
	if err != nil {
		h.logger.Error("Marshalling broadcast failed", "event_id", eventID, "error", err)
		return
	}
	select {
	case h.broadcast <- message{eventID: eventID, payload: payload}:
	case <-h.done:
	}
}
