// Package hub broadcasts rendered cards and alert payloads to websocket
// subscribers. A subscriber with no topic gets the full card/status feed; a
// subscriber bound to an alert topic is a popup surface and only receives
// that line's payloads plus its close signal.
package hub

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/evwatch/evwatch/render"
	"github.com/evwatch/evwatch/types"
)

// Message is the single wire frame pushed to subscribers.
type Message struct {
	Type    string `json:"type"` // "cards", "status", "alert", "close"
	Topic   string `json:"topic,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// CardsPayload is the body of a "cards" frame.
type CardsPayload struct {
	Status types.ConnStatus `json:"status"`
	Cards  []render.Card    `json:"cards"`
}

// Hub maintains the set of active subscribers and routes frames to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message

	totalConnections atomic.Int64
	totalMessages    atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
	}
}

// Run owns the client set. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("📡 Hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.clients[c] = true
			h.totalConnections.Add(1)
			log.Debug().Str("client", c.ID).Str("topic", c.topic).
				Int("total", len(h.clients)).Msg("Subscriber connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				log.Debug().Str("client", c.ID).Int("total", len(h.clients)).
					Msg("Subscriber disconnected")
			}

		case msg := <-h.broadcast:
			h.route(msg)
		}
	}
}

func (h *Hub) route(msg Message) {
	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
			h.totalMessages.Add(1)
		default:
			// Slow consumer: drop it rather than block the feed.
			delete(h.clients, c)
			close(c.send)
			log.Warn().Str("client", c.ID).Msg("Subscriber too slow, dropped")
		}
	}

	// A close frame also hangs up the surface's subscribers.
	if msg.Type == "close" {
		for c := range h.clients {
			if c.topic == msg.Topic {
				delete(h.clients, c)
				close(c.send)
			}
		}
	}
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	log.Info().Msg("Hub stopped")
}

// BroadcastCards pushes the full rendered state plus the connection status.
func (h *Hub) BroadcastCards(status types.ConnStatus, cards []render.Card) {
	h.send(Message{Type: "cards", Payload: CardsPayload{Status: status, Cards: cards}})
}

// BroadcastStatus pushes a status-only frame (used on no-change polls).
func (h *Hub) BroadcastStatus(status types.ConnStatus) {
	h.send(Message{Type: "status", Payload: status})
}

// BroadcastAlert feeds an open alert surface.
func (h *Hub) BroadcastAlert(topic string, p types.AlertPayload) {
	h.send(Message{Type: "alert", Topic: topic, Payload: p})
}

// CloseTopic tells a surface its event is gone and hangs it up.
func (h *Hub) CloseTopic(topic string) {
	h.send(Message{Type: "close", Topic: topic})
}

func (h *Hub) send(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn().Str("type", msg.Type).Msg("Broadcast buffer full, dropping frame")
	}
}

// Stats returns lifetime connection and message counters.
func (h *Hub) Stats() (connections, messages int64) {
	return h.totalConnections.Load(), h.totalMessages.Load()
}
