package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/pcameron/huddle/internal/domain"
)

var ErrTopicNotFound = errors.New("topic not found")

type inbound struct {
	client *Client
	env    domain.Envelope
}

// Hub routes frames between connections. All membership and subscription
// state is owned by the Run loop, so frame handling needs no locking and
// every subscriber observes events in the same order.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	topics map[string]map[*Client]struct{} // destination -> subscribers
	rooms  domain.RoomRepository
}

func NewHub(rooms domain.RoomRepository) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 256),
		topics:     make(map[string]map[*Client]struct{}),
		rooms:      rooms,
	}
}

func (h *Hub) Register() chan<- *Client {
	return h.register
}

func (h *Hub) Unregister() chan<- *Client {
	return h.unregister
}

func (h *Hub) Inbound() chan<- inbound {
	return h.inbound
}

func (h *Hub) Run() {
	for {
		select {
		case cl := <-h.register:
			// Nothing to do until the client subscribes or joins.
			_ = cl

		case cl := <-h.unregister:
			h.dropClient(cl)

		case in := <-h.inbound:
			h.handleFrame(in.client, in.env)
		}
	}
}

func (h *Hub) handleFrame(cl *Client, env domain.Envelope) {
	kind, roomCode, ok := domain.SplitDestination(env.Destination)
	if !ok {
		log.Printf("client %s sent frame for unknown destination %q", cl.SessionID, env.Destination)
		return
	}

	switch env.Op {
	case domain.OpSubscribe:
		if kind != "topic" {
			return
		}
		subs, found := h.topics[env.Destination]
		if !found {
			subs = make(map[*Client]struct{})
			h.topics[env.Destination] = subs
		}
		subs[cl] = struct{}{}
		cl.subscriptions[env.Destination] = struct{}{}

	case domain.OpSend:
		var payload domain.EventPayload
		if err := json.Unmarshal(env.Body, &payload); err != nil {
			log.Printf("client %s sent malformed body: %v", cl.SessionID, err)
			return
		}

		switch kind {
		case "addUser":
			h.handleJoin(cl, roomCode, payload)
		case "sendMessage":
			if payload.Type == domain.KindLeave {
				h.handleLeave(cl, "client left")
				return
			}
			h.handleChat(cl, roomCode, payload)
		}
	}
}

func (h *Hub) handleJoin(cl *Client, roomCode string, payload domain.EventPayload) {
	username := payload.Username.Name
	if username == "" {
		return
	}

	room, err := h.rooms.GetByCode(context.Background(), roomCode)
	if err != nil {
		log.Printf("join for unknown room %s by %s", roomCode, username)
		return
	}

	room.AddUser(domain.User{Username: username, SessionID: cl.SessionID})
	cl.username = username
	cl.roomCode = roomCode
	cl.joined = true

	h.broadcastEvent(roomCode, domain.KindJoin, username, username+" joined the chat")
}

func (h *Hub) handleChat(cl *Client, roomCode string, payload domain.EventPayload) {
	username := payload.Username.Name
	if username == "" {
		username = cl.username
	}

	// The content passes through untouched; clients own the coercion of
	// whatever shape arrives.
	event := domain.EventPayload{
		Username:  domain.Sender{Name: username},
		Content:   payload.Content,
		Type:      domain.KindChat,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	h.broadcast(domain.TopicDestination(roomCode), event)
}

// handleLeave removes the client's user from its room, announces the leave,
// and garbage-collects the room when it empties. Safe to call twice; only the
// first call has any effect.
func (h *Hub) handleLeave(cl *Client, reason string) {
	if !cl.joined || cl.left {
		return
	}
	cl.left = true

	room, err := h.rooms.GetByCode(context.Background(), cl.roomCode)
	if err != nil {
		return
	}

	room.RemoveUser(cl.username)
	if room.Empty() {
		_ = h.rooms.Delete(context.Background(), cl.roomCode)
	}

	h.broadcastEvent(cl.roomCode, domain.KindLeave, cl.username, cl.username+" left the chat")
	log.Printf("user %s left room %s (%s)", cl.username, cl.roomCode, reason)
}

func (h *Hub) broadcastEvent(roomCode string, kind domain.EventKind, username, content string) {
	raw, _ := json.Marshal(content)
	h.broadcast(domain.TopicDestination(roomCode), domain.EventPayload{
		Username:  domain.Sender{Name: username},
		Content:   raw,
		Type:      kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Hub) broadcast(topic string, event domain.EventPayload) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("encode broadcast for %s: %v", topic, err)
		return
	}

	env := &domain.Envelope{Destination: topic, Body: body}
	for cl := range subs {
		select {
		case cl.send <- env:
		default:
			// Client is too slow, drop the frame.
			log.Printf("client %s buffer full, dropping frame", cl.SessionID)
		}
	}
}

// dropClient runs when a socket dies: an implicit leave for joined users,
// then removal from every topic.
func (h *Hub) dropClient(cl *Client) {
	h.handleLeave(cl, "connection dropped")

	for dest := range cl.subscriptions {
		if subs, ok := h.topics[dest]; ok {
			delete(subs, cl)
			if len(subs) == 0 {
				delete(h.topics, dest)
			}
		}
	}

	close(cl.send)
}
