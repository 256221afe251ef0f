package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pcameron/huddle/internal/domain"
	"github.com/pcameron/huddle/internal/infrastructure/repository"
)

func newBrokerServer(t *testing.T) (*httptest.Server, domain.RoomRepository) {
	t.Helper()

	repo := repository.NewRoomRepository(10, time.Hour)
	hub := NewHub(repo)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		client := NewClient(conn, hub)
		hub.Register() <- client

		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return srv, repo
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
}

func connectPeer(t *testing.T, srv *httptest.Server) *peer {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial broker: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn}
}

func (p *peer) subscribe(roomCode string) {
	p.t.Helper()
	err := p.conn.WriteJSON(domain.Envelope{
		Op:          domain.OpSubscribe,
		Destination: domain.TopicDestination(roomCode),
	})
	if err != nil {
		p.t.Fatalf("subscribe: %v", err)
	}
}

func (p *peer) send(destination string, payload any) {
	p.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		p.t.Fatalf("encode payload: %v", err)
	}
	err = p.conn.WriteJSON(domain.Envelope{
		Op:          domain.OpSend,
		Destination: destination,
		Body:        raw,
	})
	if err != nil {
		p.t.Fatalf("send: %v", err)
	}
}

func (p *peer) join(roomCode, username string) {
	p.send(domain.AddUserDestination(roomCode), map[string]string{
		"username": username,
		"type":     string(domain.KindJoin),
	})
}

func (p *peer) chat(roomCode, username, content string) {
	p.send(domain.SendMessageDestination(roomCode), map[string]string{
		"username": username,
		"content":  content,
		"type":     string(domain.KindChat),
	})
}

func (p *peer) leave(roomCode, username string) {
	p.send(domain.SendMessageDestination(roomCode), map[string]string{
		"username": username,
		"type":     string(domain.KindLeave),
	})
}

// readEvent blocks for the next broadcast event on the peer's connection.
func (p *peer) readEvent() domain.EventPayload {
	p.t.Helper()

	if err := p.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		p.t.Fatalf("set deadline: %v", err)
	}

	var env domain.Envelope
	if err := p.conn.ReadJSON(&env); err != nil {
		p.t.Fatalf("read frame: %v", err)
	}

	var payload domain.EventPayload
	if err := json.Unmarshal(env.Body, &payload); err != nil {
		p.t.Fatalf("decode event: %v", err)
	}
	return payload
}

func seedRoom(t *testing.T, repo domain.RoomRepository, code, host string) {
	t.Helper()
	if err := repo.Create(context.Background(), domain.NewRoom(code, host)); err != nil {
		t.Fatalf("seed room: %v", err)
	}
}

func TestJoinChatLeaveFanOut(t *testing.T) {
	srv, repo := newBrokerServer(t)
	seedRoom(t, repo, "ABC123", "alice")

	alice := connectPeer(t, srv)
	alice.subscribe("ABC123")
	alice.join("ABC123", "alice")

	event := alice.readEvent()
	if event.Type != domain.KindJoin || event.Username.Name != "alice" {
		t.Fatalf("expected own join echo, got %+v", event)
	}
	var joinText string
	if err := json.Unmarshal(event.Content, &joinText); err != nil || joinText != "alice joined the chat" {
		t.Fatalf("expected join announcement text, got %s", event.Content)
	}
	if event.Timestamp == "" {
		t.Fatal("expected server-stamped timestamp")
	}

	bob := connectPeer(t, srv)
	bob.subscribe("ABC123")
	bob.join("ABC123", "bob")

	for _, p := range []*peer{alice, bob} {
		event := p.readEvent()
		if event.Type != domain.KindJoin || event.Username.Name != "bob" {
			t.Fatalf("expected bob's join on both peers, got %+v", event)
		}
	}

	room, err := repo.GetByCode(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("room lookup: %v", err)
	}
	if room.Count() != 2 {
		t.Fatalf("expected 2 members, got %d", room.Count())
	}

	alice.chat("ABC123", "alice", "hello bob")
	for _, p := range []*peer{alice, bob} {
		event := p.readEvent()
		if event.Type != domain.KindChat || event.Username.Name != "alice" {
			t.Fatalf("expected alice's chat on both peers, got %+v", event)
		}
		var text string
		if err := json.Unmarshal(event.Content, &text); err != nil || text != "hello bob" {
			t.Fatalf("expected chat content passthrough, got %s", event.Content)
		}
	}

	bob.leave("ABC123", "bob")
	for _, p := range []*peer{alice, bob} {
		event := p.readEvent()
		if event.Type != domain.KindLeave || event.Username.Name != "bob" {
			t.Fatalf("expected bob's leave on both peers, got %+v", event)
		}
	}
	if room.Count() != 1 {
		t.Fatalf("expected 1 member after leave, got %d", room.Count())
	}
}

func TestEmptyRoomIsGarbageCollected(t *testing.T) {
	srv, repo := newBrokerServer(t)
	seedRoom(t, repo, "ABC123", "alice")

	alice := connectPeer(t, srv)
	alice.subscribe("ABC123")
	alice.join("ABC123", "alice")
	alice.readEvent() // own join

	alice.leave("ABC123", "alice")
	alice.readEvent() // own leave

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := repo.GetByCode(context.Background(), "ABC123"); errors.Is(err, domain.ErrRoomNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected empty room to be deleted")
}

func TestConnectionDropIsAnImplicitLeave(t *testing.T) {
	srv, repo := newBrokerServer(t)
	seedRoom(t, repo, "ABC123", "alice")

	alice := connectPeer(t, srv)
	alice.subscribe("ABC123")
	alice.join("ABC123", "alice")
	alice.readEvent()

	bob := connectPeer(t, srv)
	bob.subscribe("ABC123")
	bob.join("ABC123", "bob")
	alice.readEvent() // bob's join

	// Kill bob's socket without a leave announcement.
	bob.conn.Close()

	event := alice.readEvent()
	if event.Type != domain.KindLeave || event.Username.Name != "bob" {
		t.Fatalf("expected implicit leave for bob, got %+v", event)
	}

	room, err := repo.GetByCode(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("room lookup: %v", err)
	}
	if room.Count() != 1 {
		t.Fatalf("expected bob removed from the roster, got %d members", room.Count())
	}
}

func TestChatFanOutPreservesOrder(t *testing.T) {
	srv, repo := newBrokerServer(t)
	seedRoom(t, repo, "ABC123", "alice")

	alice := connectPeer(t, srv)
	alice.subscribe("ABC123")
	alice.join("ABC123", "alice")
	alice.readEvent()

	bob := connectPeer(t, srv)
	bob.subscribe("ABC123")
	bob.join("ABC123", "bob")
	alice.readEvent()
	bob.readEvent()

	const n = 10
	for i := 0; i < n; i++ {
		alice.chat("ABC123", "alice", fmt.Sprintf("msg-%d", i))
	}

	for i := 0; i < n; i++ {
		event := bob.readEvent()
		var text string
		if err := json.Unmarshal(event.Content, &text); err != nil {
			t.Fatalf("decode content: %v", err)
		}
		if want := fmt.Sprintf("msg-%d", i); text != want {
			t.Fatalf("message %d out of order: got %q", i, text)
		}
	}
}

func TestJoinUnknownRoomIsIgnored(t *testing.T) {
	srv, repo := newBrokerServer(t)
	seedRoom(t, repo, "ABC123", "alice")

	ghost := connectPeer(t, srv)
	ghost.subscribe("ZZZ999")
	ghost.join("ZZZ999", "ghost")

	// No join broadcast may arrive; the room never existed.
	if err := ghost.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var env domain.Envelope
	if err := ghost.conn.ReadJSON(&env); err == nil {
		t.Fatalf("expected no broadcast for unknown room, got %+v", env)
	}
}
