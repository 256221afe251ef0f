package ws

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pcameron/huddle/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Upgrade promotes an HTTP request to a websocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Client is one broker connection. The hub loop owns all fields below the
// send channel; pumps only touch the wrapped conn and the channels.
type Client struct {
	conn *connWrapper
	hub  *Hub
	send chan *domain.Envelope

	SessionID string

	// Owned by the hub's Run loop.
	username      string
	roomCode      string
	joined        bool
	left          bool
	subscriptions map[string]struct{}
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		conn:          newConnWrapper(conn),
		hub:           hub,
		send:          make(chan *domain.Envelope, 64), // buffered to avoid dead-locks on slow clients
		SessionID:     uuid.NewString(),
		subscriptions: make(map[string]struct{}),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister() <- c
		_ = c.conn.Close()
	}()

	for {
		env, err := c.conn.ReadEnvelope()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read error (client %s): %v", c.SessionID, err)
			}
			break
		}

		c.hub.Inbound() <- inbound{client: c, env: env}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for env := range c.send {
		if err := c.conn.WriteEnvelope(env); err != nil {
			log.Printf("ws write error (client %s): %v", c.SessionID, err)
			break
		}
	}
}
