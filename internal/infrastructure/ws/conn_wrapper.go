package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pcameron/huddle/internal/domain"
)

const writeWait = 10 * time.Second

// connWrapper serializes envelope writes on a shared websocket connection.
// Reads stay unsynchronized: only the read pump touches them.
type connWrapper struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func newConnWrapper(c *websocket.Conn) *connWrapper {
	return &connWrapper{conn: c}
}

func (w *connWrapper) WriteEnvelope(env *domain.Envelope) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(env)
}

func (w *connWrapper) ReadEnvelope() (domain.Envelope, error) {
	var env domain.Envelope
	err := w.conn.ReadJSON(&env)
	return env, err
}

func (w *connWrapper) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.Close()
}
