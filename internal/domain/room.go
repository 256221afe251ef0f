package domain

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrInvalidRoomCode   = errors.New("invalid room code")
	ErrInvalidInput      = errors.New("invalid input")
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GenerateRoomCode returns a random 6-character room code. Uniqueness is the
// caller's concern; the repository retries on collision.
func GenerateRoomCode() string {
	var b [6]byte
	for i := range b {
		b[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}
	return string(b[:])
}

// NormalizeRoomCode upper-cases and validates a user-supplied room code.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !roomCodePattern.MatchString(code) {
		return "", ErrInvalidRoomCode
	}
	return code, nil
}

type User struct {
	Username  string `json:"username"`
	SessionID string `json:"sessionId"`
}

func NewUser(username string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, ErrInvalidInput
	}
	return User{Username: username}, nil
}

// Room is one live chat room. Users are kept in join order; membership is
// bound to websocket sessions, the HTTP join endpoint only validates.
type Room struct {
	Code      string
	Host      string
	CreatedAt time.Time

	mu    sync.RWMutex
	users []User
}

func NewRoom(code, host string) *Room {
	return &Room{
		Code:      code,
		Host:      host,
		CreatedAt: time.Now(),
	}
}

// AddUser appends a user in join order. A user re-announcing the same name
// rebinds to the new websocket session instead of duplicating the entry.
func (r *Room) AddUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.users {
		if existing.Username == u.Username {
			r.users[i].SessionID = u.SessionID
			return
		}
	}

	r.users = append(r.users, u)
}

func (r *Room) RemoveUser(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, u := range r.users {
		if u.Username == username {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveBySession drops the user bound to a websocket session, returning the
// removed user. Used when a socket drops without an explicit leave.
func (r *Room) RemoveBySession(sessionID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, u := range r.users {
		if u.SessionID == sessionID {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return u, true
		}
	}
	return User{}, false
}

// Users returns a copy of the member list in join order.
func (r *Room) Users() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]User, len(r.users))
	copy(out, r.users)
	return out
}

func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *Room) Empty() bool {
	return r.Count() == 0
}

type RoomRepository interface {
	Create(ctx context.Context, room *Room) error
	GetByCode(ctx context.Context, code string) (*Room, error)
	Delete(ctx context.Context, code string) error
}
