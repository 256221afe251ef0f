package repository

import (
	"context"
	"sync"
	"time"

	"github.com/pcameron/huddle/internal/domain"
)

type roomRepository struct {
	rooms          map[string]*domain.Room // Code -> Room
	lastAccess     map[string]time.Time    // Code -> last access time
	capacity       uint
	idleRoomExpiry time.Duration
	mu             *sync.RWMutex
}

func NewRoomRepository(capacity uint, idleRoomExpiry time.Duration) domain.RoomRepository {
	if capacity == 0 {
		capacity = 100
	}
	if idleRoomExpiry == 0 {
		idleRoomExpiry = 30 * time.Minute
	}

	return &roomRepository{
		rooms:          make(map[string]*domain.Room),
		lastAccess:     make(map[string]time.Time),
		capacity:       capacity,
		idleRoomExpiry: idleRoomExpiry,
		mu:             &sync.RWMutex{},
	}
}

func (r *roomRepository) touch(code string) {
	r.lastAccess[code] = time.Now()
}

func (r *roomRepository) evictIdle() {
	cutoff := time.Now().Add(-r.idleRoomExpiry)
	for code, last := range r.lastAccess {
		if last.Before(cutoff) {
			delete(r.rooms, code)
			delete(r.lastAccess, code)
		}
	}
}

// enforceCapacity drops the oldest-accessed rooms when over capacity.
func (r *roomRepository) enforceCapacity() {
	for uint(len(r.rooms)) > r.capacity {
		var (
			oldestCode string
			oldestTime time.Time
		)
		for code, t := range r.lastAccess {
			if oldestCode == "" || t.Before(oldestTime) {
				oldestCode = code
				oldestTime = t
			}
		}
		if oldestCode == "" {
			return
		}
		delete(r.rooms, oldestCode)
		delete(r.lastAccess, oldestCode)
	}
}

// Create adds a room if its code is unique and capacity allows.
func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	if room == nil || room.Code == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictIdle()

	if _, exists := r.rooms[room.Code]; exists {
		return domain.ErrRoomAlreadyExists
	}

	r.rooms[room.Code] = room
	r.touch(room.Code)
	r.enforceCapacity()

	return nil
}

// GetByCode returns a room and updates its access time.
func (r *roomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if code == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	room, exists := r.rooms[code]
	r.mu.RUnlock()
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	r.mu.Lock()
	r.touch(code)
	r.mu.Unlock()

	return room, nil
}

// Delete removes a room by code (idempotent).
func (r *roomRepository) Delete(ctx context.Context, code string) error {
	if code == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, code)
	delete(r.lastAccess, code)

	return nil
}
