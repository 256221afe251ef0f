package chatroom

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pcameron/huddle/internal/domain"
	"github.com/pcameron/huddle/internal/infrastructure/json"
	"github.com/pcameron/huddle/internal/infrastructure/ws"
)

const maxCodeAttempts = 10

type Handler struct {
	roomRepository domain.RoomRepository
	hub            *ws.Hub
}

func NewHandler(roomRepository domain.RoomRepository, hub *ws.Hub) *Handler {
	return &Handler{
		roomRepository: roomRepository,
		hub:            hub,
	}
}

func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	hostName := strings.TrimSpace(req.HostName)
	if hostName == "" {
		json.WriteError(w, http.StatusBadRequest, "Host name is required")
		return
	}

	// Regenerate on collision; codes are short enough to collide eventually.
	var room *domain.Room
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate := domain.NewRoom(domain.GenerateRoomCode(), hostName)
		err := h.roomRepository.Create(r.Context(), candidate)
		if err == nil {
			room = candidate
			break
		}
		if !errors.Is(err, domain.ErrRoomAlreadyExists) {
			log.Printf("failed to create room for host %s: %v", hostName, err)
			json.WriteInternalError(w, err)
			return
		}
	}
	if room == nil {
		json.WriteInternalError(w, errors.New("could not allocate a unique room code"))
		return
	}

	json.Write(w, http.StatusCreated, createRoomResponse{
		RoomCode: room.Code,
		HostName: room.Host,
		Message:  "Room created successfully",
	})
}

func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if strings.TrimSpace(req.Username) == "" {
		json.WriteError(w, http.StatusBadRequest, "Username is required")
		return
	}

	roomCode, err := domain.NormalizeRoomCode(req.RoomCode)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, "Room code is required")
		return
	}

	room, err := h.roomRepository.GetByCode(r.Context(), roomCode)
	if err != nil {
		json.WriteNotFoundError(w, "Room not found")
		return
	}

	// Membership itself is bound on the websocket join announcement.
	json.Write(w, http.StatusOK, joinRoomResponse{
		RoomCode: room.Code,
		HostName: room.Host,
		Message:  "Room found. Connect via WebSocket to join.",
	})
}

func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomCode, err := domain.NormalizeRoomCode(chi.URLParam(r, "roomCode"))
	if err != nil {
		json.WriteNotFoundError(w, "Room not found")
		return
	}

	room, err := h.roomRepository.GetByCode(r.Context(), roomCode)
	if err != nil {
		json.WriteNotFoundError(w, "Room not found")
		return
	}

	users := room.Users()
	json.Write(w, http.StatusOK, roomDetailsResponse{
		RoomCode:  room.Code,
		HostName:  room.Host,
		UserCount: len(users),
		Users:     users,
	})
}

// ConnectHandler upgrades to the shared broker websocket. Room scoping
// happens per frame via destinations, not per connection.
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Upgrade(w, r)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := ws.NewClient(conn, h.hub)
	h.hub.Register() <- client

	go client.WritePump()
	go client.ReadPump()
}
