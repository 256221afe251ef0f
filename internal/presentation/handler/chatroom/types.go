package chatroom

import "github.com/pcameron/huddle/internal/domain"

type createRoomRequest struct {
	HostName string `json:"hostName"`
}

type createRoomResponse struct {
	RoomCode string `json:"roomCode"`
	HostName string `json:"hostName"`
	Message  string `json:"message,omitempty"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type joinRoomResponse struct {
	RoomCode string `json:"roomCode"`
	HostName string `json:"hostName"`
	Message  string `json:"message,omitempty"`
}

type roomDetailsResponse struct {
	RoomCode  string        `json:"roomCode"`
	HostName  string        `json:"hostName"`
	UserCount int           `json:"userCount"`
	Users     []domain.User `json:"users"`
}
