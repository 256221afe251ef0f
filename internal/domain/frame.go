package domain

import (
	"encoding/json"
	"strings"
)

// Broker frame ops, client to server.
const (
	OpSubscribe = "subscribe"
	OpSend      = "send"
)

// Envelope is the JSON frame exchanged over the broker websocket. Outbound
// frames carry an op; inbound frames carry only the destination and body.
type Envelope struct {
	Op          string          `json:"op,omitempty"`
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body,omitempty"`
}

const (
	topicPrefix       = "/topic/chatroom/"
	addUserPrefix     = "/app/chat.addUser/"
	sendMessagePrefix = "/app/chat.sendMessage/"
)

// TopicDestination is the inbound event channel for one room.
func TopicDestination(roomCode string) string {
	return topicPrefix + roomCode
}

// AddUserDestination is the outbound join announcement for one room.
func AddUserDestination(roomCode string) string {
	return addUserPrefix + roomCode
}

// SendMessageDestination is the outbound chat/leave channel for one room.
func SendMessageDestination(roomCode string) string {
	return sendMessagePrefix + roomCode
}

// SplitDestination extracts the room code from a broker destination path.
func SplitDestination(dest string) (kind, roomCode string, ok bool) {
	switch {
	case strings.HasPrefix(dest, topicPrefix):
		return "topic", dest[len(topicPrefix):], true
	case strings.HasPrefix(dest, addUserPrefix):
		return "addUser", dest[len(addUserPrefix):], true
	case strings.HasPrefix(dest, sendMessagePrefix):
		return "sendMessage", dest[len(sendMessagePrefix):], true
	}
	return "", "", false
}
