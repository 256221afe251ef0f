// Package directory talks to the room-directory HTTP service: create, join
// and membership lookup. The session core only consumes Fetch; the entry
// screens use Create and Join.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pcameron/huddle/internal/domain"
)

var (
	ErrMissingRoomCode = errors.New("directory: missing room code")
	ErrMissingUsername = errors.New("directory: missing username")
)

// Snapshot is one point-in-time view of a room's membership.
type Snapshot struct {
	UserCount int             `json:"userCount"`
	Users     []domain.Sender `json:"users"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Create registers a new room and returns its code.
func (c *Client) Create(ctx context.Context, hostName string) (string, error) {
	if hostName == "" {
		return "", ErrMissingUsername
	}

	body := struct {
		HostName string `json:"hostName"`
	}{hostName}

	var res struct {
		RoomCode string `json:"roomCode"`
	}
	if err := c.post(ctx, "/api/chatroom/create", body, &res); err != nil {
		return "", err
	}
	return res.RoomCode, nil
}

// Join registers a username in an existing room.
func (c *Client) Join(ctx context.Context, roomCode, username string) error {
	if roomCode == "" {
		return ErrMissingRoomCode
	}
	if username == "" {
		return ErrMissingUsername
	}

	body := struct {
		RoomCode string `json:"roomCode"`
		Username string `json:"username"`
	}{roomCode, username}

	return c.post(ctx, "/api/chatroom/join", body, nil)
}

// Fetch resolves a room code to its current membership snapshot.
func (c *Client) Fetch(ctx context.Context, roomCode string) (Snapshot, error) {
	if roomCode == "" {
		return Snapshot{}, ErrMissingRoomCode
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/chatroom/"+roomCode, nil)
	if err != nil {
		return Snapshot{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("directory: lookup %s: %s", roomCode, resp.Status)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("directory: decode snapshot: %w", err)
	}
	return snap, nil
}

func (c *Client) post(ctx context.Context, path string, body, res any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("directory: %s", apiErr.Message)
		}
		return fmt.Errorf("directory: %s %s: %s", http.MethodPost, path, resp.Status)
	}

	if res == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(res)
}
