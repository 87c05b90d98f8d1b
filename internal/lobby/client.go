// Package lobby is the client for the external room-directory service. The
// lobby owns room creation and join codes; the game server only consults it
// to validate codes and to mirror coarse room state. The in-memory player
// map stays authoritative once a connection has joined over the game
// protocol.
package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrRoomNotFound maps the lobby's 404 responses.
var ErrRoomNotFound = errors.New("lobby: room not found")

// Player is the lobby's pre-game view of a room member.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
	IsHost   bool   `json:"isHost"`
}

// Room is the lobby's durable room record.
type Room struct {
	Code      string            `json:"code"`
	HostID    string            `json:"hostId"`
	State     string            `json:"state"`
	Players   map[string]Player `json:"players"`
	CreatedAt int64             `json:"createdAt"`
}

// JoinResult is the lobby's joinRoom response.
type JoinResult struct {
	PlayerID string `json:"playerId"`
	Room     *Room  `json:"room"`
}

// Client calls the lobby's HTTP functions. A nil Client is valid and makes
// every method a no-op returning zero values, so the server runs standalone
// without a lobby deployment.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the lobby deployment at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateRoom registers a new room and returns its record, including the
// generated join code and host ID.
func (c *Client) CreateRoom(ctx context.Context, hostName string) (*Room, error) {
	if c == nil {
		return nil, nil
	}
	room := &Room{}
	err := c.call(ctx, http.MethodPost, "createRoom", map[string]any{"hostName": hostName}, room)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// JoinRoom records pre-game membership for a player.
func (c *Client) JoinRoom(ctx context.Context, code, playerName string) (*JoinResult, error) {
	if c == nil {
		return nil, nil
	}
	res := &JoinResult{}
	err := c.call(ctx, http.MethodPost, "joinRoom", map[string]any{"code": code, "playerName": playerName}, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// LeaveRoom removes a player from the lobby's membership record.
func (c *Client) LeaveRoom(ctx context.Context, code, playerID string) error {
	if c == nil {
		return nil
	}
	return c.call(ctx, http.MethodPost, "leaveRoom", map[string]any{"code": code, "playerId": playerID}, nil)
}

// GetRoom fetches a room snapshot, or ErrRoomNotFound when the code was
// never registered.
func (c *Client) GetRoom(ctx context.Context, code string) (*Room, error) {
	if c == nil {
		return nil, nil
	}
	room := &Room{}
	err := c.call(ctx, http.MethodPost, "getRoom", map[string]any{"code": code}, room)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// UpdateRoomState mirrors a room's lifecycle state ("waiting", "playing",
// "finished") into the lobby's record.
func (c *Client) UpdateRoomState(ctx context.Context, code, state string) error {
	if c == nil {
		return nil
	}
	return c.call(ctx, http.MethodPut, "updateRoomState", map[string]any{"code": code, "state": state}, nil)
}

func (c *Client) call(ctx context.Context, method, fn string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", fn, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+fn, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", fn, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRoomNotFound
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", fn, apiErr.Error)
		}
		return fmt.Errorf("%s: unexpected status %d", fn, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", fn, err)
	}
	return nil
}
