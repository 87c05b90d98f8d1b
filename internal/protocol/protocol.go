// Package protocol provides helpers for encoding/decoding game messages.
//
// Every message on the wire is a JSON object with a "type" field naming one
// of the variants below. Decode validates inbound payloads at the boundary so
// nothing downstream ever sees an untyped message.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type tags, client to server.
const (
	TypeJoin       = "join"
	TypeInput      = "input"
	TypeStartGame  = "startGame"
	TypeUpdateSkin = "updateSkin"
	TypePing       = "ping"
)

// Message type tags, server to client.
const (
	TypeJoined       = "joined"
	TypePlayerJoined = "playerJoined"
	TypePlayerLeft   = "playerLeft"
	TypeGameStart    = "gameStart"
	TypeGameState    = "gameState"
	TypeGameOver     = "gameOver"
	TypePong         = "pong"
	TypeError        = "error"
)

// ErrUnknownType is returned by Decode for message types the server does not
// recognize.
var ErrUnknownType = errors.New("unknown message type")

// Join requests membership in a room.
type Join struct {
	Type         string  `json:"type"`
	RoomCode     string  `json:"roomCode"`
	PlayerName   string  `json:"playerName,omitempty"`
	SkinID       string  `json:"skinId,omitempty"`
	WindowHeight float64 `json:"windowHeight,omitempty"`
}

// Input carries the player's current movement intent. It is the only message
// that may influence physics.
type Input struct {
	Type    string `json:"type"`
	Jumping bool   `json:"jumping"`
}

// StartGame asks the server to begin (or restart) the match.
type StartGame struct {
	Type string `json:"type"`
}

// UpdateSkin changes a player's cosmetic skin. No simulation effect.
type UpdateSkin struct {
	Type   string `json:"type"`
	SkinID string `json:"skinId"`
}

// Ping is a client liveness probe, answered with Pong.
type Ping struct {
	Type string `json:"type"`
}

// RosterEntry identifies a player already present in a room.
type RosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Joined is the personalized acknowledgment sent to a joining connection.
type Joined struct {
	Type            string        `json:"type"`
	PlayerID        string        `json:"playerId"`
	RoomID          string        `json:"roomId"`
	RoomCode        string        `json:"roomCode"`
	PlayerCount     int           `json:"playerCount"`
	ExistingPlayers []RosterEntry `json:"existingPlayers"`
}

// PlayerJoined notifies existing room members of a new entrant.
type PlayerJoined struct {
	Type        string `json:"type"`
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	PlayerCount int    `json:"playerCount"`
}

// PlayerLeft notifies room members of a departure.
type PlayerLeft struct {
	Type        string `json:"type"`
	PlayerID    string `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
}

// GameStart announces the transition to the playing state.
type GameStart struct {
	Type string `json:"type"`
}

// PlayerState is one player's slice of a GameState broadcast.
type PlayerState struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Y       float64 `json:"y"`
	Score   int     `json:"score"`
	Alive   bool    `json:"alive"`
	SkinID  string  `json:"skinId"`
	Jumping bool    `json:"jumping"`
}

// ObstacleState is one obstacle's slice of a GameState broadcast.
type ObstacleState struct {
	X    float64 `json:"x"`
	GapY float64 `json:"gapY"`
}

// GameState is the full authoritative room snapshot, sent once per tick.
type GameState struct {
	Type      string          `json:"type"`
	Players   []PlayerState   `json:"players"`
	Obstacles []ObstacleState `json:"obstacles"`
}

// FinalScore is one entry of the ranked GameOver score list.
type FinalScore struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// GameOverStats summarizes a finished match.
type GameOverStats struct {
	TotalPlayers int `json:"totalPlayers"`
	GameDuration int `json:"gameDuration"` // seconds
	TopScore     int `json:"topScore"`
}

// GameOver carries the final results, broadcast exactly once per match.
type GameOver struct {
	Type        string        `json:"type"`
	Winner      string        `json:"winner"`
	FinalScores []FinalScore  `json:"finalScores"`
	Stats       GameOverStats `json:"stats"`
}

// Pong answers a Ping.
type Pong struct {
	Type string `json:"type"`
}

// Error is an explicit rejection of a client message.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Encode serializes an outbound message to bytes.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode deserializes an inbound client message into its typed variant.
// Returns ErrUnknownType for tags the server does not handle; malformed JSON
// is reported as an unmarshal error.
func Decode(data []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case TypeJoin:
		msg := &Join{}
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("unmarshal join: %w", err)
		}
		return msg, nil
	case TypeInput:
		msg := &Input{}
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
		return msg, nil
	case TypeStartGame:
		return &StartGame{Type: env.Type}, nil
	case TypeUpdateSkin:
		msg := &UpdateSkin{}
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("unmarshal updateSkin: %w", err)
		}
		return msg, nil
	case TypePing:
		return &Ping{Type: env.Type}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// NewJoined creates the acknowledgment for a joining connection.
func NewJoined(playerID, roomID, roomCode string, playerCount int, existing []RosterEntry) *Joined {
	if existing == nil {
		existing = []RosterEntry{}
	}
	return &Joined{
		Type:            TypeJoined,
		PlayerID:        playerID,
		RoomID:          roomID,
		RoomCode:        roomCode,
		PlayerCount:     playerCount,
		ExistingPlayers: existing,
	}
}

// NewPlayerJoined creates a join notification for the rest of the room.
func NewPlayerJoined(playerID, playerName string, playerCount int) *PlayerJoined {
	return &PlayerJoined{
		Type:        TypePlayerJoined,
		PlayerID:    playerID,
		PlayerName:  playerName,
		PlayerCount: playerCount,
	}
}

// NewPlayerLeft creates a departure notification.
func NewPlayerLeft(playerID string, playerCount int) *PlayerLeft {
	return &PlayerLeft{
		Type:        TypePlayerLeft,
		PlayerID:    playerID,
		PlayerCount: playerCount,
	}
}

// NewGameStart creates a match start announcement.
func NewGameStart() *GameStart {
	return &GameStart{Type: TypeGameStart}
}

// NewPong creates a ping reply.
func NewPong() *Pong {
	return &Pong{Type: TypePong}
}

// NewError creates an error reply.
func NewError(message string) *Error {
	return &Error{Type: TypeError, Message: message}
}
