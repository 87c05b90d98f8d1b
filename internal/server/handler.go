// Package server binds WebSocket connections to rooms and dispatches the
// client protocol. A connection progresses Connected -> Joined -> Closed;
// only the join message may move it forward, and every command that arrives
// in the wrong state is answered with an explicit error.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mintychochip/flappy-cakes/internal/config"
	"github.com/mintychochip/flappy-cakes/internal/game"
	"github.com/mintychochip/flappy-cakes/internal/lobby"
	"github.com/mintychochip/flappy-cakes/internal/protocol"
	"github.com/mintychochip/flappy-cakes/internal/room"
)

const defaultSkin = "character1"

// Handler accepts WebSocket connections and routes their messages to the
// room registry and simulation.
type Handler struct {
	registry *room.Registry
	lobby    *lobby.Client
	lobbyCfg config.LobbyConfig
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
}

// New creates a handler. lobbyClient may be nil to run without a lobby.
func New(registry *room.Registry, lobbyClient *lobby.Client, lobbyCfg config.LobbyConfig, log *zap.SugaredLogger) *Handler {
	h := &Handler{
		registry: registry,
		lobby:    lobbyClient,
		lobbyCfg: lobbyCfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	registry.OnFinished(func(r *room.Room, over *protocol.GameOver) {
		h.pushRoomState(r.Code, game.PhaseFinished.String())
	})
	return h
}

// HandleWS upgrades the request and serves the connection until it closes.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(ws)
	go client.writePump()

	s := &session{h: h, client: client, ws: ws}
	s.readPump()
}

// HandleHealthz reports liveness plus room/player totals.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "healthy",
		"rooms":        h.registry.Count(),
		"totalPlayers": h.registry.PlayerTotal(),
	})
}

// HandleMetrics outputs per-room runtime counters.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"rooms":   h.registry.Count(),
		"players": h.registry.PlayerTotal(),
		"perRoom": h.registry.MetricsSnapshot(),
	})
}

// pushRoomState mirrors a lifecycle transition into the lobby, best effort.
func (h *Handler) pushRoomState(code, state string) {
	if h.lobby == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.lobbyCfg.Timeout)
		defer cancel()
		if err := h.lobby.UpdateRoomState(ctx, code, state); err != nil {
			h.log.Warnw("lobby state update failed", "room", code, "state", state, "error", err)
		}
	}()
}

// notifyLeave tells the lobby a player is gone, best effort.
func (h *Handler) notifyLeave(code, playerID string) {
	if h.lobby == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.lobbyCfg.Timeout)
		defer cancel()
		if err := h.lobby.LeaveRoom(ctx, code, playerID); err != nil {
			h.log.Debugw("lobby leave failed", "room", code, "player", playerID, "error", err)
		}
	}()
}

// session is the per-connection protocol state machine.
type session struct {
	h      *Handler
	client *Client
	ws     *websocket.Conn

	playerID string
	roomID   string
}

// readPump reads and dispatches client messages until the connection drops.
// Malformed or unknown messages are logged and ignored; the connection stays
// open. There is no idle timeout: a player parked in a waiting room stays
// connected until the socket itself fails, and ping is answered without
// feeding any liveness bookkeeping.
func (s *session) readPump() {
	defer s.disconnect()

	s.ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.h.log.Debugw("protocol error", "player", s.playerID, "error", err)
			continue
		}
		if rm := s.room(); rm != nil {
			rm.Metrics().IncMessageIn()
		}

		switch m := msg.(type) {
		case *protocol.Join:
			s.handleJoin(m)
		case *protocol.Input:
			s.handleInput(m)
		case *protocol.StartGame:
			s.handleStart()
		case *protocol.UpdateSkin:
			s.handleSkin(m)
		case *protocol.Ping:
			s.send(protocol.NewPong())
		}
	}
}

func (s *session) handleJoin(msg *protocol.Join) {
	if s.roomID != "" {
		s.sendError("already in a room")
		return
	}

	code := strings.ToUpper(strings.TrimSpace(msg.RoomCode))
	if code == "" {
		s.sendError("Room code required")
		return
	}

	// With validation on, a code the lobby never registered is an explicit
	// error rather than a silently fabricated empty room.
	if s.h.lobby != nil && s.h.lobbyCfg.ValidateCodes && s.h.registry.GetByCode(code) == nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.h.lobbyCfg.Timeout)
		_, err := s.h.lobby.GetRoom(ctx, code)
		cancel()
		if errors.Is(err, lobby.ErrRoomNotFound) {
			s.sendError("Room not found")
			return
		}
		if err != nil {
			// Lobby outage must not take the game server down with it.
			s.h.log.Warnw("lobby validation unavailable", "room", code, "error", err)
		}
	}

	rm, created := s.h.registry.ResolveOrCreate(code)

	playerID := uuid.New().String()
	name := strings.TrimSpace(msg.PlayerName)
	if name == "" {
		name = "Player" + playerID[:6]
	}
	skin := msg.SkinID
	if skin == "" {
		skin = defaultSkin
	}

	// Roster is captured before insertion so the ack lists everyone but the
	// entrant, matching what the client renders as "already here".
	roster := rm.State().Roster("")
	if evicted := rm.State().AddPlayer(playerID, name, skin); evicted != "" {
		rm.Detach(evicted)
		s.h.log.Infow("evicted stale player with same name", "room", code, "name", name, "player", evicted)
	}

	s.playerID = playerID
	s.roomID = rm.ID
	rm.Attach(playerID, s.client.Enqueue)

	count := rm.State().PlayerCount()
	s.send(protocol.NewJoined(playerID, rm.ID, rm.Code, count, roster))
	_ = rm.Broadcast(protocol.NewPlayerJoined(playerID, name, count), playerID)

	s.h.log.Infow("player joined", "room", code, "player", playerID, "name", name, "players", count, "created", created)
}

func (s *session) handleInput(msg *protocol.Input) {
	rm := s.room()
	if rm == nil {
		s.sendError("not in a room")
		return
	}
	if !rm.State().SetInput(s.playerID, msg.Jumping) {
		s.sendError(game.ErrPlayerNotFound.Error())
	}
}

func (s *session) handleStart() {
	if s.roomID == "" {
		s.sendError("Not connected to a room. Please refresh and rejoin.")
		return
	}
	rm := s.h.registry.Get(s.roomID)
	if rm == nil {
		s.sendError("Room not found. The room may have been deleted. Please create a new room.")
		return
	}

	if err := rm.StartMatch(time.Now().UnixNano()); err != nil {
		s.sendError(err.Error())
		return
	}
	s.h.pushRoomState(rm.Code, game.PhasePlaying.String())
	s.h.log.Infow("match started", "room", rm.Code, "players", rm.State().PlayerCount())
}

func (s *session) handleSkin(msg *protocol.UpdateSkin) {
	rm := s.room()
	if rm == nil {
		s.sendError("not in a room")
		return
	}
	if !rm.State().SetSkin(s.playerID, msg.SkinID) {
		s.sendError(game.ErrPlayerNotFound.Error())
	}
}

// disconnect tears the session down: the player is removed outright, the
// room is told, and an emptied room is reclaimed immediately.
func (s *session) disconnect() {
	if s.roomID != "" {
		if rm := s.h.registry.Get(s.roomID); rm != nil {
			rm.Detach(s.playerID)
			if rm.State().RemovePlayer(s.playerID) {
				count := rm.State().PlayerCount()
				_ = rm.Broadcast(protocol.NewPlayerLeft(s.playerID, count), "")
				s.h.log.Infow("player left", "room", rm.Code, "player", s.playerID, "players", count)
				if count == 0 {
					s.h.registry.Remove(rm.ID)
				}
				s.h.notifyLeave(rm.Code, s.playerID)
			}
		}
	}
	s.client.Close()
}

func (s *session) room() *room.Room {
	if s.roomID == "" {
		return nil
	}
	return s.h.registry.Get(s.roomID)
}

func (s *session) send(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.h.log.Warnw("encode failed", "error", err)
		return
	}
	s.client.Enqueue(data)
}

func (s *session) sendError(message string) {
	s.send(protocol.NewError(message))
}
