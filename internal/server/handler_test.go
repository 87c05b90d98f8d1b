package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mintychochip/flappy-cakes/internal/config"
	"github.com/mintychochip/flappy-cakes/internal/game"
	"github.com/mintychochip/flappy-cakes/internal/protocol"
	"github.com/mintychochip/flappy-cakes/internal/room"
)

// fastConfig compresses a match into tens of milliseconds: a held jump puts a
// player through the ceiling on the first tick, while an idle player free
// falls to the ground line within eight.
func fastConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.TickRate = 120
	cfg.Gravity = 10
	cfg.JumpImpulse = -400
	cfg.SpawnInterval = 1 << 30
	return cfg
}

func newTestServer(t *testing.T, gameCfg game.Config) (*httptest.Server, *room.Registry) {
	t.Helper()
	log := zap.NewNop().Sugar()
	reg := room.NewRegistry(gameCfg, room.Config{DeleteGrace: time.Minute}, log)
	h := New(reg, nil, config.LobbyConfig{Timeout: time.Second}, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	mux.HandleFunc("/healthz", h.HandleHealthz)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readEnvelope reads the next server message and returns its type tag plus
// the raw payload for typed unmarshaling.
func readEnvelope(t *testing.T, ws *websocket.Conn) (string, []byte) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("envelope %q: %v", data, err)
	}
	return env.Type, data
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, wantType string) []byte {
	t.Helper()
	for i := 0; i < 500; i++ {
		typ, data := readEnvelope(t, ws)
		if typ == wantType {
			return data
		}
	}
	t.Fatalf("no %s message within 500 reads", wantType)
	return nil
}

// syncConn round-trips a ping so every previously written message on this
// connection is known to have been processed.
func syncConn(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	sendJSON(t, ws, map[string]any{"type": "ping"})
	readUntil(t, ws, protocol.TypePong)
}

func join(t *testing.T, ws *websocket.Conn, code, name string) *protocol.Joined {
	t.Helper()
	sendJSON(t, ws, map[string]any{"type": "join", "roomCode": code, "playerName": name})
	var ack protocol.Joined
	if err := json.Unmarshal(readUntil(t, ws, protocol.TypeJoined), &ack); err != nil {
		t.Fatalf("joined ack: %v", err)
	}
	return &ack
}

func TestPingPong(t *testing.T) {
	srv, _ := newTestServer(t, game.DefaultConfig())
	ws := dial(t, srv)

	sendJSON(t, ws, map[string]any{"type": "ping"})
	typ, _ := readEnvelope(t, ws)
	if typ != protocol.TypePong {
		t.Errorf("expected pong, got %s", typ)
	}
}

func TestJoinRequiresRoomCode(t *testing.T) {
	srv, _ := newTestServer(t, game.DefaultConfig())
	ws := dial(t, srv)

	sendJSON(t, ws, map[string]any{"type": "join", "roomCode": "  "})
	var errMsg protocol.Error
	if err := json.Unmarshal(readUntil(t, ws, protocol.TypeError), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Message != "Room code required" {
		t.Errorf("unexpected error message %q", errMsg.Message)
	}
}

func TestCommandsBeforeJoinRejected(t *testing.T) {
	srv, _ := newTestServer(t, game.DefaultConfig())
	ws := dial(t, srv)

	sendJSON(t, ws, map[string]any{"type": "input", "jumping": true})
	var errMsg protocol.Error
	if err := json.Unmarshal(readUntil(t, ws, protocol.TypeError), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Message != "not in a room" {
		t.Errorf("unexpected error message %q", errMsg.Message)
	}

	sendJSON(t, ws, map[string]any{"type": "startGame"})
	if err := json.Unmarshal(readUntil(t, ws, protocol.TypeError), &errMsg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(errMsg.Message, "Not connected to a room") {
		t.Errorf("unexpected error message %q", errMsg.Message)
	}
}

func TestJoinAckAndFanOut(t *testing.T) {
	srv, reg := newTestServer(t, game.DefaultConfig())

	ws1 := dial(t, srv)
	ack1 := join(t, ws1, "ab12", "Alice")
	if ack1.RoomCode != "AB12" {
		t.Errorf("code not normalized: %q", ack1.RoomCode)
	}
	if ack1.PlayerCount != 1 {
		t.Errorf("expected count 1, got %d", ack1.PlayerCount)
	}
	if ack1.ExistingPlayers == nil || len(ack1.ExistingPlayers) != 0 {
		t.Errorf("first joiner should see empty roster, got %v", ack1.ExistingPlayers)
	}

	ws2 := dial(t, srv)
	ack2 := join(t, ws2, "AB12", "Bob")
	if ack2.PlayerCount != 2 {
		t.Errorf("expected count 2, got %d", ack2.PlayerCount)
	}
	if len(ack2.ExistingPlayers) != 1 || ack2.ExistingPlayers[0].Name != "Alice" {
		t.Errorf("second joiner should see Alice, got %v", ack2.ExistingPlayers)
	}

	var pj protocol.PlayerJoined
	if err := json.Unmarshal(readUntil(t, ws1, protocol.TypePlayerJoined), &pj); err != nil {
		t.Fatal(err)
	}
	if pj.PlayerID != ack2.PlayerID || pj.PlayerName != "Bob" || pj.PlayerCount != 2 {
		t.Errorf("unexpected playerJoined %+v", pj)
	}

	if reg.Count() != 1 {
		t.Errorf("both joins should land in one room, got %d rooms", reg.Count())
	}
}

func TestDuplicateJoinRejected(t *testing.T) {
	srv, _ := newTestServer(t, game.DefaultConfig())
	ws := dial(t, srv)

	join(t, ws, "AB12", "Alice")
	sendJSON(t, ws, map[string]any{"type": "join", "roomCode": "CD34"})
	var errMsg protocol.Error
	if err := json.Unmarshal(readUntil(t, ws, protocol.TypeError), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Message != "already in a room" {
		t.Errorf("unexpected error message %q", errMsg.Message)
	}
}

// TestTwoPlayerMatch drives a full match: one player holds jump and exits
// through the ceiling on the first tick, the other free falls to the ground.
// The interleaved broadcasts must show one dead and one alive before a single
// gameOver with both scores arrives.
func TestTwoPlayerMatch(t *testing.T) {
	srv, _ := newTestServer(t, fastConfig())

	ws1 := dial(t, srv)
	ack1 := join(t, ws1, "AB12", "Alice")
	ws2 := dial(t, srv)
	ack2 := join(t, ws2, "AB12", "Bob")
	readUntil(t, ws1, protocol.TypePlayerJoined)

	sendJSON(t, ws1, map[string]any{"type": "input", "jumping": true})
	syncConn(t, ws1) // input is committed before the match starts

	sendJSON(t, ws2, map[string]any{"type": "startGame"})
	readUntil(t, ws1, protocol.TypeGameStart)
	readUntil(t, ws2, protocol.TypeGameStart)

	sawSplit := false
	var over protocol.GameOver
	for i := 0; i < 500; i++ {
		typ, data := readEnvelope(t, ws2)
		if typ == protocol.TypeGameState {
			var snap protocol.GameState
			if err := json.Unmarshal(data, &snap); err != nil {
				t.Fatal(err)
			}
			alive := map[string]bool{}
			for _, p := range snap.Players {
				alive[p.ID] = p.Alive
			}
			if !alive[ack1.PlayerID] && alive[ack2.PlayerID] {
				sawSplit = true
			}
			continue
		}
		if typ == protocol.TypeGameOver {
			if err := json.Unmarshal(data, &over); err != nil {
				t.Fatal(err)
			}
			break
		}
	}

	if !sawSplit {
		t.Error("never saw a snapshot with Alice dead and Bob alive")
	}
	if over.Type != protocol.TypeGameOver {
		t.Fatal("match never finished")
	}
	if over.Stats.TotalPlayers != 2 {
		t.Errorf("expected totalPlayers 2, got %d", over.Stats.TotalPlayers)
	}
	if len(over.FinalScores) != 2 {
		t.Errorf("expected two final scores, got %v", over.FinalScores)
	}
	ids := map[string]bool{}
	for _, fs := range over.FinalScores {
		ids[fs.ID] = true
	}
	if !ids[ack1.PlayerID] || !ids[ack2.PlayerID] {
		t.Errorf("final scores missing a player: %v", over.FinalScores)
	}
	if over.Winner != over.FinalScores[0].ID {
		t.Errorf("winner %s should top the ranking %v", over.Winner, over.FinalScores)
	}

	// No further broadcasts after the results: the tick loop is down.
	_ = ws2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := ws2.ReadMessage(); err == nil {
		t.Errorf("unexpected message after gameOver: %s", data)
	}
}

func TestRestartAfterGameOver(t *testing.T) {
	srv, _ := newTestServer(t, fastConfig())
	ws := dial(t, srv)
	join(t, ws, "AB12", "Alice")

	sendJSON(t, ws, map[string]any{"type": "startGame"})
	readUntil(t, ws, protocol.TypeGameStart)
	readUntil(t, ws, protocol.TypeGameOver)

	// A finished room accepts a fresh start and resets everyone.
	sendJSON(t, ws, map[string]any{"type": "startGame"})
	readUntil(t, ws, protocol.TypeGameStart)
	var snap protocol.GameState
	if err := json.Unmarshal(readUntil(t, ws, protocol.TypeGameState), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Players) != 1 || snap.Players[0].Score != 0 {
		t.Errorf("restart should reset players, got %+v", snap.Players)
	}
	readUntil(t, ws, protocol.TypeGameOver)
}

func TestStartEmptyRoomImpossibleViaProtocol(t *testing.T) {
	// The only way to reference a room is to join it, so a started room always
	// has at least one player; a second start while playing is rejected.
	srv, _ := newTestServer(t, game.DefaultConfig())
	ws := dial(t, srv)
	join(t, ws, "AB12", "Alice")

	sendJSON(t, ws, map[string]any{"type": "startGame"})
	readUntil(t, ws, protocol.TypeGameStart)

	sendJSON(t, ws, map[string]any{"type": "startGame"})
	var errMsg protocol.Error
	if err := json.Unmarshal(readUntil(t, ws, protocol.TypeError), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Message != game.ErrAlreadyRunning.Error() {
		t.Errorf("unexpected error message %q", errMsg.Message)
	}
}

func TestDisconnectNotifiesRoomAndReclaims(t *testing.T) {
	srv, reg := newTestServer(t, game.DefaultConfig())

	ws1 := dial(t, srv)
	join(t, ws1, "AB12", "Alice")
	ws2 := dial(t, srv)
	ack2 := join(t, ws2, "AB12", "Bob")
	readUntil(t, ws1, protocol.TypePlayerJoined)

	ws2.Close()

	var left protocol.PlayerLeft
	if err := json.Unmarshal(readUntil(t, ws1, protocol.TypePlayerLeft), &left); err != nil {
		t.Fatal(err)
	}
	if left.PlayerID != ack2.PlayerID || left.PlayerCount != 1 {
		t.Errorf("unexpected playerLeft %+v", left)
	}
	if reg.Count() != 1 {
		t.Errorf("room with a remaining player must stay resident")
	}

	ws1.Close()
	deadline := time.Now().Add(2 * time.Second)
	for reg.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("emptied room never reclaimed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// A player waiting for the host to start sends nothing at all; the server
// must not impose an idle deadline on the read side.
func TestIdleConnectionIsNotDropped(t *testing.T) {
	srv, reg := newTestServer(t, game.DefaultConfig())
	ws := dial(t, srv)
	join(t, ws, "AB12", "Alice")

	time.Sleep(300 * time.Millisecond)

	syncConn(t, ws)
	if reg.PlayerTotal() != 1 {
		t.Errorf("idle player was dropped, total %d", reg.PlayerTotal())
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, game.DefaultConfig())
	ws := dial(t, srv)
	join(t, ws, "AB12", "Alice")

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Status       string `json:"status"`
		Rooms        int    `json:"rooms"`
		TotalPlayers int    `json:"totalPlayers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Rooms != 1 || body.TotalPlayers != 1 {
		t.Errorf("unexpected healthz %+v", body)
	}
}
