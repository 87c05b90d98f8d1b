// Command client is a simple test client for the game server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mintychochip/flappy-cakes/internal/protocol"
)

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "server websocket URL")
	roomCode := flag.String("room", "TEST", "room code to join")
	playerName := flag.String("name", "TestPlayer", "player name")
	flag.Parse()

	ws, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	log.Printf("connecting to %s as %s (room %s)", *serverURL, *playerName, *roomCode)

	send := func(msg any) {
		data, err := protocol.Encode(msg)
		if err != nil {
			log.Printf("encode: %v", err)
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Fatalf("write: %v", err)
		}
	}

	send(&protocol.Join{Type: protocol.TypeJoin, RoomCode: *roomCode, PlayerName: *playerName})

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				os.Exit(0)
			}
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			switch env.Type {
			case protocol.TypeGameState:
				var state protocol.GameState
				if err := json.Unmarshal(data, &state); err == nil {
					for _, p := range state.Players {
						fmt.Printf("  %-12s y=%6.1f score=%d alive=%v\n", p.Name, p.Y, p.Score, p.Alive)
					}
				}
			default:
				log.Printf("<- %s", data)
			}
		}
	}()

	fmt.Println("commands: start, jump, skin <id>, ping, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "quit":
			return
		case line == "start":
			send(&protocol.StartGame{Type: protocol.TypeStartGame})
		case line == "jump":
			// Press and release so a single jump applies one impulse.
			send(&protocol.Input{Type: protocol.TypeInput, Jumping: true})
			time.Sleep(50 * time.Millisecond)
			send(&protocol.Input{Type: protocol.TypeInput, Jumping: false})
		case line == "ping":
			send(&protocol.Ping{Type: protocol.TypePing})
		case len(line) > 5 && line[:5] == "skin ":
			send(&protocol.UpdateSkin{Type: protocol.TypeUpdateSkin, SkinID: line[5:]})
		}
	}
}
