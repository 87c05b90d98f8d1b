// Package room ties one simulation instance to its connections and manages
// the registry of live rooms keyed by join code.
package room

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mintychochip/flappy-cakes/internal/game"
	"github.com/mintychochip/flappy-cakes/internal/protocol"
)

// SendFunc enqueues an encoded message on one connection's outbound queue.
// It reports false when the message was dropped (queue full or closed);
// callers never block on it.
type SendFunc func(data []byte) bool

// Room is one joinable simulation instance: the authoritative game state,
// its tick engine, and the connections subscribed to broadcasts.
type Room struct {
	ID   string // process-local, opaque
	Code string // human-facing join code, owned by the lobby service

	state   *game.State
	engine  *game.Engine
	metrics *game.Metrics
	log     *zap.SugaredLogger

	mu          sync.Mutex
	subs        map[string]SendFunc
	deleteTimer *time.Timer
}

// NewRoom creates a waiting room with no players or subscribers.
func NewRoom(id, code string, cfg game.Config, log *zap.SugaredLogger) *Room {
	r := &Room{
		ID:      id,
		Code:    code,
		metrics: &game.Metrics{},
		log:     log,
		subs:    make(map[string]SendFunc),
	}
	r.state = game.NewState(cfg)
	r.engine = game.NewEngine(r.state, cfg, r, r.metrics, log)
	return r
}

// State returns the room's simulation state.
func (r *Room) State() *game.State { return r.state }

// Engine returns the room's tick engine.
func (r *Room) Engine() *game.Engine { return r.engine }

// Metrics returns the room's runtime counters.
func (r *Room) Metrics() *game.Metrics { return r.metrics }

// Attach subscribes a player's connection to room broadcasts.
func (r *Room) Attach(playerID string, send SendFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[playerID] = send
}

// Detach removes a player's broadcast subscription.
func (r *Room) Detach(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, playerID)
}

// SubscriberCount returns the number of attached connections.
func (r *Room) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Broadcast encodes msg once and fans it out to every subscriber except
// excludeID. Failed or dropped sends are counted and otherwise ignored; a
// stale connection never fails the room.
func (r *Room) Broadcast(msg any, excludeID string) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, send := range r.subs {
		if id == excludeID {
			continue
		}
		if !send(data) {
			r.metrics.IncSendDrop()
		}
	}
	r.metrics.IncBroadcast()
	return nil
}

// SendTo delivers msg to a single subscriber, if attached.
func (r *Room) SendTo(playerID string, msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	send, ok := r.subs[playerID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if !send(data) {
		r.metrics.IncSendDrop()
	}
	return nil
}

// StartMatch transitions the room into the playing phase: any pending
// deletion is cancelled, a finished room is reset, the start is announced,
// and the tick loop begins.
func (r *Room) StartMatch(seed int64) error {
	if err := r.state.Start(seed); err != nil {
		return err
	}
	r.CancelDeletion()
	if err := r.Broadcast(protocol.NewGameStart(), ""); err != nil {
		r.log.Warnw("gameStart broadcast failed", "room", r.Code, "error", err)
	}
	r.engine.Start()
	return nil
}

// ScheduleDeletion arms the post-finish removal timer, replacing any timer
// already pending. fn runs once the grace period elapses unless cancelled.
func (r *Room) ScheduleDeletion(grace time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteTimer != nil {
		r.deleteTimer.Stop()
	}
	r.deleteTimer = time.AfterFunc(grace, fn)
}

// CancelDeletion disarms a pending removal timer.
func (r *Room) CancelDeletion() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteTimer != nil {
		r.deleteTimer.Stop()
		r.deleteTimer = nil
	}
}
