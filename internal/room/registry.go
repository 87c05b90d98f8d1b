package room

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mintychochip/flappy-cakes/internal/game"
	"github.com/mintychochip/flappy-cakes/internal/protocol"
)

// Config for registry settings.
type Config struct {
	// DeleteGrace is how long a finished room stays resident so clients can
	// read the final results before it disappears.
	DeleteGrace time.Duration `mapstructure:"delete_grace"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{DeleteGrace: 10 * time.Second}
}

// Registry maps join codes to resident rooms. The lobby service owns code
// allocation; the registry lazily materializes an in-memory room the first
// time a connection references a code.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room // by room ID
	byCode  map[string]*Room
	gameCfg game.Config
	cfg     Config
	log     *zap.SugaredLogger

	onFinished func(*Room, *protocol.GameOver)
}

// NewRegistry creates an empty registry.
func NewRegistry(gameCfg game.Config, cfg Config, log *zap.SugaredLogger) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		byCode:  make(map[string]*Room),
		gameCfg: gameCfg,
		cfg:     cfg,
		log:     log,
	}
}

// OnFinished registers a callback invoked after a room's match ends, once
// its deletion timer has been armed. Used to push state to the lobby service.
func (reg *Registry) OnFinished(fn func(*Room, *protocol.GameOver)) {
	reg.onFinished = fn
}

// ResolveOrCreate returns the resident room for a code, constructing a fresh
// waiting room when none exists. Codes are case-insensitive; no two resident
// rooms ever share one. Reports whether the room was newly created.
func (reg *Registry) ResolveOrCreate(code string) (*Room, bool) {
	code = strings.ToUpper(code)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.byCode[code]; ok {
		return r, false
	}

	r := NewRoom(uuid.New().String(), code, reg.gameCfg, reg.log)
	r.engine.OnFinish(func(over *protocol.GameOver) {
		reg.finishRoom(r, over)
	})
	reg.rooms[r.ID] = r
	reg.byCode[code] = r
	reg.log.Infow("room created", "room", code, "id", r.ID)
	return r, true
}

// Get retrieves a resident room by ID.
func (reg *Registry) Get(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

// GetByCode retrieves a resident room by join code.
func (reg *Registry) GetByCode(code string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.byCode[strings.ToUpper(code)]
}

// Remove deletes a room from the registry and stops its tick loop. A later
// join with the same code gets a fresh room, never resurrected state.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	if ok {
		delete(reg.rooms, id)
		delete(reg.byCode, r.Code)
	}
	reg.mu.Unlock()

	if !ok {
		return
	}
	r.CancelDeletion()
	r.Engine().Stop()
	reg.log.Infow("room removed", "room", r.Code, "id", id)
}

// Count returns the number of resident rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// PlayerTotal returns the number of players across all resident rooms.
func (reg *Registry) PlayerTotal() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	total := 0
	for _, r := range reg.rooms {
		total += r.State().PlayerCount()
	}
	return total
}

// MetricsSnapshot returns per-room runtime counters keyed by join code.
func (reg *Registry) MetricsSnapshot() map[string]any {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make(map[string]any, len(reg.rooms))
	for _, r := range reg.rooms {
		out[r.Code] = r.Metrics().Snapshot()
	}
	return out
}

// finishRoom arms the post-match deletion timer. A startGame arriving before
// the timer fires cancels it via StartMatch.
func (reg *Registry) finishRoom(r *Room, over *protocol.GameOver) {
	r.ScheduleDeletion(reg.cfg.DeleteGrace, func() {
		reg.log.Infow("deletion grace elapsed", "room", r.Code)
		reg.Remove(r.ID)
	})
	if reg.onFinished != nil {
		reg.onFinished(r, over)
	}
}
