package game

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mintychochip/flappy-cakes/internal/protocol"
)

// Broadcaster fans messages out to a room's connections. Implementations
// must never block the tick loop; sends to slow or broken connections are
// dropped, not retried.
type Broadcaster interface {
	Broadcast(msg any, excludeID string) error
	SendTo(playerID string, msg any) error
}

// Engine runs one room's fixed-rate tick loop. The loop only runs while the
// state is in the playing phase; it stops itself when the match ends.
type Engine struct {
	state       *State
	broadcaster Broadcaster
	log         *zap.SugaredLogger
	metrics     *Metrics
	interval    time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	onFinish func(*protocol.GameOver)
}

// NewEngine creates an engine for the given state. It does not start ticking.
func NewEngine(state *State, cfg Config, broadcaster Broadcaster, metrics *Metrics, log *zap.SugaredLogger) *Engine {
	return &Engine{
		state:       state,
		broadcaster: broadcaster,
		log:         log,
		metrics:     metrics,
		interval:    time.Second / time.Duration(cfg.TickRate),
	}
}

// OnFinish registers a callback invoked after the final results broadcast.
// Must be set before Start.
func (e *Engine) OnFinish(fn func(*protocol.GameOver)) {
	e.onFinish = fn
}

// State returns the engine's simulation state.
func (e *Engine) State() *State {
	return e.state
}

// Start begins the tick loop if it is not already running.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.tickLoop(e.stopCh)
}

// Stop halts the tick loop and waits for it to exit. Safe to call whether or
// not the loop is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) tickLoop(stopCh chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if finished := e.tick(); finished {
				return
			}
		}
	}
}

// markStopped releases the running flag. On a natural finish this must
// happen before the results broadcast: a startGame arriving in reaction to
// gameOver needs Start to launch a fresh loop, not no-op against the one
// that is already draining.
func (e *Engine) markStopped() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// tick advances the simulation once and broadcasts the result. Returns true
// when the match has ended and the loop should stop.
func (e *Engine) tick() bool {
	start := time.Now()
	snap, over := e.state.Step()
	if snap == nil {
		e.markStopped()
		return true // no longer playing
	}

	if err := e.broadcaster.Broadcast(snap, ""); err != nil {
		e.log.Warnw("state broadcast failed", "error", err)
	}
	if e.metrics != nil {
		e.metrics.AddTick(time.Since(start).Nanoseconds())
	}
	if over == nil {
		return false
	}
	e.markStopped()

	e.log.Infow("match finished",
		"players", over.Stats.TotalPlayers,
		"top_score", over.Stats.TopScore,
		"duration_s", over.Stats.GameDuration)
	if err := e.broadcaster.Broadcast(over, ""); err != nil {
		e.log.Warnw("results broadcast failed", "error", err)
	}
	if e.onFinish != nil {
		e.onFinish(over)
	}
	return true
}
