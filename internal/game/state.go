// Package game implements the authoritative room simulation: physics,
// collision, scoring, and obstacle lifecycle for one match.
package game

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mintychochip/flappy-cakes/internal/protocol"
)

// Phase is the room lifecycle state.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhasePlaying
	PhaseFinished
)

// String implements fmt.Stringer. The values double as the lobby service's
// room state identifiers.
func (p Phase) String() string {
	switch p {
	case PhasePlaying:
		return "playing"
	case PhaseFinished:
		return "finished"
	default:
		return "waiting"
	}
}

// Player is the server-owned state of one connected player.
type Player struct {
	ID        string
	Name      string
	Y         float64
	VelocityY float64
	Jumping   bool // last-known input intent, applied once per tick
	Alive     bool
	Score     int
	SkinID    string

	joinSeq int
}

// Obstacle is a moving hazard with a vertical passage players must occupy.
type Obstacle struct {
	X    float64
	GapY float64

	// scoredBy prevents double-crediting a (player, obstacle) pair.
	scoredBy map[string]struct{}
}

// State is the authoritative state of one room's simulation. All methods are
// safe for concurrent use; connection events and the tick loop serialize on
// the state's mutex.
type State struct {
	mu           sync.Mutex
	cfg          Config
	phase        Phase
	players      map[string]*Player
	obstacles    []*Obstacle
	spawnCounter int
	tick         uint64
	startedAt    time.Time
	rng          *rand.Rand
	joinSeq      int
}

// NewState creates a simulation in the waiting phase with no players.
func NewState(cfg Config) *State {
	return &State{
		cfg:     cfg,
		phase:   PhaseWaiting,
		players: make(map[string]*Player),
	}
}

// AddPlayer inserts a new player spawned mid-field. If a resident player
// already uses the same display name (a stale entry from a dropped
// connection), that entry is evicted first and its ID returned.
func (s *State) AddPlayer(id, name, skinID string) (evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pid, p := range s.players {
		if p.Name == name {
			delete(s.players, pid)
			evicted = pid
			break
		}
	}

	s.joinSeq++
	s.players[id] = &Player{
		ID:      id,
		Name:    name,
		Y:       s.cfg.WorldHeight / 2,
		Alive:   true,
		SkinID:  skinID,
		joinSeq: s.joinSeq,
	}
	return evicted
}

// RemovePlayer deletes a player outright. Reports whether it was present.
func (s *State) RemovePlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[id]
	delete(s.players, id)
	return ok
}

// SetInput records a player's movement intent for the next tick. This is the
// only path by which a connection influences physics.
func (s *State) SetInput(id string, jumping bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return false
	}
	p.Jumping = jumping
	return true
}

// SetSkin updates a player's cosmetic skin.
func (s *State) SetSkin(id, skinID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return false
	}
	p.SkinID = skinID
	return true
}

// PlayerCount returns the number of players in the room.
func (s *State) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Player returns a snapshot of one player's broadcast state.
func (s *State) Player(id string) (protocol.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return protocol.PlayerState{}, false
	}
	return playerState(p), true
}

// Roster lists resident players in join order, excluding excludeID.
func (s *State) Roster(excludeID string) []protocol.RosterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		if p.ID == excludeID {
			continue
		}
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].joinSeq < ordered[j].joinSeq })

	roster := make([]protocol.RosterEntry, 0, len(ordered))
	for _, p := range ordered {
		roster = append(roster, protocol.RosterEntry{ID: p.ID, Name: p.Name})
	}
	return roster
}

// Start transitions the room to the playing phase. A finished room is fully
// reset first: scores zeroed, everyone revived and re-centered, obstacles
// cleared. The seed fixes the obstacle-spawn sequence; identical seeds and
// inputs reproduce identical matches.
func (s *State) Start(seed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhasePlaying {
		return ErrAlreadyRunning
	}
	if s.phase == PhaseFinished {
		s.resetLocked()
	}
	if len(s.players) == 0 {
		return ErrNoPlayers
	}

	s.phase = PhasePlaying
	s.startedAt = time.Now()
	s.tick = 0
	s.spawnCounter = 0
	s.rng = rand.New(rand.NewSource(seed))
	return nil
}

func (s *State) resetLocked() {
	for _, p := range s.players {
		p.Alive = true
		p.Score = 0
		p.Y = s.cfg.WorldHeight / 2
		p.VelocityY = 0
	}
	s.obstacles = nil
	s.spawnCounter = 0
	s.phase = PhaseWaiting
}

// Step advances the simulation by one tick and returns the snapshot to
// broadcast. When the last player dies the phase flips to finished and the
// final results are returned alongside; that happens at most once per match.
// Outside the playing phase Step is a no-op.
func (s *State) Step() (*protocol.GameState, *protocol.GameOver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return nil, nil
	}
	s.tick++

	playerX := s.cfg.PlayerX()
	radius := s.cfg.EffectiveRadius()

	// Input, physics, collision. Dead players stay frozen.
	for _, p := range s.players {
		if !p.Alive {
			continue
		}
		if p.Jumping {
			p.VelocityY = s.cfg.JumpImpulse
		}
		p.VelocityY += s.cfg.Gravity
		p.Y += p.VelocityY
		if s.collidesLocked(p, playerX, radius) {
			p.Alive = false
		}
	}

	// Scoring: credit each living player once per obstacle whose trailing
	// edge has fully passed the player column.
	for _, ob := range s.obstacles {
		if ob.X+s.cfg.ObstacleWidth >= playerX {
			continue
		}
		for id, p := range s.players {
			if !p.Alive {
				continue
			}
			if _, credited := ob.scoredBy[id]; credited {
				continue
			}
			ob.scoredBy[id] = struct{}{}
			p.Score++
		}
	}

	// Obstacle lifecycle: spawn at the far edge on the interval, advance,
	// drop anything fully off the near edge.
	s.spawnCounter++
	if s.spawnCounter > s.cfg.SpawnInterval {
		gapY := s.cfg.GapMargin + s.rng.Float64()*(s.cfg.WorldHeight-s.cfg.ObstacleGap-2*s.cfg.GapMargin)
		s.obstacles = append(s.obstacles, &Obstacle{
			X:        s.cfg.WorldWidth,
			GapY:     gapY,
			scoredBy: make(map[string]struct{}),
		})
		s.spawnCounter = 0
	}
	kept := s.obstacles[:0]
	for _, ob := range s.obstacles {
		ob.X -= s.cfg.ObstacleSpeed
		if ob.X >= -s.cfg.ObstacleWidth {
			kept = append(kept, ob)
		}
	}
	s.obstacles = kept

	snap := s.snapshotLocked()

	alive := 0
	for _, p := range s.players {
		if p.Alive {
			alive++
		}
	}
	if alive == 0 {
		s.phase = PhaseFinished
		return snap, s.resultsLocked()
	}
	return snap, nil
}

// collidesLocked reports whether a player's vertical span leaves the
// playfield or escapes an overlapping obstacle's gap. A span exactly tangent
// to the gap edges still clears.
func (s *State) collidesLocked(p *Player, playerX, radius float64) bool {
	if p.Y > s.cfg.WorldHeight-s.cfg.GroundHeight-radius {
		return true
	}
	if p.Y < radius {
		return true
	}
	for _, ob := range s.obstacles {
		if ob.X+s.cfg.ObstacleWidth < playerX-radius {
			continue // fully behind the player
		}
		if ob.X > playerX+radius {
			continue // not yet reached
		}
		if p.Y-radius < ob.GapY || p.Y+radius > ob.GapY+s.cfg.ObstacleGap {
			return true
		}
	}
	return false
}

// Snapshot returns the current broadcast view without advancing the tick.
func (s *State) Snapshot() *protocol.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() *protocol.GameState {
	ordered := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].joinSeq < ordered[j].joinSeq })

	snap := &protocol.GameState{
		Type:      protocol.TypeGameState,
		Players:   make([]protocol.PlayerState, 0, len(ordered)),
		Obstacles: make([]protocol.ObstacleState, 0, len(s.obstacles)),
	}
	for _, p := range ordered {
		snap.Players = append(snap.Players, playerState(p))
	}
	for _, ob := range s.obstacles {
		snap.Obstacles = append(snap.Obstacles, protocol.ObstacleState{X: ob.X, GapY: ob.GapY})
	}
	return snap
}

func (s *State) resultsLocked() *protocol.GameOver {
	ranked := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].joinSeq < ranked[j].joinSeq
	})

	over := &protocol.GameOver{
		Type:        protocol.TypeGameOver,
		FinalScores: make([]protocol.FinalScore, 0, len(ranked)),
		Stats: protocol.GameOverStats{
			TotalPlayers: len(ranked),
			GameDuration: int(time.Since(s.startedAt).Seconds()),
		},
	}
	for _, p := range ranked {
		over.FinalScores = append(over.FinalScores, protocol.FinalScore{ID: p.ID, Score: p.Score})
	}
	if len(ranked) > 0 {
		over.Winner = ranked[0].ID
		over.Stats.TopScore = ranked[0].Score
	}
	return over
}

func playerState(p *Player) protocol.PlayerState {
	return protocol.PlayerState{
		ID:      p.ID,
		Name:    p.Name,
		Y:       p.Y,
		Score:   p.Score,
		Alive:   p.Alive,
		SkinID:  p.SkinID,
		Jumping: p.Jumping,
	}
}
