package game

// Config holds simulation tuning. Distances are in game units on the fixed
// 1024x768 playfield, speeds are units per tick, intervals are ticks.
type Config struct {
	TickRate      int     `mapstructure:"tick_rate"`
	WorldWidth    float64 `mapstructure:"world_width"`
	WorldHeight   float64 `mapstructure:"world_height"`
	Gravity       float64 `mapstructure:"gravity"`
	JumpImpulse   float64 `mapstructure:"jump_impulse"`
	PlayerRadius  float64 `mapstructure:"player_radius"`
	HitboxMargin  float64 `mapstructure:"hitbox_margin"` // forgiveness shaved off the visual radius
	GroundHeight  float64 `mapstructure:"ground_height"`
	ObstacleWidth float64 `mapstructure:"obstacle_width"`
	ObstacleGap   float64 `mapstructure:"obstacle_gap"`
	ObstacleSpeed float64 `mapstructure:"obstacle_speed"`
	SpawnInterval int     `mapstructure:"spawn_interval"` // ticks between obstacle spawns
	GapMargin     float64 `mapstructure:"gap_margin"`     // min clearance between gap and ceiling/ground
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickRate:      60,
		WorldWidth:    1024,
		WorldHeight:   768,
		Gravity:       0.25,
		JumpImpulse:   -6,
		PlayerRadius:  12,
		HitboxMargin:  2,
		GroundHeight:  50,
		ObstacleWidth: 120,
		ObstacleGap:   200,
		ObstacleSpeed: 3,
		SpawnInterval: 120,
		GapMargin:     50,
	}
}

// PlayerX returns the fixed horizontal column every player occupies.
func (c Config) PlayerX() float64 {
	return c.WorldWidth / 2
}

// EffectiveRadius returns the collision radius after the forgiveness margin.
func (c Config) EffectiveRadius() float64 {
	return c.PlayerRadius - c.HitboxMargin
}
