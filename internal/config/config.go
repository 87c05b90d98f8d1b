// Package config loads server configuration from an optional YAML file with
// defaults for every key, so the server runs with no file at all.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mintychochip/flappy-cakes/internal/game"
	"github.com/mintychochip/flappy-cakes/internal/room"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Lobby  LobbyConfig  `mapstructure:"lobby"`
	Game   game.Config  `mapstructure:"game"`
	Room   room.Config  `mapstructure:"room"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	// File is the log path; empty logs to stderr instead.
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type LobbyConfig struct {
	// BaseURL of the lobby functions deployment; empty disables all lobby
	// calls and the server runs standalone.
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// ValidateCodes rejects joins for codes the lobby has never registered
	// instead of fabricating an empty room.
	ValidateCodes bool `mapstructure:"validate_codes"`
}

// Load reads configuration from path, or returns pure defaults when path is
// empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("lobby.base_url", "")
	v.SetDefault("lobby.timeout", 5*time.Second)
	v.SetDefault("lobby.validate_codes", false)

	g := game.DefaultConfig()
	v.SetDefault("game.tick_rate", g.TickRate)
	v.SetDefault("game.world_width", g.WorldWidth)
	v.SetDefault("game.world_height", g.WorldHeight)
	v.SetDefault("game.gravity", g.Gravity)
	v.SetDefault("game.jump_impulse", g.JumpImpulse)
	v.SetDefault("game.player_radius", g.PlayerRadius)
	v.SetDefault("game.hitbox_margin", g.HitboxMargin)
	v.SetDefault("game.ground_height", g.GroundHeight)
	v.SetDefault("game.obstacle_width", g.ObstacleWidth)
	v.SetDefault("game.obstacle_gap", g.ObstacleGap)
	v.SetDefault("game.obstacle_speed", g.ObstacleSpeed)
	v.SetDefault("game.spawn_interval", g.SpawnInterval)
	v.SetDefault("game.gap_margin", g.GapMargin)

	v.SetDefault("room.delete_grace", room.DefaultConfig().DeleteGrace)
}
