package game

import "errors"

var (
	ErrNoPlayers      = errors.New("cannot start with zero players")
	ErrAlreadyRunning = errors.New("game already in progress")
	ErrPlayerNotFound = errors.New("player not found")
)
