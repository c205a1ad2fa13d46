package game

import "errors"

var (
	ErrNoActiveGame   = errors.New("no game is running in this room")
	ErrInvalidInput   = errors.New("invalid game input")
	ErrUnknownVariant = errors.New("unknown game variant")
	ErrGameInProgress = errors.New("a game is already running in this room")
	ErrNoPlayers      = errors.New("a game needs at least one player")
)
