package apperror

import "errors"

var (
	ErrInvalidMove     = errors.New("invalid move")
	ErrSessionNotFound = errors.New("session not found")
	ErrLoopStopped     = errors.New("session loop is stopped")
	ErrTerminalBoard   = errors.New("board is already terminal")
	ErrInvalidBoard    = errors.New("board cannot occur in a game")
)
