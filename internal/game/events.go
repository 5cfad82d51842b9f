package game

import (
	"time"

	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
	"github.com/rocketscienceinc/tictactoe-solo/internal/minimax"
)

// Listener receives what the UI collaborator has to render.
type Listener interface {
	OnMarkPlaced(index int, mark entity.Mark)
	OnGameEnded(outcome entity.Outcome)
	OnReset()
}

// Scheduler runs fn after delay on the same logical thread that owns the session.
type Scheduler interface {
	After(delay time.Duration, fn func())
}

type Searcher interface {
	Search(board entity.Board, side entity.Mark) minimax.Result
}

const (
	EventMarkPlaced = "mark:placed"
	EventGameEnded  = "game:ended"
	EventReset      = "game:reset"
)

// Event is a Listener callback as a value, used for fan-out to connections.
type Event struct {
	Kind    string
	Index   int
	Mark    entity.Mark
	Outcome *entity.Outcome
}

// ListenerFunc adapts a single function to the Listener interface.
type ListenerFunc func(Event)

func (fn ListenerFunc) OnMarkPlaced(index int, mark entity.Mark) {
	fn(Event{Kind: EventMarkPlaced, Index: index, Mark: mark})
}

func (fn ListenerFunc) OnGameEnded(outcome entity.Outcome) {
	fn(Event{Kind: EventGameEnded, Outcome: &outcome})
}

func (fn ListenerFunc) OnReset() {
	fn(Event{Kind: EventReset})
}
