package game

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
)

// ComputerMark is the side played by the computer opponent. X always moves first.
const ComputerMark = entity.O

const DefaultRestartDelay = 2 * time.Second

type State int

const (
	AwaitingHumanMove State = iota
	AwaitingAIMove
	GameOver
)

func (s State) String() string {
	switch s {
	case AwaitingAIMove:
		return entity.StateAwaitingAIMove
	case GameOver:
		return entity.StateGameOver
	default:
		return entity.StateAwaitingHumanMove
	}
}

type Settings struct {
	VsComputer   bool
	RestartDelay time.Duration
}

type Deps struct {
	Searcher  Searcher
	Scheduler Scheduler
	Listener  Listener
	Logger    *slog.Logger
}

// Session is one game between a human and either another human on the same screen or the
// computer. It is not safe for concurrent use: all calls, including scheduled callbacks, must come
// from one goroutine (see Loop).
type Session struct {
	id     string
	logger *slog.Logger

	searcher  Searcher
	scheduler Scheduler
	listener  Listener

	board        entity.Board
	turn         entity.Mark
	state        State
	outcome      entity.Outcome
	vsComputer   bool
	restartDelay time.Duration

	// generation is bumped on every reset; pending reset callbacks carry the value they were
	// scheduled with and are dropped when it no longer matches.
	generation uint64
}

func NewSession(id string, settings Settings, deps Deps) *Session {
	if deps.Listener == nil {
		deps.Listener = ListenerFunc(func(Event) {})
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if settings.RestartDelay <= 0 {
		settings.RestartDelay = DefaultRestartDelay
	}

	return &Session{
		id:           id,
		logger:       deps.Logger.With("component", "session", "sessionID", id),
		searcher:     deps.Searcher,
		scheduler:    deps.Scheduler,
		listener:     deps.Listener,
		turn:         entity.X,
		state:        AwaitingHumanMove,
		vsComputer:   settings.VsComputer,
		restartDelay: settings.RestartDelay,
	}
}

// CheckSnapshot reports whether a snapshot holds a board that can occur in a game.
func CheckSnapshot(snapshot *entity.SessionSnapshot) error {
	if _, err := snapshot.Board.Turn(); err != nil {
		return fmt.Errorf("snapshot %s: %w", snapshot.ID, err)
	}

	return nil
}

// RestoreSession rebuilds a session from a snapshot. The turn and state are derived from the board
// rather than trusted, and a board that cannot occur in a game is rejected with
// apperror.ErrInvalidBoard. Call Resume on the owning goroutine afterwards.
func RestoreSession(snapshot *entity.SessionSnapshot, settings Settings, deps Deps) (*Session, error) {
	turn, err := snapshot.Board.Turn()
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", snapshot.ID, err)
	}

	settings.VsComputer = snapshot.VsComputer
	session := NewSession(snapshot.ID, settings, deps)

	session.board = snapshot.Board
	session.generation = snapshot.Generation
	session.turn = turn

	if outcome, done := session.board.Outcome(); done {
		// the turn is not passed on a finishing move
		session.turn = turn.Opponent()
		session.state = GameOver
		session.outcome = outcome

		return session, nil
	}

	session.state = session.stateForTurn()

	return session, nil
}

// Resume continues work interrupted by a restart: a pending computer move is played and a
// finished game gets its reset scheduled again.
func (that *Session) Resume() {
	switch that.state {
	case GameOver:
		that.scheduleReset()
	case AwaitingAIMove:
		that.playComputer()
	case AwaitingHumanMove:
	}
}

// CellActivated handles a click on a cell. Input that cannot be applied (occupied cell, index out
// of range, computer thinking, game over) is ignored and false is returned.
func (that *Session) CellActivated(index int) bool {
	log := that.logger.With("method", "CellActivated", "cell", index)

	if that.state != AwaitingHumanMove {
		log.Debug("input ignored", "state", that.state.String())
		return false
	}

	if err := that.place(index, that.turn); err != nil {
		log.Debug("input ignored", "error", err)
		return false
	}

	that.settle()

	if that.state == AwaitingAIMove {
		that.playComputer()
	}

	return true
}

// RestartRequested starts a fresh game immediately.
func (that *Session) RestartRequested() {
	that.reset()
}

// ModeToggleRequested switches between hot-seat and computer mode and starts a fresh game.
func (that *Session) ModeToggleRequested() {
	that.vsComputer = !that.vsComputer
	that.logger.Info("mode toggled", "vsComputer", that.vsComputer)
	that.reset()
}

func (that *Session) place(index int, mark entity.Mark) error {
	if err := that.board.Place(index, mark); err != nil {
		return err
	}

	that.listener.OnMarkPlaced(index, mark)

	return nil
}

// settle ends the game on a terminal board, otherwise passes the turn.
func (that *Session) settle() {
	if outcome, done := that.board.Outcome(); done {
		that.finish(outcome)
		return
	}

	that.turn = that.turn.Opponent()
	that.state = that.stateForTurn()
}

func (that *Session) stateForTurn() State {
	if that.vsComputer && that.turn == ComputerMark {
		return AwaitingAIMove
	}

	return AwaitingHumanMove
}

func (that *Session) playComputer() {
	started := time.Now()
	result := that.searcher.Search(that.board, that.turn)

	if err := that.place(result.Index, that.turn); err != nil {
		// search only runs on non-terminal boards, so this is a bug rather than user input
		that.logger.Error("computer move rejected", "cell", result.Index, "board", that.board.String(), "error", err)
		return
	}

	that.logger.Debug("computer moved", "cell", result.Index, "score", result.Score, "took", time.Since(started))

	that.settle()
}

func (that *Session) finish(outcome entity.Outcome) {
	that.state = GameOver
	that.outcome = outcome

	that.logger.Info("game ended", "outcome", outcome.String(), "board", that.board.String())
	that.listener.OnGameEnded(outcome)

	that.scheduleReset()
}

func (that *Session) scheduleReset() {
	if that.scheduler == nil {
		return
	}

	generation := that.generation
	that.scheduler.After(that.restartDelay, func() {
		that.resetIfCurrent(generation)
	})
}

func (that *Session) resetIfCurrent(generation uint64) {
	if generation != that.generation {
		that.logger.Debug("stale reset dropped", "scheduled", generation, "current", that.generation)
		return
	}

	that.reset()
}

func (that *Session) reset() {
	that.generation++
	that.board = entity.Board{}
	that.turn = entity.X
	that.state = AwaitingHumanMove
	that.outcome = entity.Outcome{}

	that.listener.OnReset()
}

func (that *Session) ID() string {
	return that.id
}

func (that *Session) State() State {
	return that.state
}

func (that *Session) Board() entity.Board {
	return that.board
}

func (that *Session) Turn() entity.Mark {
	return that.turn
}

func (that *Session) VsComputer() bool {
	return that.vsComputer
}

func (that *Session) Generation() uint64 {
	return that.generation
}

// Outcome reports the result once the game is over.
func (that *Session) Outcome() (entity.Outcome, bool) {
	return that.outcome, that.state == GameOver
}

func (that *Session) Snapshot() *entity.SessionSnapshot {
	snapshot := &entity.SessionSnapshot{
		ID:         that.id,
		Board:      that.board,
		Turn:       that.turn,
		State:      that.state.String(),
		VsComputer: that.vsComputer,
		Generation: that.generation,
		UpdatedAt:  time.Now().UTC(),
	}

	if that.state == GameOver {
		outcome := that.outcome
		snapshot.Outcome = &outcome
	}

	return snapshot
}
