// Package minimax implements the exhaustive game-tree search used by the computer opponent.
//
// O is the maximising side and X the minimising side. Scores are not depth adjusted, and among
// equally scored moves the lowest cell index wins.
package minimax

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
)

const (
	ScoreOWins = 10
	ScoreXWins = -10
	ScoreDraw  = 0

	// NoMove is the index reported for terminal boards.
	NoMove = -1
)

// Result is the chosen cell and the score predicted for it under optimal play.
type Result struct {
	Index int `json:"index"`
	Score int `json:"score"`
}

type Searcher struct {
	cache *Cache
}

// New returns a Searcher. A nil cache disables memoisation.
func New(cache *Cache) *Searcher {
	return &Searcher{cache: cache}
}

// Search is a Searcher without a cache.
func Search(board entity.Board, side entity.Mark) Result {
	return (&Searcher{}).Search(board, side)
}

// Search returns the optimal move for side. The board is passed by value, so the caller's board
// is never touched; exploration applies and undoes marks on that single copy.
func (that *Searcher) Search(board entity.Board, side entity.Mark) Result {
	return that.search(&board, side)
}

// BestMove is Search for callers that treat a finished board as an error.
func (that *Searcher) BestMove(board entity.Board, side entity.Mark) (Result, error) {
	if _, over := board.Outcome(); over {
		return Result{Index: NoMove}, fmt.Errorf("%w: %s", apperror.ErrTerminalBoard, board)
	}

	return that.Search(board, side), nil
}

func (that *Searcher) search(board *entity.Board, side entity.Mark) Result {
	switch {
	case board.IsWin(entity.O):
		return Result{Index: NoMove, Score: ScoreOWins}
	case board.IsWin(entity.X):
		return Result{Index: NoMove, Score: ScoreXWins}
	}

	moves := board.AvailableMoves()
	if len(moves) == 0 {
		return Result{Index: NoMove, Score: ScoreDraw}
	}

	if cached, ok := that.cache.get(*board, side); ok {
		return cached
	}

	best := Result{Index: NoMove}
	for _, index := range moves {
		score := that.explore(board, index, side)
		if best.Index == NoMove || improves(side, score, best.Score) {
			best = Result{Index: index, Score: score}
		}
	}

	that.cache.put(*board, side, best)

	return best
}

// explore scores one candidate. The deferred restore runs on every exit path, so the board is back
// to its previous state before the next candidate is tried.
func (that *Searcher) explore(board *entity.Board, index int, side entity.Mark) int {
	board[index] = side
	defer func() { board[index] = entity.Empty }()

	return that.search(board, side.Opponent()).Score
}

// improves is a strict comparison: ties keep the move found first.
func improves(side entity.Mark, score, best int) bool {
	if side == entity.O {
		return score > best
	}

	return score < best
}
