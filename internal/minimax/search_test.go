package minimax

import (
	"testing"

	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) entity.Board {
	t.Helper()

	board, err := entity.ParseBoard(s)
	require.NoError(t, err)

	return board
}

func TestSearch_TerminalBoards(t *testing.T) {
	t.Run("O already won", func(t *testing.T) {
		result := Search(mustParse(t, "OOOXX_X__"), entity.X)

		assert.Equal(t, Result{Index: NoMove, Score: ScoreOWins}, result)
	})

	t.Run("X already won", func(t *testing.T) {
		result := Search(mustParse(t, "XXXOO____"), entity.O)

		assert.Equal(t, Result{Index: NoMove, Score: ScoreXWins}, result)
	})

	t.Run("Full board is a draw", func(t *testing.T) {
		result := Search(mustParse(t, "XOXXOOOXO"), entity.X)

		assert.Equal(t, Result{Index: NoMove, Score: ScoreDraw}, result)
	})
}

func TestSearch_ImmediateWins(t *testing.T) {
	t.Run("X completes its top row", func(t *testing.T) {
		// Given: X to move with two in the top row
		board := mustParse(t, "XX_OO____")

		// When: searching as the minimiser
		result := Search(board, entity.X)

		// Then: X takes cell 2 and wins
		assert.Equal(t, Result{Index: 2, Score: ScoreXWins}, result)
	})

	t.Run("O completes its top row", func(t *testing.T) {
		board := mustParse(t, "OO_XX____")

		result := Search(board, entity.O)

		assert.Equal(t, Result{Index: 2, Score: ScoreOWins}, result)
	})

	t.Run("O blocks a forced loss", func(t *testing.T) {
		// Given: X threatens the right column and O holds the center
		board := mustParse(t, "__X_OX___")

		// When: O searches
		result := Search(board, entity.O)

		// Then: blocking at 8 is the only move that saves the draw
		assert.Equal(t, Result{Index: 8, Score: ScoreDraw}, result)
	})
}

func TestSearch_EmptyBoardIsADraw(t *testing.T) {
	// Given: an empty board with X to move
	var board entity.Board

	// When: searching
	result := Search(board, entity.X)

	// Then: no side can force a win
	assert.Equal(t, ScoreDraw, result.Score)
	assert.Equal(t, 0, result.Index)
}

func TestSearch_DoesNotModifyCallerBoard(t *testing.T) {
	board := mustParse(t, "X___O____")
	before := board

	_ = Search(board, entity.X)

	assert.Equal(t, before, board)
}

func TestSearch_Deterministic(t *testing.T) {
	board := mustParse(t, "X___O___X")

	first := Search(board, entity.O)
	second := Search(board, entity.O)

	assert.Equal(t, first, second)
}

func TestSearch_SelfPlayDraws(t *testing.T) {
	for _, first := range []entity.Mark{entity.O, entity.X} {
		// Given: an empty board and both sides playing the searched move
		var board entity.Board
		searcher := New(NewCache())
		side := first

		for {
			if _, done := board.Outcome(); done {
				break
			}

			result := searcher.Search(board, side)
			require.NotEqual(t, NoMove, result.Index)
			require.NoError(t, board.Place(result.Index, side))
			side = side.Opponent()
		}

		// Then: optimal play from the empty board always ends in a draw
		outcome, _ := board.Outcome()
		assert.Equal(t, entity.Draw(), outcome, "first=%s board=%s", first, board)
	}
}

func TestSearcher_CacheAgreesWithPlainSearch(t *testing.T) {
	cache := NewCache()
	searcher := New(cache)

	boards := []string{"_________", "X________", "X___O____", "XX_OO____", "XO_X_____", "_X_O_X___"}
	for _, s := range boards {
		board := mustParse(t, s)
		for _, side := range []entity.Mark{entity.X, entity.O} {
			assert.Equal(t, Search(board, side), searcher.Search(board, side), "board=%s side=%s", s, side)
		}
	}

	assert.Positive(t, cache.Len())
}

func TestCache_NilIsDisabled(t *testing.T) {
	var cache *Cache

	cache.put(entity.Board{}, entity.X, Result{Index: 4})
	_, ok := cache.get(entity.Board{}, entity.X)

	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestSearcher_BestMove(t *testing.T) {
	searcher := New(nil)

	t.Run("Playable board", func(t *testing.T) {
		result, err := searcher.BestMove(mustParse(t, "XX_OO____"), entity.X)

		require.NoError(t, err)
		assert.Equal(t, Result{Index: 2, Score: ScoreXWins}, result)
	})

	t.Run("Terminal board", func(t *testing.T) {
		for _, s := range []string{"XXXOO____", "XOXXOOOXX"} {
			result, err := searcher.BestMove(mustParse(t, s), entity.O)

			require.ErrorIs(t, err, apperror.ErrTerminalBoard)
			assert.Equal(t, NoMove, result.Index)
		}
	})
}
