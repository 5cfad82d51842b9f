package entity

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
)

const BoardSize = 9

var (
	ErrInvalidCell  = fmt.Errorf("%w: invalid cell index", apperror.ErrInvalidMove)
	ErrCellOccupied = fmt.Errorf("%w: cell is already occupied", apperror.ErrInvalidMove)
	ErrInvalidMark  = fmt.Errorf("%w: mark must be X or O", apperror.ErrInvalidMove)

	WinCombos = [8][3]int{
		{0, 1, 2},
		{3, 4, 5},
		{6, 7, 8},
		{0, 3, 6},
		{1, 4, 7},
		{2, 5, 8},
		{0, 4, 8},
		{2, 4, 6},
	}
)

// Board is the 3x3 grid stored row-major.
type Board [BoardSize]Mark

// Place puts mark into an empty cell. The board is left untouched on error.
func (that *Board) Place(index int, mark Mark) error {
	if index < 0 || index >= BoardSize {
		return fmt.Errorf("%w: cell %d", ErrInvalidCell, index)
	}

	if !mark.IsSide() {
		return ErrInvalidMark
	}

	if that[index] != Empty {
		return fmt.Errorf("%w: cell %d", ErrCellOccupied, index)
	}

	that[index] = mark

	return nil
}

// IsWin reports whether any line is fully owned by mark.
func (that Board) IsWin(mark Mark) bool {
	if !mark.IsSide() {
		return false
	}

	for _, combo := range WinCombos {
		if that[combo[0]] == mark && that[combo[1]] == mark && that[combo[2]] == mark {
			return true
		}
	}

	return false
}

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell == Empty {
			return false
		}
	}

	return true
}

// IsDraw is true only for a full board without a winner.
func (that Board) IsDraw() bool {
	if that.IsWin(X) || that.IsWin(O) {
		return false
	}

	return that.IsFull()
}

// AvailableMoves lists the empty cells in ascending order.
func (that Board) AvailableMoves() []int {
	moves := make([]int, 0, BoardSize)
	for i, cell := range that {
		if cell == Empty {
			moves = append(moves, i)
		}
	}

	return moves
}

func (that Board) MarksPlaced() int {
	count := 0
	for _, cell := range that {
		if cell != Empty {
			count++
		}
	}

	return count
}

// Turn derives the side to move from the mark counts. X moves first, so a reachable board holds
// as many X marks as O marks, or one more, and at most the side that moved last owns a line.
func (that Board) Turn() (Mark, error) {
	var xCount, oCount int
	for _, cell := range that {
		switch cell {
		case X:
			xCount++
		case O:
			oCount++
		}
	}

	xWins, oWins := that.IsWin(X), that.IsWin(O)

	switch {
	case xWins && oWins:
		return Empty, fmt.Errorf("%w: both sides own a line", apperror.ErrInvalidBoard)
	case xCount == oCount:
		if xWins {
			return Empty, fmt.Errorf("%w: O moved after X won", apperror.ErrInvalidBoard)
		}

		return X, nil
	case xCount == oCount+1:
		if oWins {
			return Empty, fmt.Errorf("%w: X moved after O won", apperror.ErrInvalidBoard)
		}

		return O, nil
	default:
		return Empty, fmt.Errorf("%w: %d X marks against %d O marks", apperror.ErrInvalidBoard, xCount, oCount)
	}
}

// Outcome returns the result of a terminal board. A win is checked before a draw.
func (that Board) Outcome() (Outcome, bool) {
	switch {
	case that.IsWin(X):
		return Win(X), true
	case that.IsWin(O):
		return Win(O), true
	case that.IsFull():
		return Draw(), true
	default:
		return Outcome{}, false
	}
}

// String renders the board as nine characters, "_" for empty cells.
func (that Board) String() string {
	var sb strings.Builder
	for _, cell := range that {
		if cell == Empty {
			sb.WriteByte('_')
			continue
		}
		sb.WriteString(cell.String())
	}

	return sb.String()
}

// ParseBoard reads the format produced by Board.String. Spaces and "|" separators are ignored.
func ParseBoard(s string) (Board, error) {
	var board Board

	cleaned := strings.NewReplacer(" ", "", "|", "", "\n", "").Replace(s)
	if len(cleaned) != BoardSize {
		return board, fmt.Errorf("%w: board must have %d cells, got %d", ErrInvalidCell, BoardSize, len(cleaned))
	}

	for i := range cleaned {
		mark, err := ParseMark(cleaned[i : i+1])
		if err != nil {
			return Board{}, fmt.Errorf("cell %d: %w", i, err)
		}
		board[i] = mark
	}

	return board, nil
}
