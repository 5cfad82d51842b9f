package entity

import (
	"errors"
	"fmt"
)

var ErrUnknownMark = errors.New("unknown mark")

// Mark is the content of a single cell and also identifies a side.
type Mark uint8

const (
	Empty Mark = iota
	X
	O
)

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// Opponent returns the other side. Empty has no opponent.
func (m Mark) Opponent() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// IsSide reports whether m is X or O.
func (m Mark) IsSide() bool {
	return m == X || m == O
}

func (m Mark) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mark) UnmarshalText(text []byte) error {
	mark, err := ParseMark(string(text))
	if err != nil {
		return err
	}

	*m = mark

	return nil
}

// ParseMark accepts "X", "O" (either case) and "" or "_" for an empty cell.
func ParseMark(s string) (Mark, error) {
	switch s {
	case "X", "x":
		return X, nil
	case "O", "o":
		return O, nil
	case "", "_":
		return Empty, nil
	default:
		return Empty, fmt.Errorf("%w: %q", ErrUnknownMark, s)
	}
}
