package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
	"github.com/rocketscienceinc/tictactoe-solo/internal/game"
)

const rowSeparator = "───┼───┼───"

// screen mirrors the board from session events and draws it. Events arrive on the session loop
// while notices come from the input goroutine.
type screen struct {
	mu  sync.Mutex
	out *termenv.Output

	board      entity.Board
	status     string
	vsComputer bool
}

func newScreen(out *termenv.Output, vsComputer bool) *screen {
	return &screen{out: out, vsComputer: vsComputer}
}

func (that *screen) OnMarkPlaced(index int, mark entity.Mark) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.board[index] = mark
	that.status = ""
	that.drawLocked()
}

func (that *screen) OnGameEnded(outcome entity.Outcome) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if outcome.Draw {
		that.status = "Draw!"
	} else {
		that.status = that.mark(outcome.Winner) + " wins!"
	}
	that.drawLocked()
}

func (that *screen) OnReset() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.board = entity.Board{}
	that.status = "New game"
	that.drawLocked()
}

var _ game.Listener = (*screen)(nil)

func (that *screen) setMode(vsComputer bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.vsComputer = vsComputer
	that.writeLocked("mode: " + that.modeLocked())
}

func (that *screen) notice(text string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.writeLocked(that.out.String(text).Foreground(that.out.Color("3")).String())
}

func (that *screen) draw() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.drawLocked()
}

func (that *screen) prompt() {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, _ = fmt.Fprint(that.out, "> ")
}

func (that *screen) drawLocked() {
	var b strings.Builder

	b.WriteString("\n")
	for row := range 3 {
		cells := make([]string, 3)
		for col := range 3 {
			cells[col] = that.cell(row*3 + col)
		}

		b.WriteString(" " + strings.Join(cells, " │ ") + "\n")
		if row < 2 {
			b.WriteString(rowSeparator + "\n")
		}
	}

	b.WriteString(that.out.String("mode: " + that.modeLocked()).Faint().String() + "\n")
	if that.status != "" {
		b.WriteString(that.out.String(that.status).Bold().String() + "\n")
	}

	_, _ = fmt.Fprint(that.out, b.String())
}

func (that *screen) writeLocked(line string) {
	_, _ = fmt.Fprintln(that.out, line)
}

func (that *screen) modeLocked() string {
	if that.vsComputer {
		return "against the computer"
	}

	return "two players"
}

func (that *screen) cell(index int) string {
	if that.board[index] == entity.Empty {
		return that.out.String(strconv.Itoa(index + 1)).Faint().String()
	}

	return that.mark(that.board[index])
}

func (that *screen) mark(mark entity.Mark) string {
	color := "1"
	if mark == entity.O {
		color = "4"
	}

	return that.out.String(mark.String()).Foreground(that.out.Color(color)).Bold().String()
}
