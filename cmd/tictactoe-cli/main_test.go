package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/rocketscienceinc/tictactoe-solo/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func play(t *testing.T, input string, settings game.Settings) string {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	out := termenv.NewOutput(&buf, termenv.WithProfile(termenv.Ascii))

	require.NoError(t, run(context.Background(), logger, strings.NewReader(input), out, settings))

	return buf.String()
}

func TestRun_AgainstComputer(t *testing.T) {
	// Given: a session against the computer
	settings := game.Settings{VsComputer: true, RestartDelay: time.Hour}

	// When: X takes the center and quits
	output := play(t, "5\nq\n", settings)

	// Then: the computer answered in the corner
	assert.Contains(t, output, " O │ 2 │ 3\n")
	assert.Contains(t, output, " 4 │ X │ 6\n")
	assert.Contains(t, output, "mode: against the computer")
}

func TestRun_TwoPlayersWin(t *testing.T) {
	// Given: a hot-seat session
	settings := game.Settings{RestartDelay: time.Hour}

	// When: X completes the top row
	output := play(t, "1\n4\n2\n5\n3\n", settings)

	// Then: the win is announced
	assert.Contains(t, output, " X │ X │ X\n")
	assert.Contains(t, output, "X wins!")
}

func TestRun_Notices(t *testing.T) {
	settings := game.Settings{RestartDelay: time.Hour}

	output := play(t, "1\n1\nten\n10\n\nm\nr\n", settings)

	assert.Contains(t, output, "cell 1 is not available")
	assert.Equal(t, 2, strings.Count(output, "enter a cell 1-9"))
	assert.Contains(t, output, "mode: against the computer")
	assert.Contains(t, output, "New game")
}

func TestRun_StopsOnCancel(t *testing.T) {
	// Given: input that never ends
	reader, writer, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writer.Close()
		_ = reader.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	out := termenv.NewOutput(&bytes.Buffer{}, termenv.WithProfile(termenv.Ascii))

	done := make(chan error, 1)
	go func() { done <- run(ctx, logger, reader, out, game.Settings{}) }()

	// When: the context is canceled
	cancel()

	// Then: run returns
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
