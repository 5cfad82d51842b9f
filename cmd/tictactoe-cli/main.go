package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/rocketscienceinc/tictactoe-solo/internal/game"
	"github.com/rocketscienceinc/tictactoe-solo/internal/minimax"
)

func main() {
	twoPlayers := flag.Bool("two-players", false, "play hot-seat instead of against the computer")
	restartDelay := flag.Duration("restart-delay", game.DefaultRestartDelay, "pause before a finished game starts over")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	settings := game.Settings{
		VsComputer:   !*twoPlayers,
		RestartDelay: *restartDelay,
	}

	if err := run(ctx, logger, os.Stdin, termenv.NewOutput(os.Stdout), settings); err != nil {
		fmt.Fprintf(os.Stderr, "tictactoe: %v\n", err)
		os.Exit(1)
	}
}

// run plays one session until the input ends, q is entered or ctx is canceled.
func run(ctx context.Context, logger *slog.Logger, in io.Reader, out *termenv.Output, settings game.Settings) error {
	ctx, cancel := context.WithCancel(ctx)

	scr := newScreen(out, settings.VsComputer)
	loop := game.NewLoop(logger, nil)
	session := game.NewSession(uuid.NewString(), settings, game.Deps{
		Searcher:  minimax.New(minimax.NewCache()),
		Scheduler: loop,
		Listener:  scr,
		Logger:    logger,
	})

	go loop.Run(ctx, session)
	defer func() {
		cancel()
		<-loop.Done()
	}()

	lines, readErr := readLines(ctx, in)

	scr.draw()
	for {
		scr.prompt()

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}

		if !ok {
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		quit, err := handleInput(ctx, loop, scr, strings.ToLower(strings.TrimSpace(line)))
		if err != nil || quit {
			return err
		}
	}
}

func handleInput(ctx context.Context, loop *game.Loop, scr *screen, input string) (bool, error) {
	switch input {
	case "":
		return false, nil
	case "q", "quit":
		return true, nil
	case "r":
		return false, loop.Exec(ctx, func(s *game.Session) { s.RestartRequested() })
	case "m":
		var vsComputer bool
		err := loop.Exec(ctx, func(s *game.Session) {
			s.ModeToggleRequested()
			vsComputer = s.VsComputer()
		})
		scr.setMode(vsComputer)

		return false, err
	}

	cell, err := strconv.Atoi(input)
	if err != nil || cell < 1 || cell > 9 {
		scr.notice("enter a cell 1-9, r to restart, m to switch mode or q to quit")
		return false, nil
	}

	var accepted bool
	if err = loop.Exec(ctx, func(s *game.Session) { accepted = s.CellActivated(cell - 1) }); err != nil {
		return false, err
	}

	if !accepted {
		scr.notice(fmt.Sprintf("cell %d is not available", cell))
	}

	return false, nil
}

func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("failed to read input: %w", err)
		}
	}()

	return lines, errCh
}
