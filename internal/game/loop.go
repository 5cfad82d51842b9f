package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
)

const inboxSize = 16

type command struct {
	fn       func(*Session)
	readOnly bool
}

// Loop owns a Session and runs every command and timer callback for it on one goroutine, one at a
// time. It also serves as the Session's Scheduler.
type Loop struct {
	logger    *slog.Logger
	inbox     chan command
	done      chan struct{}
	afterEach func(*Session)
}

// NewLoop creates a loop. afterEach, if set, runs after every command that may have changed the
// session.
func NewLoop(logger *slog.Logger, afterEach func(*Session)) *Loop {
	return &Loop{
		logger:    logger.With("component", "loop"),
		inbox:     make(chan command, inboxSize),
		done:      make(chan struct{}),
		afterEach: afterEach,
	}
}

// Run processes commands until ctx is canceled.
func (that *Loop) Run(ctx context.Context, session *Session) {
	defer close(that.done)

	log := that.logger.With("sessionID", session.ID())
	log.Debug("loop started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("loop stopped", "reason", ctx.Err())
			return
		case cmd := <-that.inbox:
			cmd.fn(session)
			if !cmd.readOnly && that.afterEach != nil {
				that.afterEach(session)
			}
		}
	}
}

// Post enqueues fn without waiting for it to run.
func (that *Loop) Post(fn func(*Session)) error {
	return that.enqueue(command{fn: fn})
}

// Do runs fn on the loop goroutine and waits for it. fn must not mutate the session.
func (that *Loop) Do(ctx context.Context, fn func(*Session)) error {
	return that.wait(ctx, fn, true)
}

// Exec runs fn on the loop goroutine and waits for it, like a Post the caller can observe.
func (that *Loop) Exec(ctx context.Context, fn func(*Session)) error {
	return that.wait(ctx, fn, false)
}

func (that *Loop) wait(ctx context.Context, fn func(*Session), readOnly bool) error {
	finished := make(chan struct{})

	err := that.enqueue(command{
		fn: func(session *Session) {
			defer close(finished)
			fn(session)
		},
		readOnly: readOnly,
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-that.done:
		return apperror.ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After implements Scheduler. The callback is posted back into the loop, so it never runs
// concurrently with other commands. Callbacks that fire after the loop stopped are dropped.
func (that *Loop) After(delay time.Duration, fn func()) {
	time.AfterFunc(delay, func() {
		if err := that.Post(func(*Session) { fn() }); err != nil {
			that.logger.Debug("scheduled callback dropped", "error", err)
		}
	})
}

// Done is closed when Run returns.
func (that *Loop) Done() <-chan struct{} {
	return that.done
}

func (that *Loop) enqueue(cmd command) error {
	select {
	case <-that.done:
		return apperror.ErrLoopStopped
	default:
	}

	select {
	case that.inbox <- cmd:
		return nil
	case <-that.done:
		return apperror.ErrLoopStopped
	}
}
