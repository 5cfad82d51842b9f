package websocket

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/rocketscienceinc/tictactoe-solo/internal/game"
	"github.com/rocketscienceinc/tictactoe-solo/internal/usecase"
)

const (
	closeGoingAway     uint16 = 1001
	closeProtocolError uint16 = 1002
)

// connection owns one upgraded socket. Only the writer goroutine writes to it; the reader goroutine
// hands its replies over through outbox and asks for snapshots through resync.
type connection struct {
	logger  *slog.Logger
	conn    net.Conn
	rw      *bufio.ReadWriter
	session *usecase.Handle

	outbox chan frame
	resync chan struct{}
	done   chan struct{}
}

func newConnection(logger *slog.Logger, conn net.Conn, rw *bufio.ReadWriter, session *usecase.Handle) *connection {
	return &connection{
		logger:  logger,
		conn:    conn,
		rw:      rw,
		session: session,
		outbox:  make(chan frame, outboxSize),
		resync:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// serve blocks until the client goes away, the session is unloaded or ctx is canceled.
func (that *connection) serve(ctx context.Context, dispatch func(context.Context, *connection, []byte)) error {
	ctx, cancel := context.WithCancel(ctx)

	events, unsubscribe := that.session.Subscribe()
	defer unsubscribe()

	go that.writeLoop(ctx, events)
	defer func() {
		cancel()
		<-that.done
	}()

	return that.readLoop(ctx, dispatch)
}

func (that *connection) readLoop(ctx context.Context, dispatch func(context.Context, *connection, []byte)) error {
	reader := newFrameReader(that.rw.Reader, true)

	for {
		current, err := reader.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			if isProtocolError(err) {
				that.send(newControlFrame(opClose, closePayload(closeProtocolError)))
				<-that.done
			}

			return err
		}

		switch current.opCode {
		case opText:
			dispatch(ctx, that, current.payload)
		case opBinary:
			that.sendError("binary messages are not supported")
		case opPing:
			that.send(newControlFrame(opPong, current.payload))
		case opPong:
		case opClose:
			that.send(newControlFrame(opClose, current.payload))
			return nil
		default:
			return fmt.Errorf("unknown opcode %#x", current.opCode)
		}
	}
}

// writeLoop sends the session snapshot first, then events, replies and requested snapshots in the
// order they are produced.
func (that *connection) writeLoop(ctx context.Context, events <-chan game.Event) {
	log := that.logger.With("method", "writeLoop")

	defer close(that.done)
	// closing the socket also unblocks the reader
	defer that.conn.Close()

	if err := that.writeSnapshot(ctx, events); err != nil {
		log.Debug("failed to write snapshot", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = that.write(newControlFrame(opClose, closePayload(closeGoingAway)))
			return
		case event, ok := <-events:
			if !ok {
				_ = that.write(newControlFrame(opClose, closePayload(closeGoingAway)))
				return
			}

			message, err := eventFrame(event)
			if err != nil {
				log.Error("failed to encode event", "event", event.Kind, "error", err)
				continue
			}

			if err = that.write(message); err != nil {
				log.Debug("failed to write event", "error", err)
				return
			}
		case <-that.resync:
			if err := that.writeSnapshot(ctx, events); err != nil {
				log.Debug("failed to write snapshot", "error", err)
				return
			}
		case message := <-that.outbox:
			if err := that.write(message); err != nil {
				log.Debug("failed to write message", "error", err)
				return
			}

			if message.opCode == opClose {
				return
			}
		}
	}
}

// writeSnapshot writes the current session state. Events queued before it was taken are already
// part of it and are skipped, so the client never applies an older event on top of a newer state.
func (that *connection) writeSnapshot(ctx context.Context, events <-chan game.Event) error {
	snapshot, queued, err := that.session.SnapshotSince(ctx, events)
	if err != nil {
		return fmt.Errorf("failed to get snapshot: %w", err)
	}

	for range queued {
		<-events
	}

	message, err := encodeMessage(actionSessionState, SessionStatePayload{Snapshot: snapshot})
	if err != nil {
		return err
	}

	return that.write(message)
}

func (that *connection) write(message frame) error {
	if err := that.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	return writeFrame(that.rw.Writer, message)
}

// send queues a frame for the writer; it is dropped once the writer has stopped.
func (that *connection) send(message frame) {
	select {
	case that.outbox <- message:
	case <-that.done:
	}
}

func (that *connection) sendMessage(action string, payload any) error {
	message, err := encodeMessage(action, payload)
	if err != nil {
		return err
	}

	that.send(message)

	return nil
}

func (that *connection) sendError(text string) {
	if err := that.sendMessage(actionError, ErrorPayload{Message: text}); err != nil {
		that.logger.Error("failed to send error", "error", err)
	}
}

// requestSnapshot asks the writer for a fresh snapshot. Requests made before it gets to one are
// merged.
func (that *connection) requestSnapshot() {
	select {
	case that.resync <- struct{}{}:
	default:
	}
}

func encodeMessage(action string, payload any) (frame, error) {
	message := Message{Action: action}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return frame{}, fmt.Errorf("failed to marshal payload: %w", err)
		}

		message.Payload = raw
	}

	data, err := json.Marshal(message)
	if err != nil {
		return frame{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	return newTextFrame(data), nil
}

func eventFrame(event game.Event) (frame, error) {
	switch event.Kind {
	case game.EventMarkPlaced:
		return encodeMessage(actionMarkPlaced, MarkPlacedPayload{Index: event.Index, Mark: event.Mark})
	case game.EventGameEnded:
		if event.Outcome == nil {
			return frame{}, fmt.Errorf("%s event without outcome", event.Kind)
		}

		return encodeMessage(actionGameEnded, GameEndedPayload{Outcome: *event.Outcome})
	case game.EventReset:
		return encodeMessage(actionGameReset, nil)
	default:
		return frame{}, fmt.Errorf("unknown event %q", event.Kind)
	}
}

func closePayload(code uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, code)
}
