package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

func (that *Server) handleCellActivate(_ context.Context, conn *connection, message *Message) error {
	var payload CellPayload

	if err := json.Unmarshal(message.Payload, &payload); err != nil || payload.Index == nil {
		conn.sendError("cell:activate requires an index")
		return nil
	}

	if err := conn.session.CellActivated(*payload.Index); err != nil {
		return fmt.Errorf("failed to activate cell: %w", err)
	}

	return nil
}

func (that *Server) handleRestart(_ context.Context, conn *connection, _ *Message) error {
	if err := conn.session.RestartRequested(); err != nil {
		return fmt.Errorf("failed to restart game: %w", err)
	}

	return nil
}

func (that *Server) handleModeToggle(_ context.Context, conn *connection, _ *Message) error {
	if err := conn.session.ModeToggleRequested(); err != nil {
		return fmt.Errorf("failed to toggle mode: %w", err)
	}

	return nil
}

func (that *Server) handleSessionState(_ context.Context, conn *connection, _ *Message) error {
	conn.requestSnapshot()
	return nil
}
