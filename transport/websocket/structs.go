package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
)

const (
	actionCellActivate = "cell:activate"
	actionGameRestart  = "game:restart"
	actionModeToggle   = "mode:toggle"
	actionSessionState = "session:state"

	actionMarkPlaced = "mark:placed"
	actionGameEnded  = "game:ended"
	actionGameReset  = "game:reset"
	actionError      = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CellPayload struct {
	Index *int `json:"index"`
}

type MarkPlacedPayload struct {
	Index int         `json:"index"`
	Mark  entity.Mark `json:"mark"`
}

type GameEndedPayload struct {
	Outcome entity.Outcome `json:"outcome"`
}

type SessionStatePayload struct {
	Snapshot *entity.SessionSnapshot `json:"snapshot"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// frame represents a WebSocket frame and its metadata.
type frame struct {
	isFin   bool
	opCode  byte
	length  uint64
	mask    []byte // set only on frames written by a client
	payload []byte
}

func (that frame) isControl() bool {
	return that.opCode >= opClose
}
