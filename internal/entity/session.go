package entity

import "time"

const (
	StateAwaitingHumanMove = "awaiting_human_move"
	StateAwaitingAIMove    = "awaiting_ai_move"
	StateGameOver          = "game_over"
)

// SessionSnapshot is the serialisable state of one browser session.
type SessionSnapshot struct {
	ID         string    `json:"id"`
	Board      Board     `json:"board"`
	Turn       Mark      `json:"turn"`
	State      string    `json:"state"`
	Outcome    *Outcome  `json:"outcome,omitempty"`
	VsComputer bool      `json:"vs_computer"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (that *SessionSnapshot) IsGameOver() bool {
	return that.State == StateGameOver
}
