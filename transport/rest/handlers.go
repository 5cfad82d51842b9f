package rest

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
	"github.com/rocketscienceinc/tictactoe-solo/internal/minimax"
	"github.com/rocketscienceinc/tictactoe-solo/transport/websocket"
)

const (
	maxRequestBody   = 1 << 10
	sessionCookieTTL = 24 * time.Hour
)

//go:embed static/index.html
var indexPage []byte

type sessionReader interface {
	Snapshot(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error)
}

type moveSearcher interface {
	BestMove(board entity.Board, side entity.Mark) (minimax.Result, error)
}

type SearchRequest struct {
	Board string `json:"board"`
	Side  string `json:"side"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	logger   *slog.Logger
	sessions sessionReader
	searcher moveSearcher
}

func newHandlers(logger *slog.Logger, sessions sessionReader, searcher moveSearcher) *handlers {
	return &handlers{
		logger:   logger.With("component", "rest"),
		sessions: sessions,
		searcher: searcher,
	}
}

// index serves the board page and makes sure the browser carries a session id.
func (that *handlers) index(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(websocket.SessionCookie); err != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     websocket.SessionCookie,
			Value:    uuid.NewString(),
			Path:     "/",
			Expires:  time.Now().Add(sessionCookieTTL),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

// search returns the best move for a side on any board.
func (that *handlers) search(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "search")

	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	board, err := entity.ParseBoard(req.Board)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side, err := entity.ParseMark(req.Side)
	if err != nil || !side.IsSide() {
		writeError(w, http.StatusBadRequest, "side must be X or O")
		return
	}

	turn, err := board.Turn()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if side != turn {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("side must be %s, the side to move", turn))
		return
	}

	result, err := that.searcher.BestMove(board, side)
	if err != nil {
		if errors.Is(err, apperror.ErrTerminalBoard) {
			writeError(w, http.StatusUnprocessableEntity, "board is already finished")
			return
		}

		log.Error("search failed", "board", req.Board, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// session returns the current snapshot of a session.
func (that *handlers) session(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "session")
	id := chi.URLParam(r, "id")

	snapshot, err := that.sessions.Snapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperror.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		log.Error("failed to get session", "sessionID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
