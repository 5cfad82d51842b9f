package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rocketscienceinc/tictactoe-solo/internal/usecase"
)

// SessionCookie carries the session id between the page and the websocket.
const SessionCookie = "tictactoe_session"

const (
	sessionQueryParam = "session"
	sessionCookieTTL  = 24 * time.Hour
	outboxSize        = 16
	writeTimeout      = 10 * time.Second
)

type sessionOpener interface {
	Open(ctx context.Context, sessionID string) (*usecase.Handle, error)
}

type handlerFunc func(ctx context.Context, conn *connection, message *Message) error

type Server struct {
	ctx      context.Context
	logger   *slog.Logger
	sessions sessionOpener

	handlers map[string]handlerFunc
}

// New returns the websocket endpoint. Open connections are closed when ctx is canceled.
func New(ctx context.Context, logger *slog.Logger, sessions sessionOpener) *Server {
	server := &Server{
		ctx:      ctx,
		logger:   logger.With("component", "websocket"),
		sessions: sessions,

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionCellActivate] = server.handleCellActivate
	server.handlers[actionGameRestart] = server.handleRestart
	server.handlers[actionModeToggle] = server.handleModeToggle
	server.handlers[actionSessionState] = server.handleSessionState

	return server
}

// ServeHTTP upgrades the request and attaches the connection to its session.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeConnection")

	if !isUpgradeRequest(req) {
		http.Error(writer, "not a websocket upgrade", http.StatusBadRequest)
		return
	}

	requestedID := sessionIDFromRequest(req)

	session, err := that.sessions.Open(req.Context(), requestedID)
	if err != nil {
		log.Error("failed to open session", "sessionID", requestedID, "error", err)
		http.Error(writer, "failed to open session", http.StatusInternalServerError)
		return
	}
	defer session.Close()

	hijacker, ok := writer.(http.Hijacker)
	if !ok {
		log.Error("web server does not support hijacking", "error", http.StatusText(http.StatusInternalServerError))
		http.Error(writer, "websocket is not supported", http.StatusInternalServerError)
		return
	}

	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		log.Error("failed to hijack connection", "error", err)
		return
	}
	defer netConn.Close()

	// clear the deadlines the http server set for the request
	if err = netConn.SetDeadline(time.Time{}); err != nil {
		log.Error("failed to reset deadline", "error", err)
		return
	}

	var cookie *http.Cookie
	if session.ID() != requestedID {
		cookie = newSessionCookie(session.ID())
	}

	if err = writeHandshake(bufrw.Writer, req.Header.Get("Sec-WebSocket-Key"), cookie); err != nil {
		log.Error("failed to write handshake", "error", err)
		return
	}

	log = that.logger.With("sessionID", session.ID())
	log.Info("WebSocket connection established")

	conn := newConnection(log, netConn, bufrw, session)
	if err = conn.serve(that.ctx, that.dispatch); err != nil {
		log.Info("WebSocket connection closed", "reason", err)
		return
	}

	log.Info("WebSocket connection closed")
}

// dispatch routes one text message to its handler.
func (that *Server) dispatch(ctx context.Context, conn *connection, payload []byte) {
	log := conn.logger.With("method", "dispatch")

	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		log.Debug("failed to unmarshal message", "error", err)
		conn.sendError("malformed message")
		return
	}

	handler, ok := that.handlers[message.Action]
	if !ok {
		log.Debug("unknown action", "action", message.Action)
		conn.sendError(fmt.Sprintf("unknown action %q", message.Action))
		return
	}

	if err := handler(ctx, conn, &message); err != nil {
		log.Error("error processing message", "action", message.Action, "error", err)
		conn.sendError(err.Error())
	}
}

func isUpgradeRequest(req *http.Request) bool {
	return req.Method == http.MethodGet &&
		strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		headerContainsToken(req.Header.Get("Connection"), "upgrade") &&
		req.Header.Get("Sec-WebSocket-Key") != ""
}

func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}

	return false
}

// sessionIDFromRequest prefers an explicit query parameter over the cookie.
func sessionIDFromRequest(req *http.Request) string {
	if id := req.URL.Query().Get(sessionQueryParam); id != "" {
		return id
	}

	if cookie, err := req.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}

	return ""
}

func newSessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func writeHandshake(writer *bufio.Writer, key string, cookie *http.Cookie) error {
	var response strings.Builder

	response.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	response.WriteString("Upgrade: websocket\r\n")
	response.WriteString("Connection: Upgrade\r\n")
	response.WriteString("Sec-WebSocket-Accept: " + GenerateAcceptKey(key) + "\r\n")

	if cookie != nil {
		response.WriteString("Set-Cookie: " + cookie.String() + "\r\n")
	}

	response.WriteString("\r\n")

	if _, err := writer.WriteString(response.String()); err != nil {
		return fmt.Errorf("failed to write handshake: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush handshake: %w", err)
	}

	return nil
}
