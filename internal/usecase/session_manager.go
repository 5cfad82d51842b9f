package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
	"github.com/rocketscienceinc/tictactoe-solo/internal/game"
)

const persistTimeout = 2 * time.Second

type sessionRepo interface {
	CreateOrUpdate(ctx context.Context, snapshot *entity.SessionSnapshot) error
	GetByID(ctx context.Context, id string) (*entity.SessionSnapshot, error)
	DeleteByID(ctx context.Context, id string) error
}

type liveSession struct {
	id     string
	loop   *game.Loop
	hub    *hub
	cancel context.CancelFunc
	refs   int
}

// SessionManager keeps one event loop per session that has an open handle. Snapshots are saved
// after every command, so a session can be dropped from memory and restored later.
type SessionManager struct {
	root     context.Context
	logger   *slog.Logger
	repo     sessionRepo
	searcher game.Searcher
	settings game.Settings

	mu   sync.Mutex
	live map[string]*liveSession
	// sessions whose loop is still winding down after the last handle closed
	stopping map[string]*liveSession
}

// NewSessionManager creates a manager whose session loops stop when ctx is canceled.
func NewSessionManager(ctx context.Context, logger *slog.Logger, repo sessionRepo, searcher game.Searcher, settings game.Settings) *SessionManager {
	return &SessionManager{
		root:     ctx,
		logger:   logger.With("component", "session_manager"),
		repo:     repo,
		searcher: searcher,
		settings: settings,
		live:     make(map[string]*liveSession),
		stopping: make(map[string]*liveSession),
	}
}

// Open returns a handle to the session with the given id, restoring or creating it as needed.
// An empty id creates a new session. Every handle must be closed.
func (that *SessionManager) Open(ctx context.Context, sessionID string) (*Handle, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	that.mu.Lock()
	if live, ok := that.live[sessionID]; ok {
		live.refs++
		that.mu.Unlock()

		return &Handle{manager: that, live: live}, nil
	}
	stopping := that.stopping[sessionID]
	that.mu.Unlock()

	// a loop that is shutting down may still be writing its last snapshot
	if stopping != nil {
		select {
		case <-stopping.loop.Done():
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to load session: %w", ctx.Err())
		}
	}

	snapshot, err := that.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	// another Open may have started the session while this one was loading
	live, ok := that.live[sessionID]
	if !ok {
		live = that.start(sessionID, snapshot)
		that.live[sessionID] = live
	}
	live.refs++

	return &Handle{manager: that, live: live}, nil
}

// load reads a stored snapshot. A missing session yields nil, and a snapshot whose board cannot
// occur in a game is deleted so the id starts over.
func (that *SessionManager) load(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	snapshot, err := that.repo.GetByID(ctx, sessionID)
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err = game.CheckSnapshot(snapshot); err == nil {
		return snapshot, nil
	}

	that.logger.Warn("discarding corrupt session", "sessionID", sessionID, "error", err)

	if err = that.repo.DeleteByID(ctx, sessionID); err != nil && !errors.Is(err, apperror.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to delete corrupt session: %w", err)
	}

	return nil, nil
}

// Snapshot returns the current state of a session, live or stored.
func (that *SessionManager) Snapshot(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	that.mu.Lock()
	live, ok := that.live[sessionID]
	that.mu.Unlock()

	if ok {
		var snapshot *entity.SessionSnapshot
		err := live.loop.Do(ctx, func(session *game.Session) {
			snapshot = session.Snapshot()
		})
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, apperror.ErrLoopStopped) {
			return nil, fmt.Errorf("failed to read live session: %w", err)
		}
	}

	snapshot, err := that.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return snapshot, nil
}

// LiveSessions returns the number of sessions currently held in memory.
func (that *SessionManager) LiveSessions() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.live)
}

// Close stops every live session and waits for their loops to exit.
func (that *SessionManager) Close() {
	that.mu.Lock()
	stopped := make([]*liveSession, 0, len(that.live))
	for _, live := range that.live {
		that.stopLocked(live)
		stopped = append(stopped, live)
	}
	that.mu.Unlock()

	for _, live := range stopped {
		that.finish(live)
	}
}

func (that *SessionManager) start(sessionID string, snapshot *entity.SessionSnapshot) *liveSession {
	log := that.logger.With("sessionID", sessionID)

	loopCtx, cancel := context.WithCancel(that.root)
	h := newHub(log)
	loop := game.NewLoop(that.logger, that.persist)

	deps := game.Deps{
		Searcher:  that.searcher,
		Scheduler: loop,
		Listener:  h.listener(),
		Logger:    that.logger,
	}

	var session *game.Session
	if snapshot != nil {
		restored, err := game.RestoreSession(snapshot, that.settings, deps)
		if err != nil {
			log.Warn("failed to restore session", "error", err)
		} else {
			session = restored
			log.Info("session restored", "state", session.State().String())
		}
	}

	if session == nil {
		session = game.NewSession(sessionID, that.settings, deps)
		log.Info("session created", "vsComputer", session.VsComputer())
	}

	go loop.Run(loopCtx, session)

	// the first command also stores the initial snapshot
	if err := loop.Post(func(s *game.Session) { s.Resume() }); err != nil {
		log.Error("failed to resume session", "error", err)
	}

	return &liveSession{
		id:     sessionID,
		loop:   loop,
		hub:    h,
		cancel: cancel,
	}
}

// persist runs on the session loop after every command.
func (that *SessionManager) persist(session *game.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := that.repo.CreateOrUpdate(ctx, session.Snapshot()); err != nil {
		that.logger.Error("failed to persist session", "sessionID", session.ID(), "error", err)
	}
}

func (that *SessionManager) release(live *liveSession) {
	that.mu.Lock()

	live.refs--
	if live.refs > 0 {
		that.mu.Unlock()
		return
	}

	current, ok := that.live[live.id]
	if !ok || current != live {
		that.mu.Unlock()
		return
	}

	that.stopLocked(live)
	that.mu.Unlock()

	that.finish(live)
}

// stopLocked unloads a session and cancels its loop. The caller must hold mu and call finish
// after releasing it.
func (that *SessionManager) stopLocked(live *liveSession) {
	delete(that.live, live.id)
	that.stopping[live.id] = live
	live.cancel()
}

// finish waits for a stopped loop so its last snapshot is stored, then closes the subscribers.
func (that *SessionManager) finish(live *liveSession) {
	<-live.loop.Done()
	live.hub.closeAll()

	that.mu.Lock()
	if that.stopping[live.id] == live {
		delete(that.stopping, live.id)
	}
	that.mu.Unlock()

	that.logger.Debug("session unloaded", "sessionID", live.id)
}

// Handle is one user of a live session, typically a websocket connection.
type Handle struct {
	manager *SessionManager
	live    *liveSession

	closeOnce sync.Once
}

func (that *Handle) ID() string {
	return that.live.id
}

// Subscribe returns the session's events. The channel is closed by the returned function, when the
// subscriber falls behind, or when the session is unloaded.
func (that *Handle) Subscribe() (<-chan game.Event, func()) {
	sub := that.live.hub.subscribe()

	return sub.ch, func() { that.live.hub.unsubscribe(sub) }
}

func (that *Handle) CellActivated(index int) error {
	return that.post(func(s *game.Session) { s.CellActivated(index) })
}

func (that *Handle) RestartRequested() error {
	return that.post(func(s *game.Session) { s.RestartRequested() })
}

func (that *Handle) ModeToggleRequested() error {
	return that.post(func(s *game.Session) { s.ModeToggleRequested() })
}

func (that *Handle) Snapshot(ctx context.Context) (*entity.SessionSnapshot, error) {
	var snapshot *entity.SessionSnapshot

	if err := that.live.loop.Do(ctx, func(s *game.Session) { snapshot = s.Snapshot() }); err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	return snapshot, nil
}

// SnapshotSince reads the session state together with the number of events already queued on
// events, a channel from Subscribe. Those queued events are reflected in the snapshot.
func (that *Handle) SnapshotSince(ctx context.Context, events <-chan game.Event) (*entity.SessionSnapshot, int, error) {
	var (
		snapshot *entity.SessionSnapshot
		queued   int
	)

	err := that.live.loop.Do(ctx, func(s *game.Session) {
		queued = len(events)
		snapshot = s.Snapshot()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read session: %w", err)
	}

	return snapshot, queued, nil
}

// Close releases the handle; the session is unloaded when its last handle is closed.
func (that *Handle) Close() {
	that.closeOnce.Do(func() { that.manager.release(that.live) })
}

func (that *Handle) post(fn func(*game.Session)) error {
	if err := that.live.loop.Post(fn); err != nil {
		return fmt.Errorf("failed to post to session %s: %w", that.live.id, err)
	}

	return nil
}
