package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
	"github.com/rocketscienceinc/tictactoe-solo/internal/game"
	"github.com/rocketscienceinc/tictactoe-solo/internal/minimax"
	"github.com/rocketscienceinc/tictactoe-solo/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errRedisDown = errors.New("redis down")

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) CreateOrUpdate(ctx context.Context, snapshot *entity.SessionSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*entity.SessionSnapshot, error) {
	args := m.Called(ctx, id)

	snapshot, _ := args.Get(0).(*entity.SessionSnapshot)

	return snapshot, args.Error(1)
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newTestManager(t *testing.T, repo sessionRepo, settings game.Settings) *SessionManager {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	manager := NewSessionManager(ctx, logger, repo, minimax.New(minimax.NewCache()), settings)
	t.Cleanup(func() {
		manager.Close()
		cancel()
	})

	return manager
}

func nextEvent(t *testing.T, events <-chan game.Event) game.Event {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "events channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return game.Event{}
	}
}

func TestSessionManager_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates a new session when none is stored", func(t *testing.T) {
		// Given: a repository without the session
		repo := &mockSessionRepo{}
		repo.On("GetByID", mock.Anything, "fresh").Return(nil, apperror.ErrSessionNotFound).Once()
		repo.On("CreateOrUpdate", mock.Anything, mock.AnythingOfType("*entity.SessionSnapshot")).Return(nil)
		manager := newTestManager(t, repo, game.Settings{VsComputer: true})

		// When: the session is opened and X plays the center
		handle, err := manager.Open(ctx, "fresh")
		require.NoError(t, err)
		defer handle.Close()

		events, unsubscribe := handle.Subscribe()
		defer unsubscribe()
		require.NoError(t, handle.CellActivated(4))

		// Then: the human and the computer moves are broadcast
		assert.Equal(t, game.Event{Kind: game.EventMarkPlaced, Index: 4, Mark: entity.X}, nextEvent(t, events))
		assert.Equal(t, game.Event{Kind: game.EventMarkPlaced, Index: 0, Mark: entity.O}, nextEvent(t, events))

		snapshot, err := handle.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, "O___X____", snapshot.Board.String())
		assert.True(t, snapshot.VsComputer)
		repo.AssertExpectations(t)
	})

	t.Run("Restores a stored session", func(t *testing.T) {
		// Given: a stored two player session
		stored := &entity.SessionSnapshot{
			ID:    "stored",
			Board: entity.Board{entity.X, entity.Empty, entity.Empty, entity.Empty, entity.O},
			Turn:  entity.X,
			State: entity.StateAwaitingHumanMove,
		}
		repo := &mockSessionRepo{}
		repo.On("GetByID", mock.Anything, "stored").Return(stored, nil).Once()
		repo.On("CreateOrUpdate", mock.Anything, mock.Anything).Return(nil)
		manager := newTestManager(t, repo, game.Settings{})

		// When: it is opened
		handle, err := manager.Open(ctx, "stored")
		require.NoError(t, err)
		defer handle.Close()

		// Then: the board is the stored one
		snapshot, err := handle.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, "X___O____", snapshot.Board.String())
		assert.Equal(t, entity.X, snapshot.Turn)
	})

	t.Run("Returns error if repository fails", func(t *testing.T) {
		// Given: a repository that is down
		repo := &mockSessionRepo{}
		repo.On("GetByID", mock.Anything, "broken").Return(nil, errRedisDown).Once()
		manager := newTestManager(t, repo, game.Settings{})

		// When: opening
		handle, err := manager.Open(ctx, "broken")

		// Then: the error is wrapped and nothing is loaded
		require.ErrorIs(t, err, errRedisDown)
		assert.Nil(t, handle)
		assert.Zero(t, manager.LiveSessions())
	})

	t.Run("Corrupt stored session is deleted and started over", func(t *testing.T) {
		// Given: a stored board where X moved three times and O never
		stored := &entity.SessionSnapshot{
			ID:    "corrupt",
			Board: entity.Board{entity.X, entity.X, entity.Empty, entity.X},
			Turn:  entity.O,
			State: entity.StateAwaitingHumanMove,
		}
		repo := &mockSessionRepo{}
		repo.On("GetByID", mock.Anything, "corrupt").Return(stored, nil).Once()
		repo.On("DeleteByID", mock.Anything, "corrupt").Return(nil).Once()
		repo.On("CreateOrUpdate", mock.Anything, mock.Anything).Return(nil)
		manager := newTestManager(t, repo, game.Settings{})

		// When: it is opened
		handle, err := manager.Open(ctx, "corrupt")
		require.NoError(t, err)
		defer handle.Close()

		// Then: the stored copy is removed and a fresh game runs under the same id
		snapshot, err := handle.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, "corrupt", snapshot.ID)
		assert.Equal(t, entity.Board{}, snapshot.Board)
		assert.Equal(t, entity.X, snapshot.Turn)
		repo.AssertCalled(t, "DeleteByID", mock.Anything, "corrupt")
	})

	t.Run("Returns error if a corrupt session cannot be deleted", func(t *testing.T) {
		// Given: a corrupt stored board and a failing delete
		stored := &entity.SessionSnapshot{
			ID:    "stuck",
			Board: entity.Board{entity.O},
		}
		repo := &mockSessionRepo{}
		repo.On("GetByID", mock.Anything, "stuck").Return(stored, nil).Once()
		repo.On("DeleteByID", mock.Anything, "stuck").Return(errRedisDown).Once()
		manager := newTestManager(t, repo, game.Settings{})

		// When: opening
		handle, err := manager.Open(ctx, "stuck")

		// Then: the delete error is returned and nothing is loaded
		require.ErrorIs(t, err, errRedisDown)
		assert.Nil(t, handle)
		assert.Zero(t, manager.LiveSessions())
	})

	t.Run("Empty id creates a new session id", func(t *testing.T) {
		repo := &mockSessionRepo{}
		repo.On("GetByID", mock.Anything, mock.AnythingOfType("string")).Return(nil, apperror.ErrSessionNotFound).Once()
		repo.On("CreateOrUpdate", mock.Anything, mock.Anything).Return(nil)
		manager := newTestManager(t, repo, game.Settings{})

		handle, err := manager.Open(ctx, "")
		require.NoError(t, err)
		defer handle.Close()

		assert.Len(t, handle.ID(), 36)
	})
}

func TestSessionManager_SharedAndReleased(t *testing.T) {
	ctx := context.Background()

	// Given: a memory repository and two handles on the same session
	repo := repository.NewMemorySessionRepository(time.Hour)
	manager := newTestManager(t, repo, game.Settings{})

	first, err := manager.Open(ctx, "shared")
	require.NoError(t, err)
	second, err := manager.Open(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 1, manager.LiveSessions())

	// When: one handle plays and both close
	require.NoError(t, first.CellActivated(2))
	_, err = second.Snapshot(ctx)
	require.NoError(t, err)

	first.Close()
	assert.Equal(t, 1, manager.LiveSessions())
	second.Close()

	// Then: the session is unloaded but still readable from the repository
	assert.Zero(t, manager.LiveSessions())

	snapshot, err := manager.Snapshot(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "__X______", snapshot.Board.String())

	// And: reopening continues the same game
	again, err := manager.Open(ctx, "shared")
	require.NoError(t, err)
	defer again.Close()

	snapshot, err = again.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.O, snapshot.Turn)
}

func TestSessionManager_SnapshotUnknown(t *testing.T) {
	manager := newTestManager(t, repository.NewMemorySessionRepository(time.Hour), game.Settings{})

	_, err := manager.Snapshot(context.Background(), "nope")

	require.ErrorIs(t, err, apperror.ErrSessionNotFound)
}

func TestSessionManager_DropsSlowSubscriber(t *testing.T) {
	ctx := context.Background()

	// Given: a subscriber that never reads
	manager := newTestManager(t, repository.NewMemorySessionRepository(time.Hour), game.Settings{})
	handle, err := manager.Open(ctx, "slow")
	require.NoError(t, err)
	defer handle.Close()

	events, unsubscribe := handle.Subscribe()
	defer unsubscribe()

	// When: more events than the buffer holds are produced
	for range subscriberBuffer + 8 {
		require.NoError(t, handle.RestartRequested())
	}
	_, err = handle.Snapshot(ctx)
	require.NoError(t, err)

	// Then: the channel was closed after the buffered events
	received := 0
	for range events {
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestSessionManager_OpenDoesNotBlockOnSlowLoad(t *testing.T) {
	ctx := context.Background()

	// Given: a repository whose load of one session hangs until released
	unblock := make(chan time.Time)
	repo := &mockSessionRepo{}
	repo.On("GetByID", mock.Anything, "slow").WaitUntil(unblock).Return(nil, apperror.ErrSessionNotFound).Once()
	repo.On("GetByID", mock.Anything, "fast").Return(nil, apperror.ErrSessionNotFound).Once()
	repo.On("CreateOrUpdate", mock.Anything, mock.Anything).Return(nil)
	manager := newTestManager(t, repo, game.Settings{})

	slowDone := make(chan error, 1)
	go func() {
		handle, err := manager.Open(ctx, "slow")
		if err == nil {
			handle.Close()
		}
		slowDone <- err
	}()

	// When: another session is opened while the first load is pending
	fastDone := make(chan error, 1)
	go func() {
		handle, err := manager.Open(ctx, "fast")
		if err == nil {
			defer handle.Close()
			assert.Equal(t, 1, manager.LiveSessions())
		}
		fastDone <- err
	}()

	// Then: it completes without waiting for the slow load
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("open blocked behind a pending load")
	}

	close(unblock)
	require.NoError(t, <-slowDone)
}

func TestSessionManager_ConcurrentOpenSharesSession(t *testing.T) {
	ctx := context.Background()

	// Given: a memory repository
	manager := newTestManager(t, repository.NewMemorySessionRepository(time.Hour), game.Settings{})

	// When: the same id is opened from several goroutines at once
	const openers = 8
	handles := make(chan *Handle, openers)
	for range openers {
		go func() {
			handle, err := manager.Open(ctx, "race")
			assert.NoError(t, err)
			handles <- handle
		}()
	}

	opened := make([]*Handle, 0, openers)
	for range openers {
		opened = append(opened, <-handles)
	}

	// Then: one loop serves every handle
	assert.Equal(t, 1, manager.LiveSessions())
	require.NoError(t, opened[0].CellActivated(4))

	snapshot, err := opened[openers-1].Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "____X____", snapshot.Board.String())

	for _, handle := range opened {
		handle.Close()
	}
	assert.Zero(t, manager.LiveSessions())
}

func TestSessionManager_ReopenWaitsForFinalSnapshot(t *testing.T) {
	ctx := context.Background()

	// Given: a session with a move played
	repo := repository.NewMemorySessionRepository(time.Hour)
	manager := newTestManager(t, repo, game.Settings{})

	handle, err := manager.Open(ctx, "again")
	require.NoError(t, err)
	require.NoError(t, handle.CellActivated(0))

	// When: it is closed and reopened straight away
	handle.Close()

	reopened, err := manager.Open(ctx, "again")
	require.NoError(t, err)
	defer reopened.Close()

	// Then: the reopened session continues from the stored move
	snapshot, err := reopened.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "X________", snapshot.Board.String())
	assert.Equal(t, entity.O, snapshot.Turn)
}

func TestHandle_SnapshotSince(t *testing.T) {
	ctx := context.Background()

	// Given: a subscriber that has not read the event of a played move
	manager := newTestManager(t, repository.NewMemorySessionRepository(time.Hour), game.Settings{})
	handle, err := manager.Open(ctx, "since")
	require.NoError(t, err)
	defer handle.Close()

	events, unsubscribe := handle.Subscribe()
	defer unsubscribe()
	require.NoError(t, handle.CellActivated(4))

	// When: a snapshot is taken against that subscription
	snapshot, queued, err := handle.SnapshotSince(ctx, events)

	// Then: the queued event is counted and already in the snapshot
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	assert.Equal(t, "____X____", snapshot.Board.String())
	assert.Equal(t, game.Event{Kind: game.EventMarkPlaced, Index: 4, Mark: entity.X}, nextEvent(t, events))
}
