package usecase

import (
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-solo/internal/game"
)

const subscriberBuffer = 32

type subscriber struct {
	ch        chan game.Event
	closeOnce sync.Once
}

func (that *subscriber) close() {
	that.closeOnce.Do(func() { close(that.ch) })
}

// hub fans session events out to every connection watching the session. A subscriber that
// cannot keep up is dropped so the session loop never blocks.
type hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

func (that *hub) listener() game.Listener {
	return game.ListenerFunc(that.broadcast)
}

func (that *hub) subscribe() *subscriber {
	that.mu.Lock()
	defer that.mu.Unlock()

	sub := &subscriber{ch: make(chan game.Event, subscriberBuffer)}
	that.subs[sub] = struct{}{}

	return sub
}

func (that *hub) unsubscribe(sub *subscriber) {
	that.mu.Lock()
	delete(that.subs, sub)
	that.mu.Unlock()

	sub.close()
}

func (that *hub) broadcast(event game.Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for sub := range that.subs {
		select {
		case sub.ch <- event:
		default:
			that.logger.Warn("dropping slow subscriber", "event", event.Kind)
			delete(that.subs, sub)
			sub.close()
		}
	}
}

func (that *hub) closeAll() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for sub := range that.subs {
		delete(that.subs, sub)
		sub.close()
	}
}
