package minimax

import (
	"sync"

	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
)

type cacheKey struct {
	board entity.Board
	side  entity.Mark
}

// Cache is a transposition table keyed by board and side to move. It is safe for concurrent use
// and may be shared by every session of the process.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]Result
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]Result)}
}

// Len returns the number of stored positions.
func (that *Cache) Len() int {
	if that == nil {
		return 0
	}

	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.entries)
}

func (that *Cache) get(board entity.Board, side entity.Mark) (Result, bool) {
	if that == nil {
		return Result{}, false
	}

	that.mu.RLock()
	defer that.mu.RUnlock()

	result, ok := that.entries[cacheKey{board: board, side: side}]

	return result, ok
}

func (that *Cache) put(board entity.Board, side entity.Mark, result Result) {
	if that == nil {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.entries[cacheKey{board: board, side: side}] = result
}
