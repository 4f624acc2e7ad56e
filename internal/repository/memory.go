package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

type memoryEntry struct {
	game      entity.GameState
	expiresAt time.Time
}

// memoryGame keeps games in process memory with the same expiry as the redis store.
// State is lost on restart.
type memoryGame struct {
	mu        sync.RWMutex
	games     map[string]memoryEntry
	ttl       time.Duration
	lastSweep time.Time

	now func() time.Time
}

// NewMemoryGameRepository - a zero ttl keeps games forever.
func NewMemoryGameRepository(ttl time.Duration) GameRepository {
	return &memoryGame{
		games:     make(map[string]memoryEntry),
		ttl:       ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (that *memoryGame) CreateOrUpdate(_ context.Context, sessionID string, game entity.GameState) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	now := that.now()
	that.sweep(now)

	entry := memoryEntry{game: game}
	if that.ttl > 0 {
		entry.expiresAt = now.Add(that.ttl)
	}

	that.games[sessionID] = entry

	return nil
}

func (that *memoryGame) GetByID(_ context.Context, sessionID string) (entity.GameState, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	entry, ok := that.games[sessionID]
	if !ok || entry.expired(that.now()) {
		return entity.GameState{}, ErrGameNotFound
	}

	return entry.game, nil
}

func (that *memoryGame) DeleteByID(_ context.Context, sessionID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.games[sessionID]
	if !ok {
		return ErrGameNotFound
	}

	delete(that.games, sessionID)

	if entry.expired(that.now()) {
		return ErrGameNotFound
	}

	return nil
}

// sweep - drops expired games at most once per ttl. Must be called with mu held.
func (that *memoryGame) sweep(now time.Time) {
	if that.ttl <= 0 || now.Sub(that.lastSweep) < that.ttl {
		return
	}

	for sessionID, entry := range that.games {
		if entry.expired(now) {
			delete(that.games, sessionID)
		}
	}

	that.lastSweep = now
}

func (that memoryEntry) expired(now time.Time) bool {
	return !that.expiresAt.IsZero() && !now.Before(that.expiresAt)
}
