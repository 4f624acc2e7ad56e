package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/game"
	"github.com/rocketscienceinc/tictactoe-sync/internal/repository"
)

type gameRepo interface {
	CreateOrUpdate(ctx context.Context, sessionID string, state entity.GameState) error
	GetByID(ctx context.Context, sessionID string) (entity.GameState, error)
	DeleteByID(ctx context.Context, sessionID string) error
}

// GameManager is the authoritative side of the protocol: it owns one game per session.
type GameManager struct {
	logger   *slog.Logger
	gameRepo gameRepo

	// serializes read-modify-write cycles on the repository
	mu sync.Mutex
}

func NewGameManager(logger *slog.Logger, gameRepo gameRepo) *GameManager {
	return &GameManager{
		logger: logger.With("component", "game_manager"),

		gameRepo: gameRepo,
	}
}

// GetState - returns the session's game, or a fresh one if the session has none. Fresh
// games are not stored until the first move.
func (that *GameManager) GetState(ctx context.Context, sessionID string) (entity.GameState, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.getGame(ctx, sessionID)
}

// MakeTurn - plays the side to move at cell. A rejected move returns the unchanged game
// together with an error wrapping one of the apperror sentinels.
func (that *GameManager) MakeTurn(ctx context.Context, sessionID string, cell int) (entity.GameState, error) {
	log := that.logger.With("method", "MakeTurn", "session", sessionID, "cell", cell)

	that.mu.Lock()
	defer that.mu.Unlock()

	existingGame, err := that.getGame(ctx, sessionID)
	if err != nil {
		return entity.GameState{}, err
	}

	next := existingGame
	if err = game.MakeMove(&next, cell); err != nil {
		log.Debug("move rejected", "error", err)
		return existingGame, fmt.Errorf("failed make turn: %w", err)
	}

	if err = that.updateGame(ctx, sessionID, next); err != nil {
		return entity.GameState{}, err
	}

	if next.Status.IsTerminal() {
		log.Info("game finished", "status", next.Status.String())
	}

	return next, nil
}

// Reset - drops the session's game. The next read or move starts from a fresh one.
func (that *GameManager) Reset(ctx context.Context, sessionID string) (entity.GameState, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.gameRepo.DeleteByID(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrGameNotFound) {
		return entity.GameState{}, fmt.Errorf("failed to delete game: %w", err)
	}

	that.logger.Info("game reset", "session", sessionID)

	return game.NewGame(), nil
}

func (that *GameManager) getGame(ctx context.Context, sessionID string) (entity.GameState, error) {
	existingGame, err := that.gameRepo.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrGameNotFound) {
		return game.NewGame(), nil
	}

	if err != nil {
		return entity.GameState{}, fmt.Errorf("failed to get game: %w", err)
	}

	return existingGame, nil
}

func (that *GameManager) updateGame(ctx context.Context, sessionID string, state entity.GameState) error {
	if err := that.gameRepo.CreateOrUpdate(ctx, sessionID, state); err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}

	return nil
}
