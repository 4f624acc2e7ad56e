package tictactoe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

var (
	errTransport = fmt.Errorf("%w: connection refused", apperror.ErrTransportFailure)
	errRejected  = fmt.Errorf("%w: Invalid move", apperror.ErrMoveRejected)
)

type fakeClient struct {
	mu          sync.Mutex
	fetchCalls  int
	submitCalls int
	resetCalls  int

	fetch  func(call int) (entity.GameState, error)
	submit func(call, index int) (entity.GameState, error)
	reset  func(call int) (entity.GameState, error)
}

func (that *fakeClient) FetchState(_ context.Context) (entity.GameState, error) {
	that.mu.Lock()
	that.fetchCalls++
	call := that.fetchCalls
	that.mu.Unlock()

	return that.fetch(call)
}

func (that *fakeClient) SubmitMove(_ context.Context, index int) (entity.GameState, error) {
	that.mu.Lock()
	that.submitCalls++
	call := that.submitCalls
	that.mu.Unlock()

	return that.submit(call, index)
}

func (that *fakeClient) ResetGame(_ context.Context) (entity.GameState, error) {
	that.mu.Lock()
	that.resetCalls++
	call := that.resetCalls
	that.mu.Unlock()

	return that.reset(call)
}

func (that *fakeClient) calls() (int, int, int) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.fetchCalls, that.submitCalls, that.resetCalls
}

type recordingView struct {
	mu      sync.Mutex
	boards  []entity.Board
	banners []string
	ended   []entity.Player
}

func (that *recordingView) RenderBoard(board entity.Board) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.boards = append(that.boards, board)
}

func (that *recordingView) RenderStatus(banner string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.banners = append(that.banners, banner)
}

func (that *recordingView) OnGameEnded(winner entity.Player) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.ended = append(that.ended, winner)
}

func (that *recordingView) lastBanner() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	if len(that.banners) == 0 {
		return ""
	}

	return that.banners[len(that.banners)-1]
}

func (that *recordingView) endedWith() []entity.Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]entity.Player(nil), that.ended...)
}

// board - builds a board from a 9 character layout, any rune other than X or O is empty.
func board(layout string) entity.Board {
	var result entity.Board
	for i, r := range layout {
		switch r {
		case 'X':
			result[i] = entity.CellX
		case 'O':
			result[i] = entity.CellO
		}
	}

	return result
}

func gameState(layout string, turn entity.Player, status entity.Status) entity.GameState {
	return entity.GameState{Board: board(layout), Turn: turn, Status: status}
}

func newController(t *testing.T, client *fakeClient) (*GameController, *recordingView) {
	t.Helper()

	view := &recordingView{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	controller := NewGameController(logger, client, view, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}))

	return controller, view
}

// loadedController - a controller that has already loaded initial from the server.
func loadedController(t *testing.T, client *fakeClient, initial entity.GameState) (*GameController, *recordingView) {
	t.Helper()

	fetch := client.fetch
	client.fetch = func(call int) (entity.GameState, error) {
		if call == 1 {
			return initial, nil
		}

		return fetch(call)
	}

	controller, view := newController(t, client)
	require.NoError(t, controller.Load(context.Background()))

	return controller, view
}

func TestGameController_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("Installs the server state", func(t *testing.T) {
		// Given: a server mid-game
		server := gameState("X___O___X", entity.PlayerO, entity.InProgress())
		client := &fakeClient{fetch: func(int) (entity.GameState, error) { return server, nil }}
		controller, view := newController(t, client)

		// When: loading
		err := controller.Load(ctx)

		// Then: the server state is live, confirmed and rendered
		require.NoError(t, err)
		assert.Equal(t, server, controller.State())
		assert.Equal(t, server, controller.Confirmed())
		assert.Equal(t, PhaseIdle, controller.Phase())
		assert.Equal(t, []entity.Board{server.Board}, view.boards)
		assert.Equal(t, "Current Turn: O", view.lastBanner())
	})

	t.Run("Retries transport failures", func(t *testing.T) {
		client := &fakeClient{fetch: func(call int) (entity.GameState, error) {
			if call < 3 {
				return entity.GameState{}, errTransport
			}
			return entity.NewGameState(), nil
		}}
		controller, _ := newController(t, client)

		require.NoError(t, controller.Load(ctx))

		fetches, _, _ := client.calls()
		assert.Equal(t, 3, fetches)
		assert.Equal(t, entity.NewGameState(), controller.State())
	})

	t.Run("Gives up after the retry budget", func(t *testing.T) {
		client := &fakeClient{fetch: func(int) (entity.GameState, error) {
			return entity.GameState{}, errTransport
		}}
		controller, view := newController(t, client)

		err := controller.Load(ctx)

		require.ErrorIs(t, err, apperror.ErrTransportFailure)
		fetches, _, _ := client.calls()
		assert.Equal(t, 3, fetches)
		assert.Empty(t, view.boards)
	})

	t.Run("Does not retry other errors", func(t *testing.T) {
		boom := errors.New("boom")
		client := &fakeClient{fetch: func(int) (entity.GameState, error) {
			return entity.GameState{}, boom
		}}
		controller, _ := newController(t, client)

		err := controller.Load(ctx)

		require.ErrorIs(t, err, boom)
		fetches, _, _ := client.calls()
		assert.Equal(t, 1, fetches)
	})
}

func TestGameController_SelectCell(t *testing.T) {
	ctx := context.Background()

	t.Run("Confirmed move installs the server snapshot", func(t *testing.T) {
		// Given: an empty board
		server := gameState("____X____", entity.PlayerO, entity.InProgress())

		var controller *GameController
		client := &fakeClient{submit: func(_, index int) (entity.GameState, error) {
			// the tentative move is visible while the request is in flight
			assert.Equal(t, 4, index)
			assert.Equal(t, entity.CellX, controller.State().Board[4])
			assert.Equal(t, PhaseTentativelyApplied, controller.Phase())

			return server, nil
		}}
		controller, view := loadedController(t, client, entity.NewGameState())

		// When: selecting the center cell
		outcome, err := controller.SelectCell(ctx, 4)

		// Then: the server snapshot replaces the state
		require.NoError(t, err)
		assert.Equal(t, OutcomeConfirmed, outcome)
		assert.Equal(t, server, controller.State())
		assert.Equal(t, server, controller.Confirmed())
		assert.Equal(t, PhaseIdle, controller.Phase())
		assert.Equal(t, []string{"Current Turn: X", "Current Turn: O", "Current Turn: O"}, view.banners)
		assert.Equal(t, entity.CellX, view.boards[1][4])
	})

	t.Run("Ignored selections", func(t *testing.T) {
		tests := []struct {
			name    string
			initial entity.GameState
			index   int
		}{
			{name: "occupied cell", initial: gameState("____X____", entity.PlayerO, entity.InProgress()), index: 4},
			{name: "finished game", initial: gameState("XXXOO____", entity.PlayerX, entity.Won(entity.PlayerX)), index: 8},
			{name: "index below range", initial: entity.NewGameState(), index: -1},
			{name: "index above range", initial: entity.NewGameState(), index: 9},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				client := &fakeClient{}
				controller, view := loadedController(t, client, tt.initial)

				outcome, err := controller.SelectCell(ctx, tt.index)

				require.NoError(t, err)
				assert.Equal(t, OutcomeIgnored, outcome)
				assert.Equal(t, tt.initial, controller.State())
				assert.Len(t, view.boards, 1)

				_, submits, _ := client.calls()
				assert.Zero(t, submits)
			})
		}
	})

	t.Run("Ignored before the game is loaded", func(t *testing.T) {
		client := &fakeClient{}
		controller, view := newController(t, client)

		outcome, err := controller.SelectCell(ctx, 0)

		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.Empty(t, view.boards)
	})

	t.Run("Rejected move reverts to the fetched state", func(t *testing.T) {
		// Given: the server already moved on to a state the client has not seen
		server := gameState("O___X____", entity.PlayerX, entity.InProgress())
		client := &fakeClient{
			submit: func(int, int) (entity.GameState, error) { return entity.GameState{}, errRejected },
			fetch:  func(int) (entity.GameState, error) { return server, nil },
		}
		controller, view := loadedController(t, client, entity.NewGameState())

		// When: the move is declined
		outcome, err := controller.SelectCell(ctx, 0)

		// Then: server truth replaces the tentative move
		require.ErrorIs(t, err, apperror.ErrMoveRejected)
		assert.Equal(t, OutcomeReverted, outcome)
		assert.Equal(t, server, controller.State())
		assert.Equal(t, server, controller.Confirmed())
		assert.Equal(t, PhaseIdle, controller.Phase())
		assert.Equal(t, server.Board, view.boards[len(view.boards)-1])
	})

	t.Run("Transport failure reverts the same way", func(t *testing.T) {
		server := entity.NewGameState()
		client := &fakeClient{
			submit: func(int, int) (entity.GameState, error) { return entity.GameState{}, errTransport },
			fetch:  func(int) (entity.GameState, error) { return server, nil },
		}
		controller, _ := loadedController(t, client, server)

		outcome, err := controller.SelectCell(ctx, 2)

		require.ErrorIs(t, err, apperror.ErrTransportFailure)
		assert.Equal(t, OutcomeReverted, outcome)
		assert.Equal(t, server, controller.State())
	})

	t.Run("Unreachable server restores the last confirmed state", func(t *testing.T) {
		confirmed := gameState("X________", entity.PlayerO, entity.InProgress())
		client := &fakeClient{
			submit: func(int, int) (entity.GameState, error) { return entity.GameState{}, errRejected },
			fetch:  func(int) (entity.GameState, error) { return entity.GameState{}, errTransport },
		}
		controller, _ := loadedController(t, client, confirmed)

		outcome, err := controller.SelectCell(ctx, 4)

		assert.Equal(t, OutcomeReverted, outcome)
		require.ErrorIs(t, err, apperror.ErrMoveRejected)
		require.ErrorIs(t, err, apperror.ErrTransportFailure)
		assert.Equal(t, confirmed, controller.State())
		assert.Equal(t, PhaseIdle, controller.Phase())
	})

	t.Run("Second selection while a move is in flight is ignored", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		server := gameState("____X____", entity.PlayerO, entity.InProgress())

		client := &fakeClient{submit: func(int, int) (entity.GameState, error) {
			close(started)
			<-release
			return server, nil
		}}
		controller, _ := loadedController(t, client, entity.NewGameState())

		outcomes := make(chan MoveOutcome, 1)
		go func() {
			outcome, err := controller.SelectCell(ctx, 4)
			assert.NoError(t, err)
			outcomes <- outcome
		}()
		<-started

		// When: another cell is selected meanwhile
		outcome, err := controller.SelectCell(ctx, 0)

		// Then: it is dropped without a request
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)

		close(release)
		assert.Equal(t, OutcomeConfirmed, <-outcomes)

		_, submits, _ := client.calls()
		assert.Equal(t, 1, submits)
		assert.Equal(t, server, controller.State())
	})

	t.Run("Reset supersedes a move in flight", func(t *testing.T) {
		// Given: a move waiting for its response
		started := make(chan struct{})
		release := make(chan struct{})

		client := &fakeClient{
			submit: func(int, int) (entity.GameState, error) {
				close(started)
				<-release
				return gameState("____X____", entity.PlayerO, entity.InProgress()), nil
			},
			reset: func(int) (entity.GameState, error) { return entity.NewGameState(), nil },
		}
		controller, _ := loadedController(t, client, gameState("X___O____", entity.PlayerX, entity.InProgress()))

		outcomes := make(chan MoveOutcome, 1)
		go func() {
			outcome, err := controller.SelectCell(ctx, 8)
			assert.NoError(t, err)
			outcomes <- outcome
		}()
		<-started

		// When: the game is reset before the move response lands
		require.NoError(t, controller.Reset(ctx))
		close(release)

		// Then: the stale response is discarded
		assert.Equal(t, OutcomeSuperseded, <-outcomes)
		assert.Equal(t, entity.NewGameState(), controller.State())
		assert.Equal(t, uint64(1), controller.Generation())
		assert.Equal(t, PhaseIdle, controller.Phase())
	})

	t.Run("Reset supersedes a revert", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})

		client := &fakeClient{
			submit: func(int, int) (entity.GameState, error) {
				close(started)
				<-release
				return entity.GameState{}, errRejected
			},
			fetch: func(int) (entity.GameState, error) {
				return gameState("X________", entity.PlayerO, entity.InProgress()), nil
			},
			reset: func(int) (entity.GameState, error) { return entity.NewGameState(), nil },
		}
		controller, _ := loadedController(t, client, gameState("X___O____", entity.PlayerX, entity.InProgress()))

		outcomes := make(chan MoveOutcome, 1)
		go func() {
			outcome, err := controller.SelectCell(ctx, 8)
			assert.NoError(t, err)
			outcomes <- outcome
		}()
		<-started

		require.NoError(t, controller.Reset(ctx))
		close(release)

		assert.Equal(t, OutcomeSuperseded, <-outcomes)
		assert.Equal(t, entity.NewGameState(), controller.State())
	})

	t.Run("Draw is reported without a winner", func(t *testing.T) {
		draw := gameState("XOXXOOOXX", entity.PlayerX, entity.Draw())
		client := &fakeClient{submit: func(int, int) (entity.GameState, error) { return draw, nil }}
		controller, view := loadedController(t, client, gameState("XOXXOOOX_", entity.PlayerX, entity.InProgress()))

		outcome, err := controller.SelectCell(ctx, 8)

		require.NoError(t, err)
		assert.Equal(t, OutcomeConfirmed, outcome)
		assert.Equal(t, "It's a Draw!", view.lastBanner())
		assert.Equal(t, []entity.Player{entity.NoPlayer}, view.endedWith())
	})

	t.Run("Win signals the end exactly once", func(t *testing.T) {
		won := gameState("XXXOO____", entity.PlayerX, entity.Won(entity.PlayerX))
		client := &fakeClient{
			submit: func(int, int) (entity.GameState, error) { return won, nil },
			fetch:  func(int) (entity.GameState, error) { return won, nil },
		}
		controller, view := loadedController(t, client, gameState("XX_OO____", entity.PlayerX, entity.InProgress()))

		outcome, err := controller.SelectCell(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConfirmed, outcome)

		// When: the finished game is presented again
		require.NoError(t, controller.Revert(ctx, controller.Generation()))

		// Then: the end was signalled once
		assert.Equal(t, "Player X Wins!", view.lastBanner())
		assert.Equal(t, []entity.Player{entity.PlayerX}, view.endedWith())
	})
}

func TestGameController_Reset(t *testing.T) {
	ctx := context.Background()

	t.Run("Installs the fresh game", func(t *testing.T) {
		won := gameState("XXXOO____", entity.PlayerX, entity.Won(entity.PlayerX))
		client := &fakeClient{
			reset:  func(int) (entity.GameState, error) { return entity.NewGameState(), nil },
			submit: func(int, int) (entity.GameState, error) { return gameState("X________", entity.PlayerO, entity.InProgress()), nil },
		}
		controller, view := loadedController(t, client, won)

		require.NoError(t, controller.Reset(ctx))

		assert.Equal(t, entity.NewGameState(), controller.State())
		assert.Equal(t, entity.NewGameState(), controller.Confirmed())
		assert.Equal(t, uint64(1), controller.Generation())
		assert.Equal(t, "Current Turn: X", view.lastBanner())

		// Then: moves are accepted again
		outcome, err := controller.SelectCell(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConfirmed, outcome)
	})

	t.Run("Failure keeps the confirmed game", func(t *testing.T) {
		confirmed := gameState("X___O____", entity.PlayerX, entity.InProgress())
		client := &fakeClient{reset: func(int) (entity.GameState, error) { return entity.GameState{}, errTransport }}
		controller, _ := loadedController(t, client, confirmed)

		err := controller.Reset(ctx)

		require.ErrorIs(t, err, apperror.ErrTransportFailure)
		assert.Equal(t, confirmed, controller.State())
		assert.Equal(t, PhaseIdle, controller.Phase())
	})

	t.Run("Later reset wins", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		stale := gameState("X________", entity.PlayerO, entity.InProgress())

		client := &fakeClient{reset: func(call int) (entity.GameState, error) {
			if call == 1 {
				close(started)
				<-release
				return stale, nil
			}
			return entity.NewGameState(), nil
		}}
		controller, _ := loadedController(t, client, gameState("X___O____", entity.PlayerX, entity.InProgress()))

		done := make(chan error, 1)
		go func() { done <- controller.Reset(ctx) }()
		<-started

		require.NoError(t, controller.Reset(ctx))
		close(release)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("first reset did not return")
		}

		assert.Equal(t, entity.NewGameState(), controller.State())
		assert.Equal(t, uint64(2), controller.Generation())
	})

	t.Run("Selections are ignored while resetting", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})

		client := &fakeClient{reset: func(int) (entity.GameState, error) {
			close(started)
			<-release
			return entity.NewGameState(), nil
		}}
		controller, _ := loadedController(t, client, entity.NewGameState())

		done := make(chan error, 1)
		go func() { done <- controller.Reset(ctx) }()
		<-started

		outcome, err := controller.SelectCell(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)

		close(release)
		require.NoError(t, <-done)

		_, submits, _ := client.calls()
		assert.Zero(t, submits)
	})
}
