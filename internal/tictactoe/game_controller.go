package tictactoe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/presenter"
)

const defaultResyncRetries = 5

type syncClient interface {
	FetchState(ctx context.Context) (entity.GameState, error)
	SubmitMove(ctx context.Context, index int) (entity.GameState, error)
	ResetGame(ctx context.Context) (entity.GameState, error)
}

// View is notified after every state change. Calls arrive while the controller lock is
// held, so a view must never call back into the controller synchronously.
type View interface {
	RenderBoard(board entity.Board)
	RenderStatus(banner string)
	OnGameEnded(winner entity.Player)
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTentativelyApplied
	PhaseResetting
)

func (that Phase) String() string {
	switch that {
	case PhaseIdle:
		return "idle"
	case PhaseTentativelyApplied:
		return "tentatively_applied"
	case PhaseResetting:
		return "resetting"
	default:
		return fmt.Sprintf("phase(%d)", int(that))
	}
}

// MoveOutcome tells the caller of SelectCell what became of the selection.
type MoveOutcome int

const (
	OutcomeIgnored MoveOutcome = iota
	OutcomeConfirmed
	OutcomeReverted
	OutcomeSuperseded
)

func (that MoveOutcome) String() string {
	switch that {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeReverted:
		return "reverted"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return fmt.Sprintf("outcome(%d)", int(that))
	}
}

type Option func(*GameController)

// WithBackOff - sets the retry policy used by Load. A fresh policy is built per call.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(that *GameController) {
		that.newBackOff = newBackOff
	}
}

// WithResyncRetries - exponential backoff capped at retries attempts after the first.
func WithResyncRetries(retries uint64) Option {
	return WithBackOff(func() backoff.BackOff {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 200 * time.Millisecond
		policy.MaxInterval = 5 * time.Second

		return backoff.WithMaxRetries(policy, retries)
	})
}

// GameController owns the client's single live game. Moves are shown immediately and
// then reconciled with the server: a confirmed move installs the server snapshot, a
// failed one is reverted to server truth.
type GameController struct {
	logger     *slog.Logger
	client     syncClient
	view       View
	newBackOff func() backoff.BackOff

	mu         sync.Mutex
	state      entity.GameState
	confirmed  entity.GameState
	loaded     bool
	phase      Phase
	generation uint64
	ended      presenter.EndTracker
}

func NewGameController(logger *slog.Logger, client syncClient, view View, opts ...Option) *GameController {
	controller := &GameController{
		logger: logger.With("component", "game_controller"),
		client: client,
		view:   view,
		state:  entity.NewGameState(),
	}

	WithResyncRetries(defaultResyncRetries)(controller)

	for _, opt := range opts {
		opt(controller)
	}

	return controller
}

// Load - fetches the server game, retrying transport failures with backoff.
func (that *GameController) Load(ctx context.Context) error {
	log := that.logger.With("method", "Load")

	generation := that.Generation()

	operation := func() (entity.GameState, error) {
		state, err := that.client.FetchState(ctx)
		if err != nil && !errors.Is(err, apperror.ErrTransportFailure) {
			return entity.GameState{}, backoff.Permanent(err)
		}

		return state, err
	}

	notify := func(err error, next time.Duration) {
		log.Warn("failed to load state, retrying", "error", err, "retry_in", next)
	}

	state, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(that.newBackOff(), ctx), notify)
	if err != nil {
		log.Error("failed to load state", "error", err)
		return fmt.Errorf("failed to load state: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	// a reset or a move in flight will install fresher truth
	if generation != that.generation || that.phase != PhaseIdle {
		log.Debug("loaded state dropped", "phase", that.phase.String())
		return nil
	}

	that.installConfirmed(state)

	return nil
}

// SelectCell - plays the side to move at index. Selections that cannot be a legal move,
// or that arrive before the game is loaded or while another request is outstanding, are
// ignored without touching the network.
func (that *GameController) SelectCell(ctx context.Context, index int) (MoveOutcome, error) {
	log := that.logger.With("method", "SelectCell", "index", index)

	that.mu.Lock()

	if !that.loaded || that.phase != PhaseIdle {
		log.Debug("selection ignored", "loaded", that.loaded, "phase", that.phase.String())
		that.mu.Unlock()

		return OutcomeIgnored, nil
	}

	tentative, err := that.state.ApplyTentativeMove(index, that.state.Turn)
	if err != nil {
		log.Debug("selection ignored", "error", err)
		that.mu.Unlock()

		return OutcomeIgnored, nil
	}

	generation := that.generation
	that.phase = PhaseTentativelyApplied
	that.install(tentative)

	that.mu.Unlock()

	state, submitErr := that.client.SubmitMove(ctx, index)
	if submitErr != nil {
		log.Info("move not accepted, reverting",
			"error", submitErr,
			"rejected", errors.Is(submitErr, apperror.ErrMoveRejected),
		)

		revertErr := that.Revert(ctx, generation)
		if errors.Is(revertErr, apperror.ErrSuperseded) {
			return OutcomeSuperseded, nil
		}

		return OutcomeReverted, errors.Join(submitErr, revertErr)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if generation != that.generation {
		log.Debug("move response superseded", "generation", generation)
		return OutcomeSuperseded, nil
	}

	that.phase = PhaseIdle
	that.installConfirmed(state)

	return OutcomeConfirmed, nil
}

// Revert - replaces the live game with server truth. When the server cannot be read the
// last confirmed snapshot is reinstalled instead and the fetch error is returned.
// Nothing is installed if generation is no longer current. FetchState coalesces
// concurrent reads, so the installed snapshot can come from a fetch that started before
// the failed submit; the next confirmed move or reset corrects it.
func (that *GameController) Revert(ctx context.Context, generation uint64) error {
	log := that.logger.With("method", "Revert")

	state, fetchErr := that.client.FetchState(ctx)

	that.mu.Lock()
	defer that.mu.Unlock()

	if generation != that.generation {
		return apperror.ErrSuperseded
	}

	that.phase = PhaseIdle

	if fetchErr != nil {
		log.Warn("failed to fetch server state, restoring last confirmed", "error", fetchErr)
		that.install(that.confirmed)

		return fmt.Errorf("failed to revert: %w", fetchErr)
	}

	that.installConfirmed(state)

	return nil
}

// Reset - starts a new server game. Any move still in flight is superseded; of two
// racing resets the later one wins.
func (that *GameController) Reset(ctx context.Context) error {
	log := that.logger.With("method", "Reset")

	that.mu.Lock()
	that.generation++
	generation := that.generation
	that.phase = PhaseResetting
	that.mu.Unlock()

	state, err := that.client.ResetGame(ctx)

	that.mu.Lock()
	defer that.mu.Unlock()

	if generation != that.generation {
		log.Debug("reset superseded", "generation", generation)
		return nil
	}

	that.phase = PhaseIdle

	if err != nil {
		log.Error("failed to reset game", "error", err)

		if that.loaded && !that.state.Equal(that.confirmed) {
			that.install(that.confirmed)
		}

		return fmt.Errorf("failed to reset game: %w", err)
	}

	that.installConfirmed(state)
	log.Info("game reset")

	return nil
}

func (that *GameController) State() entity.GameState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state
}

// Confirmed - the last snapshot the server produced.
func (that *GameController) Confirmed() entity.GameState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.confirmed
}

func (that *GameController) Phase() Phase {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.phase
}

func (that *GameController) Generation() uint64 {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.generation
}

// installConfirmed - must be called with mu held.
func (that *GameController) installConfirmed(state entity.GameState) {
	that.confirmed = state
	that.loaded = true
	that.install(state)
}

// install - must be called with mu held.
func (that *GameController) install(state entity.GameState) {
	that.state = state

	if that.view == nil {
		return
	}

	presentation := presenter.Present(state)

	that.view.RenderBoard(state.Board)
	that.view.RenderStatus(presentation.Banner)

	if that.ended.Observe(state.Status) {
		that.view.OnGameEnded(presentation.EndedWithWinner)
	}
}
