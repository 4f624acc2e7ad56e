package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
)

const BoardSize = 9

type Cell string

const (
	EmptyCell Cell = ""
	CellX     Cell = "X"
	CellO     Cell = "O"
)

type Player string

const (
	PlayerX Player = "X"
	PlayerO Player = "O"

	// NoPlayer is reported as the winner of a drawn game.
	NoPlayer Player = ""
)

type StatusKind int

const (
	StatusInProgress StatusKind = iota
	StatusWon
	StatusDraw
)

// Status is the terminal status of a game. Winner is set only for StatusWon.
type Status struct {
	Kind   StatusKind
	Winner Player
}

type Board [BoardSize]Cell

// GameState is one snapshot of a game. It is replaced as a whole, never patched.
type GameState struct {
	Board  Board
	Turn   Player
	Status Status
}

func InProgress() Status {
	return Status{Kind: StatusInProgress}
}

func Won(winner Player) Status {
	return Status{Kind: StatusWon, Winner: winner}
}

func Draw() Status {
	return Status{Kind: StatusDraw}
}

// NewGameState - returns the initial state: empty board, X to move.
func NewGameState() GameState {
	return GameState{
		Turn:   PlayerX,
		Status: InProgress(),
	}
}

func (that Player) IsValid() bool {
	return that == PlayerX || that == PlayerO
}

func (that Player) Cell() Cell {
	return Cell(that)
}

func (that Player) Opponent() Player {
	if that == PlayerX {
		return PlayerO
	}
	return PlayerX
}

func (that Cell) IsValid() bool {
	return that == EmptyCell || that == CellX || that == CellO
}

func (that Status) IsInProgress() bool {
	return that.Kind == StatusInProgress
}

func (that Status) IsWon() bool {
	return that.Kind == StatusWon
}

func (that Status) IsDraw() bool {
	return that.Kind == StatusDraw
}

func (that Status) IsTerminal() bool {
	return that.IsWon() || that.IsDraw()
}

func (that Status) String() string {
	switch that.Kind {
	case StatusInProgress:
		return "in_progress"
	case StatusWon:
		return "won:" + string(that.Winner)
	case StatusDraw:
		return "draw"
	default:
		return fmt.Sprintf("unknown(%d)", int(that.Kind))
	}
}

// Count - returns how many cells hold the given value.
func (that Board) Count(cell Cell) int {
	count := 0
	for _, c := range that {
		if c == cell {
			count++
		}
	}
	return count
}

func (that Board) IsFull() bool {
	return that.Count(EmptyCell) == 0
}

func (that GameState) Equal(other GameState) bool {
	return that == other
}

// ApplyTentativeMove - places player's mark at index and passes the turn. Status is left
// untouched: only the server decides wins and draws. On an invalid move the receiver is
// returned unchanged together with an error wrapping apperror.ErrInvalidLocalMove.
func (that GameState) ApplyTentativeMove(index int, player Player) (GameState, error) {
	if err := that.validateMove(index, player); err != nil {
		return that, fmt.Errorf("%w: %w", apperror.ErrInvalidLocalMove, err)
	}

	next := that
	next.Board[index] = player.Cell()
	next.Turn = player.Opponent()

	return next, nil
}

func (that GameState) validateMove(index int, player Player) error {
	if !that.Status.IsInProgress() {
		return apperror.ErrGameFinished
	}

	if index < 0 || index >= BoardSize {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, index)
	}

	if that.Board[index] != EmptyCell {
		return fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, index)
	}

	if player != that.Turn {
		return apperror.ErrNotYourTurn
	}

	return nil
}

// Validate - checks the structural invariants of a snapshot.
func (that GameState) Validate() error {
	for i, cell := range that.Board {
		if !cell.IsValid() {
			return fmt.Errorf("%w: cell %d has value %q", apperror.ErrMalformedState, i, cell)
		}
	}

	if !that.Turn.IsValid() {
		return fmt.Errorf("%w: turn %q", apperror.ErrMalformedState, that.Turn)
	}

	xCount, oCount := that.Board.Count(CellX), that.Board.Count(CellO)
	if diff := xCount - oCount; diff != 0 && diff != 1 {
		return fmt.Errorf("%w: %d X marks against %d O marks", apperror.ErrMalformedState, xCount, oCount)
	}

	switch that.Status.Kind {
	case StatusInProgress:
		if that.Status.Winner != NoPlayer {
			return fmt.Errorf("%w: winner set on a game in progress", apperror.ErrMalformedState)
		}

		expected := PlayerX
		if xCount > oCount {
			expected = PlayerO
		}
		if that.Turn != expected {
			return fmt.Errorf("%w: turn %s but %s is to move", apperror.ErrMalformedState, that.Turn, expected)
		}
	case StatusWon:
		if !that.Status.Winner.IsValid() {
			return fmt.Errorf("%w: winner %q", apperror.ErrMalformedState, that.Status.Winner)
		}
	case StatusDraw:
		if that.Status.Winner != NoPlayer {
			return fmt.Errorf("%w: draw with a winner", apperror.ErrMalformedState)
		}
		if !that.Board.IsFull() {
			return fmt.Errorf("%w: draw on a board with empty cells", apperror.ErrMalformedState)
		}
	default:
		return fmt.Errorf("%w: %s", apperror.ErrMalformedState, that.Status)
	}

	return nil
}
