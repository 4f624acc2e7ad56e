package game

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// NewGame - returns the canonical state a reset produces.
func NewGame() entity.GameState {
	return entity.NewGameState()
}

// MakeMove - plays the current turn's mark at cell. This is the authoritative rule set:
// it decides wins and draws. On a win the turn stays with the winner.
func MakeMove(game *entity.GameState, cell int) error {
	if game.Status.IsTerminal() {
		return apperror.ErrGameFinished
	}

	if cell < 0 || cell >= len(game.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if game.Board[cell] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	player := game.Turn
	game.Board[cell] = player.Cell()

	switch status := checkGameStatus(game.Board); {
	case status.IsTerminal():
		game.Status = status
	default:
		game.Turn = toggleMark(player)
	}

	return nil
}

func toggleMark(currentMark entity.Player) entity.Player {
	if currentMark == entity.PlayerX {
		return entity.PlayerO
	}
	return entity.PlayerX
}

func checkGameStatus(board entity.Board) entity.Status {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return entity.Won(entity.Player(a))
		}
	}

	// the game continues until every cell is taken
	if !board.IsFull() {
		return entity.InProgress()
	}

	return entity.Draw()
}
