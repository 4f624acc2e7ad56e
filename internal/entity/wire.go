package entity

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
)

// wireState is the JSON shape exchanged with the server:
// {"board": [9 cells], "turn": "X"|"O", "winner": "X"|"O"|null, "draw": bool}.
type wireState struct {
	Board  []Cell  `json:"board"`
	Turn   Player  `json:"turn"`
	Winner *Player `json:"winner"`
	Draw   *bool   `json:"draw"`
}

// wireInput mirrors wireState for decoding. Pointers and raw values tell a missing key
// or a null apart from a zero value.
type wireInput struct {
	Board  []*Cell         `json:"board"`
	Turn   *Player         `json:"turn"`
	Winner json.RawMessage `json:"winner"`
	Draw   *bool           `json:"draw"`
}

// MoveRequest is the body of POST /api/move.
type MoveRequest struct {
	Index *int `json:"index"`
}

// CellIndex - the requested cell, or apperror.ErrMissingIndex when the body had none.
func (that MoveRequest) CellIndex() (int, error) {
	if that.Index == nil {
		return 0, apperror.ErrMissingIndex
	}

	return *that.Index, nil
}

// ErrorResponse is returned by the server instead of a state when it declines a request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (that GameState) MarshalJSON() ([]byte, error) {
	draw := that.Status.IsDraw()

	wire := wireState{
		Board: that.Board[:],
		Turn:  that.Turn,
		Draw:  &draw,
	}

	if that.Status.IsWon() {
		winner := that.Status.Winner
		wire.Winner = &winner
	}

	return json.Marshal(wire)
}

// UnmarshalJSON - decodes and validates a server snapshot. Any schema violation is
// reported as apperror.ErrMalformedState.
func (that *GameState) UnmarshalJSON(data []byte) error {
	var wire wireInput
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrMalformedState, err)
	}

	if wire.Board == nil {
		return fmt.Errorf("%w: board is missing", apperror.ErrMalformedState)
	}

	if len(wire.Board) != BoardSize {
		return fmt.Errorf("%w: board has %d cells", apperror.ErrMalformedState, len(wire.Board))
	}

	if wire.Turn == nil {
		return fmt.Errorf("%w: turn is missing", apperror.ErrMalformedState)
	}

	if wire.Winner == nil {
		return fmt.Errorf("%w: winner is missing", apperror.ErrMalformedState)
	}

	if wire.Draw == nil {
		return fmt.Errorf("%w: draw is missing", apperror.ErrMalformedState)
	}

	state := GameState{Turn: *wire.Turn}
	for i, cell := range wire.Board {
		if cell == nil {
			return fmt.Errorf("%w: cell %d is null", apperror.ErrMalformedState, i)
		}

		state.Board[i] = *cell
	}

	var winner *Player
	if err := json.Unmarshal(wire.Winner, &winner); err != nil {
		return fmt.Errorf("%w: winner: %w", apperror.ErrMalformedState, err)
	}

	switch {
	case winner != nil && *wire.Draw:
		return fmt.Errorf("%w: both winner and draw are set", apperror.ErrMalformedState)
	case winner != nil:
		state.Status = Won(*winner)
	case *wire.Draw:
		state.Status = Draw()
	default:
		state.Status = InProgress()
	}

	if err := state.Validate(); err != nil {
		return err
	}

	*that = state

	return nil
}
