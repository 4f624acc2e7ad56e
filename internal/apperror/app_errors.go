package apperror

import "errors"

// local move validation.
var (
	ErrInvalidLocalMove = errors.New("invalid local move")
	ErrInvalidCell      = errors.New("invalid cell index")
	ErrCellOccupied     = errors.New("cell is already occupied")
	ErrGameFinished     = errors.New("game is already finished")
	ErrNotYourTurn      = errors.New("it's not your turn")
)

// synchronization with the authoritative server.
var (
	ErrMoveRejected     = errors.New("move rejected by server")
	ErrTransportFailure = errors.New("transport failure")
	ErrMalformedState   = errors.New("malformed game state")
)

var ErrMissingIndex = errors.New("no index provided")

// ErrSuperseded is returned when a reset replaced the game a response belonged to.
var ErrSuperseded = errors.New("superseded by a newer game")
