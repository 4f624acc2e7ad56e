package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

func (that *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		that.logger.Error("failed to write pong", "error", err)
	}
}

func (that *Server) handleState(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleState")

	state, err := that.game.GetState(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		log.Error("failed to get state", "error", err)
		that.writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	that.writeJSON(w, http.StatusOK, state)
}

func (that *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleMove")

	var req entity.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	index, err := req.CellIndex()
	if errors.Is(err, apperror.ErrMissingIndex) {
		that.writeError(w, http.StatusBadRequest, "No index provided")
		return
	}

	state, err := that.game.MakeTurn(r.Context(), sessionFromContext(r.Context()), index)
	switch {
	case err == nil:
		that.writeJSON(w, http.StatusOK, state)
	case errors.Is(err, apperror.ErrInvalidCell),
		errors.Is(err, apperror.ErrCellOccupied),
		errors.Is(err, apperror.ErrGameFinished):
		that.writeError(w, http.StatusBadRequest, "Invalid move")
	default:
		log.Error("failed to make turn", "error", err)
		that.writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (that *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleReset")

	state, err := that.game.Reset(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		log.Error("failed to reset game", "error", err)
		that.writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	that.writeJSON(w, http.StatusOK, state)
}

func (that *Server) writeError(w http.ResponseWriter, status int, message string) {
	that.writeJSON(w, status, entity.ErrorResponse{Error: message})
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}
