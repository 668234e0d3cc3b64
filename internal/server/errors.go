package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/artificial-games/artificial/internal/game"
	"github.com/artificial-games/artificial/internal/generation"
	"github.com/artificial-games/artificial/internal/room"
)

var statusByError = []struct {
	err    error
	status int
}{
	{room.ErrNotFound, http.StatusNotFound},
	{room.ErrNoSession, http.StatusUnauthorized},
	{room.ErrForbidden, http.StatusForbidden},
	{room.ErrInvalidPhaseTransition, http.StatusConflict},
	{room.ErrRoomFull, http.StatusConflict},
	{room.ErrUnknownGameType, http.StatusBadRequest},
	{room.ErrInvalidMutation, http.StatusBadRequest},
	{room.ErrAllocationExhausted, http.StatusServiceUnavailable},
	{room.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{game.ErrAlreadySubmitted, http.StatusConflict},
	{game.ErrWrongPhase, http.StatusConflict},
	{game.ErrWrongGame, http.StatusConflict},
	{game.ErrInvalidAction, http.StatusBadRequest},
	{game.ErrGenerationUnavailable, http.StatusServiceUnavailable},
	{game.ErrClosed, http.StatusServiceUnavailable},
	{generation.ErrTimeout, http.StatusGatewayTimeout},
	{generation.ErrGenerationFailed, http.StatusBadGateway},
	{errBadBody, http.StatusBadRequest},
}

// statusFor maps a domain error onto an HTTP status. Unknown errors are
// internal.
func statusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged and
// their text is not sent to the client.
func fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	if errors.Is(err, game.ErrGenerationUnavailable) {
		writeError(w, status, "generation disabled")
		return
	}
	writeError(w, status, err.Error())
}
