package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/artificial-games/artificial/internal/game"
	"github.com/artificial-games/artificial/internal/phase"
	"github.com/artificial-games/artificial/internal/room"
)

// RoomView is a room snapshot as served over HTTP.
type RoomView struct {
	room.Room
	// Progress is the fraction of the phase sequence reached.
	Progress float64 `json:"progress"`
}

func viewOf(r room.Room) RoomView {
	return RoomView{Room: r, Progress: phase.Progress(r.GameType, r.Phase)}
}

type CreateRoomRequest struct {
	GameType string `json:"gameType"`
	HostName string `json:"hostName"`
}

type JoinRequest struct {
	PlayerName string `json:"playerName"`
}

// SessionResponse hands a participant the token for all further calls.
type SessionResponse struct {
	Code     string   `json:"code"`
	Token    string   `json:"token"`
	PlayerID string   `json:"playerId"`
	Room     RoomView `json:"room"`
}

type PhasesResponse struct {
	GameType string   `json:"gameType"`
	Phases   []string `json:"phases"`
}

func handleCreateRoom(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}

		rm, err := rooms.Create(r.Context(), phase.GameType(req.GameType), room.Identity{}, req.HostName)
		if err != nil {
			fail(w, logger, err)
			return
		}

		token, err := rooms.OpenSession(r.Context(), rm.Code, room.Identity{ID: rm.HostID})
		if err != nil {
			fail(w, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, SessionResponse{
			Code:     rm.Code,
			Token:    token,
			PlayerID: rm.HostID,
			Room:     viewOf(rm),
		})
	}
}

// handleJoin adds a player. A caller presenting a valid token for this room
// rejoins under the same identity and keeps the token.
func handleJoin(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		code := room.NormalizeCode(chi.URLParam(r, "code"))

		var who room.Identity
		token := bearerToken(r)
		if token != "" {
			sess, err := rooms.Authenticate(r.Context(), token)
			switch {
			case err == nil && sess.RoomCode == code:
				who.ID = sess.ParticipantID
			case err == nil, errors.Is(err, room.ErrNoSession):
				token = ""
			default:
				fail(w, logger, err)
				return
			}
		}

		rm, who, err := rooms.Join(r.Context(), code, who, strings.TrimSpace(req.PlayerName))
		if err != nil {
			fail(w, logger, err)
			return
		}
		if token == "" {
			token, err = rooms.OpenSession(r.Context(), code, who)
			if err != nil {
				fail(w, logger, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, SessionResponse{
			Code:     rm.Code,
			Token:    token,
			PlayerID: who.ID,
			Room:     viewOf(rm),
		})
	}
}

func handleGetRoom(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rooms.Get(r.Context(), sessionFrom(r).RoomCode)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

func handleDeleteRoom(rooms *room.Service, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := sessionFrom(r).RoomCode
		if err := rooms.Remove(r.Context(), code, caller(r)); err != nil {
			fail(w, logger, err)
			return
		}
		games.CloseRoom(code)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMutation(rooms *room.Service, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readBody(w, r)
		if err != nil {
			fail(w, logger, err)
			return
		}
		m, err := room.ParseMutation(data)
		if err != nil {
			fail(w, logger, err)
			return
		}

		rm, err := rooms.Mutate(r.Context(), sessionFrom(r).RoomCode, caller(r), m)
		if err != nil {
			fail(w, logger, err)
			return
		}
		openHostGame(r.Context(), games, rm, caller(r), logger)
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

func handleAdvance(rooms *room.Service, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rooms.Advance(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		openHostGame(r.Context(), games, rm, caller(r), logger)
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

func handleBack(rooms *room.Service, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rooms.Back(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		openHostGame(r.Context(), games, rm, caller(r), logger)
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

// openHostGame keeps the host's game controller running once the host
// drives phases, so host-side phase duties such as recording the werewolf
// round happen even when the host only uses the room API.
func openHostGame(ctx context.Context, games *game.Registry, rm room.Room, who room.Identity, logger *slog.Logger) {
	if !rm.IsHost(who.ID) {
		return
	}
	if _, err := games.Get(ctx, rm.Code, who); err != nil {
		logger.Warn("opening host game", "code", rm.Code, "error", err)
	}
}

func handlePhases() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g := phase.GameType(chi.URLParam(r, "gameType"))
		if !phase.Known(g) {
			writeError(w, http.StatusNotFound, "unknown game type")
			return
		}
		writeJSON(w, http.StatusOK, PhasesResponse{GameType: string(g), Phases: phase.SequenceFor(g)})
	}
}
