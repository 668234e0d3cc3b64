package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/artificial-games/artificial/internal/game"
	"github.com/artificial-games/artificial/internal/room"
)

type DeckResponse struct {
	Phase  string      `json:"phase"`
	Cards  []game.Card `json:"cards"`
	Streak int         `json:"streak"`
}

type AnswerRequest struct {
	ImageID string `json:"imageId"`
	SaysAI  bool   `json:"saysAI"`
}

// TargetRequest names what a vote or accusation is for: a player id, or a
// submission id when voting on memes.
type TargetRequest struct {
	Target string `json:"target"`
}

type ReactRequest struct {
	SubmissionID string `json:"submissionId"`
	Kind         string `json:"kind"`
}

func handleQuizDeck(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := games.Quiz(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err == nil {
			err = q.Refresh(r.Context())
		}
		if err != nil {
			fail(w, logger, err)
			return
		}
		cards := q.Deck()
		if cards == nil {
			cards = []game.Card{}
		}
		writeJSON(w, http.StatusOK, DeckResponse{Phase: q.Room().Phase, Cards: cards, Streak: q.Streak()})
	}
}

func handleQuizAnswer(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnswerRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		q, err := games.Quiz(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		res, err := q.Answer(r.Context(), req.ImageID, req.SaysAI)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleWerewolfAssignment(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := games.Quiz(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err == nil {
			err = q.Refresh(r.Context())
		}
		if err != nil {
			fail(w, logger, err)
			return
		}
		role, ok := q.Role()
		if !ok {
			fail(w, logger, fmt.Errorf("%w: no werewolf assignment yet", game.ErrWrongPhase))
			return
		}
		writeJSON(w, http.StatusOK, role)
	}
}

func handleWerewolfVote(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TargetRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		q, err := games.Quiz(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		rm, err := q.WerewolfVote(r.Context(), req.Target)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

func handleWerewolfTally(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rooms.Get(r.Context(), sessionFrom(r).RoomCode)
		if err != nil {
			fail(w, logger, err)
			return
		}
		tally := game.TallyWerewolf(rm)
		// The faker stays secret until the vote is over.
		if rm.Phase != "werewolf-vote" && rm.Phase != "results" {
			tally.Faker, tally.Caught = "", false
		}
		writeJSON(w, http.StatusOK, tally)
	}
}

func handleSubmitMeme(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req game.Meme
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		b, err := games.Meme(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		rm, err := b.SubmitMeme(r.Context(), req)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

func handleReact(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReactRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		b, err := games.Meme(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		rm, err := b.React(r.Context(), req.SubmissionID, req.Kind)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

func handleGallery(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rooms.Get(r.Context(), sessionFrom(r).RoomCode)
		if err != nil {
			fail(w, logger, err)
			return
		}
		entries := game.Gallery(rm)
		if entries == nil {
			entries = []game.GalleryEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleSubmitApp(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req game.App
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		b, err := games.App(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		rm, err := b.SubmitApp(r.Context(), req)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

// handleVote casts the caller's vote: a meme id in the meme game, a player
// id in the app game.
func handleVote(games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TargetRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		g, err := games.Get(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}

		var rm room.Room
		switch g := g.(type) {
		case *game.MemeBuilder:
			rm, err = g.Vote(r.Context(), req.Target)
		case *game.AppBuilder:
			rm, err = g.Vote(r.Context(), req.Target)
		default:
			err = game.ErrWrongGame
		}
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rm))
	}
}

func handleTally(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rooms.Get(r.Context(), sessionFrom(r).RoomCode)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, game.Tally(rm))
	}
}
