package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/artificial-games/artificial/internal/game"
	"github.com/artificial-games/artificial/internal/generation"
)

// generationKeyHeader lets a facilitator bring their own credential. It is
// used for the one request and never stored.
const generationKeyHeader = "X-Generation-Key"

type CompleteRequest struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

type CompleteResponse struct {
	Text string `json:"text"`
}

type ImageRequest struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type CritiqueRequest struct {
	Description string `json:"description"`
	Caption     string `json:"caption"`
	Issue       string `json:"issue"`
}

type CaptionsRequest struct {
	Issue string `json:"issue"`
}

type BrainstormRequest struct {
	Problem     string `json:"problem"`
	Constraints string `json:"constraints,omitempty"`
}

type AnalyzeRequest struct {
	Code string `json:"code"`
}

type TipsRequest struct {
	ImageID     string `json:"imageId"`
	Description string `json:"description"`
}

// generatorFor returns the client to use for r, switched to the caller's
// own key when one is supplied.
func generatorFor(gen *generation.Client, r *http.Request) *generation.Client {
	if key := strings.TrimSpace(r.Header.Get(generationKeyHeader)); key != "" && gen != nil {
		return gen.WithKey(key)
	}
	return gen
}

func handleGenerateComplete(gen *generation.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompleteRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		g := generatorFor(gen, r)
		if !g.Enabled() {
			fail(w, logger, game.ErrGenerationUnavailable)
			return
		}

		text, err := g.Complete(r.Context(), req.Prompt, generation.Options{
			System:      req.System,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, CompleteResponse{Text: text})
	}
}

func handleGenerateImage(gen *generation.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImageRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		g := generatorFor(gen, r)
		if !g.Enabled() {
			fail(w, logger, game.ErrGenerationUnavailable)
			return
		}

		img, err := g.GenerateImage(r.Context(), req.Prompt, generation.ImageOptions{Size: req.Size, Quality: req.Quality})
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, img)
	}
}

func handleMemeCritique(gen *generation.Client, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CritiqueRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		b, err := games.Meme(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		crit, err := b.Critique(r.Context(), generatorFor(gen, r), req.Description, req.Caption, req.Issue)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, crit)
	}
}

func handleMemeCaptions(gen *generation.Client, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CaptionsRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		b, err := games.Meme(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		caps, err := b.Captions(r.Context(), generatorFor(gen, r), req.Issue)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, caps)
	}
}

func handleAppBrainstorm(gen *generation.Client, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BrainstormRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		b, err := games.App(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		plan, err := b.Brainstorm(r.Context(), generatorFor(gen, r), req.Problem, req.Constraints)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

func handleAppAnalyze(gen *generation.Client, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		b, err := games.App(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		review, err := b.Analyze(r.Context(), generatorFor(gen, r), req.Code)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, review)
	}
}

func handleQuizTips(gen *generation.Client, games *game.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TipsRequest
		if err := readJSON(w, r, &req); err != nil {
			fail(w, logger, err)
			return
		}
		q, err := games.Quiz(r.Context(), sessionFrom(r).RoomCode, caller(r))
		if err != nil {
			fail(w, logger, err)
			return
		}
		tips, err := q.Tips(r.Context(), generatorFor(gen, r), req.ImageID, req.Description)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, tips)
	}
}
