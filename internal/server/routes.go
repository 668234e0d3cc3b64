package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	rooms := deps.Rooms
	limiter := newSessionLimiter(deps.GenerationRate, deps.GenerationBurst)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("ARTIFICIAL API", "/openapi.json", "/docs"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/phases/{gameType}", handlePhases())
		r.Post("/rooms", handleCreateRoom(rooms, logger))
		r.Post("/rooms/{code}/join", handleJoin(rooms, logger))
		r.Get("/rooms/{code}/qr.png", handleQR(rooms, logger))

		// Everything below acts as the participant behind the bearer token.
		r.Route("/rooms/{code}", func(r chi.Router) {
			r.Use(sessionMiddleware(rooms, logger))

			r.Get("/", handleGetRoom(rooms, logger))
			r.Delete("/", handleDeleteRoom(rooms, deps.Games, logger))
			r.Get("/events", handleEvents(rooms, logger))
			r.Get("/ws", handleWS(rooms, logger))
			r.Post("/mutations", handleMutation(rooms, deps.Games, logger))
			r.Post("/advance", handleAdvance(rooms, deps.Games, logger))
			r.Post("/back", handleBack(rooms, deps.Games, logger))

			r.Get("/quiz/deck", handleQuizDeck(deps.Games, logger))
			r.Post("/quiz/answer", handleQuizAnswer(deps.Games, logger))
			r.Get("/werewolf/assignment", handleWerewolfAssignment(deps.Games, logger))
			r.Post("/werewolf/vote", handleWerewolfVote(deps.Games, logger))
			r.Get("/werewolf/tally", handleWerewolfTally(rooms, logger))

			r.Post("/meme", handleSubmitMeme(deps.Games, logger))
			r.Post("/react", handleReact(deps.Games, logger))
			r.Get("/gallery", handleGallery(rooms, logger))

			r.Post("/app", handleSubmitApp(deps.Games, logger))
			r.Post("/vote", handleVote(deps.Games, logger))
			r.Get("/tally", handleTally(rooms, logger))
		})

		r.Route("/generate", func(r chi.Router) {
			r.Use(sessionMiddleware(rooms, logger))
			r.Use(limiter.middleware(logger))

			gen := deps.Generation
			r.Post("/complete", handleGenerateComplete(gen, logger))
			r.Post("/image", handleGenerateImage(gen, logger))
			r.Post("/meme/critique", handleMemeCritique(gen, deps.Games, logger))
			r.Post("/meme/captions", handleMemeCaptions(gen, deps.Games, logger))
			r.Post("/app/brainstorm", handleAppBrainstorm(gen, deps.Games, logger))
			r.Post("/app/analyze", handleAppAnalyze(gen, deps.Games, logger))
			r.Post("/quiz/tips", handleQuizTips(gen, deps.Games, logger))
		})
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
