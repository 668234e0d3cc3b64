package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/artificial-games/artificial/internal/game"
	"github.com/artificial-games/artificial/internal/generation"
	"github.com/artificial-games/artificial/internal/handler/health"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func addErrors(oc openapi.OperationContext, statuses ...int) {
	for _, status := range statuses {
		oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
	}
}

// addSessionErrors documents the failures of every token-protected route.
func addSessionErrors(oc openapi.OperationContext) {
	addErrors(oc, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound)
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "ARTIFICIAL API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Rooms, phases and live state for the ARTIFICIAL party games.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Reports the reachability of the configured room store.")
	getHealthz.AddRespStructure(health.Response{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(health.Response{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/phases/{gameType}
	getPhases, _ := r.NewOperationContext(http.MethodGet, "/api/phases/{gameType}")
	getPhases.SetSummary("Phase sequence")
	getPhases.SetDescription("Returns the ordered phases of a game type.")
	getPhases.AddRespStructure(PhasesResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	addErrors(getPhases, http.StatusNotFound)
	_ = r.AddOperation(getPhases)

	// POST /api/rooms
	createRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms")
	createRoom.SetSummary("Create room")
	createRoom.SetDescription("Creates a room in the lobby with the caller as host. Returns the host's session token.")
	createRoom.AddReqStructure(CreateRoomRequest{})
	createRoom.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	addErrors(createRoom, http.StatusBadRequest, http.StatusServiceUnavailable)
	_ = r.AddOperation(createRoom)

	// POST /api/rooms/{code}/join
	joinRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/join")
	joinRoom.SetSummary("Join room")
	joinRoom.SetDescription("Adds a player to the room. A Bearer token already bound to the room rejoins under the same identity.")
	joinRoom.AddReqStructure(JoinRequest{})
	joinRoom.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	addErrors(joinRoom, http.StatusBadRequest, http.StatusNotFound, http.StatusConflict)
	_ = r.AddOperation(joinRoom)

	// GET /api/rooms/{code}/qr.png
	getQR, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/qr.png")
	getQR.SetSummary("Join QR code")
	getQR.SetDescription("PNG QR code of the room's join link.")
	getQR.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK), openapi.WithContentType("image/png"))
	addErrors(getQR, http.StatusNotFound)
	_ = r.AddOperation(getQR)

	// GET /api/rooms/{code}
	getRoom, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}")
	getRoom.SetSummary("Get room")
	getRoom.SetDescription("Returns the current room snapshot. Requires Bearer token.")
	getRoom.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(getRoom)
	_ = r.AddOperation(getRoom)

	// DELETE /api/rooms/{code}
	deleteRoom, _ := r.NewOperationContext(http.MethodDelete, "/api/rooms/{code}")
	deleteRoom.SetSummary("Remove room")
	deleteRoom.SetDescription("Host only. Removes the room and ends every subscription.")
	deleteRoom.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	addSessionErrors(deleteRoom)
	_ = r.AddOperation(deleteRoom)

	// GET /api/rooms/{code}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/events")
	getEvents.SetSummary("SSE room stream")
	getEvents.SetDescription("Server-Sent Events stream of room snapshots. Pass the token as a query parameter.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	addSessionErrors(getEvents)
	_ = r.AddOperation(getEvents)

	// GET /api/rooms/{code}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/ws")
	getWS.SetSummary("WebSocket room stream")
	getWS.SetDescription("Upgrades to a WebSocket that receives every room snapshot as JSON.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("application/json"))
	addSessionErrors(getWS)
	_ = r.AddOperation(getWS)

	// POST /api/rooms/{code}/mutations
	postMutation, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/mutations")
	postMutation.SetSummary("Apply mutation")
	postMutation.SetDescription("Applies one room mutation. The body carries a kind discriminator and its fields.")
	postMutation.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postMutation)
	addErrors(postMutation, http.StatusBadRequest, http.StatusConflict)
	_ = r.AddOperation(postMutation)

	// POST /api/rooms/{code}/advance
	postAdvance, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/advance")
	postAdvance.SetSummary("Advance phase")
	postAdvance.SetDescription("Host only. Moves the room to the next phase.")
	postAdvance.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postAdvance)
	addErrors(postAdvance, http.StatusConflict)
	_ = r.AddOperation(postAdvance)

	// POST /api/rooms/{code}/back
	postBack, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/back")
	postBack.SetSummary("Previous phase")
	postBack.SetDescription("Host only. Moves the room to the previous phase.")
	postBack.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postBack)
	addErrors(postBack, http.StatusConflict)
	_ = r.AddOperation(postBack)

	// GET /api/rooms/{code}/quiz/deck
	getDeck, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/quiz/deck")
	getDeck.SetSummary("Quiz deck")
	getDeck.SetDescription("The caller's card order for the current round.")
	getDeck.AddRespStructure(DeckResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(getDeck)
	_ = r.AddOperation(getDeck)

	// POST /api/rooms/{code}/quiz/answer
	postAnswer, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/quiz/answer")
	postAnswer.SetSummary("Answer card")
	postAnswer.SetDescription("Says whether a card is AI generated. Each card counts once per round.")
	postAnswer.AddReqStructure(AnswerRequest{})
	postAnswer.AddRespStructure(game.AnswerResult{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postAnswer)
	addErrors(postAnswer, http.StatusBadRequest, http.StatusConflict)
	_ = r.AddOperation(postAnswer)

	// GET /api/rooms/{code}/werewolf/assignment
	getAssignment, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/werewolf/assignment")
	getAssignment.SetSummary("Werewolf assignment")
	getAssignment.SetDescription("The caller's secret portrait for the werewolf round.")
	getAssignment.AddRespStructure(game.Role{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(getAssignment)
	addErrors(getAssignment, http.StatusConflict)
	_ = r.AddOperation(getAssignment)

	// POST /api/rooms/{code}/werewolf/vote
	postAccuse, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/werewolf/vote")
	postAccuse.SetSummary("Accuse player")
	postAccuse.SetDescription("Votes for the player believed to hold the AI portrait.")
	postAccuse.AddReqStructure(TargetRequest{})
	postAccuse.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postAccuse)
	addErrors(postAccuse, http.StatusBadRequest, http.StatusConflict)
	_ = r.AddOperation(postAccuse)

	// GET /api/rooms/{code}/werewolf/tally
	getWerewolfTally, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/werewolf/tally")
	getWerewolfTally.SetSummary("Werewolf tally")
	getWerewolfTally.SetDescription("Vote counts. The faker is revealed once voting has closed.")
	getWerewolfTally.AddRespStructure(game.WerewolfTally{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(getWerewolfTally)
	_ = r.AddOperation(getWerewolfTally)

	// POST /api/rooms/{code}/meme
	postMeme, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/meme")
	postMeme.SetSummary("Submit meme")
	postMeme.SetDescription("Publishes the caller's finished meme.")
	postMeme.AddReqStructure(game.Meme{})
	postMeme.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postMeme)
	addErrors(postMeme, http.StatusBadRequest, http.StatusConflict)
	_ = r.AddOperation(postMeme)

	// POST /api/rooms/{code}/react
	postReact, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/react")
	postReact.SetSummary("React to meme")
	postReact.SetDescription("Adds one reaction of a kind to a meme.")
	postReact.AddReqStructure(ReactRequest{})
	postReact.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postReact)
	addErrors(postReact, http.StatusBadRequest, http.StatusConflict)
	_ = r.AddOperation(postReact)

	// GET /api/rooms/{code}/gallery
	getGallery, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/gallery")
	getGallery.SetSummary("Meme gallery")
	getGallery.SetDescription("Submitted memes ordered by reactions.")
	getGallery.AddRespStructure([]game.GalleryEntry{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(getGallery)
	_ = r.AddOperation(getGallery)

	// POST /api/rooms/{code}/app
	postApp, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/app")
	postApp.SetSummary("Submit app")
	postApp.SetDescription("Publishes the caller's app for the presentation round.")
	postApp.AddReqStructure(game.App{})
	postApp.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postApp)
	addErrors(postApp, http.StatusBadRequest, http.StatusConflict)
	_ = r.AddOperation(postApp)

	// POST /api/rooms/{code}/vote
	postVote, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/vote")
	postVote.SetSummary("Cast vote")
	postVote.SetDescription("Votes for a meme id or, in the app game, a player id.")
	postVote.AddReqStructure(TargetRequest{})
	postVote.AddRespStructure(RoomView{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(postVote)
	addErrors(postVote, http.StatusBadRequest, http.StatusConflict)
	_ = r.AddOperation(postVote)

	// GET /api/rooms/{code}/tally
	getTally, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/tally")
	getTally.SetSummary("Vote tally")
	getTally.SetDescription("Votes per player, most first.")
	getTally.AddRespStructure([]game.VoteCount{}, openapi.WithHTTPStatus(http.StatusOK))
	addSessionErrors(getTally)
	_ = r.AddOperation(getTally)

	// POST /api/generate/complete
	postComplete, _ := r.NewOperationContext(http.MethodPost, "/api/generate/complete")
	postComplete.SetSummary("Text completion")
	postComplete.SetDescription("Runs a prompt through the text model. Send X-Generation-Key to use your own key.")
	postComplete.AddReqStructure(CompleteRequest{})
	postComplete.AddRespStructure(CompleteResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	addGenerationErrors(postComplete)
	_ = r.AddOperation(postComplete)

	// POST /api/generate/image
	postImage, _ := r.NewOperationContext(http.MethodPost, "/api/generate/image")
	postImage.SetSummary("Image generation")
	postImage.SetDescription("Generates an image from a prompt.")
	postImage.AddReqStructure(ImageRequest{})
	postImage.AddRespStructure(generation.Image{}, openapi.WithHTTPStatus(http.StatusOK))
	addGenerationErrors(postImage)
	_ = r.AddOperation(postImage)

	// POST /api/generate/meme/critique
	postCritique, _ := r.NewOperationContext(http.MethodPost, "/api/generate/meme/critique")
	postCritique.SetSummary("Critique meme")
	postCritique.AddReqStructure(CritiqueRequest{})
	postCritique.AddRespStructure(generation.MemeCritique{}, openapi.WithHTTPStatus(http.StatusOK))
	addGenerationErrors(postCritique)
	_ = r.AddOperation(postCritique)

	// POST /api/generate/meme/captions
	postCaptions, _ := r.NewOperationContext(http.MethodPost, "/api/generate/meme/captions")
	postCaptions.SetSummary("Suggest captions")
	postCaptions.AddReqStructure(CaptionsRequest{})
	postCaptions.AddRespStructure([]generation.CaptionOption{}, openapi.WithHTTPStatus(http.StatusOK))
	addGenerationErrors(postCaptions)
	_ = r.AddOperation(postCaptions)

	// POST /api/generate/app/brainstorm
	postBrainstorm, _ := r.NewOperationContext(http.MethodPost, "/api/generate/app/brainstorm")
	postBrainstorm.SetSummary("Brainstorm features")
	postBrainstorm.AddReqStructure(BrainstormRequest{})
	postBrainstorm.AddRespStructure(generation.FeaturePlan{}, openapi.WithHTTPStatus(http.StatusOK))
	addGenerationErrors(postBrainstorm)
	_ = r.AddOperation(postBrainstorm)

	// POST /api/generate/app/analyze
	postAnalyze, _ := r.NewOperationContext(http.MethodPost, "/api/generate/app/analyze")
	postAnalyze.SetSummary("Review app code")
	postAnalyze.AddReqStructure(AnalyzeRequest{})
	postAnalyze.AddRespStructure(generation.CodeReview{}, openapi.WithHTTPStatus(http.StatusOK))
	addGenerationErrors(postAnalyze)
	_ = r.AddOperation(postAnalyze)

	// POST /api/generate/quiz/tips
	postTips, _ := r.NewOperationContext(http.MethodPost, "/api/generate/quiz/tips")
	postTips.SetSummary("Detection tips")
	postTips.AddReqStructure(TipsRequest{})
	postTips.AddRespStructure([]generation.DetectionTip{}, openapi.WithHTTPStatus(http.StatusOK))
	addGenerationErrors(postTips)
	_ = r.AddOperation(postTips)

	return r.Spec
}

func addGenerationErrors(oc openapi.OperationContext) {
	addSessionErrors(oc)
	addErrors(oc, http.StatusBadRequest, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout)
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
