package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artificial-games/artificial/internal/game"
)

func TestQuizOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.create("spotTheFake", "Ada")
	sam := env.join(host.Code, "Sam")
	base := "/api/rooms/" + host.Code

	var deck DeckResponse
	env.expect(env.call(http.MethodGet, base+"/quiz/deck", sam.Token, nil), http.StatusOK, &deck)
	assert.Equal(t, "lobby", deck.Phase)
	assert.Empty(t, deck.Cards)

	env.advanceTo(host, "round1")
	env.expect(env.call(http.MethodGet, base+"/quiz/deck", sam.Token, nil), http.StatusOK, &deck)
	assert.Equal(t, "round1", deck.Phase)
	require.NotEmpty(t, deck.Cards)

	card := deck.Cards[0].ID
	var res game.AnswerResult
	env.expect(env.call(http.MethodPost, base+"/quiz/answer", sam.Token, AnswerRequest{ImageID: card, SaysAI: false}),
		http.StatusOK, &res)
	assert.Equal(t, game.AnswerResult{Correct: true, Points: 100, Streak: 1}, res)

	env.expect(env.call(http.MethodPost, base+"/quiz/answer", sam.Token, AnswerRequest{ImageID: card}),
		http.StatusConflict, nil)
	env.expect(env.call(http.MethodPost, base+"/quiz/answer", sam.Token, AnswerRequest{ImageID: "nope"}),
		http.StatusBadRequest, nil)

	var v RoomView
	env.expect(env.call(http.MethodGet, base, sam.Token, nil), http.StatusOK, &v)
	p, ok := v.Player(sam.PlayerID)
	require.True(t, ok)
	assert.Equal(t, 100, p.Score)

	env.advanceTo(host, "round1-debrief")
	env.expect(env.call(http.MethodPost, base+"/quiz/answer", sam.Token, AnswerRequest{ImageID: card}),
		http.StatusConflict, nil)
}

func TestWerewolfOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.create("spotTheFake", "Ada")
	sam := env.join(host.Code, "Sam")
	kim := env.join(host.Code, "Kim")
	base := "/api/rooms/" + host.Code

	env.expect(env.call(http.MethodGet, base+"/werewolf/assignment", sam.Token, nil), http.StatusConflict, nil)

	env.advanceTo(host, "werewolf")

	fakers := 0
	for _, s := range []SessionResponse{host, sam, kim} {
		var role game.Role
		env.expect(env.call(http.MethodGet, base+"/werewolf/assignment", s.Token, nil), http.StatusOK, &role)
		assert.Equal(t, s.PlayerID, role.PlayerID)
		if role.IsAI {
			fakers++
		}
	}
	assert.Equal(t, 1, fakers)

	env.expect(env.call(http.MethodPost, base+"/werewolf/vote", sam.Token, TargetRequest{Target: kim.PlayerID}),
		http.StatusOK, nil)
	env.expect(env.call(http.MethodPost, base+"/werewolf/vote", sam.Token, TargetRequest{Target: "ghost"}),
		http.StatusBadRequest, nil)

	var tally game.WerewolfTally
	env.expect(env.call(http.MethodGet, base+"/werewolf/tally", kim.Token, nil), http.StatusOK, &tally)
	assert.Equal(t, 1, tally.Counts[kim.PlayerID])
	assert.Empty(t, tally.Faker, "faker revealed during the round")

	env.advanceTo(host, "werewolf-vote")
	require.Eventually(t, func() bool {
		var tally game.WerewolfTally
		env.expect(env.call(http.MethodGet, base+"/werewolf/tally", kim.Token, nil), http.StatusOK, &tally)
		return tally.Faker != ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.create("memeMachine", "Ada")
	sam := env.join(host.Code, "Sam")
	kim := env.join(host.Code, "Kim")
	base := "/api/rooms/" + host.Code
	meme := game.Meme{ImageURL: "https://img.example/1.png", Caption: "adopt"}

	env.expect(env.call(http.MethodPost, base+"/meme", sam.Token, meme), http.StatusConflict, nil)

	env.advanceTo(host, "finalize")
	env.expect(env.call(http.MethodPost, base+"/meme", sam.Token, game.Meme{Caption: "no image"}),
		http.StatusBadRequest, nil)

	var v RoomView
	env.expect(env.call(http.MethodPost, base+"/meme", sam.Token, meme), http.StatusOK, &v)
	memes := v.SubmissionsOfType(game.SubmissionMeme)
	require.Len(t, memes, 1)
	assert.Equal(t, "Sam", memes[0].String("playerName"))
	id := memes[0].ID

	env.expect(env.call(http.MethodPost, base+"/meme", sam.Token, meme), http.StatusConflict, nil)

	env.advanceTo(host, "gallery")
	env.expect(env.call(http.MethodPost, base+"/react", kim.Token, ReactRequest{SubmissionID: id, Kind: "funny"}),
		http.StatusOK, nil)
	env.expect(env.call(http.MethodPost, base+"/react", kim.Token, ReactRequest{SubmissionID: id, Kind: "meh"}),
		http.StatusBadRequest, nil)

	var gallery []game.GalleryEntry
	env.expect(env.call(http.MethodGet, base+"/gallery", host.Token, nil), http.StatusOK, &gallery)
	require.Len(t, gallery, 1)
	assert.Equal(t, 1, gallery[0].Total)
	assert.Equal(t, 1, gallery[0].Reactions["funny"])

	env.expect(env.call(http.MethodPost, base+"/vote", kim.Token, TargetRequest{Target: id}), http.StatusOK, &v)
	assert.Equal(t, id, v.Votes[kim.PlayerID])
	env.expect(env.call(http.MethodPost, base+"/vote", kim.Token, TargetRequest{Target: "missing"}),
		http.StatusBadRequest, nil)
}

func TestAppOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.create("vibeCode", "Ada")
	sam := env.join(host.Code, "Sam")
	kim := env.join(host.Code, "Kim")
	base := "/api/rooms/" + host.Code

	env.advanceTo(host, "build")
	app := game.App{Idea: "pet finder", Features: []string{"search"}, Code: "<html></html>", Iterations: 2}
	var v RoomView
	env.expect(env.call(http.MethodPost, base+"/app", kim.Token, app), http.StatusOK, &v)
	apps := v.SubmissionsOfType(game.SubmissionApp)
	require.Len(t, apps, 1)
	assert.Equal(t, "Kim", apps[0].String("playerName"))

	env.expect(env.call(http.MethodPost, base+"/vote", sam.Token, TargetRequest{Target: kim.PlayerID}),
		http.StatusConflict, nil)

	env.advanceTo(host, "vote")
	env.expect(env.call(http.MethodPost, base+"/vote", sam.Token, TargetRequest{Target: kim.PlayerID}),
		http.StatusOK, nil)
	env.expect(env.call(http.MethodPost, base+"/vote", host.Token, TargetRequest{Target: kim.PlayerID}),
		http.StatusOK, nil)

	var tally []game.VoteCount
	env.expect(env.call(http.MethodGet, base+"/tally", sam.Token, nil), http.StatusOK, &tally)
	require.Len(t, tally, 3)
	assert.Equal(t, game.VoteCount{PlayerID: kim.PlayerID, Name: "Kim", Votes: 2}, tally[0])
}

func TestGameRoutesCheckGameType(t *testing.T) {
	env := newTestEnv(t)
	host := env.create("vibeCode", "Ada")
	base := "/api/rooms/" + host.Code

	env.expect(env.call(http.MethodGet, base+"/quiz/deck", host.Token, nil), http.StatusConflict, nil)
	env.expect(env.call(http.MethodPost, base+"/meme", host.Token, game.Meme{}), http.StatusConflict, nil)

	quiz := env.create("spotTheFake", "Bo")
	env.expect(env.call(http.MethodPost, "/api/rooms/"+quiz.Code+"/vote", quiz.Token, TargetRequest{Target: "x"}),
		http.StatusConflict, nil)
}
