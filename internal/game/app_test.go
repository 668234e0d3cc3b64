package game

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artificial-games/artificial/internal/phase"
	"github.com/artificial-games/artificial/internal/room"
)

func TestAppBuilder(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	code := newRoom(t, svc, phase.VibeCode)

	builders := map[string]*AppBuilder{}
	for _, who := range []room.Identity{host, sam, kim} {
		b, err := NewAppBuilder(ctx, svc, code, who, slog.Default())
		require.NoError(t, err)
		t.Cleanup(b.Close)
		builders[who.ID] = b
	}

	app := App{
		Idea:        "pet adoption matcher",
		Description: "swipe on shelter pets",
		Features:    []string{"swipe", "chat"},
		Code:        "<html><body>pets</body></html>",
		Iterations:  3,
	}
	_, err := builders[sam.ID].SubmitApp(ctx, app)
	assert.ErrorIs(t, err, ErrWrongPhase)

	advanceTo(t, svc, code, "build")
	for _, b := range builders {
		waitPhase(t, b, "build")
	}

	_, err = builders[sam.ID].SubmitApp(ctx, App{Idea: "nothing yet"})
	assert.ErrorIs(t, err, ErrInvalidAction)

	r, err := builders[sam.ID].SubmitApp(ctx, app)
	require.NoError(t, err)
	apps := r.SubmissionsOfType(SubmissionApp)
	require.Len(t, apps, 1)
	assert.Equal(t, "pet adoption matcher", apps[0].String("appIdea"))
	assert.Equal(t, "Sam", apps[0].String("playerName"))
	assert.Equal(t, []any{"swipe", "chat"}, apps[0].Payload["features"])
	assert.EqualValues(t, 3, apps[0].Payload["iterations"])

	_, err = builders[sam.ID].SubmitApp(ctx, app)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	p, ok := r.Player(sam.ID)
	require.True(t, ok)
	assert.True(t, p.Submitted)

	advanceTo(t, svc, code, "vote")
	for _, b := range builders {
		waitPhase(t, b, "vote")
	}

	_, err = builders[kim.ID].Vote(ctx, "stranger")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = builders[host.ID].Vote(ctx, sam.ID)
	require.NoError(t, err)
	_, err = builders[kim.ID].Vote(ctx, kim.ID)
	require.NoError(t, err)
	_, err = builders[kim.ID].Vote(ctx, host.ID)
	require.NoError(t, err)
	_, err = builders[sam.ID].Vote(ctx, host.ID)
	require.NoError(t, err)

	r, err = svc.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, []VoteCount{
		{PlayerID: host.ID, Name: "Host", Votes: 2},
		{PlayerID: sam.ID, Name: "Sam", Votes: 1},
		{PlayerID: kim.ID, Name: "Kim", Votes: 0},
	}, Tally(r))
}

func TestAppGeneration(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	code := newRoom(t, svc, phase.VibeCode)

	b, err := NewAppBuilder(ctx, svc, code, sam, slog.Default())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	_, err = b.Brainstorm(ctx, nil, "todo app", "")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)

	gen := chatServer(t, `{"score":9,"strengths":["tidy"],"issues":[],"suggestions":[],"nextSteps":[]}`)
	review, err := b.Analyze(ctx, gen, "<html></html>")
	require.NoError(t, err)
	assert.Equal(t, 9.0, review.Score)
}
