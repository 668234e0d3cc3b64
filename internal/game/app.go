package game

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/artificial-games/artificial/internal/generation"
	"github.com/artificial-games/artificial/internal/room"
)

const SubmissionApp = "app-complete"

type App struct {
	Idea        string   `json:"appIdea"`
	Description string   `json:"appDescription"`
	Features    []string `json:"features"`
	Code        string   `json:"code"`
	Iterations  int      `json:"iterations"`
}

type VoteCount struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Votes    int    `json:"votes"`
}

// AppBuilder drives the app building game for one participant.
type AppBuilder struct {
	*Controller
}

func NewAppBuilder(ctx context.Context, svc *room.Service, code string, me room.Identity, logger *slog.Logger) (*AppBuilder, error) {
	c, err := NewController(ctx, svc, code, me, logger, nil)
	if err != nil {
		return nil, err
	}
	return &AppBuilder{Controller: c}, nil
}

// SubmitApp publishes the participant's app once per build phase.
func (b *AppBuilder) SubmitApp(ctx context.Context, app App) (room.Room, error) {
	r, err := b.current(ctx, "build")
	if err != nil {
		return room.Room{}, err
	}
	if app.Code == "" {
		return room.Room{}, fmt.Errorf("%w: app has no code", ErrInvalidAction)
	}
	name := ""
	if p, ok := r.Player(b.me.ID); ok {
		name = p.Name
	}
	features := make([]any, len(app.Features))
	for i, f := range app.Features {
		features[i] = f
	}

	var out room.Room
	err = b.guard("app/"+phaseKey(r), func() error {
		out, err = b.mutate(ctx, room.AppendSubmission{
			Type: SubmissionApp,
			Payload: map[string]any{
				"playerName":     name,
				"appIdea":        app.Idea,
				"appDescription": app.Description,
				"features":       features,
				"code":           app.Code,
				"iterations":     app.Iterations,
			},
		})
		return err
	})
	return out, err
}

// Vote picks the player whose app the participant likes best.
func (b *AppBuilder) Vote(ctx context.Context, playerID string) (room.Room, error) {
	r, err := b.current(ctx, "present", "vote")
	if err != nil {
		return room.Room{}, err
	}
	if _, ok := r.Player(playerID); !ok {
		return room.Room{}, fmt.Errorf("%w: %q is not a player", ErrInvalidAction, playerID)
	}
	return b.mutate(ctx, room.CastVote{Value: playerID})
}

func (b *AppBuilder) Brainstorm(ctx context.Context, gen *generation.Client, problem, constraints string) (generation.FeaturePlan, error) {
	if err := requireGeneration(gen); err != nil {
		return generation.FeaturePlan{}, err
	}
	return gen.BrainstormFeatures(ctx, problem, constraints)
}

// Analyze reviews generated app code.
func (b *AppBuilder) Analyze(ctx context.Context, gen *generation.Client, code string) (generation.CodeReview, error) {
	if err := requireGeneration(gen); err != nil {
		return generation.CodeReview{}, err
	}
	return gen.AnalyzeCode(ctx, code)
}

// Tally counts the room's votes per player, most votes first. Every
// player appears, with zero votes if nobody picked them.
func Tally(r room.Room) []VoteCount {
	counts := make(map[string]int, len(r.Votes))
	for _, target := range r.Votes {
		counts[target]++
	}
	out := make([]VoteCount, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, VoteCount{PlayerID: p.ID, Name: p.Name, Votes: counts[p.ID]})
	}
	slices.SortStableFunc(out, func(a, b VoteCount) int {
		return cmp.Compare(b.Votes, a.Votes)
	})
	return out
}
