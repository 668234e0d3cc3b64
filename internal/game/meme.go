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

const SubmissionMeme = "meme"

// ReactionKinds are the reactions a meme can receive.
var ReactionKinds = []string{"funny", "love", "wow", "angry", "share"}

type Meme struct {
	ImageURL      string  `json:"imageUrl"`
	Caption       string  `json:"caption"`
	CaptionStyle  string  `json:"captionStyle"`
	Issue         string  `json:"issue"`
	Description   string  `json:"description"`
	CritiqueScore float64 `json:"critiqueScore"`
}

// GalleryEntry is a meme with its reaction total.
type GalleryEntry struct {
	Submission room.Submission `json:"submission"`
	Reactions  map[string]int  `json:"reactions"`
	Total      int             `json:"total"`
}

// MemeBuilder drives the meme game for one participant.
type MemeBuilder struct {
	*Controller
}

func NewMemeBuilder(ctx context.Context, svc *room.Service, code string, me room.Identity, logger *slog.Logger) (*MemeBuilder, error) {
	c, err := NewController(ctx, svc, code, me, logger, nil)
	if err != nil {
		return nil, err
	}
	return &MemeBuilder{Controller: c}, nil
}

// SubmitMeme publishes the participant's finished meme once.
func (b *MemeBuilder) SubmitMeme(ctx context.Context, m Meme) (room.Room, error) {
	r, err := b.current(ctx, "finalize")
	if err != nil {
		return room.Room{}, err
	}
	if m.ImageURL == "" || m.Caption == "" {
		return room.Room{}, fmt.Errorf("%w: meme needs an image and a caption", ErrInvalidAction)
	}

	name := "Unknown"
	if p, ok := r.Player(b.me.ID); ok {
		name = p.Name
	}

	var out room.Room
	err = b.guard("meme/"+phaseKey(r), func() error {
		out, err = b.mutate(ctx, room.AppendSubmission{
			Type: SubmissionMeme,
			Payload: map[string]any{
				"imageUrl":      m.ImageURL,
				"caption":       m.Caption,
				"captionStyle":  m.CaptionStyle,
				"issue":         m.Issue,
				"description":   m.Description,
				"playerName":    name,
				"critiqueScore": m.CritiqueScore,
			},
		})
		return err
	})
	return out, err
}

// React adds one reaction of kind to a meme. Each kind counts once per
// participant and meme.
func (b *MemeBuilder) React(ctx context.Context, submissionID, kind string) (room.Room, error) {
	if !slices.Contains(ReactionKinds, kind) {
		return room.Room{}, fmt.Errorf("%w: unknown reaction %q", ErrInvalidAction, kind)
	}
	var out room.Room
	err := b.guard("react/"+submissionID+"/"+kind, func() error {
		var err error
		out, err = b.mutate(ctx, room.IncrementReaction{SubmissionID: submissionID, Reaction: kind})
		return err
	})
	return out, err
}

// Vote records the participant's favourite meme. Later votes replace
// earlier ones.
func (b *MemeBuilder) Vote(ctx context.Context, submissionID string) (room.Room, error) {
	r, err := b.current(ctx, "gallery", "vote")
	if err != nil {
		return room.Room{}, err
	}
	if _, ok := r.SubmissionByID(submissionID); !ok {
		return room.Room{}, fmt.Errorf("%w: unknown meme %q", ErrInvalidAction, submissionID)
	}
	return b.mutate(ctx, room.CastVote{Value: submissionID})
}

// Critique asks for feedback on a draft meme.
func (b *MemeBuilder) Critique(ctx context.Context, gen *generation.Client, description, caption, issue string) (generation.MemeCritique, error) {
	if err := requireGeneration(gen); err != nil {
		return generation.MemeCritique{}, err
	}
	return gen.CritiqueMeme(ctx, description, caption, issue)
}

func (b *MemeBuilder) Captions(ctx context.Context, gen *generation.Client, issue string) ([]generation.CaptionOption, error) {
	if err := requireGeneration(gen); err != nil {
		return nil, err
	}
	return gen.CaptionOptions(ctx, issue)
}

// Gallery ranks the submitted memes by total reactions, most first.
// Ties keep submission order.
func Gallery(r room.Room) []GalleryEntry {
	var out []GalleryEntry
	for _, s := range r.SubmissionsOfType(SubmissionMeme) {
		e := GalleryEntry{Submission: s, Reactions: map[string]int{}}
		for kind, n := range r.Reactions[s.ID] {
			e.Reactions[kind] = n
			e.Total += n
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b GalleryEntry) int {
		return cmp.Compare(b.Total, a.Total)
	})
	return out
}
