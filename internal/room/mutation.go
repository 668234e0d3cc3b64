package room

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/artificial-games/artificial/internal/phase"
)

// Mutation is one discrete change a participant asks the Service to commit.
// The set of kinds is closed; each maps onto a single atomic Store primitive.
type Mutation interface {
	Kind() string
	hostOnly(caller string) bool
	apply(ctx context.Context, m *mutator) error
}

// mutator is what a Mutation needs to commit itself.
type mutator struct {
	store  Store
	room   Room
	caller string
	now    time.Time
	seed   uint64
	newID  func() string
}

// SetPhase jumps to any phase of the room's sequence. The phase seed is
// rewritten along with it.
type SetPhase struct {
	Phase string `json:"phase"`
}

func (SetPhase) Kind() string { return "setPhase" }
func (SetPhase) hostOnly(string) bool { return true }

func (m SetPhase) apply(ctx context.Context, mu *mutator) error {
	if !phase.Contains(mu.room.GameType, m.Phase) {
		return fmt.Errorf("%w: %q is not a %s phase", ErrInvalidPhaseTransition, m.Phase, mu.room.GameType)
	}
	return mu.store.SetFields(ctx, mu.room.Code, Fields{Phase: &m.Phase, PhaseSeed: &mu.seed})
}

// SetPhaseEndTime starts a shared countdown. A nil EndTime clears it.
type SetPhaseEndTime struct {
	EndTime *time.Time `json:"endTime"`
}

func (SetPhaseEndTime) Kind() string { return "setPhaseEndTime" }
func (SetPhaseEndTime) hostOnly(string) bool { return true }

func (m SetPhaseEndTime) apply(ctx context.Context, mu *mutator) error {
	t := time.Time{}
	if m.EndTime != nil {
		t = m.EndTime.UTC()
	}
	return mu.store.SetFields(ctx, mu.room.Code, Fields{PhaseEndTime: &t})
}

type SetPaused struct {
	Paused bool `json:"paused"`
}

func (SetPaused) Kind() string { return "setPaused" }
func (SetPaused) hostOnly(string) bool { return true }

func (m SetPaused) apply(ctx context.Context, mu *mutator) error {
	return mu.store.SetFields(ctx, mu.room.Code, Fields{IsPaused: &m.Paused})
}

// SetDisplay picks what the projector view shows.
type SetDisplay struct {
	Mode string          `json:"mode"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (SetDisplay) Kind() string { return "setDisplay" }
func (SetDisplay) hostOnly(string) bool { return true }

func (m SetDisplay) apply(ctx context.Context, mu *mutator) error {
	if len(m.Data) > 0 && !json.Valid(m.Data) {
		return fmt.Errorf("%w: display data is not valid JSON", ErrInvalidMutation)
	}
	return mu.store.SetFields(ctx, mu.room.Code, Fields{Display: &Display{Mode: m.Mode, Data: m.Data}})
}

type SetTimerExtension struct {
	Seconds int `json:"seconds"`
}

func (SetTimerExtension) Kind() string { return "setTimerExtension" }
func (SetTimerExtension) hostOnly(string) bool { return true }

func (m SetTimerExtension) apply(ctx context.Context, mu *mutator) error {
	return mu.store.SetFields(ctx, mu.room.Code, Fields{TimerExtension: &m.Seconds})
}

// ExtendTimer adds Seconds to the running timer extension.
type ExtendTimer struct {
	Seconds int `json:"seconds"`
}

func (ExtendTimer) Kind() string { return "extendTimer" }
func (ExtendTimer) hostOnly(string) bool { return true }

func (m ExtendTimer) apply(ctx context.Context, mu *mutator) error {
	if m.Seconds == 0 {
		return fmt.Errorf("%w: zero extension", ErrInvalidMutation)
	}
	return mu.store.AddTimerExtension(ctx, mu.room.Code, m.Seconds)
}

// FeatureSubmission spotlights a submission on the projector. An empty id
// clears it.
type FeatureSubmission struct {
	SubmissionID string `json:"submissionId"`
}

func (FeatureSubmission) Kind() string { return "featureSubmission" }
func (FeatureSubmission) hostOnly(string) bool { return true }

func (m FeatureSubmission) apply(ctx context.Context, mu *mutator) error {
	if m.SubmissionID != "" {
		if _, ok := mu.room.SubmissionByID(m.SubmissionID); !ok {
			return fmt.Errorf("%w: unknown submission %q", ErrInvalidMutation, m.SubmissionID)
		}
	}
	return mu.store.SetFields(ctx, mu.room.Code, Fields{FeaturedSubmission: &m.SubmissionID})
}

type RemovePlayer struct {
	PlayerID string `json:"playerId"`
}

func (RemovePlayer) Kind() string { return "removePlayer" }
func (RemovePlayer) hostOnly(string) bool { return true }

func (m RemovePlayer) apply(ctx context.Context, mu *mutator) error {
	if m.PlayerID == mu.room.HostID {
		return fmt.Errorf("%w: the host cannot be removed", ErrInvalidMutation)
	}
	return mu.store.RemovePlayer(ctx, mu.room.Code, m.PlayerID)
}

// AppendSubmission adds a record to the room. Its id, submitter and
// timestamp are assigned by the Service.
type AppendSubmission struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func (AppendSubmission) Kind() string { return "appendSubmission" }
func (AppendSubmission) hostOnly(string) bool { return false }

func (m AppendSubmission) apply(ctx context.Context, mu *mutator) error {
	if strings.TrimSpace(m.Type) == "" {
		return fmt.Errorf("%w: submission type required", ErrInvalidMutation)
	}
	return mu.store.AppendSubmission(ctx, mu.room.Code, Submission{
		ID:        mu.newID(),
		Type:      m.Type,
		PlayerID:  mu.caller,
		CreatedAt: mu.now,
		Payload:   m.Payload,
	})
}

type IncrementReaction struct {
	SubmissionID string `json:"submissionId"`
	Reaction     string `json:"reaction"`
}

func (IncrementReaction) Kind() string { return "incrementReaction" }
func (IncrementReaction) hostOnly(string) bool { return false }

func (m IncrementReaction) apply(ctx context.Context, mu *mutator) error {
	if m.Reaction == "" {
		return fmt.Errorf("%w: reaction kind required", ErrInvalidMutation)
	}
	if _, ok := mu.room.SubmissionByID(m.SubmissionID); !ok {
		return fmt.Errorf("%w: unknown submission %q", ErrInvalidMutation, m.SubmissionID)
	}
	return mu.store.IncrementReaction(ctx, mu.room.Code, m.SubmissionID, m.Reaction)
}

// CastVote records the caller's vote. A later vote replaces an earlier one.
type CastVote struct {
	Value string `json:"value"`
}

func (CastVote) Kind() string { return "castVote" }
func (CastVote) hostOnly(string) bool { return false }

func (m CastVote) apply(ctx context.Context, mu *mutator) error {
	if m.Value == "" {
		return fmt.Errorf("%w: vote value required", ErrInvalidMutation)
	}
	return mu.store.SetVote(ctx, mu.room.Code, mu.caller, m.Value)
}

// AdjustScore adds Delta to a player's score. An empty PlayerID means the
// caller; adjusting anyone else is reserved to the host.
type AdjustScore struct {
	PlayerID string `json:"playerId,omitempty"`
	Delta    int    `json:"delta"`
}

func (AdjustScore) Kind() string { return "adjustScore" }

func (m AdjustScore) hostOnly(caller string) bool {
	return m.PlayerID != "" && m.PlayerID != caller
}

func (m AdjustScore) apply(ctx context.Context, mu *mutator) error {
	target := m.PlayerID
	if target == "" {
		target = mu.caller
	}
	return mu.store.AdjustScore(ctx, mu.room.Code, target, m.Delta)
}

var mutationDecoders = map[string]func([]byte) (Mutation, error){
	SetPhase{}.Kind():          decodeAs[SetPhase],
	SetPhaseEndTime{}.Kind():   decodeAs[SetPhaseEndTime],
	SetPaused{}.Kind():         decodeAs[SetPaused],
	SetDisplay{}.Kind():        decodeAs[SetDisplay],
	SetTimerExtension{}.Kind(): decodeAs[SetTimerExtension],
	ExtendTimer{}.Kind():       decodeAs[ExtendTimer],
	FeatureSubmission{}.Kind(): decodeAs[FeatureSubmission],
	RemovePlayer{}.Kind():      decodeAs[RemovePlayer],
	AppendSubmission{}.Kind():  decodeAs[AppendSubmission],
	IncrementReaction{}.Kind(): decodeAs[IncrementReaction],
	CastVote{}.Kind():          decodeAs[CastVote],
	AdjustScore{}.Kind():       decodeAs[AdjustScore],
}

// ParseMutation decodes a JSON mutation of the form {"kind": ..., fields}.
func ParseMutation(data []byte) (Mutation, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}
	decode, ok := mutationDecoders[head.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMutation, head.Kind)
	}
	return decode(data)
}

func decodeAs[T Mutation](data []byte) (Mutation, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}
	return m, nil
}
