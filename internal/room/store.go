package room

import (
	"context"
	"time"
)

// Store holds one document per room code. Every mutating method is a single
// atomic operation at the backend and bumps the room's Version in the same
// unit. Collection appends and counters are true additive operations:
// concurrent callers never overwrite each other.
//
// Missing rooms yield ErrNotFound; backend failures are wrapped in
// ErrStoreUnavailable.
type Store interface {
	Create(ctx context.Context, r Room) error
	Get(ctx context.Context, code string) (Room, error)
	Delete(ctx context.Context, code string) error

	// UpsertPlayer inserts p, or renames the existing record with p.ID while
	// keeping its score, host flag and join time.
	UpsertPlayer(ctx context.Context, code string, p Player) error
	RemovePlayer(ctx context.Context, code, playerID string) error

	// SetFields replaces the non-nil fields. Setting Phase also clears every
	// player's Submitted flag.
	SetFields(ctx context.Context, code string, f Fields) error

	AppendSubmission(ctx context.Context, code string, s Submission) error
	IncrementReaction(ctx context.Context, code, submissionID, kind string) error
	SetVote(ctx context.Context, code, voterID, value string) error
	AdjustScore(ctx context.Context, code, playerID string, delta int) error
	AddTimerExtension(ctx context.Context, code string, seconds int) error

	// PurgeCreatedBefore deletes rooms created before t and returns their codes.
	PurgeCreatedBefore(ctx context.Context, t time.Time) ([]string, error)

	CreateSession(ctx context.Context, tokenHash string, s Session) error
	SessionByHash(ctx context.Context, tokenHash string) (Session, error)
}
