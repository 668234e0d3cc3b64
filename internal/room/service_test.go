package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/artificial-games/artificial/internal/phase"
)

// stepClock advances one second on every reading so join order is strict.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func fixedCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return "", fmt.Errorf("out of codes")
		}
		c := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return c, nil
	}
}

func newTestService(t *testing.T, s Store, opts ...Option) *Service {
	t.Helper()
	clock := &stepClock{t: epoch}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(s, NewBroker(), slog.Default(), opts...)
}

func TestServiceEndToEnd(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, b.new(t), WithCodeGenerator(fixedCodes("ABC123")))

			r, err := svc.Create(ctx, phase.SpotTheFake, Identity{ID: "host-1"}, "Host")
			require.NoError(t, err)
			assert.Equal(t, "ABC123", r.Code)
			assert.Equal(t, "lobby", r.Phase)
			require.Len(t, r.Players, 1)
			assert.Equal(t, "Host", r.Players[0].Name)
			assert.True(t, r.Players[0].IsHost)
			assert.Zero(t, r.Players[0].Score)

			r, joined, err := svc.Join(ctx, "abc123", Identity{}, "Sam")
			require.NoError(t, err)
			require.Len(t, r.Players, 2)
			sam := r.Players[1]
			assert.Equal(t, "Sam", sam.Name)
			assert.False(t, sam.IsHost)
			assert.NotEmpty(t, sam.ID)
			assert.Equal(t, sam.ID, joined.ID)

			host := Identity{ID: "host-1"}
			_, err = svc.Advance(ctx, "ABC123", host)
			require.NoError(t, err)
			r, err = svc.Advance(ctx, "ABC123", host)
			require.NoError(t, err)
			assert.Equal(t, "round1", r.Phase)

			r, err = svc.Mutate(ctx, "abc123", Identity{ID: sam.ID}, AppendSubmission{
				Type:    "werewolf-vote",
				Payload: map[string]any{"votedFor": "host-1"},
			})
			require.NoError(t, err)
			require.Len(t, r.Submissions, 1)
			sub := r.Submissions[0]
			assert.Equal(t, "werewolf-vote", sub.Type)
			assert.Equal(t, "host-1", sub.String("votedFor"))
			assert.Equal(t, sam.ID, sub.PlayerID)
			assert.NotEmpty(t, sub.ID)
		})
	}
}

func TestServiceConcurrentSubmissions(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, b.new(t))

			r, err := svc.Create(ctx, phase.MemeMachine, Identity{ID: "A"}, "A")
			require.NoError(t, err)
			_, _, err = svc.Join(ctx, r.Code, Identity{ID: "B"}, "B")
			require.NoError(t, err)

			var g errgroup.Group
			for _, id := range []string{"A", "B"} {
				g.Go(func() error {
					_, err := svc.Mutate(ctx, r.Code, Identity{ID: id}, AppendSubmission{Type: "meme"})
					return err
				})
			}
			require.NoError(t, g.Wait())

			r, err = svc.Get(ctx, r.Code)
			require.NoError(t, err)
			require.Len(t, r.Submissions, 2)
			ids := []string{r.Submissions[0].PlayerID, r.Submissions[1].PlayerID}
			assert.ElementsMatch(t, []string{"A", "B"}, ids)
		})
	}
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown game type", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore())
		_, err := svc.Create(ctx, "not-a-real-game", Identity{ID: "h"}, "H")
		assert.ErrorIs(t, err, ErrUnknownGameType)
	})

	t.Run("codes are unique", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore())
		seen := map[string]bool{}
		for range 100 {
			r, err := svc.Create(ctx, phase.VibeCode, Identity{}, "H")
			require.NoError(t, err)
			assert.False(t, seen[r.Code], "duplicate code %s", r.Code)
			seen[r.Code] = true
			assert.NotEmpty(t, r.HostID)
		}
	})

	t.Run("retries collisions", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore(), WithCodeGenerator(fixedCodes("AAAAAA", "AAAAAA", "BBBBBB")))
		first, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		require.NoError(t, err)
		second, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		require.NoError(t, err)
		assert.Equal(t, "AAAAAA", first.Code)
		assert.Equal(t, "BBBBBB", second.Code)
	})

	t.Run("allocation exhausted", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore(), WithCodeGenerator(fixedCodes("AAAAAA")))
		_, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		require.NoError(t, err)
		_, err = svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		assert.ErrorIs(t, err, ErrAllocationExhausted)
	})
}

func TestServiceJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent by identity", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore())
		r, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		require.NoError(t, err)

		_, _, err = svc.Join(ctx, r.Code, Identity{ID: "p"}, "Pat")
		require.NoError(t, err)
		r, _, err = svc.Join(ctx, r.Code, Identity{ID: "p"}, "Patricia")
		require.NoError(t, err)

		require.Len(t, r.Players, 2)
		p, ok := r.Player("p")
		require.True(t, ok)
		assert.Equal(t, "Patricia", p.Name)
	})

	t.Run("unknown room", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore())
		_, _, err := svc.Join(ctx, "ZZZZZZ", Identity{ID: "p"}, "Pat")
		assert.ErrorIs(t, err, ErrNotFound)
		_, _, err = svc.Join(ctx, "no!", Identity{ID: "p"}, "Pat")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("room full", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore())
		r, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		require.NoError(t, err)

		for i := 1; i < DefaultSettings.MaxPlayers; i++ {
			_, _, err := svc.Join(ctx, r.Code, Identity{ID: fmt.Sprintf("p%d", i)}, "P")
			require.NoError(t, err)
		}
		_, _, err = svc.Join(ctx, r.Code, Identity{ID: "late"}, "Late")
		assert.ErrorIs(t, err, ErrRoomFull)

		_, _, err = svc.Join(ctx, r.Code, Identity{ID: "p1"}, "Renamed")
		assert.NoError(t, err, "rejoin is allowed when full")
	})

	t.Run("fresh ids skip taken ones", func(t *testing.T) {
		ids := []string{"sam", "sam", "kim"}
		svc := newTestService(t, NewMemoryStore(), WithIDGenerator(func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		}))
		r, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		require.NoError(t, err)

		_, who, err := svc.Join(ctx, r.Code, Identity{}, "Sam")
		require.NoError(t, err)
		assert.Equal(t, "sam", who.ID)

		r, who, err = svc.Join(ctx, r.Code, Identity{}, "Kim")
		require.NoError(t, err)
		assert.Equal(t, "kim", who.ID, "an id already in the room is not reused")
		require.Len(t, r.Players, 3)
		assert.Equal(t, "Sam", r.Players[1].Name)
	})

	t.Run("host rejoin keeps host flag", func(t *testing.T) {
		svc := newTestService(t, NewMemoryStore())
		r, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
		require.NoError(t, err)

		r, _, err = svc.Join(ctx, r.Code, Identity{ID: "h"}, "")
		require.NoError(t, err)
		require.Len(t, r.Players, 1)
		assert.True(t, r.Players[0].IsHost)
		assert.Equal(t, "H", r.Players[0].Name)
	})
}

func newLobby(t *testing.T, gameType phase.GameType, opts ...Option) (*Service, Room) {
	t.Helper()
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore(), opts...)
	r, err := svc.Create(ctx, gameType, Identity{ID: "host"}, "Host")
	require.NoError(t, err)
	r, _, err = svc.Join(ctx, r.Code, Identity{ID: "sam"}, "Sam")
	require.NoError(t, err)
	return svc, r
}

func TestServiceMutateAuthorization(t *testing.T) {
	ctx := context.Background()
	svc, r := newLobby(t, phase.SpotTheFake)
	host, sam, outsider := Identity{ID: "host"}, Identity{ID: "sam"}, Identity{ID: "eve"}

	hostOnly := []Mutation{
		SetPhase{Phase: "intro"},
		SetPhaseEndTime{},
		SetPaused{Paused: true},
		SetDisplay{Mode: "leaderboard"},
		SetTimerExtension{Seconds: 30},
		ExtendTimer{Seconds: 30},
		FeatureSubmission{},
		RemovePlayer{PlayerID: "host"},
		AdjustScore{PlayerID: "host", Delta: 10},
	}
	for _, m := range hostOnly {
		t.Run(m.Kind(), func(t *testing.T) {
			_, err := svc.Mutate(ctx, r.Code, sam, m)
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}

	_, err := svc.Mutate(ctx, r.Code, outsider, AppendSubmission{Type: "meme"})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.Mutate(ctx, r.Code, sam, AdjustScore{Delta: 110})
	require.NoError(t, err)
	p, _ := got.Player("sam")
	assert.Equal(t, 110, p.Score)

	got, err = svc.Mutate(ctx, r.Code, host, AdjustScore{PlayerID: "sam", Delta: -10})
	require.NoError(t, err)
	p, _ = got.Player("sam")
	assert.Equal(t, 100, p.Score)
}

func TestServiceMutateValidation(t *testing.T) {
	ctx := context.Background()
	svc, r := newLobby(t, phase.SpotTheFake)
	host := Identity{ID: "host"}

	_, err := svc.Mutate(ctx, r.Code, host, SetPhase{Phase: "gallery"})
	assert.ErrorIs(t, err, ErrInvalidPhaseTransition)

	_, err = svc.Mutate(ctx, r.Code, host, RemovePlayer{PlayerID: "host"})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = svc.Mutate(ctx, r.Code, host, AppendSubmission{})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = svc.Mutate(ctx, r.Code, host, IncrementReaction{SubmissionID: "missing", Reaction: "love"})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = svc.Mutate(ctx, r.Code, host, SetDisplay{Mode: "x", Data: []byte("{nope")})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = svc.Mutate(ctx, "ZZZZZZ", host, CastVote{Value: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Mutate(ctx, r.Code, host, SetPhase{Phase: "werewolf"})
	require.NoError(t, err)
	assert.Equal(t, "werewolf", got.Phase)
}

func TestServiceHostControls(t *testing.T) {
	ctx := context.Background()
	svc, r := newLobby(t, phase.MemeMachine)
	host, sam := Identity{ID: "host"}, Identity{ID: "sam"}

	r, err := svc.Mutate(ctx, r.Code, sam, AppendSubmission{Type: "meme", Payload: map[string]any{"caption": "hi"}})
	require.NoError(t, err)
	subID := r.Submissions[0].ID

	end := epoch.Add(time.Hour)
	steps := []Mutation{
		SetPhaseEndTime{EndTime: &end},
		SetPaused{Paused: true},
		SetDisplay{Mode: "spotlight", Data: []byte(`{"id":1}`)},
		ExtendTimer{Seconds: 30},
		ExtendTimer{Seconds: 15},
		FeatureSubmission{SubmissionID: subID},
	}
	for _, m := range steps {
		r, err = svc.Mutate(ctx, r.Code, host, m)
		require.NoError(t, err, m.Kind())
	}

	require.NotNil(t, r.PhaseEndTime)
	assert.True(t, r.PhaseEndTime.Equal(end))
	assert.True(t, r.IsPaused)
	assert.Equal(t, "spotlight", r.DisplayMode)
	assert.Equal(t, 45, r.TimerExtension)
	assert.Equal(t, subID, r.FeaturedSubmission)

	r, err = svc.Mutate(ctx, r.Code, host, RemovePlayer{PlayerID: "sam"})
	require.NoError(t, err)
	assert.Len(t, r.Players, 1)

	_, err = svc.Mutate(ctx, r.Code, sam, CastVote{Value: "x"})
	assert.ErrorIs(t, err, ErrForbidden, "removed players cannot mutate")
}

func TestServiceReactionsAndVotes(t *testing.T) {
	ctx := context.Background()
	svc, r := newLobby(t, phase.MemeMachine)
	_, _, err := svc.Join(ctx, r.Code, Identity{ID: "kim"}, "Kim")
	require.NoError(t, err)

	r, err = svc.Mutate(ctx, r.Code, Identity{ID: "sam"}, AppendSubmission{Type: "meme"})
	require.NoError(t, err)
	s := r.Submissions[0].ID

	for _, id := range []string{"host", "sam", "kim"} {
		_, err := svc.Mutate(ctx, r.Code, Identity{ID: id}, IncrementReaction{SubmissionID: s, Reaction: "love"})
		require.NoError(t, err)
	}
	r, err = svc.Mutate(ctx, r.Code, Identity{ID: "kim"}, IncrementReaction{SubmissionID: s, Reaction: "laugh"})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Reactions[s]["love"])
	assert.Equal(t, 1, r.Reactions[s]["laugh"])

	_, err = svc.Mutate(ctx, r.Code, Identity{ID: "kim"}, CastVote{Value: "X"})
	require.NoError(t, err)
	r, err = svc.Mutate(ctx, r.Code, Identity{ID: "kim"}, CastVote{Value: "Y"})
	require.NoError(t, err)
	assert.Equal(t, "Y", r.Votes["kim"])
	assert.Len(t, r.Votes, 1)
}

func TestServiceAdvanceBack(t *testing.T) {
	ctx := context.Background()
	var seed atomic.Uint64
	svc, r := newLobby(t, phase.VibeCode, WithSeedSource(func() uint64 { return seed.Add(1) }))
	host := Identity{ID: "host"}

	back, err := svc.Back(ctx, r.Code, host)
	require.NoError(t, err)
	assert.Equal(t, "lobby", back.Phase)
	assert.Equal(t, r.Version, back.Version, "no write at the first phase")

	_, err = svc.Advance(ctx, r.Code, Identity{ID: "sam"})
	assert.ErrorIs(t, err, ErrForbidden)

	var seeds []uint64
	for _, want := range phase.SequenceFor(phase.VibeCode)[1:] {
		r, err = svc.Advance(ctx, r.Code, host)
		require.NoError(t, err)
		assert.Equal(t, want, r.Phase)
		seeds = append(seeds, r.PhaseSeed)
	}
	assert.Equal(t, "results", r.Phase)
	for i := 1; i < len(seeds); i++ {
		assert.NotEqual(t, seeds[i-1], seeds[i], "each phase entry gets a fresh seed")
	}

	last, err := svc.Advance(ctx, r.Code, host)
	require.NoError(t, err)
	assert.Equal(t, "results", last.Phase)
	assert.Equal(t, r.Version, last.Version)

	r, err = svc.Back(ctx, r.Code, host)
	require.NoError(t, err)
	assert.Equal(t, "vote", r.Phase)
}

func TestServiceSubscribe(t *testing.T) {
	ctx := context.Background()
	svc, r := newLobby(t, phase.VibeCode)
	host := Identity{ID: "host"}

	got := make(chan Room, 32)
	cancel, err := svc.Subscribe(ctx, r.Code, func(r Room) { got <- r })
	require.NoError(t, err)

	first := <-got
	assert.Equal(t, r.Version, first.Version, "current snapshot first")

	for range 3 {
		_, err := svc.Advance(ctx, r.Code, host)
		require.NoError(t, err)
	}

	last := first.Version
	var phases []string
	for len(phases) < 3 {
		select {
		case snap := <-got:
			assert.Greater(t, snap.Version, last)
			last = snap.Version
			phases = append(phases, snap.Phase)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshots")
		}
	}
	assert.Equal(t, []string{"intro", "build", "present"}, phases)

	cancel()
	cancel()

	_, err = svc.Advance(ctx, r.Code, host)
	require.NoError(t, err)
	select {
	case snap := <-got:
		t.Fatalf("snapshot %d delivered after cancel", snap.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceSubscribeUnknownRoom(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	_, err := svc.Subscribe(context.Background(), "ZZZZZZ", func(Room) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceWatchEndsOnRemove(t *testing.T) {
	ctx := context.Background()
	svc, r := newLobby(t, phase.VibeCode)

	ch, err := svc.Watch(ctx, r.Code)
	require.NoError(t, err)
	<-ch

	assert.ErrorIs(t, svc.Remove(ctx, r.Code, Identity{ID: "sam"}), ErrForbidden)
	require.NoError(t, svc.Remove(ctx, r.Code, Identity{ID: "host"}))

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not end")
	}

	_, err = svc.Get(ctx, r.Code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServicePurgeClosesExpiredRedisRooms(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newRedisClient(t)
	clock := &stepClock{t: epoch}
	svc := NewService(NewRedisStore(rdb, time.Hour), NewBroker(), slog.Default(), WithClock(clock.Now))

	r, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
	require.NoError(t, err)
	ch, err := svc.Watch(ctx, r.Code)
	require.NoError(t, err)
	<-ch

	mr.FastForward(2 * time.Hour)
	clock.Advance(2 * time.Hour)

	codes, err := svc.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{r.Code}, codes)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch of an expired room did not end")
	}
}

func TestServiceSessions(t *testing.T) {
	ctx := context.Background()
	svc, r := newLobby(t, phase.VibeCode)

	token, err := svc.OpenSession(ctx, r.Code, Identity{ID: "sam"})
	require.NoError(t, err)

	sess, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, r.Code, sess.RoomCode)
	assert.Equal(t, "sam", sess.ParticipantID)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = svc.Authenticate(ctx, "forged")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestServicePurge(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{t: epoch}
	svc := NewService(NewMemoryStore(), NewBroker(), slog.Default(), WithClock(clock.Now))

	old, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	fresh, err := svc.Create(ctx, phase.VibeCode, Identity{ID: "h"}, "H")
	require.NoError(t, err)

	codes, err := svc.Purge(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, codes, "zero ttl keeps everything")

	codes, err = svc.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{old.Code}, codes)

	_, err = svc.Get(ctx, fresh.Code)
	assert.NoError(t, err)
}
