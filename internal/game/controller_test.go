package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artificial-games/artificial/internal/phase"
	"github.com/artificial-games/artificial/internal/room"
)

var (
	host = room.Identity{ID: "host"}
	sam  = room.Identity{ID: "sam"}
	kim  = room.Identity{ID: "kim"}
)

func newService(t *testing.T) *room.Service {
	t.Helper()
	var seed atomic.Uint64
	return room.NewService(room.NewMemoryStore(), room.NewBroker(), slog.Default(),
		room.WithSeedSource(func() uint64 { return 1000 + seed.Add(1) }))
}

// newRoom creates a room hosted by "host" with sam and kim joined.
func newRoom(t *testing.T, svc *room.Service, g phase.GameType) string {
	t.Helper()
	ctx := context.Background()
	r, err := svc.Create(ctx, g, host, "Host")
	require.NoError(t, err)
	_, _, err = svc.Join(ctx, r.Code, sam, "Sam")
	require.NoError(t, err)
	_, _, err = svc.Join(ctx, r.Code, kim, "Kim")
	require.NoError(t, err)
	return r.Code
}

func advanceTo(t *testing.T, svc *room.Service, code, target string) {
	t.Helper()
	ctx := context.Background()
	for range 20 {
		r, err := svc.Get(ctx, code)
		require.NoError(t, err)
		if r.Phase == target {
			return
		}
		_, err = svc.Advance(ctx, code, host)
		require.NoError(t, err)
	}
	t.Fatalf("never reached phase %q", target)
}

func waitPhase(t *testing.T, g Game, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return g.Room().Phase == want },
		2*time.Second, 5*time.Millisecond, "controller never saw phase %q", want)
}

func TestControllerEntersPhaseOnce(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	code := newRoom(t, svc, phase.VibeCode)

	var mu sync.Mutex
	var entered []string
	c, err := NewController(ctx, svc, code, sam, slog.Default(), func(r room.Room) {
		mu.Lock()
		entered = append(entered, r.Phase)
		mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Equal(t, "lobby", c.Room().Phase)

	_, err = svc.Mutate(ctx, code, host, room.SetPaused{Paused: true})
	require.NoError(t, err)
	_, err = svc.Advance(ctx, code, host)
	require.NoError(t, err)
	_, err = svc.Back(ctx, code, host)
	require.NoError(t, err)
	_, err = svc.Mutate(ctx, code, host, room.SetPaused{Paused: false})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !c.Room().IsPaused && c.Room().Version >= 6 },
		2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// Going back to the lobby is a new entry because the seed changed.
	assert.Equal(t, []string{"lobby", "intro", "lobby"}, entered)
}

func TestControllerGuard(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	code := newRoom(t, svc, phase.VibeCode)

	c, err := NewController(ctx, svc, code, sam, slog.Default(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	boom := errors.New("boom")
	assert.ErrorIs(t, c.guard("k", func() error { return boom }), boom)
	require.NoError(t, c.guard("k", func() error { return nil }), "failed attempts release the claim")
	assert.ErrorIs(t, c.guard("k", func() error { return nil }), ErrAlreadySubmitted)

	c.Close()
	assert.ErrorIs(t, c.guard("other", func() error { return nil }), ErrClosed)
}

func TestControllerUnknownRoom(t *testing.T) {
	svc := newService(t)
	_, err := NewController(context.Background(), svc, "ZZZZZZ", sam, slog.Default(), nil)
	assert.ErrorIs(t, err, room.ErrNotFound)
}

func TestControllerMutateKeepsPhaseForObserver(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	code := newRoom(t, svc, phase.VibeCode)

	release := make(chan struct{})
	var once sync.Once
	c, err := NewController(ctx, svc, code, sam, slog.Default(), func(r room.Room) {
		if r.Phase == "intro" {
			once.Do(func() { <-release })
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
		c.Close()
	})

	_, err = svc.Advance(ctx, code, host)
	require.NoError(t, err)

	// The hook for intro is blocked, so a mutation committed meanwhile must
	// not expose the new phase.
	r, err := c.mutate(ctx, room.CastVote{Value: "host"})
	require.NoError(t, err)
	assert.Equal(t, "intro", r.Phase)
	assert.Equal(t, "lobby", c.Room().Phase)

	close(release)
	waitPhase(t, c, "intro")
}
