package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/artificial-games/artificial/internal/phase"
	"github.com/artificial-games/artificial/internal/room"
)

// Game is what every controller variant offers the registry.
type Game interface {
	Room() room.Room
	Code() string
	Close()
}

type registryKey struct {
	code        string
	participant string
}

// openTimeout bounds opening a controller, which is shared by every caller
// waiting on it.
const openTimeout = 10 * time.Second

// Registry keeps one controller per participant and room, created on first
// use with the variant matching the room's game type. Controllers are opened
// outside the lock; concurrent first uses of one key share a single open.
type Registry struct {
	svc    *room.Service
	logger *slog.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	games  map[registryKey]Game
	epoch  uint64 // bumped whenever controllers are dropped
	closed bool
}

func NewRegistry(svc *room.Service, logger *slog.Logger) *Registry {
	return &Registry{
		svc:    svc,
		logger: logger,
		games:  make(map[registryKey]Game),
	}
}

func (r *Registry) Get(ctx context.Context, code string, me room.Identity) (Game, error) {
	key := registryKey{code: room.NormalizeCode(code), participant: me.ID}
	if g, ok := r.lookup(key); ok {
		return g, nil
	}

	ch := r.group.DoChan(key.code+"/"+key.participant, func() (any, error) {
		return r.openKey(key, me)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Game), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) lookup(key registryKey) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[key]
	return g, ok
}

// openKey opens the controller for key and publishes it. If controllers were
// dropped meanwhile, the room is looked up again so a controller for a
// deleted room is never kept.
func (r *Registry) openKey(key registryKey, me room.Identity) (Game, error) {
	if g, ok := r.lookup(key); ok {
		return g, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	r.mu.RLock()
	epoch := r.epoch
	r.mu.RUnlock()

	rm, err := r.svc.Get(ctx, key.code)
	if err != nil {
		return nil, err
	}
	g, err := r.open(ctx, rm.GameType, key.code, me)
	if err != nil {
		return nil, fmt.Errorf("opening %s controller for %s: %w", rm.GameType, key.code, err)
	}

	for {
		r.mu.Lock()
		switch {
		case r.closed:
			r.mu.Unlock()
			g.Close()
			return nil, ErrClosed
		case r.epoch == epoch:
			r.games[key] = g
			r.mu.Unlock()
			return g, nil
		}
		epoch = r.epoch
		r.mu.Unlock()

		if _, err := r.svc.Get(ctx, key.code); err != nil {
			g.Close()
			return nil, err
		}
	}
}

func (r *Registry) open(ctx context.Context, gameType phase.GameType, code string, me room.Identity) (Game, error) {
	switch gameType {
	case phase.SpotTheFake:
		return NewDetectionQuiz(ctx, r.svc, code, me, r.logger)
	case phase.MemeMachine:
		return NewMemeBuilder(ctx, r.svc, code, me, r.logger)
	case phase.VibeCode:
		return NewAppBuilder(ctx, r.svc, code, me, r.logger)
	}
	return nil, room.ErrUnknownGameType
}

// Quiz returns the participant's detection quiz, or ErrWrongGame.
func (r *Registry) Quiz(ctx context.Context, code string, me room.Identity) (*DetectionQuiz, error) {
	return variant[*DetectionQuiz](ctx, r, code, me)
}

func (r *Registry) Meme(ctx context.Context, code string, me room.Identity) (*MemeBuilder, error) {
	return variant[*MemeBuilder](ctx, r, code, me)
}

func (r *Registry) App(ctx context.Context, code string, me room.Identity) (*AppBuilder, error) {
	return variant[*AppBuilder](ctx, r, code, me)
}

func variant[T Game](ctx context.Context, r *Registry, code string, me room.Identity) (T, error) {
	var zero T
	g, err := r.Get(ctx, code, me)
	if err != nil {
		return zero, err
	}
	t, ok := g.(T)
	if !ok {
		return zero, ErrWrongGame
	}
	return t, nil
}

// CloseRoom drops every controller bound to code.
func (r *Registry) CloseRoom(code string) {
	code = room.NormalizeCode(code)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.epoch++
	for key, g := range r.games {
		if key.code == code {
			g.Close()
			delete(r.games, key)
		}
	}
}

// Len reports how many controllers are open.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.epoch++
	for key, g := range r.games {
		g.Close()
		delete(r.games, key)
	}
	return nil
}
