// Package game holds the per-participant controllers of the three games.
// A controller follows one room through a subscription, runs its phase
// entry hook at most once per phase entry, and turns user actions into
// single room mutations.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/artificial-games/artificial/internal/generation"
	"github.com/artificial-games/artificial/internal/room"
)

var (
	ErrAlreadySubmitted      = errors.New("already submitted")
	ErrWrongPhase            = errors.New("action not available in this phase")
	ErrInvalidAction         = errors.New("invalid action")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrClosed                = errors.New("controller closed")
	ErrWrongGame             = errors.New("action belongs to another game")
)

// Controller binds one participant to one room.
type Controller struct {
	svc    *room.Service
	code   string
	me     room.Identity
	logger *slog.Logger

	// obs serializes observe between the subscription and Refresh.
	obs sync.Mutex

	mu      sync.Mutex
	latest  room.Room
	entered string
	guards  map[string]bool
	onEnter func(room.Room)
	closed  bool

	cancel func()
}

// NewController subscribes to the room and returns once the first snapshot
// has been seen. onEnter may be nil.
func NewController(ctx context.Context, svc *room.Service, code string, me room.Identity, logger *slog.Logger, onEnter func(room.Room)) (*Controller, error) {
	c := newController(svc, code, me, logger, onEnter)
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newController(svc *room.Service, code string, me room.Identity, logger *slog.Logger, onEnter func(room.Room)) *Controller {
	code = room.NormalizeCode(code)
	return &Controller{
		svc:     svc,
		code:    code,
		me:      me,
		logger:  logger.With("code", code, "participant", me.ID),
		guards:  make(map[string]bool),
		onEnter: onEnter,
	}
}

// start subscribes and waits for the first snapshot. Games embedding the
// controller call it once their own state is ready for the entry hook.
func (c *Controller) start(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once
	cancel, err := c.svc.Subscribe(context.Background(), c.code, func(r room.Room) {
		c.observe(r)
		once.Do(func() { close(ready) })
	})
	if err != nil {
		return err
	}
	c.cancel = cancel

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func phaseKey(r room.Room) string {
	return r.Phase + "/" + strconv.FormatUint(r.PhaseSeed, 10)
}

// observe runs the entry hook before the new phase becomes visible through
// Room, so actions never see a phase whose state is not set up yet.
// Snapshots older than the latest one seen are ignored.
func (c *Controller) observe(r room.Room) {
	c.obs.Lock()
	defer c.obs.Unlock()

	key := phaseKey(r)
	c.mu.Lock()
	if c.entered != "" && r.Version <= c.latest.Version {
		c.mu.Unlock()
		return
	}
	enter := key != c.entered
	hook := c.onEnter
	c.mu.Unlock()

	if enter && hook != nil {
		c.logger.Debug("entering phase", "phase", r.Phase)
		hook(r)
	}

	c.mu.Lock()
	c.entered = key
	c.latest = r
	c.mu.Unlock()
}

// Refresh reads the room and folds it in without waiting for the
// subscription to deliver it.
func (c *Controller) Refresh(ctx context.Context) error {
	r, err := c.svc.Get(ctx, c.code)
	if err != nil {
		return err
	}
	c.observe(r)
	return nil
}

// Room returns the latest snapshot seen.
func (c *Controller) Room() room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest.Clone()
}

func (c *Controller) Me() room.Identity { return c.me }

func (c *Controller) Code() string { return c.code }

// guard runs fn unless key was already claimed. A failed fn releases the
// claim so the action can be retried.
func (c *Controller) guard(key string, fn func() error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.guards[key] {
		c.mu.Unlock()
		return ErrAlreadySubmitted
	}
	c.guards[key] = true
	c.mu.Unlock()

	if err := fn(); err != nil {
		c.mu.Lock()
		delete(c.guards, key)
		c.mu.Unlock()
		return err
	}
	return nil
}

// mutate commits m and folds the committed snapshot into the local view.
// A snapshot from a phase not yet entered is left to observe.
func (c *Controller) mutate(ctx context.Context, m room.Mutation) (room.Room, error) {
	r, err := c.svc.Mutate(ctx, c.code, c.me, m)
	if err != nil {
		return room.Room{}, err
	}
	c.mu.Lock()
	if r.Version > c.latest.Version && phaseKey(r) == c.entered {
		c.latest = r
	}
	c.mu.Unlock()
	return r, nil
}

// current refreshes and returns the snapshot if it is in one of phases.
func (c *Controller) current(ctx context.Context, phases ...string) (room.Room, error) {
	if err := c.Refresh(ctx); err != nil {
		return room.Room{}, err
	}
	r := c.Room()
	for _, p := range phases {
		if r.Phase == p {
			return r, nil
		}
	}
	return room.Room{}, fmt.Errorf("%w: %s", ErrWrongPhase, r.Phase)
}

func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func requireGeneration(gen *generation.Client) error {
	if !gen.Enabled() {
		return ErrGenerationUnavailable
	}
	return nil
}
