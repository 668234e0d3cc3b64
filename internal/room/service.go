package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artificial-games/artificial/internal/phase"
)

// maxCodeAttempts bounds code collision retries in Create.
const maxCodeAttempts = 10

// Service is the only way rooms are read and written. It validates and
// authorizes every call against the explicit caller identity, commits
// through the Store and publishes the committed snapshot on the Broker.
type Service struct {
	store  Store
	broker *Broker
	logger *slog.Logger

	newCode func() (string, error)
	newSeed func() uint64
	newID   func() string
	now     func() time.Time
}

type Option func(*Service)

// WithCodeGenerator replaces RandomCode.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.newCode = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

// WithSeedSource replaces the source of phase seeds.
func WithSeedSource(fn func() uint64) Option {
	return func(s *Service) { s.newSeed = fn }
}

// WithIDGenerator replaces the source of participant and submission ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store Store, broker *Broker, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		broker:  broker,
		logger:  logger,
		newCode: RandomCode,
		newSeed: rand.Uint64,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a room in the lobby with host as its only player. An empty
// host.ID is replaced by a fresh identifier, readable as the room's HostID.
func (s *Service) Create(ctx context.Context, gameType phase.GameType, host Identity, hostName string) (Room, error) {
	if !phase.Known(gameType) {
		return Room{}, fmt.Errorf("%w: %q", ErrUnknownGameType, gameType)
	}
	if host.ID == "" {
		host.ID = s.newID()
	}
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		hostName = "Host"
	}

	now := s.now().UTC()
	for range maxCodeAttempts {
		code, err := s.newCode()
		if err != nil {
			return Room{}, fmt.Errorf("generating room code: %w", err)
		}

		r := Room{
			Code:      code,
			GameType:  gameType,
			HostID:    host.ID,
			HostName:  hostName,
			Phase:     phase.Lobby,
			PhaseSeed: s.newSeed(),
			Players: []Player{{
				ID:       host.ID,
				Name:     hostName,
				IsHost:   true,
				JoinedAt: now,
			}},
			Submissions: []Submission{},
			Votes:       map[string]string{},
			Reactions:   map[string]map[string]int{},
			Settings:    DefaultSettings,
			CreatedAt:   now,
			Version:     1,
		}

		err = s.store.Create(ctx, r)
		if errors.Is(err, ErrCodeTaken) {
			s.logger.Debug("room code collision", "code", code)
			continue
		}
		if err != nil {
			return Room{}, fmt.Errorf("creating room: %w", err)
		}

		s.logger.Info("room created", "code", code, "game_type", gameType, "host_id", host.ID)
		return s.store.Get(ctx, code)
	}
	return Room{}, ErrAllocationExhausted
}

// Join adds who to the room, or renames them if they are already in it.
// An empty who.ID is replaced by a fresh identifier that is checked against
// the existing players; the identity actually admitted is returned.
func (s *Service) Join(ctx context.Context, code string, who Identity, name string) (Room, Identity, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return Room{}, Identity{}, ErrNotFound
	}

	r, err := s.store.Get(ctx, code)
	if err != nil {
		return Room{}, Identity{}, err
	}

	if who.ID == "" {
		for range maxCodeAttempts {
			id := s.newID()
			if _, taken := r.Player(id); !taken {
				who.ID = id
				break
			}
		}
		if who.ID == "" {
			return Room{}, Identity{}, fmt.Errorf("%w: could not allocate participant id", ErrAllocationExhausted)
		}
	}

	name = strings.TrimSpace(name)
	existing, rejoin := r.Player(who.ID)
	if name == "" {
		if rejoin {
			name = existing.Name
		} else {
			name = "Player"
		}
	}
	if !rejoin && len(r.Players) >= r.Settings.MaxPlayers {
		return Room{}, Identity{}, ErrRoomFull
	}

	err = s.store.UpsertPlayer(ctx, code, Player{
		ID:       who.ID,
		Name:     name,
		IsHost:   r.IsHost(who.ID),
		JoinedAt: s.now().UTC(),
	})
	if err != nil {
		return Room{}, Identity{}, fmt.Errorf("joining room: %w", err)
	}

	s.logger.Info("player joined", "code", code, "player_id", who.ID, "rejoin", rejoin)
	r, err = s.commit(ctx, code)
	if err != nil {
		return Room{}, Identity{}, err
	}
	return r, who, nil
}

func (s *Service) Get(ctx context.Context, code string) (Room, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return Room{}, ErrNotFound
	}
	return s.store.Get(ctx, code)
}

// Watch streams the room: the current snapshot first, then every newer
// snapshot in version order. Stale snapshots are skipped. The channel is
// closed when ctx is done or the room is removed.
func (s *Service) Watch(ctx context.Context, code string) (<-chan Room, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, ErrNotFound
	}

	// Register before reading so no commit between the two is missed.
	sub := s.broker.Subscribe(code)
	r, err := s.store.Get(ctx, code)
	if err != nil {
		s.broker.Unsubscribe(sub)
		return nil, err
	}

	out := make(chan Room)
	go func() {
		defer close(out)
		defer s.broker.Unsubscribe(sub)

		last := int64(-1)
		next := r
		for {
			if next.Version > last {
				select {
				case out <- next:
					last = next.Version
				case <-ctx.Done():
					return
				}
			}

			var ok bool
			select {
			case next, ok = <-sub.C:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Subscribe calls fn with the current snapshot and then with every newer
// one. The returned cancel stops delivery; once it returns fn is not called
// again. It must not be called from inside fn.
func (s *Service) Subscribe(ctx context.Context, code string, fn func(Room)) (cancel func(), err error) {
	ctx, stop := context.WithCancel(ctx)
	ch, err := s.Watch(ctx, code)
	if err != nil {
		stop()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range ch {
			if ctx.Err() != nil {
				return
			}
			fn(r)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
		})
	}, nil
}

// Mutate commits m on behalf of caller and returns the committed snapshot.
func (s *Service) Mutate(ctx context.Context, code string, caller Identity, m Mutation) (Room, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return Room{}, ErrNotFound
	}

	r, err := s.store.Get(ctx, code)
	if err != nil {
		return Room{}, err
	}
	if _, ok := r.Player(caller.ID); !ok {
		return Room{}, fmt.Errorf("%w: %s is not in room %s", ErrForbidden, caller.ID, code)
	}
	if m.hostOnly(caller.ID) && !r.IsHost(caller.ID) {
		return Room{}, fmt.Errorf("%w: %s is host-only", ErrForbidden, m.Kind())
	}

	err = m.apply(ctx, &mutator{
		store:  s.store,
		room:   r,
		caller: caller.ID,
		now:    s.now().UTC(),
		seed:   s.newSeed(),
		newID:  s.newID,
	})
	if err != nil {
		return Room{}, err
	}

	s.logger.Debug("mutation committed", "code", code, "kind", m.Kind(), "caller", caller.ID)
	return s.commit(ctx, code)
}

// Advance moves the room to the next phase. At the last phase nothing is
// written.
func (s *Service) Advance(ctx context.Context, code string, caller Identity) (Room, error) {
	return s.step(ctx, code, caller, phase.Next)
}

// Back moves the room to the previous phase, clamping at the first.
func (s *Service) Back(ctx context.Context, code string, caller Identity) (Room, error) {
	return s.step(ctx, code, caller, phase.Previous)
}

func (s *Service) step(ctx context.Context, code string, caller Identity, move func(phase.GameType, string) string) (Room, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return Room{}, ErrNotFound
	}

	r, err := s.store.Get(ctx, code)
	if err != nil {
		return Room{}, err
	}
	if !r.IsHost(caller.ID) {
		return Room{}, fmt.Errorf("%w: only the host changes phase", ErrForbidden)
	}

	target := move(r.GameType, r.Phase)
	if target == r.Phase {
		return r, nil
	}

	seed := s.newSeed()
	if err := s.store.SetFields(ctx, code, Fields{Phase: &target, PhaseSeed: &seed}); err != nil {
		return Room{}, fmt.Errorf("changing phase: %w", err)
	}

	s.logger.Info("phase changed", "code", code, "from", r.Phase, "to", target)
	return s.commit(ctx, code)
}

// Remove deletes the room. Subscribers see their stream end.
func (s *Service) Remove(ctx context.Context, code string, caller Identity) error {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return ErrNotFound
	}

	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}
	if !r.IsHost(caller.ID) {
		return fmt.Errorf("%w: only the host removes a room", ErrForbidden)
	}
	if err := s.store.Delete(ctx, code); err != nil {
		return fmt.Errorf("removing room: %w", err)
	}
	s.broker.Close(code)

	s.logger.Info("room removed", "code", code)
	return nil
}

// OpenSession mints a bearer token for a participant already in the room.
func (s *Service) OpenSession(ctx context.Context, code string, participant Identity) (string, error) {
	code = NormalizeCode(code)
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}

	err = s.store.CreateSession(ctx, hashToken(token), Session{
		RoomCode:      code,
		ParticipantID: participant.ID,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("opening session: %w", err)
	}
	return token, nil
}

// Authenticate resolves a bearer token minted by OpenSession.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoSession
	}
	return s.store.SessionByHash(ctx, hashToken(token))
}

// Purge removes every room older than ttl. A non-positive ttl keeps
// rooms forever.
func (s *Service) Purge(ctx context.Context, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		return nil, nil
	}

	codes, err := s.store.PurgeCreatedBefore(ctx, s.now().Add(-ttl))
	if err != nil {
		return nil, fmt.Errorf("purging rooms: %w", err)
	}
	for _, code := range codes {
		s.broker.Close(code)
	}
	if len(codes) > 0 {
		s.logger.Info("purged expired rooms", "count", len(codes))
	}
	return codes, nil
}

// commit reads back the committed room and publishes it.
func (s *Service) commit(ctx context.Context, code string) (Room, error) {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return Room{}, err
	}
	s.broker.Publish(r)
	return r, nil
}
