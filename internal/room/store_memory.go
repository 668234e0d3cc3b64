package room

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps rooms in process memory. Every method runs under one
// mutex, which makes each operation trivially atomic.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*Room),
		sessions: make(map[string]Session),
	}
}

func (s *MemoryStore) Create(_ context.Context, r Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[r.Code]; ok {
		return ErrCodeTaken
	}
	c := r.Clone()
	s.rooms[r.Code] = &c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, code string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		return Room{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[code]; !ok {
		return ErrNotFound
	}
	s.deleteLocked(code)
	return nil
}

func (s *MemoryStore) deleteLocked(code string) {
	delete(s.rooms, code)
	maps.DeleteFunc(s.sessions, func(_ string, sess Session) bool {
		return sess.RoomCode == code
	})
}

// modify applies fn to the stored room and bumps its version when fn succeeds.
func (s *MemoryStore) modify(code string, fn func(r *Room) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		return ErrNotFound
	}
	if err := fn(r); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (s *MemoryStore) UpsertPlayer(_ context.Context, code string, p Player) error {
	return s.modify(code, func(r *Room) error {
		for i := range r.Players {
			if r.Players[i].ID == p.ID {
				r.Players[i].Name = p.Name
				return nil
			}
		}
		r.Players = append(r.Players, p)
		return nil
	})
}

func (s *MemoryStore) RemovePlayer(_ context.Context, code, playerID string) error {
	return s.modify(code, func(r *Room) error {
		for i := range r.Players {
			if r.Players[i].ID == playerID {
				r.Players = append(r.Players[:i], r.Players[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

func (s *MemoryStore) SetFields(_ context.Context, code string, f Fields) error {
	return s.modify(code, func(r *Room) error {
		if f.Phase != nil {
			r.Phase = *f.Phase
			for i := range r.Players {
				r.Players[i].Submitted = false
			}
		}
		if f.PhaseSeed != nil {
			r.PhaseSeed = *f.PhaseSeed
		}
		if f.PhaseEndTime != nil {
			if f.PhaseEndTime.IsZero() {
				r.PhaseEndTime = nil
			} else {
				t := *f.PhaseEndTime
				r.PhaseEndTime = &t
			}
		}
		if f.IsPaused != nil {
			r.IsPaused = *f.IsPaused
		}
		if f.Display != nil {
			r.DisplayMode = f.Display.Mode
			r.DisplayData = append([]byte(nil), f.Display.Data...)
		}
		if f.TimerExtension != nil {
			r.TimerExtension = *f.TimerExtension
		}
		if f.FeaturedSubmission != nil {
			r.FeaturedSubmission = *f.FeaturedSubmission
		}
		return nil
	})
}

func (s *MemoryStore) AppendSubmission(_ context.Context, code string, sub Submission) error {
	return s.modify(code, func(r *Room) error {
		sub.Payload = maps.Clone(sub.Payload)
		r.Submissions = append(r.Submissions, sub)
		for i := range r.Players {
			if r.Players[i].ID == sub.PlayerID {
				r.Players[i].Submitted = true
			}
		}
		return nil
	})
}

func (s *MemoryStore) IncrementReaction(_ context.Context, code, submissionID, kind string) error {
	return s.modify(code, func(r *Room) error {
		if r.Reactions == nil {
			r.Reactions = make(map[string]map[string]int)
		}
		if r.Reactions[submissionID] == nil {
			r.Reactions[submissionID] = make(map[string]int)
		}
		r.Reactions[submissionID][kind]++
		return nil
	})
}

func (s *MemoryStore) SetVote(_ context.Context, code, voterID, value string) error {
	return s.modify(code, func(r *Room) error {
		if r.Votes == nil {
			r.Votes = make(map[string]string)
		}
		r.Votes[voterID] = value
		return nil
	})
}

func (s *MemoryStore) AdjustScore(_ context.Context, code, playerID string, delta int) error {
	return s.modify(code, func(r *Room) error {
		for i := range r.Players {
			if r.Players[i].ID == playerID {
				r.Players[i].Score += delta
				return nil
			}
		}
		return ErrNotFound
	})
}

func (s *MemoryStore) AddTimerExtension(_ context.Context, code string, seconds int) error {
	return s.modify(code, func(r *Room) error {
		r.TimerExtension += seconds
		return nil
	})
}

func (s *MemoryStore) PurgeCreatedBefore(_ context.Context, t time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []string
	for code, r := range s.rooms {
		if r.CreatedAt.Before(t) {
			purged = append(purged, code)
		}
	}
	for _, code := range purged {
		s.deleteLocked(code)
	}
	return purged, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, tokenHash string, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[sess.RoomCode]; !ok {
		return ErrNotFound
	}
	s.sessions[tokenHash] = sess
	return nil
}

func (s *MemoryStore) SessionByHash(_ context.Context, tokenHash string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return Session{}, ErrNoSession
	}
	return sess, nil
}
