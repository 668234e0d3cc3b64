package game

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/artificial-games/artificial/internal/generation"
	"github.com/artificial-games/artificial/internal/room"
)

const (
	SubmissionWerewolfVote  = "werewolf-vote"
	SubmissionWerewolfRound = "werewolf-round"

	answerPoints = 100
	streakBonus  = 10
)

// Role is a participant's secret werewolf assignment.
type Role struct {
	PlayerID string   `json:"playerId"`
	Portrait Portrait `json:"portrait"`
	IsAI     bool     `json:"isAI"`
}

// AssignRoles deals the werewolf portraits. Players are ranked by a hash of
// (seed, id); the lowest rank gets the AI portrait and the rest get distinct
// real ones in rank order while they last. The deal does not depend on the
// order of players.
func AssignRoles(seed uint64, players []room.Player) map[string]Role {
	roles := make(map[string]Role, len(players))
	if len(players) == 0 {
		return roles
	}

	real, fake := werewolfPortraits(seed)
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(werewolfRank(seed, a), werewolfRank(seed, b)), strings.Compare(a, b))
	})

	for i, id := range ids {
		if i == 0 {
			roles[id] = Role{PlayerID: id, Portrait: fake, IsAI: true}
			continue
		}
		roles[id] = Role{PlayerID: id, Portrait: real[(i-1)%len(real)]}
	}
	return roles
}

func werewolfRank(seed uint64, id string) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seed)
	h := fnv.New64a()
	h.Write(b[:])
	h.Write([]byte(id))
	return h.Sum64()
}

// werewolfPortraits shuffles the deck for seed and splits off the AI one.
func werewolfPortraits(seed uint64) (real []Portrait, fake Portrait) {
	deck := slices.Clone(werewolfDeck)
	r := rng(seed, "werewolf")
	r.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	for _, p := range deck {
		if p.IsAI {
			fake = p
		} else {
			real = append(real, p)
		}
	}
	return real, fake
}

// lateRole is the assignment of a player who joined after the deal. They
// always hold a real portrait.
func lateRole(seed uint64, id string) Role {
	real, _ := werewolfPortraits(seed)
	return Role{PlayerID: id, Portrait: real[werewolfRank(seed, id)%uint64(len(real))]}
}

// werewolfRound is the host's record of a deal: the seed and the players
// present when the werewolf phase was entered.
type werewolfRound struct {
	seed   uint64
	roster []string
}

func (w werewolfRound) payload() map[string]any {
	return map[string]any{
		"seed":   strconv.FormatUint(w.seed, 10),
		"roster": strings.Join(w.roster, ","),
	}
}

// latestRound returns the round record that applies to r. While the room is
// in the werewolf phase only a record of the current seed counts.
func latestRound(r room.Room) (werewolfRound, bool) {
	rounds := r.SubmissionsOfType(SubmissionWerewolfRound)
	for i := len(rounds) - 1; i >= 0; i-- {
		seed, err := strconv.ParseUint(rounds[i].String("seed"), 10, 64)
		if err != nil {
			continue
		}
		if r.Phase == "werewolf" && seed != r.PhaseSeed {
			continue
		}
		w := werewolfRound{seed: seed}
		if roster := rounds[i].String("roster"); roster != "" {
			w.roster = strings.Split(roster, ",")
		}
		return w, true
	}
	return werewolfRound{}, false
}

// dealWerewolf returns every current player's role. Once the round is
// recorded the deal covers the recorded roster only, so players joining or
// leaving afterwards never move the AI portrait. Before that it is dealt
// from the live player list.
func dealWerewolf(r room.Room) (map[string]Role, bool) {
	w, ok := latestRound(r)
	if !ok {
		if r.Phase != "werewolf" {
			return nil, false
		}
		return AssignRoles(r.PhaseSeed, r.Players), true
	}

	roster := make([]room.Player, len(w.roster))
	for i, id := range w.roster {
		roster[i] = room.Player{ID: id}
	}
	roles := AssignRoles(w.seed, roster)
	for _, p := range r.Players {
		if _, dealt := roles[p.ID]; !dealt {
			roles[p.ID] = lateRole(w.seed, p.ID)
		}
	}
	return roles, true
}

type WerewolfTally struct {
	// Votes holds each voter's latest choice.
	Votes  map[string]string `json:"votes"`
	Counts map[string]int    `json:"counts"`
	Faker  string            `json:"faker,omitempty"`
	// Caught is set when the faker alone received the most votes.
	Caught bool `json:"caught"`
}

// TallyWerewolf counts werewolf votes, keeping the last one per voter.
func TallyWerewolf(r room.Room) WerewolfTally {
	t := WerewolfTally{Votes: map[string]string{}, Counts: map[string]int{}}
	for _, s := range r.SubmissionsOfType(SubmissionWerewolfVote) {
		if target := s.String("votedFor"); target != "" {
			t.Votes[s.PlayerID] = target
		}
	}
	for _, target := range t.Votes {
		t.Counts[target]++
	}

	roles, ok := dealWerewolf(r)
	if !ok {
		return t
	}
	for id, role := range roles {
		if role.IsAI {
			t.Faker = id
		}
	}

	top, tied := 0, false
	for _, n := range t.Counts {
		switch {
		case n > top:
			top, tied = n, false
		case n == top:
			tied = true
		}
	}
	t.Caught = top > 0 && !tied && t.Counts[t.Faker] == top
	return t
}

type AnswerResult struct {
	Correct bool `json:"correct"`
	Points  int  `json:"points"`
	Streak  int  `json:"streak"`
}

// DetectionQuiz drives the image detection game for one participant.
type DetectionQuiz struct {
	*Controller

	mu     sync.Mutex
	deck   []Card
	streak int
}

func NewDetectionQuiz(ctx context.Context, svc *room.Service, code string, me room.Identity, logger *slog.Logger) (*DetectionQuiz, error) {
	q := &DetectionQuiz{}
	q.Controller = newController(svc, code, me, logger, q.enter)
	if err := q.start(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *DetectionQuiz) enter(r room.Room) {
	q.mu.Lock()
	defer q.mu.Unlock()

	me := q.me.ID
	switch r.Phase {
	case "round1":
		q.streak = 0
		q.deck = DeckFor(r.Phase, r.PhaseSeed, me)
	case "round2":
		q.deck = DeckFor(r.Phase, r.PhaseSeed, me)
	case "werewolf":
		q.deck = nil
		if r.IsHost(me) {
			go q.recordRound(r)
		}
	default:
		q.deck = nil
	}
}

// recordRound stores the seed and roster of the werewolf deal so roles stay
// fixed for the rest of the game.
func (q *DetectionQuiz) recordRound(r room.Room) {
	if _, ok := latestRound(r); ok {
		return
	}
	w := werewolfRound{seed: r.PhaseSeed}
	for _, p := range r.Players {
		w.roster = append(w.roster, p.ID)
	}
	err := q.guard("werewolf-round/"+strconv.FormatUint(w.seed, 10), func() error {
		_, err := q.mutate(context.Background(), room.AppendSubmission{
			Type:    SubmissionWerewolfRound,
			Payload: w.payload(),
		})
		return err
	})
	if err != nil {
		q.logger.Warn("recording werewolf round", "error", err)
	}
}

// Deck returns the current round's cards in this participant's order.
func (q *DetectionQuiz) Deck() []Card {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.deck)
}

func (q *DetectionQuiz) Streak() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.streak
}

// Role returns the participant's werewolf assignment, once dealt.
func (q *DetectionQuiz) Role() (Role, bool) {
	roles, ok := dealWerewolf(q.Room())
	if !ok {
		return Role{}, false
	}
	role, ok := roles[q.me.ID]
	return role, ok
}

// Answer judges one card. A correct answer scores 100 plus 10 per answer
// in the current streak.
func (q *DetectionQuiz) Answer(ctx context.Context, cardID string, saysAI bool) (AnswerResult, error) {
	r, err := q.current(ctx, "round1", "round2")
	if err != nil {
		return AnswerResult{}, err
	}

	q.mu.Lock()
	card, ok := findCard(q.deck, cardID)
	q.mu.Unlock()
	if !ok {
		return AnswerResult{}, fmt.Errorf("%w: unknown card %q", ErrInvalidAction, cardID)
	}

	var res AnswerResult
	err = q.guard("answer/"+phaseKey(r)+"/"+cardID, func() error {
		q.mu.Lock()
		streak := q.streak
		q.mu.Unlock()

		if saysAI != card.IsAI {
			q.mu.Lock()
			q.streak = 0
			q.mu.Unlock()
			res = AnswerResult{}
			return nil
		}

		points := answerPoints + streakBonus*streak
		if _, err := q.mutate(ctx, room.AdjustScore{Delta: points}); err != nil {
			return err
		}
		q.mu.Lock()
		q.streak = streak + 1
		res = AnswerResult{Correct: true, Points: points, Streak: q.streak}
		q.mu.Unlock()
		return nil
	})
	return res, err
}

// WerewolfVote accuses target of holding the AI portrait. Voting again for
// someone else replaces the earlier vote in the tally.
func (q *DetectionQuiz) WerewolfVote(ctx context.Context, target string) (room.Room, error) {
	r, err := q.current(ctx, "werewolf", "werewolf-vote")
	if err != nil {
		return room.Room{}, err
	}
	if _, ok := r.Player(target); !ok {
		return room.Room{}, fmt.Errorf("%w: %q is not a player", ErrInvalidAction, target)
	}

	var out room.Room
	err = q.guard("werewolf-vote/"+phaseKey(r)+"/"+target, func() error {
		out, err = q.mutate(ctx, room.AppendSubmission{
			Type:    SubmissionWerewolfVote,
			Payload: map[string]any{"votedFor": target},
		})
		return err
	})
	return out, err
}

// Tips asks for detection tips about a card of the current round.
func (q *DetectionQuiz) Tips(ctx context.Context, gen *generation.Client, cardID, description string) ([]generation.DetectionTip, error) {
	if err := requireGeneration(gen); err != nil {
		return nil, err
	}
	category := "everyday"
	q.mu.Lock()
	if card, ok := findCard(q.deck, cardID); ok {
		category = card.Category
	}
	q.mu.Unlock()
	return gen.DetectionTips(ctx, description, category)
}
