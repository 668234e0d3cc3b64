package game

import (
	"hash/fnv"
	"math/rand/v2"
	"slices"
)

// Card is one image of a detection round. Images live in the client; the
// server only needs the identifier and the ground truth.
type Card struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	IsAI     bool   `json:"-"`
}

var round1Deck = []Card{
	{ID: "r1-1", Category: "portrait"},
	{ID: "r1-2", Category: "landscape"},
	{ID: "r1-3", Category: "animals"},
	{ID: "r1-4", Category: "technology"},
	{ID: "r1-5", Category: "portrait"},
	{ID: "r1-6", Category: "nature"},
}

// Round two asks whether a photo was edited; IsAI carries that answer.
var round2Deck = []Card{
	{ID: "r2-1", Category: "architecture"},
	{ID: "r2-2", Category: "food"},
	{ID: "r2-3", Category: "animals"},
	{ID: "r2-4", Category: "ocean"},
}

// Portrait is a werewolf profile picture.
type Portrait struct {
	ID   string `json:"id"`
	IsAI bool   `json:"isAI"`
}

var werewolfDeck = []Portrait{
	{ID: "ww-1"},
	{ID: "ww-2"},
	{ID: "ww-3"},
	{ID: "ww-4", IsAI: true},
	{ID: "ww-5"},
	{ID: "ww-6"},
	{ID: "ww-7"},
	{ID: "ww-8"},
}

// rng derives a generator from a phase seed and a salt. Every participant
// computing with the same inputs draws the same sequence.
func rng(seed uint64, salt string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(salt))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// DeckFor returns the round's cards in the order participantID sees them.
// Phases without a deck yield nil.
func DeckFor(phaseName string, seed uint64, participantID string) []Card {
	var deck []Card
	switch phaseName {
	case "round1":
		deck = slices.Clone(round1Deck)
	case "round2":
		deck = slices.Clone(round2Deck)
	default:
		return nil
	}
	r := rng(seed, participantID)
	r.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

func findCard(deck []Card, id string) (Card, bool) {
	for _, c := range deck {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}
