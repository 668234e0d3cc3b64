// Package phase holds the fixed phase sequence of every game type and the
// pure lookups used to move a room through it. It has no I/O.
package phase

// GameType identifies one of the party games. It selects the sequence.
type GameType string

const (
	SpotTheFake GameType = "spotTheFake"
	MemeMachine GameType = "memeMachine"
	VibeCode    GameType = "vibeCode"
)

// Lobby is the first phase of every sequence.
const Lobby = "lobby"

// Phase names are storage keys and client routing keys. Do not reorder.
var sequences = map[GameType][]string{
	SpotTheFake: {
		"lobby", "intro", "round1", "round1-debrief", "round2", "round2-debrief",
		"ethics", "legal", "quiz", "werewolf", "werewolf-vote", "results",
	},
	MemeMachine: {
		"lobby", "intro", "issue", "describe", "wizard", "generate", "caption",
		"preview", "critique", "finalize", "gallery", "vote", "results",
	},
	VibeCode: {
		"lobby", "intro", "build", "present", "vote", "results",
	},
}

// GameTypes returns the known game types in a stable order.
func GameTypes() []GameType {
	return []GameType{SpotTheFake, MemeMachine, VibeCode}
}

// Known reports whether g has a sequence.
func Known(g GameType) bool {
	_, ok := sequences[g]
	return ok
}

// SequenceFor returns a copy of the ordered phases for g, or an empty slice
// for an unknown game type.
func SequenceFor(g GameType) []string {
	seq := sequences[g]
	out := make([]string, len(seq))
	copy(out, seq)
	return out
}

// IndexOf returns the position of current in g's sequence, or -1.
func IndexOf(g GameType, current string) int {
	for i, p := range sequences[g] {
		if p == current {
			return i
		}
	}
	return -1
}

// Contains reports whether p is a member of g's sequence.
func Contains(g GameType, p string) bool {
	return IndexOf(g, p) >= 0
}

// Next returns the phase after current. The last phase and unknown phases
// map to themselves.
func Next(g GameType, current string) string {
	seq := sequences[g]
	i := IndexOf(g, current)
	if i < 0 || i >= len(seq)-1 {
		return current
	}
	return seq[i+1]
}

// Previous returns the phase before current, clamped at the first phase.
func Previous(g GameType, current string) string {
	seq := sequences[g]
	i := IndexOf(g, current)
	if i <= 0 {
		return current
	}
	return seq[i-1]
}

// Progress is the fraction of the sequence reached at current, in (0, 1].
// Unknown phases report 0.
func Progress(g GameType, current string) float64 {
	i := IndexOf(g, current)
	if i < 0 {
		return 0
	}
	return float64(i+1) / float64(len(sequences[g]))
}
