// Package room implements the shared room document every game reads and
// writes: the data model, the pluggable stores that hold it, the broker
// that fans committed snapshots out to subscribers, and the Service that
// validates and authorizes mutations.
package room

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/artificial-games/artificial/internal/phase"
)

// Identity is the participant on whose behalf a call is made. It is passed
// explicitly into every Service call.
type Identity struct {
	ID string
}

type Settings struct {
	RoundTime  int `json:"roundTime"`
	MaxPlayers int `json:"maxPlayers"`
}

// DefaultSettings mirrors the defaults rooms were always created with.
var DefaultSettings = Settings{RoundTime: 300, MaxPlayers: 20}

type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"isHost"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joinedAt"`
	Submitted bool      `json:"submitted"`
}

// Submission is a free-form record. Consumers filter by Type and must
// tolerate missing payload keys.
type Submission struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	PlayerID  string         `json:"playerId"`
	CreatedAt time.Time      `json:"createdAt"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// String returns payload[key] if it is a string.
func (s Submission) String(key string) string {
	v, _ := s.Payload[key].(string)
	return v
}

type Room struct {
	Code               string                    `json:"code"`
	GameType           phase.GameType            `json:"gameType"`
	HostID             string                    `json:"hostId"`
	HostName           string                    `json:"hostName"`
	Phase              string                    `json:"phase"`
	PhaseSeed          uint64                    `json:"phaseSeed,string"`
	PhaseEndTime       *time.Time                `json:"phaseEndTime"`
	Players            []Player                  `json:"players"`
	Submissions        []Submission              `json:"submissions"`
	Votes              map[string]string         `json:"votes"`
	Reactions          map[string]map[string]int `json:"reactions"`
	TimerExtension     int                       `json:"timerExtension"`
	IsPaused           bool                      `json:"isPaused"`
	DisplayMode        string                    `json:"displayMode"`
	DisplayData        json.RawMessage           `json:"displayData"`
	FeaturedSubmission string                    `json:"featuredSubmission"`
	Settings           Settings                  `json:"settings"`
	CreatedAt          time.Time                 `json:"createdAt"`
	Version            int64                     `json:"version"`
}

// Player looks up a participant by id.
func (r Room) Player(id string) (Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

func (r Room) IsHost(id string) bool {
	return id != "" && id == r.HostID
}

// SubmissionsOfType returns the submissions tagged t, in commit order.
func (r Room) SubmissionsOfType(t string) []Submission {
	var out []Submission
	for _, s := range r.Submissions {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func (r Room) SubmissionByID(id string) (Submission, bool) {
	for _, s := range r.Submissions {
		if s.ID == id {
			return s, true
		}
	}
	return Submission{}, false
}

// Clone returns a deep copy so snapshots handed to different subscribers
// never share maps or slices.
func (r Room) Clone() Room {
	c := r
	if r.PhaseEndTime != nil {
		t := *r.PhaseEndTime
		c.PhaseEndTime = &t
	}
	c.Players = slices.Clone(r.Players)
	if c.Players == nil {
		c.Players = []Player{}
	}
	c.Submissions = make([]Submission, len(r.Submissions))
	for i, s := range r.Submissions {
		s.Payload = maps.Clone(s.Payload)
		c.Submissions[i] = s
	}
	c.Votes = maps.Clone(r.Votes)
	c.Reactions = make(map[string]map[string]int, len(r.Reactions))
	for id, kinds := range r.Reactions {
		c.Reactions[id] = maps.Clone(kinds)
	}
	c.DisplayData = slices.Clone(r.DisplayData)
	if c.Votes == nil {
		c.Votes = map[string]string{}
	}
	return c
}

// Display is the projector view selection.
type Display struct {
	Mode string
	Data json.RawMessage
}

// Fields carries whole-field replacements. Nil members are left alone.
// A non-nil PhaseEndTime holding the zero time clears the countdown.
type Fields struct {
	Phase              *string
	PhaseSeed          *uint64
	PhaseEndTime       *time.Time
	IsPaused           *bool
	Display            *Display
	TimerExtension     *int
	FeaturedSubmission *string
}

// Session binds a bearer token to a participant of one room.
type Session struct {
	RoomCode      string
	ParticipantID string
	CreatedAt     time.Time
}
