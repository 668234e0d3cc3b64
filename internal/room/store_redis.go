package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artificial-games/artificial/internal/phase"
)

// RedisStore spreads a room over several keys sharing the {CODE} hash tag:
//
//	room:{CODE}             hash   scalar fields + version
//	room:{CODE}:players     hash   id -> {isHost, joinedAt}, written once
//	room:{CODE}:names       hash   id -> display name
//	room:{CODE}:scores      hash   id -> score (HINCRBY)
//	room:{CODE}:submitted   set    ids that submitted in the current phase
//	room:{CODE}:submissions list   JSON submissions (RPUSH)
//	room:{CODE}:votes       hash   voter -> value
//	room:{CODE}:reactions   hash   "submission|kind" -> count (HINCRBY)
//	room:{CODE}:sessions    set    session token hashes
//	session:{HASH}          hash   room, participant, createdAt
//	rooms:created           zset   code scored by creation time (ms)
//
// Each mutation is one MULTI/EXEC with the version bump. When ttl is set
// every room key is given that expiry on each write. The creation index
// never expires, so PurgeCreatedBefore also reports rooms whose keys
// already did.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

const createdIndexKey = "rooms:created"

type roomKeys struct {
	meta, players, names, scores, submitted, submissions, votes, reactions, sessions string
}

func keysFor(code string) roomKeys {
	base := "room:{" + code + "}"
	return roomKeys{
		meta:        base,
		players:     base + ":players",
		names:       base + ":names",
		scores:      base + ":scores",
		submitted:   base + ":submitted",
		submissions: base + ":submissions",
		votes:       base + ":votes",
		reactions:   base + ":reactions",
		sessions:    base + ":sessions",
	}
}

func (k roomKeys) all() []string {
	return []string{k.meta, k.players, k.names, k.scores, k.submitted, k.submissions, k.votes, k.reactions, k.sessions}
}

func sessionKey(tokenHash string) string {
	return "session:{" + tokenHash + "}"
}

type redisPlayer struct {
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (s *RedisStore) Create(ctx context.Context, r Room) error {
	k := keysFor(r.Code)

	ok, err := s.rdb.HSetNX(ctx, k.meta, "code", r.Code).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return ErrCodeTaken
	}

	meta := map[string]any{
		"gameType":           string(r.GameType),
		"hostId":             r.HostID,
		"hostName":           r.HostName,
		"phase":              r.Phase,
		"phaseSeed":          strconv.FormatUint(r.PhaseSeed, 10),
		"phaseEndTime":       "",
		"timerExtension":     r.TimerExtension,
		"isPaused":           strconv.FormatBool(r.IsPaused),
		"displayMode":        r.DisplayMode,
		"displayData":        string(r.DisplayData),
		"featuredSubmission": r.FeaturedSubmission,
		"roundTime":          r.Settings.RoundTime,
		"maxPlayers":         r.Settings.MaxPlayers,
		"createdAt":          r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"version":            r.Version,
	}
	if r.PhaseEndTime != nil {
		meta["phaseEndTime"] = r.PhaseEndTime.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k.meta, meta)
		for _, p := range r.Players {
			if err := s.writePlayer(ctx, pipe, k, p); err != nil {
				return err
			}
		}
		s.expire(ctx, pipe, k)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}

	// The index lives outside the room's hash slot, so it is written on its own.
	err = s.rdb.ZAdd(ctx, createdIndexKey, redis.Z{
		Score:  float64(r.CreatedAt.UnixMilli()),
		Member: r.Code,
	}).Err()
	return unavailable(err)
}

func (s *RedisStore) writePlayer(ctx context.Context, pipe redis.Pipeliner, k roomKeys, p Player) error {
	data, err := json.Marshal(redisPlayer{IsHost: p.IsHost, JoinedAt: p.JoinedAt})
	if err != nil {
		return err
	}
	pipe.HSetNX(ctx, k.players, p.ID, data)
	pipe.HSet(ctx, k.names, p.ID, p.Name)
	pipe.HIncrBy(ctx, k.scores, p.ID, int64(p.Score))
	return nil
}

func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner, k roomKeys) {
	if s.ttl <= 0 {
		return
	}
	for _, key := range k.all() {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStore) Get(ctx context.Context, code string) (Room, error) {
	k := keysFor(code)

	var (
		meta, players, names, scores, votes, reactions *redis.MapStringStringCmd
		submitted, submissions                         *redis.StringSliceCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, k.meta)
		players = pipe.HGetAll(ctx, k.players)
		names = pipe.HGetAll(ctx, k.names)
		scores = pipe.HGetAll(ctx, k.scores)
		submitted = pipe.SMembers(ctx, k.submitted)
		submissions = pipe.LRange(ctx, k.submissions, 0, -1)
		votes = pipe.HGetAll(ctx, k.votes)
		reactions = pipe.HGetAll(ctx, k.reactions)
		return nil
	})
	if err != nil {
		return Room{}, unavailable(err)
	}

	m := meta.Val()
	if m["gameType"] == "" {
		return Room{}, ErrNotFound
	}

	r, err := decodeMeta(m)
	if err != nil {
		return Room{}, unavailable(err)
	}

	submittedSet := make(map[string]bool)
	for _, id := range submitted.Val() {
		submittedSet[id] = true
	}
	r.Players = []Player{}
	for id, raw := range players.Val() {
		var rp redisPlayer
		if err := json.Unmarshal([]byte(raw), &rp); err != nil {
			return Room{}, unavailable(fmt.Errorf("decoding player %s: %w", id, err))
		}
		score, _ := strconv.Atoi(scores.Val()[id])
		r.Players = append(r.Players, Player{
			ID:        id,
			Name:      names.Val()[id],
			IsHost:    rp.IsHost,
			Score:     score,
			JoinedAt:  rp.JoinedAt,
			Submitted: submittedSet[id],
		})
	}
	sort.Slice(r.Players, func(i, j int) bool {
		a, b := r.Players[i], r.Players[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})

	r.Submissions = make([]Submission, 0, len(submissions.Val()))
	for _, raw := range submissions.Val() {
		var sub Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return Room{}, unavailable(fmt.Errorf("decoding submission: %w", err))
		}
		r.Submissions = append(r.Submissions, sub)
	}

	r.Votes = votes.Val()

	r.Reactions = map[string]map[string]int{}
	for field, raw := range reactions.Val() {
		id, kind, ok := strings.Cut(field, "|")
		if !ok {
			continue
		}
		n, _ := strconv.Atoi(raw)
		if r.Reactions[id] == nil {
			r.Reactions[id] = map[string]int{}
		}
		r.Reactions[id][kind] = n
	}
	return r, nil
}

func decodeMeta(m map[string]string) (Room, error) {
	r := Room{
		Code:               m["code"],
		GameType:           phase.GameType(m["gameType"]),
		HostID:             m["hostId"],
		HostName:           m["hostName"],
		Phase:              m["phase"],
		DisplayMode:        m["displayMode"],
		FeaturedSubmission: m["featuredSubmission"],
	}

	var err error
	if r.PhaseSeed, err = strconv.ParseUint(m["phaseSeed"], 10, 64); err != nil {
		return Room{}, fmt.Errorf("decoding phaseSeed: %w", err)
	}
	if r.IsPaused, err = strconv.ParseBool(m["isPaused"]); err != nil {
		return Room{}, fmt.Errorf("decoding isPaused: %w", err)
	}
	ints := []struct {
		field string
		dst   *int
	}{
		{"timerExtension", &r.TimerExtension},
		{"roundTime", &r.Settings.RoundTime},
		{"maxPlayers", &r.Settings.MaxPlayers},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(m[f.field]); err != nil {
			return Room{}, fmt.Errorf("decoding %s: %w", f.field, err)
		}
	}
	if r.Version, err = strconv.ParseInt(m["version"], 10, 64); err != nil {
		return Room{}, fmt.Errorf("decoding version: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, m["createdAt"]); err != nil {
		return Room{}, fmt.Errorf("decoding createdAt: %w", err)
	}
	if v := m["phaseEndTime"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Room{}, fmt.Errorf("decoding phaseEndTime: %w", err)
		}
		r.PhaseEndTime = &t
	}
	if v := m["displayData"]; v != "" {
		r.DisplayData = json.RawMessage(v)
	}
	return r, nil
}

// mutate checks the room exists, then runs fn and the version bump in one
// MULTI/EXEC. A room deleted between the check and EXEC leaves orphan keys
// that Get reports as not found and the TTL reaps.
func (s *RedisStore) mutate(ctx context.Context, code string, fn func(pipe redis.Pipeliner, k roomKeys) error) error {
	k := keysFor(code)

	n, err := s.rdb.Exists(ctx, k.meta).Result()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := fn(pipe, k); err != nil {
			return err
		}
		pipe.HIncrBy(ctx, k.meta, "version", 1)
		s.expire(ctx, pipe, k)
		return nil
	})
	return unavailable(err)
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	k := keysFor(code)

	sessions, err := s.rdb.SMembers(ctx, k.sessions).Result()
	if err != nil {
		return unavailable(err)
	}
	keys := k.all()
	for _, h := range sessions {
		keys = append(keys, sessionKey(h))
	}

	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return unavailable(err)
	}
	if err := s.rdb.ZRem(ctx, createdIndexKey, code).Err(); err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) UpsertPlayer(ctx context.Context, code string, p Player) error {
	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		p.Score = 0 // scores only move through AdjustScore
		return s.writePlayer(ctx, pipe, k, p)
	})
}

func (s *RedisStore) RemovePlayer(ctx context.Context, code, playerID string) error {
	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		pipe.HDel(ctx, k.players, playerID)
		pipe.HDel(ctx, k.names, playerID)
		pipe.HDel(ctx, k.scores, playerID)
		pipe.SRem(ctx, k.submitted, playerID)
		return nil
	})
}

func (s *RedisStore) SetFields(ctx context.Context, code string, f Fields) error {
	values := map[string]any{}
	if f.Phase != nil {
		values["phase"] = *f.Phase
	}
	if f.PhaseSeed != nil {
		values["phaseSeed"] = strconv.FormatUint(*f.PhaseSeed, 10)
	}
	if f.PhaseEndTime != nil {
		if f.PhaseEndTime.IsZero() {
			values["phaseEndTime"] = ""
		} else {
			values["phaseEndTime"] = f.PhaseEndTime.UTC().Format(time.RFC3339Nano)
		}
	}
	if f.IsPaused != nil {
		values["isPaused"] = strconv.FormatBool(*f.IsPaused)
	}
	if f.Display != nil {
		values["displayMode"] = f.Display.Mode
		values["displayData"] = string(f.Display.Data)
	}
	if f.TimerExtension != nil {
		values["timerExtension"] = *f.TimerExtension
	}
	if f.FeaturedSubmission != nil {
		values["featuredSubmission"] = *f.FeaturedSubmission
	}

	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		if len(values) > 0 {
			pipe.HSet(ctx, k.meta, values)
		}
		if f.Phase != nil {
			pipe.Del(ctx, k.submitted)
		}
		return nil
	})
}

func (s *RedisStore) AppendSubmission(ctx context.Context, code string, sub Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding submission: %w", err)
	}
	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		pipe.RPush(ctx, k.submissions, data)
		pipe.SAdd(ctx, k.submitted, sub.PlayerID)
		return nil
	})
}

func (s *RedisStore) IncrementReaction(ctx context.Context, code, submissionID, kind string) error {
	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		pipe.HIncrBy(ctx, k.reactions, submissionID+"|"+kind, 1)
		return nil
	})
}

func (s *RedisStore) SetVote(ctx context.Context, code, voterID, value string) error {
	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		pipe.HSet(ctx, k.votes, voterID, value)
		return nil
	})
}

func (s *RedisStore) AdjustScore(ctx context.Context, code, playerID string, delta int) error {
	ok, err := s.rdb.HExists(ctx, keysFor(code).players, playerID).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return ErrNotFound
	}
	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		pipe.HIncrBy(ctx, k.scores, playerID, int64(delta))
		return nil
	})
}

func (s *RedisStore) AddTimerExtension(ctx context.Context, code string, seconds int) error {
	return s.mutate(ctx, code, func(pipe redis.Pipeliner, k roomKeys) error {
		pipe.HIncrBy(ctx, k.meta, "timerExtension", int64(seconds))
		return nil
	})
}

// PurgeCreatedBefore deletes the rooms indexed as created before t. Rooms
// whose keys already expired are still reported so their subscribers can
// be closed.
func (s *RedisStore) PurgeCreatedBefore(ctx context.Context, t time.Time) ([]string, error) {
	codes, err := s.rdb.ZRangeByScore(ctx, createdIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(t.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	for _, code := range codes {
		if err := s.Delete(ctx, code); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return codes, nil
}

func (s *RedisStore) CreateSession(ctx context.Context, tokenHash string, sess Session) error {
	k := keysFor(sess.RoomCode)

	n, err := s.rdb.Exists(ctx, k.meta).Result()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}

	key := sessionKey(tokenHash)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"room":        sess.RoomCode,
			"participant": sess.ParticipantID,
			"createdAt":   sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.SAdd(ctx, k.sessions, tokenHash)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
			pipe.Expire(ctx, k.sessions, s.ttl)
		}
		return nil
	})
	return unavailable(err)
}

func (s *RedisStore) SessionByHash(ctx context.Context, tokenHash string) (Session, error) {
	m, err := s.rdb.HGetAll(ctx, sessionKey(tokenHash)).Result()
	if err != nil {
		return Session{}, unavailable(err)
	}
	if m["room"] == "" {
		return Session{}, ErrNoSession
	}
	sess := Session{RoomCode: m["room"], ParticipantID: m["participant"]}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, m["createdAt"]); err != nil {
		return Session{}, unavailable(err)
	}
	return sess, nil
}
