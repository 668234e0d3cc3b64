package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artificial-games/artificial/internal/phase"
)

// Fixed width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SQLiteStore keeps rooms in normalized tables (see internal/migrations).
// Appends are row inserts and counters are `n = n + ?` updates, each run in
// one transaction together with the version bump.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) Create(ctx context.Context, r Room) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	var endTime, displayData sql.NullString
	if r.PhaseEndTime != nil {
		endTime = sql.NullString{String: formatTime(*r.PhaseEndTime), Valid: true}
	}
	if len(r.DisplayData) > 0 {
		displayData = sql.NullString{String: string(r.DisplayData), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (code, game_type, host_id, host_name, phase, phase_seed,
			phase_end_time, timer_extension, is_paused, display_mode, display_data,
			featured_submission, round_time, max_players, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO NOTHING
	`, r.Code, string(r.GameType), r.HostID, r.HostName, r.Phase, int64(r.PhaseSeed),
		endTime, r.TimerExtension, boolInt(r.IsPaused), r.DisplayMode, displayData,
		r.FeaturedSubmission, r.Settings.RoundTime, r.Settings.MaxPlayers, r.Version,
		formatTime(r.CreatedAt))
	if err != nil {
		return unavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCodeTaken
	}

	for _, p := range r.Players {
		if err := upsertPlayer(ctx, tx, r.Code, p); err != nil {
			return unavailable(err)
		}
	}
	return unavailable(tx.Commit())
}

func (s *SQLiteStore) Get(ctx context.Context, code string) (Room, error) {
	// Read inside a transaction so the snapshot is consistent across tables.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, unavailable(err)
	}
	defer tx.Rollback()

	r, err := loadRoom(ctx, tx, code)
	if err != nil {
		return Room{}, unavailable(err)
	}
	return r, nil
}

func loadRoom(ctx context.Context, q querier, code string) (Room, error) {
	var (
		r                     Room
		gameType              string
		seed                  int64
		endTime, displayData  sql.NullString
		isPaused              int64
		createdAt             string
	)
	err := q.QueryRowContext(ctx, `
		SELECT code, game_type, host_id, host_name, phase, phase_seed, phase_end_time,
			timer_extension, is_paused, display_mode, display_data, featured_submission,
			round_time, max_players, version, created_at
		FROM rooms WHERE code = ?
	`, code).Scan(&r.Code, &gameType, &r.HostID, &r.HostName, &r.Phase, &seed, &endTime,
		&r.TimerExtension, &isPaused, &r.DisplayMode, &displayData, &r.FeaturedSubmission,
		&r.Settings.RoundTime, &r.Settings.MaxPlayers, &r.Version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, err
	}

	r.GameType = phase.GameType(gameType)
	r.PhaseSeed = uint64(seed)
	r.IsPaused = isPaused != 0
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Room{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if endTime.Valid {
		t, err := parseTime(endTime.String)
		if err != nil {
			return Room{}, fmt.Errorf("parsing phase_end_time: %w", err)
		}
		r.PhaseEndTime = &t
	}
	if displayData.Valid {
		r.DisplayData = json.RawMessage(displayData.String)
	}

	if r.Players, err = loadPlayers(ctx, q, code); err != nil {
		return Room{}, err
	}
	if r.Submissions, err = loadSubmissions(ctx, q, code); err != nil {
		return Room{}, err
	}
	if r.Votes, err = loadVotes(ctx, q, code); err != nil {
		return Room{}, err
	}
	if r.Reactions, err = loadReactions(ctx, q, code); err != nil {
		return Room{}, err
	}
	return r, nil
}

func loadPlayers(ctx context.Context, q querier, code string) ([]Player, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, is_host, score, submitted, joined_at
		FROM room_players WHERE room_code = ? ORDER BY rowid
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := []Player{}
	for rows.Next() {
		var (
			p                 Player
			isHost, submitted int64
			joinedAt          string
		)
		if err := rows.Scan(&p.ID, &p.Name, &isHost, &p.Score, &submitted, &joinedAt); err != nil {
			return nil, err
		}
		p.IsHost = isHost != 0
		p.Submitted = submitted != 0
		if p.JoinedAt, err = parseTime(joinedAt); err != nil {
			return nil, fmt.Errorf("parsing joined_at: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func loadSubmissions(ctx context.Context, q querier, code string) ([]Submission, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, player_id, created_at, payload
		FROM room_submissions WHERE room_code = ? ORDER BY seq
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []Submission{}
	for rows.Next() {
		var (
			sub       Submission
			createdAt string
			payload   sql.NullString
		)
		if err := rows.Scan(&sub.ID, &sub.Type, &sub.PlayerID, &createdAt, &payload); err != nil {
			return nil, err
		}
		if sub.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing submission created_at: %w", err)
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &sub.Payload); err != nil {
				return nil, fmt.Errorf("decoding submission payload: %w", err)
			}
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func loadVotes(ctx context.Context, q querier, code string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT voter_id, value FROM room_votes WHERE room_code = ?
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := map[string]string{}
	for rows.Next() {
		var voter, value string
		if err := rows.Scan(&voter, &value); err != nil {
			return nil, err
		}
		votes[voter] = value
	}
	return votes, rows.Err()
}

func loadReactions(ctx context.Context, q querier, code string) (map[string]map[string]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT submission_id, kind, count FROM room_reactions WHERE room_code = ?
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := map[string]map[string]int{}
	for rows.Next() {
		var (
			id, kind string
			count    int
		)
		if err := rows.Scan(&id, &kind, &count); err != nil {
			return nil, err
		}
		if reactions[id] == nil {
			reactions[id] = map[string]int{}
		}
		reactions[id][kind] = count
	}
	return reactions, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, code string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	if err := deleteRoom(ctx, tx, code); err != nil {
		return unavailable(err)
	}
	return unavailable(tx.Commit())
}

func deleteRoom(ctx context.Context, tx *sql.Tx, code string) error {
	for _, table := range []string{"sessions", "room_reactions", "room_votes", "room_submissions", "room_players"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE room_code = ?`, table), code,
		); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE code = ?`, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// mutate bumps the room version and runs fn in the same transaction. The
// version bump goes first so the write lock is taken up front.
func (s *SQLiteStore) mutate(ctx context.Context, code string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE rooms SET version = version + 1 WHERE code = ?`, code)
	if err != nil {
		return unavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := fn(tx); err != nil {
		return unavailable(err)
	}
	return unavailable(tx.Commit())
}

func upsertPlayer(ctx context.Context, tx *sql.Tx, code string, p Player) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO room_players (room_code, id, name, is_host, score, submitted, joined_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(room_code, id) DO UPDATE SET name = excluded.name
	`, code, p.ID, p.Name, boolInt(p.IsHost), p.Score, formatTime(p.JoinedAt))
	return err
}

func (s *SQLiteStore) UpsertPlayer(ctx context.Context, code string, p Player) error {
	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		return upsertPlayer(ctx, tx, code, p)
	})
}

func (s *SQLiteStore) RemovePlayer(ctx context.Context, code, playerID string) error {
	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM room_players WHERE room_code = ? AND id = ?`, code, playerID)
		return err
	})
}

func (s *SQLiteStore) SetFields(ctx context.Context, code string, f Fields) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if f.Phase != nil {
		set("phase", *f.Phase)
	}
	if f.PhaseSeed != nil {
		set("phase_seed", int64(*f.PhaseSeed))
	}
	if f.PhaseEndTime != nil {
		if f.PhaseEndTime.IsZero() {
			set("phase_end_time", nil)
		} else {
			set("phase_end_time", formatTime(*f.PhaseEndTime))
		}
	}
	if f.IsPaused != nil {
		set("is_paused", boolInt(*f.IsPaused))
	}
	if f.Display != nil {
		set("display_mode", f.Display.Mode)
		if len(f.Display.Data) == 0 {
			set("display_data", nil)
		} else {
			set("display_data", string(f.Display.Data))
		}
	}
	if f.TimerExtension != nil {
		set("timer_extension", *f.TimerExtension)
	}
	if f.FeaturedSubmission != nil {
		set("featured_submission", *f.FeaturedSubmission)
	}

	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		if len(sets) > 0 {
			query := fmt.Sprintf(`UPDATE rooms SET %s WHERE code = ?`, strings.Join(sets, ", "))
			if _, err := tx.ExecContext(ctx, query, append(args, code)...); err != nil {
				return err
			}
		}
		if f.Phase != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE room_players SET submitted = 0 WHERE room_code = ?`, code,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) AppendSubmission(ctx context.Context, code string, sub Submission) error {
	var payload sql.NullString
	if len(sub.Payload) > 0 {
		data, err := json.Marshal(sub.Payload)
		if err != nil {
			return fmt.Errorf("encoding submission payload: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO room_submissions (room_code, id, type, player_id, created_at, payload)
			VALUES (?, ?, ?, ?, ?, ?)
		`, code, sub.ID, sub.Type, sub.PlayerID, formatTime(sub.CreatedAt), payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE room_players SET submitted = 1 WHERE room_code = ? AND id = ?`,
			code, sub.PlayerID)
		return err
	})
}

func (s *SQLiteStore) IncrementReaction(ctx context.Context, code, submissionID, kind string) error {
	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO room_reactions (room_code, submission_id, kind, count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(room_code, submission_id, kind) DO UPDATE SET count = count + 1
		`, code, submissionID, kind)
		return err
	})
}

func (s *SQLiteStore) SetVote(ctx context.Context, code, voterID, value string) error {
	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO room_votes (room_code, voter_id, value) VALUES (?, ?, ?)
			ON CONFLICT(room_code, voter_id) DO UPDATE SET value = excluded.value
		`, code, voterID, value)
		return err
	})
}

func (s *SQLiteStore) AdjustScore(ctx context.Context, code, playerID string, delta int) error {
	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE room_players SET score = score + ? WHERE room_code = ? AND id = ?`,
			delta, code, playerID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) AddTimerExtension(ctx context.Context, code string, seconds int) error {
	return s.mutate(ctx, code, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE rooms SET timer_extension = timer_extension + ? WHERE code = ?`,
			seconds, code)
		return err
	})
}

func (s *SQLiteStore) PurgeCreatedBefore(ctx context.Context, t time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback()

	// Materialize codes first: SQLite can't have concurrent cursors.
	rows, err := tx.QueryContext(ctx,
		`SELECT code FROM rooms WHERE created_at < ?`, formatTime(t))
	if err != nil {
		return nil, unavailable(err)
	}
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, unavailable(err)
		}
		codes = append(codes, code)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	for _, code := range codes {
		if err := deleteRoom(ctx, tx, code); err != nil {
			return nil, unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return codes, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, tokenHash string, sess Session) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM rooms WHERE code = ?`, sess.RoomCode).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable(err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, room_code, participant_id, created_at)
		VALUES (?, ?, ?, ?)
	`, tokenHash, sess.RoomCode, sess.ParticipantID, formatTime(sess.CreatedAt))
	return unavailable(err)
}

func (s *SQLiteStore) SessionByHash(ctx context.Context, tokenHash string) (Session, error) {
	var (
		sess      Session
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT room_code, participant_id, created_at FROM sessions WHERE token_hash = ?
	`, tokenHash).Scan(&sess.RoomCode, &sess.ParticipantID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, unavailable(err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return Session{}, unavailable(err)
	}
	return sess, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
