package eventstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kestrelops/kestrel/internal/session"
)

// #region errors
var (
	// ErrNotFound signals an unknown session reference.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidOrder signals an event timestamp preceding the session's
	// latest recorded event. The write is rejected, never reordered.
	ErrInvalidOrder = errors.New("event timestamp precedes latest recorded event")
)

// #endregion errors

// #region time-layout
// timeLayout is fixed-width, unlike RFC3339Nano which trims trailing
// zeros. Timestamps are stored as TEXT, so SQL comparisons (MAX, ORDER
// BY, range filters) are lexicographic and only match chronological
// order when every value has the same width. All values are formatted
// in UTC, so the zone always renders as Z.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion time-layout

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id  TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	input_json  TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	payload_json TEXT,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp);

CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	confidence    REAL NOT NULL,
	threshold     REAL NOT NULL,
	snapshot_json TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

// #endregion schema

// #region store-struct
// Store manages interaction sessions and their append-only events in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. synchronous=FULL
// keeps every append durable before the call returns.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		return nil, fmt.Errorf("pragma sync: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging,
// trend ingestion sharing the same file).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-session
// CreateSession records a new session. An empty id gets a generated UUID.
// Returns the stored session record.
func (s *Store) CreateSession(id string, input json.RawMessage, createdAt time.Time) (session.Session, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var inputPtr interface{}
	if len(input) > 0 {
		inputPtr = string(input)
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, created_at, input_json) VALUES (?, ?, ?)`,
		id, createdAt.UTC().Format(timeLayout), inputPtr,
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("insert session: %w", err)
	}

	return session.Session{ID: id, CreatedAt: createdAt.UTC(), Input: input}, nil
}

// #endregion create-session

// #region append
// Append writes one event durably. The event timestamp must not precede the
// session's latest recorded event; out-of-order writes fail with
// ErrInvalidOrder and leave the stored sequence unchanged. Events for
// distinct sessions are independent, so no cross-session locking happens.
func (s *Store) Append(ev session.Event) error {
	if !session.ValidEventType(ev.Type) {
		return fmt.Errorf("append: unknown event type %q", ev.Type)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("append: zero timestamp")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, ev.SessionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("append %s: %w", ev.SessionID, ErrNotFound)
	}

	// Ordering check inside the insert transaction keeps the fold invariant.
	var latestStr sql.NullString
	if err := tx.QueryRow(
		`SELECT MAX(timestamp) FROM events WHERE session_id = ?`, ev.SessionID,
	).Scan(&latestStr); err != nil {
		return fmt.Errorf("check latest event: %w", err)
	}
	if latestStr.Valid {
		latest, err := time.Parse(time.RFC3339Nano, latestStr.String)
		if err != nil {
			return fmt.Errorf("parse latest timestamp: %w", err)
		}
		if ev.Timestamp.Before(latest) {
			return fmt.Errorf("append %s at %s: %w", ev.SessionID,
				ev.Timestamp.UTC().Format(timeLayout), ErrInvalidOrder)
		}
	}

	var payloadPtr interface{}
	if len(ev.Payload) > 0 {
		payloadPtr = string(ev.Payload)
	}

	_, err = tx.Exec(
		`INSERT INTO events (session_id, timestamp, event_type, payload_json)
		 VALUES (?, ?, ?, ?)`,
		ev.SessionID, ev.Timestamp.UTC().Format(timeLayout), string(ev.Type), payloadPtr,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit()
}

// #endregion append

// #region get-session
// GetSession retrieves a session and its events in timestamp order.
func (s *Store) GetSession(id string) (session.Session, []session.Event, error) {
	var sess session.Session
	var createdStr string
	var inputJSON sql.NullString

	err := s.db.QueryRow(
		`SELECT session_id, created_at, input_json FROM sessions WHERE session_id = ?`, id,
	).Scan(&sess.ID, &createdStr, &inputJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return session.Session{}, nil, fmt.Errorf("get session %s: %w", id, err)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if inputJSON.Valid {
		sess.Input = json.RawMessage(inputJSON.String)
	}

	rows, err := s.db.Query(
		`SELECT timestamp, event_type, payload_json FROM events
		 WHERE session_id = ? ORDER BY timestamp, id`, id,
	)
	if err != nil {
		return session.Session{}, nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []session.Event
	for rows.Next() {
		var ev session.Event
		var tsStr, typeStr string
		var payloadJSON sql.NullString
		if err := rows.Scan(&tsStr, &typeStr, &payloadJSON); err != nil {
			return session.Session{}, nil, fmt.Errorf("scan event: %w", err)
		}
		ev.SessionID = id
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		ev.Type = session.EventType(typeStr)
		if payloadJSON.Valid {
			ev.Payload = json.RawMessage(payloadJSON.String)
		}
		events = append(events, ev)
	}
	return sess, events, rows.Err()
}

// #endregion get-session

// #region list-sessions
// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]session.Session, error) {
	rows, err := s.db.Query(
		`SELECT session_id, created_at, input_json FROM sessions
		 ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		var sess session.Session
		var createdStr string
		var inputJSON sql.NullString
		if err := rows.Scan(&sess.ID, &createdStr, &inputJSON); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		if inputJSON.Valid {
			sess.Input = json.RawMessage(inputJSON.String)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// #endregion list-sessions

// #region sample-live
// SampleLive draws a deterministic sample of sessions created inside
// [windowStart, windowEnd). Candidates are ordered by session ID, then a
// shuffle seeded with seed selects sampleSize of them; the same seed always
// reproduces the same sample. The returned slice is ordered by session ID.
func (s *Store) SampleLive(windowStart, windowEnd time.Time, sampleSize int, seed int64) ([]session.Session, error) {
	rows, err := s.db.Query(
		`SELECT session_id FROM sessions
		 WHERE created_at >= ? AND created_at < ?
		 ORDER BY session_id`,
		windowStart.UTC().Format(timeLayout),
		windowEnd.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("sample candidates: %w", err)
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if sampleSize > len(candidates) {
		sampleSize = len(candidates)
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(candidates))

	selected := make([]string, 0, sampleSize)
	for _, idx := range perm[:sampleSize] {
		selected = append(selected, candidates[idx])
	}
	sort.Strings(selected)

	sessions := make([]session.Session, 0, len(selected))
	for _, id := range selected {
		sess, _, err := s.GetSession(id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// #endregion sample-live
