package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	FeedbackPending   = "pending"
	FeedbackRunning   = "running"
	FeedbackCompleted = "completed"
	FeedbackFailed    = "failed"
)

const (
	SpeakerCandidate   = "candidate"
	SpeakerInterviewer = "interviewer"
)

type Session struct {
	ID             string     `json:"id"`
	Role           string     `json:"role"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         string     `json:"status"`
	Feedback       string     `json:"feedback"`
	FeedbackStatus string     `json:"feedback_status"`
}

// Message is one stored line of an interview conversation.
type Message struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "interview-coach.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			feedback TEXT NOT NULL DEFAULT '',
			feedback_status TEXT NOT NULL DEFAULT 'pending'
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback_requests (
			session_id TEXT NOT NULL,
			prompt_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, prompt_hash)
		);
	`); err != nil {
		return fmt.Errorf("create feedback_requests table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id, id)"); err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// EnsureSession creates the session on first use. An existing session keeps
// its role and start time.
func (s *SQLiteStore) EnsureSession(id, role string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions(id, role, started_at, status, feedback_status) VALUES(?, ?, ?, 'active', ?)`,
		id,
		strings.TrimSpace(role),
		startedAt.UTC().Format(time.RFC3339Nano),
		FeedbackPending,
	)
	if err != nil {
		return fmt.Errorf("ensure session %s: %w", id, err)
	}
	return nil
}

// EndSession marks the session ended. The first end time wins.
func (s *SQLiteStore) EndSession(id string, endedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = COALESCE(ended_at, ?), status = 'ended' WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendExchange stores a candidate message and the reply to it in one
// transaction, so a stored conversation never holds an unanswered pair half.
func (s *SQLiteStore) AppendExchange(sessionID string, candidate, interviewer Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append exchange: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range []Message{candidate, interviewer} {
		if _, err := tx.Exec(
			`INSERT INTO messages(session_id, speaker, text, timestamp) VALUES(?, ?, ?, ?)`,
			sessionID,
			m.Speaker,
			strings.TrimSpace(m.Text),
			m.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("append %s message for session %s: %w", m.Speaker, sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append exchange: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, role, started_at, ended_at, status, feedback, feedback_status
		 FROM sessions
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	rows, err := s.db.Query(
		`SELECT id, role, started_at, ended_at, status, feedback, feedback_status FROM sessions WHERE id = ?`,
		id,
	)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	sessions, err := scanSessions(rows)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	if len(sessions) == 0 {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sessions[0], nil
}

func (s *SQLiteStore) GetMessages(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT speaker, text, timestamp
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]Message, 0, 32)
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.Speaker, &m.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan message for session %s: %w", sessionID, err)
		}

		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse message timestamp for session %s: %w", sessionID, err)
		}
		m.Timestamp = parsedTS

		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows for session %s: %w", sessionID, err)
	}

	return messages, nil
}

func (s *SQLiteStore) UpdateFeedback(sessionID, feedback, status string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET feedback = ?, feedback_status = ? WHERE id = ?`,
		feedback,
		status,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("update feedback for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update feedback rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update feedback for session %s: %w", sessionID, ErrNotFound)
	}

	return nil
}

func (s *SQLiteStore) ClaimFeedbackRequest(sessionID, promptHash string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO feedback_requests(session_id, prompt_hash) VALUES(?, ?)`,
		sessionID,
		promptHash,
	)
	if err != nil {
		return false, fmt.Errorf("claim feedback request for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim feedback rows affected: %w", err)
	}

	return rows > 0, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	sessions := make([]Session, 0, 16)
	for rows.Next() {
		var sess Session
		var startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Role, &startedAt, &endedAt, &sess.Status, &sess.Feedback, &sess.FeedbackStatus); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		sess.StartedAt = parsedStart

		if endedAt.Valid {
			parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			sess.EndedAt = &parsedEnd
		}

		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}
