package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// History events.
const (
	EventPersonaCreated      = "persona_created"
	EventConversationCreated = "conversation_created"
	EventCallEnded           = "call_ended"
	EventFeedbackSent        = "feedback_sent"
)

// PersonaRecord maps a rendered prompt to the provider persona created for
// it.
type PersonaRecord struct {
	ScenarioKey string    `json:"scenarioKey"`
	PromptHash  string    `json:"promptHash"`
	PersonaID   string    `json:"personaId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HistoryEntry stores past actions (persona creation, calls, feedback).
type HistoryEntry struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	SessionID string                 `json:"sessionId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Store wraps the SQL database used for persistence.
type Store struct {
	db     *sql.DB
	driver string
}

// Open initializes the datastore using the supplied DSN/file path and driver.
// Supported drivers are "sqlite" (default) and "postgres".
func Open(dsn string, driver string) (*Store, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("datastore DSN is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create datastore directory: %w", err)
		}
		conn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dsn)
		db, err = sql.Open("sqlite", conn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite datastore: %w", err)
		}
	case "postgres", "pgx":
		driver = "postgres"
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres datastore: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported datastore driver: %s", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Driver returns the normalized driver name.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) initSchema() error {
	var stmts []string
	if s.driver == "postgres" {
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS personas (
				scenario_key TEXT NOT NULL,
				prompt_hash TEXT NOT NULL,
				persona_id TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (scenario_key, prompt_hash)
			);`,
			`CREATE TABLE IF NOT EXISTS history (
				id BIGSERIAL PRIMARY KEY,
				event TEXT NOT NULL,
				session_id TEXT,
				metadata TEXT,
				created_at TIMESTAMPTZ NOT NULL
			);`,
		}
	} else {
		stmts = []string{
			`PRAGMA journal_mode=WAL;`,
			`CREATE TABLE IF NOT EXISTS personas (
				scenario_key TEXT NOT NULL,
				prompt_hash TEXT NOT NULL,
				persona_id TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				PRIMARY KEY (scenario_key, prompt_hash)
			);`,
			`CREATE TABLE IF NOT EXISTS history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				event TEXT NOT NULL,
				session_id TEXT,
				metadata TEXT,
				created_at TIMESTAMP NOT NULL
			);`,
		}
	}
	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id);`,
	)
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

// Close shuts down the datastore.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SavePersona records (or replaces) the persona for a scenario and prompt.
func (s *Store) SavePersona(rec *PersonaRecord) error {
	if rec.ScenarioKey == "" || rec.PromptHash == "" || rec.PersonaID == "" {
		return errors.New("scenario key, prompt hash and persona id are required")
	}
	rec.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(s.rebind(`INSERT INTO personas (scenario_key, prompt_hash, persona_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scenario_key, prompt_hash) DO UPDATE SET persona_id = excluded.persona_id, created_at = excluded.created_at`),
		rec.ScenarioKey, rec.PromptHash, rec.PersonaID, rec.CreatedAt,
	)
	return err
}

// FindPersona returns the stored persona for a scenario and prompt hash.
func (s *Store) FindPersona(scenarioKey, promptHash string) (*PersonaRecord, error) {
	row := s.db.QueryRow(s.rebind(`SELECT scenario_key, prompt_hash, persona_id, created_at FROM personas WHERE scenario_key=? AND prompt_hash=?`),
		scenarioKey, promptHash)
	var rec PersonaRecord
	if err := row.Scan(&rec.ScenarioKey, &rec.PromptHash, &rec.PersonaID, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListPersonas returns every stored persona, newest first.
func (s *Store) ListPersonas() ([]PersonaRecord, error) {
	rows, err := s.db.Query(`SELECT scenario_key, prompt_hash, persona_id, created_at FROM personas ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PersonaRecord
	for rows.Next() {
		var rec PersonaRecord
		if err := rows.Scan(&rec.ScenarioKey, &rec.PromptHash, &rec.PersonaID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendHistory writes an entry to the history log.
func (s *Store) AppendHistory(entry *HistoryEntry) error {
	entry.CreatedAt = time.Now().UTC()
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	var id int64
	err = s.db.QueryRow(s.rebind(`INSERT INTO history (event, session_id, metadata, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		entry.Event, entry.SessionID, string(metadata), entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return err
	}
	entry.ID = strconv.FormatInt(id, 10)
	return nil
}

// ListHistory returns the newest history entries.
func (s *Store) ListHistory(limit int) ([]HistoryEntry, error) {
	query := `SELECT id, event, session_id, metadata, created_at FROM history ORDER BY id DESC`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var sessionID, metadata sql.NullString
		var id int64
		if err := rows.Scan(&id, &e.Event, &sessionID, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = strconv.FormatInt(id, 10)
		e.SessionID = sessionID.String
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CleanupHistoryBefore deletes entries older than cutoff and reports how
// many were removed.
func (s *Store) CleanupHistoryBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(s.rebind(`DELETE FROM history WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearHistory removes every history entry.
func (s *Store) ClearHistory() error {
	_, err := s.db.Exec(`DELETE FROM history`)
	return err
}
