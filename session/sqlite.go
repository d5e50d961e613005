package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/researchmesh/core"
)

// SQLiteStore is a durable Store backed by a single SQLite file. Structured
// columns (config, plan, key findings, sections) are stored as JSON; WAL
// mode is enabled for concurrent reads.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path, creating parent
// directories as needed, and applies pending schema migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Sessions},
		{2, migrationV2Syntheses},
		{3, migrationV3Feedback},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Sessions = `
CREATE TABLE IF NOT EXISTS research_sessions (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	status TEXT NOT NULL,
	config TEXT NOT NULL,
	prompt_config TEXT,
	exit_criteria TEXT NOT NULL,
	current_iteration INTEGER NOT NULL DEFAULT 0,
	plan TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON research_sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON research_sessions(created_at);
`

const migrationV2Syntheses = `
CREATE TABLE IF NOT EXISTS syntheses (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
	iteration INTEGER NOT NULL,
	is_final INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL,
	key_findings TEXT NOT NULL,
	sections TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_syntheses_session_id ON syntheses(session_id);
`

const migrationV3Feedback = `
CREATE TABLE IF NOT EXISTS user_feedback (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
	iteration INTEGER NOT NULL,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_session_id ON user_feedback(session_id);
`

// CreateSession implements Store.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *core.ResearchSession) error {
	config, err := json.Marshal(session.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	exitCriteria, err := json.Marshal(session.ExitCriteria)
	if err != nil {
		return fmt.Errorf("marshal exit criteria: %w", err)
	}
	promptConfig, err := marshalNullable(session.PromptConfig)
	if err != nil {
		return fmt.Errorf("marshal prompt config: %w", err)
	}
	plan, err := marshalNullable(session.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO research_sessions
			(id, topic, status, config, prompt_config, exit_criteria, current_iteration, plan, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID, session.Topic, string(session.Status), string(config), promptConfig,
		string(exitCriteria), session.CurrentIteration, plan,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt), formatNullableTime(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession implements Store.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*core.ResearchSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, status, config, prompt_config, exit_criteria, current_iteration, plan, created_at, updated_at, completed_at
		FROM research_sessions WHERE id = ?
	`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return session, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*core.ResearchSession, error) {
	var (
		session              core.ResearchSession
		status               string
		config, exitCriteria string
		promptConfig, plan   sql.NullString
		createdAt, updatedAt string
		completedAt          sql.NullString
	)
	err := row.Scan(&session.ID, &session.Topic, &status, &config, &promptConfig,
		&exitCriteria, &session.CurrentIteration, &plan, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	session.Status = core.SessionStatus(status)
	if err := json.Unmarshal([]byte(config), &session.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal([]byte(exitCriteria), &session.ExitCriteria); err != nil {
		return nil, fmt.Errorf("unmarshal exit criteria: %w", err)
	}
	if promptConfig.Valid {
		session.PromptConfig = &core.PromptConfig{}
		if err := json.Unmarshal([]byte(promptConfig.String), session.PromptConfig); err != nil {
			return nil, fmt.Errorf("unmarshal prompt config: %w", err)
		}
	}
	if plan.Valid {
		session.Plan = &core.ResearchPlan{}
		if err := json.Unmarshal([]byte(plan.String), session.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	session.CompletedAt = parseNullableTime(completedAt)
	session.Agents = []core.AgentState{}
	return &session, nil
}

// UpdateSession implements Store.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
	query := "UPDATE research_sessions SET updated_at = ?"
	args := []any{formatTime(time.Now().UTC())}

	if update.Status != nil {
		query += ", status = ?"
		args = append(args, string(*update.Status))
	}
	if update.CurrentIteration != nil {
		query += ", current_iteration = ?"
		args = append(args, *update.CurrentIteration)
	}
	if update.Plan != nil {
		plan, err := json.Marshal(update.Plan)
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		query += ", plan = ?"
		args = append(args, string(plan))
	}
	if update.CompletedAt != nil {
		query += ", completed_at = ?"
		args = append(args, formatTime(*update.CompletedAt))
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions implements Store.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*core.ResearchSession, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, status, config, prompt_config, exit_criteria, current_iteration, plan, created_at, updated_at, completed_at
		FROM research_sessions ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*core.ResearchSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession implements Store.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM research_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SaveSynthesis implements Store.
func (s *SQLiteStore) SaveSynthesis(ctx context.Context, synthesis *core.Synthesis) error {
	keyFindings, err := json.Marshal(synthesis.KeyFindings)
	if err != nil {
		return fmt.Errorf("marshal key findings: %w", err)
	}
	sections, err := json.Marshal(synthesis.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO syntheses (id, session_id, iteration, is_final, summary, key_findings, sections, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		synthesis.ID, synthesis.SessionID, synthesis.Iteration, synthesis.IsFinal,
		synthesis.Summary, string(keyFindings), string(sections), synthesis.Confidence,
		formatTime(synthesis.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert synthesis: %w", err)
	}
	return nil
}

// LatestSynthesis implements Store.
func (s *SQLiteStore) LatestSynthesis(ctx context.Context, sessionID string) (*core.Synthesis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, iteration, is_final, summary, key_findings, sections, confidence, created_at
		FROM syntheses WHERE session_id = ? ORDER BY created_at DESC, is_final DESC, iteration DESC LIMIT 1
	`, sessionID)

	synthesis, err := scanSynthesis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return synthesis, err
}

// SynthesisHistory implements Store.
func (s *SQLiteStore) SynthesisHistory(ctx context.Context, sessionID string) ([]*core.Synthesis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, iteration, is_final, summary, key_findings, sections, confidence, created_at
		FROM syntheses WHERE session_id = ? ORDER BY iteration ASC, created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("synthesis history: %w", err)
	}
	defer rows.Close()

	var history []*core.Synthesis
	for rows.Next() {
		synthesis, err := scanSynthesis(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, synthesis)
	}
	return history, rows.Err()
}

func scanSynthesis(row rowScanner) (*core.Synthesis, error) {
	var (
		synthesis             core.Synthesis
		keyFindings, sections string
		createdAt             string
	)
	err := row.Scan(&synthesis.ID, &synthesis.SessionID, &synthesis.Iteration, &synthesis.IsFinal,
		&synthesis.Summary, &keyFindings, &sections, &synthesis.Confidence, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keyFindings), &synthesis.KeyFindings); err != nil {
		return nil, fmt.Errorf("unmarshal key findings: %w", err)
	}
	if err := json.Unmarshal([]byte(sections), &synthesis.Sections); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	if synthesis.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &synthesis, nil
}

// SaveFeedback implements Store.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, feedback *core.UserFeedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_feedback (id, session_id, iteration, type, content, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		feedback.ID, feedback.SessionID, feedback.Iteration, string(feedback.Type),
		feedback.Content, feedback.Processed, formatTime(feedback.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

var _ Store = (*SQLiteStore)(nil)
