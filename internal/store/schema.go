package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on every Open. Statements must be idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		topic_id TEXT NOT NULL DEFAULT '',
		subtopic_id TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		provenance TEXT NOT NULL,
		prompt TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_criteria
		ON questions (subject_id, topic_id, subtopic_id, difficulty)`,

	`CREATE TABLE IF NOT EXISTS results (
		session_id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		score REAL NOT NULL,
		reason TEXT NOT NULL,
		body TEXT NOT NULL,
		completed_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_learner ON results (learner_id, completed_at)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status)`,

	`CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence INTEGER NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		session_id TEXT NOT NULL,
		learner_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		data TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events (session_id, sequence)`,

	`CREATE TABLE IF NOT EXISTS llm_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence INTEGER NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		purpose TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
