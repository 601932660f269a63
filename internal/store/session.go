package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abhisek/adaptiq/internal/session"
)

// SessionRepo keeps JSON snapshots of sessions so they survive restarts.
// It implements session.Snapshotter and session.SnapshotLoader.
type SessionRepo struct {
	db *sql.DB
}

// SaveSession upserts the snapshot. Older versions never overwrite newer
// ones.
func (r *SessionRepo) SaveSession(ctx context.Context, s *session.Session) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, learner_id, status, version, body, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, version = excluded.version,
			body = excluded.body, updated_at = excluded.updated_at
		 WHERE excluded.version > sessions.version`,
		s.ID, s.LearnerID, string(s.Status), s.Version, string(body), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// LoadOpenSessions returns every ACTIVE or PAUSED session.
func (r *SessionRepo) LoadOpenSessions(ctx context.Context) ([]*session.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM sessions WHERE status IN (?, ?) ORDER BY id`,
		string(session.StatusActive), string(session.StatusPaused))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var s session.Session
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// PruneCompleted deletes snapshots of sessions completed before cutoff and
// returns how many were removed. Their results stay in the results table.
func (r *SessionRepo) PruneCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = ? AND updated_at < ?`,
		string(session.StatusCompleted), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
