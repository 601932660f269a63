package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abhisek/adaptiq/internal/analysis"
)

// ResultRepo stores assessment results. It implements
// session.ResultPersistence.
type ResultRepo struct {
	db *sql.DB
}

// SaveResult stores res. A result already stored for the session is kept:
// results are immutable.
func (r *ResultRepo) SaveResult(ctx context.Context, res *analysis.AssessmentResult) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO results (session_id, learner_id, score, reason, body, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(session_id) DO NOTHING`,
		res.SessionID, res.LearnerID, res.Score, string(res.Reason), string(body), formatTime(res.CompletedAt))
	if err != nil {
		return fmt.Errorf("save result %s: %w", res.SessionID, err)
	}
	return nil
}

// LoadResult returns the stored result, or nil when there is none.
func (r *ResultRepo) LoadResult(ctx context.Context, sessionID string) (*analysis.AssessmentResult, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM results WHERE session_id = ?`, sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", sessionID, err)
	}
	return decodeResult(body)
}

// ListByLearner returns a learner's results, newest first.
func (r *ResultRepo) ListByLearner(ctx context.Context, learnerID string, limit int) ([]*analysis.AssessmentResult, error) {
	q := `SELECT body FROM results WHERE learner_id = ? ORDER BY completed_at DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.db.QueryContext(ctx, q, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*analysis.AssessmentResult
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res, err := decodeResult(body)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func decodeResult(body string) (*analysis.AssessmentResult, error) {
	var res analysis.AssessmentResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}
