package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/adaptiq/internal/question"
)

// QuestionRepo is the SQLite question bank. It implements pool.Repository.
type QuestionRepo struct {
	db *sql.DB
}

func criteriaWhere(c question.Criteria) (string, []any) {
	conds := []string{"subject_id = ?"}
	args := []any{c.SubjectID}
	if c.TopicID != "" {
		conds = append(conds, "topic_id = ?")
		args = append(args, c.TopicID)
	}
	if c.SubtopicID != "" {
		conds = append(conds, "subtopic_id = ?")
		args = append(args, c.SubtopicID)
	}
	return strings.Join(conds, " AND "), args
}

// Find returns questions matching the criteria and tier, minus exclude.
// FALLBACK placeholders are never served as bank content.
func (r *QuestionRepo) Find(ctx context.Context, c question.Criteria, d question.Difficulty, exclude []string) ([]question.Question, error) {
	where, args := criteriaWhere(c)
	where += " AND difficulty = ? AND provenance != ?"
	args = append(args, string(d), string(question.ProvenanceFallback))
	if len(exclude) > 0 {
		where += " AND id NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(exclude)), ",") + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	return r.query(ctx, `SELECT body FROM questions WHERE `+where+` ORDER BY created_at, id`, args...)
}

// List returns questions matching the criteria across all tiers. A
// non-positive limit returns everything.
func (r *QuestionRepo) List(ctx context.Context, c question.Criteria, limit int) ([]question.Question, error) {
	q := `SELECT body FROM questions`
	var args []any
	if c.SubjectID != "" {
		where, a := criteriaWhere(c)
		q += ` WHERE ` + where
		args = a
	}
	q += ` ORDER BY subject_id, topic_id, difficulty, created_at, id`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.query(ctx, q, args...)
}

func (r *QuestionRepo) query(ctx context.Context, q string, args ...any) ([]question.Question, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []question.Question
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var qu question.Question
		if err := json.Unmarshal([]byte(body), &qu); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

// Save inserts or replaces questions in one transaction. Invalid questions
// abort the whole batch.
func (r *QuestionRepo) Save(ctx context.Context, qs []question.Question) error {
	for i := range qs {
		if err := qs[i].Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (id, subject_id, topic_id, subtopic_id, difficulty, provenance, prompt, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			subject_id = excluded.subject_id, topic_id = excluded.topic_id,
			subtopic_id = excluded.subtopic_id, difficulty = excluded.difficulty,
			provenance = excluded.provenance, prompt = excluded.prompt, body = excluded.body`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for i := range qs {
		q := &qs[i]
		body, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, q.ID, q.SubjectID, q.TopicID, q.SubtopicID,
			string(q.Difficulty), string(q.Provenance), q.Prompt, string(body), now); err != nil {
			return fmt.Errorf("save question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// QuestionCount is the number of questions per subject, topic and tier.
type QuestionCount struct {
	SubjectID  string
	TopicID    string
	Difficulty question.Difficulty
	Count      int
}

// Counts summarises the bank.
func (r *QuestionRepo) Counts(ctx context.Context) ([]QuestionCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subject_id, topic_id, difficulty, COUNT(*) FROM questions
		 GROUP BY subject_id, topic_id, difficulty ORDER BY subject_id, topic_id, difficulty`)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	defer rows.Close()

	var out []QuestionCount
	for rows.Next() {
		var c QuestionCount
		var d string
		if err := rows.Scan(&c.SubjectID, &c.TopicID, &d, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		c.Difficulty = question.Difficulty(d)
		out = append(out, c)
	}
	return out, rows.Err()
}
