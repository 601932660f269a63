package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/adaptiq/internal/llm"
)

// LLMRequest is a stored model call.
type LLMRequest struct {
	ID           int64
	Sequence     int64
	Timestamp    time.Time
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMQuery narrows QueryLLMRequests. Empty fields match everything.
type LLMQuery struct {
	QueryOpts
	Purpose    string
	FailedOnly bool
}

// LLMUsage aggregates calls for one purpose and model pair.
type LLMUsage struct {
	Purpose      string
	Model        string
	Calls        int
	Failed       int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// Cost estimates the spend in USD. ok is false when the model has no
// known pricing.
func (u LLMUsage) Cost() (usd float64, ok bool) {
	c := llm.LookupCost(u.Model)
	if c == nil {
		return 0, false
	}
	return c.Cost(u.InputTokens, u.OutputTokens), true
}

// RecordLLMRequest implements llm.Recorder.
func (r *EventRepo) RecordLLMRequest(ctx context.Context, rec llm.RequestRecord) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO llm_requests (sequence, timestamp, provider, model, purpose, input_tokens,
			output_tokens, latency_ms, success, error_message, request_body, response_body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, formatTime(time.Now()), rec.Provider, rec.Model, rec.Purpose, rec.InputTokens,
		rec.OutputTokens, rec.LatencyMs, rec.Success, rec.ErrorMessage, rec.RequestBody, rec.ResponseBody)
	if err != nil {
		return fmt.Errorf("save LLM request: %w", err)
	}
	return nil
}

const llmColumns = `id, sequence, timestamp, provider, model, purpose, input_tokens, output_tokens,
	latency_ms, success, error_message, request_body, response_body`

type scanner interface {
	Scan(dest ...any) error
}

func scanLLMRequest(row scanner) (*LLMRequest, error) {
	var (
		e  LLMRequest
		ts string
	)
	err := row.Scan(&e.ID, &e.Sequence, &ts, &e.Provider, &e.Model, &e.Purpose, &e.InputTokens,
		&e.OutputTokens, &e.LatencyMs, &e.Success, &e.ErrorMessage, &e.RequestBody, &e.ResponseBody)
	if err != nil {
		return nil, err
	}
	if e.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &e, nil
}

// QueryLLMRequests returns recorded calls, newest first.
func (r *EventRepo) QueryLLMRequests(ctx context.Context, q LLMQuery) ([]LLMRequest, error) {
	var (
		conds []string
		args  []any
	)
	if q.Purpose != "" {
		conds = append(conds, "purpose = ?")
		args = append(args, q.Purpose)
	}
	if q.FailedOnly {
		conds = append(conds, "success = 0")
	}
	where, optArgs := q.where(conds...)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+llmColumns+` FROM llm_requests`+where+` ORDER BY sequence DESC`+q.limit(), append(args, optArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("query LLM requests: %w", err)
	}
	defer rows.Close()

	var out []LLMRequest
	for rows.Next() {
		e, err := scanLLMRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan LLM request: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetLLMRequest returns one call by id, or nil when it does not exist.
func (r *EventRepo) GetLLMRequest(ctx context.Context, id int64) (*LLMRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+llmColumns+` FROM llm_requests WHERE id = ?`, id)
	e, err := scanLLMRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get LLM request %d: %w", id, err)
	}
	return e, nil
}

// UsageBreakdown aggregates calls made at or after since per purpose and
// model, ordered by purpose then model. A zero since covers all calls.
func (r *EventRepo) UsageBreakdown(ctx context.Context, since time.Time) ([]LLMUsage, error) {
	where, args := QueryOpts{From: since}.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT purpose, model, COUNT(*), COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			CAST(COALESCE(AVG(latency_ms), 0) AS INTEGER)
		 FROM llm_requests`+where+` GROUP BY purpose, model ORDER BY purpose ASC, model ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM usage: %w", err)
	}
	defer rows.Close()

	var out []LLMUsage
	for rows.Next() {
		var u LLMUsage
		if err := rows.Scan(&u.Purpose, &u.Model, &u.Calls, &u.Failed, &u.InputTokens,
			&u.OutputTokens, &u.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
