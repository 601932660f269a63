package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abhisek/adaptiq/internal/session"
)

// SessionEvent is a stored lifecycle event.
type SessionEvent struct {
	ID        int64
	Sequence  int64
	Timestamp time.Time
	Type      string
	SessionID string
	LearnerID string
	Version   int
	Data      map[string]any
}

// Publish appends a lifecycle event. It implements session.EventSink.
func (r *EventRepo) Publish(ctx context.Context, ev session.Event) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO session_events (sequence, timestamp, type, session_id, learner_id, version, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seqNum, formatTime(ev.At), string(ev.Type), ev.SessionID, ev.LearnerID, ev.Version, string(body))
	if err != nil {
		return fmt.Errorf("save session event: %w", err)
	}
	return nil
}

// SessionEvents returns the events of one session in sequence order.
func (r *EventRepo) SessionEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]SessionEvent, error) {
	where, args := opts.where("session_id = ?")
	args = append([]any{sessionID}, args...)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sequence, timestamp, type, session_id, learner_id, version, data
		 FROM session_events`+where+` ORDER BY sequence ASC`+opts.limit(), args...)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var out []SessionEvent
	for rows.Next() {
		var (
			e        SessionEvent
			ts, data string
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &ts, &e.Type, &e.SessionID, &e.LearnerID, &e.Version, &data); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
