package session

import (
	"context"
	"errors"
	"time"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventCreated   EventType = "session.created"
	EventAnswered  EventType = "session.answered"
	EventPaused    EventType = "session.paused"
	EventResumed   EventType = "session.resumed"
	EventCompleted EventType = "session.completed"
)

// Event is published after a mutation has been committed.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	LearnerID string         `json:"learner_id"`
	Version   int            `json:"version"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventSink receives lifecycle events. Publish errors are logged by the
// manager and never fail the operation.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// MultiSink fans an event out to every sink.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newEvent(t EventType, s *Session, at time.Time, data map[string]any) Event {
	return Event{
		Type:      t,
		SessionID: s.ID,
		LearnerID: s.LearnerID,
		Version:   s.Version,
		At:        at,
		Data:      data,
	}
}
