package archive

import (
	"context"
	"log/slog"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/session"
)

// Tee writes results to a primary store and mirrors them to a secondary
// one. Only primary failures are returned; reads fall through to the
// secondary when the primary has nothing.
type Tee struct {
	primary   session.ResultPersistence
	secondary session.ResultPersistence
	logger    *slog.Logger
}

// NewTee returns a Tee. A nil secondary makes it a pass-through.
func NewTee(primary, secondary session.ResultPersistence, logger *slog.Logger) *Tee {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tee{primary: primary, secondary: secondary, logger: logger}
}

func (t *Tee) SaveResult(ctx context.Context, res *analysis.AssessmentResult) error {
	if err := t.primary.SaveResult(ctx, res); err != nil {
		return err
	}
	if t.secondary == nil {
		return nil
	}
	if err := t.secondary.SaveResult(ctx, res); err != nil {
		t.logger.Warn("archive result failed", "session_id", res.SessionID, "error", err)
	}
	return nil
}

func (t *Tee) LoadResult(ctx context.Context, sessionID string) (*analysis.AssessmentResult, error) {
	res, err := t.primary.LoadResult(ctx, sessionID)
	if err != nil || res != nil || t.secondary == nil {
		return res, err
	}
	return t.secondary.LoadResult(ctx, sessionID)
}
