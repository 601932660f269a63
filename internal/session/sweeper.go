package session

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/adaptiq/internal/analysis"
)

// DefaultSweepInterval is how often RunSweeper checks for expired sessions.
const DefaultSweepInterval = 15 * time.Second

// Sweep finalizes ACTIVE sessions whose wall-clock budget has run out and
// evicts completed sessions past the retention window. It returns the
// number of sessions finalized.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	finalized := 0

	for _, id := range m.store.IDs() {
		if ctx.Err() != nil {
			break
		}

		s, err := m.store.Apply(ctx, id, func(s *Session) error {
			if s.Status != StatusActive || !s.expired(now) {
				return errNoChange
			}
			m.complete(ctx, s, analysis.ReasonTimeExpired, now)
			return nil
		})
		switch {
		case err == nil:
			finalized++
			m.afterComplete(ctx, s)
		case errors.Is(err, errNoChange), errors.Is(err, ErrSessionNotFound):
		default:
			m.logger.Error("sweeping session failed", "session_id", id, "error", err)
		}

		m.evict(id, now)
	}

	if finalized > 0 {
		m.logger.Info("sweep finalized expired sessions", "count", finalized)
	}
	return finalized
}

// evict drops a completed session once its result is archived and the
// retention window has passed.
func (m *Manager) evict(id string, now time.Time) {
	if m.results == nil || m.settings.Retention <= 0 {
		return
	}
	s, err := m.store.Get(id)
	if err != nil || s.Status != StatusCompleted || s.CompletedAt == nil {
		return
	}
	if now.Sub(*s.CompletedAt) >= m.settings.Retention {
		m.store.Delete(id)
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Restore loads sessions saved before a restart. Sessions whose deadline
// passed while the process was down are finalized by the next Sweep.
func (m *Manager) Restore(ctx context.Context, loader SnapshotLoader) (int, error) {
	sessions, err := loader.LoadOpenSessions(ctx)
	if err != nil {
		return 0, wrapError(KindInternal, err, "load saved sessions")
	}
	n := 0
	for _, s := range sessions {
		if m.store.put(s) {
			n++
		}
	}
	m.logger.Info("restored sessions", "count", n)
	return n, nil
}
