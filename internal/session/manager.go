package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/difficulty"
	"github.com/abhisek/adaptiq/internal/pool"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/scoring"
)

// DefaultTimeLimit applies when neither the request nor Settings give one.
const DefaultTimeLimit = 30 * time.Minute

// QuestionSource fills sessions with questions.
type QuestionSource interface {
	FetchPool(ctx context.Context, req pool.Request) ([]question.Question, error)
	Alternative(ctx context.Context, c question.Criteria, d question.Difficulty, exclude []string) (*question.Question, error)
}

// ResultAnalyzer scores a completed session.
type ResultAnalyzer interface {
	Analyze(ctx context.Context, in analysis.Input) *analysis.AssessmentResult
}

// ResultPersistence archives results. LoadResult returns nil, nil when the
// session has no stored result.
type ResultPersistence interface {
	SaveResult(ctx context.Context, res *analysis.AssessmentResult) error
	LoadResult(ctx context.Context, sessionID string) (*analysis.AssessmentResult, error)
}

// SnapshotLoader returns the ACTIVE and PAUSED sessions saved before a
// restart.
type SnapshotLoader interface {
	LoadOpenSessions(ctx context.Context) ([]*Session, error)
}

// Settings tunes a Manager.
type Settings struct {
	DefaultTimeLimit time.Duration
	Policy           difficulty.Policy

	// Retention is how long a completed session stays in memory once its
	// result is archived. Zero keeps it until restart.
	Retention time.Duration
}

// Outcome is the result of SubmitAnswer. Result is set when the answer
// completed the session.
type Outcome struct {
	Session *Session
	Result  *analysis.AssessmentResult
}

// Manager implements the session lifecycle.
type Manager struct {
	store    *Store
	pool     QuestionSource
	analyzer ResultAnalyzer
	results  ResultPersistence
	events   EventSink
	settings Settings
	now      func() time.Time
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithResults archives results on completion and serves them after the
// session leaves memory.
func WithResults(r ResultPersistence) ManagerOption {
	return func(m *Manager) { m.results = r }
}

// WithEvents publishes lifecycle events.
func WithEvents(s EventSink) ManagerOption {
	return func(m *Manager) { m.events = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager.
func NewManager(store *Store, src QuestionSource, analyzer ResultAnalyzer, settings Settings, opts ...ManagerOption) *Manager {
	if settings.DefaultTimeLimit <= 0 {
		settings.DefaultTimeLimit = DefaultTimeLimit
	}
	if settings.Policy.WindowSize <= 0 {
		settings.Policy = difficulty.NewPolicy(0)
	}
	m := &Manager{
		store:    store,
		pool:     src,
		analyzer: analyzer,
		settings: settings,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// errNoChange aborts an Apply without it being an error for the caller.
var errNoChange = errors.New("no change")

func (m *Manager) validate(cfg *Config) error {
	cfg.LearnerID = strings.TrimSpace(cfg.LearnerID)
	cfg.SubjectID = strings.TrimSpace(cfg.SubjectID)
	switch {
	case cfg.LearnerID == "":
		return newError(KindValidation, "learner id is required")
	case cfg.SubjectID == "":
		return newError(KindValidation, "subject id is required")
	case cfg.QuestionCount <= 0 || cfg.QuestionCount > MaxQuestionCount:
		return newError(KindValidation, "question count must be between 1 and %d", MaxQuestionCount)
	case cfg.TimeLimitSeconds < 0:
		return newError(KindValidation, "time limit must not be negative")
	}

	if cfg.StartingDifficulty == "" {
		cfg.StartingDifficulty = question.Easy
	}
	d, err := question.ParseDifficulty(string(cfg.StartingDifficulty))
	if err != nil {
		return wrapError(KindValidation, err, "starting difficulty")
	}
	cfg.StartingDifficulty = d

	if cfg.TimeLimitSeconds == 0 {
		cfg.TimeLimitSeconds = int(m.settings.DefaultTimeLimit / time.Second)
	}
	return nil
}

// Create sources the questions and stores a new ACTIVE session. Nothing is
// stored when the pool cannot supply QuestionCount questions.
func (m *Manager) Create(ctx context.Context, cfg Config) (*Session, error) {
	if err := m.validate(&cfg); err != nil {
		return nil, err
	}

	qs, err := m.pool.FetchPool(ctx, pool.Request{
		Criteria:   cfg.Criteria(),
		Difficulty: cfg.StartingDifficulty,
		Count:      cfg.QuestionCount,
	})
	if err != nil {
		if errors.Is(err, pool.ErrPoolExhausted) {
			return nil, wrapError(KindPoolExhausted, err, "cannot source %d questions", cfg.QuestionCount)
		}
		return nil, wrapError(KindInternal, err, "fill question pool")
	}
	if len(qs) < cfg.QuestionCount {
		return nil, newError(KindPoolExhausted, "cannot source %d questions, found %d", cfg.QuestionCount, len(qs))
	}

	now := m.now()
	limit := time.Duration(cfg.TimeLimitSeconds) * time.Second
	s := &Session{
		ID:                   uuid.NewString(),
		LearnerID:            cfg.LearnerID,
		Config:               cfg,
		Questions:            qs[:cfg.QuestionCount],
		Answers:              []Answer{},
		DifficultyLog:        []Decision{},
		TimeRemainingSeconds: cfg.TimeLimitSeconds,
		CurrentDifficulty:    cfg.StartingDifficulty,
		Status:               StatusActive,
		StartedAt:            now,
		Deadline:             now.Add(limit),
		Version:              1,
	}
	if err := m.store.Insert(ctx, s); err != nil {
		return nil, err
	}

	m.logger.Info("session created", "session_id", s.ID, "learner_id", s.LearnerID,
		"criteria", cfg.Criteria().String(), "questions", len(s.Questions), "adaptive", cfg.Adaptive)
	m.publish(ctx, newEvent(EventCreated, s, now, map[string]any{
		"question_count":      len(s.Questions),
		"starting_difficulty": cfg.StartingDifficulty,
		"adaptive":            cfg.Adaptive,
	}))
	return s.Clone(), nil
}

// Get returns a copy of the session.
func (m *Manager) Get(_ context.Context, id string) (*Session, error) {
	return m.store.Get(id)
}

// SubmitAnswer records the answer to the current question. When the
// budget is already spent the session is finalized instead and
// SessionTerminated is returned.
func (m *Manager) SubmitAnswer(ctx context.Context, id, questionID, chosen string, timeSpentSeconds int) (*Outcome, error) {
	var expired, completed bool
	var answer Answer

	s, err := m.store.Apply(ctx, id, func(s *Session) error {
		if err := mutable(s); err != nil {
			return err
		}
		now := m.now()
		if s.expired(now) {
			m.complete(ctx, s, analysis.ReasonTimeExpired, now)
			expired = true
			return nil
		}
		if timeSpentSeconds < 0 {
			return newError(KindInvalidTimeSpent, "time spent must not be negative, got %d", timeSpentSeconds)
		}
		cur := s.CurrentQuestion()
		if cur == nil {
			return newError(KindQuestionMismatch, "session %s has no question awaiting an answer", s.ID)
		}
		if cur.ID != questionID {
			return newError(KindQuestionMismatch, "expected answer to question %s, got %s", cur.ID, questionID)
		}

		answer = Answer{
			QuestionID:       questionID,
			ChosenAnswer:     chosen,
			TimeSpentSeconds: timeSpentSeconds,
			IsCorrect:        scoring.ScoreAnswer(cur, chosen),
			AnsweredAt:       now,
		}
		s.Answers = append(s.Answers, answer)
		s.TimeRemainingSeconds = max(0, s.TimeRemainingSeconds-timeSpentSeconds)
		s.CurrentIndex++

		switch {
		case s.CurrentIndex == len(s.Questions):
			m.complete(ctx, s, analysis.ReasonAllAnswered, now)
			completed = true
		case s.TimeRemainingSeconds == 0:
			m.complete(ctx, s, analysis.ReasonTimeExpired, now)
			completed = true
		case s.Config.Adaptive:
			m.adapt(ctx, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		m.afterComplete(ctx, s)
		return nil, newError(KindSessionTerminated, "session %s ran out of time and was finalized", id)
	}

	data := map[string]any{
		"question_id": answer.QuestionID,
		"correct":     answer.IsCorrect,
		"index":       len(s.Answers) - 1,
	}
	if n := len(s.DifficultyLog); n > 0 && s.DifficultyLog[n-1].AfterQuestionIndex == len(s.Answers)-1 {
		data["next_difficulty"] = s.DifficultyLog[n-1].NextDifficulty
	}
	m.publish(ctx, newEvent(EventAnswered, s, answer.AnsweredAt, data))

	out := &Outcome{Session: s}
	if completed {
		m.afterComplete(ctx, s)
		out.Result = s.Result.Clone()
	}
	return out, nil
}

// adapt decides the tier of the next question and swaps in a stored
// question of that tier when the planned one differs.
func (m *Manager) adapt(ctx context.Context, s *Session) {
	policy := m.settings.Policy
	window := difficulty.Window(s.Correctness(), policy.WindowSize)
	next, reason := policy.Next(window, s.CurrentDifficulty)

	dec := Decision{
		AfterQuestionIndex: s.CurrentIndex - 1,
		NextDifficulty:     next,
		Reason:             reason,
	}
	s.CurrentDifficulty = next

	if s.Questions[s.CurrentIndex].Difficulty != next {
		alt, err := m.pool.Alternative(ctx, s.Config.Criteria(), next, question.IDs(s.Questions))
		switch {
		case err != nil:
			m.logger.Warn("alternative question lookup failed", "session_id", s.ID, "difficulty", next, "error", err)
		case alt != nil:
			s.Questions[s.CurrentIndex] = alt.Clone()
			dec.Swapped = true
		}
	}
	s.DifficultyLog = append(s.DifficultyLog, dec)
}

// Pause stops the clock of an ACTIVE session.
func (m *Manager) Pause(ctx context.Context, id string) error {
	var expired bool
	s, err := m.store.Apply(ctx, id, func(s *Session) error {
		if err := mutable(s); err != nil {
			if KindOf(err) == KindSessionNotActive {
				return newError(KindInvalidTransition, "session %s is already paused", s.ID)
			}
			return err
		}
		now := m.now()
		if s.expired(now) {
			m.complete(ctx, s, analysis.ReasonTimeExpired, now)
			expired = true
			return nil
		}
		s.Status = StatusPaused
		s.PausedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	if expired {
		m.afterComplete(ctx, s)
		return newError(KindSessionTerminated, "session %s ran out of time and was finalized", id)
	}
	m.publish(ctx, newEvent(EventPaused, s, *s.PausedAt, map[string]any{
		"time_remaining_seconds": s.TimeRemainingSeconds,
	}))
	return nil
}

// Resume restarts the clock of a PAUSED session.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	var now time.Time
	s, err := m.store.Apply(ctx, id, func(s *Session) error {
		switch s.Status {
		case StatusCompleted:
			return newError(KindSessionTerminated, "session %s is completed", s.ID)
		case StatusActive:
			return newError(KindInvalidTransition, "session %s is not paused", s.ID)
		}
		now = m.now()
		if s.PausedAt != nil {
			s.Deadline = s.Deadline.Add(now.Sub(*s.PausedAt))
		}
		s.PausedAt = nil
		s.Status = StatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, newEvent(EventResumed, s, now, nil))
	return s, nil
}

// Finalize completes the session if needed and returns its result. Calls
// after the first return the same cached result.
func (m *Manager) Finalize(ctx context.Context, id string) (*analysis.AssessmentResult, error) {
	s, err := m.store.Apply(ctx, id, func(s *Session) error {
		if s.Status == StatusCompleted {
			return errNoChange
		}
		m.complete(ctx, s, analysis.ReasonFinalized, m.now())
		return nil
	})
	switch {
	case errors.Is(err, errNoChange):
		return m.Result(ctx, id)
	case errors.Is(err, ErrSessionNotFound):
		return m.archived(ctx, id, err)
	case err != nil:
		return nil, err
	}
	m.afterComplete(ctx, s)
	return s.Result.Clone(), nil
}

// Result returns the result of a completed session, from memory or from
// the archive.
func (m *Manager) Result(ctx context.Context, id string) (*analysis.AssessmentResult, error) {
	s, err := m.store.Get(id)
	if err != nil {
		return m.archived(ctx, id, err)
	}
	if s.Status != StatusCompleted {
		return nil, newError(KindSessionNotCompleted, "session %s is %s", id, s.Status)
	}
	return s.Result, nil
}

// archived looks up a result for a session no longer in memory. notFound
// is returned when there is none.
func (m *Manager) archived(ctx context.Context, id string, notFound error) (*analysis.AssessmentResult, error) {
	if m.results == nil {
		return nil, notFound
	}
	res, err := m.results.LoadResult(ctx, id)
	if err != nil {
		return nil, wrapError(KindInternal, err, "load result for session %s", id)
	}
	if res == nil {
		return nil, notFound
	}
	return res, nil
}

// complete moves s to COMPLETED and computes its result. It runs inside
// Apply so it happens at most once per session. The analyzer, including an
// optional narrator call, holds the session lock for its duration; that
// wait is bounded by the narrator timeout.
func (m *Manager) complete(ctx context.Context, s *Session, reason analysis.CompletionReason, now time.Time) {
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.PausedAt = nil
	if reason == analysis.ReasonTimeExpired {
		s.TimeRemainingSeconds = 0
	}
	s.Result = m.analyzer.Analyze(ctx, s.AnalysisInput(reason, now))
}

// afterComplete archives the result and announces completion. Both are
// best effort.
func (m *Manager) afterComplete(ctx context.Context, s *Session) {
	res := s.Result
	m.logger.Info("session completed", "session_id", s.ID, "reason", res.Reason,
		"score", res.Score, "answered", res.AnsweredQuestions, "total", res.TotalQuestions)

	if m.results != nil {
		if err := m.results.SaveResult(context.WithoutCancel(ctx), res); err != nil {
			m.logger.Error("archiving result failed", "session_id", s.ID, "error", err)
		}
	}
	m.publish(ctx, newEvent(EventCompleted, s, *s.CompletedAt, map[string]any{
		"reason":     res.Reason,
		"score":      res.Score,
		"confidence": res.Confidence,
	}))
}

func (m *Manager) publish(ctx context.Context, ev Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		m.logger.Warn("publishing session event failed", "type", ev.Type, "session_id", ev.SessionID, "error", err)
	}
}

// mutable rejects operations on sessions that are not ACTIVE.
func mutable(s *Session) error {
	switch s.Status {
	case StatusCompleted:
		return newError(KindSessionTerminated, "session %s is completed", s.ID)
	case StatusPaused:
		return newError(KindSessionNotActive, "session %s is paused", s.ID)
	}
	return nil
}
