package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/difficulty"
	"github.com/abhisek/adaptiq/internal/generator"
	"github.com/abhisek/adaptiq/internal/pool"
	"github.com/abhisek/adaptiq/internal/question"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type memResults struct {
	mu      sync.Mutex
	results map[string]*analysis.AssessmentResult
}

func (m *memResults) SaveResult(_ context.Context, res *analysis.AssessmentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string]*analysis.AssessmentResult{}
	}
	m.results[res.SessionID] = res.Clone()
	return nil
}

func (m *memResults) LoadResult(_ context.Context, id string) (*analysis.AssessmentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[id].Clone(), nil
}

type staticLoader []*Session

func (l staticLoader) LoadOpenSessions(context.Context) ([]*Session, error) { return l, nil }

// limitedGenerator produces at most limit questions in total.
type limitedGenerator struct {
	limit, produced int
}

func (g *limitedGenerator) Generate(_ context.Context, req generator.Request) ([]question.Question, error) {
	n := min(req.Count, g.limit-g.produced)
	if n <= 0 {
		return nil, errors.New("no more ideas")
	}
	out := make([]question.Question, n)
	for i := range out {
		out[i] = question.Question{
			ID:         fmt.Sprintf("gen-%d", g.produced+i),
			Prompt:     fmt.Sprintf("generated %d", g.produced+i),
			Numeric:    &question.NumericKey{Value: 1},
			Difficulty: req.Difficulty,
			SubjectID:  req.Criteria.SubjectID,
			Provenance: question.ProvenanceGenerated,
		}
	}
	g.produced += n
	return out, nil
}

func bank(perTier int) []question.Question {
	var out []question.Question
	for _, d := range question.Difficulties {
		for i := 0; i < perTier; i++ {
			out = append(out, question.Question{
				ID:               fmt.Sprintf("%s-%d", d.Label(), i),
				Prompt:           fmt.Sprintf("%s prompt %d", d.Label(), i),
				Numeric:          &question.NumericKey{Value: float64(10 + i)},
				Difficulty:       d,
				SubjectID:        "math",
				TopicID:          "arithmetic",
				EstimatedSeconds: 30,
				Provenance:       question.ProvenanceCurated,
			})
		}
	}
	return out
}

type fixture struct {
	m       *Manager
	store   *Store
	repo    *pool.MemoryRepository
	clock   *fakeClock
	sink    *recordingSink
	results *memResults
}

func newFixture(t *testing.T, repo *pool.MemoryRepository, settings Settings, poolOpts ...pool.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   NewStore(nil),
		repo:    repo,
		clock:   &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		sink:    &recordingSink{},
		results: &memResults{},
	}
	src := pool.New(repo, rand.New(rand.NewSource(3)), pool.Config{}, poolOpts...)
	f.m = NewManager(f.store, src, analysis.New(), settings,
		WithClock(f.clock.Now),
		WithEvents(f.sink),
		WithResults(f.results))
	return f
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, pool.NewMemoryRepository(bank(3)...), Settings{})
}

func config(count int, adaptive bool) Config {
	return Config{
		LearnerID:          "learner-1",
		SubjectID:          "math",
		QuestionCount:      count,
		TimeLimitSeconds:   600,
		StartingDifficulty: question.Easy,
		Adaptive:           adaptive,
	}
}

func key(q *question.Question) string {
	return strconv.FormatFloat(q.Numeric.Value, 'f', -1, 64)
}

// answerCurrent submits the correct or a wrong answer to the current question.
func answerCurrent(t *testing.T, m *Manager, s *Session, correct bool, secs int) *Outcome {
	t.Helper()
	q := s.CurrentQuestion()
	require.NotNil(t, q)
	chosen := "wrong"
	if correct {
		chosen = key(q)
	}
	out, err := m.SubmitAnswer(context.Background(), s.ID, q.ID, chosen, secs)
	require.NoError(t, err)
	return out
}

func assertInvariants(t *testing.T, s *Session, total int) {
	t.Helper()
	assert.Equal(t, len(s.Answers), s.CurrentIndex)
	assert.Len(t, s.Questions, total)
	assert.GreaterOrEqual(t, s.TimeRemainingSeconds, 0)
}

func TestScenarioA_EscalatesOnCorrectAnswers(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(3, true))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out := answerCurrent(t, f.m, s, true, 10)
		s = out.Session
		assertInvariants(t, s, 3)
		if i < 2 {
			assert.Nil(t, out.Result)
		} else {
			require.NotNil(t, out.Result)
			assert.Equal(t, 100.0, out.Result.Score)
		}
	}

	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, []Decision{
		{AfterQuestionIndex: 0, NextDifficulty: question.Medium, Reason: difficulty.ReasonEscalate, Swapped: true},
		{AfterQuestionIndex: 1, NextDifficulty: question.Hard, Reason: difficulty.ReasonEscalate, Swapped: true},
	}, s.DifficultyLog)
	assert.Equal(t, question.Easy, s.Questions[0].Difficulty)
	assert.Equal(t, question.Medium, s.Questions[1].Difficulty)
	assert.Equal(t, question.Hard, s.Questions[2].Difficulty)
	assert.Equal(t, 570, s.TimeRemainingSeconds)
}

func TestScenarioB_SingleIncorrectAnswerCompletes(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(1, true))
	require.NoError(t, err)

	out := answerCurrent(t, f.m, s, false, 12)
	require.NotNil(t, out.Result)
	assert.Equal(t, StatusCompleted, out.Session.Status)
	assert.Equal(t, 0, out.Result.CorrectAnswers)
	assert.Equal(t, 0.0, out.Result.Score)
	assert.Equal(t, analysis.ReasonAllAnswered, out.Result.Reason)
	assert.Empty(t, out.Session.DifficultyLog)

	assert.Equal(t, []EventType{EventCreated, EventAnswered, EventCompleted}, f.sink.types())
	archived, err := f.results.LoadResult(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Result, archived)
}

func TestScenarioC_PauseBlocksAnswers(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(2, false))
	require.NoError(t, err)
	q := s.CurrentQuestion()

	require.NoError(t, f.m.Pause(context.Background(), s.ID))
	_, err = f.m.SubmitAnswer(context.Background(), s.ID, q.ID, key(q), 5)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	_, err = f.m.Resume(context.Background(), s.ID)
	require.NoError(t, err)
	out, err := f.m.SubmitAnswer(context.Background(), s.ID, q.ID, key(q), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Session.CurrentIndex)
	assert.True(t, out.Session.Answers[0].IsCorrect)
}

func TestScenarioD_PoolExhaustedPersistsNothing(t *testing.T) {
	repo := pool.NewMemoryRepository(bank(30)...)
	f := newFixture(t, repo, Settings{}, pool.WithGenerator(&limitedGenerator{limit: 10}))

	cfg := config(50, true)
	_, err := f.m.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.ErrorIs(t, err, pool.ErrPoolExhausted)
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.sink.types())
}

func TestScenarioE_ConcurrentSubmitsOnOneSession(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(3, false))
	require.NoError(t, err)
	q := s.CurrentQuestion()

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.m.SubmitAnswer(context.Background(), s.ID, q.ID, key(q), 5)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrQuestionMismatch)
	}
	assert.Equal(t, 1, succeeded)

	got, err := f.m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Answers, 1)
	assertInvariants(t, got, 3)
}

func TestConcurrentDistinctSessions(t *testing.T) {
	f := newFixture(t, pool.NewMemoryRepository(bank(10)...), Settings{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.m.Create(context.Background(), config(5, true))
			if !assert.NoError(t, err) {
				return
			}
			for j := 0; j < 5; j++ {
				q := s.CurrentQuestion()
				chosen := "wrong"
				if (i+j)%2 == 0 {
					chosen = key(q)
				}
				out, err := f.m.SubmitAnswer(context.Background(), s.ID, q.ID, chosen, 3)
				if !assert.NoError(t, err) {
					return
				}
				s = out.Session
				assert.Equal(t, len(s.Answers), s.CurrentIndex)
			}
			assert.Equal(t, StatusCompleted, s.Status)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, f.store.Len())
}

func TestQuestionMismatchLeavesSessionUntouched(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(3, true))
	require.NoError(t, err)
	answerCurrent(t, f.m, s, true, 5)

	before, err := f.m.Get(context.Background(), s.ID)
	require.NoError(t, err)

	// Replaying the first question is out of order.
	_, err = f.m.SubmitAnswer(context.Background(), s.ID, s.Questions[0].ID, key(&s.Questions[0]), 5)
	assert.ErrorIs(t, err, ErrQuestionMismatch)
	assert.Equal(t, KindQuestionMismatch, KindOf(err))

	_, err = f.m.SubmitAnswer(context.Background(), s.ID, before.CurrentQuestion().ID, "1", -1)
	assert.ErrorIs(t, err, ErrInvalidTimeSpent)

	after, err := f.m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreateValidation(t *testing.T) {
	f := defaultFixture(t)
	cases := map[string]func(*Config){
		"no learner":         func(c *Config) { c.LearnerID = " " },
		"no subject":         func(c *Config) { c.SubjectID = "" },
		"zero count":         func(c *Config) { c.QuestionCount = 0 },
		"too many":           func(c *Config) { c.QuestionCount = MaxQuestionCount + 1 },
		"negative time":      func(c *Config) { c.TimeLimitSeconds = -1 },
		"unknown difficulty": func(c *Config) { c.StartingDifficulty = "EXTREME" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config(2, true)
			mutate(&cfg)
			_, err := f.m.Create(context.Background(), cfg)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Zero(t, f.store.Len())
}

func TestCreateDefaults(t *testing.T) {
	f := defaultFixture(t)
	cfg := config(2, false)
	cfg.TimeLimitSeconds = 0
	cfg.StartingDifficulty = "medium"

	s, err := f.m.Create(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, int(DefaultTimeLimit/time.Second), s.TimeRemainingSeconds)
	assert.Equal(t, question.Medium, s.CurrentDifficulty)
	assert.Equal(t, f.clock.Now().Add(DefaultTimeLimit), s.Deadline)
	for _, q := range s.Questions {
		assert.Equal(t, question.Medium, q.Difficulty)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(3, true))
	require.NoError(t, err)
	answerCurrent(t, f.m, s, true, 20)

	first, err := f.m.Finalize(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.ReasonFinalized, first.Reason)
	assert.Equal(t, 1, first.AnsweredQuestions)
	assert.Equal(t, 3, first.TotalQuestions)

	f.clock.Advance(time.Hour)
	second, err := f.m.Finalize(context.Background(), s.ID)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	res, err := f.m.Result(context.Background(), s.ID)
	require.NoError(t, err)
	c, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(c))

	got, err := f.m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	version := got.Version

	_, err = f.m.SubmitAnswer(context.Background(), s.ID, got.CurrentQuestion().ID, "1", 1)
	assert.ErrorIs(t, err, ErrSessionTerminated)
	assert.ErrorIs(t, f.m.Pause(context.Background(), s.ID), ErrSessionTerminated)
	_, err = f.m.Resume(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrSessionTerminated)

	got, err = f.m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, version, got.Version)

	completed := 0
	for _, ty := range f.sink.types() {
		if ty == EventCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestInvalidTransitions(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(2, false))
	require.NoError(t, err)

	_, err = f.m.Resume(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, f.m.Pause(context.Background(), s.ID))
	assert.ErrorIs(t, f.m.Pause(context.Background(), s.ID), ErrInvalidTransition)

	_, err = f.m.Result(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrSessionNotCompleted)

	_, err = f.m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.m.SubmitAnswer(context.Background(), "nope", "q", "1", 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.m.Result(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReportedTimeExhaustsBudget(t *testing.T) {
	f := defaultFixture(t)
	cfg := config(3, false)
	cfg.TimeLimitSeconds = 60
	s, err := f.m.Create(context.Background(), cfg)
	require.NoError(t, err)

	out := answerCurrent(t, f.m, s, true, 100)
	assert.Equal(t, 0, out.Session.TimeRemainingSeconds)
	assert.Equal(t, StatusCompleted, out.Session.Status)
	require.NotNil(t, out.Result)
	assert.Equal(t, analysis.ReasonTimeExpired, out.Result.Reason)
	assert.Equal(t, 1, out.Result.AnsweredQuestions)
}

func TestSubmitAfterDeadlineFinalizes(t *testing.T) {
	f := defaultFixture(t)
	cfg := config(3, false)
	cfg.TimeLimitSeconds = 60
	s, err := f.m.Create(context.Background(), cfg)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	q := s.CurrentQuestion()
	_, err = f.m.SubmitAnswer(context.Background(), s.ID, q.ID, key(q), 5)
	assert.ErrorIs(t, err, ErrSessionTerminated)

	res, err := f.m.Result(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.ReasonTimeExpired, res.Reason)
	assert.Equal(t, 0, res.AnsweredQuestions)

	got, err := f.m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Answers)
	assert.Equal(t, 0, got.TimeRemainingSeconds)
}

func TestClockFrozenWhilePaused(t *testing.T) {
	f := defaultFixture(t)
	cfg := config(3, false)
	cfg.TimeLimitSeconds = 60
	s, err := f.m.Create(context.Background(), cfg)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.m.Pause(context.Background(), s.ID))
	f.clock.Advance(10 * time.Minute)
	assert.Zero(t, f.m.Sweep(context.Background()))

	resumed, err := f.m.Resume(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Deadline.Add(10*time.Minute), resumed.Deadline)

	f.clock.Advance(49 * time.Second)
	assert.Zero(t, f.m.Sweep(context.Background()))

	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, f.m.Sweep(context.Background()))

	res, err := f.m.Result(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.ReasonTimeExpired, res.Reason)
}

func TestSweepEvictsArchivedSessions(t *testing.T) {
	f := newFixture(t, pool.NewMemoryRepository(bank(3)...), Settings{Retention: time.Minute})
	s, err := f.m.Create(context.Background(), config(1, false))
	require.NoError(t, err)
	out := answerCurrent(t, f.m, s, true, 5)

	f.clock.Advance(2 * time.Minute)
	assert.Zero(t, f.m.Sweep(context.Background()))

	_, err = f.m.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	res, err := f.m.Result(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Result, res)

	res, err = f.m.Finalize(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Result, res)
}

func TestNonAdaptiveKeepsPlan(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(3, false))
	require.NoError(t, err)
	planned := question.IDs(s.Questions)

	for i := 0; i < 3; i++ {
		s = answerCurrent(t, f.m, s, true, 5).Session
	}
	assert.Empty(t, s.DifficultyLog)
	assert.Equal(t, planned, question.IDs(s.Questions))
}

func TestAdaptiveWithoutAlternativeLogsDecision(t *testing.T) {
	easyOnly := pool.NewMemoryRepository()
	require.NoError(t, easyOnly.Save(context.Background(), bank(3)[:3]))
	f := newFixture(t, easyOnly, Settings{})

	s, err := f.m.Create(context.Background(), config(3, true))
	require.NoError(t, err)
	planned := question.IDs(s.Questions)

	s = answerCurrent(t, f.m, s, true, 5).Session
	require.Len(t, s.DifficultyLog, 1)
	assert.Equal(t, question.Medium, s.DifficultyLog[0].NextDifficulty)
	assert.False(t, s.DifficultyLog[0].Swapped)
	assert.Equal(t, planned, question.IDs(s.Questions))
	assert.Equal(t, question.Medium, s.CurrentDifficulty)
}

func TestRestore(t *testing.T) {
	f := defaultFixture(t)
	saved := &Session{
		ID:                   "restored-1",
		LearnerID:            "learner-1",
		Questions:            bank(1)[:1],
		Answers:              []Answer{},
		DifficultyLog:        []Decision{},
		TimeRemainingSeconds: 60,
		Status:               StatusPaused,
		Version:              4,
	}

	n, err := f.m.Restore(context.Background(), staticLoader{saved})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.m.Get(context.Background(), "restored-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)
	assert.Equal(t, 4, got.Version)

	n, err = f.m.Restore(context.Background(), staticLoader{saved})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublicHidesUpcomingKeys(t *testing.T) {
	f := defaultFixture(t)
	s, err := f.m.Create(context.Background(), config(2, false))
	require.NoError(t, err)
	s = answerCurrent(t, f.m, s, true, 5).Session

	pub := s.Public()
	assert.NotNil(t, pub.Questions[0].Numeric)
	assert.Nil(t, pub.Questions[1].Numeric)
	assert.NotNil(t, s.Questions[1].Numeric)
}
