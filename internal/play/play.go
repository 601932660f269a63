// Package play runs one assessment session in the terminal against an
// in-process engine.
package play

import (
	"context"
	"strconv"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/session"
)

// Engine is the part of session.Manager the terminal client uses.
type Engine interface {
	Create(ctx context.Context, cfg session.Config) (*session.Session, error)
	SubmitAnswer(ctx context.Context, id, questionID, chosen string, timeSpentSeconds int) (*session.Outcome, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) (*session.Session, error)
	Finalize(ctx context.Context, id string) (*analysis.AssessmentResult, error)
	Result(ctx context.Context, id string) (*analysis.AssessmentResult, error)
	Sweep(ctx context.Context) int
}

type phase int

const (
	phaseLoading phase = iota
	phaseQuestion
	phaseFeedback
	phasePaused
	phaseConfirmQuit
	phaseDone
	phaseFailed
)

// Messages produced by engine commands.
type (
	createdMsg struct {
		s   *session.Session
		err error
	}
	answeredMsg struct {
		out *session.Outcome
		err error
	}
	pausedMsg  struct{ err error }
	resumedMsg struct {
		s   *session.Session
		err error
	}
	finishedMsg struct {
		res *analysis.AssessmentResult
		err error
	}
	tickMsg time.Time
)

// Model is the bubbletea model of one assessment.
type Model struct {
	engine Engine
	cfg    session.Config
	now    func() time.Time

	sess   *session.Session
	result *analysis.AssessmentResult
	phase  phase
	err    string

	input    textinput.Model
	selected int
	started  time.Time

	// feedback for the last answer
	lastCorrect  bool
	lastQuestion *question.Question

	width, height int
}

// New creates a model that will start a session for cfg.
func New(engine Engine, cfg session.Config) Model {
	return Model{
		engine: engine,
		cfg:    cfg,
		now:    time.Now,
		input:  newInput(),
	}
}

func newInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "Type your answer..."
	ti.CharLimit = 64
	ti.Focus()
	return ti
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.create(), tick())
}

// Result returns the final result once the session has completed.
func (m Model) Result() *analysis.AssessmentResult {
	return m.result
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case createdMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.sess = msg.s
		return m.nextQuestion()

	case answeredMsg:
		return m.handleAnswered(msg)

	case pausedMsg:
		if msg.err != nil {
			return m.maybeTerminated(msg.err)
		}
		m.phase = phasePaused
		return m, nil

	case resumedMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.sess = msg.s
		m.phase = phaseQuestion
		m.started = m.now()
		cmd := m.focusInput()
		return m, cmd

	case finishedMsg:
		if session.KindOf(msg.err) == session.KindSessionNotCompleted {
			// The engine clock has not caught up yet.
			return m, tick()
		}
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.result = msg.res
		m.phase = phaseDone
		return m, nil

	case tickMsg:
		if m.phase == phaseQuestion && m.remaining() <= 0 {
			return m, m.expire()
		}
		if m.phase == phaseDone || m.phase == phaseFailed {
			return m, nil
		}
		return m, tick()

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}

	if m.phase == phaseQuestion && !m.isChoice() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.phase {
	case phaseDone, phaseFailed:
		switch key {
		case "q", "enter", "esc":
			return m, tea.Quit
		}
		return m, nil

	case phaseFeedback:
		if m.sess.Status == session.StatusCompleted {
			return m, m.fetchResult()
		}
		return m.nextQuestion()

	case phasePaused:
		return m, m.resume()

	case phaseConfirmQuit:
		switch key {
		case "y", "Y":
			return m, m.finalize()
		case "n", "N", "esc":
			m.phase = phaseQuestion
		}
		return m, nil

	case phaseQuestion:
		switch key {
		case "esc":
			m.phase = phaseConfirmQuit
			return m, nil
		case "ctrl+p":
			return m, m.pause()
		case "enter":
			return m.submit()
		}
		if m.isChoice() {
			return m.handleChoiceKey(key)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleChoiceKey(key string) (tea.Model, tea.Cmd) {
	opts := m.sess.CurrentQuestion().Options
	switch key {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(opts)-1 {
			m.selected++
		}
	default:
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(opts) {
			m.selected = n - 1
			return m.submit()
		}
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := m.sess.CurrentQuestion()
	if q == nil {
		return m, nil
	}
	var chosen string
	if q.IsChoice() {
		chosen = q.Options[m.selected].ID
	} else {
		chosen = m.input.Value()
		if chosen == "" {
			return m, nil
		}
	}
	spent := max(0, int(m.now().Sub(m.started)/time.Second))
	m.lastQuestion = q
	return m, m.answer(q.ID, chosen, spent)
}

func (m Model) handleAnswered(msg answeredMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m.maybeTerminated(msg.err)
	}
	m.sess = msg.out.Session
	m.result = msg.out.Result
	if n := len(m.sess.Answers); n > 0 {
		m.lastCorrect = m.sess.Answers[n-1].IsCorrect
	}
	m.phase = phaseFeedback
	return m, nil
}

// maybeTerminated turns a time-out reported by the engine into the result
// screen. Other errors are fatal.
func (m Model) maybeTerminated(err error) (tea.Model, tea.Cmd) {
	if session.KindOf(err) == session.KindSessionTerminated {
		return m, m.fetchResult()
	}
	return m.fail(err)
}

func (m Model) nextQuestion() (tea.Model, tea.Cmd) {
	if m.sess.Status == session.StatusCompleted || m.sess.CurrentQuestion() == nil {
		if m.result != nil {
			m.phase = phaseDone
			return m, nil
		}
		return m, m.fetchResult()
	}
	m.phase = phaseQuestion
	m.selected = 0
	m.input = newInput()
	m.started = m.now()
	cmd := m.focusInput()
	return m, cmd
}

// focusInput starts the cursor blink for free-entry questions.
func (m *Model) focusInput() tea.Cmd {
	if m.isChoice() {
		return nil
	}
	return m.input.Focus()
}

func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	m.err = err.Error()
	m.phase = phaseFailed
	return m, nil
}

func (m Model) isChoice() bool {
	if m.sess == nil {
		return false
	}
	q := m.sess.CurrentQuestion()
	return q != nil && q.IsChoice()
}

// remaining is the time left on the session clock.
func (m Model) remaining() time.Duration {
	if m.sess == nil {
		return 0
	}
	byDeadline := m.sess.Deadline.Sub(m.now())
	byBudget := time.Duration(m.sess.TimeRemainingSeconds) * time.Second
	return max(0, min(byDeadline, byBudget))
}

func (m Model) create() tea.Cmd {
	engine, cfg := m.engine, m.cfg
	return func() tea.Msg {
		s, err := engine.Create(context.Background(), cfg)
		return createdMsg{s: s, err: err}
	}
}

func (m Model) answer(questionID, chosen string, spent int) tea.Cmd {
	engine, id := m.engine, m.sess.ID
	return func() tea.Msg {
		out, err := engine.SubmitAnswer(context.Background(), id, questionID, chosen, spent)
		return answeredMsg{out: out, err: err}
	}
}

func (m Model) pause() tea.Cmd {
	engine, id := m.engine, m.sess.ID
	return func() tea.Msg {
		return pausedMsg{err: engine.Pause(context.Background(), id)}
	}
}

func (m Model) resume() tea.Cmd {
	engine, id := m.engine, m.sess.ID
	return func() tea.Msg {
		s, err := engine.Resume(context.Background(), id)
		return resumedMsg{s: s, err: err}
	}
}

func (m Model) finalize() tea.Cmd {
	engine, id := m.engine, m.sess.ID
	return func() tea.Msg {
		res, err := engine.Finalize(context.Background(), id)
		return finishedMsg{res: res, err: err}
	}
}

func (m Model) fetchResult() tea.Cmd {
	if m.result != nil {
		res := m.result
		return func() tea.Msg { return finishedMsg{res: res} }
	}
	engine, id := m.engine, m.sess.ID
	return func() tea.Msg {
		res, err := engine.Result(context.Background(), id)
		return finishedMsg{res: res, err: err}
	}
}

// expire lets the engine close the timed-out session.
func (m Model) expire() tea.Cmd {
	engine, id := m.engine, m.sess.ID
	return func() tea.Msg {
		ctx := context.Background()
		engine.Sweep(ctx)
		res, err := engine.Result(ctx, id)
		return finishedMsg{res: res, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run plays one session to completion and returns its result. The result
// is nil when the learner quits before the session completes.
func Run(engine Engine, cfg session.Config) (*analysis.AssessmentResult, error) {
	final, err := tea.NewProgram(New(engine, cfg)).Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Result(), nil
}
