// Package session runs timed, difficulty-adapting assessment sessions.
// All mutation goes through Store.Apply, which serialises operations on
// one session while leaving different sessions independent.
package session

import (
	"time"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/difficulty"
	"github.com/abhisek/adaptiq/internal/question"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
)

// MaxQuestionCount caps Config.QuestionCount.
const MaxQuestionCount = 100

// Config is what a caller asks for when creating a session.
type Config struct {
	LearnerID  string `json:"learner_id"`
	SubjectID  string `json:"subject_id"`
	TopicID    string `json:"topic_id,omitempty"`
	SubtopicID string `json:"subtopic_id,omitempty"`

	QuestionCount int `json:"question_count"`

	// TimeLimitSeconds of zero means the manager default.
	TimeLimitSeconds int `json:"time_limit_seconds,omitempty"`

	StartingDifficulty question.Difficulty `json:"starting_difficulty"`
	Adaptive           bool                `json:"adaptive"`
}

// Criteria returns the pool criteria for the session.
func (c Config) Criteria() question.Criteria {
	return question.Criteria{SubjectID: c.SubjectID, TopicID: c.TopicID, SubtopicID: c.SubtopicID}
}

// Answer is one submitted answer.
type Answer struct {
	QuestionID       string    `json:"question_id"`
	ChosenAnswer     string    `json:"chosen_answer"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	IsCorrect        bool      `json:"is_correct"`
	AnsweredAt       time.Time `json:"answered_at"`
}

// Decision is one entry of the adaptive audit trail.
type Decision struct {
	AfterQuestionIndex int                 `json:"after_question_index"`
	NextDifficulty     question.Difficulty `json:"next_difficulty"`
	Reason             difficulty.Reason   `json:"reason"`

	// Swapped is set when the next question was replaced by one of the
	// decided tier.
	Swapped bool `json:"swapped"`
}

// Session is the full mutable state of one assessment. Values handed out
// by the Store are copies.
type Session struct {
	ID        string `json:"id"`
	LearnerID string `json:"learner_id"`
	Config    Config `json:"config"`

	Questions     []question.Question `json:"questions"`
	CurrentIndex  int                 `json:"current_index"`
	Answers       []Answer            `json:"answers"`
	DifficultyLog []Decision          `json:"difficulty_log"`

	TimeRemainingSeconds int                 `json:"time_remaining_seconds"`
	CurrentDifficulty    question.Difficulty `json:"current_difficulty"`
	Status               Status              `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Deadline is the wall-clock instant the budget runs out while ACTIVE.
	// Pausing stops the clock: Resume pushes the deadline out by the time
	// spent paused.
	Deadline time.Time  `json:"deadline"`
	PausedAt *time.Time `json:"paused_at,omitempty"`

	// Version counts applied mutations.
	Version int `json:"version"`

	Result *analysis.AssessmentResult `json:"result,omitempty"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	out := *s
	out.Questions = make([]question.Question, len(s.Questions))
	for i := range s.Questions {
		out.Questions[i] = s.Questions[i].Clone()
	}
	out.Answers = append([]Answer{}, s.Answers...)
	out.DifficultyLog = append([]Decision{}, s.DifficultyLog...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.PausedAt != nil {
		t := *s.PausedAt
		out.PausedAt = &t
	}
	out.Result = s.Result.Clone()
	return &out
}

// Public returns a copy safe to show the learner: answer keys are removed
// from every question not yet answered.
func (s *Session) Public() *Session {
	out := s.Clone()
	for i := range out.Questions {
		if i >= out.CurrentIndex {
			out.Questions[i] = out.Questions[i].Public()
		}
	}
	return out
}

// CurrentQuestion returns the question awaiting an answer, or nil when
// all are answered.
func (s *Session) CurrentQuestion() *question.Question {
	if s.CurrentIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentIndex]
}

// Correctness returns the correctness flags of all answers in order.
func (s *Session) Correctness() []bool {
	out := make([]bool, len(s.Answers))
	for i, a := range s.Answers {
		out[i] = a.IsCorrect
	}
	return out
}

// expired reports whether the time budget is spent at now.
func (s *Session) expired(now time.Time) bool {
	if s.TimeRemainingSeconds <= 0 {
		return true
	}
	return s.Status == StatusActive && !s.Deadline.IsZero() && !now.Before(s.Deadline)
}

// AnalysisInput converts a completed session for the analyzer.
func (s *Session) AnalysisInput(reason analysis.CompletionReason, completedAt time.Time) analysis.Input {
	in := analysis.Input{
		SessionID:   s.ID,
		LearnerID:   s.LearnerID,
		Questions:   make([]question.Question, len(s.Questions)),
		Attempts:    make([]analysis.Attempt, len(s.Answers)),
		Reason:      reason,
		CompletedAt: completedAt,
	}
	for i := range s.Questions {
		in.Questions[i] = s.Questions[i].Clone()
	}
	for i, a := range s.Answers {
		in.Attempts[i] = analysis.Attempt{
			QuestionID:       a.QuestionID,
			Correct:          a.IsCorrect,
			TimeSpentSeconds: a.TimeSpentSeconds,
		}
	}
	return in
}
