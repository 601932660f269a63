// Package analysis turns a completed session into a scored result with
// per-group statistics and recommendations.
package analysis

import (
	"time"

	"github.com/abhisek/adaptiq/internal/question"
)

// CompletionReason records why a session ended.
type CompletionReason string

const (
	ReasonAllAnswered CompletionReason = "all_answered"
	ReasonTimeExpired CompletionReason = "time_expired"
	ReasonFinalized   CompletionReason = "finalized"
)

// NarrativeSource says who phrased the recommendations.
const (
	NarrativeRules = "rules"
	NarrativeLLM   = "llm"
)

// Input is the slice of a completed session the analyzer needs.
type Input struct {
	SessionID   string
	LearnerID   string
	Questions   []question.Question
	Attempts    []Attempt
	Reason      CompletionReason
	CompletedAt time.Time
}

// Attempt is one answered question.
type Attempt struct {
	QuestionID       string
	Correct          bool
	TimeSpentSeconds int
}

// GroupStats is accuracy over one grouping of answers.
type GroupStats struct {
	Attempted int     `json:"attempted"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// AssessmentResult is the immutable outcome of a completed session.
type AssessmentResult struct {
	SessionID         string  `json:"session_id"`
	LearnerID         string  `json:"learner_id"`
	TotalQuestions    int     `json:"total_questions"`
	AnsweredQuestions int     `json:"answered_questions"`
	CorrectAnswers    int     `json:"correct_answers"`
	Score             float64 `json:"score"`

	ByDifficulty map[question.Difficulty]GroupStats `json:"by_difficulty"`
	ByTopic      map[string]GroupStats              `json:"by_topic"`

	AverageTimeSeconds float64 `json:"average_time_seconds"`

	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`

	// Confidence in [0, 1] grows with the number of answers and shrinks
	// with the share of placeholder content.
	Confidence float64 `json:"confidence"`

	// DegradedContent counts FALLBACK questions in the session.
	DegradedContent int    `json:"degraded_content"`
	NarrativeSource string `json:"narrative_source"`

	CompletedAt time.Time        `json:"completed_at"`
	Reason      CompletionReason `json:"reason"`
}

// Clone returns a deep copy.
func (r *AssessmentResult) Clone() *AssessmentResult {
	if r == nil {
		return nil
	}
	out := *r
	out.ByDifficulty = make(map[question.Difficulty]GroupStats, len(r.ByDifficulty))
	for k, v := range r.ByDifficulty {
		out.ByDifficulty[k] = v
	}
	out.ByTopic = make(map[string]GroupStats, len(r.ByTopic))
	for k, v := range r.ByTopic {
		out.ByTopic[k] = v
	}
	out.Strengths = append([]string{}, r.Strengths...)
	out.Weaknesses = append([]string{}, r.Weaknesses...)
	out.Recommendations = append([]string{}, r.Recommendations...)
	return &out
}
