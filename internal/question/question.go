package question

import (
	"fmt"
	"strings"
)

// Question is a single assessment item as stored in the question bank.
// The engine treats it as read-only; sessions hold their own copies.
type Question struct {
	// ID uniquely identifies the question within the bank.
	ID string `json:"id"`

	// Prompt is the text shown to the learner.
	Prompt string `json:"prompt"`

	// Options is populated for choice questions. At least one option is
	// marked Correct. Empty when Numeric is set.
	Options []Option `json:"options,omitempty"`

	// Numeric is the answer key for free-entry numeric questions.
	Numeric *NumericKey `json:"numeric,omitempty"`

	Difficulty Difficulty `json:"difficulty"`

	SubjectID  string `json:"subject_id"`
	TopicID    string `json:"topic_id,omitempty"`
	SubtopicID string `json:"subtopic_id,omitempty"`

	// EstimatedSeconds is the expected time to answer. Zero means unknown.
	EstimatedSeconds int `json:"estimated_seconds,omitempty"`

	Provenance Provenance `json:"provenance"`

	// Explanation is an optional worked solution. Never sent to learners
	// before the session completes.
	Explanation string `json:"explanation,omitempty"`
}

// Option is one choice of a multiple-choice question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

// NumericKey is the answer key of a numeric question. An answer is correct
// when it lies within Tolerance of Value.
type NumericKey struct {
	Value     float64 `json:"value"`
	Tolerance float64 `json:"tolerance,omitempty"`
}

// Provenance records where a question came from.
type Provenance string

const (
	ProvenanceCurated   Provenance = "CURATED"
	ProvenanceGenerated Provenance = "GENERATED"
	// ProvenanceFallback marks templated placeholder content served when
	// both the bank and the generator came up short.
	ProvenanceFallback Provenance = "FALLBACK"
)

// Criteria selects questions from the bank.
type Criteria struct {
	SubjectID  string `json:"subject_id"`
	TopicID    string `json:"topic_id,omitempty"`
	SubtopicID string `json:"subtopic_id,omitempty"`
}

// Matches reports whether q satisfies the criteria. Empty topic and
// subtopic filters match anything.
func (c Criteria) Matches(q *Question) bool {
	if c.SubjectID != "" && q.SubjectID != c.SubjectID {
		return false
	}
	if c.TopicID != "" && q.TopicID != c.TopicID {
		return false
	}
	if c.SubtopicID != "" && q.SubtopicID != c.SubtopicID {
		return false
	}
	return true
}

// String renders the criteria as subject/topic/subtopic for logs and prompts.
func (c Criteria) String() string {
	parts := []string{c.SubjectID}
	if c.TopicID != "" {
		parts = append(parts, c.TopicID)
	}
	if c.SubtopicID != "" {
		parts = append(parts, c.SubtopicID)
	}
	return strings.Join(parts, "/")
}

// IsChoice reports whether the question is answered by picking an option.
func (q *Question) IsChoice() bool {
	return len(q.Options) > 0
}

// Topic returns the most specific grouping key for analysis: the topic,
// falling back to the subject.
func (q *Question) Topic() string {
	if q.TopicID != "" {
		return q.TopicID
	}
	return q.SubjectID
}

// Validate checks that the question carries exactly one kind of answer key
// and a known difficulty.
func (q *Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question id is empty")
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("question %s: prompt is empty", q.ID)
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Difficulty)
	}
	switch {
	case q.IsChoice() && q.Numeric != nil:
		return fmt.Errorf("question %s: has both options and a numeric key", q.ID)
	case !q.IsChoice() && q.Numeric == nil:
		return fmt.Errorf("question %s: has neither options nor a numeric key", q.ID)
	}
	if q.IsChoice() {
		correct := 0
		for _, o := range q.Options {
			if o.Correct {
				correct++
			}
		}
		if correct == 0 {
			return fmt.Errorf("question %s: no option is marked correct", q.ID)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hold a snapshot that later
// bank edits cannot reach.
func (q Question) Clone() Question {
	out := q
	if q.Options != nil {
		out.Options = make([]Option, len(q.Options))
		copy(out.Options, q.Options)
	}
	if q.Numeric != nil {
		k := *q.Numeric
		out.Numeric = &k
	}
	return out
}

// Public returns a copy stripped of answer keys, suitable for learners.
func (q Question) Public() Question {
	out := q.Clone()
	for i := range out.Options {
		out.Options[i].Correct = false
	}
	out.Numeric = nil
	out.Explanation = ""
	return out
}

// IDs returns the ids of qs in order.
func IDs(qs []Question) []string {
	ids := make([]string, len(qs))
	for i := range qs {
		ids[i] = qs[i].ID
	}
	return ids
}
