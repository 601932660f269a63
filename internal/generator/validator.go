package generator

import (
	"fmt"
	"strings"

	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/scoring"
)

// Validator checks one generated question. Implementations are stateless.
type Validator interface {
	// Name is a short identifier used in errors and logs.
	Name() string

	Validate(q *question.Question, req Request) *ValidationError
}

// ValidationError describes why a generated question was rejected.
type ValidationError struct {
	Validator string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

// StructuralValidator checks lengths and the shape of the answer key.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(q *question.Question, _ Request) *ValidationError {
	fail := func(msg string) *ValidationError {
		return &ValidationError{Validator: v.Name(), Message: msg}
	}

	switch {
	case strings.TrimSpace(q.Prompt) == "":
		return fail("prompt is empty")
	case len(q.Prompt) > 1000:
		return fail("prompt exceeds 1000 characters")
	case len(q.Explanation) > 2000:
		return fail("explanation exceeds 2000 characters")
	case q.EstimatedSeconds < 0 || q.EstimatedSeconds > 900:
		return fail("estimated_seconds must be between 0 and 900")
	}

	if q.IsChoice() {
		if len(q.Options) < 2 || len(q.Options) > 6 {
			return fail("multiple_choice needs 2 to 6 options")
		}
		seen := make(map[string]bool, len(q.Options))
		correct := 0
		for _, o := range q.Options {
			key := strings.ToLower(strings.TrimSpace(o.Text))
			if key == "" {
				return fail("option text is empty")
			}
			if seen[key] {
				return fail(fmt.Sprintf("duplicate option %q", o.Text))
			}
			seen[key] = true
			if o.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fail(fmt.Sprintf("expected exactly one correct option, got %d", correct))
		}
		return nil
	}

	if q.Numeric == nil {
		return fail("numeric question has no answer")
	}
	if q.Numeric.Tolerance < 0 {
		return fail("tolerance is negative")
	}
	return nil
}

// AnswerKeyValidator checks that the key actually scores as correct, which
// catches malformed numeric answers and option ids that do not resolve.
type AnswerKeyValidator struct{}

func (v *AnswerKeyValidator) Name() string { return "answer-key" }

func (v *AnswerKeyValidator) Validate(q *question.Question, _ Request) *ValidationError {
	var key string
	if q.IsChoice() {
		for _, o := range q.Options {
			if o.Correct {
				key = o.ID
			}
		}
	} else if q.Numeric != nil {
		key = formatNumber(q.Numeric.Value)
	}
	if !scoring.ScoreAnswer(q, key) {
		return &ValidationError{Validator: v.Name(), Message: "answer key does not score as correct"}
	}
	return nil
}

// DuplicateValidator rejects prompts already in the avoid list.
type DuplicateValidator struct{}

func (v *DuplicateValidator) Name() string { return "duplicate" }

func (v *DuplicateValidator) Validate(q *question.Question, req Request) *ValidationError {
	norm := normalizePrompt(q.Prompt)
	for _, p := range req.Avoid {
		if normalizePrompt(p) == norm {
			return &ValidationError{Validator: v.Name(), Message: "prompt repeats an existing question"}
		}
	}
	return nil
}

func normalizePrompt(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
