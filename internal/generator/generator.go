// Package generator synthesizes assessment questions when the question bank
// runs short, either through a language model or from built-in templates.
package generator

import (
	"context"
	"fmt"

	"github.com/abhisek/adaptiq/internal/question"
)

// MaxBatch caps how many questions one Generate call may ask for.
const MaxBatch = 20

// Generator produces new questions for the given criteria and tier.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]question.Question, error)
}

// Request describes a generation batch.
type Request struct {
	Criteria   question.Criteria
	Difficulty question.Difficulty
	Count      int

	// Avoid lists prompts that must not be repeated.
	Avoid []string
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.Criteria.SubjectID == "" {
		return fmt.Errorf("subject is required")
	}
	if !r.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", r.Difficulty)
	}
	if r.Count <= 0 || r.Count > MaxBatch {
		return fmt.Errorf("count must be between 1 and %d", MaxBatch)
	}
	return nil
}
