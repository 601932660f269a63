package generator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/abhisek/adaptiq/internal/question"
)

// FallbackGenerator produces templated arithmetic items when neither the
// bank nor the model can fill a pool. Items are tagged FALLBACK so results
// can report degraded content.
type FallbackGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallback creates a FallbackGenerator drawing operands from rng.
func NewFallback(rng *rand.Rand) *FallbackGenerator {
	return &FallbackGenerator{rng: rng}
}

func (f *FallbackGenerator) Generate(ctx context.Context, req Request) ([]question.Question, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]question.Question, 0, req.Count)
	seen := make(map[string]bool, len(req.Avoid)+req.Count)
	for _, p := range req.Avoid {
		seen[normalizePrompt(p)] = true
	}

	for attempts := 0; len(out) < req.Count && attempts < req.Count*20; attempts++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prompt, answer, secs := f.template(req.Difficulty)
		prompt = fmt.Sprintf("[%s] %s", req.Criteria, prompt)
		if seen[normalizePrompt(prompt)] {
			continue
		}
		seen[normalizePrompt(prompt)] = true

		out = append(out, question.Question{
			ID:               uuid.NewString(),
			Prompt:           prompt,
			Numeric:          &question.NumericKey{Value: answer},
			Difficulty:       req.Difficulty,
			SubjectID:        req.Criteria.SubjectID,
			TopicID:          req.Criteria.TopicID,
			SubtopicID:       req.Criteria.SubtopicID,
			EstimatedSeconds: secs,
			Provenance:       question.ProvenanceFallback,
		})
	}

	if len(out) < req.Count {
		return out, fmt.Errorf("fallback produced %d of %d questions", len(out), req.Count)
	}
	return out, nil
}

// template returns a prompt, its answer and an estimated time. Caller
// holds f.mu.
func (f *FallbackGenerator) template(d question.Difficulty) (string, float64, int) {
	switch d {
	case question.Easy:
		a, b := f.rng.Intn(20)+1, f.rng.Intn(20)+1
		return fmt.Sprintf("What is %d + %d?", a, b), float64(a + b), 20
	case question.Medium:
		a, b := f.rng.Intn(11)+2, f.rng.Intn(11)+2
		return fmt.Sprintf("What is %d * %d?", a, b), float64(a * b), 40
	default:
		a, b, c := f.rng.Intn(11)+2, f.rng.Intn(11)+2, f.rng.Intn(50)+1
		return fmt.Sprintf("What is %d * %d - %d?", a, b, c), float64(a*b - c), 75
	}
}
