package pool

import (
	"context"
	"slices"
	"sync"

	"github.com/abhisek/adaptiq/internal/question"
)

// MemoryRepository is an in-process Repository. Find returns questions in
// insertion order.
type MemoryRepository struct {
	mu        sync.RWMutex
	questions []question.Question
}

// NewMemoryRepository creates a repository holding qs.
func NewMemoryRepository(qs ...question.Question) *MemoryRepository {
	r := &MemoryRepository{}
	for _, q := range qs {
		r.questions = append(r.questions, q.Clone())
	}
	return r
}

func (r *MemoryRepository) Find(_ context.Context, c question.Criteria, d question.Difficulty, exclude []string) ([]question.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []question.Question
	for i := range r.questions {
		q := &r.questions[i]
		if q.Difficulty != d || !c.Matches(q) || slices.Contains(exclude, q.ID) ||
			q.Provenance == question.ProvenanceFallback {
			continue
		}
		out = append(out, q.Clone())
	}
	return out, nil
}

func (r *MemoryRepository) Save(_ context.Context, qs []question.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range qs {
		r.questions = append(r.questions, q.Clone())
	}
	return nil
}

// Len returns the number of stored questions.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.questions)
}
