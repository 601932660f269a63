// Package pool sources questions for sessions: stored questions first,
// then the generator, then templated fallback content.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/abhisek/adaptiq/internal/generator"
	"github.com/abhisek/adaptiq/internal/question"
)

// DefaultGeneratorTimeout bounds a single generator call.
const DefaultGeneratorTimeout = 20 * time.Second

// ErrPoolExhausted is returned when storage, generation and fallback
// together cannot supply the minimum number of questions.
var ErrPoolExhausted = errors.New("question pool exhausted")

// Repository is the question storage the pool reads from and saves
// generated questions back to.
type Repository interface {
	Find(ctx context.Context, c question.Criteria, d question.Difficulty, exclude []string) ([]question.Question, error)
	Save(ctx context.Context, qs []question.Question) error
}

// Request describes a pool fill.
type Request struct {
	Criteria   question.Criteria
	Difficulty question.Difficulty
	ExcludeIDs []string

	// Count is how many questions the caller wants.
	Count int

	// Minimum is the fewest the caller accepts. Zero means Count.
	Minimum int
}

func (r Request) minimum() int {
	if r.Minimum <= 0 || r.Minimum > r.Count {
		return r.Count
	}
	return r.Minimum
}

// Config tunes a Provider.
type Config struct {
	GeneratorTimeout time.Duration
}

// Provider implements the storage, generator, fallback chain.
type Provider struct {
	repo     Repository
	gen      generator.Generator
	fallback generator.Generator
	cfg      Config
	logger   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Provider.
type Option func(*Provider)

// WithGenerator sets the primary generator used when storage runs short.
func WithGenerator(g generator.Generator) Option {
	return func(p *Provider) { p.gen = g }
}

// WithFallback sets the generator used when the primary one fails.
func WithFallback(g generator.Generator) Option {
	return func(p *Provider) { p.fallback = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a Provider. rng drives every random pick; pass a seeded
// source in tests.
func New(repo Repository, rng *rand.Rand, cfg Config, opts ...Option) *Provider {
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = DefaultGeneratorTimeout
	}
	p := &Provider{
		repo:   repo,
		cfg:    cfg,
		rng:    rng,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// FetchPool returns up to req.Count questions matching the request, in
// random order. It fails with ErrPoolExhausted when fewer than the
// minimum can be found.
func (p *Provider) FetchPool(ctx context.Context, req Request) ([]question.Question, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("pool request count must be positive, got %d", req.Count)
	}

	stored, err := p.repo.Find(ctx, req.Criteria, req.Difficulty, req.ExcludeIDs)
	if err != nil {
		return nil, fmt.Errorf("query question bank: %w", err)
	}
	picked := p.sample(stored, req.Count)
	if len(picked) >= req.minimum() {
		return picked, nil
	}

	genReq := generator.Request{
		Criteria:   req.Criteria,
		Difficulty: req.Difficulty,
		Count:      req.Count - len(picked),
		Avoid:      prompts(picked),
	}

	extra := p.generate(ctx, genReq)
	picked = append(picked, extra...)

	if len(picked) < req.minimum() {
		return nil, fmt.Errorf("%w: %s at %s wants %d, found %d",
			ErrPoolExhausted, req.Criteria, req.Difficulty, req.minimum(), len(picked))
	}
	return picked, nil
}

// generate fills a deficit from the primary generator, falling back to
// templated content. Failures are logged, never returned.
func (p *Provider) generate(ctx context.Context, req generator.Request) []question.Question {
	var out []question.Question

	if p.gen != nil {
		qs, err := batches(ctx, p.gen, req, p.cfg.GeneratorTimeout)
		if err != nil {
			p.logger.Warn("question generation failed",
				"criteria", req.Criteria.String(), "difficulty", req.Difficulty, "error", err)
		}
		out = append(out, qs...)
		p.saveBack(ctx, qs)
	}

	if len(out) < req.Count && p.fallback != nil {
		rest := req
		rest.Count = req.Count - len(out)
		rest.Avoid = append(append([]string{}, req.Avoid...), prompts(out)...)
		qs, err := batches(ctx, p.fallback, rest, 0)
		if err != nil {
			p.logger.Warn("fallback generation incomplete", "criteria", req.Criteria.String(), "error", err)
		}
		if len(qs) > 0 {
			p.logger.Info("serving fallback questions", "criteria", req.Criteria.String(), "count", len(qs))
		}
		out = append(out, qs...)
	}
	return out
}

// batches calls g in chunks of at most generator.MaxBatch until req.Count
// questions are produced or a call fails. Each call gets its own timeout
// when timeout is positive.
func batches(ctx context.Context, g generator.Generator, req generator.Request, timeout time.Duration) ([]question.Question, error) {
	var out []question.Question
	for len(out) < req.Count {
		batch := req
		batch.Count = min(req.Count-len(out), generator.MaxBatch)
		batch.Avoid = append(append([]string{}, req.Avoid...), prompts(out)...)

		qs, err := callGenerator(ctx, g, batch, timeout)
		if len(qs) > batch.Count {
			qs = qs[:batch.Count]
		}
		out = append(out, qs...)
		if err != nil {
			return out, err
		}
		if len(qs) == 0 {
			return out, fmt.Errorf("generator returned no questions")
		}
	}
	return out, nil
}

func callGenerator(ctx context.Context, g generator.Generator, req generator.Request, timeout time.Duration) ([]question.Question, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return g.Generate(ctx, req)
}

func prompts(qs []question.Question) []string {
	out := make([]string, len(qs))
	for i := range qs {
		out[i] = qs[i].Prompt
	}
	return out
}

// saveBack stores generated questions so later sessions can reuse them.
// Placeholder content never enters the bank, whichever generator made it.
func (p *Provider) saveBack(ctx context.Context, qs []question.Question) {
	keep := make([]question.Question, 0, len(qs))
	for _, q := range qs {
		if q.Provenance != question.ProvenanceFallback {
			keep = append(keep, q)
		}
	}
	if len(keep) == 0 {
		return
	}
	if err := p.repo.Save(context.WithoutCancel(ctx), keep); err != nil {
		p.logger.Warn("saving generated questions failed", "count", len(keep), "error", err)
	}
}

// Alternative picks one stored question of the given tier that is not in
// exclude. It returns nil when there is none. It never calls a generator.
func (p *Provider) Alternative(ctx context.Context, c question.Criteria, d question.Difficulty, exclude []string) (*question.Question, error) {
	stored, err := p.repo.Find(ctx, c, d, exclude)
	if err != nil {
		return nil, fmt.Errorf("query question bank: %w", err)
	}
	picked := p.sample(stored, 1)
	if len(picked) == 0 {
		return nil, nil
	}
	return &picked[0], nil
}

// sample returns n random questions (all of them, shuffled, when fewer).
func (p *Provider) sample(qs []question.Question, n int) []question.Question {
	out := make([]question.Question, len(qs))
	for i := range qs {
		out[i] = qs[i].Clone()
	}

	p.mu.Lock()
	p.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	p.mu.Unlock()

	if len(out) > n {
		out = out[:n]
	}
	return out
}
