package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/scoring"
)

// DefaultNarratorTimeout bounds the optional narration step.
const DefaultNarratorTimeout = 10 * time.Second

// Analyzer builds AssessmentResults. The structured fields are a pure
// function of the Input; only recommendation wording may come from the
// narrator.
type Analyzer struct {
	rules           []rule
	narrator        Narrator
	narratorTimeout time.Duration
	logger          *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithNarrator enables rephrasing of recommendations.
func WithNarrator(n Narrator, timeout time.Duration) Option {
	return func(a *Analyzer) {
		a.narrator = n
		if timeout > 0 {
			a.narratorTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer with the default rules.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		rules:           defaultRules(),
		narratorTimeout: DefaultNarratorTimeout,
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze computes the result for a completed session. It never fails:
// narrator problems fall back to the rule wording.
func (a *Analyzer) Analyze(ctx context.Context, in Input) *AssessmentResult {
	f := buildFacts(&in)

	correct := make([]bool, len(in.Attempts))
	totalTime := 0
	for i, at := range in.Attempts {
		correct[i] = at.Correct
		totalTime += at.TimeSpentSeconds
	}
	sum := scoring.Summarize(correct)

	res := &AssessmentResult{
		SessionID:         in.SessionID,
		LearnerID:         in.LearnerID,
		TotalQuestions:    len(in.Questions),
		AnsweredQuestions: sum.TotalCount,
		CorrectAnswers:    sum.CorrectCount,
		Score:             sum.Percentage,
		ByDifficulty:      f.byTier,
		ByTopic:           f.byTopic,
		Strengths:         []string{},
		Weaknesses:        []string{},
		DegradedContent:   f.degraded,
		NarrativeSource:   NarrativeRules,
		CompletedAt:       in.CompletedAt,
		Reason:            in.Reason,
	}
	if sum.TotalCount > 0 {
		res.AverageTimeSeconds = scoring.Round2(float64(totalTime) / float64(sum.TotalCount))
	}

	for i := range f.groups {
		g := &f.groups[i]
		switch {
		case g.stats.Attempted < MinSample:
		case g.rate() < WeaknessBelow:
			res.Weaknesses = append(res.Weaknesses, g.label)
		case g.rate() >= StrengthAtOrAbove:
			res.Strengths = append(res.Strengths, g.label)
		}
	}

	degradedShare := scoring.Ratio(f.degraded, len(in.Questions))
	res.Confidence = scoring.Round2(math.Min(1, float64(sum.TotalCount)/10) * (1 - degradedShare/2))

	res.Recommendations = recommend(a.rules, f)
	if a.narrator != nil {
		if phrased, err := a.narrate(ctx, res); err != nil {
			a.logger.Warn("narrator failed, keeping rule wording", "session_id", in.SessionID, "error", err)
		} else {
			res.Recommendations = phrased
			res.NarrativeSource = NarrativeLLM
		}
	}

	return res
}

func (a *Analyzer) narrate(ctx context.Context, res *AssessmentResult) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.narratorTimeout)
	defer cancel()

	out, err := a.narrator.Narrate(ctx, res.Clone())
	if err != nil {
		return nil, err
	}
	if len(out) != len(res.Recommendations) {
		return nil, fmt.Errorf("narrator returned %d recommendations, want %d", len(out), len(res.Recommendations))
	}
	for _, s := range out {
		if s == "" {
			return nil, fmt.Errorf("narrator returned an empty recommendation")
		}
	}
	return out, nil
}

func addAttempt(g GroupStats, correct bool) GroupStats {
	g.Attempted++
	if correct {
		g.Correct++
	}
	g.Accuracy = scoring.Round2(scoring.Ratio(g.Correct, g.Attempted))
	return g
}

// buildFacts indexes the session and computes the groups rules look at.
// Groups are ordered by label so output is deterministic.
func buildFacts(in *Input) *facts {
	f := &facts{
		in:      in,
		byID:    make(map[string]*question.Question, len(in.Questions)),
		byTopic: map[string]GroupStats{},
		byTier:  map[question.Difficulty]GroupStats{},
	}
	for i := range in.Questions {
		q := &in.Questions[i]
		f.byID[q.ID] = q
		if q.Provenance == question.ProvenanceFallback {
			f.degraded++
		}
		if f.subjectID == "" {
			f.subjectID = q.SubjectID
		}
	}

	total := 0
	for _, at := range in.Attempts {
		q := f.byID[at.QuestionID]
		if q == nil {
			continue
		}
		f.answered++
		total += at.TimeSpentSeconds
		f.byTopic[q.Topic()] = addAttempt(f.byTopic[q.Topic()], at.Correct)
		f.byTier[q.Difficulty] = addAttempt(f.byTier[q.Difficulty], at.Correct)
	}
	if f.answered > 0 {
		f.meanTime = float64(total) / float64(f.answered)
	}
	f.unserved = len(in.Questions) - len(in.Attempts)

	for topic, st := range f.byTopic {
		f.groups = append(f.groups, group{label: "topic " + topic, stats: st})
	}
	for tier, st := range f.byTier {
		f.groups = append(f.groups, group{label: tier.Label() + " questions", stats: st})
	}
	sort.Slice(f.groups, func(i, j int) bool { return f.groups[i].label < f.groups[j].label })
	return f
}
