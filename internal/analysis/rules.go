package analysis

import (
	"fmt"
	"math"

	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/scoring"
)

// Thresholds for insight rules.
const (
	MinSample          = 3
	WeaknessBelow      = 0.6
	StrengthAtOrAbove  = 0.8
	FastGuessSeconds   = 5
	SlowVsEstimate     = 2.0
	SlowVsSessionMean  = 1.5
	MinRecommendations = 3
	MaxRecommendations = 5
)

// facts is what rules look at. Built once per analysis.
type facts struct {
	in        *Input
	byID      map[string]*question.Question
	groups    []group
	byTopic   map[string]GroupStats
	byTier    map[question.Difficulty]GroupStats
	meanTime  float64
	answered  int
	unserved  int
	degraded  int
	subjectID string
}

type group struct {
	label string
	stats GroupStats
}

// rate is the unrounded accuracy used for thresholds.
func (g *group) rate() float64 {
	return scoring.Ratio(g.stats.Correct, g.stats.Attempted)
}

// rule produces at most one recommendation from the session facts.
type rule interface {
	Name() string
	Recommend(f *facts) (string, bool)
}

// defaultRules returns the rules in priority order.
func defaultRules() []rule {
	return []rule{
		&weakestGroupRule{},
		&slowOutlierRule{},
		&fastGuessRule{},
		&unansweredRule{},
		&degradedContentRule{},
		&strengthRule{},
	}
}

var padding = []string{
	"Review the worked explanation for every question you missed.",
	"Retake a similar assessment in a few days to confirm progress.",
	"Practice a mix of difficulty levels under timed conditions.",
}

// recommend runs rules in order and pads or trims to the allowed range.
func recommend(rules []rule, f *facts) []string {
	out := make([]string, 0, MaxRecommendations)
	for _, r := range rules {
		if len(out) == MaxRecommendations {
			break
		}
		if s, ok := r.Recommend(f); ok {
			out = append(out, s)
		}
	}
	for _, p := range padding {
		if len(out) >= MinRecommendations {
			break
		}
		out = append(out, p)
	}
	return out
}

type weakestGroupRule struct{}

func (r *weakestGroupRule) Name() string { return "weakest-group" }

func (r *weakestGroupRule) Recommend(f *facts) (string, bool) {
	var weakest *group
	for i := range f.groups {
		g := &f.groups[i]
		if g.stats.Attempted < MinSample || g.rate() >= WeaknessBelow {
			continue
		}
		if weakest == nil || g.rate() < weakest.rate() {
			weakest = g
		}
	}
	if weakest == nil {
		return "", false
	}
	return fmt.Sprintf("Focus review on %s: %d of %d correct (%.0f%%).",
		weakest.label, weakest.stats.Correct, weakest.stats.Attempted, weakest.stats.Accuracy*100), true
}

type slowOutlierRule struct{}

func (r *slowOutlierRule) Name() string { return "slow-outlier" }

func (r *slowOutlierRule) Recommend(f *facts) (string, bool) {
	var worst float64
	var worstQ *question.Question
	var worstTime int
	for _, a := range f.in.Attempts {
		q := f.byID[a.QuestionID]
		if q == nil || a.TimeSpentSeconds == 0 {
			continue
		}
		ratio := 0.0
		if q.EstimatedSeconds > 0 {
			if rr := float64(a.TimeSpentSeconds) / float64(q.EstimatedSeconds); rr > SlowVsEstimate {
				ratio = rr
			}
		}
		if f.answered > 1 && f.meanTime > 0 {
			if rr := float64(a.TimeSpentSeconds) / f.meanTime; rr > SlowVsSessionMean {
				ratio = math.Max(ratio, rr)
			}
		}
		if ratio > worst {
			worst, worstQ, worstTime = ratio, q, a.TimeSpentSeconds
		}
	}
	if worstQ == nil {
		return "", false
	}
	return fmt.Sprintf("Work on pacing in %s: one question took %ds, well above the expected time.",
		worstQ.Topic(), worstTime), true
}

type fastGuessRule struct{}

func (r *fastGuessRule) Name() string { return "fast-guess" }

func (r *fastGuessRule) Recommend(f *facts) (string, bool) {
	n := 0
	for _, a := range f.in.Attempts {
		if !a.Correct && a.TimeSpentSeconds < FastGuessSeconds {
			n++
		}
	}
	if n == 0 {
		return "", false
	}
	return fmt.Sprintf("Slow down: %d incorrect %s submitted in under %d seconds.",
		n, plural(n, "answer was", "answers were"), FastGuessSeconds), true
}

type unansweredRule struct{}

func (r *unansweredRule) Name() string { return "unanswered" }

func (r *unansweredRule) Recommend(f *facts) (string, bool) {
	if f.unserved == 0 {
		return "", false
	}
	return fmt.Sprintf("%d %s left unanswered; budget time to reach every question.",
		f.unserved, plural(f.unserved, "question was", "questions were")), true
}

type degradedContentRule struct{}

func (r *degradedContentRule) Name() string { return "degraded-content" }

func (r *degradedContentRule) Recommend(f *facts) (string, bool) {
	if f.degraded == 0 {
		return "", false
	}
	return fmt.Sprintf("Generic practice items made up %d of %d questions; retake once more %s content is available.",
		f.degraded, len(f.in.Questions), f.subjectID), true
}

type strengthRule struct{}

func (r *strengthRule) Name() string { return "strength" }

func (r *strengthRule) Recommend(f *facts) (string, bool) {
	var best *group
	for i := range f.groups {
		g := &f.groups[i]
		if g.stats.Attempted < MinSample || g.rate() < StrengthAtOrAbove {
			continue
		}
		if best == nil || g.rate() > best.rate() {
			best = g
		}
	}
	if best == nil {
		return "", false
	}
	return fmt.Sprintf("You are strong in %s; try harder material there next.", best.label), true
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
