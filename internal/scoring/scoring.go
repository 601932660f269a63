// Package scoring decides whether a submitted answer is correct and turns a
// list of correctness flags into a percentage.
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/abhisek/adaptiq/internal/question"
)

// DefaultTolerance is used for numeric keys that leave Tolerance at zero.
const DefaultTolerance = 1e-9

// ScoreAnswer compares the learner's answer against the question's key.
//
// Normalization rules:
//   - Whitespace is trimmed; an empty answer is always incorrect
//   - Choice questions match by option id, then by option text
//     (case-insensitive), then by 1-based index when no option text is
//     numeric. Any option marked correct is accepted
//   - Numeric questions accept integers, decimals and fractions ("3/4")
//     and compare within the key's tolerance
func ScoreAnswer(q *question.Question, chosen string) bool {
	chosen = strings.TrimSpace(chosen)
	if chosen == "" || q == nil {
		return false
	}

	if q.IsChoice() {
		opt := matchOption(q.Options, chosen)
		return opt != nil && opt.Correct
	}
	if q.Numeric == nil {
		return false
	}

	v, err := ParseNumber(chosen)
	if err != nil {
		return false
	}
	tol := q.Numeric.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	return math.Abs(v-q.Numeric.Value) <= tol
}

// matchOption resolves the learner's input to one of the options. Ids win
// over text, and text wins over position. A 1-based index is only read
// when no option text is itself a number, so "2" on an arithmetic question
// always means the option reading "2".
func matchOption(opts []question.Option, chosen string) *question.Option {
	for i := range opts {
		if opts[i].ID != "" && opts[i].ID == chosen {
			return &opts[i]
		}
	}

	for i := range opts {
		if strings.EqualFold(strings.TrimSpace(opts[i].Text), chosen) {
			return &opts[i]
		}
	}

	if numericOptions(opts) {
		return nil
	}
	if idx, err := strconv.Atoi(chosen); err == nil && idx >= 1 && idx <= len(opts) {
		return &opts[idx-1]
	}
	return nil
}

// numericOptions reports whether any option text parses as a number.
func numericOptions(opts []question.Option) bool {
	for i := range opts {
		if _, err := ParseNumber(opts[i].Text); err == nil {
			return true
		}
	}
	return false
}

// ParseNumber parses an integer, decimal, or "a/b" fraction.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		num, den, err := parseFraction(s)
		if err != nil {
			return 0, err
		}
		if den == 0 {
			return 0, fmt.Errorf("zero denominator")
		}
		return float64(num) / float64(den), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// parseFraction parses "a/b" into numerator and denominator.
func parseFraction(s string) (int64, int64, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid fraction format: %q", s)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid numerator: %w", err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid denominator: %w", err)
	}
	return num, den, nil
}

// Summary is the headline score of a set of answers.
type Summary struct {
	CorrectCount int     `json:"correct_count"`
	TotalCount   int     `json:"total_count"`
	Percentage   float64 `json:"percentage"`
}

// Summarize counts correct flags. Percentage is 0 when there are none.
func Summarize(correct []bool) Summary {
	s := Summary{TotalCount: len(correct)}
	for _, c := range correct {
		if c {
			s.CorrectCount++
		}
	}
	if s.TotalCount > 0 {
		s.Percentage = Round2(float64(s.CorrectCount) / float64(s.TotalCount) * 100)
	}
	return s
}

// Ratio returns part/whole, or 0 when whole is 0.
func Ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
