package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/abhisek/adaptiq/internal/llm"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/scoring"
)

// Config controls the LLMGenerator.
type Config struct {
	// Validators run in order on every generated question; the first
	// failure drops the question from the batch.
	Validators []Validator

	// MaxTokensPerQuestion is multiplied by the batch size.
	MaxTokensPerQuestion int

	Temperature float64

	// MaxAvoid caps how many prior prompts go into the prompt.
	MaxAvoid int
}

// DefaultConfig returns the standard validator chain and budgets.
func DefaultConfig() Config {
	return Config{
		Validators: []Validator{
			&StructuralValidator{},
			&AnswerKeyValidator{},
			&DuplicateValidator{},
		},
		MaxTokensPerQuestion: 400,
		Temperature:          0.7,
		MaxAvoid:             20,
	}
}

// LLMGenerator implements Generator on an llm.Provider.
type LLMGenerator struct {
	provider llm.Provider
	config   Config
	logger   *slog.Logger
}

// NewLLM creates an LLMGenerator. A nil logger uses slog.Default.
func NewLLM(provider llm.Provider, cfg Config, logger *slog.Logger) *LLMGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMGenerator{provider: provider, config: cfg, logger: logger}
}

type batchOutput struct {
	Questions []questionOutput `json:"questions"`
}

type questionOutput struct {
	Prompt  string `json:"prompt"`
	Format  string `json:"format"`
	Options []struct {
		Text    string `json:"text"`
		Correct bool   `json:"correct"`
	} `json:"options"`
	NumericAnswer    string  `json:"numeric_answer"`
	Tolerance        float64 `json:"tolerance"`
	EstimatedSeconds int     `json:"estimated_seconds"`
	Explanation      string  `json:"explanation"`
}

// Generate asks the model for a batch and returns the questions that pass
// every validator. It fails only when none do.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) ([]question.Question, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = llm.WithPurpose(ctx, llm.PurposeQuestionGen)

	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    llm.UserPrompt(buildUserMessage(req, g.config.MaxAvoid)),
		Schema:      QuestionBatchSchema,
		MaxTokens:   g.config.MaxTokensPerQuestion * req.Count,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("question generation failed: %w", err)
	}

	var raw batchOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse generated questions: %w", err)
	}

	avoid := append([]string(nil), req.Avoid...)
	out := make([]question.Question, 0, req.Count)
	var lastErr error
	for _, r := range raw.Questions {
		if len(out) == req.Count {
			break
		}
		q, err := r.toQuestion(req)
		if err != nil {
			lastErr = err
			g.logger.Debug("dropping generated question", "error", err)
			continue
		}
		check := Request{Criteria: req.Criteria, Difficulty: req.Difficulty, Count: req.Count, Avoid: avoid}
		if verr := g.validate(&q, check); verr != nil {
			lastErr = verr
			g.logger.Debug("dropping generated question", "validator", verr.Validator, "reason", verr.Message)
			continue
		}
		avoid = append(avoid, q.Prompt)
		out = append(out, q)
	}

	if len(out) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("model returned no questions")
		}
		return nil, fmt.Errorf("no usable generated questions: %w", lastErr)
	}
	return out, nil
}

func (g *LLMGenerator) validate(q *question.Question, req Request) *ValidationError {
	for _, v := range g.config.Validators {
		if verr := v.Validate(q, req); verr != nil {
			return verr
		}
	}
	return nil
}

func (r questionOutput) toQuestion(req Request) (question.Question, error) {
	q := question.Question{
		ID:               uuid.NewString(),
		Prompt:           strings.TrimSpace(r.Prompt),
		Difficulty:       req.Difficulty,
		SubjectID:        req.Criteria.SubjectID,
		TopicID:          req.Criteria.TopicID,
		SubtopicID:       req.Criteria.SubtopicID,
		EstimatedSeconds: r.EstimatedSeconds,
		Provenance:       question.ProvenanceGenerated,
		Explanation:      strings.TrimSpace(r.Explanation),
	}

	switch r.Format {
	case "multiple_choice":
		for i, o := range r.Options {
			q.Options = append(q.Options, question.Option{
				ID:      optionID(i),
				Text:    strings.TrimSpace(o.Text),
				Correct: o.Correct,
			})
		}
	case "numeric":
		v, err := scoring.ParseNumber(r.NumericAnswer)
		if err != nil {
			return q, fmt.Errorf("numeric_answer %q: %w", r.NumericAnswer, err)
		}
		q.Numeric = &question.NumericKey{Value: v, Tolerance: r.Tolerance}
	default:
		return q, fmt.Errorf("unknown format %q", r.Format)
	}
	return q, nil
}

// optionID returns "a", "b", ... for option positions.
func optionID(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return "o" + strconv.Itoa(i+1)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
