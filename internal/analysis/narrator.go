package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/abhisek/adaptiq/internal/llm"
)

// Narrator rephrases rule recommendations. It must return exactly one
// string per input recommendation, in order.
type Narrator interface {
	Narrate(ctx context.Context, res *AssessmentResult) ([]string, error)
}

// NarratorConfig holds configuration for the LLM narrator.
type NarratorConfig struct {
	MaxTokens   int
	Temperature float64
}

// DefaultNarratorConfig returns sensible defaults.
func DefaultNarratorConfig() NarratorConfig {
	return NarratorConfig{
		MaxTokens:   512,
		Temperature: 0.4,
	}
}

// LLMNarrator asks a model to reword recommendations for the learner.
type LLMNarrator struct {
	provider llm.Provider
	cfg      NarratorConfig
}

// NewLLMNarrator creates an LLM-backed narrator.
func NewLLMNarrator(provider llm.Provider, cfg NarratorConfig) *LLMNarrator {
	return &LLMNarrator{provider: provider, cfg: cfg}
}

// NarrativeSchema defines the JSON schema for narrator responses.
var NarrativeSchema = &llm.Schema{
	Name:        "result-narrative",
	Description: "Learner-facing rewording of assessment recommendations",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recommendations": map[string]any{
				"type":        "array",
				"description": "One reworded recommendation per input recommendation, same order",
				"items": map[string]any{
					"type":      "string",
					"minLength": 1,
				},
			},
		},
		"required":             []any{"recommendations"},
		"additionalProperties": false,
	},
}

type narrativeOutput struct {
	Recommendations []string `json:"recommendations"`
}

func (n *LLMNarrator) Narrate(ctx context.Context, res *AssessmentResult) ([]string, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeNarrative)

	userMsg, err := buildNarrativeMessage(res)
	if err != nil {
		return nil, fmt.Errorf("build narrative prompt: %w", err)
	}

	resp, err := n.provider.Generate(ctx, llm.Request{
		System:      narrativeSystemPrompt,
		Messages:    llm.UserPrompt(userMsg),
		Schema:      NarrativeSchema,
		MaxTokens:   n.cfg.MaxTokens,
		Temperature: n.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM narration failed: %w", err)
	}

	var raw narrativeOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse narrative response: %w", err)
	}
	return raw.Recommendations, nil
}

const narrativeSystemPrompt = `You are a supportive tutor writing feedback after an assessment.

Instructions:
- Rewrite each recommendation in a warm, direct voice addressed to the learner.
- Keep every fact and number. Do NOT add new advice.
- Return exactly as many recommendations as you were given, in the same order.
- One or two sentences each.`

var narrativeUserTemplate = template.Must(template.New("narrative").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`Score: {{printf "%.0f" .Score}}% ({{.CorrectAnswers}} of {{.AnsweredQuestions}} answered correctly, {{.TotalQuestions}} questions)
Strengths: {{if .Strengths}}{{range $i, $s := .Strengths}}{{if $i}}, {{end}}{{$s}}{{end}}{{else}}none{{end}}
Weaknesses: {{if .Weaknesses}}{{range $i, $s := .Weaknesses}}{{if $i}}, {{end}}{{$s}}{{end}}{{else}}none{{end}}

Recommendations:
{{range $i, $r := .Recommendations}}{{inc $i}}. {{$r}}
{{end}}`))

func buildNarrativeMessage(res *AssessmentResult) (string, error) {
	var buf bytes.Buffer
	if err := narrativeUserTemplate.Execute(&buf, res); err != nil {
		return "", err
	}
	return buf.String(), nil
}
