package generator

import "github.com/abhisek/adaptiq/internal/llm"

// QuestionBatchSchema is the structured output requested from the model.
// Every property is required so OpenAI strict mode accepts it.
var QuestionBatchSchema = &llm.Schema{
	Name:        "assessment-questions",
	Description: "A batch of assessment questions for one topic and difficulty",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"prompt": map[string]any{
							"type":        "string",
							"description": "The question text shown to the learner",
						},
						"format": map[string]any{
							"type": "string",
							"enum": []any{"multiple_choice", "numeric"},
						},
						"options": map[string]any{
							"type":        "array",
							"description": "Choices for multiple_choice; empty for numeric",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"text":    map[string]any{"type": "string"},
									"correct": map[string]any{"type": "boolean"},
								},
								"required":             []any{"text", "correct"},
								"additionalProperties": false,
							},
						},
						"numeric_answer": map[string]any{
							"type":        "string",
							"description": "Answer for numeric format as integer, decimal or a/b; empty for multiple_choice",
						},
						"tolerance": map[string]any{
							"type":        "number",
							"description": "Accepted absolute error for numeric answers; 0 for exact",
						},
						"estimated_seconds": map[string]any{
							"type":        "integer",
							"description": "Expected time to answer in seconds",
						},
						"explanation": map[string]any{
							"type":        "string",
							"description": "Short worked solution",
						},
					},
					"required": []any{
						"prompt", "format", "options", "numeric_answer",
						"tolerance", "estimated_seconds", "explanation",
					},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"questions"},
		"additionalProperties": false,
	},
}
