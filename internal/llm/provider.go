package llm

import (
	"context"
	"encoding/json"
)

// Provider generates structured output from a language model. Question
// generation and result narration both go through this interface.
type Provider interface {
	// Generate sends the request and returns the model output. When
	// req.Schema is set the output has been validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier the provider targets.
	ModelID() string
}

// Request describes one generation call.
type Request struct {
	// System is the system prompt.
	System string

	// Messages is the conversation. Single-turn callers pass one user message.
	Messages []Message

	// Schema, when set, asks the provider for JSON conforming to it.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]. Zero leaves the provider default.
	Temperature float64
}

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema sent with structured requests.
type Schema struct {
	// Name identifies the schema, kebab-case, e.g. "assessment-questions".
	Name string

	Description string

	// Definition is the JSON Schema document.
	Definition map[string]any
}

// Response holds the model output.
type Response struct {
	// Content is the JSON output, or the raw text when no schema was set.
	Content json.RawMessage

	Usage Usage

	// Model is the model that actually served the request.
	Model string

	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage is the token consumption of a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserPrompt builds the common single-message request body.
func UserPrompt(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}
