package generator

import (
	"fmt"
	"strings"
)

const systemPrompt = `You write questions for timed adaptive assessments.

Rules:
- Generate exactly the requested number of questions for the given subject, topic and difficulty.
- Each question must be self-contained and answerable without external material.
- Use plain ASCII text. No LaTeX or markdown.
- Choose "multiple_choice" for conceptual or identification questions: 4 options, exactly one correct. Distractors should reflect common mistakes.
- Choose "numeric" for computation: leave options empty and put the answer in numeric_answer as an integer, decimal, or fraction a/b in simplest form.
- easy questions take under 30 seconds, medium under 60, hard under 120. Set estimated_seconds accordingly.
- The explanation is a short worked solution.
- Never repeat a question from the "already used" list.`

// buildUserMessage renders the per-batch instructions.
func buildUserMessage(req Request, maxAvoid int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Subject: %s\n", req.Criteria.SubjectID)
	if req.Criteria.TopicID != "" {
		fmt.Fprintf(&b, "Topic: %s\n", req.Criteria.TopicID)
	}
	if req.Criteria.SubtopicID != "" {
		fmt.Fprintf(&b, "Subtopic: %s\n", req.Criteria.SubtopicID)
	}
	fmt.Fprintf(&b, "Difficulty: %s\n", req.Difficulty.Label())
	fmt.Fprintf(&b, "Number of questions: %d\n", req.Count)

	b.WriteString("\nAlready used:\n")
	b.WriteString(numberedList(req.Avoid, maxAvoid))

	return b.String()
}

// numberedList keeps the last max items, or "None".
func numberedList(items []string, max int) string {
	if len(items) == 0 {
		return "None"
	}
	if max > 0 && len(items) > max {
		items = items[len(items)-max:]
	}

	var b strings.Builder
	for i, s := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}
