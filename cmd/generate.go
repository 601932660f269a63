package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/adaptiq/internal/generator"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate questions and add them to the bank",
	Long: `Generate a batch of questions with the configured LLM provider and save
them to the question bank. Use --dry-run to review a batch without saving it.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("subject", "", "Subject ID (required)")
	generateCmd.Flags().String("topic", "", "Topic ID")
	generateCmd.Flags().String("subtopic", "", "Subtopic ID")
	generateCmd.Flags().String("difficulty", "easy", "Difficulty: easy, medium or hard")
	generateCmd.Flags().IntP("count", "n", 5, "Number of questions to generate")
	generateCmd.Flags().Bool("dry-run", false, "Print the batch without saving it")
	_ = generateCmd.MarkFlagRequired("subject")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	topic, _ := cmd.Flags().GetString("topic")
	subtopic, _ := cmd.Flags().GetString("subtopic")
	tier, _ := cmd.Flags().GetString("difficulty")
	count, _ := cmd.Flags().GetInt("count")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	d, err := question.ParseDifficulty(tier)
	if err != nil {
		return err
	}
	req := generator.Request{
		Criteria:   question.Criteria{SubjectID: subject, TopicID: topic, SubtopicID: subtopic},
		Difficulty: d,
		Count:      count,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	rt, err := openRuntime(cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.gen == nil {
		return fmt.Errorf("no LLM provider configured; set ADAPTIQ_ANTHROPIC_API_KEY or ADAPTIQ_OPENAI_API_KEY")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	// Existing prompts steer the model away from repeats.
	existing, err := rt.store.Questions().List(ctx, req.Criteria, 200)
	if err != nil {
		return fmt.Errorf("list existing questions: %w", err)
	}
	for _, q := range existing {
		req.Avoid = append(req.Avoid, q.Prompt)
	}

	fmt.Printf("Generating %d %s questions for %s...\n\n", count, d.Label(), req.Criteria)
	qs, err := rt.gen.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	for i := range qs {
		printQuestion(i+1, len(qs), &qs[i])
	}

	if dryRun {
		fmt.Printf("── %d questions (not saved) ──\n", len(qs))
		return nil
	}
	if err := rt.store.Questions().Save(ctx, qs); err != nil {
		return fmt.Errorf("save questions: %w", err)
	}
	fmt.Printf("── Saved %d questions ──\n", len(qs))
	return nil
}

func printQuestion(n, total int, q *question.Question) {
	fmt.Printf("── Question %d/%d  [%s, %s] ──\n", n, total, q.Difficulty.Label(), strings.ToLower(string(q.Provenance)))
	fmt.Println(q.Prompt)
	for j, o := range q.Options {
		mark := " "
		if o.Correct {
			mark = "*"
		}
		fmt.Printf(" %s%d) %s\n", mark, j+1, o.Text)
	}
	if q.Numeric != nil {
		if q.Numeric.Tolerance > 0 {
			fmt.Printf("Answer: %g (±%g)\n", q.Numeric.Value, q.Numeric.Tolerance)
		} else {
			fmt.Printf("Answer: %g\n", q.Numeric.Value)
		}
	}
	if q.Explanation != "" {
		fmt.Printf("Explanation: %s\n", q.Explanation)
	}
	fmt.Println()
}
