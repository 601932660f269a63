package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/spf13/cobra"
)

var resultCmd = &cobra.Command{
	Use:   "result <session-id>",
	Short: "Show the result of a completed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.Results().LoadResult(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load result: %w", err)
		}
		if res == nil {
			return fmt.Errorf("no result for session %s", args[0])
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(res)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <learner-id>",
	Short: "List a learner's past results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.Results().ListByLearner(cmd.Context(), args[0], limit)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		fmt.Printf("%-36s  %-19s  %6s  %8s  %s\n", "Session", "Completed", "Score", "Correct", "Reason")
		fmt.Println(strings.Repeat("─", 90))
		for _, r := range results {
			fmt.Printf("%-36s  %-19s  %5.0f%%  %4d/%-3d  %s\n",
				r.SessionID,
				r.CompletedAt.Local().Format("2006-01-02 15:04:05"),
				r.Score,
				r.CorrectAnswers, r.TotalQuestions,
				r.Reason)
		}
		return nil
	},
}

func printResult(res *analysis.AssessmentResult) {
	sep := strings.Repeat("─", 60)

	fmt.Printf("Session:    %s\n", res.SessionID)
	fmt.Printf("Learner:    %s\n", res.LearnerID)
	fmt.Printf("Completed:  %s (%s)\n", res.CompletedAt.Local().Format(time.DateTime), res.Reason)
	fmt.Printf("Score:      %.1f%%  (%d correct, %d answered, %d questions)\n",
		res.Score, res.CorrectAnswers, res.AnsweredQuestions, res.TotalQuestions)
	fmt.Printf("Avg time:   %.1fs\n", res.AverageTimeSeconds)
	fmt.Printf("Confidence: %.2f\n", res.Confidence)
	if res.DegradedContent > 0 {
		fmt.Printf("Fallback:   %d placeholder questions\n", res.DegradedContent)
	}

	fmt.Println()
	fmt.Println(sep)
	fmt.Printf("%-20s  %9s  %7s  %8s\n", "Group", "Attempted", "Correct", "Accuracy")
	fmt.Println(sep)
	for _, d := range question.Difficulties {
		if g, ok := res.ByDifficulty[d]; ok {
			printGroup(d.Label(), g)
		}
	}
	topics := make([]string, 0, len(res.ByTopic))
	for t := range res.ByTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		printGroup(t, res.ByTopic[t])
	}

	fmt.Println(sep)
	if len(res.Strengths) > 0 {
		fmt.Printf("Strengths:  %s\n", strings.Join(res.Strengths, ", "))
	}
	if len(res.Weaknesses) > 0 {
		fmt.Printf("Needs work: %s\n", strings.Join(res.Weaknesses, ", "))
	}
	fmt.Println()
	fmt.Printf("Recommendations (%s)\n", res.NarrativeSource)
	for i, r := range res.Recommendations {
		fmt.Printf("  %d. %s\n", i+1, r)
	}
}

func printGroup(name string, g analysis.GroupStats) {
	fmt.Printf("%-20s  %9d  %7d  %7.0f%%\n", truncate(name, 20), g.Attempted, g.Correct, g.Accuracy*100)
}

func init() {
	resultCmd.Flags().Bool("json", false, "Print the result as JSON")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of results to show")
}
