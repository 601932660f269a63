package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/abhisek/adaptiq/internal/question"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Manage the question bank",
}

var questionsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import curated questions from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		var qs []question.Question
		if err := json.Unmarshal(data, &qs); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		for i := range qs {
			q := &qs[i]
			if q.ID == "" {
				q.ID = uuid.NewString()
			}
			if q.Provenance == "" {
				q.Provenance = question.ProvenanceCurated
			}
			if d, err := question.ParseDifficulty(string(q.Difficulty)); err == nil {
				q.Difficulty = d
			}
		}

		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		// Save validates the whole batch before writing any of it.
		if err := st.Questions().Save(cmd.Context(), qs); err != nil {
			return err
		}
		fmt.Printf("Imported %d questions.\n", len(qs))
		return nil
	},
}

var questionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List questions in the bank",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		topic, _ := cmd.Flags().GetString("topic")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		qs, err := st.Questions().List(cmd.Context(), question.Criteria{SubjectID: subject, TopicID: topic}, limit)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		if len(qs) == 0 {
			fmt.Println("No questions found.")
			return nil
		}

		fmt.Printf("%-36s  %-6s  %-10s  %-18s  %s\n", "ID", "Tier", "Source", "Subject/Topic", "Prompt")
		fmt.Println(strings.Repeat("─", 110))
		for _, q := range qs {
			fmt.Printf("%-36s  %-6s  %-10s  %-18s  %s\n",
				truncate(q.ID, 36),
				q.Difficulty.Label(),
				strings.ToLower(string(q.Provenance)),
				truncate(q.Topic(), 18),
				truncate(q.Prompt, 40))
		}
		return nil
	},
}

var questionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show question counts per subject, topic and difficulty",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.Questions().Counts(cmd.Context())
		if err != nil {
			return fmt.Errorf("count questions: %w", err)
		}
		if len(counts) == 0 {
			fmt.Println("The question bank is empty.")
			return nil
		}

		fmt.Printf("%-20s  %-20s  %-8s  %6s\n", "Subject", "Topic", "Tier", "Count")
		fmt.Println(strings.Repeat("─", 60))
		total := 0
		for _, c := range counts {
			topic := c.TopicID
			if topic == "" {
				topic = "-"
			}
			fmt.Printf("%-20s  %-20s  %-8s  %6d\n",
				truncate(c.SubjectID, 20), truncate(topic, 20), c.Difficulty.Label(), c.Count)
			total += c.Count
		}
		fmt.Println(strings.Repeat("─", 60))
		fmt.Printf("%-52s  %6d\n", "TOTAL", total)
		return nil
	},
}

func init() {
	questionsListCmd.Flags().String("subject", "", "Filter by subject ID")
	questionsListCmd.Flags().String("topic", "", "Filter by topic ID")
	questionsListCmd.Flags().IntP("limit", "n", 50, "Number of questions to show")

	questionsCmd.AddCommand(questionsImportCmd)
	questionsCmd.AddCommand(questionsListCmd)
	questionsCmd.AddCommand(questionsStatsCmd)
}
