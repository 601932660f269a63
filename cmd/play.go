package cmd

import (
	"fmt"
	"strings"

	"github.com/abhisek/adaptiq/internal/play"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/session"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Take an assessment in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		learner, _ := cmd.Flags().GetString("learner")
		subject, _ := cmd.Flags().GetString("subject")
		topic, _ := cmd.Flags().GetString("topic")
		count, _ := cmd.Flags().GetInt("count")
		limit, _ := cmd.Flags().GetDuration("time")
		start, _ := cmd.Flags().GetString("difficulty")
		fixed, _ := cmd.Flags().GetBool("fixed")

		startAt, err := question.ParseDifficulty(start)
		if err != nil {
			return err
		}

		// Events and results still go to SQLite; remote sinks are for serve.
		rt, err := openRuntime(cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := play.Run(rt.manager, session.Config{
			LearnerID:          learner,
			SubjectID:          subject,
			TopicID:            topic,
			QuestionCount:      count,
			TimeLimitSeconds:   int(limit.Seconds()),
			StartingDifficulty: startAt,
			Adaptive:           !fixed,
		})
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Println("Session left unfinished.")
			return nil
		}

		fmt.Printf("Session %s: %.0f%% (%d/%d correct)\n",
			res.SessionID, res.Score, res.CorrectAnswers, res.TotalQuestions)
		if len(res.Recommendations) > 0 {
			fmt.Println("  " + strings.Join(res.Recommendations, "\n  "))
		}
		return nil
	},
}

func init() {
	playCmd.Flags().String("learner", "local", "Learner ID")
	playCmd.Flags().String("subject", "math", "Subject ID")
	playCmd.Flags().String("topic", "", "Topic ID (empty for any)")
	playCmd.Flags().IntP("count", "n", 10, "Number of questions")
	playCmd.Flags().Duration("time", 0, "Time limit (0 for the configured default)")
	playCmd.Flags().String("difficulty", "easy", "Starting difficulty: easy, medium or hard")
	playCmd.Flags().Bool("fixed", false, "Keep the starting difficulty for the whole session")
}
