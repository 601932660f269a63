package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abhisek/adaptiq/internal/llm"
	"github.com/abhisek/adaptiq/internal/store"
	"github.com/spf13/cobra"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect question generation and narrative calls",
}

var llmCallsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List recorded model calls, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := llmQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		calls, err := st.Events().QueryLLMRequests(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("query calls: %w", err)
		}
		if len(calls) == 0 {
			fmt.Println("No matching calls.")
			return nil
		}

		fmt.Printf("%-5s  %-11s  %-16s  %-24s  %13s  %7s  %s\n",
			"ID", "When", "Purpose", "Model", "Tokens in/out", "Latency", "Status")
		fmt.Println(strings.Repeat("─", 100))
		for _, c := range calls {
			fmt.Printf("%-5d  %-11s  %-16s  %-24s  %13s  %7s  %s\n",
				c.ID,
				c.Timestamp.Local().Format("01-02 15:04"),
				c.Purpose,
				truncate(c.Model, 24),
				fmt.Sprintf("%d/%d", c.InputTokens, c.OutputTokens),
				(time.Duration(c.LatencyMs) * time.Millisecond).String(),
				callStatus(c, 20))
		}
		return nil
	},
}

var llmShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the prompt and reply of one call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid call id %q", args[0])
		}
		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		c, err := st.Events().GetLLMRequest(cmd.Context(), id)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("no call with id %d", id)
		}

		usage := store.LLMUsage{Model: c.Model, InputTokens: c.InputTokens, OutputTokens: c.OutputTokens}
		cost := "unknown"
		if usd, ok := usage.Cost(); ok {
			cost = formatCost(usd)
		}
		fmt.Printf("Call %d  %s  %s/%s  %s\n", c.ID, c.Timestamp.Local().Format(time.DateTime), c.Provider, c.Model, c.Purpose)
		fmt.Printf("%d in, %d out, %dms, cost %s, %s\n", c.InputTokens, c.OutputTokens, c.LatencyMs, cost, callStatus(*c, 0))

		printBody("Prompt", c.RequestBody)
		printBody("Reply", c.ResponseBody)
		return nil
	},
}

var llmUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show calls, failures, tokens and estimated cost per purpose",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := sinceFlag(cmd)
		if err != nil {
			return err
		}
		st, err := storeFromFlags(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.Events().UsageBreakdown(cmd.Context(), since)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No calls recorded in this period.")
			return nil
		}

		fmt.Printf("%-26s  %5s  %6s  %10s  %10s  %7s  %9s\n",
			"Purpose / model", "Calls", "Failed", "In", "Out", "Avg ms", "Cost")
		fmt.Println(strings.Repeat("─", 86))

		var (
			sub, total store.LLMUsage
			subCost    float64
			totalCost  float64
			unpriced   []string
		)
		flush := func() {
			if sub.Purpose == "" {
				return
			}
			fmt.Printf("%-26s  %5d  %6d  %10d  %10d  %7s  %9s\n",
				sub.Purpose, sub.Calls, sub.Failed, sub.InputTokens, sub.OutputTokens, "", formatCost(subCost))
		}
		for i, u := range rows {
			if i == 0 || u.Purpose != rows[i-1].Purpose {
				flush()
				sub, subCost = store.LLMUsage{Purpose: u.Purpose}, 0
			}
			cost := "?"
			if usd, ok := u.Cost(); ok {
				cost = formatCost(usd)
				subCost += usd
				totalCost += usd
			} else {
				unpriced = append(unpriced, u.Model)
			}
			fmt.Printf("  %-24s  %5d  %6d  %10d  %10d  %7d  %9s\n",
				truncate(u.Model, 24), u.Calls, u.Failed, u.InputTokens, u.OutputTokens, u.AvgLatencyMs, cost)
			for _, acc := range []*store.LLMUsage{&sub, &total} {
				acc.Calls += u.Calls
				acc.Failed += u.Failed
				acc.InputTokens += u.InputTokens
				acc.OutputTokens += u.OutputTokens
			}
		}
		flush()

		fmt.Println(strings.Repeat("─", 86))
		fmt.Printf("%-26s  %5d  %6d  %10d  %10d  %7s  %9s\n",
			"all purposes", total.Calls, total.Failed, total.InputTokens, total.OutputTokens, "", formatCost(totalCost))
		if len(unpriced) > 0 {
			fmt.Printf("\nCost excludes models without pricing: %s\n", strings.Join(unpriced, ", "))
		}
		return nil
	},
}

func llmQueryFromFlags(cmd *cobra.Command) (store.LLMQuery, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	purpose, _ := cmd.Flags().GetString("purpose")
	failed, _ := cmd.Flags().GetBool("failed")
	since, err := sinceFlag(cmd)
	if err != nil {
		return store.LLMQuery{}, err
	}
	switch purpose {
	case "", llm.PurposeQuestionGen, llm.PurposeNarrative:
	default:
		return store.LLMQuery{}, fmt.Errorf("--purpose must be %s or %s", llm.PurposeQuestionGen, llm.PurposeNarrative)
	}
	return store.LLMQuery{
		QueryOpts:  store.QueryOpts{Limit: limit, From: since},
		Purpose:    purpose,
		FailedOnly: failed,
	}, nil
}

// sinceFlag turns --since into a cutoff. Zero means no cutoff.
func sinceFlag(cmd *cobra.Command) (time.Time, error) {
	d, _ := cmd.Flags().GetDuration("since")
	if d < 0 {
		return time.Time{}, fmt.Errorf("--since must not be negative")
	}
	if d == 0 {
		return time.Time{}, nil
	}
	return time.Now().Add(-d), nil
}

// callStatus renders "ok" or the error, cut to n runes when n > 0.
func callStatus(c store.LLMRequest, n int) string {
	if c.Success {
		return "ok"
	}
	msg := c.ErrorMessage
	if msg == "" {
		msg = "failed"
	}
	if n > 0 {
		msg = truncate(msg, n)
	}
	return "error: " + msg
}

// printBody prints a captured body, indenting it when it is JSON.
func printBody(title, body string) {
	fmt.Printf("\n── %s %s\n", title, strings.Repeat("─", 56-len(title)))
	if body == "" {
		fmt.Println("(not captured)")
		return
	}
	var buf bytes.Buffer
	if json.Indent(&buf, []byte(body), "", "  ") == nil {
		body = buf.String()
	}
	fmt.Println(body)
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmCallsCmd.Flags().IntP("limit", "n", 20, "Number of calls to show")
	llmCallsCmd.Flags().StringP("purpose", "p", "", "Only calls for "+llm.PurposeQuestionGen+" or "+llm.PurposeNarrative)
	llmCallsCmd.Flags().Bool("failed", false, "Only failed calls")
	llmCallsCmd.Flags().Duration("since", 0, "Only calls within this long ago, e.g. 24h")
	llmUsageCmd.Flags().Duration("since", 0, "Only calls within this long ago, e.g. 168h")

	llmCmd.AddCommand(llmCallsCmd)
	llmCmd.AddCommand(llmShowCmd)
	llmCmd.AddCommand(llmUsageCmd)
}
