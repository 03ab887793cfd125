package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded LLM requests and their cost",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM requests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")
		since, _ := cmd.Flags().GetDuration("since")
		failed, _ := cmd.Flags().GetBool("failed")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		opts := store.QueryOpts{Limit: limit}
		if since > 0 {
			opts.From = time.Now().Add(-since)
		}
		events, err := s.QueryLLMEvents(cmd.Context(), purpose, opts)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		rows := 0
		for _, e := range events {
			if failed && e.Success {
				continue
			}
			if rows == 0 {
				fmt.Printf("%-6s  %-19s  %-16s  %-28s  %7s  %7s  %6s  %s\n",
					"ID", "Time", "Purpose", "Model", "In", "Out", "Ms", "Result")
				fmt.Println(strings.Repeat("─", 104))
			}
			rows++
			result := "ok"
			if !e.Success {
				result = "FAILED " + truncate(e.ErrorMessage, 40)
			}
			fmt.Printf("%-6d  %-19s  %-16s  %-28s  %7d  %7d  %6d  %s\n",
				e.ID, e.Timestamp.Local().Format("2006-01-02 15:04:05"), truncate(e.Purpose, 16),
				truncate(e.Model, 28), e.InputTokens, e.OutputTokens, e.LatencyMs, result)
		}
		if rows == 0 {
			fmt.Println("No LLM requests recorded.")
		}
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show one recorded request with prompt and response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q", args[0])
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.GetLLMEvent(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get event %d: %w", id, err)
		}

		cost := "unknown model"
		if p := llm.LookupCost(e.Model); p != nil {
			cost = formatCost(p.Cost(e.InputTokens, e.OutputTokens))
		}
		fmt.Printf("Request %d (%s via %s)\n", e.ID, e.Purpose, e.Provider)
		fmt.Printf("  at       %s\n", e.Timestamp.Local().Format(time.RFC3339))
		fmt.Printf("  model    %s\n", e.Model)
		fmt.Printf("  tokens   %d in, %d out (%s)\n", e.InputTokens, e.OutputTokens, cost)
		fmt.Printf("  latency  %dms\n", e.LatencyMs)
		if !e.Success {
			fmt.Printf("  error    %s\n", e.ErrorMessage)
		}

		section("request", e.RequestBody)
		section("response", e.ResponseBody)
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize token usage per purpose and estimated cost per model",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		byPurpose, err := s.LLMUsageByPurpose(ctx)
		if err != nil {
			return fmt.Errorf("usage by purpose: %w", err)
		}
		if len(byPurpose) == 0 {
			fmt.Println("No LLM usage recorded yet.")
			return nil
		}

		var calls, in, out int
		fmt.Printf("%-18s  %6s  %10s  %10s  %8s\n", "Purpose", "Calls", "Input", "Output", "Avg Ms")
		for _, u := range byPurpose {
			fmt.Printf("%-18s  %6d  %10d  %10d  %8d\n", u.Purpose, u.Calls, u.InputTokens, u.OutputTokens, u.AvgLatencyMs)
			calls += u.Calls
			in += u.InputTokens
			out += u.OutputTokens
		}
		fmt.Printf("%-18s  %6d  %10d  %10d\n\n", "total", calls, in, out)

		byModel, err := s.LLMUsageByModel(ctx)
		if err != nil {
			return fmt.Errorf("usage by model: %w", err)
		}
		var total float64
		var unpriced []string
		fmt.Printf("%-32s  %6s  %10s\n", "Model", "Calls", "Cost")
		for _, u := range byModel {
			p := llm.LookupCost(u.Model)
			if p == nil {
				unpriced = append(unpriced, u.Model)
				fmt.Printf("%-32s  %6d  %10s\n", truncate(u.Model, 32), u.Calls, "?")
				continue
			}
			c := p.Cost(u.InputTokens, u.OutputTokens)
			total += c
			fmt.Printf("%-32s  %6d  %10s\n", truncate(u.Model, 32), u.Calls, formatCost(c))
		}
		fmt.Printf("%-32s  %6s  %10s\n", "total", "", formatCost(total))
		if len(unpriced) > 0 {
			fmt.Printf("\nNo pricing for %s; the total leaves them out.\n", strings.Join(unpriced, ", "))
		}
		return nil
	},
}

// section prints a captured body, indenting it when it is JSON.
func section(title, body string) {
	fmt.Printf("\n── %s ──\n", title)
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

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "",
		"Only this purpose ("+strings.Join([]string{
			llm.PurposeChallengeGen, llm.PurposeChallengeJudge,
			llm.PurposeOptimizerSample, llm.PurposePromptRefine,
		}, ", ")+")")
	llmListCmd.Flags().Duration("since", 0, "Only requests newer than this, e.g. 24h")
	llmListCmd.Flags().Bool("failed", false, "Only failed requests")

	llmCmd.AddCommand(llmListCmd, llmViewCmd, llmStatsCmd)
}
