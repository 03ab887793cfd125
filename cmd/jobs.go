package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillissue/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect prompt optimization jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List optimization jobs, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		jobs, err := s.ListJobs(cmd.Context(), store.JobStatus(status), limit)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No optimization jobs found.")
			return nil
		}

		fmt.Printf("%-36s  %-24s  %5s  %-9s  %6s  %5s  %-19s\n",
			"ID", "Skill", "Level", "Status", "Avg", "Count", "Created")
		fmt.Println(strings.Repeat("─", 118))
		for _, j := range jobs {
			fmt.Printf("%-36s  %-24s  %5d  %-9s  %6.2f  %5d  %-19s\n",
				j.ID, truncate(j.SkillID, 24), j.DifficultyLevel, j.Status, j.AvgRatingAtTrigger,
				j.QuestionsCount, j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var jobsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show one job with its metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		j, err := s.GetJob(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:        %s\n", j.ID)
		fmt.Printf("Key:       %s / level %d\n", j.SkillID, j.DifficultyLevel)
		fmt.Printf("Status:    %s\n", j.Status)
		fmt.Printf("Trigger:   %s\n", j.TriggerReason)
		fmt.Printf("Created:   %s\n", j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		if j.StartedAt != nil {
			fmt.Printf("Started:   %s\n", j.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}
		if j.CompletedAt != nil {
			fmt.Printf("Finished:  %s\n", j.CompletedAt.Local().Format("2006-01-02 15:04:05"))
		}
		if j.ResultPromptVersionID != nil {
			fmt.Printf("Version:   %s\n", *j.ResultPromptVersionID)
		}
		if j.ErrorMessage != nil {
			fmt.Printf("Error:     %s\n", *j.ErrorMessage)
		}

		metrics, err := s.ListOptimizationMetrics(ctx, j.ID)
		if err != nil {
			return fmt.Errorf("list metrics: %w", err)
		}
		if len(metrics) > 0 {
			fmt.Println()
			for _, m := range metrics {
				fmt.Printf("  %-28s %10.4f\n", m.Name, m.Value)
			}
		}
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed)")
	jobsListCmd.Flags().IntP("limit", "n", 50, "Number of jobs to show")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsViewCmd)
}
