package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduling pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		decisions := a.Scheduler.Tick(cmd.Context())
		if len(decisions) == 0 {
			fmt.Println("No learner due for a challenge.")
			return nil
		}
		for _, d := range decisions {
			fmt.Printf("challenged %s on %s at level %d (%s)\n", d.LearnerID, d.SkillID, d.DifficultyTarget, d.Reason)
		}
		return nil
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Detect underperforming prompts and process the job queue once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if a.Provider == nil {
			fmt.Println("No LLM provider configured: jobs are detected but not processed.")
		}
		sum := a.Optimizer.Run(cmd.Context())
		fmt.Printf("stale %d, running %d, claimed %d, completed %d, failed %d, deployed %d\n",
			sum.Stale, sum.Running, sum.Claimed, sum.Completed, sum.Failed, sum.Deployed)
		return nil
	},
}
