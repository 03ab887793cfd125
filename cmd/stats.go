package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [learner-id]",
	Short: "Show mastery state per learner and skill",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		rows, err := s.ListCandidates(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%-16s  %-24s  %6s  %8s  %8s  %7s  %-10s  %-19s\n",
			"Learner", "Skill", "Target", "Attempts", "Accuracy", "Streak", "Last", "Last challenged")
		fmt.Println(strings.Repeat("─", 118))
		var shown int
		for _, r := range rows {
			if len(args) == 1 && r.Learner.ID != args[0] {
				continue
			}
			st := r.State
			accuracy := "-"
			if st.AttemptsTotal > 0 {
				accuracy = fmt.Sprintf("%.0f%%", 100*float64(st.CorrectTotal)/float64(st.AttemptsTotal))
			}
			streak := fmt.Sprintf("+%d", st.StreakCorrect)
			if st.StreakIncorrect > 0 {
				streak = fmt.Sprintf("-%d", st.StreakIncorrect)
			}
			last := "-"
			if st.LastResult != nil {
				last = string(*st.LastResult)
			}
			when := "never"
			if st.LastChallengedAt != nil {
				when = st.LastChallengedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-16s  %-24s  %6d  %8d  %8s  %7s  %-10s  %-19s\n",
				truncate(r.Learner.Name, 16), truncate(r.Skill.Name, 24), st.DifficultyTarget,
				st.AttemptsTotal, accuracy, streak, last, when)
			shown++
		}
		if shown == 0 {
			fmt.Println("No enrollments found.")
		}
		return nil
	},
}
