package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillissue/internal/store"
)

var learnerCmd = &cobra.Command{
	Use:   "learner",
	Short: "Manage learners",
}

var learnerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a learner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tz, _ := cmd.Flags().GetString("tz")
		dailyCap, _ := cmd.Flags().GetInt("daily-cap")

		l := &store.Learner{Name: args[0], TimeZone: tz, MaxChallengesPerDay: dailyCap}
		if cmd.Flags().Changed("quiet-start") || cmd.Flags().Changed("quiet-end") {
			start, _ := cmd.Flags().GetInt("quiet-start")
			end, _ := cmd.Flags().GetInt("quiet-end")
			l.QuietHoursStart, l.QuietHoursEnd = &start, &end
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.CreateLearner(cmd.Context(), l); err != nil {
			return err
		}
		fmt.Println(l.ID)
		return nil
	},
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <learner-id> <skill-id>",
	Short: "Start tracking mastery of a skill for a learner",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		difficulty, _ := cmd.Flags().GetInt("difficulty")
		remove, _ := cmd.Flags().GetBool("remove")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if remove {
			if err := s.Unenroll(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Unenrolled.")
			return nil
		}
		st, err := s.Enroll(cmd.Context(), args[0], args[1], difficulty)
		if err != nil {
			return err
		}
		fmt.Printf("Enrolled at difficulty %d.\n", st.DifficultyTarget)
		return nil
	},
}

func parseLevel(v string) (int, error) {
	level, err := strconv.Atoi(v)
	if err != nil || level < 1 || level > 10 {
		return 0, fmt.Errorf("invalid level %q: must be 1-10", v)
	}
	return level, nil
}

func init() {
	learnerAddCmd.Flags().String("tz", "UTC", "IANA time zone used for quiet hours")
	learnerAddCmd.Flags().Int("quiet-start", 22, "Local hour quiet hours begin (0-23)")
	learnerAddCmd.Flags().Int("quiet-end", 7, "Local hour quiet hours end (0-23)")
	learnerAddCmd.Flags().Int("daily-cap", 0, "Maximum challenges per day (0 uses the default)")

	learnerCmd.AddCommand(learnerAddCmd)

	enrollCmd.Flags().Int("difficulty", 3, "Starting difficulty target (1-10)")
	enrollCmd.Flags().Bool("remove", false, "Remove the enrollment instead")
}
