package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillissue/internal/store"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Issue, answer and rate challenges",
}

var challengeIssueCmd = &cobra.Command{
	Use:   "issue <learner-id> <skill-id>",
	Short: "Issue a challenge now, bypassing the scheduler's gates",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		ctx := cmd.Context()
		difficulty, _ := cmd.Flags().GetInt("difficulty")
		if difficulty == 0 {
			st, err := a.Store.GetUserSkillState(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			difficulty = st.DifficultyTarget
		}

		c, err := a.Challenges.Issue(ctx, args[0], args[1], difficulty)
		if err != nil {
			return err
		}
		printChallenge(c)
		return nil
	},
}

var challengeListCmd = &cobra.Command{
	Use:   "list <learner-id>",
	Short: "List a learner's challenges, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		challenges, err := s.ListChallenges(cmd.Context(), args[0], store.QueryOpts{Limit: limit})
		if err != nil {
			return err
		}
		if len(challenges) == 0 {
			fmt.Println("No challenges found.")
			return nil
		}

		fmt.Printf("%-36s  %-19s  %5s  %-10s  %6s  %s\n", "ID", "Issued", "Level", "State", "Rating", "Question")
		fmt.Println(strings.Repeat("─", 120))
		for _, c := range challenges {
			rating := "-"
			if c.Rating != nil {
				rating = strconv.Itoa(*c.Rating)
			}
			fmt.Printf("%-36s  %-19s  %5d  %-10s  %6s  %s\n",
				c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04:05"), c.Difficulty, challengeState(&c),
				rating, truncate(c.Question, 40))
		}
		return nil
	},
}

var challengeAnswerCmd = &cobra.Command{
	Use:   "answer <challenge-id> <option>",
	Short: "Answer a challenge with option 1-4",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		option, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid option %q: %w", args[1], err)
		}
		ms, _ := cmd.Flags().GetInt64("ms")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		res, err := a.Challenges.Answer(cmd.Context(), args[0], option-1, ms)
		if err != nil {
			return err
		}
		if res.Correct {
			fmt.Println("\033[32m✓ Correct!\033[0m")
		} else {
			fmt.Printf("\033[31m✗ Wrong.\033[0m Answer: %d) %s\n",
				res.Challenge.CorrectIndex+1, res.Challenge.Options[res.Challenge.CorrectIndex])
		}
		if res.Challenge.Explanation != "" {
			fmt.Printf("Explanation: %s\n", res.Challenge.Explanation)
		}
		fmt.Printf("Difficulty target: %d (%s)\n", res.Outcome.DifficultyTarget, res.Outcome.Reason)
		return nil
	},
}

var challengeRateCmd = &cobra.Command{
	Use:   "rate <challenge-id> <1-5>",
	Short: "Rate the quality of a challenge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid rating %q: %w", args[1], err)
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.Challenges.Rate(cmd.Context(), args[0], rating)
	},
}

func challengeState(c *store.Challenge) string {
	switch {
	case c.Answered() && c.Correct != nil && *c.Correct:
		return "correct"
	case c.Answered():
		return "incorrect"
	case c.ExpiredAt != nil:
		return "expired"
	default:
		return "pending"
	}
}

func printChallenge(c *store.Challenge) {
	fmt.Printf("── Challenge %s (level %d) ──\n", c.ID, c.Difficulty)
	fmt.Println(c.Question)
	for i, o := range c.Options {
		fmt.Printf("  %d) %s\n", i+1, o)
	}
}

func init() {
	challengeIssueCmd.Flags().Int("difficulty", 0, "Difficulty level (0 uses the learner's current target)")
	challengeListCmd.Flags().IntP("limit", "n", 20, "Number of challenges to show")
	challengeAnswerCmd.Flags().Int64("ms", 0, "Response time in milliseconds")

	challengeCmd.AddCommand(challengeIssueCmd)
	challengeCmd.AddCommand(challengeListCmd)
	challengeCmd.AddCommand(challengeAnswerCmd)
	challengeCmd.AddCommand(challengeRateCmd)
}
