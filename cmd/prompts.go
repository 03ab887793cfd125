package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage challenge prompt versions",
}

var promptsListCmd = &cobra.Command{
	Use:   "list <skill-id> <level>",
	Short: "List prompt versions for a skill and difficulty level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(args[1])
		if err != nil {
			return err
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		versions, err := s.ListPromptVersions(cmd.Context(), args[0], level)
		if err != nil {
			return fmt.Errorf("list prompt versions: %w", err)
		}
		if len(versions) == 0 {
			fmt.Println("No prompt versions yet; the base template is in use.")
			return nil
		}

		fmt.Printf("%4s  %-36s  %-8s  %6s  %8s  %8s  %8s  %-19s\n",
			"Ver", "ID", "Status", "Active", "Baseline", "Score", "Improve", "Created")
		fmt.Println(strings.Repeat("─", 110))
		for _, v := range versions {
			active := ""
			if v.IsActive {
				active = "✓"
			}
			fmt.Printf("%4d  %-36s  %-8s  %6s  %8.3f  %8.3f  %7.1f%%  %-19s\n",
				v.Version, v.ID, v.Status, active, v.BaselineScore, v.CurrentScore, v.ImprovementPercent,
				v.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <version-id>",
	Short: "Print a prompt version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		v, err := s.GetPromptVersion(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Key:      %s / level %d, version %d (%s, active=%v)\n",
			v.SkillID, v.DifficultyLevel, v.Version, v.Status, v.IsActive)
		fmt.Println(strings.Repeat("─", 60))
		fmt.Println(v.Content)
		return nil
	},
}

var promptsActivateCmd = &cobra.Command{
	Use:   "activate <version-id>",
	Short: "Deploy a prompt version, deactivating the current one for its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		v, err := s.ActivatePromptVersion(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("activate prompt version: %w", err)
		}
		fmt.Printf("Version %d is now active for %s / level %d.\n", v.Version, v.SkillID, v.DifficultyLevel)
		return nil
	},
}

func init() {
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsActivateCmd)
}
