package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillissue/internal/store"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage practiceable skills",
}

var skillAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		sk := &store.Skill{Name: args[0], Description: desc, Active: true}
		if err := s.CreateSkill(cmd.Context(), sk); err != nil {
			return err
		}
		fmt.Println(sk.ID)
		return nil
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		skills, err := s.ListSkills(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%-36s  %-30s  %-6s  %s\n", "ID", "Name", "Active", "Description")
		fmt.Println(strings.Repeat("─", 115))
		for _, sk := range skills {
			active := "no"
			if sk.Active {
				active = "yes"
			}
			desc := sk.Description
			if len(desc) > 36 {
				desc = desc[:33] + "..."
			}
			fmt.Printf("%-36s  %-30s  %-6s  %s\n", sk.ID, truncate(sk.Name, 30), active, desc)
		}

		fmt.Printf("\n%d skills\n", len(skills))
		return nil
	},
}

func skillToggleCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <skill-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.SetSkillActive(cmd.Context(), args[0], active)
		},
	}
}

func init() {
	skillAddCmd.Flags().String("description", "", "What the skill covers; used in generation prompts")

	skillCmd.AddCommand(skillAddCmd)
	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(skillToggleCmd("activate", "Make a skill eligible for challenges", true))
	skillCmd.AddCommand(skillToggleCmd("deactivate", "Stop challenging a skill", false))
}
