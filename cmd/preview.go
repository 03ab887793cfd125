package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillissue/internal/challengegen"
	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/promptopt"
)

var previewCmd = &cobra.Command{
	Use:   "preview <skill-name>",
	Short: "Preview LLM-generated challenges for a skill (no database)",
	Long: `Generate and interactively answer challenges for a skill at one difficulty level.

This is a stateless developer tool: no database, no mastery tracking, no events.
Useful for evaluating challenge quality before a skill goes live.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().String("description", "", "Skill description used in the prompt")
	previewCmd.Flags().Int("level", 3, "Difficulty level (1-10)")
	previewCmd.Flags().Int("count", 5, "Number of challenges to generate")
	previewCmd.Flags().Bool("judge", false, "Score each challenge with the quality judge")
}

func runPreview(cmd *cobra.Command, args []string) error {
	desc, _ := cmd.Flags().GetString("description")
	level, _ := cmd.Flags().GetInt("level")
	count, _ := cmd.Flags().GetInt("count")
	judge, _ := cmd.Flags().GetBool("judge")
	if _, err := parseLevel(strconv.Itoa(level)); err != nil {
		return err
	}

	lc, ok := llm.ConfigFromEnvOrDiscover()
	if !ok {
		return fmt.Errorf("LLM provider: no API key found in the environment")
	}
	if err := lc.Validate(); err != nil {
		return fmt.Errorf("LLM provider: %w", err)
	}
	ctx := cmd.Context()
	provider, err := llm.NewProvider(ctx, lc, nil, logger.Nop())
	if err != nil {
		return fmt.Errorf("LLM provider: %w", err)
	}

	gen := challengegen.New(provider, nil, challengegen.DefaultConfig())
	j := promptopt.NewJudge(provider)
	skill := promptopt.SkillInfo{Name: args[0], Description: desc}
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Printf("Skill: %s, level %d (%s)\n", skill.Name, level, challengegen.DifficultyDescription(level))
	fmt.Printf("Generating %d challenges...\n\n", count)

	var correct int
	var prior []string
	for i := 1; i <= count; i++ {
		c, err := gen.Generate(ctx, challengegen.Input{
			SkillName:        skill.Name,
			SkillDescription: skill.Description,
			Difficulty:       level,
			PriorQuestions:   prior,
		})
		if err != nil {
			fmt.Printf("Challenge %d: generation failed: %v\n\n", i, err)
			continue
		}
		prior = append(prior, c.Question)

		fmt.Printf("── Challenge %d/%d ──\n", i, count)
		fmt.Println(c.Question)
		for k, o := range c.Options {
			fmt.Printf("  %d) %s\n", k+1, o)
		}

		fmt.Print("\nYour answer: ")
		if !scanner.Scan() {
			fmt.Println("\n(input closed)")
			break
		}
		answer := strings.TrimSpace(scanner.Text())
		if n, err := strconv.Atoi(answer); err != nil || n < 1 || n > len(c.Options) {
			fmt.Println("(skipped)")
		} else if n-1 == c.CorrectIndex {
			correct++
			fmt.Println("\033[32m✓ Correct!\033[0m")
		} else {
			fmt.Printf("\033[31m✗ Wrong.\033[0m Answer: %d\n", c.CorrectIndex+1)
		}
		if c.Explanation != "" {
			fmt.Printf("Explanation: %s\n", c.Explanation)
		}

		if judge {
			ev := j.Evaluate(ctx, c, skill, level)
			fmt.Printf("Judge: %.2f (passed=%v)\n", ev.Composite, ev.Passed)
			for _, d := range promptopt.Dimensions {
				fmt.Printf("  %-22s %4.2f  %s\n", d, ev.Scores[d], ev.Reasons[d])
			}
		}
		fmt.Println()
	}

	fmt.Printf("── Summary: %d/%d correct ──\n", correct, count)
	return nil
}
