package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillissue/internal/app"
	"github.com/abhisek/skillissue/internal/config"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "skillissue",
	Short:         "Spaced-practice challenge service",
	Long:          "skillissue schedules practice challenges, adapts their difficulty per learner and improves the prompts that generate them.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides database.path and SKILLISSUE_DB)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(learnerCmd)
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config and applies --db on top of it.
func loadConfig(cmd *cobra.Command) (*config.File, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Database.Path = p
	}
	return cfg, nil
}

// resolveDBPath returns the database path using --db (highest priority),
// then the config file or SKILLISSUE_DB, then the default XDG path.
func resolveDBPath(cfg *config.File) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, store.EnsureDir(cfg.Database.Path)
	}
	return store.DefaultDBPath()
}

// openStore opens the database for commands that only need persistence.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

// openApp builds the full service. The caller closes it and syncs the
// logger.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a, err := app.New(cmd.Context(), app.Options{Config: cfg, DBPath: dbPath, Log: log})
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	_ = a.Close()
	a.Log.Sync()
}
