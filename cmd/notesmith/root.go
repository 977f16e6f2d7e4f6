package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/notesmith/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "notesmith",
	Short: "Build LaTeX lecture notes from a course corpus",
	Long: "notesmith drafts, enhances and patches lecture notes section by section, " +
		"keeping every generation as a separate layer, and assembles them into one LaTeX document.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("corpus", "", "corpus directory (overrides CORPUS_DIR)")
	rootCmd.PersistentFlags().String("store-dir", "", "registry directory (overrides STORE_DIR)")
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	if v, _ := cmd.Flags().GetString("corpus"); v != "" {
		cfg.CorpusDir = v
	}
	if v, _ := cmd.Flags().GetString("store-dir"); v != "" {
		cfg.StoreDir = v
	}
	return cfg
}

// newLogger writes JSON logs to stderr so stdout stays usable for output.
func newLogger(cmd *cobra.Command) *slog.Logger {
	var level slog.Level
	name, _ := cmd.Flags().GetString("log-level")
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
