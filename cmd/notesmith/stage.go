package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/notesmith/internal/section"
	"github.com/dgallion1/notesmith/internal/stage"
)

var stageCmd = &cobra.Command{
	Use:   "stage <skeleton|enhance|patch|all> <doc-id>",
	Short: "Run a stage against a document",
	Long: "Runs one stage synchronously and prints its result as JSON. " +
		"\"all\" runs skeleton, enhance and patch in order.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stages := []stage.Stage{stage.Skeleton, stage.Enhance, stage.Patch}
		if args[0] != "all" {
			st, err := section.ParseStage(args[0])
			if err != nil {
				return err
			}
			stages = []stage.Stage{st}
		}
		docID := args[1]

		log := newLogger(cmd).With("doc_id", docID)
		cfg := loadConfig(cmd)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, nil, true, log)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := describe(cmd, a, docID); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, st := range stages {
			res, err := a.runner.Run(ctx, st, docID)
			if err != nil {
				return fmt.Errorf("%s: %w", st, err)
			}
			if err := enc.Encode(res); err != nil {
				return err
			}
		}
		return nil
	},
}

// describe records course metadata given on the command line.
func describe(cmd *cobra.Command, a *app, docID string) error {
	course, _ := cmd.Flags().GetString("course")
	module, _ := cmd.Flags().GetString("module")
	lesson, _ := cmd.Flags().GetString("lesson")
	if course == "" && module == "" && lesson == "" {
		return nil
	}
	reg, err := a.runner.Open(cmd.Context(), docID)
	if err != nil {
		return err
	}
	info := reg.Info()
	if course != "" {
		info.Course = course
	}
	if module != "" {
		info.Module = module
	}
	if lesson != "" {
		info.Lesson = lesson
	}
	return a.runner.Describe(cmd.Context(), docID, info)
}

func init() {
	stageCmd.Flags().String("course", "", "course name for prompts and the preamble")
	stageCmd.Flags().String("module", "", "module name for prompts and the preamble")
	stageCmd.Flags().String("lesson", "", "lesson name for the preamble")
	rootCmd.AddCommand(stageCmd)
}
