package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <doc-id>",
	Short: "Print the assembled LaTeX document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(cmd)
		a, err := newApp(cmd.Context(), loadConfig(cmd), nil, false, log)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.runner.Assemble(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, title := range res.Skipped {
			log.Warn("section skipped", "title", title)
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" || out == "-" {
			_, err = os.Stdout.WriteString(res.Text)
			return err
		}
		if err := os.WriteFile(out, []byte(res.Text), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		log.Info("document written", "path", out, "sections", len(res.Parts))
		return nil
	},
}

var issuesCmd = &cobra.Command{
	Use:   "issues <doc-id>",
	Short: "List validation issues recorded for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), loadConfig(cmd), nil, false, newLogger(cmd))
		if err != nil {
			return err
		}
		defer a.Close()

		reg, err := a.runner.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ds, err := reg.Diagnostics(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ds)
		}
		if len(ds) == 0 {
			fmt.Println("no issues")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SECTION\tLAYER\tISSUE")
		for _, d := range ds {
			for _, is := range d.Issues {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Title, d.Layer, is)
			}
		}
		return tw.Flush()
	},
}

func init() {
	assembleCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	issuesCmd.Flags().Bool("json", false, "print diagnostics as JSON")
	rootCmd.AddCommand(assembleCmd, issuesCmd)
}
