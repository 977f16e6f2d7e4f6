package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgallion1/notesmith/internal/retrieval"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the topics the configured retriever knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(cmd)
		cfg := loadConfig(cmd)
		ret, closeRet, err := newRetriever(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeRet()

		stats, err := retrieval.Survey(cmd.Context(), ret, cfg.DiscoveryK)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TOPIC\tTRANSCRIPTS\tEXTRA NOTES\tSLIDES\tOTHER\tTOTAL")
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Topic, s.Transcripts, s.ExtraNotes, s.Slides, s.Other, s.Total())
		}
		return tw.Flush()
	},
}

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the course corpus",
}

var corpusPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Parse the local corpus and publish its passages to pathstore",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(cmd)
		cfg := loadConfig(cmd)
		if cfg.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required")
		}
		idx, err := loadCorpus(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		ps, closePS := newPathstore(cfg, log)
		defer closePS()

		n, err := ps.Publish(cmd.Context(), idx.Items())
		if err != nil {
			return fmt.Errorf("publish after %d passages: %w", n, err)
		}
		fmt.Printf("published %d passages to %s\n", n, cfg.PathstoreURL)
		return nil
	},
}

func init() {
	corpusCmd.AddCommand(corpusPushCmd)
	rootCmd.AddCommand(topicsCmd, corpusCmd)
}
