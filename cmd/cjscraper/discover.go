package main

import (
	"github.com/spf13/cobra"

	"github.com/maltedev/cj-catalog-scraper/internal/discovery"
	"github.com/maltedev/cj-catalog-scraper/internal/parser"
)

func discoverCommand() *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover the category tree and refresh the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshot == "" {
				snapshot = cfg.Scraper.SnapshotFile
			}

			b, err := openBrowser()
			if err != nil {
				return err
			}
			defer b.Close()

			gate, solver := newGate()
			defer solver.Close()

			page, err := b.NewPage()
			if err != nil {
				return err
			}
			defer page.Close()

			opts := discovery.DefaultOptions()
			opts.BaseURL = cfg.Scraper.BaseURL
			opts.SnapshotPath = snapshot

			categories, err := discovery.New(gate, parser.DefaultRules(), opts, logger).Resolve(cmd.Context(), page)
			if err != nil {
				return err
			}

			logger.Info("category discovery finished", "categories", len(categories), "snapshot", snapshot)
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshot, "snapshot", "", "snapshot file to write (default scraper.snapshot_file)")
	return cmd
}
