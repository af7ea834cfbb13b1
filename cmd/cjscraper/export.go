package main

import (
	"github.com/spf13/cobra"

	"github.com/maltedev/cj-catalog-scraper/internal/database"
	"github.com/maltedev/cj-catalog-scraper/internal/imagehost"
	"github.com/maltedev/cj-catalog-scraper/internal/sink"
)

func exportCommand() *cobra.Command {
	var rehost bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Flatten stored documents into the product and stock/price tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			exporter, closeExporter := newExporter(db, rehost || cfg.ImageHost.Enabled)
			defer closeExporter()

			stats, err := exporter.Export(ctx)
			printJSON(stats)
			return err
		},
	}

	cmd.Flags().BoolVar(&rehost, "rehost", false, "upload main images to the image host (default imagehost.enabled)")
	return cmd
}

// newExporter wires the exporter to Postgres and, when asked, the image host.
func newExporter(db *database.DB, rehost bool) (*sink.Exporter, func()) {
	exporter := sink.NewExporter(
		database.NewDocumentRepository(db),
		database.NewExportRepository(db, logger),
		sink.ExportOptions{BatchSize: cfg.Export.BatchSize, Status: cfg.Export.Status},
		logger,
	)

	if !rehost {
		return exporter, func() {}
	}
	if cfg.ImageHost.Token == "" {
		logger.Warn("image rehosting requested but IMAGEHOST_TOKEN is empty, keeping source urls")
		return exporter, func() {}
	}

	uploader := imagehost.NewUploader(imagehost.Config{
		URL:        cfg.ImageHost.URL,
		Token:      cfg.ImageHost.Token,
		Category:   cfg.ImageHost.Category,
		MaxRetries: cfg.ImageHost.MaxRetries,
		Timeout:    cfg.ImageHost.Timeout,
	}, logger)
	exporter.WithRehoster(uploader)

	return exporter, func() { _ = uploader.Close() }
}
