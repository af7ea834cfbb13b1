package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
	"github.com/maltedev/cj-catalog-scraper/internal/captcha"
	"github.com/maltedev/cj-catalog-scraper/internal/color"
	"github.com/maltedev/cj-catalog-scraper/internal/database"
	"github.com/maltedev/cj-catalog-scraper/internal/discovery"
	"github.com/maltedev/cj-catalog-scraper/internal/enrich"
	"github.com/maltedev/cj-catalog-scraper/internal/listing"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/parser"
	"github.com/maltedev/cj-catalog-scraper/internal/pipeline"
	"github.com/maltedev/cj-catalog-scraper/internal/ratelimit"
	"github.com/maltedev/cj-catalog-scraper/internal/shipping"
	"github.com/maltedev/cj-catalog-scraper/internal/sink"
)

func scrapeCommand() *cobra.Command {
	var (
		startIndex    int
		maxConcurrent int
		snapshot      string
		rediscover    bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Crawl every category and store enriched products",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if snapshot == "" {
				snapshot = cfg.Scraper.SnapshotFile
			}
			if maxConcurrent < 1 {
				maxConcurrent = cfg.Scraper.MaxConcurrent
			}

			b, err := openBrowser()
			if err != nil {
				return err
			}
			defer b.Close()

			gate, solver := newGate()
			defer solver.Close()

			rules := parser.DefaultRules()
			catalog := parser.NewCatalogParser(rules)

			categories, err := loadCategories(cmd, b, gate, rules, snapshot, rediscover)
			if err != nil {
				return err
			}

			listingOpts := listing.DefaultOptions()
			listingOpts.CardTimeout = cfg.Scraper.CardTimeout
			limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.PageDelayMin, cfg.Scraper.PageDelayMax)
			paginator := listing.NewPaginator(gate, catalog, limiter, listingOpts, logger)

			quotes := shipping.NewClient(shipping.ClientConfig{
				URL:               cfg.Logistics.URL,
				Platform:          cfg.Logistics.Platform,
				StartCountry:      cfg.Logistics.StartCountry,
				ShipTo:            cfg.Scraper.Country,
				RequestsPerSecond: cfg.Logistics.RequestsPerSecond,
				Timeout:           cfg.Logistics.Timeout,
			}, logger)
			defer quotes.Close()

			cache, err := color.OpenCache(cfg.Color.CacheFile)
			if err != nil {
				return err
			}
			classifier := color.NewLLMClassifier(color.LLMConfig{
				URL:         cfg.Color.APIURL,
				APIKey:      cfg.Color.APIKey,
				Model:       cfg.Color.Model,
				Temperature: cfg.Color.Temperature,
				Timeout:     cfg.Color.Timeout,
			}, logger)
			defer classifier.Close()

			var colors color.Classifier = classifier
			if cfg.Color.APIKey == "" {
				logger.Warn("no color API key configured, unknown colors fall back to Multicolor")
				colors = nil
			}
			resolver := color.NewResolver(cache, colors, logger)

			enrichOpts := enrich.DefaultOptions()
			enrichOpts.MaxConcurrent = maxConcurrent
			enrichOpts.ShippingThreshold = cfg.Scraper.ShippingThreshold
			enrichOpts.InventoryCountry = cfg.Scraper.Country
			enrichOpts.ShipToCountry = cfg.Scraper.Country
			enrichOpts.DescriptionTimeout = cfg.Scraper.DescriptionTimeout
			enrichOpts.DetailDelayMin = cfg.Scraper.DetailDelayMin
			enrichOpts.DetailDelayMax = cfg.Scraper.DetailDelayMax
			enricher := enrich.New(b, gate, catalog, quotes, resolver, enrichOpts, logger)

			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			store := sink.New(database.NewDocumentRepository(db), logger).WithReconnect(db)

			runner := pipeline.NewRunner(b, paginator, enricher, store, pipeline.Options{
				DataDir:       cfg.Scraper.DataDir,
				CategoryDelay: cfg.Scraper.CategoryDelay,
				StartIndex:    startIndex,
			}, logger)

			summary, err := runner.Run(ctx, categories)
			if summary != nil {
				printJSON(summary)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&startIndex, "start-index", 0, "skip categories before this position in the list")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "detail pages open at once (default scraper.max_concurrent)")
	cmd.Flags().StringVar(&snapshot, "categories", "", "category snapshot file (default scraper.snapshot_file)")
	cmd.Flags().BoolVar(&rediscover, "rediscover", false, "refresh the category tree before crawling")
	return cmd
}

// loadCategories reads the snapshot and falls back to live discovery when it
// is missing or a refresh was asked for.
func loadCategories(cmd *cobra.Command, b *browser.Browser, gate *captcha.Gate, rules parser.Rules, snapshot string, rediscover bool) ([]models.Category, error) {
	if !rediscover {
		categories, err := discovery.LoadSnapshot(snapshot)
		if err == nil && len(categories) > 0 {
			logger.Info("loaded category snapshot", "path", snapshot, "categories", len(categories))
			return categories, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to read category snapshot", "path", snapshot, "error", err)
		}
	}

	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	opts := discovery.DefaultOptions()
	opts.BaseURL = cfg.Scraper.BaseURL
	opts.SnapshotPath = snapshot

	categories, err := discovery.New(gate, rules, opts, logger).Resolve(cmd.Context(), page)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve categories: %w", err)
	}
	return categories, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("failed to print result", "error", err)
	}
}
