package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
	"github.com/maltedev/cj-catalog-scraper/internal/enrich"
	"github.com/maltedev/cj-catalog-scraper/internal/listing"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/progress"
)

const (
	// CategoryIDKey is the task field holding a category URL in progress files.
	CategoryIDKey = "url"
	runFile       = "run_progress.json"
)

type PageOpener interface {
	NewPage() (browser.Page, error)
}

type Crawler interface {
	Crawl(ctx context.Context, page browser.Page, categoryURL string, fn listing.PageFunc) (int, error)
}

type Enricher interface {
	EnrichAll(ctx context.Context, summaries []models.ListingSummary, l enrich.Listing) ([]*models.Product, error)
}

type Saver interface {
	Save(ctx context.Context, product *models.Product) (bool, error)
}

type Options struct {
	// DataDir holds the run-level and per-category progress files.
	DataDir       string
	CategoryDelay time.Duration
	StartIndex    int
}

func DefaultOptions() Options {
	return Options{
		DataDir:       "./data",
		CategoryDelay: 5 * time.Second,
	}
}

type CategoryResult struct {
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Pages    int           `json:"pages"`
	Products int           `json:"products"`
	Saved    int           `json:"saved"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Summary struct {
	RunID      string           `json:"run_id"`
	Total      int              `json:"total"`
	Successful []string         `json:"successful"`
	Failed     []string         `json:"failed"`
	Skipped    []string         `json:"skipped"`
	Categories []CategoryResult `json:"categories"`
	Products   int              `json:"products"`
	Saved      int              `json:"saved"`
}

// Runner walks categories one after another. A failing category is recorded
// and the loop moves on; only cancellation stops the run early.
type Runner struct {
	opener   PageOpener
	crawler  Crawler
	enricher Enricher
	sink     Saver
	opts     Options
	logger   *slog.Logger
}

func NewRunner(opener PageOpener, crawler Crawler, enricher Enricher, sink Saver, opts Options, logger *slog.Logger) *Runner {
	if opts.DataDir == "" {
		opts.DataDir = DefaultOptions().DataDir
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		opener:   opener,
		crawler:  crawler,
		enricher: enricher,
		sink:     sink,
		opts:     opts,
		logger:   logger.With("component", "pipeline"),
	}
}

// RunTracker opens the run-level progress file of completed category URLs.
func (r *Runner) RunTracker() (*progress.Tracker, error) {
	return progress.New(RunProgressFile(r.opts.DataDir), CategoryIDKey)
}

// RunProgressFile is the run-level progress path under dataDir. Its name never
// collides with the per-category progress_*.json files.
func RunProgressFile(dataDir string) string {
	return filepath.Join(dataDir, runFile)
}

func (r *Runner) Run(ctx context.Context, categories []models.Category) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString(), Total: len(categories)}
	logger := r.logger.With("run_id", summary.RunID)

	run, err := r.RunTracker()
	if err != nil {
		return summary, err
	}

	start := min(max(r.opts.StartIndex, 0), len(categories))
	logger.Info("starting run", "categories", len(categories), "start_index", start)

	for i := start; i < len(categories); i++ {
		category := categories[i]

		if run.IsDone(category.URL) {
			logger.Info("category already done, skipping", "category", category.Name)
			summary.Skipped = append(summary.Skipped, category.Name)
			continue
		}

		logger.Info("processing category",
			"index", i+1,
			"total", len(categories),
			"category", category.Name,
			"url", category.URL)

		result, err := r.runCategory(ctx, category)
		summary.Categories = append(summary.Categories, result)
		summary.Products += result.Products
		summary.Saved += result.Saved

		if err != nil {
			summary.Failed = append(summary.Failed, category.Name)
			logger.Error("category failed", "category", category.Name, "error", err)
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
		} else {
			summary.Successful = append(summary.Successful, category.Name)
			if err := run.MarkID(category.URL); err != nil {
				logger.Warn("failed to record run progress", "category", category.Name, "error", err)
			}
		}

		if i < len(categories)-1 {
			if err := browser.Sleep(ctx, r.opts.CategoryDelay); err != nil && ctx.Err() != nil {
				return summary, ctx.Err()
			}
		}
	}

	logger.Info("run finished",
		"total", summary.Total,
		"successful", len(summary.Successful),
		"failed", len(summary.Failed),
		"skipped", len(summary.Skipped),
		"products", summary.Products,
		"saved", summary.Saved)

	return summary, nil
}

func (r *Runner) runCategory(ctx context.Context, category models.Category) (CategoryResult, error) {
	started := time.Now()
	result := CategoryResult{Name: category.Name, URL: category.URL}
	fail := func(err error) (CategoryResult, error) {
		result.Err = err.Error()
		result.Duration = time.Since(started)
		return result, err
	}

	if category.URL == "" {
		return fail(errors.New("category has no url"))
	}

	tracker, err := progress.New(progress.FileFor(r.opts.DataDir, category.Name), CategoryIDKey)
	if err != nil {
		return fail(err)
	}
	task := progress.Task{CategoryIDKey: category.URL, "name": category.Name}
	if len(tracker.Pending([]progress.Task{task})) == 0 {
		r.logger.Info("category progress file marks it done", "category", category.Name)
		result.Duration = time.Since(started)
		return result, nil
	}

	page, err := r.opener.NewPage()
	if err != nil {
		return fail(fmt.Errorf("failed to open listing page: %w", err))
	}
	defer page.Close()

	l := enrich.Listing{Category: category.Name, Country: listing.CountryOf(category.URL)}

	pages, err := r.crawler.Crawl(ctx, page, category.URL, func(ctx context.Context, pageNum int, summaries []models.ListingSummary) error {
		products, err := r.enricher.EnrichAll(ctx, summaries, l)
		saveErr := r.saveAll(ctx, products, &result)
		if err != nil {
			return fmt.Errorf("page %d: %w", pageNum, err)
		}
		if saveErr != nil {
			return fmt.Errorf("page %d: %w", pageNum, saveErr)
		}

		r.logger.Info("listing page done",
			"category", category.Name,
			"page", pageNum,
			"summaries", len(summaries),
			"products", len(products))
		return nil
	})
	result.Pages = pages
	if err != nil {
		return fail(err)
	}

	if err := tracker.MarkDone(task); err != nil {
		return fail(err)
	}

	result.Duration = time.Since(started)
	return result, nil
}

// saveAll stores every product. Invalid or failed saves are logged; a lost
// context is returned.
func (r *Runner) saveAll(ctx context.Context, products []*models.Product, result *CategoryResult) error {
	for _, p := range products {
		result.Products++
		saved, err := r.sink.Save(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to save product", "pid", p.PID, "error", err)
			continue
		}
		if saved {
			result.Saved++
		}
	}
	return nil
}
