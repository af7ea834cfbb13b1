package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
	"github.com/maltedev/cj-catalog-scraper/internal/captcha"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/parser"
	"github.com/maltedev/cj-catalog-scraper/internal/shipping"
)

type PageOpener interface {
	NewPage() (browser.Page, error)
}

type Navigator interface {
	Navigate(ctx context.Context, page browser.Page, url string) error
}

type QuoteClient interface {
	Quote(ctx context.Context, token string, req shipping.QuoteRequest) ([]models.ShippingOption, error)
}

type ColorResolver interface {
	Resolve(ctx context.Context, label string) string
}

// Observer is told when detail pages open and close.
type Observer interface {
	PageOpened(url string)
	PageClosed(url string)
}

type Options struct {
	MaxConcurrent      int
	ShippingThreshold  int
	InventoryCountry   string
	ShipToCountry      string
	DescriptionTimeout time.Duration
	DetailDelayMin     time.Duration
	DetailDelayMax     time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConcurrent:      3,
		ShippingThreshold:  5,
		InventoryCountry:   "US",
		ShipToCountry:      "US",
		DescriptionTimeout: 35 * time.Second,
		DetailDelayMin:     200 * time.Millisecond,
		DetailDelayMax:     600 * time.Millisecond,
	}
}

// Listing is the context a summary was found in.
type Listing struct {
	Category string
	Country  string
}

type Enricher struct {
	opener   PageOpener
	nav      Navigator
	parser   *parser.CatalogParser
	quotes   QuoteClient
	colors   ColorResolver
	observer Observer
	sem      *semaphore.Weighted
	opts     Options
	logger   *slog.Logger
}

func New(opener PageOpener, nav Navigator, p *parser.CatalogParser, quotes QuoteClient, colors ColorResolver, opts Options, logger *slog.Logger) *Enricher {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Enricher{
		opener: opener,
		nav:    nav,
		parser: p,
		quotes: quotes,
		colors: colors,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:   opts,
		logger: logger.With("component", "enrich"),
	}
}

func (e *Enricher) SetObserver(o Observer) {
	e.observer = o
}

// Enrich opens the product's detail page on its own tab and builds the full
// product. At most MaxConcurrent calls hold a tab at any time.
func (e *Enricher) Enrich(ctx context.Context, summary models.ListingSummary, listing Listing) (*models.Product, error) {
	if summary.ProductURL == "" {
		return nil, fmt.Errorf("summary %q has no product url", summary.Name)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	product, err := e.enrich(ctx, summary, listing)
	e.sem.Release(1)

	_ = browser.Sleep(ctx, browser.Jitter(e.opts.DetailDelayMin, e.opts.DetailDelayMax))
	return product, err
}

func (e *Enricher) enrich(ctx context.Context, summary models.ListingSummary, listing Listing) (*models.Product, error) {
	url := summary.ProductURL
	e.logger.Info("scraping detail page", "url", url)

	page, err := e.opener.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if e.observer != nil {
		e.observer.PageOpened(url)
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.logger.Warn("failed to close page", "url", url, "error", err)
		}
		if e.observer != nil {
			e.observer.PageClosed(url)
		}
	}()

	if err := e.nav.Navigate(ctx, page, url); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}

	var data *detailData
	if err := page.EvaluateJSON(detailExpression, &data); err != nil {
		return nil, fmt.Errorf("failed to read product data: %w", err)
	}
	if data == nil {
		// Kept without variants so the product is still stored and flagged.
		e.logger.Warn("no product data on page", "url", url)
		data = &detailData{}
	}

	if err := page.WaitFor(e.parser.Rules().Description, e.opts.DescriptionTimeout); err != nil {
		e.logger.Warn("description not found", "url", url, "error", err)
	}
	html, err := page.Content()
	if err != nil {
		return nil, err
	}

	category := e.parser.Breadcrumb(html)
	if category == "" {
		category = listing.Category
	}

	product := models.NewProduct(summary, category, listing.Country)
	if product.PID == "" {
		product.PID = data.ID.String()
	}
	product.Description, product.DescriptionImages = e.parser.Description(html)

	variants := e.buildVariants(ctx, data, e.parser.SlideImages(html))
	if len(data.StanProducts) == 0 {
		e.logger.Warn("no variants found", "url", url)
	}
	product.SetVariants(variants)

	return product, nil
}

func (e *Enricher) buildVariants(ctx context.Context, data *detailData, gallery []string) []models.Variant {
	inv := inventoryByVariant(data.VariantInventory, e.opts.InventoryCountry)

	variants := make([]models.Variant, 0, len(data.StanProducts))
	flags := make(map[string]bool, len(data.StanProducts))
	quotes := make(map[string][]models.ShippingOption)

	for _, sp := range data.StanProducts {
		v := buildVariant(sp, inv, gallery)
		label, _ := SplitVariantKey(sp.VariantKey)
		v.Color = e.colors.Resolve(ctx, label)

		flags[v.SKU] = v.CJInventory >= e.opts.ShippingThreshold
		if flags[v.SKU] && e.quotes != nil {
			options, err := e.quotes.Quote(ctx, data.Token, e.quoteRequest(data, sp))
			if err != nil {
				e.logger.Warn("failed to quote shipping", "sku", v.SKU, "error", err)
			}
			quotes[v.SKU] = options
		}

		variants = append(variants, v)
	}

	choices := shipping.ChooseForSKUs(flags, quotes)
	for i := range variants {
		variants[i].ApplyShipping(choices[variants[i].SKU])
	}
	return variants
}

func (e *Enricher) quoteRequest(data *detailData, sp stanProduct) shipping.QuoteRequest {
	return shipping.QuoteRequest{
		CountryCode:  e.opts.ShipToCountry,
		Property:     data.PropertyKey.String(),
		Weight:       sp.PackWeight.Float(),
		SKU:          sp.SKU,
		PID:          data.ID.String(),
		Length:       sp.Long.Float(),
		Width:        sp.Width.Float(),
		Height:       sp.Height.Float(),
		Volume:       sp.Volume.Float(),
		Quantity:     1,
		CustomerCode: data.CustomerCode.String(),
		SKUs:         []string{sp.SKU},
		ProductType:  data.ProductType.String(),
	}
}

// EnrichAll enriches one listing page's summaries concurrently. Failed products
// are logged and dropped; the result keeps input order. If any product hit an
// unsolvable challenge, that error is returned after every task has finished.
func (e *Enricher) EnrichAll(ctx context.Context, summaries []models.ListingSummary, listing Listing) ([]*models.Product, error) {
	results := make([]*models.Product, len(summaries))

	var (
		mu       sync.Mutex
		blocking error
	)

	var g errgroup.Group
	for i, summary := range summaries {
		g.Go(func() error {
			product, err := e.Enrich(ctx, summary, listing)
			if err != nil {
				e.logger.Error("failed to enrich product", "url", summary.ProductURL, "error", err)
				if errors.Is(err, captcha.ErrChallengeFailed) || ctx.Err() != nil {
					mu.Lock()
					if blocking == nil {
						blocking = err
					}
					mu.Unlock()
				}
				return nil
			}
			results[i] = product
			return nil
		})
	}
	_ = g.Wait()

	products := make([]*models.Product, 0, len(results))
	for _, p := range results {
		if p != nil {
			products = append(products, p)
		}
	}

	if blocking != nil {
		return products, blocking
	}
	if err := ctx.Err(); err != nil {
		return products, err
	}
	return products, nil
}
