package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
	"github.com/maltedev/cj-catalog-scraper/internal/captcha"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/parser"
	"github.com/maltedev/cj-catalog-scraper/internal/ratelimit"
)

const (
	pageParam    = "pageNum"
	countryParam = "from"

	DefaultCountry = "Global"
)

// ErrPagesSkipped means the crawl reached the last page but some pages failed to load.
var ErrPagesSkipped = errors.New("listing pages skipped")

type Navigator interface {
	Navigate(ctx context.Context, page browser.Page, url string) error
}

// PageFunc receives the summaries of one listing page. Returning an error stops the crawl.
type PageFunc func(ctx context.Context, pageNum int, summaries []models.ListingSummary) error

type Options struct {
	CloseButton   string
	CloseTimeout  time.Duration
	ScrollDelta   float64
	LazyLoadDelay time.Duration
	CardTimeout   time.Duration
}

func DefaultOptions() Options {
	return Options{
		CloseButton:   "button[aria-label='close']",
		CloseTimeout:  3 * time.Second,
		ScrollDelta:   2000,
		LazyLoadDelay: 2 * time.Second,
		CardTimeout:   15 * time.Second,
	}
}

type outcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

type Paginator struct {
	nav     Navigator
	parser  *parser.CatalogParser
	limiter ratelimit.RateLimiter
	opts    Options
	logger  *slog.Logger
}

func NewPaginator(nav Navigator, p *parser.CatalogParser, limiter ratelimit.RateLimiter, opts Options, logger *slog.Logger) *Paginator {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = ratelimit.NewSimpleRateLimiter(0, 0)
	}

	return &Paginator{
		nav:     nav,
		parser:  p,
		limiter: limiter,
		opts:    opts,
		logger:  logger.With("component", "listing"),
	}
}

// ScrapeListingPage loads one listing page and returns its product summaries.
// A page whose cards never render yields an empty list, not an error.
func (p *Paginator) ScrapeListingPage(ctx context.Context, page browser.Page, pageURL string) ([]models.ListingSummary, error) {
	if err := p.nav.Navigate(ctx, page, pageURL); err != nil {
		return nil, err
	}

	// Overlays are optional; failures here are expected on most pages.
	_ = page.Click(p.opts.CloseButton, p.opts.CloseTimeout)
	_ = page.Press("Escape")
	_ = page.Wheel(0, p.opts.ScrollDelta)

	if err := browser.Sleep(ctx, p.opts.LazyLoadDelay); err != nil {
		return nil, err
	}

	if err := page.WaitFor(p.parser.Rules().Card, p.opts.CardTimeout); err != nil {
		p.logger.Warn("product cards did not appear", "url", pageURL, "error", err)
		return nil, nil
	}

	html, err := page.Content()
	if err != nil {
		return nil, err
	}

	summaries, err := p.parser.ParseListing(html, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", pageURL, err)
	}

	p.logger.Info("scraped listing page", "url", pageURL, "cards", len(summaries))
	return summaries, nil
}

// MaxPageCount reads the total page count from the current document.
func (p *Paginator) MaxPageCount(page browser.Page) int {
	html, err := page.Content()
	if err != nil {
		p.logger.Warn("could not read pagination", "error", err)
		return 1
	}
	return p.parser.MaxPageCount(html)
}

// Crawl visits pages 1..N of a category on a single tab, where N is read
// from page 1. Page 1 must load, otherwise N is unknown and the crawl fails.
// A challenge failure or cancellation aborts the crawl. Later page failures
// are logged and skipped, and the crawl then ends with ErrPagesSkipped so the
// category is not recorded as complete.
func (p *Paginator) Crawl(ctx context.Context, page browser.Page, categoryURL string, fn PageFunc) (int, error) {
	total := 1
	var skipped []int
	for pageNum := 1; pageNum <= total; pageNum++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return pageNum - 1, err
		}

		pageURL := PageURL(categoryURL, pageNum)
		summaries, err := p.ScrapeListingPage(ctx, page, pageURL)
		if err != nil {
			p.record(false)
			if errors.Is(err, captcha.ErrChallengeFailed) || ctx.Err() != nil {
				return pageNum - 1, err
			}
			if pageNum == 1 {
				return 0, fmt.Errorf("failed to load first listing page: %w", err)
			}
			p.logger.Error("failed to scrape listing page", "url", pageURL, "error", err)
			skipped = append(skipped, pageNum)
			continue
		}
		p.record(true)

		if pageNum == 1 {
			total = p.MaxPageCount(page)
			p.logger.Info("detected page count", "category", categoryURL, "pages", total)
		}

		if err := fn(ctx, pageNum, summaries); err != nil {
			return pageNum, err
		}
	}

	if len(skipped) > 0 {
		return total, fmt.Errorf("%w: pages %v of %d", ErrPagesSkipped, skipped, total)
	}
	return total, nil
}

func (p *Paginator) record(ok bool) {
	r, isAdaptive := p.limiter.(outcomeRecorder)
	if !isAdaptive {
		return
	}
	if ok {
		r.RecordSuccess()
	} else {
		r.RecordError()
	}
}

// PageURL sets the pageNum query parameter, keeping all others.
func PageURL(base string, pageNum int) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(pageParam, strconv.Itoa(pageNum))
	u.RawQuery = q.Encode()
	return u.String()
}

// CountryOf returns the listing's "from" parameter, or Global.
func CountryOf(listingURL string) string {
	u, err := url.Parse(listingURL)
	if err != nil {
		return DefaultCountry
	}
	if c := u.Query().Get(countryParam); c != "" {
		return c
	}
	return DefaultCountry
}
