package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/parser"
)

// Navigator loads a URL and clears any interstitial before returning.
type Navigator interface {
	Navigate(ctx context.Context, page browser.Page, url string) error
}

type Options struct {
	BaseURL      string
	MenuTimeout  time.Duration
	HoverSettle  time.Duration
	SnapshotPath string
}

func DefaultOptions() Options {
	return Options{
		MenuTimeout: 10 * time.Second,
		HoverSettle: time.Second,
	}
}

type Discoverer struct {
	nav    Navigator
	rules  parser.Rules
	opts   Options
	logger *slog.Logger
}

func New(nav Navigator, rules parser.Rules, opts Options, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		nav:    nav,
		rules:  rules,
		opts:   opts,
		logger: logger.With("component", "discovery"),
	}
}

type frame struct {
	item   *goquery.Selection
	parent models.CategoryPath
}

// Discover walks the nested menu under root and returns every leaf path in
// document preorder. A missing or empty root yields no paths.
func Discover(root *goquery.Selection, baseURL string) []models.CategoryPath {
	if root == nil || root.Length() == 0 {
		return nil
	}

	var stack []frame
	push := func(items *goquery.Selection, parent models.CategoryPath) {
		for i := items.Length() - 1; i >= 0; i-- {
			stack = append(stack, frame{item: items.Eq(i), parent: parent})
		}
	}
	push(root.First().ChildrenFiltered("li"), nil)

	var paths []models.CategoryPath
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := nodeOf(f.item, baseURL)
		path := make(models.CategoryPath, len(f.parent), len(f.parent)+1)
		copy(path, f.parent)
		path = append(path, node)

		children := f.item.Find("ul").First().ChildrenFiltered("li")
		if children.Length() == 0 {
			paths = append(paths, path)
			continue
		}
		push(children, path)
	}

	return paths
}

// nodeOf reads the item's own anchor, ignoring anchors of nested items.
func nodeOf(item *goquery.Selection, baseURL string) models.CategoryNode {
	var node models.CategoryNode
	item.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !a.Closest("li").IsSelection(item) {
			return true
		}
		href, _ := a.Attr("href")
		node.Name = strings.Join(strings.Fields(a.Text()), " ")
		node.URL = parser.ResolveURL(baseURL, href)
		return false
	})
	return node
}

// Categories converts leaf paths into scrape tasks, dropping paths without a URL.
func Categories(paths []models.CategoryPath) []models.Category {
	categories := make([]models.Category, 0, len(paths))
	for _, p := range paths {
		c := p.Category()
		if c.URL == "" {
			continue
		}
		categories = append(categories, c)
	}
	return categories
}

// DiscoverPage opens the home page, triggers the category menu and reads the
// leaf paths from the rendered markup.
func (d *Discoverer) DiscoverPage(ctx context.Context, page browser.Page) ([]models.CategoryPath, error) {
	if err := d.nav.Navigate(ctx, page, d.opts.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to open home page: %w", err)
	}

	if err := page.WaitFor(d.rules.CategoryMenu, d.opts.MenuTimeout); err != nil {
		d.logger.Warn("category menu not found", "error", err)
	} else if err := page.Hover(d.rules.CategoryMenu); err != nil {
		d.logger.Warn("failed to hover category menu", "error", err)
	}
	if err := browser.Sleep(ctx, d.opts.HoverSettle); err != nil {
		return nil, err
	}

	html, err := page.Content()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	paths := Discover(doc.Find(d.rules.CategoryMenu).First(), d.opts.BaseURL)
	d.logger.Info("discovered categories", "leaves", len(paths))
	return paths, nil
}

// Resolve discovers live categories and refreshes the snapshot. When the menu
// yields nothing it falls back to the last snapshot.
func (d *Discoverer) Resolve(ctx context.Context, page browser.Page) ([]models.Category, error) {
	paths, err := d.DiscoverPage(ctx, page)
	if err != nil {
		d.logger.Warn("live discovery failed, using snapshot", "error", err)
	}

	categories := Categories(paths)
	if len(categories) == 0 {
		if d.opts.SnapshotPath == "" {
			return nil, fmt.Errorf("no categories discovered and no snapshot configured")
		}
		return LoadSnapshot(d.opts.SnapshotPath)
	}

	if d.opts.SnapshotPath != "" {
		if err := SaveSnapshot(d.opts.SnapshotPath, categories); err != nil {
			d.logger.Error("failed to save snapshot", "path", d.opts.SnapshotPath, "error", err)
		}
	}
	return categories, nil
}
