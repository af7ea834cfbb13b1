package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/cj-catalog-scraper/internal/database"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

const DefaultBatchSize = 100

type DocumentSource interface {
	Iterate(ctx context.Context, pageSize int, fn func(*models.Product) error) error
}

// RowWriter upserts relational rows keyed by (sku, id).
type RowWriter interface {
	UpsertProducts(ctx context.Context, rows []database.ProductRow) error
	UpsertStockPrices(ctx context.Context, rows []database.StockPriceRow) error
}

type ImageRehoster interface {
	Rehost(ctx context.Context, src string) (string, error)
}

type ExportOptions struct {
	BatchSize int
	Status    string
}

type ExportStats struct {
	Documents int `json:"documents"`
	Rows      int `json:"rows"`
	Skipped   int `json:"skipped"`
	Rehosted  int `json:"rehosted"`
}

// Exporter flattens stored documents into one product row and one
// stock/price row per variant.
type Exporter struct {
	source DocumentSource
	writer RowWriter
	images ImageRehoster
	opts   ExportOptions
	logger *slog.Logger
}

func NewExporter(source DocumentSource, writer RowWriter, opts ExportOptions, logger *slog.Logger) *Exporter {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		source: source,
		writer: writer,
		opts:   opts,
		logger: logger.With("component", "exporter"),
	}
}

// WithRehoster enables main image rehosting. Failed uploads keep the original URL.
func (e *Exporter) WithRehoster(images ImageRehoster) *Exporter {
	e.images = images
	return e
}

func (e *Exporter) Export(ctx context.Context) (ExportStats, error) {
	var (
		stats    ExportStats
		products []database.ProductRow
		stock    []database.StockPriceRow
		hosted   = make(map[string]string)
	)

	flush := func() error {
		if len(products) == 0 {
			return nil
		}
		if err := e.writer.UpsertProducts(ctx, products); err != nil {
			return err
		}
		if err := e.writer.UpsertStockPrices(ctx, stock); err != nil {
			return err
		}
		stats.Rows += len(products)
		e.logger.Info("batch exported", "rows", len(products), "total", stats.Rows)
		products, stock = nil, nil
		return nil
	}

	err := e.source.Iterate(ctx, e.opts.BatchSize, func(p *models.Product) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats.Documents++
		if len(p.Variants) == 0 {
			stats.Skipped++
			e.logger.Debug("document has no variants", "pid", p.PID)
			return nil
		}

		if e.images != nil {
			stats.Rehosted += e.rehost(ctx, p, hosted)
		}

		rows, stockRows := Flatten(p, e.opts.Status, time.Now())
		products = append(products, rows...)
		stock = append(stock, stockRows...)

		if len(products) >= e.opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to export documents: %w", err)
	}

	if err := flush(); err != nil {
		return stats, fmt.Errorf("failed to export documents: %w", err)
	}

	e.logger.Info("export finished",
		"documents", stats.Documents,
		"rows", stats.Rows,
		"skipped", stats.Skipped,
		"rehosted", stats.Rehosted)
	return stats, nil
}

// rehost swaps each variant's main image for a hosted copy, uploading each
// source once per run.
func (e *Exporter) rehost(ctx context.Context, p *models.Product, hosted map[string]string) int {
	n := 0
	for i := range p.Variants {
		src := p.Variants[i].ImageURL
		if src == "" {
			continue
		}
		if url, ok := hosted[src]; ok {
			p.Variants[i].ImageURL = url
			continue
		}

		url, err := e.images.Rehost(ctx, src)
		if err != nil {
			e.logger.Warn("keeping original image", "pid", p.PID, "src", src, "error", err)
			continue
		}
		hosted[src] = url
		p.Variants[i].ImageURL = url
		n++
	}
	return n
}

// Flatten produces the relational rows for every variant of p.
func Flatten(p *models.Product, status string, now time.Time) ([]database.ProductRow, []database.StockPriceRow) {
	products := make([]database.ProductRow, 0, len(p.Variants))
	stock := make([]database.StockPriceRow, 0, len(p.Variants))

	for _, v := range p.Variants {
		id := v.ProductID
		if id == "" {
			id = models.VariantIDPrefix + p.PID
		}
		bg := v.BackgroundImages
		if bg == "" {
			bg = v.ImageURL
		}

		products = append(products, database.ProductRow{
			SKU:         v.SKU,
			ID:          id,
			Name:        p.Name,
			Description: p.Description,
			MainImage:   v.ImageURL,
			BgImage:     bg,
			Weight:      v.Weight,
			WeightUnit:  v.WeightUnit,
			Length:      v.Length,
			Width:       v.Width,
			Height:      v.Height,
			LengthUnit:  v.SizeUnit,
			Color:       v.Color,
			Size:        v.Size,
			Category:    p.Category,
		})

		stock = append(stock, database.StockPriceRow{
			SKU:            v.SKU,
			ID:             id,
			Stock:          v.FactoryInventory,
			Stock2:         v.CJInventory,
			Price:          v.Price,
			Status:         status,
			Currency:       p.Currency,
			Country:        p.Country,
			ShippingFee:    v.ShippingFee,
			ShippingMethod: v.ShippingMethod,
			DeliveryTime:   v.DeliveryTime,
			UpdateTime:     now,
		})
	}

	return products, stock
}
