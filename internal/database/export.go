package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// ProductRow is one catalog_product row, keyed by (SKU, ID).
type ProductRow struct {
	SKU         string
	ID          string
	Name        string
	Description string
	MainImage   string
	BgImage     string
	Weight      string
	WeightUnit  string
	Length      string
	Width       string
	Height      string
	LengthUnit  string
	Color       string
	Size        string
	Category    string
}

// StockPriceRow is one catalog_stock_price row, keyed by (SKU, ID).
type StockPriceRow struct {
	SKU            string
	ID             string
	Stock          int
	Stock2         int
	Price          string
	Status         string
	Currency       string
	Country        string
	ShippingFee    string
	ShippingMethod string
	DeliveryTime   string
	UpdateTime     time.Time
}

const upsertProductSQL = `
	INSERT INTO catalog_product (
		sku, id, name, description, main_img, bg_img, weight, weight_unit,
		length, width, height, length_unit, color, size, category
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (sku, id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		main_img = EXCLUDED.main_img,
		bg_img = EXCLUDED.bg_img,
		weight = EXCLUDED.weight,
		weight_unit = EXCLUDED.weight_unit,
		length = EXCLUDED.length,
		width = EXCLUDED.width,
		height = EXCLUDED.height,
		length_unit = EXCLUDED.length_unit,
		color = EXCLUDED.color,
		size = EXCLUDED.size,
		category = EXCLUDED.category`

const upsertStockPriceSQL = `
	INSERT INTO catalog_stock_price (
		sku, id, stock, stock2, price, status, currency, country,
		shipping_fee, shipping_method, delivery_time, update_time
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (sku, id) DO UPDATE SET
		stock = EXCLUDED.stock,
		stock2 = EXCLUDED.stock2,
		price = EXCLUDED.price,
		status = EXCLUDED.status,
		currency = EXCLUDED.currency,
		country = EXCLUDED.country,
		shipping_fee = EXCLUDED.shipping_fee,
		shipping_method = EXCLUDED.shipping_method,
		delivery_time = EXCLUDED.delivery_time,
		update_time = EXCLUDED.update_time`

type batchConn interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Reconnect(ctx context.Context) error
}

// ExportRepository upserts flattened variants into the relational tables.
// Batches are sent one at a time.
type ExportRepository struct {
	mu     sync.Mutex
	conn   batchConn
	logger *slog.Logger
}

func NewExportRepository(db *DB, logger *slog.Logger) *ExportRepository {
	return newExportRepository(db, logger)
}

func newExportRepository(conn batchConn, logger *slog.Logger) *ExportRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportRepository{conn: conn, logger: logger.With("component", "export")}
}

func (r *ExportRepository) UpsertProducts(ctx context.Context, rows []ProductRow) error {
	if len(rows) == 0 {
		return nil
	}

	build := func() *pgx.Batch {
		b := &pgx.Batch{}
		for _, row := range rows {
			b.Queue(upsertProductSQL,
				row.SKU, row.ID, row.Name, row.Description, row.MainImage, row.BgImage,
				row.Weight, row.WeightUnit, row.Length, row.Width, row.Height, row.LengthUnit,
				row.Color, row.Size, row.Category)
		}
		return b
	}

	if err := r.send(ctx, build); err != nil {
		return fmt.Errorf("failed to upsert %d product rows: %w", len(rows), err)
	}
	return nil
}

func (r *ExportRepository) UpsertStockPrices(ctx context.Context, rows []StockPriceRow) error {
	if len(rows) == 0 {
		return nil
	}

	build := func() *pgx.Batch {
		b := &pgx.Batch{}
		for _, row := range rows {
			updated := row.UpdateTime
			if updated.IsZero() {
				updated = time.Now()
			}
			b.Queue(upsertStockPriceSQL,
				row.SKU, row.ID, row.Stock, row.Stock2, row.Price, row.Status, row.Currency,
				row.Country, row.ShippingFee, row.ShippingMethod, row.DeliveryTime, updated)
		}
		return b
	}

	if err := r.send(ctx, build); err != nil {
		return fmt.Errorf("failed to upsert %d stock rows: %w", len(rows), err)
	}
	return nil
}

// send executes the batch. A lost connection gets one reconnect and one
// retry; a duplicate key counts as written.
func (r *ExportRepository) send(ctx context.Context, build func() *pgx.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.exec(ctx, build())
	if err == nil || IsDuplicateKey(err) {
		return nil
	}
	if !IsConnectionLost(err) {
		return err
	}

	r.logger.Warn("connection lost during export, reconnecting", "error", err)
	if rerr := r.conn.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("%w: reconnect failed: %w", ErrConnectionLost, rerr)
	}

	err = r.exec(ctx, build())
	if err == nil || IsDuplicateKey(err) {
		return nil
	}
	return classify(err)
}

func (r *ExportRepository) exec(ctx context.Context, b *pgx.Batch) error {
	results := r.conn.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return err
		}
	}
	return results.Close()
}
