package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/cj-catalog-scraper/internal/database"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

type recordingWriter struct {
	productBatches [][]database.ProductRow
	stockBatches   [][]database.StockPriceRow
	err            error
}

func (w *recordingWriter) UpsertProducts(_ context.Context, rows []database.ProductRow) error {
	if w.err != nil {
		return w.err
	}
	w.productBatches = append(w.productBatches, append([]database.ProductRow(nil), rows...))
	return nil
}

func (w *recordingWriter) UpsertStockPrices(_ context.Context, rows []database.StockPriceRow) error {
	w.stockBatches = append(w.stockBatches, append([]database.StockPriceRow(nil), rows...))
	return nil
}

func (w *recordingWriter) rows() int {
	n := 0
	for _, b := range w.productBatches {
		n += len(b)
	}
	return n
}

type fakeRehoster struct {
	calls []string
	fail  map[string]bool
}

func (f *fakeRehoster) Rehost(_ context.Context, src string) (string, error) {
	f.calls = append(f.calls, src)
	if f.fail[src] {
		return "", errors.New("upload failed")
	}
	return strings.Replace(src, "cf.example.com", "img.example.com", 1) + "?w=900", nil
}

func TestFlatten(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := product("1001", "CJ-RED", "CJ-BLUE")
	p.Description = "Bright lamp."
	p.Variants[1].BackgroundImages = "https://cf.example.com/bg1.jpg,https://cf.example.com/bg2.jpg"

	rows, stock := Flatten(p, "active", now)
	require.Len(t, rows, 2)
	require.Len(t, stock, 2)

	assert.Equal(t, database.ProductRow{
		SKU:         "CJ-RED",
		ID:          "cj_1001",
		Name:        "Lamp 1001",
		Description: "Bright lamp.",
		MainImage:   "https://cf.example.com/CJ-RED.jpg",
		BgImage:     "https://cf.example.com/CJ-RED.jpg",
		LengthUnit:  models.SizeUnitCM,
		Color:       "红色",
		Size:        "m",
		Category:    "Home/Lighting",
	}, rows[0])
	assert.Equal(t, "https://cf.example.com/bg1.jpg,https://cf.example.com/bg2.jpg", rows[1].BgImage)

	assert.Equal(t, database.StockPriceRow{
		SKU:            "CJ-RED",
		ID:             "cj_1001",
		Stock:          100,
		Stock2:         7,
		Price:          "4.20",
		Status:         "active",
		Currency:       "USD",
		Country:        "US",
		ShippingFee:    "3.10",
		ShippingMethod: "USPS",
		DeliveryTime:   "5-8",
		UpdateTime:     now,
	}, stock[0])
}

func TestExporter_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("batches rows and skips variantless documents", func(t *testing.T) {
		store := newMemoryStore()
		for _, pid := range []string{"1", "2", "3"} {
			require.NoError(t, store.Insert(ctx, product(pid, "A", "B")))
		}
		require.NoError(t, store.Insert(ctx, product("4")))

		writer := &recordingWriter{}
		stats, err := NewExporter(store, writer, ExportOptions{BatchSize: 4, Status: "active"}, nil).Export(ctx)
		require.NoError(t, err)

		assert.Equal(t, ExportStats{Documents: 4, Rows: 6, Skipped: 1}, stats)
		require.Len(t, writer.productBatches, 2)
		assert.Len(t, writer.productBatches[0], 4)
		assert.Len(t, writer.productBatches[1], 2)
		assert.Len(t, writer.stockBatches, 2)
		assert.Equal(t, 6, writer.rows())
	})

	t.Run("default batch size", func(t *testing.T) {
		store := newMemoryStore()
		for i := 0; i < 60; i++ {
			require.NoError(t, store.Insert(ctx, product(string(rune('a'+i%26))+strings.Repeat("x", i/26), "A", "B")))
		}

		writer := &recordingWriter{}
		stats, err := NewExporter(store, writer, ExportOptions{}, nil).Export(ctx)
		require.NoError(t, err)

		assert.Equal(t, 120, stats.Rows)
		require.Len(t, writer.productBatches, 2)
		assert.Len(t, writer.productBatches[0], DefaultBatchSize)
	})

	t.Run("rehosts each image once and keeps originals on failure", func(t *testing.T) {
		store := newMemoryStore()
		a := product("1", "A", "B")
		a.Variants[1].ImageURL = a.Variants[0].ImageURL
		require.NoError(t, store.Insert(ctx, a))
		require.NoError(t, store.Insert(ctx, product("2", "C")))

		images := &fakeRehoster{fail: map[string]bool{"https://cf.example.com/C.jpg": true}}
		writer := &recordingWriter{}
		stats, err := NewExporter(store, writer, ExportOptions{}, nil).WithRehoster(images).Export(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Rehosted)
		assert.Equal(t, []string{"https://cf.example.com/A.jpg", "https://cf.example.com/C.jpg"}, images.calls)

		rows := writer.productBatches[0]
		assert.Equal(t, "https://img.example.com/A.jpg?w=900", rows[0].MainImage)
		assert.Equal(t, "https://img.example.com/A.jpg?w=900", rows[1].MainImage)
		assert.Equal(t, "https://cf.example.com/C.jpg", rows[2].MainImage)
	})

	t.Run("writer failure aborts", func(t *testing.T) {
		store := newMemoryStore()
		require.NoError(t, store.Insert(ctx, product("1", "A")))

		writer := &recordingWriter{err: database.ErrConnectionLost}
		_, err := NewExporter(store, writer, ExportOptions{}, nil).Export(ctx)
		assert.ErrorIs(t, err, database.ErrConnectionLost)
	})

	t.Run("cancelled context stops iteration", func(t *testing.T) {
		store := newMemoryStore()
		require.NoError(t, store.Insert(ctx, product("1", "A")))

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewExporter(store, &recordingWriter{}, ExportOptions{}, nil).Export(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
