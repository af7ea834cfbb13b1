package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

// setupTestDB connects to TEST_DATABASE_URL, applies the schema and empties
// the tables. Tests are skipped when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	_, err = db.Pool().Exec(ctx,
		`TRUNCATE catalog_documents, catalog_product, catalog_stock_price, outbox_event`)
	require.NoError(t, err)

	t.Cleanup(db.Close)
	return db
}

func insertEvent(t *testing.T, db *DB, repo *OutboxRepository, event *OutboxEvent) {
	t.Helper()
	require.NoError(t, db.WithTx(context.Background(), func(tx pgx.Tx) error {
		return repo.InsertWithTx(context.Background(), tx, event)
	}))
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	t.Run("fills defaults", func(t *testing.T) {
		event, err := ProductSavedEvent("1001", "Lighting", 1)
		require.NoError(t, err)
		event.TargetStream = ""

		insertEvent(t, db, repo, event)

		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, DefaultStream, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rolled back with the transaction", func(t *testing.T) {
		event, err := ProductSavedEvent("1002", "Lighting", 1)
		require.NoError(t, err)

		err = db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range pending {
			assert.NotEqual(t, "1002", e.AggregateID)
		}
	})

	t.Run("required fields", func(t *testing.T) {
		for name, event := range map[string]*OutboxEvent{
			"missing aggregate type": {AggregateID: "1003", EventType: EventProductSaved},
			"missing aggregate id":   {AggregateType: AggregateProduct, EventType: EventProductSaved},
			"missing event type":     {AggregateType: AggregateProduct, AggregateID: "1003"},
		} {
			t.Run(name, func(t *testing.T) {
				err := db.WithTx(ctx, func(tx pgx.Tx) error {
					return repo.InsertWithTx(ctx, tx, event)
				})
				assert.Error(t, err)
			})
		}
	})
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	first, _ := ProductSavedEvent("2001", "Lighting", 1)
	second, _ := ProductSavedEvent("2002", "Lighting", 1)
	insertEvent(t, db, repo, first)
	insertEvent(t, db, repo, second)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "2001", pending[0].AggregateID)

	require.NoError(t, repo.MarkProcessed(ctx, first.ID))
	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))

	require.NoError(t, repo.MarkFailed(ctx, second.ID, assert.AnError))

	var (
		status     string
		retryCount int
		nextRetry  time.Time
	)
	require.NoError(t, db.Pool().QueryRow(ctx,
		`SELECT status, retry_count, next_retry_at FROM outbox_event WHERE id = $1`, second.ID).
		Scan(&status, &retryCount, &nextRetry))
	assert.Equal(t, OutboxStatusFailed, status)
	assert.Equal(t, 1, retryCount)
	assert.True(t, nextRetry.After(time.Now()))

	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed event waits for its retry time")

	for i := 1; i < MaxRetryCount; i++ {
		require.NoError(t, repo.MarkFailed(ctx, second.ID, assert.AnError))
	}
	dead, err := repo.CountByStatus(ctx, OutboxStatusDeadLetter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	docs := NewDocumentRepository(db)

	product := &models.Product{PID: "3001", Name: "Lamp", Category: "Lighting"}
	product.SetVariants([]models.Variant{{SKU: "CJ3001-RED", Color: "红色"}})

	exists, err := docs.Exists(ctx, product.PID)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, docs.Insert(ctx, product))
	assert.ErrorIs(t, docs.Insert(ctx, product), ErrAlreadyExists)

	got, err := docs.Get(ctx, "3001")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", got.Name)
	require.Len(t, got.Variants, 1)
	assert.Equal(t, "cj_3001", got.Variants[0].ProductID)

	_, err = docs.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	events, err := NewOutboxRepository(db).GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1, "duplicate insert must not add a second event")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "3001", payload["pid"])

	for _, pid := range []string{"3002", "3003"} {
		require.NoError(t, docs.Insert(ctx, &models.Product{PID: pid}))
	}

	n, err := docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var seen []string
	require.NoError(t, docs.Iterate(ctx, 2, func(p *models.Product) error {
		seen = append(seen, p.PID)
		return nil
	}))
	assert.Equal(t, []string{"3001", "3002", "3003"}, seen)
}

func TestExportRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewExportRepository(db, nil)

	row := ProductRow{SKU: "CJ1-RED", ID: "cj_1", Name: "Lamp", Color: "红色"}
	require.NoError(t, repo.UpsertProducts(ctx, []ProductRow{row}))

	row.Name = "Desk Lamp"
	require.NoError(t, repo.UpsertProducts(ctx, []ProductRow{row}))

	var name string
	var count int
	require.NoError(t, db.Pool().QueryRow(ctx,
		`SELECT name, (SELECT COUNT(*) FROM catalog_product) FROM catalog_product WHERE sku = $1 AND id = $2`,
		row.SKU, row.ID).Scan(&name, &count))
	assert.Equal(t, "Desk Lamp", name)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.UpsertStockPrices(ctx, []StockPriceRow{{SKU: "CJ1-RED", ID: "cj_1", Stock: 3, Stock2: 9}}))
}
