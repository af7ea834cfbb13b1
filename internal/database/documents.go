package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

var (
	ErrAlreadyExists = errors.New("document already exists")
	ErrNotFound      = errors.New("document not found")
)

// DocumentRepository stores one JSONB document per product id.
type DocumentRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db, outbox: NewOutboxRepository(db)}
}

func (r *DocumentRepository) Exists(ctx context.Context, pid string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM catalog_documents WHERE pid = $1)`, pid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", pid, classify(err))
	}
	return exists, nil
}

// Insert writes the document and its product_saved outbox event in one
// transaction. A duplicate pid returns ErrAlreadyExists and writes nothing.
func (r *DocumentRepository) Insert(ctx context.Context, product *models.Product) error {
	doc, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product %s: %w", product.PID, err)
	}

	event, err := ProductSavedEvent(product.PID, product.Category, len(product.Variants))
	if err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO catalog_documents (pid, category, document) VALUES ($1, $2, $3)`,
			product.PID, product.Category, doc)
		if err != nil {
			if IsDuplicateKey(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert document %s: %w", product.PID, classify(err))
		}
		return r.outbox.InsertWithTx(ctx, tx, event)
	})
}

func (r *DocumentRepository) Get(ctx context.Context, pid string) (*models.Product, error) {
	var raw []byte
	err := r.db.Pool().QueryRow(ctx,
		`SELECT document FROM catalog_documents WHERE pid = $1`, pid).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", pid, classify(err))
	}

	var product models.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", pid, err)
	}
	return &product, nil
}

func (r *DocumentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM catalog_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", classify(err))
	}
	return n, nil
}

// Iterate walks every document in pid order, pageSize at a time. fn runs
// between pages so it may use the pool itself.
func (r *DocumentRepository) Iterate(ctx context.Context, pageSize int, fn func(*models.Product) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}

	after := ""
	for {
		page, err := r.page(ctx, after, pageSize)
		if err != nil {
			return err
		}

		for _, p := range page {
			if err := fn(p); err != nil {
				return err
			}
		}

		if len(page) < pageSize {
			return nil
		}
		after = page[len(page)-1].PID
	}
}

func (r *DocumentRepository) page(ctx context.Context, after string, limit int) ([]*models.Product, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT pid, document FROM catalog_documents WHERE pid > $1 ORDER BY pid LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", classify(err))
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		var (
			pid string
			raw []byte
		)
		if err := rows.Scan(&pid, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		var p models.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", pid, err)
		}
		p.PID = pid
		products = append(products, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", classify(err))
	}
	return products, nil
}
