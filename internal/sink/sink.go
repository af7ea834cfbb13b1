package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/cj-catalog-scraper/internal/database"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

var ErrInvalidProduct = errors.New("invalid product")

// DocumentStore is the document side of the catalog, keyed by pid.
type DocumentStore interface {
	Exists(ctx context.Context, pid string) (bool, error)
	Insert(ctx context.Context, product *models.Product) error
}

// Reconnector re-dials the database behind a DocumentStore.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Sink stores each product once. Later saves of the same pid are skipped.
type Sink struct {
	store       DocumentStore
	reconnector Reconnector
	logger      *slog.Logger
}

func New(store DocumentStore, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger.With("component", "sink")}
}

// WithReconnect makes Save reconnect and retry once when a store call fails
// because the connection dropped.
func (s *Sink) WithReconnect(r Reconnector) *Sink {
	s.reconnector = r
	return s
}

// Save reports whether the product was newly written.
func (s *Sink) Save(ctx context.Context, product *models.Product) (bool, error) {
	if product == nil {
		return false, fmt.Errorf("%w: nil product", ErrInvalidProduct)
	}
	if problems := product.Validate(); len(problems) > 0 {
		return false, fmt.Errorf("%w %s: %s", ErrInvalidProduct, product.PID, strings.Join(problems, "; "))
	}

	var exists bool
	err := s.withReconnect(ctx, func() error {
		var err error
		exists, err = s.store.Exists(ctx, product.PID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check product %s: %w", product.PID, err)
	}
	if exists {
		s.logger.Warn("product already stored, skipping", "pid", product.PID)
		return false, nil
	}

	err = s.withReconnect(ctx, func() error {
		return s.store.Insert(ctx, product)
	})
	if err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			s.logger.Warn("product stored concurrently, skipping", "pid", product.PID)
			return false, nil
		}
		return false, fmt.Errorf("failed to save product %s: %w", product.PID, err)
	}

	s.logger.Info("product saved",
		"pid", product.PID,
		"category", product.Category,
		"variants", len(product.Variants))
	return true, nil
}

// withReconnect runs op once more after a reconnect when it failed with a
// lost connection. A second failure is returned as is.
func (s *Sink) withReconnect(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || s.reconnector == nil || !database.IsConnectionLost(err) {
		return err
	}

	s.logger.Warn("database connection lost, reconnecting", "error", err)
	if rerr := s.reconnector.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("failed to reconnect: %w (after %w)", rerr, err)
	}
	return op()
}
