package color

import (
	"context"
	"log/slog"
	"strings"
)

// Classifier maps a free-text label to the nearest canonical palette entry.
type Classifier interface {
	Classify(ctx context.Context, label string, candidates []string) (string, error)
}

// Resolver maps free-text variant colors to canonical palette labels.
type Resolver struct {
	cache      *Cache
	classifier Classifier
	logger     *slog.Logger
}

func NewResolver(cache *Cache, classifier Classifier, logger *slog.Logger) *Resolver {
	if cache == nil {
		cache = &Cache{entries: make(map[string]string)}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cache:      cache,
		classifier: classifier,
		logger:     logger.With("component", "color"),
	}
}

// Resolve tries the palette, then the cache, then the classifier. Classifier
// answers outside the palette and classifier errors give Multicolor, which is
// not cached so the label is retried on the next run.
func (r *Resolver) Resolve(ctx context.Context, label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return Multicolor
	}

	if c, ok := Lookup(label); ok {
		return c
	}
	if c, ok := r.cache.Get(label); ok {
		return c
	}
	if r.classifier == nil {
		return Multicolor
	}

	answer, err := r.classifier.Classify(ctx, label, CanonicalNames())
	if err != nil {
		r.logger.Warn("color classification failed", "label", label, "error", err)
		return Multicolor
	}

	c, ok := Lookup(answer)
	if !ok {
		r.logger.Warn("classifier answer outside palette", "label", label, "answer", answer)
		return Multicolor
	}

	if err := r.cache.Put(label, c); err != nil {
		r.logger.Error("failed to cache color", "label", label, "error", err)
	}
	return c
}
