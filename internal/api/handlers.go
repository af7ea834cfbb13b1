package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/cj-catalog-scraper/internal/database"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/sink"
)

const (
	pendingWarnThreshold   = 1000
	deadLetterErrThreshold = 100
)

type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

type ProductStore interface {
	Get(ctx context.Context, pid string) (*models.Product, error)
	Count(ctx context.Context) (int64, error)
}

type ProgressSource interface {
	Done() []string
}

type Exporter interface {
	Export(ctx context.Context) (sink.ExportStats, error)
}

// Deps are the collaborators behind the status API. Nil members disable the
// matching endpoint data.
type Deps struct {
	Outbox     OutboxStats
	Products   ProductStore
	Progress   ProgressSource
	Categories func() ([]models.Category, error)
	Exporter   Exporter
	// Checks are named liveness probes such as a Redis or Postgres ping.
	Checks map[string]func(ctx context.Context) error
}

type ExportStatus struct {
	Running    bool              `json:"running"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Stats      *sink.ExportStats `json:"stats,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type Handlers struct {
	deps   Deps
	base   context.Context
	logger *slog.Logger

	mu     sync.Mutex
	export ExportStatus
	wg     sync.WaitGroup
}

// NewHandlers builds the handlers. Exports triggered over HTTP run on base so
// they outlive the request but stop with the server.
func NewHandlers(base context.Context, deps Deps, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{deps: deps, base: base, logger: logger.With("component", "api")}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.deps.Outbox != nil {
		pending, _ := h.deps.Outbox.PendingCount(ctx)
		dead, _ := h.deps.Outbox.DeadLetterCount(ctx)
		health["outbox"] = map[string]any{"pending": pending, "dead_letter": dead}

		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if dead > deadLetterErrThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	if len(h.deps.Checks) > 0 {
		checks := make(map[string]string, len(h.deps.Checks))
		for name, check := range h.deps.Checks {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				health["status"] = "error"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		health["checks"] = checks
	}

	h.respondJSON(w, status, health)
}

type progressResponse struct {
	Done    []string          `json:"done"`
	Pending []models.Category `json:"pending"`
	Total   int               `json:"total"`
}

func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	resp := progressResponse{Done: []string{}, Pending: []models.Category{}}

	done := make(map[string]struct{})
	if h.deps.Progress != nil {
		resp.Done = h.deps.Progress.Done()
		for _, id := range resp.Done {
			done[id] = struct{}{}
		}
	}

	if h.deps.Categories != nil {
		categories, err := h.deps.Categories()
		if err != nil {
			h.logger.Error("failed to load categories", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to load categories")
			return
		}
		resp.Total = len(categories)
		for _, c := range categories {
			if _, ok := done[c.URL]; !ok {
				resp.Pending = append(resp.Pending, c)
			}
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")
	if pid == "" {
		h.respondError(w, http.StatusBadRequest, "pid is required")
		return
	}
	if h.deps.Products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	product, err := h.deps.Products.Get(r.Context(), pid)
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get product", "pid", pid, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{}

	if h.deps.Products != nil {
		n, err := h.deps.Products.Count(r.Context())
		if err != nil {
			h.logger.Error("failed to count products", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		stats["documents"] = n
	}
	if h.deps.Progress != nil {
		stats["categories_done"] = len(h.deps.Progress.Done())
	}
	stats["export"] = h.ExportStatus()

	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) ExportStatus() ExportStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.export
}

// StartExport launches an export in the background. Only one runs at a time.
func (h *Handlers) StartExport(w http.ResponseWriter, r *http.Request) {
	if h.deps.Exporter == nil {
		h.respondError(w, http.StatusServiceUnavailable, "export not configured")
		return
	}

	h.mu.Lock()
	if h.export.Running {
		h.mu.Unlock()
		h.respondError(w, http.StatusConflict, "export already running")
		return
	}
	now := time.Now()
	h.export = ExportStatus{Running: true, StartedAt: &now}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		stats, err := h.deps.Exporter.Export(h.base)
		finished := time.Now()

		h.mu.Lock()
		defer h.mu.Unlock()
		h.export.Running = false
		h.export.FinishedAt = &finished
		h.export.Stats = &stats
		if err != nil {
			h.export.Error = err.Error()
			h.logger.Error("export failed", "error", err)
		}
	}()

	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handlers) GetExport(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.ExportStatus())
}

// Wait blocks until a running export returns.
func (h *Handlers) Wait() {
	h.wg.Wait()
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
