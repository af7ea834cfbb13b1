package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/cj-catalog-scraper/internal/api"
	"github.com/maltedev/cj-catalog-scraper/internal/database"
	"github.com/maltedev/cj-catalog-scraper/internal/discovery"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/pipeline"
	"github.com/maltedev/cj-catalog-scraper/internal/progress"
)

func serveCommand() *cobra.Command {
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status API and relay outbox events to Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), origins)
		},
	}

	cmd.Flags().StringSliceVar(&origins, "allowed-origins", nil, "CORS origins (default localhost)")
	return cmd
}

func serve(ctx context.Context, origins []string) error {
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
		Stream:       cfg.Relay.Stream,
	})

	exporter, closeExporter := newExporter(db, cfg.ImageHost.Enabled)
	defer closeExporter()

	handlers := api.NewHandlers(ctx, api.Deps{
		Outbox:   relay,
		Products: database.NewDocumentRepository(db),
		Progress: runProgress{path: pipeline.RunProgressFile(cfg.Scraper.DataDir)},
		Categories: func() ([]models.Category, error) {
			return discovery.LoadSnapshot(cfg.Scraper.SnapshotFile)
		},
		Exporter: exporter,
		Checks: map[string]func(ctx context.Context) error{
			"postgres": db.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, origins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := relay.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		handlers.Wait()
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// runProgress rereads the run-level progress file on every request so the API
// reflects a scrape running in another process.
type runProgress struct {
	path string
}

func (p runProgress) Done() []string {
	tracker, err := progress.New(p.path, pipeline.CategoryIDKey)
	if err != nil {
		logger.Warn("failed to read progress file", "path", p.path, "error", err)
		return []string{}
	}
	return tracker.Done()
}
