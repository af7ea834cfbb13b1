package main

import (
	"context"
	"fmt"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
	"github.com/maltedev/cj-catalog-scraper/internal/captcha"
	"github.com/maltedev/cj-catalog-scraper/internal/database"
)

func openBrowser() (*browser.Browser, error) {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.UserAgent = cfg.Browser.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	opts.StorageStatePath = cfg.Browser.StorageStatePath

	b, err := browser.New(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return b, nil
}

// newGate builds the captcha gate and the OCR client behind it. The caller
// closes the client.
func newGate() (*captcha.Gate, *captcha.OCRClient) {
	solver := captcha.NewOCRClient(cfg.Captcha.OCRURL, cfg.Captcha.OCRAPIKey, cfg.Captcha.OCRTimeout, logger)

	opts := captcha.DefaultOptions()
	opts.BaseURL = cfg.Scraper.BaseURL
	opts.MaxAttempts = cfg.Captcha.MaxAttempts
	opts.ImageTimeout = cfg.Captcha.ImageTimeout
	opts.SettleDelay = cfg.Captcha.SettleDelay
	opts.ReloadDelay = cfg.Captcha.ReloadDelay
	opts.LoginSettle = cfg.Session.LoginSettle
	opts.OnTransition = func(from, to captcha.State) {
		logger.Debug("captcha state changed", "from", from.String(), "to", to.String())
	}

	creds := captcha.Credentials{Username: cfg.Session.Username, Password: cfg.Session.Password}
	return captcha.NewGate(solver, creds, captcha.DefaultSelectors(), opts, logger), solver
}

// openDatabase connects to Postgres and applies the schema.
func openDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
