package imagehost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resty.dev/v3"
)

// DisplayWidth is appended to hosted URLs so the CDN serves a resized copy.
const DisplayWidth = "?w=900"

var ErrNoURL = errors.New("image host returned no url")

type Config struct {
	URL        string
	Token      string
	Category   string
	MaxRetries int
	Timeout    time.Duration
	RetryWait  time.Duration
}

// Uploader asks the image host to fetch a remote image and returns the hosted copy.
type Uploader struct {
	client *resty.Client
	cfg    Config
	logger *slog.Logger
}

func NewUploader(cfg Config, logger *slog.Logger) *Uploader {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{
		client: resty.New().SetTimeout(cfg.Timeout).SetHeader("Accept", "application/json"),
		cfg:    cfg,
		logger: logger.With("component", "imagehost"),
	}
}

type uploadResponse struct {
	Err int    `json:"err"`
	Msg string `json:"msg"`
	URL string `json:"url"`
}

// Rehost uploads src by reference and returns the hosted URL with the width
// suffix. Every failure is retried up to MaxRetries attempts in total.
func (u *Uploader) Rehost(ctx context.Context, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", fmt.Errorf("empty image url")
	}

	var lastErr error
	for attempt := 1; attempt <= u.cfg.MaxRetries; attempt++ {
		hosted, err := u.upload(ctx, src)
		if err == nil {
			return hosted + DisplayWidth, nil
		}
		lastErr = err

		u.logger.Warn("image upload failed",
			"attempt", attempt,
			"max_attempts", u.cfg.MaxRetries,
			"src", src,
			"error", err)

		if attempt == u.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(u.cfg.RetryWait):
		}
	}

	return "", fmt.Errorf("failed to rehost %s after %d attempts: %w", src, u.cfg.MaxRetries, lastErr)
}

func (u *Uploader) upload(ctx context.Context, src string) (string, error) {
	var out uploadResponse
	resp, err := u.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"token":      u.cfg.Token,
			"categories": u.cfg.Category,
			"src":        src,
		}).
		SetResult(&out).
		Post(u.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("image host returned %d", resp.StatusCode())
	}
	if out.Err != 0 {
		return "", fmt.Errorf("image host error %d: %s", out.Err, out.Msg)
	}
	if out.URL == "" {
		return "", ErrNoURL
	}
	return out.URL, nil
}

func (u *Uploader) Close() error {
	return u.client.Close()
}
