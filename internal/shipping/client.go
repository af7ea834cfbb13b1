package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

// QuoteRequest is one SKU's freight query. Field names are lowercase on the wire.
type QuoteRequest struct {
	StartCountryCode string   `json:"startcountrycode"`
	CountryCode      string   `json:"countrycode"`
	Platform         string   `json:"platform"`
	Property         string   `json:"property"`
	Weight           float64  `json:"weight"`
	SKU              string   `json:"sku"`
	PID              string   `json:"pid"`
	Length           float64  `json:"length"`
	Width            float64  `json:"width"`
	Height           float64  `json:"height"`
	Volume           float64  `json:"volume"`
	Quantity         int      `json:"quantity"`
	CustomerCode     string   `json:"customercode"`
	SKUs             []string `json:"skus"`
	ProductType      string   `json:"producttype"`
}

// ErrNoDestination is returned when neither the request nor the client names a
// ship-to country.
var ErrNoDestination = errors.New("no destination country")

type ClientConfig struct {
	URL               string
	Platform          string
	StartCountry      string
	ShipTo            string // used when a request carries no CountryCode
	RequestsPerSecond int
	Timeout           time.Duration
}

// Client queries carrier options for one SKU at a time.
type Client struct {
	http   *resty.Client
	rl     ratelimit.Limiter
	cfg    ClientConfig
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.RequestsPerSecond < 1 {
		cfg.RequestsPerSecond = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Accept", "application/json;charset=utf-8").
		SetHeader("Content-Type", "application/json;charset=UTF-8")

	return &Client{
		http:   client,
		rl:     ratelimit.New(cfg.RequestsPerSecond),
		cfg:    cfg,
		logger: logger.With("component", "logistics"),
	}
}

type quoteResponse struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Data    []quoteOption   `json:"data"`
}

type quoteOption struct {
	LogisticName models.FlexString `json:"logisticName"`
	Price        models.FlexString `json:"price"`
	Aging        models.FlexString `json:"aging"`
}

// Quote requests carrier options for req using the session token.
func (c *Client) Quote(ctx context.Context, token string, req QuoteRequest) ([]models.ShippingOption, error) {
	if req.StartCountryCode == "" {
		req.StartCountryCode = c.cfg.StartCountry
	}
	if req.CountryCode == "" {
		req.CountryCode = c.cfg.ShipTo
	}
	if req.CountryCode == "" {
		return nil, fmt.Errorf("failed to quote %s: %w", req.SKU, ErrNoDestination)
	}
	if req.Platform == "" {
		req.Platform = c.cfg.Platform
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if len(req.SKUs) == 0 {
		req.SKUs = []string{req.SKU}
	}

	c.rl.Take()

	var out quoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("token", token).
		SetBody([]QuoteRequest{req}).
		SetResult(&out).
		Post(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to request freight for %s: %w", req.SKU, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("freight request for %s returned %d", req.SKU, resp.StatusCode())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "json") {
		return nil, fmt.Errorf("freight request for %s returned content type %q", req.SKU, ct)
	}

	options := make([]models.ShippingOption, 0, len(out.Data))
	for _, o := range out.Data {
		options = append(options, models.ShippingOption{
			LogisticsName: string(o.LogisticName),
			Price:         string(o.Price),
			Aging:         string(o.Aging),
		})
	}

	c.logger.Debug("freight quoted", "sku", req.SKU, "options", len(options))
	return options, nil
}

func (c *Client) Close() error {
	return c.http.Close()
}
