package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resty.dev/v3"
)

// OCRClient sends challenge images to an OCR HTTP service.
type OCRClient struct {
	client *resty.Client
	url    string
	logger *slog.Logger
}

type ocrRequest struct {
	Image string `json:"image,omitempty"`
	URL   string `json:"url,omitempty"`
}

type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func NewOCRClient(url, apiKey string, timeout time.Duration, logger *slog.Logger) *OCRClient {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json")

	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OCRClient{
		client: client,
		url:    url,
		logger: logger.With("component", "ocr"),
	}
}

func (c *OCRClient) Solve(ctx context.Context, image string) (string, error) {
	req := ocrRequest{}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		req.URL = image
	} else {
		payload, err := DecodeDataURL(image)
		if err != nil {
			return "", err
		}
		req.Image = base64.StdEncoding.EncodeToString(payload)
	}

	var out ocrResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("failed to call ocr service: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ocr service returned %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", fmt.Errorf("ocr service: %s", out.Error)
	}

	text := strings.Join(strings.Fields(out.Text), "")
	c.logger.Debug("challenge decoded", "length", len(text))
	return text, nil
}

func (c *OCRClient) Close() error {
	return c.client.Close()
}

// DecodeDataURL returns the bytes of a base64 data URL such as
// "data:image/png;base64,iVBOR...".
func DecodeDataURL(src string) ([]byte, error) {
	header, data, ok := strings.Cut(src, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, errors.New("image source is not a data url")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, errors.New("image data url is not base64 encoded")
	}

	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return payload, nil
}
