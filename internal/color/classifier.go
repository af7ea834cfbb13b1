package color

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"resty.dev/v3"
)

var boldAnswer = regexp.MustCompile(`\*\*(.*?)\*\*`)

type LLMConfig struct {
	URL         string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// LLMClassifier asks a chat-completions endpoint to pick the closest palette entry.
type LLMClassifier struct {
	client *resty.Client
	cfg    LLMConfig
	logger *slog.Logger
}

func NewLLMClassifier(cfg LLMConfig, logger *slog.Logger) *LLMClassifier {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &LLMClassifier{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "color-classifier"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *LLMClassifier) Classify(ctx context.Context, label string, candidates []string) (string, error) {
	req := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "Pick the single closest color from the given list. Reply with the color name only, wrapped in **.",
			},
			{
				Role:    "user",
				Content: fmt.Sprintf("Color description: %q. Candidates: %s. Answer with the closest candidate, no explanation.", label, strings.Join(candidates, ", ")),
			},
		},
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("failed to call classifier: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("classifier returned %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", errors.New("classifier returned no choices")
	}

	answer := ExtractAnswer(out.Choices[0].Message.Content)
	c.logger.Debug("color classified", "label", label, "answer", answer)
	return answer, nil
}

func (c *LLMClassifier) Close() error {
	return c.client.Close()
}

// ExtractAnswer returns the text wrapped in ** or, failing that, the trimmed content.
func ExtractAnswer(content string) string {
	content = strings.TrimSpace(content)
	if m := boldAnswer.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return content
}
