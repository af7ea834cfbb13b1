package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrTimeout is returned when a selector wait or navigation runs out of time.
var ErrTimeout = errors.New("browser timeout")

// Page is the subset of a browser tab the scraper drives. All calls on one
// Page must be made from a single goroutine.
type Page interface {
	Goto(url string) error
	Reload() error
	URL() string
	Content() (string, error)
	Exists(selector string) (bool, error)
	WaitFor(selector string, timeout time.Duration) error
	Click(selector string, timeout time.Duration) error
	Hover(selector string) error
	Fill(selector, value string) error
	Press(key string) error
	Wheel(deltaX, deltaY float64) error
	Attribute(selector, name string) (string, error)
	// EvaluateJSON evaluates a JavaScript expression in the page and decodes
	// its JSON-serialised result into out.
	EvaluateJSON(expression string, out any) error
	Close() error
}

type playwrightPage struct {
	page    playwright.Page
	timeout time.Duration
}

func newPlaywrightPage(page playwright.Page, timeout time.Duration) *playwrightPage {
	return &playwrightPage{page: page, timeout: timeout}
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, wrapTimeout(err))
	}
	return nil
}

func (p *playwrightPage) Reload() error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to reload: %w", wrapTimeout(err))
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Content() (string, error) {
	content, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return content, nil
}

func (p *playwrightPage) Exists(selector string) (bool, error) {
	count, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return count > 0, nil
}

func (p *playwrightPage) WaitFor(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", selector, wrapTimeout(err))
	}
	return nil
}

func (p *playwrightPage) Click(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, wrapTimeout(err))
	}
	return nil
}

func (p *playwrightPage) Hover(selector string) error {
	if err := p.page.Locator(selector).First().Hover(); err != nil {
		return fmt.Errorf("failed to hover %s: %w", selector, wrapTimeout(err))
	}
	return nil
}

func (p *playwrightPage) Fill(selector, value string) error {
	if err := p.page.Locator(selector).First().Fill(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, wrapTimeout(err))
	}
	return nil
}

func (p *playwrightPage) Press(key string) error {
	if err := p.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("failed to press %s: %w", key, err)
	}
	return nil
}

func (p *playwrightPage) Wheel(deltaX, deltaY float64) error {
	if err := p.page.Mouse().Wheel(deltaX, deltaY); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (p *playwrightPage) Attribute(selector, name string) (string, error) {
	value, err := p.page.Locator(selector).First().GetAttribute(name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s of %s: %w", name, selector, wrapTimeout(err))
	}
	return value, nil
}

func (p *playwrightPage) EvaluateJSON(expression string, out any) error {
	result, err := p.page.Evaluate(fmt.Sprintf("() => JSON.stringify((%s) ?? null)", expression))
	if err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}

	raw, ok := result.(string)
	if !ok {
		return fmt.Errorf("unexpected evaluate result type %T", result)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode evaluate result: %w", err)
	}
	return nil
}

func (p *playwrightPage) Close() error {
	if p.page.IsClosed() {
		return nil
	}
	return p.page.Close()
}

func wrapTimeout(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Sleep pauses for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter returns a random duration in [min, max].
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
