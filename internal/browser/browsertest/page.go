// Package browsertest provides an in-memory browser.Page for tests. Selector
// queries run against the page HTML with goquery, so fixtures are plain markup.
package browsertest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
)

type Page struct {
	mu sync.Mutex

	// Routes maps a URL (without query string unless ExactRoutes is set) to its HTML.
	Routes      map[string]string
	ExactRoutes bool
	// HTML is served when no route matches the current URL.
	HTML string
	// Evaluate answers EvaluateJSON calls. A nil result encodes as JSON null.
	Evaluate func(url, expression string) (any, error)

	OnGoto   func(p *Page, url string) error
	OnReload func(p *Page) error
	OnClick  func(p *Page, selector string) error
	OnPress  func(p *Page, key string) error

	current  string
	override *string
	filled   map[string]string
	calls    []string
	closed   bool
}

var _ browser.Page = (*Page)(nil)

func NewPage(html string) *Page {
	return &Page{HTML: html}
}

// SetHTML replaces the content of the current document until the next navigation.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = &html
}

func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Page) CallCount(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (p *Page) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled[selector]
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) record(format string, args ...any) {
	p.mu.Lock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
	p.mu.Unlock()
}

func (p *Page) Goto(url string) error {
	p.record("goto %s", url)
	p.mu.Lock()
	p.current = url
	p.override = nil
	hook := p.OnGoto
	p.mu.Unlock()

	if hook != nil {
		return hook(p, url)
	}
	return nil
}

func (p *Page) Reload() error {
	p.record("reload")
	p.mu.Lock()
	hook := p.OnReload
	p.mu.Unlock()

	if hook != nil {
		return hook(p)
	}
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", fmt.Errorf("page is closed")
	}
	if p.override != nil {
		return *p.override, nil
	}

	key := p.current
	if !p.ExactRoutes {
		key, _, _ = strings.Cut(key, "?")
	}
	if html, ok := p.Routes[key]; ok {
		return html, nil
	}
	return p.HTML, nil
}

func (p *Page) document() (*goquery.Document, error) {
	html, err := p.Content()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *Page) Exists(selector string) (bool, error) {
	doc, err := p.document()
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (p *Page) WaitFor(selector string, _ time.Duration) error {
	p.record("wait %s", selector)
	ok, err := p.Exists(selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed waiting for %s: %w", selector, browser.ErrTimeout)
	}
	return nil
}

func (p *Page) Click(selector string, _ time.Duration) error {
	p.record("click %s", selector)
	ok, err := p.Exists(selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to click %s: %w", selector, browser.ErrTimeout)
	}

	p.mu.Lock()
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		return hook(p, selector)
	}
	return nil
}

func (p *Page) Hover(selector string) error {
	p.record("hover %s", selector)
	return nil
}

func (p *Page) Fill(selector, value string) error {
	p.record("fill %s", selector)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filled == nil {
		p.filled = make(map[string]string)
	}
	p.filled[selector] = value
	return nil
}

func (p *Page) Press(key string) error {
	p.record("press %s", key)
	p.mu.Lock()
	hook := p.OnPress
	p.mu.Unlock()
	if hook != nil {
		return hook(p, key)
	}
	return nil
}

func (p *Page) Wheel(deltaX, deltaY float64) error {
	p.record("wheel %.0f,%.0f", deltaX, deltaY)
	return nil
}

func (p *Page) Attribute(selector, name string) (string, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("failed to read %s of %s: %w", name, selector, browser.ErrTimeout)
	}
	value, _ := sel.Attr(name)
	return value, nil
}

func (p *Page) EvaluateJSON(expression string, out any) error {
	p.record("evaluate")
	p.mu.Lock()
	eval, url := p.Evaluate, p.current
	p.mu.Unlock()

	var result any
	if eval != nil {
		var err error
		if result, err = eval(url, expression); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *Page) Close() error {
	p.record("close")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
