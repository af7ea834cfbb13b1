package browsertest

import (
	"sync"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
)

// Opener hands out fresh fake pages built by Factory and remembers them.
type Opener struct {
	Factory func() *Page
	Err     error

	mu    sync.Mutex
	pages []*Page
}

func (o *Opener) NewPage() (browser.Page, error) {
	if o.Err != nil {
		return nil, o.Err
	}

	p := o.Factory()

	o.mu.Lock()
	o.pages = append(o.pages, p)
	o.mu.Unlock()

	return p, nil
}

func (o *Opener) Pages() []*Page {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Page(nil), o.pages...)
}

// OpenCount reports how many pages are still open.
func (o *Opener) OpenCount() int {
	n := 0
	for _, p := range o.Pages() {
		if !p.IsClosed() {
			n++
		}
	}
	return n
}
