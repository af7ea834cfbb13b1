package browsertest

import "sync"

// PageCounter counts concurrently open pages and remembers the peak.
type PageCounter struct {
	mu     sync.Mutex
	open   int
	peak   int
	opened []string
}

func (c *PageCounter) PageOpened(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open++
	c.peak = max(c.peak, c.open)
	c.opened = append(c.opened, url)
}

func (c *PageCounter) PageClosed(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open--
}

func (c *PageCounter) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *PageCounter) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

func (c *PageCounter) Opened() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.opened...)
}
