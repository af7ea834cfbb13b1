package color

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const separator = "_"

// cleanLabel collapses whitespace runs, newlines included, to single spaces.
func cleanLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// cacheKey is the lookup key for a label: cleaned and case-folded, so "Dark
// Teal", "dark teal" and "Dark\nTeal" share one entry.
func cacheKey(label string) string {
	return strings.ToLower(cleanLabel(label))
}

// Cache is an append-only file of label_canonical lines with an in-memory index.
// Labels may contain the separator; the canonical part never does.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	path    string
}

func OpenCache(path string) (*Cache, error) {
	c := &Cache{entries: make(map[string]string), path: path}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open color cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		i := strings.LastIndex(line, separator)
		if i <= 0 || i == len(line)-1 {
			continue
		}
		// Entries pointing outside the current palette are dropped so the
		// label is classified again.
		if !IsCanonical(line[i+1:]) {
			continue
		}
		key := cacheKey(line[:i])
		if key == "" {
			continue
		}
		c.entries[key] = line[i+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read color cache: %w", err)
	}

	return c, nil
}

func (c *Cache) Get(label string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey(label)]
	return v, ok
}

// Put records the mapping in memory and appends it to the file.
func (c *Cache) Put(label, canonical string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	label = cleanLabel(label)
	if label == "" {
		return nil
	}

	c.entries[strings.ToLower(label)] = canonical
	if c.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create color cache dir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open color cache: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s%s%s\n", label, separator, canonical); err != nil {
		return fmt.Errorf("failed to append color cache: %w", err)
	}
	return nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
