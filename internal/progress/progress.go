package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrInvalidID is returned for ids that cannot round-trip through the progress
// file: empty strings and invalid UTF-8.
var ErrInvalidID = errors.New("invalid progress id")

// Task is one unit of work, keyed by the tracker's id key.
type Task map[string]string

// Tracker records which tasks have completed so an interrupted run can resume.
type Tracker struct {
	mu       sync.RWMutex
	done     map[string]struct{}
	filename string
	idKey    string
}

func New(filename, idKey string) (*Tracker, error) {
	t := &Tracker{
		done:     make(map[string]struct{}),
		filename: filename,
		idKey:    idKey,
	}

	if err := t.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load progress file %s: %w", filename, err)
	}

	return t, nil
}

func (t *Tracker) Path() string {
	return t.filename
}

func (t *Tracker) IDKey() string {
	return t.idKey
}

// Pending returns the tasks not yet marked done, in input order. Tasks without
// an id are always pending.
func (t *Tracker) Pending(tasks []Task) []Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var pending []Task
	for _, task := range tasks {
		id := task[t.idKey]
		if _, ok := t.done[id]; ok && id != "" {
			continue
		}
		pending = append(pending, task)
	}
	return pending
}

// MarkDone records the task and rewrites the progress file.
func (t *Tracker) MarkDone(task Task) error {
	id := task[t.idKey]
	if id == "" {
		return fmt.Errorf("%w: task has no %q value", ErrInvalidID, t.idKey)
	}
	return t.MarkID(id)
}

// MarkID records id and rewrites the progress file.
func (t *Tracker) MarkID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidID)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidID, id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.done[id] = struct{}{}
	return t.save()
}

func (t *Tracker) IsDone(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.done[id]
	return ok
}

// Done returns the completed ids, sorted.
func (t *Tracker) Done() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.done))
	for id := range t.done {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset forgets all completed ids and removes the file.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = make(map[string]struct{})
	if err := os.Remove(t.filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove progress file: %w", err)
	}
	return nil
}

func (t *Tracker) save() error {
	ids := make([]string, 0, len(t.done))
	for id := range t.done {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	if dir := filepath.Dir(t.filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create progress dir: %w", err)
		}
	}

	tmpFile := t.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}

	return os.Rename(tmpFile, t.filename)
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(t.filename)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		if id != "" {
			t.done[id] = struct{}{}
		}
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// FileFor returns the per-category progress file path, e.g. progress_home_garden.json.
func FileFor(dir, name string) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		slug = "default"
	}
	return filepath.Join(dir, "progress_"+slug+".json")
}
