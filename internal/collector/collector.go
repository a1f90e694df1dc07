// Package collector accumulates quiz answers and keeps the progress on disk so
// that an interrupted session resumes where it stopped.
package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"quiz-intake-service/internal/catalog"
	"quiz-intake-service/internal/domain"
)

// Progress is the persisted state.
type Progress struct {
	Answers map[string]string `json:"answers"`
	Page    int               `json:"page"`
}

// ProgressStore persists Progress between runs.
type ProgressStore interface {
	Load() (Progress, error)
	Save(Progress) error
	Clear() error
}

// FileStore keeps progress in a JSON file, written atomically via rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (Progress, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Progress{}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt file starts a fresh session instead of blocking the user.
		return Progress{}, nil
	}
	return p, nil
}

func (s *FileStore) Save(p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Collector buffers answers keyed by question id.
type Collector struct {
	catalog *catalog.Catalog
	store   ProgressStore

	mu      sync.Mutex
	answers map[string]string
	page    int
}

// New restores any saved progress. Answers for ids no longer in the catalog are dropped.
func New(c *catalog.Catalog, store ProgressStore) (*Collector, error) {
	saved, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	col := &Collector{
		catalog: c,
		store:   store,
		answers: make(map[string]string, c.Len()),
	}
	for id, opt := range saved.Answers {
		if _, _, ok := c.Lookup(id); ok && opt != "" {
			col.answers[id] = opt
		}
	}
	col.page = clampPage(saved.Page, len(c.Pages()))
	return col, nil
}

// Select records an answer and persists the new state.
func (c *Collector) Select(questionID, option string) error {
	if _, _, ok := c.catalog.Lookup(questionID); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, questionID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if option == "" {
		delete(c.answers, questionID)
	} else {
		c.answers[questionID] = option
	}
	return c.saveLocked()
}

// SetPage moves to a page; out-of-range values are clamped.
func (c *Collector) SetPage(page int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = clampPage(page, len(c.catalog.Pages()))
	return c.saveLocked()
}

func (c *Collector) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// PageComplete reports whether every question on page has an answer.
func (c *Collector) PageComplete(page int) bool {
	pages := c.catalog.Pages()
	if page < 0 || page >= len(pages) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range pages[page] {
		if c.answers[q.ID] == "" {
			return false
		}
	}
	return true
}

// Progress returns how many questions are answered out of the catalog size.
func (c *Collector) Progress() (answered, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.answers), c.catalog.Len()
}

// Answers emits one entry per catalog question in canonical order; unanswered
// questions carry a nil answer.
func (c *Collector) Answers() []domain.Answer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Answer, 0, c.catalog.Len())
	for i, q := range c.catalog.Questions() {
		a := domain.Answer{
			QuestionID:    q.ID,
			Category:      q.Category,
			QuestionIndex: i + 1,
		}
		if opt, ok := c.answers[q.ID]; ok {
			opt := opt
			a.Answer = &opt
		}
		out = append(out, a)
	}
	return out
}

// Clear forgets everything; call it only after the server confirmed the submission.
func (c *Collector) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = make(map[string]string, c.catalog.Len())
	c.page = 0
	return c.store.Clear()
}

func (c *Collector) saveLocked() error {
	snapshot := make(map[string]string, len(c.answers))
	for k, v := range c.answers {
		snapshot[k] = v
	}
	return c.store.Save(Progress{Answers: snapshot, Page: c.page})
}

func clampPage(page, pages int) int {
	if page < 0 || pages == 0 {
		return 0
	}
	if page >= pages {
		return pages - 1
	}
	return page
}
