// Package catalog holds the canonical question ordering used by the collector
// and by the statistics report.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
	"quiz-intake-service/internal/domain"
)

//go:embed questions.yaml
var questionsYAML []byte

// Catalog is an ordered, immutable list of questions.
type Catalog struct {
	questions []domain.Question
	index     map[string]int
	pages     [][]domain.Question
}

// Default parses the embedded catalog. It panics only if the embedded file is broken.
func Default() *Catalog {
	c, err := Parse(questionsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Questions []domain.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return New(doc.Questions)
}

// New builds a catalog from questions in canonical order.
func New(questions []domain.Question) (*Catalog, error) {
	c := &Catalog{
		questions: questions,
		index:     make(map[string]int, len(questions)),
	}
	for i, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i+1)
		}
		if _, dup := c.index[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		c.index[q.ID] = i
	}
	// Pages are the contiguous category runs.
	for i, q := range questions {
		if i == 0 || questions[i-1].Category != q.Category {
			c.pages = append(c.pages, nil)
		}
		last := len(c.pages) - 1
		c.pages[last] = append(c.pages[last], q)
	}
	return c, nil
}

func (c *Catalog) Questions() []domain.Question {
	return c.questions
}

func (c *Catalog) Len() int {
	return len(c.questions)
}

// Lookup returns the question and its 1-based position.
func (c *Catalog) Lookup(id string) (domain.Question, int, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Question{}, 0, false
	}
	return c.questions[i], i + 1, true
}

func (c *Catalog) Pages() [][]domain.Question {
	return c.pages
}
