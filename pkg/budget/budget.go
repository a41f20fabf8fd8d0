// Package budget holds the grant/budget estimate model shared by the portal
// service and its clients.
package budget

import (
	"math"
	"sort"
	"time"
)

// Category is one cost line of an exchange budget.
type Category struct {
	EstimatedCost float64 `json:"estimatedCost" validate:"gte=0"`
	Notes         string  `json:"notes,omitempty" validate:"max=2000"`
}

// Snapshot is the full budget of one student as stored remotely.
type Snapshot struct {
	ID         string              `json:"id,omitempty"`
	Categories map[string]Category `json:"categories" validate:"max=64,dive"`
	Total      float64             `json:"total"`
	UpdatedAt  time.Time           `json:"updatedAt,omitempty"`
}

// New returns an empty snapshot.
func New(id string) Snapshot {
	return Snapshot{ID: id, Categories: map[string]Category{}}
}

// Recalculate clamps negative costs and sets Total to the sum of all
// categories, rounded to cents.
func (s *Snapshot) Recalculate() {
	if s.Categories == nil {
		s.Categories = map[string]Category{}
	}
	total := 0.0
	for name, c := range s.Categories {
		if c.EstimatedCost < 0 || math.IsNaN(c.EstimatedCost) {
			c.EstimatedCost = 0
			s.Categories[name] = c
		}
		total += c.EstimatedCost
	}
	s.Total = math.Round(total*100) / 100
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Categories = make(map[string]Category, len(s.Categories))
	for k, v := range s.Categories {
		out.Categories[k] = v
	}
	return out
}

// Names returns the category names in stable order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
