package budgetsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaihtoaktivaattori/portal/pkg/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/debounce"
)

// Saver persists a whole budget snapshot. *Client satisfies it.
type Saver interface {
	Put(ctx context.Context, s budget.Snapshot) (budget.Snapshot, error)
}

// Editor holds the locally edited budget. Edits show up immediately in
// Snapshot and are written back through the Saver after a quiet period.
type Editor struct {
	mu       sync.Mutex
	saveMu   sync.Mutex
	id       string
	saver    Saver
	pipeline *debounce.Pipeline[string, budget.Category]
	logger   zerolog.Logger
}

func NewEditor(saver Saver, opts debounce.Options) *Editor {
	e := &Editor{
		saver:  saver,
		logger: log.With().Str("component", "budgetsync").Logger(),
	}
	if opts.Logger == nil {
		opts.Logger = &e.logger
	}

	e.pipeline = debounce.New(e.flush, opts).
		WithNormalizer(clampCategory).
		WithEqual(func(a, b budget.Category) bool { return a == b })
	return e
}

func clampCategory(c budget.Category) budget.Category {
	c.EstimatedCost = debounce.NonNegative(c.EstimatedCost)
	return c
}

// Load fetches the remote budget and applies it. Categories with pending
// local edits keep their local value and are returned as skipped.
func (e *Editor) Load(ctx context.Context, c *Client) ([]string, error) {
	snap, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return e.ApplyRemote(snap), nil
}

// ApplyRemote merges a server snapshot into the local state and returns the
// categories it did not overwrite.
func (e *Editor) ApplyRemote(snap budget.Snapshot) []string {
	e.mu.Lock()
	if snap.ID != "" {
		e.id = snap.ID
	}
	e.mu.Unlock()

	var skipped []string
	for _, name := range snap.Names() {
		if !e.pipeline.ApplyRemote(name, snap.Categories[name]) {
			skipped = append(skipped, name)
		}
	}
	return skipped
}

// SetEstimatedCost replaces the cost of a category. Negative input is stored
// as zero. The stored category is returned.
func (e *Editor) SetEstimatedCost(name string, cost float64) (budget.Category, error) {
	return e.update(name, func(c *budget.Category) { c.EstimatedCost = cost })
}

// Step adds delta to the cost of a category, never going below zero.
func (e *Editor) Step(name string, delta float64) (budget.Category, error) {
	return e.update(name, func(c *budget.Category) { c.EstimatedCost += delta })
}

// SetNotes replaces the free-text notes of a category.
func (e *Editor) SetNotes(name, notes string) (budget.Category, error) {
	return e.update(name, func(c *budget.Category) { c.Notes = notes })
}

func (e *Editor) update(name string, fn func(*budget.Category)) (budget.Category, error) {
	if name == "" {
		return budget.Category{}, fmt.Errorf("category name is required")
	}

	// read-modify-write on one category must not interleave
	e.mu.Lock()
	defer e.mu.Unlock()

	c, _ := e.pipeline.Get(name)
	fn(&c)
	return e.pipeline.Set(name, c), nil
}

// Category returns the local value of one category.
func (e *Editor) Category(name string) (budget.Category, bool) {
	return e.pipeline.Get(name)
}

// State reports the sync state of one category.
func (e *Editor) State(name string) debounce.State {
	return e.pipeline.State(name)
}

// Snapshot returns the full local budget with its total recalculated.
func (e *Editor) Snapshot() budget.Snapshot {
	e.mu.Lock()
	id := e.id
	e.mu.Unlock()

	s := budget.Snapshot{ID: id, Categories: e.pipeline.Snapshot()}
	s.Recalculate()
	return s
}

// Flush writes pending edits now and waits for them.
func (e *Editor) Flush() {
	e.pipeline.Flush()
	e.pipeline.Wait()
}

// Close flushes pending edits and stops accepting new flushes.
func (e *Editor) Close(ctx context.Context) error {
	return e.pipeline.Close(ctx)
}

// flush writes the whole local budget. Flushes of different categories run
// one at a time and each takes its snapshot once it holds saveMu, so the last
// write carries the newest state. The server echo is not applied; the grace
// window would drop it for this category anyway.
func (e *Editor) flush(ctx context.Context, name string, _ budget.Category) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	stored, err := e.saver.Put(ctx, e.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to save category %q: %w", name, err)
	}

	if stored.ID != "" {
		e.mu.Lock()
		e.id = stored.ID
		e.mu.Unlock()
	}

	e.logger.Debug().Str("category", name).Float64("total", stored.Total).Msg("Budget saved")
	return nil
}
