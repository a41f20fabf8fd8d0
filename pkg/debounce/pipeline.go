// Package debounce coalesces bursts of local edits into one remote write per
// quiet period per key.
//
// Every key moves through Clean -> Dirty -> Flushing -> Clean. Set updates the
// local value immediately and (re)starts the key's quiet-period timer; when the
// timer elapses the latest value is handed to the FlushFunc. While a key is
// dirty, flushing, or inside the grace window that follows a flush
// acknowledgement, ApplyRemote refuses to overwrite the local value.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	DefaultQuietPeriod  = time.Second
	DefaultGraceWindow  = 500 * time.Millisecond
	DefaultFlushTimeout = 10 * time.Second
)

// State is the lifecycle position of a single key.
type State int

const (
	Clean State = iota
	Dirty
	Flushing
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// FlushFunc persists the latest value of key. It is never called
// concurrently for the same key.
type FlushFunc[K comparable, V any] func(ctx context.Context, key K, value V) error

// Options configures a Pipeline. Zero values fall back to the defaults.
type Options struct {
	// QuietPeriod is how long a key must stay untouched before it is flushed.
	QuietPeriod time.Duration
	// GraceWindow keeps the guard up after a flush returns so the server echo
	// of our own write cannot replace a newer keystroke.
	GraceWindow time.Duration
	// MaxDeferral bounds how long continuous edits can postpone a flush.
	// Zero disables the ceiling.
	MaxDeferral time.Duration
	// FlushTimeout bounds each FlushFunc call. Negative disables it.
	FlushTimeout time.Duration
	Clock        Clock
	Logger       *zerolog.Logger
}

var ErrClosed = errors.New("debounce: pipeline closed")

type entry[V any] struct {
	value      V
	known      bool
	dirty      bool
	flushing   bool
	queued     bool
	timer      Timer
	gen        uint64
	modifiedAt time.Time
	dirtySince time.Time
	guardUntil time.Time
}

// Pipeline is a keyed debounced-mutation pipeline.
type Pipeline[K comparable, V any] struct {
	mu        sync.Mutex
	entries   map[K]*entry[V]
	flush     FlushFunc[K, V]
	normalize func(V) V
	equal     func(a, b V) bool
	opts      Options
	logger    zerolog.Logger
	wg        conc.WaitGroup
	closed    bool
}

func New[K comparable, V any](flush FlushFunc[K, V], opts Options) *Pipeline[K, V] {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.GraceWindow < 0 {
		opts.GraceWindow = 0
	} else if opts.GraceWindow == 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.FlushTimeout == 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Pipeline[K, V]{
		entries: make(map[K]*entry[V]),
		flush:   flush,
		opts:    opts,
		logger:  logger.With().Str("component", "debounce").Logger(),
	}
}

// WithNormalizer installs a function applied to every local value before it
// is stored, e.g. NonNegative for amounts.
func (p *Pipeline[K, V]) WithNormalizer(fn func(V) V) *Pipeline[K, V] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.normalize = fn
	return p
}

// WithEqual lets Set skip edits that do not change a clean key.
func (p *Pipeline[K, V]) WithEqual(fn func(a, b V) bool) *Pipeline[K, V] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.equal = fn
	return p
}

// Set records a local edit and returns the value actually stored.
func (p *Pipeline[K, V]) Set(key K, value V) V {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.normalize != nil {
		value = p.normalize(value)
	}

	e := p.entryLocked(key)
	if p.equal != nil && e.known && !e.dirty && !e.flushing && p.equal(e.value, value) {
		return e.value
	}

	now := p.opts.Clock.Now()
	e.value = value
	e.known = true
	e.modifiedAt = now
	if !e.dirty {
		e.dirty = true
		e.dirtySince = now
	}

	if p.closed {
		p.logger.Warn().Interface("key", key).Msg("Edit recorded after close, it will not be flushed")
		return value
	}

	p.scheduleLocked(key, e, now)
	return value
}

// Get returns the local value of key.
func (p *Pipeline[K, V]) Get(key K) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok || !e.known {
		var zero V
		return zero, false
	}
	return e.value, true
}

// ApplyRemote offers a server-side value for key. It is applied only when no
// local edit is pending, and reports whether it was. The normalizer applies
// to remote values too.
func (p *Pipeline[K, V]) ApplyRemote(key K, value V) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.normalize != nil {
		value = p.normalize(value)
	}

	e := p.entryLocked(key)
	if p.guardedLocked(e) {
		p.logger.Debug().Interface("key", key).Str("state", p.stateLocked(e).String()).Msg("Ignoring remote value while local edit is pending")
		return false
	}

	e.value = value
	e.known = true
	return true
}

// State returns the lifecycle state of key. A key edited again while its
// previous value is in flight reports Dirty.
func (p *Pipeline[K, V]) State(key K) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return Clean
	}
	return p.stateLocked(e)
}

// Pending reports whether remote values for key are currently ignored.
func (p *Pipeline[K, V]) Pending(key K) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	return ok && p.guardedLocked(e)
}

// ModifiedAt returns when key was last edited locally.
func (p *Pipeline[K, V]) ModifiedAt(key K) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		return e.modifiedAt
	}
	return time.Time{}
}

// Snapshot copies every known local value.
func (p *Pipeline[K, V]) Snapshot() map[K]V {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[K]V, len(p.entries))
	for k, e := range p.entries {
		if e.known {
			out[k] = e.value
		}
	}
	return out
}

// Flush starts a flush for every dirty key without waiting for its quiet
// period. Use Wait to block until they finish.
func (p *Pipeline[K, V]) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushAllLocked()
}

// Wait blocks until every in-flight flush has returned.
func (p *Pipeline[K, V]) Wait() {
	p.wg.Wait()
}

// Close flushes pending edits and waits for them, or for ctx.
func (p *Pipeline[K, V]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.flushAllLocked()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline[K, V]) entryLocked(key K) *entry[V] {
	e, ok := p.entries[key]
	if !ok {
		e = &entry[V]{}
		p.entries[key] = e
	}
	return e
}

func (p *Pipeline[K, V]) guardedLocked(e *entry[V]) bool {
	return e.dirty || e.flushing || p.opts.Clock.Now().Before(e.guardUntil)
}

func (p *Pipeline[K, V]) stateLocked(e *entry[V]) State {
	switch {
	case e.dirty:
		return Dirty
	case e.flushing:
		return Flushing
	default:
		return Clean
	}
}

func (p *Pipeline[K, V]) scheduleLocked(key K, e *entry[V], now time.Time) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen

	delay := p.opts.QuietPeriod
	if p.opts.MaxDeferral > 0 {
		remaining := e.dirtySince.Add(p.opts.MaxDeferral).Sub(now)
		if remaining < delay {
			delay = max(remaining, 0)
		}
	}

	e.timer = p.opts.Clock.AfterFunc(delay, func() {
		p.fire(key, gen)
	})
}

func (p *Pipeline[K, V]) fire(key K, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok || e.gen != gen {
		return
	}
	e.timer = nil
	p.startFlushLocked(key, e)
}

func (p *Pipeline[K, V]) flushAllLocked() {
	for key, e := range p.entries {
		if !e.dirty {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.gen++
		p.startFlushLocked(key, e)
	}
}

func (p *Pipeline[K, V]) startFlushLocked(key K, e *entry[V]) {
	if !e.dirty {
		return
	}
	if e.flushing {
		e.queued = true
		return
	}

	e.dirty = false
	e.flushing = true
	e.dirtySince = time.Time{}
	value := e.value

	p.wg.Go(func() {
		p.run(key, value)
	})
}

func (p *Pipeline[K, V]) run(key K, value V) {
	ctx := context.Background()
	if p.opts.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.FlushTimeout)
		defer cancel()
	}

	start := time.Now()
	err := p.flush(ctx, key, value)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Interface("key", key).
			Dur("duration", time.Since(start)).
			Msg("Flush failed, keeping local value")
	} else {
		p.logger.Debug().
			Interface("key", key).
			Dur("duration", time.Since(start)).
			Msg("Flush acknowledged")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.entryLocked(key)
	e.flushing = false
	e.guardUntil = p.opts.Clock.Now().Add(p.opts.GraceWindow)

	if e.queued {
		e.queued = false
		p.startFlushLocked(key, e)
	}
}
