package debounce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushCall struct {
	key   string
	value int
}

type recorder struct {
	mu      sync.Mutex
	calls   []flushCall
	active  int
	maxSeen int
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (r *recorder) flush(ctx context.Context, key string, value int) error {
	r.mu.Lock()
	r.calls = append(r.calls, flushCall{key: key, value: value})
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	gate, entered, err := r.gate, r.entered, r.err
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return err
}

func (r *recorder) snapshot() []flushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]flushCall(nil), r.calls...)
}

func newTestPipeline(r *recorder, opts Options) (*Pipeline[string, int], *ManualClock) {
	clock := NewManualClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	opts.Clock = clock
	return New[string, int](r.flush, opts), clock
}

func TestPipelineCoalescesRapidEdits(t *testing.T) {
	rec := &recorder{}
	p, clock := newTestPipeline(rec, Options{QuietPeriod: time.Second})

	p.Set("amount", 10)
	clock.Advance(50 * time.Millisecond)
	p.Set("amount", 60)
	clock.Advance(50 * time.Millisecond)
	p.Set("amount", 110)

	clock.Advance(999 * time.Millisecond)
	p.Wait()
	assert.Empty(t, rec.snapshot(), "flush must wait for a full quiet period")

	clock.Advance(time.Millisecond)
	p.Wait()

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, flushCall{key: "amount", value: 110}, calls[0])
	assert.Equal(t, Clean, p.State("amount"))
}

func TestPipelineLocalValueIsImmediate(t *testing.T) {
	rec := &recorder{}
	p, _ := newTestPipeline(rec, Options{})

	p.Set("rent", 450)

	v, ok := p.Get("rent")
	require.True(t, ok)
	assert.Equal(t, 450, v)
	assert.Equal(t, Dirty, p.State("rent"))
	assert.Empty(t, rec.snapshot())
}

func TestPipelineRemoteRefreshDoesNotClobberPendingEdit(t *testing.T) {
	rec := &recorder{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	p, clock := newTestPipeline(rec, Options{QuietPeriod: time.Second, GraceWindow: 300 * time.Millisecond})

	require.True(t, p.ApplyRemote("food", 100))
	p.Set("food", 150)

	assert.False(t, p.ApplyRemote("food", 100), "dirty key must ignore remote values")
	v, _ := p.Get("food")
	assert.Equal(t, 150, v)

	clock.Advance(time.Second)
	<-rec.entered
	assert.Equal(t, Flushing, p.State("food"))
	assert.False(t, p.ApplyRemote("food", 100), "flushing key must ignore remote values")

	close(rec.gate)
	p.Wait()

	assert.Equal(t, Clean, p.State("food"))
	assert.True(t, p.Pending("food"), "grace window still guards the key")
	assert.False(t, p.ApplyRemote("food", 100))

	clock.Advance(300 * time.Millisecond)
	assert.False(t, p.Pending("food"))
	assert.True(t, p.ApplyRemote("food", 175))
	v, _ = p.Get("food")
	assert.Equal(t, 175, v)
}

func TestPipelineFailedFlushKeepsLocalValue(t *testing.T) {
	rec := &recorder{err: errors.New("backend unavailable")}
	p, clock := newTestPipeline(rec, Options{QuietPeriod: time.Second, GraceWindow: 100 * time.Millisecond})

	p.Set("travel", 320)
	clock.Advance(time.Second)
	p.Wait()

	v, _ := p.Get("travel")
	assert.Equal(t, 320, v)
	assert.Equal(t, Clean, p.State("travel"))

	clock.Advance(10 * time.Second)
	p.Wait()
	assert.Len(t, rec.snapshot(), 1, "failed flushes are not retried")

	assert.True(t, p.ApplyRemote("travel", 300), "guard clears after a failed flush")
}

func TestPipelineEditDuringFlightIsQueued(t *testing.T) {
	rec := &recorder{gate: make(chan struct{}), entered: make(chan struct{}, 2)}
	p, clock := newTestPipeline(rec, Options{QuietPeriod: time.Second})

	p.Set("insurance", 20)
	clock.Advance(time.Second)
	<-rec.entered

	p.Set("insurance", 25)
	p.Set("insurance", 30)
	assert.Equal(t, Dirty, p.State("insurance"))

	clock.Advance(time.Second)
	assert.Len(t, rec.snapshot(), 1, "second flush waits for the first one")

	rec.gate <- struct{}{}
	<-rec.entered
	close(rec.gate)
	p.Wait()

	calls := rec.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, 20, calls[0].value)
	assert.Equal(t, 30, calls[1].value)
	assert.Equal(t, 1, rec.maxSeen)
}

func TestPipelineKeysFlushIndependently(t *testing.T) {
	rec := &recorder{}
	p, clock := newTestPipeline(rec, Options{QuietPeriod: time.Second})

	p.Set("rent", 400)
	clock.Advance(500 * time.Millisecond)
	p.Set("food", 200)

	clock.Advance(500 * time.Millisecond)
	p.Wait()
	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "rent", calls[0].key)
	assert.Equal(t, Dirty, p.State("food"))

	clock.Advance(500 * time.Millisecond)
	p.Wait()
	calls = rec.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, flushCall{key: "food", value: 200}, calls[1])
}

func TestPipelineMaxDeferral(t *testing.T) {
	rec := &recorder{}
	p, clock := newTestPipeline(rec, Options{QuietPeriod: time.Second, MaxDeferral: 3 * time.Second})

	for i := 1; i <= 8; i++ {
		p.Set("notes", i)
		clock.Advance(500 * time.Millisecond)
	}
	p.Wait()

	calls := rec.snapshot()
	require.NotEmpty(t, calls, "continuous edits must not postpone the flush forever")
	assert.Equal(t, 6, calls[0].value)
}

func TestPipelineUnchangedValueIsNotFlushed(t *testing.T) {
	rec := &recorder{}
	p, clock := newTestPipeline(rec, Options{})
	p.WithEqual(func(a, b int) bool { return a == b })

	p.ApplyRemote("rent", 500)
	p.Set("rent", 500)
	assert.Equal(t, Clean, p.State("rent"))

	clock.Advance(time.Minute)
	p.Wait()
	assert.Empty(t, rec.snapshot())
}

func TestPipelineNormalizerClampsNegativeValues(t *testing.T) {
	rec := &recorder{}
	p, clock := newTestPipeline(rec, Options{})
	p.WithNormalizer(NonNegative[int])

	assert.Equal(t, 0, p.Set("deposit", -40))
	clock.Advance(time.Second)
	p.Wait()

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, 0, calls[0].value)
}

func TestPipelineNormalizerAppliesToRemoteValues(t *testing.T) {
	rec := &recorder{}
	p, _ := newTestPipeline(rec, Options{})
	p.WithNormalizer(NonNegative[int])

	require.True(t, p.ApplyRemote("deposit", -25))
	v, ok := p.Get("deposit")
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, Clean, p.State("deposit"))
	assert.Empty(t, rec.snapshot())
}

func TestPipelineCloseFlushesPendingEdits(t *testing.T) {
	rec := &recorder{}
	p, _ := newTestPipeline(rec, Options{QuietPeriod: time.Hour})

	p.Set("rent", 410)
	p.Set("food", 220)

	require.NoError(t, p.Close(context.Background()))
	assert.Len(t, rec.snapshot(), 2)
	assert.ErrorIs(t, p.Close(context.Background()), ErrClosed)

	p.Set("rent", 1)
	p.Wait()
	assert.Len(t, rec.snapshot(), 2)
}

func TestPipelineSnapshot(t *testing.T) {
	p, _ := newTestPipeline(&recorder{}, Options{})
	p.ApplyRemote("rent", 400)
	p.Set("food", 150)

	assert.Equal(t, map[string]int{"rent": 400, "food": 150}, p.Snapshot())
	_, ok := p.Get("missing")
	assert.False(t, ok)
}

func TestNonNegative(t *testing.T) {
	assert.Equal(t, 0.0, NonNegative(-0.5))
	assert.Equal(t, 12.5, NonNegative(12.5))
	assert.Equal(t, int64(0), NonNegative(int64(-3)))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "clean", Clean.String())
	assert.Equal(t, "dirty", Dirty.String())
	assert.Equal(t, "flushing", Flushing.String())
}
