package chatstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// State is the lifecycle position of a Call.
type State int32

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is absorbing.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Callbacks receive the events of one call. Any of them may be nil.
// OnComplete and OnError are mutually exclusive and fire exactly once.
type Callbacks struct {
	OnChunk    func(StreamEvent)
	OnComplete func()
	OnError    func(error)
}

// Call is one in-flight chat turn.
type Call struct {
	state  atomic.Int32
	cancel context.CancelFunc
	cb     Callbacks
	logger zerolog.Logger

	// deliverMu covers the state check and OnChunk of every chunk.
	deliverMu  sync.Mutex
	inCallback atomic.Bool

	once sync.Once
	done chan struct{}
	err  error
}

func newCall(cancel context.CancelFunc, cb Callbacks, logger zerolog.Logger) *Call {
	return &Call{
		cancel: cancel,
		cb:     cb,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Call) State() State {
	return State(c.state.Load())
}

// Abort cancels the call. Once it returns no further OnChunk or OnComplete
// is delivered; OnError receives ErrAborted unless the call had already
// finished, in which case Abort does nothing. Safe to call from callbacks.
func (c *Call) Abort() {
	// OnChunk runs with deliverMu held, so an Abort from inside it must not
	// take the lock again.
	if !c.inCallback.Load() {
		c.deliverMu.Lock()
		defer c.deliverMu.Unlock()
	}

	for {
		s := c.State()
		if s.Terminal() {
			return
		}
		if c.state.CompareAndSwap(int32(s), int32(StateCancelled)) {
			c.cancel()
			return
		}
	}
}

// Done is closed after the terminal callback has returned.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the terminal callback has returned and reports the
// terminal error, nil on completion. Must not be called from a callback.
func (c *Call) Wait() error {
	<-c.done
	return c.err
}

// advance moves from one non-terminal state to the next. It fails when the
// call was aborted in between.
func (c *Call) advance(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// settle moves any non-terminal state to the terminal state to.
func (c *Call) settle(to State) bool {
	for {
		s := c.State()
		if s.Terminal() {
			return false
		}
		if c.state.CompareAndSwap(int32(s), int32(to)) {
			return true
		}
	}
}

func (c *Call) run(ctx context.Context, client *Client, req TurnRequest) {
	if !c.advance(StateIdle, StateSending) {
		c.finish(ErrAborted)
		return
	}

	httpReq, err := client.newRequest(ctx, req)
	if err != nil {
		c.finish(err)
		return
	}

	resp, err := client.httpClient.Do(httpReq)
	if err != nil {
		c.finish(contextError(ctx, fmt.Errorf("failed to send turn: %w", err)))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.finish(newStatusError(resp))
		return
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		c.finish(ErrNoBody)
		return
	}

	if !c.advance(StateSending, StateStreaming) {
		c.finish(ErrAborted)
		return
	}

	c.finish(contextError(ctx, c.consume(resp.Body)))
}

// contextError attributes a transport failure to the call context when the
// context ended first, so cancellation and timeouts are reported as such.
func contextError(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil || errors.Is(err, ctx.Err()) {
		return err
	}
	return fmt.Errorf("%w: %v", ctx.Err(), err)
}

// consume reads the body line by line until a terminal event or the end of
// the stream. Connection end without [DONE] counts as completion.
func (c *Call) consume(body io.Reader) error {
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			stop, lineErr := c.handleLine(line)
			if lineErr != nil || stop {
				return lineErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}
	}
}

func (c *Call) handleLine(line string) (bool, error) {
	ev, ok, err := ParseLine(line)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Skipping malformed stream line")
		return false, nil
	}
	if !ok {
		return false, nil
	}

	switch ev.Kind {
	case KindDone:
		return true, nil
	case KindError:
		return true, &EventError{Message: ev.Message, RateLimited: ev.RateLimited}
	}

	return c.deliver(ev)
}

func (c *Call) deliver(ev StreamEvent) (bool, error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if c.State() != StateStreaming {
		return true, ErrAborted
	}
	if c.cb.OnChunk != nil {
		c.inCallback.Store(true)
		defer c.inCallback.Store(false)
		c.cb.OnChunk(ev)
	}
	return false, nil
}

// finish delivers the single terminal callback.
func (c *Call) finish(err error) {
	switch {
	case c.State() == StateCancelled:
		err = ErrAborted
	case err == nil:
		if !c.settle(StateCompleted) {
			err = ErrAborted
		}
	case errors.Is(err, context.Canceled):
		c.settle(StateCancelled)
		err = ErrAborted
	default:
		if !c.settle(StateFailed) {
			err = ErrAborted
		}
	}

	c.once.Do(func() {
		c.err = err
		if err == nil {
			c.logger.Debug().Msg("Stream completed")
			if c.cb.OnComplete != nil {
				c.cb.OnComplete()
			}
		} else {
			c.logger.Debug().Err(err).Str("state", c.State().String()).Msg("Stream ended with error")
			if c.cb.OnError != nil {
				c.cb.OnError(err)
			}
		}
		c.cancel()
		close(c.done)
	})
}
