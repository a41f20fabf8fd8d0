package httpext

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// SSEWriter writes server-sent events, flushing after each one.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Started reports whether the stream headers were sent. Until then the
// handler can still answer with a regular status code.
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *SSEWriter) startLocked() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Data writes v as one `data:` line holding its JSON encoding.
func (s *SSEWriter) Data(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.raw(payload)
}

// Done writes the terminal `data: [DONE]` marker.
func (s *SSEWriter) Done() error {
	return s.raw([]byte("[DONE]"))
}

func (s *SSEWriter) raw(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startLocked()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
