package chatstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrAborted is reported through OnError when the caller aborts a call
	// before it reached a terminal state.
	ErrAborted = errors.New("chatstream: aborted")
	// ErrNoBody is reported when a successful response carries no body.
	ErrNoBody = errors.New("chatstream: response has no body")
)

// StatusError is a non-2xx response from the chat endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat endpoint returned %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the server rejected the turn with 429.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// EventError is an error event received inside the stream.
type EventError struct {
	Message     string
	RateLimited bool
}

func (e *EventError) Error() string {
	if e.RateLimited {
		return "rate limited: " + e.Message
	}
	return "stream error: " + e.Message
}

// IsRateLimited reports whether err is a 429 response or a rate limit event.
func IsRateLimited(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RateLimited()
	}
	var eventErr *EventError
	if errors.As(err, &eventErr) {
		return eventErr.RateLimited
	}
	return false
}

const maxErrorBody = 64 << 10

func newStatusError(resp *http.Response) *StatusError {
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr.Message = errorBodyMessage(body)
	}
	if statusErr.Message == "" {
		statusErr.Message = http.StatusText(resp.StatusCode)
	}
	return statusErr
}

// errorBodyMessage extracts a human readable message from the JSON error
// bodies the portal backends return, falling back to the raw text.
func errorBodyMessage(body []byte) string {
	var parsed struct {
		Message          string          `json:"message"`
		ErrorDescription string          `json:"error_description"`
		Error            json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.ErrorDescription != "" {
			return parsed.ErrorDescription
		}
		if msg := messageFrom(parsed.Error); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(body))
}
