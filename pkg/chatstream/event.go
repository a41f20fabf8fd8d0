package chatstream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags a StreamEvent.
type Kind int

const (
	KindTextDelta Kind = iota + 1
	KindToolCall
	KindError
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text_delta"
	case KindToolCall:
		return "tool_call"
	case KindError:
		return "error"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// ToolStatus is the progress of a tool call announced by the server.
type ToolStatus string

const (
	ToolInProgress ToolStatus = "in_progress"
	ToolCompleted  ToolStatus = "completed"
)

// StreamEvent is the normalized form of one decoded stream line.
type StreamEvent struct {
	Kind Kind

	// KindTextDelta
	Content string

	// KindToolCall
	ToolType string
	Name     string
	Status   ToolStatus

	// KindError
	Message     string
	RateLimited bool
}

const donePayload = "[DONE]"

// ParseLine decodes one line of an event stream. ok is false for lines that
// carry no event: blank lines, comments, non-data fields, recognized payloads
// with nothing to report, and unknown event shapes. A malformed JSON payload
// returns an error.
func ParseLine(line string) (ev StreamEvent, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return StreamEvent{}, false, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return StreamEvent{}, false, nil
	}
	if payload == donePayload {
		return StreamEvent{Kind: KindDone}, true, nil
	}

	return DecodePayload([]byte(payload))
}

type envelope struct {
	Event string          `json:"event"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

type eventData struct {
	Delta    *string         `json:"delta"`
	Content  *string         `json:"content"`
	Text     *string         `json:"text"`
	Message  json.RawMessage `json:"message"`
	Error    json.RawMessage `json:"error"`
	Status   string          `json:"status"`
	ToolType string          `json:"tool_type"`
	Name     string          `json:"name"`
}

// DecodePayload maps a JSON payload to a StreamEvent. Both the
// {"event": name, "data": {...}} shape and the flat {"type": name, ...}
// shape are accepted.
func DecodePayload(raw []byte) (StreamEvent, bool, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return StreamEvent{}, false, fmt.Errorf("invalid stream payload: %w", err)
	}

	name := env.Event
	body := []byte(env.Data)
	if name == "" {
		name = env.Type
		body = raw
	}
	if name == "" {
		return StreamEvent{}, false, nil
	}

	var data eventData
	if len(body) > 0 && string(body) != "null" {
		if err := json.Unmarshal(body, &data); err != nil {
			// data may be a bare string, e.g. {"event":"error","data":"boom"}
			var s string
			if json.Unmarshal(body, &s) != nil {
				return StreamEvent{}, false, fmt.Errorf("invalid %s payload: %w", name, err)
			}
			data.Message = json.RawMessage(body)
			data.Delta = &s
		}
	}

	switch {
	case name == "response.output_text.delta" || name == "text_delta" || name == "delta":
		text := firstString(data.Delta, data.Content, data.Text)
		if text == "" {
			return StreamEvent{}, false, nil
		}
		return StreamEvent{Kind: KindTextDelta, Content: text}, true, nil

	case name == "response.output_text.done":
		return StreamEvent{}, false, nil

	case name == "rate_limit_error":
		return StreamEvent{Kind: KindError, Message: data.errorMessage("rate limit exceeded"), RateLimited: true}, true, nil

	case name == "error":
		return StreamEvent{Kind: KindError, Message: data.errorMessage("stream error")}, true, nil

	case name == "done" || name == "response.completed":
		return StreamEvent{Kind: KindDone}, true, nil

	case strings.Contains(name, "tool_call"):
		return StreamEvent{
			Kind:     KindToolCall,
			ToolType: toolType(name, data.ToolType),
			Name:     data.Name,
			Status:   toolStatus(name, data.Status),
		}, true, nil
	}

	return StreamEvent{}, false, nil
}

func firstString(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func (d eventData) errorMessage(fallback string) string {
	for _, raw := range []json.RawMessage{d.Message, d.Error} {
		if msg := messageFrom(raw); msg != "" {
			return msg
		}
	}
	return fallback
}

// messageFrom reads a message that is either a JSON string or an object
// with a message field.
func messageFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	return ""
}

// toolType derives the tool family from names such as
// response.file_search_call.in_progress or response.function_tool_call.completed.
func toolType(name, explicit string) string {
	if explicit != "" {
		return explicit
	}
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if strings.Contains(p, "tool_call") {
			return strings.TrimSuffix(strings.TrimSuffix(p, "_tool_call"), "_call")
		}
	}
	return "tool"
}

func toolStatus(name, explicit string) ToolStatus {
	switch ToolStatus(explicit) {
	case ToolInProgress, ToolCompleted:
		return ToolStatus(explicit)
	}
	if strings.HasSuffix(name, ".completed") || strings.HasSuffix(name, ".done") {
		return ToolCompleted
	}
	return ToolInProgress
}
