package models

// Wire event names of the chat turn stream.
const (
	EventTextDelta      = "response.output_text.delta"
	EventTextDone       = "response.output_text.done"
	EventToolInProgress = "response.function_tool_call.in_progress"
	EventToolCompleted  = "response.function_tool_call.completed"
	EventError          = "error"
	EventRateLimitError = "rate_limit_error"
)

// Event is one `data:` payload of the stream.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type TextDelta struct {
	Delta string `json:"delta"`
}

type TextDone struct {
	Text string `json:"text"`
}

type ToolCall struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Error struct {
	Message string `json:"message"`
}

func Delta(text string) Event {
	return Event{Event: EventTextDelta, Data: TextDelta{Delta: text}}
}

func Done(text string) Event {
	return Event{Event: EventTextDone, Data: TextDone{Text: text}}
}

func ToolInProgress(id, name string) Event {
	return Event{Event: EventToolInProgress, Data: ToolCall{ID: id, Name: name, Status: "in_progress"}}
}

func ToolCompleted(id, name string) Event {
	return Event{Event: EventToolCompleted, Data: ToolCall{ID: id, Name: name, Status: "completed"}}
}

func ErrorEvent(message string, rateLimited bool) Event {
	name := EventError
	if rateLimited {
		name = EventRateLimitError
	}
	return Event{Event: name, Data: Error{Message: message}}
}
