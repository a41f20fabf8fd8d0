package chatstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantOK bool
		want   StreamEvent
	}{
		{
			name:   "event envelope delta",
			line:   `data: {"event":"response.output_text.delta","data":{"delta":"Hei"}}`,
			wantOK: true,
			want:   StreamEvent{Kind: KindTextDelta, Content: "Hei"},
		},
		{
			name:   "legacy flat delta",
			line:   `data: {"type":"text_delta","content":"Moi"}` + "\r\n",
			wantOK: true,
			want:   StreamEvent{Kind: KindTextDelta, Content: "Moi"},
		},
		{
			name:   "no space after colon",
			line:   `data:{"event":"response.output_text.delta","data":{"delta":"x"}}`,
			wantOK: true,
			want:   StreamEvent{Kind: KindTextDelta, Content: "x"},
		},
		{
			name:   "done marker",
			line:   "data: [DONE]\n",
			wantOK: true,
			want:   StreamEvent{Kind: KindDone},
		},
		{
			name:   "done event",
			line:   `data: {"event":"done"}`,
			wantOK: true,
			want:   StreamEvent{Kind: KindDone},
		},
		{
			name:   "tool call in progress",
			line:   `data: {"event":"response.function_tool_call.in_progress","data":{"name":"search_destinations"}}`,
			wantOK: true,
			want:   StreamEvent{Kind: KindToolCall, ToolType: "function", Name: "search_destinations", Status: ToolInProgress},
		},
		{
			name:   "tool call completed by suffix",
			line:   `data: {"event":"response.function_tool_call.completed","data":{}}`,
			wantOK: true,
			want:   StreamEvent{Kind: KindToolCall, ToolType: "function", Status: ToolCompleted},
		},
		{
			name:   "rate limit error",
			line:   `data: {"event":"rate_limit_error","data":{"message":"Liian monta pyyntöä"}}`,
			wantOK: true,
			want:   StreamEvent{Kind: KindError, Message: "Liian monta pyyntöä", RateLimited: true},
		},
		{
			name:   "error with nested object",
			line:   `data: {"type":"error","error":{"message":"upstream failed"}}`,
			wantOK: true,
			want:   StreamEvent{Kind: KindError, Message: "upstream failed"},
		},
		{name: "text done is informational", line: `data: {"event":"response.output_text.done","data":{"text":"full"}}`},
		{name: "empty delta", line: `data: {"event":"response.output_text.delta","data":{"delta":""}}`},
		{name: "unknown event", line: `data: {"event":"response.created","data":{}}`},
		{name: "comment", line: ": keep-alive"},
		{name: "event field", line: "event: message"},
		{name: "blank", line: "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, ev)
			}
		})
	}
}

func TestParseLineMalformed(t *testing.T) {
	_, ok, err := ParseLine(`data: {"event":"response.output_text.delta","data":{"delta":`)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDecodePayloadBareStringData(t *testing.T) {
	ev, ok, err := DecodePayload([]byte(`{"event":"error","data":"boom"}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "boom", ev.Message)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "text_delta", KindTextDelta.String())
	assert.Equal(t, "done", KindDone.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
